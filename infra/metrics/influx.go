package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
	coremetrics "github.com/kilianp07/gridsim/core/metrics"
	"github.com/kilianp07/gridsim/infra/logger"
)

// InfluxConfig holds the connection settings of InfluxSink.
type InfluxConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"token"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Timeout time.Duration `json:"timeout"`
}

// InfluxSink writes allocations and step events to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
	now      func() time.Time
}

// NewInfluxSink returns a sink for the given endpoint. A URL ending with the
// write path is accepted.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.Timeout,
		log:      logger.New("influx-sink"),
		now:      time.Now,
	}
}

// NewInfluxSinkWithFallback pings InfluxDB and returns a NopSink when the
// health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.AllocationSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordAllocation writes one substation_allocation point plus one point per
// feed and per consumer.
func (s *InfluxSink) RecordAllocation(a grid.Allocation) error {
	ts := s.now()
	points := make([]*write.Point, 0, 1+len(a.Feeds)+len(a.Consumers))
	points = append(points, write.NewPointWithMeasurement("substation_allocation").
		AddTag("substation", a.Substation).
		AddTag("compensation", string(a.Compensation)).
		AddField("step", a.Step).
		AddField("available_capacity", round3(a.AvailableCapacity)).
		AddField("total_demand", round3(a.TotalDemand)).
		AddField("total_generated", round3(a.TotalGenerated)).
		AddField("total_power", round3(a.TotalPower)).
		AddField("total_lost", round3(a.TotalLost)).
		AddField("unallocated", round3(a.Unallocated)).
		SetTime(ts))
	for _, f := range a.Feeds {
		points = append(points, write.NewPointWithMeasurement("feed_transmission").
			AddTag("substation", a.Substation).
			AddTag("producer", f.Producer).
			AddTag("line", f.Line).
			AddField("step", a.Step).
			AddField("share", round3(f.Share)).
			AddField("requested", round3(f.Requested)).
			AddField("generated", round3(f.Generated)).
			AddField("delivered", round3(f.Delivered)).
			AddField("lost", round3(f.Lost)).
			AddField("reported_loss", round3(f.ReportedLoss)).
			SetTime(ts))
	}
	for _, c := range a.Consumers {
		points = append(points, write.NewPointWithMeasurement("consumer_allocation").
			AddTag("substation", a.Substation).
			AddTag("consumer", c.Consumer).
			AddField("step", a.Step).
			AddField("demand", round3(c.Demand)).
			AddField("allocated", round3(c.Allocated)).
			SetTime(ts))
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordStep writes finished steps as simulation_step points.
func (s *InfluxSink) RecordStep(ev events.StepEvent) error {
	if ev.Phase == events.PhaseStarted {
		return nil
	}
	p := write.NewPointWithMeasurement("simulation_step").
		AddTag("run_id", ev.RunID).
		AddTag("phase", string(ev.Phase))
	if reason := ev.Reason(); reason != "" {
		p = p.AddTag("reason", reason).AddTag("substation", ev.Substation)
	}
	p = p.AddField("step", ev.Step).
		AddField("duration_ms", round3(float64(ev.Duration)/float64(time.Millisecond))).
		SetTime(ev.Time)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
