// Package app wires the configured grid, ledger, sinks and monitoring into a
// runnable simulation service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	ledgerapi "github.com/kilianp07/gridsim/api/ledger"
	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
	"github.com/kilianp07/gridsim/core/ledger"
	"github.com/kilianp07/gridsim/core/ledger/store"
	coremetrics "github.com/kilianp07/gridsim/core/metrics"
	"github.com/kilianp07/gridsim/core/monitoring"
	"github.com/kilianp07/gridsim/core/simulator"
	"github.com/kilianp07/gridsim/infra/logger"
	"github.com/kilianp07/gridsim/infra/metrics"
	inframon "github.com/kilianp07/gridsim/infra/monitoring"
	"github.com/kilianp07/gridsim/infra/mqtt"
	"github.com/kilianp07/gridsim/internal/eventbus"

	"github.com/google/uuid"
)

// Service owns every component of one simulation run.
type Service struct {
	Grid      *grid.Grid
	Book      *ledger.Book
	Simulator *simulator.Simulator

	cfg   *config.Config
	sink  coremetrics.AllocationSink
	bus   *eventbus.Bus[events.StepEvent]
	store store.Store
	log   logger.Logger
}

// New creates a Service from the configuration. Resources opened before a
// failure are released.
func New(cfg *config.Config) (svc *Service, err error) {
	logg := logger.New("service")
	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	comp, err := grid.ParseCompensation(cfg.Simulation.Compensation)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	s := &Service{cfg: cfg, log: logg, bus: eventbus.New[events.StepEvent]()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	var rec ledger.Recorder = ledger.NopRecorder{}
	if cfg.Ledger.Enabled {
		st, err := store.Open(cfg.Ledger.StoreOptions())
		if err != nil {
			return nil, fmt.Errorf("ledger store: %w", err)
		}
		s.store = st
		s.Book = ledger.NewBook(st, runID, logger.New("ledger"))
		rec = s.Book
	}

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	s.sink = sink
	if cfg.MQTTEnabled() {
		pub, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		s.sink = coremetrics.NewMultiSink(sink, pub)
	}

	g, err := grid.Build(cfg.Grid, grid.BuildOptions{
		Seed:         cfg.Simulation.Seed,
		Compensation: comp,
		Recorder:     rec,
		NewLogger:    logger.New,
	})
	if err != nil {
		return nil, err
	}
	s.Grid = g
	if s.Book != nil && cfg.Ledger.AutoAuthorize() {
		if err := g.Enroll(s.Book); err != nil {
			return nil, err
		}
	}

	subs := make([]simulator.Distributor, 0, len(g.Substations))
	for _, sub := range g.Substations {
		subs = append(subs, sub)
	}
	s.Simulator = simulator.New(subs,
		simulator.WithSink(s.sink),
		simulator.WithBus(s.bus),
		simulator.WithLogger(logger.New("simulator")),
		simulator.WithRunID(runID),
	)
	return s, nil
}

// Run executes the configured number of steps and blocks until they are done
// or ctx is cancelled. Step events still buffered on the bus are delivered to
// the step recorders before Run returns.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, nil, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if addr := s.cfg.API.Addr; addr != "" && s.Book != nil {
		go func() {
			if err := metrics.Serve(ctx, addr, ledgerapi.NewMux(s.store, s.Book, s.cfg.API.Token), s.log); err != nil {
				s.log.Errorf("ledger api: %v", err)
			}
		}()
	}
	var collected <-chan struct{}
	if rec, ok := s.sink.(coremetrics.StepRecorder); ok {
		collected = metrics.StartEventCollector(context.Background(), s.bus, rec, s.log)
	}

	err := s.Simulator.Run(ctx, s.cfg.Simulation.Steps, s.cfg.Simulation.StepDelay())
	s.bus.Close()
	if collected != nil {
		<-collected
	}
	if err != nil {
		s.log.Errorf("simulation %s failed: %v", s.Simulator.RunID(), err)
	}
	return err
}

// Close releases the ledger store and sinks and flushes pending reports.
func (s *Service) Close() error {
	var errs []error
	s.bus.Close()
	if c, ok := s.sink.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}
