// Package mqtt publishes allocation telemetry to an MQTT broker. Importing it
// registers the "mqtt" metrics sink type.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/grid"
	"github.com/kilianp07/gridsim/core/logger"
	coremon "github.com/kilianp07/gridsim/core/monitoring"
	infralogger "github.com/kilianp07/gridsim/infra/logger"
)

// ErrPublish is returned when a message could not be published after all
// retries.
var ErrPublish = errors.New("mqtt publish failed")

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher sends allocations and step outcomes as JSON messages.
type Publisher struct {
	cli   pahoClient
	cfg   Config
	log   logger.Logger
	sleep func(time.Duration)
}

// NewPublisher connects to the broker described by cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := infralogger.New("mqtt-publisher")
	opts.OnConnect = func(paho.Client) { log.Infof("connected to %s", cfg.Broker) }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("connection lost: %v", err) }
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) { log.Warnf("reconnecting to %s", cfg.Broker) }

	c := newMQTTClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.timeout()) {
		return nil, fmt.Errorf("connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return &Publisher{cli: c, cfg: cfg, log: log, sleep: time.Sleep}, nil
}

// AllocationTopic is the topic allocations of substation are published on.
func (p *Publisher) AllocationTopic(substation string) string {
	return fmt.Sprintf("%s/%s/allocation", p.cfg.TopicPrefix, substation)
}

// StepTopic is the topic step outcomes are published on.
func (p *Publisher) StepTopic() string { return p.cfg.TopicPrefix + "/steps" }

func (p *Publisher) RecordAllocation(a grid.Allocation) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return p.publish(p.AllocationTopic(a.Substation), payload)
}

type stepMessage struct {
	RunID      string  `json:"run_id"`
	Step       int     `json:"step"`
	Phase      string  `json:"phase"`
	Substation string  `json:"substation,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Timestamp  int64   `json:"timestamp"`
}

// RecordStep publishes completed and failed steps.
func (p *Publisher) RecordStep(ev events.StepEvent) error {
	if ev.Phase == events.PhaseStarted {
		return nil
	}
	msg := stepMessage{
		RunID:      ev.RunID,
		Step:       ev.Step,
		Phase:      string(ev.Phase),
		Substation: ev.Substation,
		Reason:     ev.Reason(),
		DurationMS: float64(ev.Duration) / float64(time.Millisecond),
		Timestamp:  ev.Time.UnixMilli(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.publish(p.StepTopic(), payload)
}

// publish retries with exponential backoff and reports the final failure to
// the monitor.
func (p *Publisher) publish(topic string, payload []byte) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
		if !token.WaitTimeout(p.cfg.timeout()) {
			lastErr = errors.New("timeout")
		} else {
			lastErr = token.Error()
		}
		if lastErr == nil {
			p.log.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.log.Warnf("publish to %s attempt %d failed: %v", topic, attempt+1, lastErr)
		if attempt < p.cfg.MaxRetries {
			p.sleep(p.cfg.backoff() * time.Duration(1<<attempt))
		}
	}
	err := fmt.Errorf("%w: %s: %w", ErrPublish, topic, lastErr)
	coremon.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic})
	return err
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
	return nil
}
