package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config defines the broker connection and publishing parameters.
type Config struct {
	Broker      string `json:"broker" yaml:"broker"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	QoS         byte   `json:"qos" yaml:"qos"`
	Retain      bool   `json:"retain" yaml:"retain"`
	UseTLS      bool   `json:"use_tls" yaml:"use_tls"`
	ClientCert  string `json:"client_cert" yaml:"client_cert"`
	ClientKey   string `json:"client_key" yaml:"client_key"`
	CABundle    string `json:"ca_bundle" yaml:"ca_bundle"`
	LWTTopic    string `json:"lwt_topic" yaml:"lwt_topic"`
	LWTPayload  string `json:"lwt_payload" yaml:"lwt_payload"`
	MaxRetries  int    `json:"max_retries" yaml:"max_retries"`
	BackoffMS   int    `json:"backoff_ms" yaml:"backoff_ms"`
	TimeoutMS   int    `json:"timeout_ms" yaml:"timeout_ms"`

	TLSConfig *tls.Config `json:"-" yaml:"-"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "gridsim"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "gridsim"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

// Validate checks the settings needed to connect.
func (c Config) Validate() error {
	var errs []error
	if c.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.QoS))
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		errs = append(errs, errors.New("mqtt tls requires client_cert, client_key and ca_bundle"))
	}
	return errors.Join(errs...)
}

func (c Config) backoff() time.Duration { return time.Duration(c.BackoffMS) * time.Millisecond }
func (c Config) timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

// NewClientOptions builds paho options from c.
func NewClientOptions(c Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(c.Broker).SetClientID(c.ClientID)
	opts.SetAutoReconnect(true)
	if c.Username != "" {
		opts.SetUsername(c.Username)
	}
	if c.Password != "" {
		opts.SetPassword(c.Password)
	}
	if c.UseTLS {
		tlsCfg, err := c.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if c.LWTTopic != "" {
		opts.SetWill(c.LWTTopic, c.LWTPayload, c.QoS, false)
	}
	return opts, nil
}

// LoadTLSConfig loads the client certificate and CA bundle.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("no certificate found in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}
