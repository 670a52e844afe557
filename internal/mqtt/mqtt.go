// Package mqtt publishes collection changes to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/mycolog/mycolog/internal/conf"
)

const component = "mqtt"

// Client defines the MQTT operations the publisher needs.
type Client interface {
	// Connect establishes the broker connection.
	Connect(ctx context.Context) error

	// Publish sends payload to topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	IsConnected() bool

	// Disconnect closes the connection.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // prefix; events go to {Topic}/{kind}
	Retain   bool

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable timeouts.
func DefaultConfig() Config {
	return Config{
		Topic:             "mycolog/collection",
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings fills DefaultConfig from the mqtt settings section.
func ConfigFromSettings(s *conf.Settings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.MQTT.Broker
	cfg.ClientID = s.MQTT.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = s.Main.Name
	}
	cfg.Username = s.MQTT.Username
	cfg.Password = s.MQTT.Password
	cfg.Retain = s.MQTT.Retain
	if s.MQTT.Topic != "" {
		cfg.Topic = s.MQTT.Topic
	}
	return cfg
}
