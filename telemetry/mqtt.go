// Package telemetry mirrors the supervisory status onto an MQTT broker.
package telemetry

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	Close() error
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker"` // host:port
	ClientID       string        `yaml:"client_id"`
	Prefix         string        `yaml:"prefix"`
	Every          int           `yaml:"every"` // publish every n-th status
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

var DefaultMQTTConfig = MQTTConfig{
	ClientID:       "drive-service",
	Prefix:         "drive/motor",
	Every:          10,
	ConnectTimeout: 5 * time.Second,
	PublishTimeout: 100 * time.Millisecond,
}

// MQTTPublisher publishes through a paho client that reconnects on its own.
type MQTTPublisher struct {
	client  mqtt.Client
	timeout time.Duration
}

// ConnectMQTT starts a client for cfg.Broker. If the broker is unreachable
// within cfg.ConnectTimeout the client keeps retrying in the background.
func ConnectMQTT(cfg MQTTConfig, logger Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("no MQTT broker configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost: %v", err)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		logger.Warn("MQTT broker %s not reachable yet, retrying in background", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return &MQTTPublisher{client: client, timeout: cfg.PublishTimeout}, nil
}

func (p *MQTTPublisher) Publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
