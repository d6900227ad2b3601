package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"vms-service/internal/config"
	"vms-service/internal/domain/vms"
	"vms-service/internal/retry"
)

// publisher is the subset of mqtt.Client used for forwarding.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTForwarder publishes alerts to {prefix}/{camera_id}/{event_type}.
type MQTTForwarder struct {
	client  publisher
	prefix  string
	qos     byte
	timeout time.Duration
	policy  retry.Policy
	log     zerolog.Logger
}

func NewMQTTForwarder(cfg config.MQTTConfig, log zerolog.Logger) (*MQTTForwarder, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(cfg.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return newMQTTForwarder(client, cfg, log), nil
}

func newMQTTForwarder(client publisher, cfg config.MQTTConfig, log zerolog.Logger) *MQTTForwarder {
	return &MQTTForwarder{
		client:  client,
		prefix:  cfg.TopicPrefix,
		qos:     cfg.QoS,
		timeout: cfg.Timeout,
		policy: retry.Policy{
			MaxAttempts:  cfg.MaxRetries + 1,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		log: log.With().Str("forwarder", "mqtt").Logger(),
	}
}

func (m *MQTTForwarder) Name() string { return "mqtt" }

func (m *MQTTForwarder) Topic(event vms.Event) string {
	return fmt.Sprintf("%s/%s/%s", m.prefix, event.CameraID, event.EventType)
}

func (m *MQTTForwarder) Forward(ctx context.Context, event vms.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	topic := m.Topic(event)

	return retry.Do(ctx, m.policy, func(context.Context) error {
		token := m.client.Publish(topic, m.qos, false, payload)
		if !token.WaitTimeout(m.timeout) {
			return fmt.Errorf("publish to %s timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
		}
		return nil
	}, func(attempt int, _ time.Duration, err error) {
		m.log.Debug().Err(err).Int("attempt", attempt).Str("topic", topic).Msg("mqtt retry")
	})
}

func (m *MQTTForwarder) Close() error {
	m.client.Disconnect(250)
	return nil
}
