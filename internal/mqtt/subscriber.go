package mqtt

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hashicorp/go-hclog"

	"printstatus/internal/model"
)

const (
	DefaultTopic = "octoprint/webhook"
	QoS          = 1
)

// Ingester consumes one raw event payload.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte) (model.JobState, error)
}

// Config holds the broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker. Caller should Disconnect when done.
func Connect(cfg Config, logger hclog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// Handler returns the message callback that feeds payloads to ing.
// Rejected payloads are logged; the broker is not asked to redeliver.
func Handler(ctx context.Context, ing Ingester, logger hclog.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if _, err := ing.Ingest(ctx, msg.Payload()); err != nil {
			logger.Warn("mqtt: event rejected", "topic", msg.Topic(), "error", err)
			return
		}
		logger.Debug("mqtt: event accepted", "topic", msg.Topic())
	}
}

// Subscribe subscribes topic and calls ing for each message.
func Subscribe(ctx context.Context, client mqtt.Client, topic string, ing Ingester, logger hclog.Logger) error {
	if topic == "" {
		topic = DefaultTopic
	}
	token := client.Subscribe(topic, QoS, Handler(ctx, ing, logger))
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	logger.Info("mqtt: subscribed", "topic", topic, "qos", QoS)
	return nil
}
