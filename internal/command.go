package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"simonair-telemetry-service/internal/services"

	"github.com/eclipse/paho.golang/paho"
)

var ErrNotConnected = errors.New("mqtt transport not connected")

// CommandPublisher sends one configuration payload to a per-device command
// topic. Implemented by CommandChannel; kept narrow so calibration engines
// can be exercised against a fake in tests.
type CommandPublisher interface {
	Publish(ctx context.Context, deviceID, suffix string, payload any) error
}

// CommandChannel publishes calibration and threshold payloads at QoS 1 and
// waits for the broker acknowledgment. Delivery is at-least-once: duplicate
// commands must be tolerated by the device. Failed publishes are not retried
// here; resubmission is a manual operator action.
type CommandChannel struct {
	mqttClient *services.MqttClient
	prefix     string
	timeout    time.Duration
	log        *slog.Logger
}

func NewCommandChannel(mqttClient *services.MqttClient, prefix string, timeout time.Duration, log *slog.Logger) *CommandChannel {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CommandChannel{
		mqttClient: mqttClient,
		prefix:     prefix,
		timeout:    timeout,
		log:        log,
	}
}

func (c *CommandChannel) Publish(ctx context.Context, deviceID, suffix string, payload any) error {
	if !c.mqttClient.Connected() {
		return ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error building command payload: %w", err)
	}

	topic := commandTopic(c.prefix, deviceID, suffix)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.mqttClient.Client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: body,
	}); err != nil {
		return fmt.Errorf("error publishing command to %s: %w", topic, err)
	}

	c.log.Info("command published", "topic", topic)
	return nil
}
