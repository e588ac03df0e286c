package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"simonair-telemetry-service/internal/services"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// SensorKind selects which telemetry channel a calibration session follows.
type SensorKind string

const (
	SensorKindPH  SensorKind = "ph"
	SensorKindTDS SensorKind = "tds"
	SensorKindDO  SensorKind = "do"
)

// ReadingSource is the live-reading cursor a calibration engine consumes.
type ReadingSource interface {
	Voltage() float64
	Raw() float64
	Temperature() float64
	Connected() bool
}

// LiveFeed follows one device's telemetry topic for one sensor kind over the
// shared MQTT connection. Each feed owns its own removable message handler,
// so closing a calibration session never disturbs the main ingestion channel.
type LiveFeed struct {
	deviceID string
	sensor   SensorKind
	topic    string
	client   *services.MqttClient
	log      *slog.Logger

	mu          sync.RWMutex
	voltage     float64
	raw         float64
	temperature float64

	remove func()
	closed bool
}

// OpenLiveFeed subscribes to the device's telemetry topic and starts tracking
// the latest voltage, raw and temperature values for the given sensor kind.
func OpenLiveFeed(ctx context.Context, client *services.MqttClient, prefix, deviceID string, sensor SensorKind, log *slog.Logger) (*LiveFeed, error) {
	f := &LiveFeed{
		deviceID: deviceID,
		sensor:   sensor,
		topic:    telemetryTopic(prefix, deviceID),
		client:   client,
		log:      log,
		// 25 °C until the first temperature reading arrives
		temperature: 25,
	}

	f.remove = client.Client.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		if pr.Packet.Topic != f.topic {
			return false, nil
		}
		f.ingest(pr.Packet.Payload)
		return true, nil
	})

	if _, err := client.Client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: f.topic, QoS: 1},
		},
	}); err != nil {
		f.remove()
		return nil, fmt.Errorf("error subscribing calibration feed to %s: %w", f.topic, err)
	}

	return f, nil
}

func (f *LiveFeed) ingest(payload []byte) {
	var data telemetryPayload
	if err := json.Unmarshal(payload, &data); err != nil {
		f.log.Warn("dropping malformed calibration feed message", "device_id", f.deviceID, "error", err)
		return
	}

	var ch *channelPayload
	switch f.sensor {
	case SensorKindPH:
		ch = data.Ph
	case SensorKindTDS:
		ch = data.Tds
	case SensorKindDO:
		ch = data.Do
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if ch != nil {
		if ch.Voltage != nil {
			f.voltage = *ch.Voltage
		}
		if ch.Raw != nil {
			f.raw = *ch.Raw
		}
	}
	if data.Temperature != nil && data.Temperature.Value != nil {
		f.temperature = *data.Temperature.Value
	}
}

func (f *LiveFeed) Voltage() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.voltage
}

func (f *LiveFeed) Raw() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.raw
}

func (f *LiveFeed) Temperature() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.temperature
}

func (f *LiveFeed) Connected() bool {
	return f.client.Connected()
}

// Close removes the message handler and unsubscribes from the topic. Safe to
// call more than once.
func (f *LiveFeed) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.remove()

	if !f.client.Connected() {
		return nil
	}
	if _, err := f.client.Client.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{f.topic},
	}); err != nil {
		return fmt.Errorf("error unsubscribing calibration feed from %s: %w", f.topic, err)
	}
	return nil
}
