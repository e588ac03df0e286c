package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"simonair-telemetry-service/config"
	"simonair-telemetry-service/internal/services"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/redis/go-redis/v9"
)

// Service owns the telemetry ingestion channel: the wildcard subscription,
// the parser/reducer pipeline and the observer fan-out. A single processing
// goroutine drains the inbound channel so per-device updates apply in arrival
// order, and the ingestion path stays the sole writer of "data arrived"
// updates.
type Service struct {
	ctx            context.Context
	mqttClient     *services.MqttClient
	redisClient    *services.Redis
	registryClient *services.Registry
	store          *StateStore
	liveness       *LivenessMonitor
	commands       *CommandChannel
	cfg            *config.Config
	log            *slog.Logger

	messageChan  chan MqttMessage
	messageCount atomic.Int64

	mu            sync.Mutex
	observers     map[int]func(map[string]DeviceState)
	nextObserver  int
	removeHandler func()
}

func NewService(ctx context.Context, mqttClient *services.MqttClient, redisClient *services.Redis, registryClient *services.Registry, cfg *config.Config, log *slog.Logger) *Service {
	s := &Service{
		ctx:            ctx,
		mqttClient:     mqttClient,
		redisClient:    redisClient,
		registryClient: registryClient,
		store:          NewStateStore(),
		cfg:            cfg,
		log:            log,
		messageChan:    make(chan MqttMessage, 1000),
		observers:      make(map[int]func(map[string]DeviceState)),
	}
	s.liveness = NewLivenessMonitor(s.store, cfg.Monitor.StalenessWindow, cfg.Monitor.SweepInterval, s.emitState, log)
	s.commands = NewCommandChannel(mqttClient, cfg.MQTT.TopicPrefix, cfg.Calibration.PublishTimeout, log)
	return s
}

func (s *Service) Start() error {
	if err := s.subscribeToTelemetry(); err != nil {
		return err
	}
	s.addPublishHandler()

	go s.processMessages()
	go s.liveness.Run(s.ctx)

	go func() {
		ticker := time.NewTicker(time.Second * 15)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				count := s.messageCount.Swap(0)
				s.log.Info("telemetry throughput", "messages_per_15s", count)
			}
		}
	}()

	return nil
}

// Close tears down the ingestion channel: the message handler is removed and
// the wildcard subscription released. The transport itself is closed by the
// caller once every consumer is done with it.
func (s *Service) Close(ctx context.Context) {
	if s.removeHandler != nil {
		s.removeHandler()
	}
	if s.mqttClient.Connected() {
		if _, err := s.mqttClient.Client.Unsubscribe(ctx, &paho.Unsubscribe{
			Topics: []string{telemetryWildcard(s.cfg.MQTT.TopicPrefix)},
		}); err != nil {
			s.log.Warn("error unsubscribing telemetry topic", "error", err)
		}
	}
}

// Commands exposes the shared command channel to calibration and threshold
// flows.
func (s *Service) Commands() *CommandChannel {
	return s.commands
}

// Subscribe registers an observer that receives every state snapshot. The
// returned function removes it.
func (s *Service) Subscribe(observer func(map[string]DeviceState)) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = observer
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// ConnectionStatus reports the logical transport state for the operator's
// connection indicator.
func (s *Service) ConnectionStatus() services.ConnectionStatus {
	return s.mqttClient.Status()
}

// Snapshot returns the current device state map, read-only.
func (s *Service) Snapshot() map[string]DeviceState {
	return s.store.Snapshot()
}

// OpenLiveFeed opens a calibration reading cursor for one device and sensor
// kind, multiplexed over the shared connection.
func (s *Service) OpenLiveFeed(ctx context.Context, deviceID string, sensor SensorKind) (*LiveFeed, error) {
	return OpenLiveFeed(ctx, s.mqttClient, s.cfg.MQTT.TopicPrefix, deviceID, sensor, s.log)
}

// NewPhSession starts a pH calibration session against a live feed.
func (s *Service) NewPhSession(deviceID string, feed ReadingSource) *PhCalibration {
	return NewPhCalibration(deviceID, feed, s.commands, s.cfg.Calibration.DuplicateTolerance)
}

// NewTdsSession starts a TDS calibration session against a live feed.
func (s *Service) NewTdsSession(deviceID string, feed ReadingSource) *TdsCalibration {
	return NewTdsCalibration(deviceID, feed, s.commands)
}

// NewDoSession starts a dissolved-oxygen calibration session against a live
// feed.
func (s *Service) NewDoSession(deviceID string, feed ReadingSource) *DoCalibration {
	return NewDoCalibration(deviceID, feed, s.commands)
}

// SubmitThresholds publishes a validated threshold configuration to a
// device.
func (s *Service) SubmitThresholds(ctx context.Context, deviceID string, set ThresholdSet) error {
	return SubmitThresholds(ctx, s.commands, deviceID, set)
}

func (s *Service) subscribeToTelemetry() error {
	_, err := s.mqttClient.Client.Subscribe(s.ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: telemetryWildcard(s.cfg.MQTT.TopicPrefix), QoS: 1},
		},
	})
	return err
}

func (s *Service) addPublishHandler() {
	s.removeHandler = s.mqttClient.Client.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		select {
		case s.messageChan <- MqttMessage{Topic: pr.Packet.Topic, Payload: pr.Packet.Payload}:
		default:
			s.log.Warn("telemetry channel full, dropping message", "topic", pr.Packet.Topic)
		}
		return true, nil
	})
}

func (s *Service) processMessages() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.messageChan:
			s.messageCount.Add(1)
			s.handleTelemetry(msg.Topic, msg.Payload)
		}
	}
}

func (s *Service) handleTelemetry(topic string, payload []byte) {
	deviceID, err := extractDeviceID(topic, s.cfg.MQTT.TopicPrefix)
	if err != nil {
		// Not a telemetry topic (calibration echoes etc.), drop silently.
		return
	}

	readings, err := ParseTelemetry(payload)
	if err != nil {
		s.log.Warn("dropping malformed telemetry message", "device_id", deviceID, "error", err)
		return
	}

	_, known := s.store.Device(deviceID)
	snapshot := s.store.ApplyReadings(deviceID, readings, time.Now())
	s.emitState(snapshot, deviceID)

	if !known {
		go s.resolveDisplayName(deviceID)
	}
}

// resolveDisplayName upgrades the first-seen default name with the registry
// alias, going through the Redis cache first. Best effort: an unknown device
// keeps its default name.
func (s *Service) resolveDisplayName(deviceID string) {
	device, err := s.getDeviceFromCacheOrRegistry(deviceID)
	if err != nil {
		if !errors.Is(err, services.ErrDeviceNotFound) {
			s.log.Warn("error resolving device name", "device_id", deviceID, "error", err)
		}
		return
	}
	if device.Alias == "" {
		return
	}
	if snapshot := s.store.SetDisplayName(deviceID, device.Alias); snapshot != nil {
		s.emitState(snapshot, deviceID)
	}
}

func (s *Service) getDeviceFromCacheOrRegistry(deviceID string) (*services.RegisteredDevice, error) {
	cacheKey := "device/" + deviceID
	result, err := s.redisClient.Rdb.Get(s.ctx, cacheKey).Result()
	if err == redis.Nil {
		device, err := s.registryClient.GetDevice(deviceID)
		if err != nil {
			return nil, err
		}
		if jsonDevice, err := json.Marshal(device); err == nil {
			s.redisClient.Rdb.Set(s.ctx, cacheKey, jsonDevice, s.cfg.Registry.CacheTTL)
		}
		return device, nil
	} else if err != nil {
		return nil, err
	}

	var device services.RegisteredDevice
	if err := json.Unmarshal([]byte(result), &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// emitState fans a snapshot out to in-process observers and to Redis: the
// latest per-device state is SET for UI reads and a change event published
// for UI subscriptions.
func (s *Service) emitState(snapshot map[string]DeviceState, changed ...string) {
	s.mu.Lock()
	observers := make([]func(map[string]DeviceState), 0, len(s.observers))
	for _, f := range s.observers {
		observers = append(observers, f)
	}
	s.mu.Unlock()

	for _, f := range observers {
		f(snapshot)
	}

	for _, id := range changed {
		state, ok := snapshot[id]
		if !ok {
			continue
		}
		stateJSON, err := json.Marshal(state)
		if err != nil {
			continue
		}
		s.redisClient.Rdb.Set(s.ctx, "device_state/"+id, stateJSON, 0)

		event := map[string]interface{}{
			"device_id": id,
			"state":     state,
		}
		if eventJSON, err := json.Marshal(event); err == nil {
			s.redisClient.Rdb.Publish(s.ctx, "telemetry:state", eventJSON)
		}
	}
}
