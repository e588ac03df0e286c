package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"simonair-telemetry-service/config"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// ConnectionStatus is the logical transport state surfaced to operators:
// connecting covers both the initial connect and reconnect attempts.
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// MqttClient wraps one autopaho connection manager shared by the ingestion
// channel, calibration feeds and the command channel. Reconnection policy is
// owned by autopaho; this wrapper only tracks and fans out status changes.
type MqttClient struct {
	Client *autopaho.ConnectionManager

	mu        sync.RWMutex
	status    ConnectionStatus
	listeners map[int]func(ConnectionStatus)
	nextID    int
	log       *slog.Logger
}

func NewMqttClient(ctx context.Context, cfg config.MQTTConfig, log *slog.Logger) (*MqttClient, error) {
	u, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("error parsing broker URL: %w", err)
	}

	clientID, err := generateRandomClientID(8)
	if err != nil {
		return nil, fmt.Errorf("error generating client ID: %w", err)
	}

	m := &MqttClient{
		status:    StatusConnecting,
		listeners: make(map[int]func(ConnectionStatus)),
		log:       log,
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		KeepAlive:                     60,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Info("mqtt connected", "broker", cfg.Broker)
			m.setStatus(StatusConnected)
		},
		OnConnectError: func(err error) {
			log.Warn("mqtt connect attempt failed", "error", err)
			m.setStatus(StatusConnecting)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnClientError: func(err error) {
				log.Error("mqtt client error", "error", err)
				m.setStatus(StatusDisconnected)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					log.Warn("server requested disconnect", "reason", d.Properties.ReasonString)
				} else {
					log.Warn("server requested disconnect", "reason_code", d.ReasonCode)
				}
				m.setStatus(StatusDisconnected)
			},
		},
	}

	c, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return nil, fmt.Errorf("error creating MQTT connection: %w", err)
	}

	if err = c.AwaitConnection(ctx); err != nil {
		return nil, fmt.Errorf("error awaiting MQTT connection: %w", err)
	}

	m.Client = c
	return m, nil
}

func (m *MqttClient) Status() ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *MqttClient) Connected() bool {
	return m.Status() == StatusConnected
}

// OnStatusChange registers a listener and returns a function that removes it.
func (m *MqttClient) OnStatusChange(f func(ConnectionStatus)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = f
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *MqttClient) setStatus(s ConnectionStatus) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	listeners := make([]func(ConnectionStatus), 0, len(m.listeners))
	for _, f := range m.listeners {
		listeners = append(listeners, f)
	}
	m.mu.Unlock()

	for _, f := range listeners {
		f(s)
	}
}

func generateRandomClientID(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "simonair-telemetry-service-" + hex.EncodeToString(bytes), nil
}

// DisconnectMQTTClient closes the shared connection gracefully.
func DisconnectMQTTClient(m *MqttClient) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		m.log.Warn("error disconnecting MQTT client", "error", err)
	} else {
		m.log.Info("MQTT client disconnected")
	}
	m.setStatus(StatusDisconnected)
}
