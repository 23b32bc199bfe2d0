package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/types"
)

// MQTTSink publishes alert events as JSON to a broker topic.
type MQTTSink struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
}

func NewMQTTSink(cfg config.MQTTConfig) *MQTTSink {
	return &MQTTSink{cfg: cfg}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Connect establishes the broker connection. The client keeps reconnecting on
// its own afterwards.
func (s *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.setConnected(true)
		log.Info().Str("broker", s.cfg.Broker).Str("client_id", s.cfg.ClientID).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.setConnected(false)
		log.Warn().Err(err).Str("broker", s.cfg.Broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	s.setConnected(true)
	return nil
}

func (s *MQTTSink) Send(ctx context.Context, ev types.AlertEvent) error {
	if !s.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish timeout: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	log.Debug().Str("topic", s.cfg.Topic).Int("size", len(payload)).Msg("alert published")
	return nil
}

// Disconnect closes the broker connection with a short grace period.
func (s *MQTTSink) Disconnect() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
		log.Info().Msg("mqtt disconnected")
	}
	s.setConnected(false)
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}
