// Package emitter publishes motion events and health heartbeats to an
// optional MQTT broker. Events carry a binary thumbnail, so they are encoded
// with msgpack rather than JSON; health heartbeats stay JSON for easy
// consumption by dashboards.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/PaulBichl/roxy/internal/config"
)

// MotionEvent is the wire form of one accepted capture.
type MotionEvent struct {
	EventID    string    `msgpack:"event_id"`
	InstanceID string    `msgpack:"instance_id"`
	SiteID     string    `msgpack:"site_id"`
	Timestamp  time.Time `msgpack:"timestamp"`
	Mode       string    `msgpack:"mode"`
	Strategy   string    `msgpack:"strategy"`
	Score      float64   `msgpack:"score"`
	// Thumbnail is a small JPEG of the persisted capture, may be empty
	Thumbnail []byte `msgpack:"thumbnail,omitempty"`
}

// MQTTEmitter publishes to the configured broker. With no broker configured
// every publish is a silent no-op.
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for the control plane

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter; call Connect before publishing.
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
	}
}

// Enabled reports whether a broker is configured.
func (e *MQTTEmitter) Enabled() bool {
	return e.cfg.MQTT.Broker != ""
}

// Connect establishes the broker connection with auto-reconnect.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	if !e.Enabled() {
		slog.Info("mqtt disabled (no broker configured)")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.MQTT.Broker))
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
		)
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// PublishEvent publishes one motion event to the events topic.
func (e *MQTTEmitter) PublishEvent(event MotionEvent) error {
	if !e.Enabled() {
		return nil
	}
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := msgpack.Marshal(event)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal motion event: %w", err)
	}

	topic := e.cfg.MQTT.Topics.Events
	qos := e.cfg.MQTT.QoS["events"]

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("motion event published",
		"topic", topic,
		"event_id", event.EventID,
		"size", len(payload),
	)
	return nil
}

// PublishHealth publishes a JSON health payload.
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	if !e.Enabled() {
		return nil
	}
	if !e.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	topic := e.cfg.MQTT.Topics.Health
	qos := e.cfg.MQTT.QoS["health"]

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	return token.Error()
}

// Disconnect closes the broker connection.
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
