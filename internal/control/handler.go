// Package control implements the MQTT command plane: status queries plus
// pause/resume/shutdown of the sensing loop.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/PaulBichl/roxy/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command acknowledgement
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// CommandCallbacks contains the hooks the orchestrator wires in
type CommandCallbacks struct {
	OnGetStatus func() map[string]interface{}
	OnPause     func() error
	OnResume    func() error
	OnShutdown  func() error
}

// Handler subscribes to the control topic and dispatches commands.
type Handler struct {
	cfg       *config.Config
	client    mqtt.Client
	commands  chan Command
	callbacks CommandCallbacks
}

// NewHandler creates a control plane handler
func NewHandler(cfg *config.Config, client mqtt.Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}
}

// Start subscribes to the control topic and begins processing commands.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	go h.processCommands(ctx)

	slog.Info("control plane handler started")
	return nil
}

// Stop unsubscribes and stops command processing.
func (h *Handler) Stop() error {
	topic := h.cfg.MQTT.Topics.Control

	if h.client != nil && h.client.IsConnected() {
		token := h.client.Unsubscribe(topic)
		token.Wait()
	}

	close(h.commands)

	slog.Info("control plane handler stopped")
	return nil
}

// messageHandler is called when a control message arrives
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

// processCommands drains the command queue
func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.handleCommand(cmd)
		}
	}
}

func (h *Handler) handleCommand(cmd Command) {
	resp := Response{CommandAck: cmd.Command, Status: "ok"}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus != nil {
			resp.Data = h.callbacks.OnGetStatus()
		}

	case "pause":
		if err := h.invoke(h.callbacks.OnPause); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		}

	case "resume":
		if err := h.invoke(h.callbacks.OnResume); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		}

	case "shutdown":
		if err := h.invoke(h.callbacks.OnShutdown); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
		}

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command %q", cmd.Command)
	}

	h.sendResponse(resp)
}

func (h *Handler) invoke(fn func() error) error {
	if fn == nil {
		return fmt.Errorf("command not supported")
	}
	return fn()
}

// sendResponse publishes the acknowledgement on the control ack topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal command response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Control + "/ack"
	qos := h.cfg.MQTT.QoS["control"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Warn("command response publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		slog.Warn("command response publish failed", "topic", topic, "error", err)
	}
}
