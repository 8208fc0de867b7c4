// Package notify uploads captures to a webhook-style sink as a multipart
// POST with a binary "file" field and a text "content" field.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// Dispatcher sends at most one attempt per triggered capture. Delivery
// failure is an operational event, never fatal to the loop.
type Dispatcher struct {
	cfg    config.NotifyConfig
	client *http.Client
}

// NewDispatcher creates a dispatcher with a bounded request timeout.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	return &Dispatcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutS) * time.Second,
		},
	}
}

// Enabled reports whether a sink is configured.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.Enabled
}

// Send uploads the persisted image with the given message. A disabled sink
// is a no-op success. All failures come back in the result, not as errors
// that could unwind the loop.
func (d *Dispatcher) Send(ctx context.Context, imagePath, message string) types.NotificationResult {
	if !d.cfg.Enabled {
		return types.NotificationResult{Delivered: true}
	}

	body, contentType, err := buildMultipart(imagePath, message)
	if err != nil {
		slog.Error("failed to build notification payload", "error", err, "image", imagePath)
		return types.NotificationResult{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, body)
	if err != nil {
		slog.Error("failed to build notification request", "error", err)
		return types.NotificationResult{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Warn("notification transport failed", "error", err)
		return types.NotificationResult{Reason: fmt.Sprintf("transport: %v", err)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("notification rejected by sink", "status", resp.StatusCode)
		return types.NotificationResult{Reason: fmt.Sprintf("sink returned %d", resp.StatusCode)}
	}

	slog.Info("notification delivered", "status", resp.StatusCode, "image", imagePath)
	return types.NotificationResult{Delivered: true}
}

// buildMultipart assembles the two-field form the sink expects.
func buildMultipart(imagePath, message string) (*bytes.Buffer, string, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file field: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return nil, "", fmt.Errorf("failed to write file field: %w", err)
	}

	if err := w.WriteField("content", message); err != nil {
		return nil, "", fmt.Errorf("failed to write content field: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
