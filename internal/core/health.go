package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the roxy service
type HealthStatus struct {
	Status          string `json:"status"` // "healthy", "degraded", "unhealthy"
	InstanceID      string `json:"instance_id"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	CameraBackend   string `json:"camera_backend"`
	Mode            string `json:"mode"`
	Paused          bool   `json:"paused"`
	MQTTConnected   bool   `json:"mqtt_connected"`
	FramesProcessed uint64 `json:"frames_processed"`
	CaptureErrors   uint64 `json:"capture_errors"`
	MotionEvents    uint64 `json:"motion_events"`
	LastFrameAt     string `json:"last_frame_at,omitempty"`
	LastMotionAt    string `json:"last_motion_at,omitempty"`
}

// HealthCheck returns the current health status of the service
func (r *Roxy) HealthCheck() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := HealthStatus{
		Status:          "healthy",
		InstanceID:      r.cfg.InstanceID,
		UptimeSeconds:   int64(time.Since(r.started).Seconds()),
		CameraBackend:   r.source.Name(),
		Mode:            string(r.mode),
		Paused:          r.isPaused,
		FramesProcessed: r.stats.FramesProcessed,
		CaptureErrors:   r.stats.CaptureErrors,
		MotionEvents:    r.stats.MotionEvents,
	}

	if !r.stats.LastFrameAt.IsZero() {
		status.LastFrameAt = r.stats.LastFrameAt.Format(time.RFC3339)
	}
	if !r.stats.LastMotionAt.IsZero() {
		status.LastMotionAt = r.stats.LastMotionAt.Format(time.RFC3339)
	}

	if r.emitter != nil && r.emitter.Client != nil && r.emitter.Client.IsConnected() {
		status.MQTTConnected = true
	}

	// A loop that has not produced a frame in a minute is wedged or the
	// camera is gone; MQTT being down only degrades
	if !r.isRunning {
		status.Status = "unhealthy"
	} else if !r.stats.LastFrameAt.IsZero() && time.Since(r.stats.LastFrameAt) > time.Minute {
		status.Status = "unhealthy"
	} else if r.emitter.Enabled() && !status.MQTTConnected {
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health (simple liveness check)
func (r *Roxy) LivenessHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(r.started).Seconds()),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles /readiness (detailed readiness check)
func (r *Roxy) ReadinessHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := r.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// StartHealthServer starts the HTTP health check server on the given port.
// Non-blocking; the server lives for the process lifetime.
func (r *Roxy) StartHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", r.LivenessHandler)
	mux.HandleFunc("/readiness", r.ReadinessHandler)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}

// heartbeat publishes the health status over MQTT on a fixed interval.
func (r *Roxy) heartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(r.HealthCheck())
			if err != nil {
				slog.Error("failed to marshal health heartbeat", "error", err)
				continue
			}
			if err := r.emitter.PublishHealth(payload); err != nil {
				slog.Debug("health heartbeat publish failed", "error", err)
			}
		}
	}
}
