package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PaulBichl/roxy/internal/camera"
	"github.com/PaulBichl/roxy/internal/capture"
	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/control"
	"github.com/PaulBichl/roxy/internal/emitter"
	"github.com/PaulBichl/roxy/internal/exposure"
	"github.com/PaulBichl/roxy/internal/motion"
	"github.com/PaulBichl/roxy/internal/notify"
	"github.com/PaulBichl/roxy/internal/sun"
	"github.com/PaulBichl/roxy/internal/types"
)

// Roxy is the service orchestrator. One sensing loop owns the camera, the
// exposure state and the motion baseline; everything else (health server,
// heartbeat, control plane) observes through the orchestrator's lock.
type Roxy struct {
	cfg *config.Config

	// Core components
	source         camera.Source
	sunSched       *sun.Scheduler
	exposureCtl    *exposure.Controller
	detector       *motion.Detector
	pipeline       *capture.Pipeline
	dispatcher     *notify.Dispatcher
	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	isPaused  bool
	cancelRun context.CancelFunc // for MQTT shutdown command

	// Observability snapshots, written by the loop under mu
	stats  types.LoopStats
	window types.SunWindow
	mode   types.ExposureMode
}

// NewRoxy creates the service from a configuration file.
func NewRoxy(configPath string) (*Roxy, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"site_id", cfg.SiteID,
		"exposure_driver", cfg.Exposure.Driver,
		"motion_strategy", cfg.Motion.Strategy,
	)

	source, err := camera.Open(cfg.Camera)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera backend: %w", err)
	}

	detector, err := motion.NewDetector(cfg.Motion)
	if err != nil {
		return nil, fmt.Errorf("failed to create motion detector: %w", err)
	}

	return &Roxy{
		cfg:         cfg,
		source:      source,
		sunSched:    sun.NewScheduler(cfg.Sun),
		exposureCtl: exposure.NewController(cfg.Exposure),
		detector:    detector,
		pipeline:    capture.NewPipeline(cfg.Capture, cfg.Camera.Sensor),
		dispatcher:  notify.NewDispatcher(cfg.Notify),
		emitter:     emitter.NewMQTTEmitter(cfg),
	}, nil
}

// Run starts the service and blocks in the sensing loop until the context
// is cancelled. Camera initialization failure is the only fatal outcome.
func (r *Roxy) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	r.isRunning = true
	r.started = time.Now()
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancelRun = cancel
	r.mu.Unlock()

	slog.Info("roxy service starting",
		"instance_id", r.cfg.InstanceID,
		"camera_backend", r.source.Name(),
	)

	// Camera is the one dependency the service cannot degrade around
	if err := r.source.Start(ctx); err != nil {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		return fmt.Errorf("failed to start camera: %w", err)
	}

	// MQTT is optional infrastructure: a broker outage degrades, never aborts
	if r.emitter.Enabled() {
		if err := r.emitter.Connect(ctx); err != nil {
			slog.Warn("mqtt connect failed, continuing without event emission",
				"error", err,
			)
		} else {
			r.controlHandler = control.NewHandler(r.cfg, r.emitter.Client, control.CommandCallbacks{
				OnGetStatus: r.getStatus,
				OnPause:     r.pause,
				OnResume:    r.resume,
				OnShutdown:  r.shutdownViaControl,
			})
			if err := r.controlHandler.Start(ctx); err != nil {
				slog.Warn("control plane start failed", "error", err)
				r.controlHandler = nil
			}

			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.heartbeat(ctx, 30*time.Second)
			}()
		}
	}

	slog.Info("roxy service running")

	err := r.runLoop(ctx)

	slog.Info("roxy service run loop exiting")
	return err
}

// Shutdown performs graceful teardown of all components.
func (r *Roxy) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	slog.Info("shutting down roxy service")

	// The loop has already exited by the time Shutdown runs; release the
	// camera first so no reconfiguration can be left pending
	if err := r.source.Stop(); err != nil {
		slog.Error("failed to stop camera", "error", err)
	}

	if r.controlHandler != nil {
		if err := r.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	slog.Info("waiting for goroutines to finish")
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown timeout waiting for goroutines")
	}

	if err := r.emitter.Disconnect(); err != nil {
		slog.Error("failed to disconnect mqtt", "error", err)
	}

	r.detector.Close()

	r.mu.Lock()
	uptime := time.Since(r.started)
	r.isRunning = false
	r.mu.Unlock()

	slog.Info("roxy service shutdown complete", "uptime", uptime)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout,
// defaulting to 5 seconds.
func (r *Roxy) ShutdownTimeout() time.Duration {
	timeout := time.Duration(r.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 5 * time.Second
	}
	return timeout
}

// pause suspends detection and dispatch; the loop keeps cycling so exposure
// control stays current.
func (r *Roxy) pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isPaused {
		return fmt.Errorf("already paused")
	}
	r.isPaused = true
	slog.Info("detection paused")
	return nil
}

func (r *Roxy) resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isPaused {
		return fmt.Errorf("not paused")
	}
	r.isPaused = false
	slog.Info("detection resumed")
	return nil
}

func (r *Roxy) isPausedCheck() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isPaused
}

// shutdownViaControl cancels the run context on an MQTT shutdown command.
func (r *Roxy) shutdownViaControl() error {
	r.mu.RLock()
	cancel := r.cancelRun
	r.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service not running")
	}
	slog.Info("shutdown requested via control plane")
	cancel()
	return nil
}

// getStatus builds the control plane status payload.
func (r *Roxy) getStatus() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]interface{}{
		"instance_id": r.cfg.InstanceID,
		"site_id":     r.cfg.SiteID,
		"uptime_s":    time.Since(r.started).Seconds(),
		"running":     r.isRunning,
		"paused":      r.isPaused,
		"mode":        string(r.mode),
		"camera": map[string]interface{}{
			"backend":    r.source.Name(),
			"resolution": fmt.Sprintf("%dx%d", r.cfg.Camera.Width, r.cfg.Camera.Height),
			"sensor":     r.cfg.Camera.Sensor,
		},
		"loop": map[string]interface{}{
			"frames_processed":   r.stats.FramesProcessed,
			"capture_errors":     r.stats.CaptureErrors,
			"motion_events":      r.stats.MotionEvents,
			"captures_persisted": r.stats.CapturesPersisted,
			"captures_suppressed": r.stats.CapturesSuppress,
			"notify_failures":    r.stats.NotifyFailures,
			"mode_transitions":   r.stats.ModeTransitions,
		},
	}

	if !r.window.IsZero() {
		status["sun_window"] = map[string]interface{}{
			"sunrise":     r.window.Sunrise.Format(time.RFC3339),
			"sunset":      r.window.Sunset.Format(time.RFC3339),
			"computed_at": r.window.ComputedAt.Format(time.RFC3339),
		}
	}

	return status
}
