package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/PaulBichl/roxy/internal/emitter"
	"github.com/PaulBichl/roxy/internal/exposure"
	"github.com/PaulBichl/roxy/internal/types"
)

const (
	// loopInterval paces the sensing loop between iterations
	loopInterval = 500 * time.Millisecond
	// captureRetryDelay backs off after a transient capture failure
	captureRetryDelay = 1 * time.Second
	// thumbnailLimit caps the event payload attachment size
	thumbnailLimit = 128 * 1024
)

// runLoop is the single sensing loop. It owns the camera, the exposure state
// and the motion baseline; nothing here is accessed from another goroutine
// except the stats snapshots taken under the orchestrator lock.
func (r *Roxy) runLoop(ctx context.Context) error {
	slog.Info("sensing loop started",
		"interval", loopInterval,
		"strategy", r.cfg.Motion.Strategy,
		"cooldown", r.pipeline.Cooldown(),
	)

	startupSent := !r.cfg.Notify.StartupImage
	var lastLuma float64
	var hasLuma bool

	for {
		select {
		case <-ctx.Done():
			slog.Info("sensing loop stopping", "reason", ctx.Err())
			return nil
		default:
		}

		now := time.Now()

		// Refresh the sun window on its interval, never per iteration
		window := r.sunSched.Window()
		if r.cfg.Exposure.Driver == string(exposure.DriverSchedule) && window.Stale(now) {
			window = r.sunSched.Refresh(now)
			r.mu.Lock()
			r.window = window
			r.mu.Unlock()
		}

		// Exposure decision comes before capture so a transition never lets
		// a pre-transition frame become the baseline for a post-transition
		// comparison
		in := exposure.Input{Window: window, MeanLuma: lastLuma, HasLuma: hasLuma}
		if state, changed := r.exposureCtl.Evaluate(now, in); changed {
			r.applyTransition(ctx, state)
			continue
		}

		frame, err := r.source.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Warn("frame capture failed", "error", err)
			r.mu.Lock()
			r.stats.CaptureErrors++
			r.mu.Unlock()
			sleepCtx(ctx, captureRetryDelay)
			continue
		}

		result, err := r.detector.Process(frame)
		if err != nil {
			slog.Warn("frame processing failed", "error", err, "trace_id", frame.TraceID)
			continue
		}
		lastLuma, hasLuma = result.MeanLuma, true

		r.mu.Lock()
		r.stats.FramesProcessed++
		r.stats.LastFrameAt = now
		r.mu.Unlock()

		if !startupSent {
			r.sendStartupSnapshot(ctx, frame)
			startupSent = true
		}

		if result.Detected && !r.isPausedCheck() {
			r.handleMotion(ctx, frame, result)
		}

		sleepCtx(ctx, loopInterval)
	}
}

// applyTransition reconfigures the device and invalidates the baseline.
// Order matters: the baseline goes first so a reconfiguration failure can
// never leave a comparison spanning the exposure change.
func (r *Roxy) applyTransition(ctx context.Context, state types.ExposureState) {
	r.detector.Invalidate()
	r.detector.SetMode(state.Mode)

	if err := r.source.Reconfigure(ctx, state); err != nil {
		slog.Warn("exposure reconfiguration failed",
			"error", err,
			"mode", string(state.Mode),
		)
	}

	// Let auto-gain and the sensor settle before the next frame is trusted
	sleepCtx(ctx, r.exposureCtl.SettleDelay())

	r.mu.Lock()
	r.stats.ModeTransitions++
	r.mode = state.Mode
	r.mu.Unlock()
}

// handleMotion runs the capture and dispatch path for one positive detection.
// Every failure in here is operational: logged, counted, and survived.
func (r *Roxy) handleMotion(ctx context.Context, frame types.Frame, result types.MotionResult) {
	mode := r.exposureCtl.Mode()

	r.mu.Lock()
	r.stats.MotionEvents++
	r.stats.LastMotionAt = time.Now()
	r.mu.Unlock()

	outcome, suppressed, err := r.pipeline.Process(frame, mode, result.Score)
	if err != nil {
		slog.Error("capture persist failed", "error", err, "trace_id", frame.TraceID)
		return
	}
	if suppressed {
		r.mu.Lock()
		r.stats.CapturesSuppress++
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.stats.CapturesPersisted++
	r.mu.Unlock()

	message := fmt.Sprintf("Motion detected at %s (score %.0f, %s mode)",
		outcome.PersistedAt.Format("2006-01-02 15:04:05"), outcome.Score, mode)

	if res := r.dispatcher.Send(ctx, outcome.ImagePath, message); !res.Delivered {
		slog.Warn("notification dispatch failed", "reason", res.Reason, "event_id", outcome.EventID)
		r.mu.Lock()
		r.stats.NotifyFailures++
		r.mu.Unlock()
	}

	if err := r.emitter.PublishEvent(emitter.MotionEvent{
		EventID:    outcome.EventID,
		InstanceID: r.cfg.InstanceID,
		SiteID:     r.cfg.SiteID,
		Timestamp:  outcome.PersistedAt,
		Mode:       string(mode),
		Strategy:   r.cfg.Motion.Strategy,
		Score:      outcome.Score,
		Thumbnail:  readThumbnail(outcome.ImagePath),
	}); err != nil {
		slog.Warn("event publish failed", "error", err, "event_id", outcome.EventID)
	}
}

// sendStartupSnapshot persists and dispatches the first frame after boot so
// the sink shows the camera came up and what it currently sees. Bypasses the
// cooldown entirely.
func (r *Roxy) sendStartupSnapshot(ctx context.Context, frame types.Frame) {
	outcome, err := r.pipeline.Snapshot(frame, r.exposureCtl.Mode())
	if err != nil {
		slog.Warn("startup snapshot persist failed", "error", err)
		return
	}

	message := fmt.Sprintf("Camera online at %s (%s backend)",
		outcome.PersistedAt.Format("2006-01-02 15:04:05"), r.source.Name())
	if res := r.dispatcher.Send(ctx, outcome.ImagePath, message); !res.Delivered {
		slog.Warn("startup snapshot dispatch failed", "reason", res.Reason)
	}
}

// readThumbnail returns the persisted capture bytes when small enough to ride
// along in the event payload, nil otherwise.
func readThumbnail(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil || len(data) > thumbnailLimit {
		return nil
	}
	return data
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
