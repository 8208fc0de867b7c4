package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// Capture error taxonomy. ErrCameraUnavailable is fatal at startup; the
// capture errors are transient and the caller retries after a short delay.
var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrCaptureTimeout    = errors.New("capture timeout")
	ErrCaptureFailed     = errors.New("capture failed")
)

// Source abstracts the capture device. Two backends implement it: the native
// rpicam backend with full exposure control, and a generic GStreamer frame
// grabber. Callers never see which one they got.
type Source interface {
	// Start acquires the device or fails with ErrCameraUnavailable
	Start(ctx context.Context) error
	// Capture returns the next frame. Failures wrap ErrCaptureTimeout or
	// ErrCaptureFailed and are retryable.
	Capture(ctx context.Context) (types.Frame, error)
	// Reconfigure applies exposure/gain/AWB parameters, blocking until the
	// device has accepted them. The caller owns the settle delay before the
	// next frame is trusted for motion comparison.
	Reconfigure(ctx context.Context, state types.ExposureState) error
	// Stop releases the device. Safe to call multiple times.
	Stop() error
	// Name identifies the backend for logging
	Name() string
}

// Candidate binaries for the native backend, newest naming first.
var rpicamBinaries = []string{"rpicam-still", "libcamera-still"}

// Open selects a backend once at startup. Selection is never re-checked:
// after Open returns, the rest of the pipeline only sees the Source surface.
func Open(cfg config.CameraConfig) (Source, error) {
	switch cfg.Backend {
	case "rpicam":
		bin, err := lookupRpicam()
		if err != nil {
			return nil, fmt.Errorf("rpicam backend requested but no capture binary found: %w", ErrCameraUnavailable)
		}
		return NewRpicam(cfg, bin), nil

	case "grabber":
		return NewGrabber(cfg), nil

	default: // auto
		if bin, err := lookupRpicam(); err == nil {
			slog.Info("camera backend selected", "backend", "rpicam", "binary", bin)
			return NewRpicam(cfg, bin), nil
		}
		slog.Info("rpicam tooling not found, falling back to frame grabber",
			"backend", "grabber",
			"device", cfg.Device,
		)
		return NewGrabber(cfg), nil
	}
}

func lookupRpicam() (string, error) {
	for _, name := range rpicamBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("none of %v found in PATH", rpicamBinaries)
}
