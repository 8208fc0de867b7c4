package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// Rpicam is the native backend. It drives the Raspberry Pi camera stack
// through the rpicam-still/libcamera-still utility, capturing one JPEG still
// per Capture call. Exposure, gain and AWB are passed as per-shot arguments,
// which gives this backend full hardware control without holding the device
// open between captures.
type Rpicam struct {
	cfg config.CameraConfig
	bin string

	mu      sync.Mutex
	seq     uint64
	state   *types.ExposureState
	started bool
}

// NewRpicam creates the native backend around the given capture binary.
func NewRpicam(cfg config.CameraConfig, bin string) *Rpicam {
	return &Rpicam{cfg: cfg, bin: bin}
}

// Name identifies the backend
func (r *Rpicam) Name() string { return "rpicam" }

// Start verifies the camera stack can see a sensor. A board without a camera
// is unrecoverable, so failure here maps to ErrCameraUnavailable.
func (r *Rpicam) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("camera already started")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, r.bin, "--list-cameras").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s probe failed: %v (%s)",
			ErrCameraUnavailable, r.bin, err, bytes.TrimSpace(out))
	}

	r.started = true
	slog.Info("rpicam backend started",
		"binary", r.bin,
		"resolution", fmt.Sprintf("%dx%d", r.cfg.Width, r.cfg.Height),
	)
	return nil
}

// Capture invokes the still utility once and returns the JPEG it produced.
func (r *Rpicam) Capture(ctx context.Context) (types.Frame, error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return types.Frame{}, fmt.Errorf("%w: backend not started", ErrCaptureFailed)
	}
	args := r.captureArgs()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	timeout := time.Duration(r.cfg.CaptureTimeoutS) * time.Second
	capCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(capCtx, r.bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(capCtx.Err(), context.DeadlineExceeded) {
			return types.Frame{}, fmt.Errorf("%w after %s", ErrCaptureTimeout, timeout)
		}
		return types.Frame{}, fmt.Errorf("%w: %v (%s)",
			ErrCaptureFailed, err, bytes.TrimSpace(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return types.Frame{}, fmt.Errorf("%w: empty capture output", ErrCaptureFailed)
	}

	return types.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     r.cfg.Width,
		Height:    r.cfg.Height,
		Format:    types.FormatJPEG,
		Data:      stdout.Bytes(),
		TraceID:   uuid.New().String(),
	}, nil
}

// Reconfigure swaps the live exposure state. The new parameters apply to
// every subsequent invocation; because the utility opens the device fresh per
// shot there is nothing to acknowledge beyond storing the state atomically.
func (r *Rpicam) Reconfigure(ctx context.Context, state types.ExposureState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return fmt.Errorf("cannot reconfigure stopped camera")
	}

	s := state
	r.state = &s

	slog.Info("rpicam reconfigured",
		"mode", state.Mode,
		"exposure_us", state.ExposureTimeUs,
		"gain", state.AnalogueGain,
		"auto_exposure", state.AutoExposure,
		"awb", state.AutoWhiteBalance,
	)
	return nil
}

// Stop releases the backend. Idempotent: a second call is a no-op.
func (r *Rpicam) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return nil
	}
	r.started = false
	slog.Info("rpicam backend stopped", "frames_captured", r.seq)
	return nil
}

// captureArgs builds the per-shot argument list. Caller holds the lock.
func (r *Rpicam) captureArgs() []string {
	args := []string{
		"--nopreview",
		"--immediate",
		"--output", "-",
		"--encoding", "jpg",
		"--width", strconv.Itoa(r.cfg.Width),
		"--height", strconv.Itoa(r.cfg.Height),
	}

	if s := r.state; s != nil && !s.AutoExposure {
		args = append(args,
			"--shutter", strconv.Itoa(s.ExposureTimeUs),
			"--gain", strconv.FormatFloat(s.AnalogueGain, 'f', 2, 64),
		)
		if !s.AutoWhiteBalance {
			// Fixed neutral gains keep frames comparable across captures
			args = append(args, "--awbgains", "1.0,1.0")
		}
	}
	return args
}
