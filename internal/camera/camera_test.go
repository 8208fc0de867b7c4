package camera

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

func testCameraConfig() config.CameraConfig {
	return config.CameraConfig{
		Backend:         "auto",
		Device:          "/dev/video0",
		Width:           1280,
		Height:          960,
		Sensor:          "standard",
		CaptureTimeoutS: 5,
	}
}

func TestOpenExplicitGrabber(t *testing.T) {
	cfg := testCameraConfig()
	cfg.Backend = "grabber"

	src, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src.Name() != "grabber" {
		t.Errorf("Name() = %q, want grabber", src.Name())
	}
}

func TestOpenRpicamWithoutBinary(t *testing.T) {
	// An empty PATH guarantees the probe finds nothing
	t.Setenv("PATH", "")

	cfg := testCameraConfig()
	cfg.Backend = "rpicam"

	if _, err := Open(cfg); !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("Open() error = %v, want ErrCameraUnavailable", err)
	}
}

func TestOpenAutoFallsBackToGrabber(t *testing.T) {
	t.Setenv("PATH", "")

	src, err := Open(testCameraConfig())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src.Name() != "grabber" {
		t.Errorf("auto selection without rpicam tooling gave %q, want grabber", src.Name())
	}
}

func TestRpicamStopIdempotent(t *testing.T) {
	r := NewRpicam(testCameraConfig(), "rpicam-still")

	// Stop before Start and repeated Stop are both no-ops
	for i := 0; i < 3; i++ {
		if err := r.Stop(); err != nil {
			t.Errorf("Stop() call %d error = %v", i+1, err)
		}
	}
}

func TestRpicamCaptureBeforeStart(t *testing.T) {
	r := NewRpicam(testCameraConfig(), "rpicam-still")

	_, err := r.Capture(context.Background())
	if !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("Capture() before Start error = %v, want ErrCaptureFailed", err)
	}
}

func TestRpicamCaptureArgs(t *testing.T) {
	r := NewRpicam(testCameraConfig(), "rpicam-still")

	t.Run("no exposure state", func(t *testing.T) {
		args := strings.Join(r.captureArgs(), " ")
		if !strings.Contains(args, "--width 1280") || !strings.Contains(args, "--height 960") {
			t.Errorf("args missing resolution: %s", args)
		}
		if strings.Contains(args, "--shutter") {
			t.Errorf("args carry manual exposure without a state: %s", args)
		}
	})

	t.Run("manual night exposure", func(t *testing.T) {
		r.state = &types.ExposureState{
			Mode:           types.ModeNight,
			ExposureTimeUs: 50000,
			AnalogueGain:   8.0,
			TransitionedAt: time.Now(),
		}

		args := strings.Join(r.captureArgs(), " ")
		if !strings.Contains(args, "--shutter 50000") {
			t.Errorf("args missing shutter: %s", args)
		}
		if !strings.Contains(args, "--gain 8.00") {
			t.Errorf("args missing gain: %s", args)
		}
		if !strings.Contains(args, "--awbgains 1.0,1.0") {
			t.Errorf("args missing fixed awb gains: %s", args)
		}
	})

	t.Run("auto exposure", func(t *testing.T) {
		r.state = &types.ExposureState{
			Mode:         types.ModeDay,
			AutoExposure: true,
		}

		args := strings.Join(r.captureArgs(), " ")
		if strings.Contains(args, "--shutter") || strings.Contains(args, "--gain") {
			t.Errorf("auto exposure still passes manual flags: %s", args)
		}
	})
}

func TestGrabberStopIdempotent(t *testing.T) {
	g := NewGrabber(testCameraConfig())

	// A grabber that never started has no pipeline to tear down
	for i := 0; i < 3; i++ {
		if err := g.Stop(); err != nil {
			t.Errorf("Stop() call %d error = %v", i+1, err)
		}
	}
}

func TestGrabberReconfigureBeforeStart(t *testing.T) {
	g := NewGrabber(testCameraConfig())

	err := g.Reconfigure(context.Background(), types.ExposureState{Mode: types.ModeNight})
	if err == nil {
		t.Error("Reconfigure() before Start should fail")
	}
}
