package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// testFrame builds a small BGR frame with a gradient so JPEG encoding has
// something to chew on.
func testFrame() types.Frame {
	w, h := 64, 48
	data := make([]byte, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * 3
			data[off] = byte(x * 4)
			data[off+1] = byte(y * 5)
			data[off+2] = 128
		}
	}
	return types.Frame{
		Seq:    1,
		Width:  w,
		Height: h,
		Format: types.FormatBGR24,
		Data:   data,
	}
}

// fixedClock returns a clock the test can advance.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now },
		func(d time.Duration) { now = now.Add(d) }
}

func newTestPipeline(t *testing.T, sensor string) (*Pipeline, func(time.Duration)) {
	t.Helper()
	p := NewPipeline(config.CaptureConfig{
		CooldownS: 10,
		ImagePath: filepath.Join(t.TempDir(), "motion.jpg"),
	}, sensor)

	clock, advance := fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	p.Clock = clock
	return p, advance
}

func TestPipelineCooldown(t *testing.T) {
	p, advance := newTestPipeline(t, "standard")
	frame := testFrame()

	outcome, suppressed, err := p.Process(frame, types.ModeDay, 1500)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if suppressed {
		t.Fatal("first capture must not be suppressed")
	}
	if outcome.EventID == "" {
		t.Error("accepted capture should carry an event id")
	}
	if _, err := os.Stat(outcome.ImagePath); err != nil {
		t.Errorf("persisted image missing: %v", err)
	}

	// Two seconds later: inside the 10s cooldown
	advance(2 * time.Second)
	_, suppressed, err = p.Process(frame, types.ModeDay, 1500)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !suppressed {
		t.Error("capture 2s after the last persist should be suppressed")
	}

	// Nine more seconds: 11s since the persist, cooldown has elapsed
	advance(9 * time.Second)
	_, suppressed, err = p.Process(frame, types.ModeDay, 1500)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if suppressed {
		t.Error("capture 11s after the last persist should be accepted")
	}
}

func TestPipelineFailedPersistDoesNotAdvanceCooldown(t *testing.T) {
	p := NewPipeline(config.CaptureConfig{
		CooldownS: 10,
		ImagePath: filepath.Join(t.TempDir(), "missing-dir", "motion.jpg"),
	}, "standard")
	clock, advance := fixedClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	p.Clock = clock

	frame := testFrame()

	if _, _, err := p.Process(frame, types.ModeDay, 1500); err == nil {
		t.Fatal("Process() into a missing directory should fail")
	}

	// One second later: had the failed attempt advanced the cooldown this
	// would be suppressed; it must be attempted again instead
	advance(1 * time.Second)
	_, suppressed, err := p.Process(frame, types.ModeDay, 1500)
	if err == nil {
		t.Fatal("Process() into a missing directory should fail")
	}
	if suppressed {
		t.Error("failed persist must not start the cooldown")
	}
}

func TestPipelineSnapshotBypassesCooldown(t *testing.T) {
	p, advance := newTestPipeline(t, "standard")
	frame := testFrame()

	if _, err := p.Snapshot(frame, types.ModeDay); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	// A snapshot neither consults nor starts the cooldown
	advance(1 * time.Second)
	_, suppressed, err := p.Process(frame, types.ModeDay, 1500)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if suppressed {
		t.Error("snapshot should not have started the cooldown")
	}
}

func TestPipelineNightEnhancement(t *testing.T) {
	tests := []struct {
		name   string
		sensor string
		mode   types.ExposureMode
	}{
		{"day passthrough", "standard", types.ModeDay},
		{"night gamma lift", "standard", types.ModeNight},
		{"night noir equalization", "noir", types.ModeNight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPipeline(t, tt.sensor)

			outcome, suppressed, err := p.Process(testFrame(), tt.mode, 1500)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if suppressed {
				t.Fatal("first capture must not be suppressed")
			}

			info, err := os.Stat(outcome.ImagePath)
			if err != nil {
				t.Fatalf("persisted image missing: %v", err)
			}
			if info.Size() == 0 {
				t.Error("persisted image is empty")
			}
			if outcome.Mode != tt.mode {
				t.Errorf("outcome.Mode = %q, want %q", outcome.Mode, tt.mode)
			}
		})
	}
}

func TestPipelineRejectsUnknownFormat(t *testing.T) {
	p, _ := newTestPipeline(t, "standard")

	frame := testFrame()
	frame.Format = types.FrameFormat("YUYV")

	if _, _, err := p.Process(frame, types.ModeDay, 100); err == nil {
		t.Error("Process() accepted an unsupported frame format")
	}
}
