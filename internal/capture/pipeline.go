// Package capture turns positive detections into persisted images: cooldown
// rate limiting, per-mode enhancement, and a single transient output file.
package capture

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// nightGamma lifts shadows in low-light captures on the standard sensor
const nightGamma = 0.6

// Pipeline persists motion captures. Owned by the sensing loop.
type Pipeline struct {
	cfg    config.CaptureConfig
	sensor string // standard or noir

	// Clock is injectable for cooldown tests; defaults to time.Now
	Clock func() time.Time

	lastPersist time.Time
}

// NewPipeline creates a capture pipeline.
func NewPipeline(cfg config.CaptureConfig, sensor string) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		sensor: sensor,
		Clock:  time.Now,
	}
}

// Cooldown returns the configured minimum spacing between accepted captures.
func (p *Pipeline) Cooldown() time.Duration {
	return time.Duration(p.cfg.CooldownS) * time.Second
}

// Process handles one positive detection. A capture inside the cooldown is
// suppressed with no side effects. The cooldown timestamp advances only
// after a successful persist: a failed write must not silently swallow the
// next trigger without ever having produced output.
func (p *Pipeline) Process(frame types.Frame, mode types.ExposureMode, score float64) (types.CaptureOutcome, bool, error) {
	now := p.Clock()

	if !p.lastPersist.IsZero() && now.Sub(p.lastPersist) < p.Cooldown() {
		slog.Debug("capture suppressed by cooldown",
			"since_last", now.Sub(p.lastPersist),
			"cooldown", p.Cooldown(),
		)
		return types.CaptureOutcome{}, true, nil
	}

	outcome, err := p.persist(frame, mode, score, now)
	if err != nil {
		return types.CaptureOutcome{}, false, err
	}

	p.lastPersist = now
	return outcome, false, nil
}

// Snapshot persists a frame outside the motion path (startup image). It
// neither consults nor advances the cooldown.
func (p *Pipeline) Snapshot(frame types.Frame, mode types.ExposureMode) (types.CaptureOutcome, error) {
	return p.persist(frame, mode, 0, p.Clock())
}

func (p *Pipeline) persist(frame types.Frame, mode types.ExposureMode, score float64, now time.Time) (types.CaptureOutcome, error) {
	src, err := decodeFrame(frame)
	if err != nil {
		return types.CaptureOutcome{}, err
	}
	defer src.Close()

	enhanced := p.enhance(src, mode)
	defer enhanced.Close()

	// Overwrite in place: only the most recent capture is retained
	if ok := gocv.IMWrite(p.cfg.ImagePath, enhanced); !ok {
		return types.CaptureOutcome{}, fmt.Errorf("failed to persist image to %s", p.cfg.ImagePath)
	}

	outcome := types.CaptureOutcome{
		EventID:     uuid.New().String(),
		ImagePath:   p.cfg.ImagePath,
		PersistedAt: now,
		Mode:        mode,
		Score:       score,
	}

	slog.Info("capture persisted",
		"event_id", outcome.EventID,
		"path", outcome.ImagePath,
		"mode", string(mode),
		"score", score,
	)
	return outcome, nil
}

// enhance applies the per-mode policy: daylight frames pass through, night
// frames on the standard sensor get a grayscale gamma lift, night frames on
// a NoIR sensor get histogram equalization to spread the IR response.
// Enhancement failure is non-fatal upstream; here every path produces a mat.
func (p *Pipeline) enhance(src gocv.Mat, mode types.ExposureMode) gocv.Mat {
	if mode != types.ModeNight {
		out := gocv.NewMat()
		src.CopyTo(&out)
		return out
	}

	gray := gocv.NewMat()
	if src.Channels() > 1 {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&gray)
	}

	if p.sensor == "noir" {
		equalized := gocv.NewMat()
		gocv.EqualizeHist(gray, &equalized)
		gray.Close()
		return equalized
	}

	lut := gammaLUT(nightGamma)
	defer lut.Close()

	boosted := gocv.NewMat()
	gocv.LUT(gray, lut, &boosted)
	gray.Close()
	return boosted
}

// gammaLUT builds the 256-entry lookup table for a gamma curve.
func gammaLUT(gamma float64) gocv.Mat {
	table := make([]byte, 256)
	for i := range table {
		v := 255.0 * math.Pow(float64(i)/255.0, gamma)
		table[i] = byte(math.Min(255, math.Round(v)))
	}
	lut, _ := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8U, table)
	return lut
}

// decodeFrame turns the frame buffer into a full-resolution mat.
func decodeFrame(frame types.Frame) (gocv.Mat, error) {
	switch frame.Format {
	case types.FormatJPEG:
		mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("failed to decode capture frame: %w", err)
		}
		if mat.Empty() {
			mat.Close()
			return gocv.Mat{}, fmt.Errorf("capture frame decoded empty")
		}
		return mat, nil

	case types.FormatBGR24:
		mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("failed to wrap capture frame: %w", err)
		}
		return mat, nil

	default:
		return gocv.Mat{}, fmt.Errorf("unsupported frame format %q", frame.Format)
	}
}
