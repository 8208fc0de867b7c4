// Package motion implements frame-to-frame motion differencing against a
// rolling baseline. Each processed frame becomes the next baseline; the
// detector never compares across an exposure change because the controller
// invalidates the baseline first.
package motion

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/types"
)

// Strategy selects how the binary difference map is scored.
type Strategy string

const (
	// StrategyRegionArea fires when any connected region of changed pixels
	// meets the minimum area
	StrategyRegionArea Strategy = "region-area"
	// StrategyPixelCount fires when the total count of changed pixels
	// meets the pixel change limit
	StrategyPixelCount Strategy = "pixel-count"
)

// Detector runs the per-frame pipeline: downscale, grayscale, blur, ROI
// mask, absolute difference, threshold, strategy scoring. It is owned by the
// sensing loop and never accessed concurrently.
type Detector struct {
	cfg      config.MotionConfig
	strategy Strategy

	procSize image.Point
	mask     *gocv.Mat // optional, fixed for the process lifetime
	baseline *gocv.Mat // previous processed frame; nil = absent

	// Active tuning, switched by SetMode when per-mode overrides exist
	threshold  int
	minArea    float64
	pixelLimit int
}

// NewDetector creates a detector and derives the ROI mask once from
// configuration.
func NewDetector(cfg config.MotionConfig) (*Detector, error) {
	d := &Detector{
		cfg:        cfg,
		strategy:   Strategy(cfg.Strategy),
		procSize:   image.Pt(cfg.ProcessingWidth, cfg.ProcessingHeight),
		threshold:  cfg.Threshold,
		minArea:    cfg.MinArea,
		pixelLimit: cfg.PixelChangeLimit,
	}

	if len(cfg.ROI) > 0 {
		mask, err := buildMask(cfg.ROI, d.procSize)
		if err != nil {
			return nil, fmt.Errorf("failed to build roi mask: %w", err)
		}
		d.mask = mask
		slog.Info("roi mask active",
			"points", len(cfg.ROI),
			"processing_resolution", fmt.Sprintf("%dx%d", d.procSize.X, d.procSize.Y),
		)
	}

	return d, nil
}

// SetMode applies per-mode tuning overrides. Day runs the base settings;
// night applies the optional override block.
func (d *Detector) SetMode(mode types.ExposureMode) {
	d.threshold = d.cfg.Threshold
	d.minArea = d.cfg.MinArea
	d.pixelLimit = d.cfg.PixelChangeLimit

	if mode == types.ModeNight && d.cfg.Night != nil {
		if d.cfg.Night.Threshold != nil {
			d.threshold = *d.cfg.Night.Threshold
		}
		if d.cfg.Night.MinArea != nil {
			d.minArea = *d.cfg.Night.MinArea
		}
		if d.cfg.Night.PixelChangeLimit != nil {
			d.pixelLimit = *d.cfg.Night.PixelChangeLimit
		}
	}
}

// Invalidate drops the baseline. Called on every exposure transition: pixel
// intensities are not comparable across exposure settings.
func (d *Detector) Invalidate() {
	if d.baseline != nil {
		d.baseline.Close()
		d.baseline = nil
	}
}

// Process evaluates one frame. With no baseline present the frame bootstraps
// the baseline and no detection is evaluated; otherwise the frame is
// compared and then unconditionally becomes the new baseline.
func (d *Detector) Process(frame types.Frame) (types.MotionResult, error) {
	src, err := decodeFrame(frame)
	if err != nil {
		return types.MotionResult{}, err
	}
	defer src.Close()

	processed, meanLuma, err := d.preprocess(src)
	if err != nil {
		return types.MotionResult{}, err
	}

	if d.baseline == nil {
		d.baseline = processed
		return types.MotionResult{Bootstrapped: true, MeanLuma: meanLuma}, nil
	}

	detected, score := d.evaluate(*d.baseline, *processed)

	d.baseline.Close()
	d.baseline = processed

	return types.MotionResult{
		Detected: detected,
		Score:    score,
		MeanLuma: meanLuma,
	}, nil
}

// Close releases mats held across frames.
func (d *Detector) Close() {
	d.Invalidate()
	if d.mask != nil {
		d.mask.Close()
		d.mask = nil
	}
}

// decodeFrame turns the frame buffer into a BGR mat.
func decodeFrame(frame types.Frame) (gocv.Mat, error) {
	switch frame.Format {
	case types.FormatJPEG:
		mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("failed to decode frame %d: %w", frame.Seq, err)
		}
		if mat.Empty() {
			mat.Close()
			return gocv.Mat{}, fmt.Errorf("frame %d decoded empty", frame.Seq)
		}
		return mat, nil

	case types.FormatBGR24:
		mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("failed to wrap frame %d: %w", frame.Seq, err)
		}
		return mat, nil

	default:
		return gocv.Mat{}, fmt.Errorf("unsupported frame format %q", frame.Format)
	}
}

// preprocess downscales, converts to single-channel intensity, blurs and
// masks. The returned mat is owned by the caller. Mean luma is taken before
// masking so zeroed-out pixels do not skew the brightness sample.
func (d *Detector) preprocess(src gocv.Mat) (*gocv.Mat, float64, error) {
	small := gocv.NewMat()
	if src.Cols() != d.procSize.X || src.Rows() != d.procSize.Y {
		gocv.Resize(src, &small, d.procSize, 0, 0, gocv.InterpolationArea)
	} else {
		src.CopyTo(&small)
	}
	defer small.Close()

	gray := gocv.NewMat()
	if small.Channels() > 1 {
		gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	} else {
		small.CopyTo(&gray)
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	k := image.Pt(d.cfg.BlurKernel, d.cfg.BlurKernel)
	gocv.GaussianBlur(gray, &blurred, k, 0, 0, gocv.BorderDefault)

	meanLuma := blurred.Mean().Val1

	if d.mask == nil {
		return &blurred, meanLuma, nil
	}

	masked := gocv.NewMat()
	gocv.BitwiseAndWithMask(blurred, blurred, &masked, *d.mask)
	blurred.Close()
	return &masked, meanLuma, nil
}

// evaluate scores the difference between baseline and current frame.
func (d *Detector) evaluate(baseline, current gocv.Mat) (bool, float64) {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(baseline, current, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, float32(d.threshold), 255, gocv.ThresholdBinary)

	switch d.strategy {
	case StrategyPixelCount:
		count := gocv.CountNonZero(thresh)
		return count >= d.pixelLimit, float64(count)

	default: // region-area
		// Two dilation passes merge fragmented regions before scoring
		kernel := gocv.NewMat()
		defer kernel.Close()

		dilated := gocv.NewMat()
		defer dilated.Close()
		gocv.Dilate(thresh, &dilated, kernel)
		gocv.Dilate(dilated, &dilated, kernel)

		contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		defer contours.Close()

		var largest float64
		for i := 0; i < contours.Size(); i++ {
			if area := gocv.ContourArea(contours.At(i)); area > largest {
				largest = area
			}
		}
		return largest >= d.minArea, largest
	}
}
