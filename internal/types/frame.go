package types

import "time"

// FrameFormat identifies the pixel encoding of a Frame's Data buffer.
type FrameFormat string

const (
	// FormatBGR24 is raw interleaved BGR, 3 bytes per pixel.
	FormatBGR24 FrameFormat = "BGR24"
	// FormatJPEG is a compressed JPEG image.
	FormatJPEG FrameFormat = "JPEG"
)

// Frame represents a single captured image.
// A frame is immutable once produced; it is owned by the pipeline stage
// currently processing it and discarded after use.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the source
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Format describes how Data is encoded
	Format FrameFormat
	// Data contains the encoded frame
	Data []byte
	// TraceID is a unique identifier for tracing the frame through the pipeline
	TraceID string
}

// ExposureMode is the day/night operating mode of the camera.
type ExposureMode string

const (
	ModeDay   ExposureMode = "day"
	ModeNight ExposureMode = "night"
)

// ExposureState holds the full set of sensor parameters for one mode.
// Exactly one ExposureState is live at any time; transitions replace the
// whole value, never individual fields.
type ExposureState struct {
	// Mode is the current day/night mode
	Mode ExposureMode
	// ExposureTimeUs is the sensor integration time in microseconds
	ExposureTimeUs int
	// AnalogueGain is the sensor gain multiplier
	AnalogueGain float64
	// AutoExposure enables the device's auto-exposure algorithm
	AutoExposure bool
	// AutoWhiteBalance enables the device's AWB algorithm
	AutoWhiteBalance bool
	// TransitionedAt is when this state became live
	TransitionedAt time.Time
}

// SunWindow is the computed sunrise/sunset window for one calendar day.
type SunWindow struct {
	// Sunrise and Sunset bound the daylight period (UTC)
	Sunrise time.Time
	Sunset  time.Time
	// ComputedAt is when the window was derived
	ComputedAt time.Time
	// ValidUntil marks when the window should be recomputed
	ValidUntil time.Time
}

// IsZero reports whether the window has never been computed.
func (w SunWindow) IsZero() bool {
	return w.Sunrise.IsZero() && w.Sunset.IsZero()
}

// Contains reports whether now falls inside the daylight window.
// Boundaries are inclusive: sunrise and sunset themselves count as daytime.
func (w SunWindow) Contains(now time.Time) bool {
	if w.IsZero() {
		return false
	}
	return !now.Before(w.Sunrise) && !now.After(w.Sunset)
}

// Stale reports whether the window needs recomputation.
func (w SunWindow) Stale(now time.Time) bool {
	return w.IsZero() || now.After(w.ValidUntil)
}

// MotionResult is the outcome of evaluating one frame against the baseline.
type MotionResult struct {
	// Detected is true when the active strategy fired
	Detected bool
	// Score is the strategy's raw signal: largest region area for the
	// region-area strategy, changed-pixel count for pixel-count
	Score float64
	// Bootstrapped is true when no baseline existed and the frame was
	// stored as the new baseline without evaluation
	Bootstrapped bool
	// MeanLuma is the mean intensity of the processed frame, fed to the
	// brightness-driven exposure policy
	MeanLuma float64
}

// CaptureOutcome describes one accepted (non-suppressed) capture.
type CaptureOutcome struct {
	// EventID uniquely identifies the motion event
	EventID string
	// ImagePath is where the enhanced image was persisted
	ImagePath string
	// PersistedAt is when the image hit disk
	PersistedAt time.Time
	// Mode is the exposure mode the capture was taken under
	Mode ExposureMode
	// Score is the motion score that triggered the capture
	Score float64
}

// NotificationResult records the outcome of a single dispatch attempt.
// It is transient and never kept beyond the attempt.
type NotificationResult struct {
	Delivered bool
	// Reason carries the failure cause when Delivered is false
	Reason string
}

// LoopStats contains counters for the sensing loop.
type LoopStats struct {
	FramesProcessed   uint64
	CaptureErrors     uint64
	MotionEvents      uint64
	CapturesPersisted uint64
	CapturesSuppress  uint64
	NotifyFailures    uint64
	ModeTransitions   uint64
	LastFrameAt       time.Time
	LastMotionAt      time.Time
}
