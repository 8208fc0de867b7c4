// Package exposure owns the day/night state machine. The controller's job is
// strictly transition logic and the baseline-invalidation contract; the
// numeric exposure values per mode come from configuration.
package exposure

import (
	"log/slog"
	"time"

	"github.com/PaulBichl/roxy/internal/config"
	"github.com/PaulBichl/roxy/internal/sun"
	"github.com/PaulBichl/roxy/internal/types"
)

// Driver selects what feeds the state machine.
type Driver string

const (
	// DriverSchedule derives the mode purely from the sun window
	DriverSchedule Driver = "schedule"
	// DriverBrightness derives the mode from the rolling mean-luma sample
	// with hysteresis, debounce and a minimum dwell between transitions
	DriverBrightness Driver = "brightness"
)

// Input carries the signals a single evaluation may consume.
type Input struct {
	// Window is the current sun window (schedule driver)
	Window types.SunWindow
	// MeanLuma is the latest brightness sample (brightness driver).
	// Only the most recent value is ever retained.
	MeanLuma float64
	// HasLuma marks whether MeanLuma is valid this cycle
	HasLuma bool
}

// Controller evaluates transitions between Day and Night. It is owned by the
// sensing loop and never accessed concurrently.
type Controller struct {
	cfg    config.ExposureConfig
	driver Driver

	state          types.ExposureState
	lastTransition time.Time

	// Debounce tracking for the brightness driver: the mode the sample
	// currently argues for and since when it has held.
	candidateMode  types.ExposureMode
	candidateSince time.Time
}

// NewController creates a controller with no live mode. The first Evaluate
// always reports a transition so startup applies the initial device
// configuration through the same path as a real day/night flip.
func NewController(cfg config.ExposureConfig) *Controller {
	return &Controller{
		cfg:    cfg,
		driver: Driver(cfg.Driver),
	}
}

// State returns the live exposure state.
func (c *Controller) State() types.ExposureState {
	return c.state
}

// Mode returns the live mode, empty before the first evaluation.
func (c *Controller) Mode() types.ExposureMode {
	return c.state.Mode
}

// SettleDelay is how long the next frame after a reconfiguration must be
// held back before motion comparison can be trusted.
func (c *Controller) SettleDelay() time.Duration {
	return time.Duration(c.cfg.SettleMs) * time.Millisecond
}

// Evaluate decides whether a transition is due. When it returns true the
// caller must reconfigure the device, wait the settle delay, and invalidate
// the motion baseline before the next comparison.
func (c *Controller) Evaluate(now time.Time, in Input) (types.ExposureState, bool) {
	var target types.ExposureMode

	switch c.driver {
	case DriverBrightness:
		if !in.HasLuma {
			return c.state, false
		}
		target = c.brightnessTarget(now, in.MeanLuma)
	default: // schedule
		if sun.IsDaytime(in.Window, now) {
			target = types.ModeDay
		} else {
			target = types.ModeNight
		}
	}

	if target == "" || target == c.state.Mode {
		return c.state, false
	}

	return c.transition(now, target), true
}

// brightnessTarget applies hysteresis, debounce and dwell. It returns the
// mode to transition to, or empty when no transition is warranted yet.
func (c *Controller) brightnessTarget(now time.Time, luma float64) types.ExposureMode {
	b := c.cfg.Brightness

	// First sample bootstraps the mode immediately, splitting the
	// hysteresis band down the middle
	if c.state.Mode == "" {
		if luma >= (b.DayThreshold+b.NightThreshold)/2 {
			return types.ModeDay
		}
		return types.ModeNight
	}

	var implied types.ExposureMode
	switch {
	case luma >= b.DayThreshold:
		implied = types.ModeDay
	case luma <= b.NightThreshold:
		implied = types.ModeNight
	default:
		// Inside the hysteresis band: transient flicker, drop any candidate
		c.candidateMode = ""
		return ""
	}

	if implied == c.state.Mode {
		c.candidateMode = ""
		return ""
	}

	if c.candidateMode != implied {
		c.candidateMode = implied
		c.candidateSince = now
		return ""
	}

	// Candidate must hold past the debounce interval
	if now.Sub(c.candidateSince) < time.Duration(b.DebounceS)*time.Second {
		return ""
	}
	// And the minimum dwell since the last transition must have elapsed
	if !c.lastTransition.IsZero() && now.Sub(c.lastTransition) < time.Duration(b.MinDwellS)*time.Second {
		return ""
	}

	return implied
}

// transition builds and installs the new state atomically.
func (c *Controller) transition(now time.Time, mode types.ExposureMode) types.ExposureState {
	params := c.cfg.Day
	if mode == types.ModeNight {
		params = c.cfg.Night
	}

	old := c.state.Mode
	c.state = types.ExposureState{
		Mode:             mode,
		ExposureTimeUs:   params.ExposureTimeUs,
		AnalogueGain:     params.AnalogueGain,
		AutoExposure:     params.AutoExposure,
		AutoWhiteBalance: params.AutoWhiteBalance,
		TransitionedAt:   now,
	}
	c.lastTransition = now
	c.candidateMode = ""

	slog.Info("exposure transition",
		"from", string(old),
		"to", string(mode),
		"exposure_us", params.ExposureTimeUs,
		"gain", params.AnalogueGain,
		"driver", string(c.driver),
	)
	return c.state
}
