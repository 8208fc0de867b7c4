package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Documented defaults for every optional knob.
const (
	DefaultWidth            = 1280
	DefaultHeight           = 960
	DefaultCaptureTimeoutS  = 5
	DefaultSettleMs         = 200
	DefaultDayExposureUs    = 8000
	DefaultDayGain          = 1.0
	DefaultNightExposureUs  = 50000
	DefaultNightGain        = 8.0
	DefaultDayThreshold     = 110.0
	DefaultNightThreshold   = 90.0
	DefaultDebounceS        = 30
	DefaultMinDwellS        = 300
	DefaultSunRefreshS      = 1800
	DefaultMotionThreshold  = 25
	DefaultMinArea          = 1000.0
	DefaultPixelChangeLimit = 3000
	DefaultProcessingWidth  = 640
	DefaultProcessingHeight = 480
	DefaultBlurKernel       = 21
	DefaultCooldownS        = 10
	DefaultImagePath        = "/tmp/motion.jpg"
	DefaultNotifyTimeoutS   = 10
)

// Validate checks the configuration and fills in defaults for optional fields
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if err := validateCamera(&cfg.Camera); err != nil {
		return err
	}
	if err := validateExposure(&cfg.Exposure); err != nil {
		return err
	}
	if err := validateSun(cfg); err != nil {
		return err
	}
	if err := validateMotion(&cfg.Motion); err != nil {
		return err
	}

	if cfg.Capture.CooldownS <= 0 {
		cfg.Capture.CooldownS = DefaultCooldownS
	}
	if cfg.Capture.ImagePath == "" {
		cfg.Capture.ImagePath = DefaultImagePath
	}

	if cfg.Notify.Enabled && cfg.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required when notify.enabled is true")
	}
	if cfg.Notify.TimeoutS <= 0 {
		cfg.Notify.TimeoutS = DefaultNotifyTimeoutS
	}

	// MQTT is optional; topics default from the instance id when a broker is set
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("roxy/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Events == "" {
			cfg.MQTT.Topics.Events = fmt.Sprintf("roxy/events/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("roxy/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control": 1,
				"events":  1,
				"health":  0,
			}
		}
	}

	return nil
}

func validateCamera(c *CameraConfig) error {
	switch c.Backend {
	case "", "auto":
		c.Backend = "auto"
	case "rpicam", "grabber":
	default:
		return fmt.Errorf("camera.backend must be auto, rpicam or grabber, got %q", c.Backend)
	}

	switch c.Sensor {
	case "":
		c.Sensor = "standard"
	case "standard", "noir":
	default:
		return fmt.Errorf("camera.sensor must be standard or noir, got %q", c.Sensor)
	}

	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.Device == "" {
		c.Device = "/dev/video0"
	}
	if c.CaptureTimeoutS <= 0 {
		c.CaptureTimeoutS = DefaultCaptureTimeoutS
	}
	return nil
}

func validateExposure(e *ExposureConfig) error {
	switch e.Driver {
	case "":
		e.Driver = "schedule"
	case "schedule", "brightness":
	default:
		return fmt.Errorf("exposure.driver must be schedule or brightness, got %q", e.Driver)
	}

	if e.SettleMs <= 0 {
		e.SettleMs = DefaultSettleMs
	}
	if e.Day.ExposureTimeUs <= 0 {
		e.Day.ExposureTimeUs = DefaultDayExposureUs
	}
	if e.Day.AnalogueGain <= 0 {
		e.Day.AnalogueGain = DefaultDayGain
	}
	if e.Night.ExposureTimeUs <= 0 {
		e.Night.ExposureTimeUs = DefaultNightExposureUs
	}
	if e.Night.AnalogueGain <= 0 {
		e.Night.AnalogueGain = DefaultNightGain
	}

	b := &e.Brightness
	if b.DayThreshold <= 0 {
		b.DayThreshold = DefaultDayThreshold
	}
	if b.NightThreshold <= 0 {
		b.NightThreshold = DefaultNightThreshold
	}
	if b.NightThreshold >= b.DayThreshold {
		return fmt.Errorf("exposure.brightness.night_threshold (%.0f) must be below day_threshold (%.0f)",
			b.NightThreshold, b.DayThreshold)
	}
	if b.DebounceS <= 0 {
		b.DebounceS = DefaultDebounceS
	}
	if b.MinDwellS <= 0 {
		b.MinDwellS = DefaultMinDwellS
	}
	return nil
}

func validateSun(cfg *Config) error {
	s := &cfg.Sun
	if cfg.Exposure.Driver == "schedule" && s.Latitude == 0 && s.Longitude == 0 {
		return fmt.Errorf("sun.latitude and sun.longitude are required for the schedule exposure driver")
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("sun.latitude out of range: %f", s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("sun.longitude out of range: %f", s.Longitude)
	}
	if s.RefreshIntervalS <= 0 {
		s.RefreshIntervalS = DefaultSunRefreshS
	}
	return nil
}

func validateMotion(m *MotionConfig) error {
	switch m.Strategy {
	case "":
		m.Strategy = "region-area"
	case "region-area", "pixel-count":
	default:
		return fmt.Errorf("motion.strategy must be region-area or pixel-count, got %q", m.Strategy)
	}

	if m.Threshold <= 0 {
		m.Threshold = DefaultMotionThreshold
	}
	if m.Threshold > 255 {
		return fmt.Errorf("motion.threshold must be an intensity delta in 0-255, got %d", m.Threshold)
	}
	if m.MinArea <= 0 {
		m.MinArea = DefaultMinArea
	}
	if m.PixelChangeLimit <= 0 {
		m.PixelChangeLimit = DefaultPixelChangeLimit
	}
	if m.ProcessingWidth <= 0 {
		m.ProcessingWidth = DefaultProcessingWidth
	}
	if m.ProcessingHeight <= 0 {
		m.ProcessingHeight = DefaultProcessingHeight
	}
	if m.BlurKernel <= 0 {
		m.BlurKernel = DefaultBlurKernel
	}
	if m.BlurKernel%2 == 0 {
		return fmt.Errorf("motion.blur_kernel must be odd, got %d", m.BlurKernel)
	}

	// ROI polygon needs at least 3 points, each [x, y]
	if len(m.ROI) > 0 {
		if len(m.ROI) < 3 {
			return fmt.Errorf("motion.roi polygon must have at least 3 points, got %d", len(m.ROI))
		}
		for i, pt := range m.ROI {
			if len(pt) != 2 {
				return fmt.Errorf("motion.roi point %d must be [x,y], got %v", i, pt)
			}
		}
	}
	return nil
}
