package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete roxy configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	SiteID           string         `yaml:"site_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig   `yaml:"camera"`
	Exposure         ExposureConfig `yaml:"exposure"`
	Sun              SunConfig      `yaml:"sun"`
	Motion           MotionConfig   `yaml:"motion"`
	Capture          CaptureConfig  `yaml:"capture"`
	Notify           NotifyConfig   `yaml:"notify"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
}

// CameraConfig contains capture device settings
type CameraConfig struct {
	Backend      string `yaml:"backend"`       // auto, rpicam, grabber
	Device       string `yaml:"device"`        // v4l2 device path for the grabber backend
	Width        int    `yaml:"width"`         // full capture resolution
	Height       int    `yaml:"height"`
	Sensor       string `yaml:"sensor"`        // standard, noir
	CaptureTimeoutS int `yaml:"capture_timeout_s"`
}

// ExposureConfig contains day/night transition settings
type ExposureConfig struct {
	Driver     string           `yaml:"driver"` // schedule, brightness
	SettleMs   int              `yaml:"settle_ms"`
	Day        ExposureParams   `yaml:"day"`
	Night      ExposureParams   `yaml:"night"`
	Brightness BrightnessConfig `yaml:"brightness"`
}

// ExposureParams are the per-mode sensor parameters.
// Values are configuration, not policy: the controller only drives transitions.
type ExposureParams struct {
	ExposureTimeUs   int     `yaml:"exposure_time_us"`
	AnalogueGain     float64 `yaml:"analogue_gain"`
	AutoExposure     bool    `yaml:"auto_exposure"`
	AutoWhiteBalance bool    `yaml:"auto_white_balance"`
}

// BrightnessConfig tunes the brightness-driven exposure policy
type BrightnessConfig struct {
	DayThreshold   float64 `yaml:"day_threshold"`   // mean luma above which daylight is assumed
	NightThreshold float64 `yaml:"night_threshold"` // mean luma below which night is assumed
	DebounceS      int     `yaml:"debounce_s"`      // how long a crossing must hold before transitioning
	MinDwellS      int     `yaml:"min_dwell_s"`     // minimum time between two transitions
}

// SunConfig contains the geographic location and refresh policy
type SunConfig struct {
	Latitude         float64 `yaml:"latitude"`
	Longitude        float64 `yaml:"longitude"`
	RefreshIntervalS int     `yaml:"refresh_interval_s"`
}

// MotionConfig contains detection settings
type MotionConfig struct {
	Strategy         string  `yaml:"strategy"` // region-area, pixel-count
	Threshold        int     `yaml:"threshold"`
	MinArea          float64 `yaml:"min_area"`
	PixelChangeLimit int     `yaml:"pixel_change_limit"`
	ProcessingWidth  int     `yaml:"processing_width"`
	ProcessingHeight int     `yaml:"processing_height"`
	BlurKernel       int     `yaml:"blur_kernel"`
	ROI              [][]int `yaml:"roi"` // polygon [[x,y], ...] at processing resolution; empty = full frame
	// Optional per-mode overrides (the day values are the base settings)
	Night *MotionOverride `yaml:"night,omitempty"`
}

// MotionOverride lets night mode run with different tuning than day mode
type MotionOverride struct {
	Threshold        *int     `yaml:"threshold,omitempty"`
	MinArea          *float64 `yaml:"min_area,omitempty"`
	PixelChangeLimit *int     `yaml:"pixel_change_limit,omitempty"`
}

// CaptureConfig contains rate limiting and persistence settings
type CaptureConfig struct {
	CooldownS int    `yaml:"cooldown_s"`
	ImagePath string `yaml:"image_path"`
}

// NotifyConfig contains webhook sink settings
type NotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	TimeoutS   int    `yaml:"timeout_s"`
	// StartupImage controls whether a snapshot is sent when the service boots
	StartupImage bool `yaml:"startup_image"`
}

// MQTTConfig contains optional broker settings. An empty broker disables
// the emitter and the control plane entirely.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control"`
	Events  string `yaml:"events"`
	Health  string `yaml:"health"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Secrets may come from the environment rather than the file
	if v := os.Getenv("ROXY_WEBHOOK_URL"); v != "" {
		cfg.Notify.WebhookURL = v
	}
	if v := os.Getenv("ROXY_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}

	// Validate configuration and apply defaults
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
