package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roxy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
instance_id: roxy-test
sun:
  latitude: 48.2
  longitude: 16.4
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Camera.Backend != "auto" {
		t.Errorf("Camera.Backend = %q, want auto", cfg.Camera.Backend)
	}
	if cfg.Camera.Sensor != "standard" {
		t.Errorf("Camera.Sensor = %q, want standard", cfg.Camera.Sensor)
	}
	if cfg.Exposure.Driver != "schedule" {
		t.Errorf("Exposure.Driver = %q, want schedule", cfg.Exposure.Driver)
	}
	if cfg.Exposure.Day.ExposureTimeUs != DefaultDayExposureUs {
		t.Errorf("Day.ExposureTimeUs = %d, want %d", cfg.Exposure.Day.ExposureTimeUs, DefaultDayExposureUs)
	}
	if cfg.Exposure.Night.AnalogueGain != DefaultNightGain {
		t.Errorf("Night.AnalogueGain = %f, want %f", cfg.Exposure.Night.AnalogueGain, DefaultNightGain)
	}
	if cfg.Motion.Strategy != "region-area" {
		t.Errorf("Motion.Strategy = %q, want region-area", cfg.Motion.Strategy)
	}
	if cfg.Motion.Threshold != DefaultMotionThreshold {
		t.Errorf("Motion.Threshold = %d, want %d", cfg.Motion.Threshold, DefaultMotionThreshold)
	}
	if cfg.Motion.MinArea != DefaultMinArea {
		t.Errorf("Motion.MinArea = %f, want %f", cfg.Motion.MinArea, DefaultMinArea)
	}
	if cfg.Motion.BlurKernel != DefaultBlurKernel {
		t.Errorf("Motion.BlurKernel = %d, want %d", cfg.Motion.BlurKernel, DefaultBlurKernel)
	}
	if cfg.Capture.CooldownS != DefaultCooldownS {
		t.Errorf("Capture.CooldownS = %d, want %d", cfg.Capture.CooldownS, DefaultCooldownS)
	}
	if cfg.Capture.ImagePath != DefaultImagePath {
		t.Errorf("Capture.ImagePath = %q, want %q", cfg.Capture.ImagePath, DefaultImagePath)
	}
	if cfg.Sun.RefreshIntervalS != DefaultSunRefreshS {
		t.Errorf("Sun.RefreshIntervalS = %d, want %d", cfg.Sun.RefreshIntervalS, DefaultSunRefreshS)
	}
}

func TestLoadMQTTTopicDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
mqtt:
  broker: localhost:1883
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Topics.Control != "roxy/control/roxy-test" {
		t.Errorf("Topics.Control = %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.Topics.Events != "roxy/events/roxy-test" {
		t.Errorf("Topics.Events = %q", cfg.MQTT.Topics.Events)
	}
	if cfg.MQTT.Topics.Health != "roxy/health/roxy-test" {
		t.Errorf("Topics.Health = %q", cfg.MQTT.Topics.Health)
	}
	if cfg.MQTT.QoS["events"] != 1 {
		t.Errorf("QoS[events] = %d, want 1", cfg.MQTT.QoS["events"])
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROXY_WEBHOOK_URL", "https://hooks.example.com/abc")
	t.Setenv("ROXY_MQTT_BROKER", "broker.example.com:1883")

	cfg, err := Load(writeConfig(t, minimalConfig+`
notify:
  enabled: true
  webhook_url: https://from-file.example.com
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Notify.WebhookURL != "https://hooks.example.com/abc" {
		t.Errorf("WebhookURL = %q, env override lost", cfg.Notify.WebhookURL)
	}
	if cfg.MQTT.Broker != "broker.example.com:1883" {
		t.Errorf("MQTT.Broker = %q, env override lost", cfg.MQTT.Broker)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/roxy.yaml"); err == nil {
		t.Error("Load() succeeded on a missing file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"missing instance id",
			`sun: {latitude: 48.2, longitude: 16.4}`,
			"instance_id",
		},
		{
			"bad instance id",
			`instance_id: "Roxy Cam!"` + "\nsun: {latitude: 48.2, longitude: 16.4}",
			"instance_id",
		},
		{
			"bad camera backend",
			minimalConfig + "camera: {backend: usb}",
			"camera.backend",
		},
		{
			"bad sensor",
			minimalConfig + "camera: {sensor: thermal}",
			"camera.sensor",
		},
		{
			"bad exposure driver",
			minimalConfig + "exposure: {driver: lux}",
			"exposure.driver",
		},
		{
			"schedule driver without location",
			`instance_id: roxy-test`,
			"sun.latitude",
		},
		{
			"latitude out of range",
			`instance_id: roxy-test` + "\nsun: {latitude: 95, longitude: 16.4}",
			"sun.latitude",
		},
		{
			"bad motion strategy",
			minimalConfig + "motion: {strategy: optical-flow}",
			"motion.strategy",
		},
		{
			"threshold above intensity range",
			minimalConfig + "motion: {threshold: 300}",
			"motion.threshold",
		},
		{
			"even blur kernel",
			minimalConfig + "motion: {blur_kernel: 20}",
			"motion.blur_kernel",
		},
		{
			"degenerate roi",
			minimalConfig + "motion: {roi: [[0, 0], [10, 10]]}",
			"motion.roi",
		},
		{
			"malformed roi point",
			minimalConfig + "motion: {roi: [[0, 0], [10, 0], [10, 10, 3]]}",
			"motion.roi",
		},
		{
			"inverted brightness thresholds",
			minimalConfig + "exposure: {brightness: {day_threshold: 80, night_threshold: 90}}",
			"night_threshold",
		},
		{
			"notify enabled without url",
			minimalConfig + "notify: {enabled: true}",
			"webhook_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
