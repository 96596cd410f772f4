package config

import (
	"os"
	"path/filepath"
	"testing"
)

const jsonFixture = `{
  "sensor_type": "iio",
  "iio": {"device": "/sys/bus/iio/devices/iio:device1"},
  "channels": [
    {"channel": 0, "pin": 32, "enabled": true, "name": "bed-north"},
    {"channel": 1, "pin": 33, "enabled": false}
  ],
  "outputs": [{"type": "console", "interval_ms": 2000}],
  "estimator": {"wet_raw": 900, "dry_raw": 3100, "clamp": true},
  "watchdog": {"type": "device", "device": "/dev/watchdog0", "timeout_sec": 20}
}`

const yamlFixture = `
sensor_type: iio
iio:
  device: /sys/bus/iio/devices/iio:device1
channels:
  - {channel: 0, pin: 32, enabled: true, name: bed-north}
  - {channel: 1, pin: 33, enabled: false}
outputs:
  - type: console
    interval_ms: 2000
estimator:
  wet_raw: 900
  dry_raw: 3100
  clamp: true
watchdog:
  type: device
  device: /dev/watchdog0
  timeout_sec: 20
`

// The same settings must decode identically from either file format.
func TestLoadFile_JSONAndYAMLAgree(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"monitor.json": jsonFixture,
		"monitor.yaml": yamlFixture,
		"monitor.yml":  yamlFixture,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
			cfg := DefaultConfig()
			if err := loadFile(path, &cfg); err != nil {
				t.Fatalf("loadFile: %v", err)
			}
			if cfg.SensorType != SensorIIO || cfg.IIO.Device != "/sys/bus/iio/devices/iio:device1" {
				t.Fatalf("sensor: %q %q", cfg.SensorType, cfg.IIO.Device)
			}
			if len(cfg.Channels) != 2 {
				t.Fatalf("channels len: %d", len(cfg.Channels))
			}
			if c := cfg.Channels[0]; c.Pin != 32 || !c.Enabled || c.Name != "bed-north" {
				t.Fatalf("channel0 incorrect: %+v", c)
			}
			if c := cfg.Channels[1]; c.Pin != 33 || c.Enabled {
				t.Fatalf("channel1 incorrect: %+v", c)
			}
			if len(cfg.Outputs) != 1 || cfg.Outputs[0].IntervalMs != 2000 {
				t.Fatalf("outputs: %+v", cfg.Outputs)
			}
			if cfg.Estimator != (EstimatorConfig{WetRaw: 900, DryRaw: 3100, Clamp: true}) {
				t.Fatalf("estimator: %+v", cfg.Estimator)
			}
			if cfg.Watchdog.Device != "/dev/watchdog0" || cfg.Watchdog.TimeoutSec != 20 {
				t.Fatalf("watchdog: %+v", cfg.Watchdog)
			}
			// untouched keys keep their defaults
			if cfg.HTTP.Addr != ":80" || cfg.I2C.Address != 0x48 {
				t.Fatalf("defaults lost: %+v %+v", cfg.HTTP, cfg.I2C)
			}
		})
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	if err := loadFile(bad, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
	if err := loadFile(filepath.Join(dir, "missing.yaml"), &cfg); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLoadFile_ChannelDefaults(t *testing.T) {
	files := map[string]string{
		"channels.json": `{"channels": [
  {"channel": 5},
  {"channel": 1, "pin": 0},
  {"channel": 2, "enabled": false}
]}`,
		"channels.yaml": `
channels:
  - channel: 5
  - {channel: 1, pin: 0}
  - {channel: 2, enabled: false}
`,
	}
	want := []ChannelConfig{
		{Channel: 5, Pin: 5, Enabled: true},
		{Channel: 1, Pin: 0, Enabled: true},
		{Channel: 2, Pin: 2, Enabled: false},
	}
	dir := t.TempDir()
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
			cfg := DefaultConfig()
			if err := loadFile(path, &cfg); err != nil {
				t.Fatalf("loadFile: %v", err)
			}
			if len(cfg.Channels) != len(want) {
				t.Fatalf("channels: %+v", cfg.Channels)
			}
			for i := range want {
				if cfg.Channels[i] != want[i] {
					t.Fatalf("channel %d: got %+v want %+v", i, cfg.Channels[i], want[i])
				}
			}
		})
	}
}
