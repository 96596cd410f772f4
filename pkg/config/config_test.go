package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseKeyIntMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]int
		ok   bool
	}{
		{"", map[int]int{}, true},
		{"0=32,1=33", map[int]int{0: 32, 1: 33}, true},
		{"2=36, 3 = 39", map[int]int{2: 36, 3: 39}, true},
		{"bad", nil, false},
		{"0=x", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyIntMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyIntMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyIntMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseKeyBoolMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]bool
		ok   bool
	}{
		{"", map[int]bool{}, true},
		{"0=true,1=false", map[int]bool{0: true, 1: false}, true},
		{"0=true, 2=true", map[int]bool{0: true, 2: true}, true},
		{"bad", nil, false},
		{"a=true", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyBoolMap(tt.in)
		if (err == nil) != tt.ok {
			t.Fatalf("parseKeyBoolMap(%q) ok=%v err=%v", tt.in, tt.ok, err)
		}
		if tt.ok && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseKeyBoolMap(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(cfg.EnabledChannels()); got != 4 {
		t.Fatalf("enabled channels: got %d want 4", got)
	}
	if cfg.Watchdog.TimeoutSec != 15 {
		t.Fatalf("watchdog timeout: got %d", cfg.Watchdog.TimeoutSec)
	}
	if cfg.Network.Hostname != "esp32" {
		t.Fatalf("hostname: got %q", cfg.Network.Hostname)
	}
	if cfg.Estimator.WetRaw != 800 || cfg.Estimator.DryRaw != 3200 || cfg.Estimator.Clamp {
		t.Fatalf("estimator: %+v", cfg.Estimator)
	}
}

func TestLoadFlagsOverride(t *testing.T) {
	args := []string{
		"-sensor-type", "simulation",
		"-channels", "0,1,2,3",
		"-channel-pins", "0=32,1=33,2=36,3=39",
		"-channel-enabled", "3=false",
		"-outputs", "console,mqtt",
		"-output-intervals", "mqtt=5000",
		"-mqtt-server", "tcp://broker:1883",
		"-i2c-address", "0x49",
		"-language", "pt-BR",
		"-clamp",
	}
	cfg, err := Load(args, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SensorType != SensorSimulation {
		t.Fatalf("sensor type: %q", cfg.SensorType)
	}
	if cfg.I2C.Address != 0x49 {
		t.Fatalf("i2c address: %d", cfg.I2C.Address)
	}
	wantPins := []int{32, 33, 36, 39}
	for i, ch := range cfg.Channels {
		if ch.Pin != wantPins[i] {
			t.Fatalf("channel %d pin: got %d want %d", ch.Channel, ch.Pin, wantPins[i])
		}
	}
	if len(cfg.EnabledChannels()) != 3 {
		t.Fatalf("enabled channels: %+v", cfg.Channels)
	}
	if len(cfg.Outputs) != 2 || cfg.Outputs[1].IntervalMs != 5000 || cfg.Outputs[0].IntervalMs != cfg.IntervalMs {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
	if cfg.Outputs[1].MQTT == nil || cfg.Outputs[1].MQTT.Server != "tcp://broker:1883" {
		t.Fatalf("mqtt: %+v", cfg.Outputs[1].MQTT)
	}
	if !cfg.Estimator.Clamp || cfg.Page.Language != "pt-BR" {
		t.Fatalf("page/estimator: %+v %+v", cfg.Page, cfg.Estimator)
	}
}

func TestLoadEnvCreatesMQTTOutput(t *testing.T) {
	env := map[string]string{
		EnvMQTTUser:     "garden",
		EnvMQTTPassword: "secret",
		EnvWiFiSSID:     "backyard",
	}
	cfg, err := Load(nil, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.SSID != "backyard" {
		t.Fatalf("ssid: %q", cfg.Network.SSID)
	}
	last := cfg.Outputs[len(cfg.Outputs)-1]
	if last.Type != "mqtt" || last.MQTT.Username != "garden" || last.MQTT.Password != "secret" {
		t.Fatalf("mqtt output: %+v", last)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	content := `
sensor_type: iio
iio:
  device: /tmp/iio
interval_ms: 250
estimator:
  wet_raw: 900
  dry_raw: 3000
network:
  interface: eth0
  address: 192.168.0.123/24
  gateway: 192.168.0.1
  hostname: garden
  poll_interval_ms: 500
  max_attempts: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{"-config", path}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SensorType != SensorIIO || cfg.IIO.Device != "/tmp/iio" {
		t.Fatalf("sensor: %q %q", cfg.SensorType, cfg.IIO.Device)
	}
	if cfg.IntervalMs != 250 || cfg.Estimator.WetRaw != 900 {
		t.Fatalf("interval/estimator: %d %+v", cfg.IntervalMs, cfg.Estimator)
	}
	if cfg.Network.Hostname != "garden" || cfg.Network.MaxAttempts != 10 {
		t.Fatalf("network: %+v", cfg.Network)
	}
	// untouched defaults survive
	if len(cfg.Channels) != 4 {
		t.Fatalf("channels: %+v", cfg.Channels)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"sensor type", func(c *Config) { c.SensorType = "dht" }, "unknown sensor type"},
		{"no channels", func(c *Config) {
			for i := range c.Channels {
				c.Channels[i].Enabled = false
			}
		}, "at least one channel"},
		{"estimator", func(c *Config) { c.Estimator.DryRaw = c.Estimator.WetRaw }, "must differ"},
		{"language", func(c *Config) { c.Page.Language = "de" }, "unsupported language"},
		{"watchdog", func(c *Config) { c.Watchdog.Type = "hw" }, "unknown watchdog"},
		{"output", func(c *Config) { c.Outputs = []OutputConfig{{Type: "influx"}} }, "unknown output"},
		{"bad cidr", func(c *Config) { c.Network.Address = "192.168.0.123" }, "network address"},
		{"gateway outside", func(c *Config) {
			c.Network.Address = "192.168.0.123/24"
			c.Network.Gateway = "10.0.0.1"
		}, "outside subnet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v; want error containing %q", err, tt.want)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	cfg := DefaultConfig()
	if w := cfg.Warnings(); len(w) != 0 {
		t.Fatalf("default config warnings: %v", w)
	}

	cfg.Channels[3].Enabled = false
	w := cfg.Warnings()
	if len(w) != 1 || !strings.Contains(w[0], "3 channels enabled") {
		t.Fatalf("three channels: %v", w)
	}

	cfg = DefaultConfig()
	cfg.Channels = append(cfg.Channels, ChannelConfig{Channel: 4, Pin: 4, Enabled: true})
	cfg.Estimator.Fractional = true
	w = cfg.Warnings()
	if len(w) != 2 || !strings.Contains(w[0], "5 channels enabled") || !strings.Contains(w[1], "fractional") {
		t.Fatalf("five channels: %v", w)
	}
}

func TestLoadFractionalFlag(t *testing.T) {
	cfg, err := Load([]string{"-fractional-percent"}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Estimator.Fractional || cfg.Estimator.Clamp {
		t.Fatalf("estimator: %+v", cfg.Estimator)
	}
}
