package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"gopkg.in/yaml.v3"
)

const (
	SensorADS1115    = "ads1115"
	SensorIIO        = "iio"
	SensorSerial     = "serial"
	SensorSimulation = "simulation"

	WatchdogSoft   = "soft"
	WatchdogDevice = "device"
	WatchdogNone   = "none"
)

// Environment variables read after the config file and before flags.
const (
	EnvMQTTServer   = "SOIL_MQTT_SERVER"
	EnvMQTTUser     = "SOIL_MQTT_USER"
	EnvMQTTPassword = "SOIL_MQTT_PASSWORD"
	EnvWiFiSSID     = "SOIL_WIFI_SSID"
	EnvHTTPAddr     = "SOIL_HTTP_ADDR"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type OutputConfig struct {
	Type       string      `json:"type" yaml:"type"`
	IntervalMs int         `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus"`
	Address int    `json:"address" yaml:"address"`
}

type IIOConfig struct {
	Device string `json:"device" yaml:"device"`
}

type SerialConfig struct {
	Port      string `json:"port" yaml:"port"`
	BaudRate  int    `json:"baud_rate" yaml:"baud_rate"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms"`
}

// ChannelConfig describes one analog input. Pin is the hardware input
// number handed to the back-end. When a file omits them, Pin defaults to
// Channel and Enabled to true.
type ChannelConfig struct {
	Channel int    `json:"channel" yaml:"channel"`
	Pin     int    `json:"pin" yaml:"pin"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
}

// channelFile is ChannelConfig as written in a config file, where absent
// keys must be told apart from zero values.
type channelFile struct {
	Channel int    `json:"channel" yaml:"channel"`
	Pin     *int   `json:"pin" yaml:"pin"`
	Enabled *bool  `json:"enabled" yaml:"enabled"`
	Name    string `json:"name" yaml:"name"`
}

func (f channelFile) config() ChannelConfig {
	c := ChannelConfig{Channel: f.Channel, Pin: f.Channel, Enabled: true, Name: f.Name}
	if f.Pin != nil {
		c.Pin = *f.Pin
	}
	if f.Enabled != nil {
		c.Enabled = *f.Enabled
	}
	return c
}

func (c *ChannelConfig) UnmarshalJSON(b []byte) error {
	var f channelFile
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = f.config()
	return nil
}

func (c *ChannelConfig) UnmarshalYAML(node *yaml.Node) error {
	var f channelFile
	if err := node.Decode(&f); err != nil {
		return err
	}
	*c = f.config()
	return nil
}

// ExpectedChannels is the number of probes the moisture mean is defined
// over.
const ExpectedChannels = 4

type EstimatorConfig struct {
	WetRaw     int  `json:"wet_raw" yaml:"wet_raw"`
	DryRaw     int  `json:"dry_raw" yaml:"dry_raw"`
	Clamp      bool `json:"clamp" yaml:"clamp"`
	Fractional bool `json:"fractional" yaml:"fractional"`
}

type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type PageConfig struct {
	Title          string `json:"title" yaml:"title"`
	Language       string `json:"language" yaml:"language"`
	RefreshSeconds int    `json:"refresh_seconds" yaml:"refresh_seconds"`
}

type WatchdogConfig struct {
	Type       string `json:"type" yaml:"type"`
	Device     string `json:"device" yaml:"device"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
}

// NetworkConfig holds the static addressing expected on the interface.
// An empty Address skips the bootstrap wait.
type NetworkConfig struct {
	Interface      string `json:"interface" yaml:"interface"`
	Address        string `json:"address" yaml:"address"`
	Gateway        string `json:"gateway" yaml:"gateway"`
	SSID           string `json:"ssid" yaml:"ssid"`
	Hostname       string `json:"hostname" yaml:"hostname"`
	PollIntervalMs int    `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	MaxIntervalMs  int    `json:"max_interval_ms" yaml:"max_interval_ms"`
	MaxAttempts    int    `json:"max_attempts" yaml:"max_attempts"`
}

type Config struct {
	SensorType   string          `json:"sensor_type" yaml:"sensor_type"`
	I2C          I2CConfig       `json:"i2c" yaml:"i2c"`
	SampleRate   int             `json:"sample_rate" yaml:"sample_rate"`
	IIO          IIOConfig       `json:"iio" yaml:"iio"`
	Serial       SerialConfig    `json:"serial" yaml:"serial"`
	Channels     []ChannelConfig `json:"channels" yaml:"channels"`
	SettleMs     int             `json:"settle_ms" yaml:"settle_ms"`
	IntervalMs   int             `json:"interval_ms" yaml:"interval_ms"`
	StaleAfterMs int             `json:"stale_after_ms" yaml:"stale_after_ms"`
	Outputs      []OutputConfig  `json:"outputs" yaml:"outputs"`
	Estimator    EstimatorConfig `json:"estimator" yaml:"estimator"`
	HTTP         HTTPConfig      `json:"http" yaml:"http"`
	Page         PageConfig      `json:"page" yaml:"page"`
	Watchdog     WatchdogConfig  `json:"watchdog" yaml:"watchdog"`
	Network      NetworkConfig   `json:"network" yaml:"network"`
}

func DefaultConfig() Config {
	return Config{
		SensorType: SensorADS1115,
		I2C:        I2CConfig{Bus: "2", Address: 0x48},
		SampleRate: 128,
		IIO:        IIOConfig{Device: "/sys/bus/iio/devices/iio:device0"},
		Serial:     SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200, TimeoutMs: 500},
		Channels: []ChannelConfig{
			{Channel: 0, Pin: 0, Enabled: true},
			{Channel: 1, Pin: 1, Enabled: true},
			{Channel: 2, Pin: 2, Enabled: true},
			{Channel: 3, Pin: 3, Enabled: true},
		},
		SettleMs:     5,
		IntervalMs:   1000,
		StaleAfterMs: 30000,
		Outputs:      []OutputConfig{{Type: "console", IntervalMs: 10000}},
		Estimator:    EstimatorConfig{WetRaw: 800, DryRaw: 3200},
		HTTP:         HTTPConfig{Addr: ":80"},
		Page:         PageConfig{Title: "Soil moisture monitor", Language: "en", RefreshSeconds: 5},
		Watchdog:     WatchdogConfig{Type: WatchdogSoft, Device: "/dev/watchdog", TimeoutSec: 15},
		Network: NetworkConfig{
			Interface:      "wlan0",
			Hostname:       "esp32",
			PollIntervalMs: 500,
			MaxIntervalMs:  500,
			MaxAttempts:    120,
		},
	}
}

// LoadFromFlags loads configuration from the command line of the running
// process.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:], os.Getenv)
}

// Load builds a configuration from defaults, an optional JSON or YAML file,
// the environment and finally flags. Later sources override earlier ones.
func Load(args []string, getenv func(string) string) (Config, error) {
	fs := flag.NewFlagSet("soil-moisture-monitor", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagSensorType := fs.String("sensor-type", "", "sensor type: ads1115|iio|serial|simulation")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '2' -> /dev/i2c-2)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagSampleRate := fs.Int("sample-rate", -1, "ADS1115 sample rate (SPS)")
	flagIIODevice := fs.String("iio-device", "", "IIO device directory")
	flagSerialPort := fs.String("serial-port", "", "Serial ADC bridge port")
	flagChannels := fs.String("channels", "", "Comma-separated channels e.g. 0,1,2,3")
	flagPins := fs.String("channel-pins", "", "Hardware input per channel e.g. 0=32,1=33")
	flagEnabled := fs.String("channel-enabled", "", "Per-channel enable e.g. 0=true,3=false")
	flagSettle := fs.Int("settle-ms", -1, "Pause after each channel read in ms")
	flagInterval := fs.Int("interval-ms", -1, "Sampling loop interval in ms")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagHTTPAddr := fs.String("http-addr", "", "HTTP listen address")
	flagLanguage := fs.String("language", "", "Status page language (en|pt-BR)")
	flagClamp := fs.Bool("clamp", false, "Clamp moisture percentage to 0..100")
	flagFractional := fs.Bool("fractional-percent", false, "Keep the fractional part of the moisture percentage")
	flagWatchdog := fs.String("watchdog", "", "Watchdog type: soft|device|none")
	flagWatchdogTimeout := fs.Int("watchdog-timeout", -1, "Watchdog timeout in seconds")
	flagInterface := fs.String("net-interface", "", "Network interface carrying the static address")
	flagAddress := fs.String("net-address", "", "Expected static address in CIDR form")
	flagGateway := fs.String("net-gateway", "", "Gateway address")
	flagHostname := fs.String("hostname", "", "mDNS hostname")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg, getenv)

	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if *flagSampleRate != -1 {
		cfg.SampleRate = *flagSampleRate
	}
	if *flagIIODevice != "" {
		cfg.IIO.Device = *flagIIODevice
	}
	if *flagSerialPort != "" {
		cfg.Serial.Port = *flagSerialPort
	}
	if *flagChannels != "" {
		chs, err := parseChannels(*flagChannels)
		if err != nil {
			return cfg, err
		}
		cfg.Channels = make([]ChannelConfig, 0, len(chs))
		for _, ch := range chs {
			cfg.Channels = append(cfg.Channels, ChannelConfig{Channel: ch, Pin: ch, Enabled: true})
		}
	}
	if *flagPins != "" {
		pins, err := parseKeyIntMap(*flagPins)
		if err != nil {
			return cfg, fmt.Errorf("channel-pins: %w", err)
		}
		for i := range cfg.Channels {
			if p, ok := pins[cfg.Channels[i].Channel]; ok {
				cfg.Channels[i].Pin = p
			}
		}
	}
	if *flagEnabled != "" {
		en, err := parseKeyBoolMap(*flagEnabled)
		if err != nil {
			return cfg, fmt.Errorf("channel-enabled: %w", err)
		}
		for i := range cfg.Channels {
			if v, ok := en[cfg.Channels[i].Channel]; ok {
				cfg.Channels[i].Enabled = v
			}
		}
	}
	if *flagSettle != -1 {
		cfg.SettleMs = *flagSettle
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p, IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		for _, p := range parseCSV(*flagOutputIntervals) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return cfg, fmt.Errorf("output-intervals: %w", err)
			}
			for i := range cfg.Outputs {
				if cfg.Outputs[i].Type == strings.TrimSpace(kv[0]) {
					cfg.Outputs[i].IntervalMs = v
				}
			}
		}
	}
	if *flagMQTTServer != "" || *flagClientID != "" || *flagTopic != "" {
		m := cfg.mqttOutput()
		if *flagMQTTServer != "" {
			m.Server = *flagMQTTServer
		}
		if *flagClientID != "" {
			m.ClientID = *flagClientID
		}
		if *flagTopic != "" {
			m.StateTopic = *flagTopic
		}
	}
	if *flagHTTPAddr != "" {
		cfg.HTTP.Addr = *flagHTTPAddr
	}
	if *flagLanguage != "" {
		cfg.Page.Language = *flagLanguage
	}
	if *flagClamp {
		cfg.Estimator.Clamp = true
	}
	if *flagFractional {
		cfg.Estimator.Fractional = true
	}
	if *flagWatchdog != "" {
		cfg.Watchdog.Type = *flagWatchdog
	}
	if *flagWatchdogTimeout != -1 {
		cfg.Watchdog.TimeoutSec = *flagWatchdogTimeout
	}
	if *flagInterface != "" {
		cfg.Network.Interface = *flagInterface
	}
	if *flagAddress != "" {
		cfg.Network.Address = *flagAddress
	}
	if *flagGateway != "" {
		cfg.Network.Gateway = *flagGateway
	}
	if *flagHostname != "" {
		cfg.Network.Hostname = *flagHostname
	}

	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}

	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := getenv(EnvHTTPAddr); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := getenv(EnvWiFiSSID); v != "" {
		cfg.Network.SSID = v
	}
	server, user, pass := getenv(EnvMQTTServer), getenv(EnvMQTTUser), getenv(EnvMQTTPassword)
	if server == "" && user == "" && pass == "" {
		return
	}
	m := cfg.mqttOutput()
	if server != "" {
		m.Server = server
	}
	if user != "" {
		m.Username = user
	}
	if pass != "" {
		m.Password = pass
	}
}

// mqttOutput returns the first mqtt output's settings, creating the output
// when none is configured.
func (c *Config) mqttOutput() *MQTTConfig {
	for i := range c.Outputs {
		if strings.ToLower(c.Outputs[i].Type) == "mqtt" {
			if c.Outputs[i].MQTT == nil {
				c.Outputs[i].MQTT = &MQTTConfig{}
			}
			return c.Outputs[i].MQTT
		}
	}
	c.Outputs = append(c.Outputs, OutputConfig{Type: "mqtt", IntervalMs: c.IntervalMs, MQTT: &MQTTConfig{}})
	return c.Outputs[len(c.Outputs)-1].MQTT
}

// EnabledChannels returns the enabled channels in configured order.
func (c Config) EnabledChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// Warnings lists settings that are valid but depart from the usual
// hardware setup.
func (c Config) Warnings() []string {
	var w []string
	if n := len(c.EnabledChannels()); n > 0 && n != ExpectedChannels {
		w = append(w, fmt.Sprintf("%d channels enabled; the moisture mean is normally taken over %d probes", n, ExpectedChannels))
	}
	if c.Estimator.Clamp {
		w = append(w, "moisture percentage clamped to 0..100")
	}
	if c.Estimator.Fractional {
		w = append(w, "moisture percentage keeps its fractional part")
	}
	return w
}

func (c Config) Validate() error {
	var errs []error
	switch c.SensorType {
	case SensorADS1115, SensorIIO, SensorSerial, SensorSimulation:
	default:
		errs = append(errs, fmt.Errorf("unknown sensor type %q", c.SensorType))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, errors.New("sample-rate must be > 0"))
	}
	if len(c.EnabledChannels()) == 0 {
		errs = append(errs, errors.New("at least one channel must be enabled"))
	}
	if c.SettleMs < 0 {
		errs = append(errs, errors.New("settle-ms must be >= 0"))
	}
	if c.IntervalMs <= 0 {
		errs = append(errs, errors.New("interval-ms must be > 0"))
	}
	if c.Estimator.WetRaw == c.Estimator.DryRaw {
		errs = append(errs, errors.New("estimator wet_raw and dry_raw must differ"))
	}
	if !slices.Contains(moisture.Languages(), c.Page.Language) {
		errs = append(errs, fmt.Errorf("unsupported language %q", c.Page.Language))
	}
	switch c.Watchdog.Type {
	case WatchdogSoft, WatchdogDevice, WatchdogNone:
	default:
		errs = append(errs, fmt.Errorf("unknown watchdog type %q", c.Watchdog.Type))
	}
	if c.Watchdog.Type != WatchdogNone && c.Watchdog.TimeoutSec <= 0 {
		errs = append(errs, errors.New("watchdog timeout must be > 0"))
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "mqtt":
		default:
			errs = append(errs, fmt.Errorf("unknown output type %q", o.Type))
		}
	}
	if err := c.Network.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (n NetworkConfig) validate() error {
	if n.Address == "" {
		return nil
	}
	ip, subnet, err := net.ParseCIDR(n.Address)
	if err != nil {
		return fmt.Errorf("network address: %w", err)
	}
	if n.Gateway != "" {
		gw := net.ParseIP(n.Gateway)
		if gw == nil {
			return fmt.Errorf("network gateway %q is not an IP address", n.Gateway)
		}
		if !subnet.Contains(gw) {
			return fmt.Errorf("network gateway %s outside subnet %s", gw, subnet)
		}
		if gw.Equal(ip) {
			return fmt.Errorf("network gateway equals host address %s", ip)
		}
	}
	if n.PollIntervalMs <= 0 {
		return errors.New("network poll interval must be > 0")
	}
	if n.MaxAttempts <= 0 {
		return errors.New("network max attempts must be > 0")
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	return strconv.Atoi(s)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	out := make([]int, 0, 4)
	for _, t := range parseCSV(s) {
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", t, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseKeyPairs splits "k=v,k=v" into integer keys and raw values.
func parseKeyPairs(s string) (map[int]string, error) {
	out := map[int]string{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair '%s'", p)
		}
		k, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid key '%s': %w", kv[0], err)
		}
		out[k] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

func parseKeyIntMap(s string) (map[int]int, error) {
	pairs, err := parseKeyPairs(s)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(pairs))
	for k, v := range pairs {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %d: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func parseKeyBoolMap(s string) (map[int]bool, error) {
	pairs, err := parseKeyPairs(s)
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(pairs))
	for k, v := range pairs {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %d: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}
