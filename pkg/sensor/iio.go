package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
)

// IIOSensor reads on-chip ADC inputs exposed by the Linux industrial I/O
// subsystem, e.g. the 12-bit ADC of an AM335x.
type IIOSensor struct {
	dir      string
	channels []config.ChannelConfig
	settle   time.Duration
}

func NewIIOSensor(cfg config.Config) (Sensor, error) {
	if _, err := os.Stat(cfg.IIO.Device); err != nil {
		return nil, fmt.Errorf("iio device: %w", err)
	}
	return &IIOSensor{dir: cfg.IIO.Device, channels: cfg.EnabledChannels(), settle: settleDelay(cfg)}, nil
}

func (s *IIOSensor) Read() ([]Reading, error) {
	out := make([]Reading, 0, len(s.channels))
	now := time.Now()
	for _, ch := range s.channels {
		v, err := s.readRaw(ch.Pin)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch.Channel, err)
		}
		out = append(out, Reading{Channel: ch.Channel, Pin: ch.Pin, Raw: v, Timestamp: now})
		sleep(s.settle)
	}
	return out, nil
}

func (s *IIOSensor) readRaw(pin int) (int, error) {
	if pin < 0 {
		return 0, fmt.Errorf("%w: iio input %d", ErrInvalidChannel, pin)
	}
	b, err := os.ReadFile(filepath.Join(s.dir, fmt.Sprintf("in_voltage%d_raw", pin)))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse iio value: %w", err)
	}
	return v, nil
}

func (s *IIOSensor) Close() error { return nil }
