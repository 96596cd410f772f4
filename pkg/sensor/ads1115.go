package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01
)

// txer is the part of i2c.Dev used here.
type txer interface {
	Tx(w, r []byte) error
}

// ADS1115Sensor reads single-ended inputs A0-A3 of an ADS1115 in
// single-shot mode and rescales them to 12 bits.
type ADS1115Sensor struct {
	dev        txer
	bus        i2c.BusCloser
	channels   []config.ChannelConfig
	sampleRate int
	settle     time.Duration
}

func NewADS1115Sensor(cfg config.Config) (Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(cfg.I2C.Address), Bus: bus}
	return &ADS1115Sensor{
		dev:        dev,
		bus:        bus,
		channels:   cfg.EnabledChannels(),
		sampleRate: cfg.SampleRate,
		settle:     settleDelay(cfg),
	}, nil
}

func (s *ADS1115Sensor) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

func (s *ADS1115Sensor) Read() ([]Reading, error) {
	out := make([]Reading, 0, len(s.channels))
	now := time.Now()
	for _, ch := range s.channels {
		msb, lsb, err := s.configForChannel(ch.Pin, s.sampleRate)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch.Channel, err)
		}
		if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
			return nil, fmt.Errorf("write config: %w", err)
		}
		sleep(ConversionDelay(s.sampleRate))
		readBuf := make([]byte, 2)
		if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
			return nil, fmt.Errorf("read conv: %w", err)
		}
		raw := int16(readBuf[0])<<8 | int16(readBuf[1])
		out = append(out, Reading{Channel: ch.Channel, Pin: ch.Pin, Raw: to12Bit(raw), Timestamp: now})
		sleep(s.settle)
	}
	return out, nil
}

// to12Bit drops the three low bits of the positive 15-bit single-ended
// range. Negative noise readings stay negative.
func to12Bit(raw int16) int {
	return int(raw) >> 3
}

func (s *ADS1115Sensor) configForChannel(channel, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("%w: ads1115 input %d", ErrInvalidChannel, channel)
	}
	// PGA: ±4.096V -> bits 001
	pga := byte(0x1)
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var cfg uint16 = 0x8000 // OS = 1 (start single conversion)
	cfg |= uint16(mux) << 12
	cfg |= uint16(pga) << 9
	cfg |= 1 << 8 // single-shot mode
	cfg |= uint16(dr) << 5
	// comparator disabled
	cfg |= 0x3
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}
