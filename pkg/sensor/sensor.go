package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
)

// ErrInvalidChannel is returned when a channel maps to an input the
// back-end does not have.
var ErrInvalidChannel = errors.New("invalid channel")

// Reading is one raw analog value on the 12-bit scale (0-4095). Values are
// not validated: a disconnected probe simply reads low.
type Reading struct {
	Channel   int       `json:"channel"`
	Pin       int       `json:"pin"`
	Raw       int       `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
}

type Sensor interface {
	Read() ([]Reading, error)
	Close() error
}

// New opens the back-end selected by cfg.SensorType.
func New(cfg config.Config) (Sensor, error) {
	switch cfg.SensorType {
	case config.SensorADS1115:
		return NewADS1115Sensor(cfg)
	case config.SensorIIO:
		return NewIIOSensor(cfg)
	case config.SensorSerial:
		return NewSerialSensor(cfg)
	case config.SensorSimulation:
		return NewFakeSensor(cfg)
	default:
		return nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
	}
}

// Values returns the raw values in read order.
func Values(readings []Reading) []int {
	out := make([]int, len(readings))
	for i, r := range readings {
		out[i] = r.Raw
	}
	return out
}
