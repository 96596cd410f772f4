package sensor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
)

// FakeSensor simulates four probes drifting slowly around a moist-soil
// reading so the page and outputs can be exercised without hardware.
type FakeSensor struct {
	channels []config.ChannelConfig
	values   map[int]int
	rnd      *rand.Rand
	mu       sync.Mutex
}

func NewFakeSensor(cfg config.Config) (Sensor, error) {
	chans := cfg.EnabledChannels()
	values := make(map[int]int, len(chans))
	for i, ch := range chans {
		values[ch.Channel] = 1200 + i*50
	}
	return &FakeSensor{channels: chans, values: values, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
}

func (f *FakeSensor) Read() ([]Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	out := make([]Reading, 0, len(f.channels))
	for _, ch := range f.channels {
		v := f.values[ch.Channel] + f.rnd.Intn(41) - 20
		if v < 0 {
			v = 0
		}
		if v > 4095 {
			v = 4095
		}
		f.values[ch.Channel] = v
		out = append(out, Reading{Channel: ch.Channel, Pin: ch.Pin, Raw: v, Timestamp: now})
	}
	return out, nil
}

func (f *FakeSensor) Close() error { return nil }
