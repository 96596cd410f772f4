package monitor

import (
	"context"
	"log"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"github.com/ericogr/soil-moisture-monitor/pkg/output"
	"github.com/ericogr/soil-moisture-monitor/pkg/sensor"
	"github.com/ericogr/soil-moisture-monitor/pkg/watchdog"
)

// OutputEntry is an output published at most once per Interval.
type OutputEntry struct {
	Name     string
	Output   output.Output
	Interval time.Duration
	last     time.Time
}

type Options struct {
	Interval  time.Duration
	Estimator moisture.Estimator
	Language  string
	Outputs   []*OutputEntry
}

// Monitor runs the sampling loop on a single goroutine.
type Monitor struct {
	sensor   sensor.Sensor
	guard    watchdog.Guard
	state    *State
	est      moisture.Estimator
	lang     string
	interval time.Duration
	outputs  []*OutputEntry
	now      func() time.Time
}

func New(s sensor.Sensor, g watchdog.Guard, st *State, opts Options) *Monitor {
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Monitor{
		sensor:   s,
		guard:    g,
		state:    st,
		est:      opts.Estimator,
		lang:     opts.Language,
		interval: opts.Interval,
		outputs:  opts.Outputs,
		now:      time.Now,
	}
}

// Step runs one loop iteration. The watchdog is fed on every path,
// including a failed acquisition.
func (m *Monitor) Step() error {
	defer m.feed()

	readings, err := m.sensor.Read()
	if err != nil {
		m.state.SetReadError(err)
		return err
	}
	now := m.now()
	sample := moisture.NewSample(sensor.Values(readings), now)
	m.state.Store(sample)

	report := m.est.Report(sample, m.lang)
	for _, o := range m.outputs {
		if !o.last.IsZero() && now.Sub(o.last) < o.Interval {
			continue
		}
		o.last = now
		if err := o.Output.Publish(report); err != nil {
			log.Printf("output %s: %v", o.Name, err)
		}
	}
	return nil
}

func (m *Monitor) feed() {
	if err := m.guard.Feed(); err != nil {
		log.Printf("watchdog feed: %v", err)
	}
}

// Run loops until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if err := m.Step(); err != nil {
			log.Printf("sensor read: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
