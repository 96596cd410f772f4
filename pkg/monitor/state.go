package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
)

var (
	ErrNoSample    = errors.New("no sample acquired yet")
	ErrStaleSample = errors.New("sample is stale")
)

// State holds the latest sample. The sampling loop is the only writer;
// HTTP handlers read it concurrently.
type State struct {
	mu        sync.RWMutex
	sample    moisture.Sample
	hasSample bool
	readErr   error
	netErr    error
}

func NewState() *State {
	return &State{}
}

// Store replaces the latest sample and clears the last read error.
func (s *State) Store(sample moisture.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
	s.hasSample = true
	s.readErr = nil
}

// Latest returns the most recent sample. Before the first acquisition it
// returns the zero sample and false.
func (s *State) Latest() (moisture.Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sample, s.hasSample
}

func (s *State) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

func (s *State) SetNetworkError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.netErr = err
}

// Health reports why the monitor should not be trusted, or nil.
func (s *State) Health(now time.Time, staleAfter time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var errs []error
	if s.netErr != nil {
		errs = append(errs, fmt.Errorf("network: %w", s.netErr))
	}
	if s.readErr != nil {
		errs = append(errs, fmt.Errorf("sensor: %w", s.readErr))
	}
	switch {
	case !s.hasSample:
		errs = append(errs, ErrNoSample)
	case staleAfter > 0 && now.Sub(s.sample.Timestamp) > staleAfter:
		errs = append(errs, fmt.Errorf("%w: last at %s", ErrStaleSample, s.sample.Timestamp.Format(time.RFC3339)))
	}
	return errors.Join(errs...)
}
