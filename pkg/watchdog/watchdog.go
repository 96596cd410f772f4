// Package watchdog provides the liveness guard the sampling loop feeds once
// per iteration. If feeding stops for longer than the timeout the process
// (software guard) or the whole board (device guard) is restarted.
package watchdog

import (
	"fmt"
	"sync"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
)

type Guard interface {
	Feed() error
	Close() error
}

// New returns the guard selected by cfg.Type. onExpire is only used by the
// software guard.
func New(cfg config.WatchdogConfig, onExpire func()) (Guard, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	switch cfg.Type {
	case config.WatchdogSoft:
		return NewSoft(timeout, onExpire), nil
	case config.WatchdogDevice:
		d, err := OpenDevice(cfg.Device, timeout)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.WatchdogNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown watchdog type %q", cfg.Type)
	}
}

type Noop struct{}

func (Noop) Feed() error  { return nil }
func (Noop) Close() error { return nil }

// Soft is an in-process watchdog. It calls onExpire from its own goroutine
// when Feed has not been called within the timeout.
type Soft struct {
	timeout time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
}

func NewSoft(timeout time.Duration, onExpire func()) *Soft {
	s := &Soft{timeout: timeout}
	s.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed && onExpire != nil {
			onExpire()
		}
	})
	return s
}

func (s *Soft) Feed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("watchdog closed")
	}
	s.timer.Reset(s.timeout)
	return nil
}

func (s *Soft) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.timer.Stop()
	return nil
}
