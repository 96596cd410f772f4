package sensor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
	"go.bug.st/serial"
)

// requestLine asks the bridge for one line of readings.
const requestLine = "R\n"

const (
	defaultSerialTimeout = 500 * time.Millisecond
	maxLineLen           = 256
)

// ErrSerialTimeout is returned when the bridge does not answer with a
// complete line in time.
var ErrSerialTimeout = errors.New("serial bridge timeout")

// port is the part of serial.Port used here.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// SerialSensor talks to a microcontroller that samples its analog pins on
// request and answers with one comma-separated line, one value per
// configured channel, e.g. "1523,1490,1611,1587".
type SerialSensor struct {
	port     port
	channels []config.ChannelConfig
	timeout  time.Duration
	buf      []byte
	now      func() time.Time
}

func NewSerialSensor(cfg config.Config) (Sensor, error) {
	p, err := serial.Open(cfg.Serial.Port, &serial.Mode{BaudRate: cfg.Serial.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Serial.Port, err)
	}
	timeout := defaultSerialTimeout
	if cfg.Serial.TimeoutMs > 0 {
		timeout = time.Duration(cfg.Serial.TimeoutMs) * time.Millisecond
	}
	// go.bug.st/serial reports an expired read timeout as (0, nil).
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial timeout: %w", err)
	}
	return newSerialSensor(p, cfg.EnabledChannels(), timeout), nil
}

func newSerialSensor(p port, channels []config.ChannelConfig, timeout time.Duration) *SerialSensor {
	return &SerialSensor{
		port:     p,
		channels: channels,
		timeout:  timeout,
		buf:      make([]byte, 0, maxLineLen),
		now:      time.Now,
	}
}

func (s *SerialSensor) Read() ([]Reading, error) {
	values, err := s.request()
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Reading, 0, len(s.channels))
	for _, ch := range s.channels {
		if ch.Pin < 0 || ch.Pin >= len(values) {
			return nil, fmt.Errorf("%w: bridge sent %d values, channel %d wants index %d", ErrInvalidChannel, len(values), ch.Channel, ch.Pin)
		}
		out = append(out, Reading{Channel: ch.Channel, Pin: ch.Pin, Raw: values[ch.Pin], Timestamp: now})
	}
	return out, nil
}

// request sends one request and waits for the first line that parses.
// Bytes left over from an earlier, late answer are discarded first so they
// cannot be taken as the reply. Lines that do not parse (boot banners,
// line noise) are skipped. The whole exchange is bounded by s.timeout.
func (s *SerialSensor) request() ([]int, error) {
	s.buf = s.buf[:0]
	if err := s.port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("serial reset: %w", err)
	}
	if _, err := io.WriteString(s.port, requestLine); err != nil {
		return nil, fmt.Errorf("serial write: %w", err)
	}

	deadline := s.now().Add(s.timeout)
	var lastErr error
	chunk := make([]byte, 64)
	for {
		n, err := s.port.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		for {
			i := bytes.IndexByte(s.buf, '\n')
			if i < 0 {
				break
			}
			line := string(s.buf[:i])
			s.buf = s.buf[i+1:]
			values, perr := parseLine(line)
			if perr == nil {
				return values, nil
			}
			lastErr = perr
		}
		if err != nil {
			return nil, fmt.Errorf("serial read: %w", err)
		}
		if len(s.buf) > maxLineLen {
			return nil, fmt.Errorf("serial read: line longer than %d bytes", maxLineLen)
		}
		if n == 0 || s.now().After(deadline) {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrSerialTimeout, lastErr)
			}
			return nil, fmt.Errorf("%w after %s", ErrSerialTimeout, s.timeout)
		}
	}
}

func parseLine(line string) ([]int, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("parse bridge line %q: %w", strings.TrimSpace(line), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *SerialSensor) Close() error { return s.port.Close() }
