package sensor

import (
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
)

// sleep is swapped out by tests.
var sleep = time.Sleep

// settleDelay is the pause after each channel read that lets the ADC input
// settle before the next conversion.
func settleDelay(cfg config.Config) time.Duration {
	return time.Duration(cfg.SettleMs) * time.Millisecond
}

// ConversionDelay is the time the ADS1115 needs for one single-shot
// conversion at the given rate, plus a small margin.
func ConversionDelay(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 128
	}
	return time.Duration(1000/sampleRate+2) * time.Millisecond
}
