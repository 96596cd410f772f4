package watchdog

import (
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoft_ExpiresWithoutFeed(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewSoft(20*time.Millisecond, func() { fired <- struct{}{} })
	defer s.Close()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not expire")
	}
}

func TestSoft_FeedKeepsAlive(t *testing.T) {
	var fired atomic.Int32
	s := NewSoft(80*time.Millisecond, func() { fired.Add(1) })
	defer s.Close()

	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, s.Feed())
	}
	assert.Equal(t, int32(0), fired.Load())
}

func TestSoft_CloseDisarms(t *testing.T) {
	var fired atomic.Int32
	s := NewSoft(10*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, s.Close())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Error(t, s.Feed())
}

func TestNew(t *testing.T) {
	g, err := New(config.WatchdogConfig{Type: config.WatchdogNone}, nil)
	require.NoError(t, err)
	assert.NoError(t, g.Feed())

	g, err = New(config.WatchdogConfig{Type: config.WatchdogSoft, TimeoutSec: 15}, func() {})
	require.NoError(t, err)
	assert.NoError(t, g.Feed())
	assert.NoError(t, g.Close())

	_, err = New(config.WatchdogConfig{Type: "bogus"}, nil)
	assert.Error(t, err)

	_, err = New(config.WatchdogConfig{Type: config.WatchdogDevice, Device: filepath.Join(t.TempDir(), "watchdog"), TimeoutSec: 15}, nil)
	assert.Error(t, err)
}
