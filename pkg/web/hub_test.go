package web

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func bigReport(n int) moisture.Report {
	raw := make([]int, n)
	for i := range raw {
		raw[i] = 4095
	}
	return moisture.DefaultEstimator().Report(moisture.NewSample(raw, time.Now()), "en")
}

func TestHubPublish_StalledClientDoesNotBlock(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	// connects and never reads
	dialHub(t, ts)
	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	r := bigReport(64 * 1024)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Hub().Publish(r))
	}
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubPublish_ReaderKeepsReceivingBesideStalledClient(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	dialHub(t, ts)
	reader := dialHub(t, ts)
	require.Eventually(t, func() bool { return s.Hub().Clients() == 2 }, time.Second, 10*time.Millisecond)

	reader.SetReadDeadline(time.Now().Add(5 * time.Second))
	var initial moisture.Report
	require.NoError(t, reader.ReadJSON(&initial))

	next := moisture.DefaultEstimator().Report(moisture.NewSample([]int{1200, 1200, 1200, 1200}, time.Now()), "en")
	require.NoError(t, s.Hub().Publish(next))

	var got moisture.Report
	require.NoError(t, reader.ReadJSON(&got))
	assert.Equal(t, 1200, got.Mean)
	assert.Equal(t, "Adequate", got.Status)
}

func TestHubClose_SendsCloseFrame(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialHub(t, ts)
	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var initial moisture.Report
	require.NoError(t, conn.ReadJSON(&initial))

	require.NoError(t, s.Hub().Close())
	assert.Equal(t, 0, s.Hub().Clients())

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
