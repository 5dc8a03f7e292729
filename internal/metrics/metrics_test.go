package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Turn("send")
		m.TurnFailed("send")
		m.Frame()
		m.FramesDropped(3)
		m.Interrupt("raised")
		m.VoiceChunk()
		m.VoiceFailure()
		m.Screenshot("a", "ok")
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.Turn("send")
	m.Turn("send")
	m.Turn("resume")
	m.TurnFailed("resume")
	m.Frame()
	m.FramesDropped(2)
	m.FramesDropped(0)
	m.Interrupt("raised")
	m.Screenshot("b", "no_browser")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("send")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("resume")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnFailures.WithLabelValues("resume")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.droppedFrames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interrupts.WithLabelValues("raised")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.screenshots.WithLabelValues("b", "no_browser")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Turn("send")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `roomchat_turns_total{kind="send"} 1`)
}
