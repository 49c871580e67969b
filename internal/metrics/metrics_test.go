package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordUtterance(t *testing.T) {
	m := New("")
	m.RecordUtterance(OutcomeStarted)
	m.RecordUtterance(OutcomeStarted)
	m.RecordUtterance(OutcomeRejected)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Utterances.WithLabelValues(OutcomeStarted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Utterances.WithLabelValues(OutcomeRejected)))
}

func TestMetrics_FramesAndGauges(t *testing.T) {
	m := New("test")
	m.RecordFrame(true)
	m.RecordFrame(false)
	m.SetPlaybackActive(true)
	m.StreamClientConnected(2)
	m.StreamClientConnected(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FrameChanges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlaybackActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamClients))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New("dup")
	b := New("dup")
	a.RecordUtterance(OutcomeFailed)

	assert.Equal(t, 0.0, testutil.ToFloat64(b.Utterances.WithLabelValues(OutcomeFailed)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordUtterance(OutcomeStarted)
		m.RecordFrame(true)
		m.RecordMetadataWait(time.Second)
		m.SetPlaybackActive(true)
		m.RecordBackend("/chat/query", "200", time.Second)
		m.RecordSpeechCache(true)
		m.StreamClientConnected(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("spritetalk")
	m.RecordBackend("/avatar/speak", "200", 150*time.Millisecond)
	m.RecordSpeechCache(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `spritetalk_backend_requests_total{endpoint="/avatar/speak",status="200"} 1`)
	assert.Contains(t, string(body), `spritetalk_speech_cache_total{result="miss"} 1`)
}
