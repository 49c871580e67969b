package bridge

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/spritetalk/internal/logging"
)

func newTestLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.New(&logging.Config{Level: logging.LevelDebug, MaxHistory: 50, Output: io.Discard})
	require.NoError(t, err)
	l.ClearHistory()
	return l
}

func TestLogBridge_LogLevels(t *testing.T) {
	l := newTestLogger(t)
	b := NewLogBridge(l, nil)

	b.Log("WARNING", "audio", "autoplay blocked", nil)
	b.Log("error", "", "decode failed", map[string]interface{}{"id": "u1"})
	b.Log("verbose", "ui", "unknown level", nil)

	h := b.GetLogHistory(0)
	require.Len(t, h, 3)
	assert.Equal(t, "warn", h[0].Level)
	assert.Equal(t, "audio", h[0].Component)
	assert.Equal(t, "error", h[1].Level)
	assert.Equal(t, "frontend", h[1].Component)
	assert.Equal(t, "id=u1", h[1].Data)
	assert.Equal(t, "info", h[2].Level)

	b.ClearLogHistory()
	assert.Empty(t, b.GetLogHistory(0))
}

func TestLogBridge_StreamsEntries(t *testing.T) {
	l := newTestLogger(t)
	b := NewLogBridge(l, nil)
	rec := &eventRecorder{}
	b.set(rec.emit)
	l.SetOnLog(func(e logging.LogEntry) { b.send("log:entry", e) })

	b.Log("info", "ui", "hello", nil)
	entries := rec.named("log:entry")
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].data[0].(logging.LogEntry).Message)
}

func TestLogBridge_DiagnosticsAndReport(t *testing.T) {
	l := newTestLogger(t)
	b := NewLogBridge(l, func() map[string]interface{} {
		return map[string]interface{}{"playbackState": "idle", "style": "pixel"}
	})

	info := b.GetDiagnostics()
	assert.Equal(t, "idle", info["playbackState"])
	assert.Contains(t, info, "goVersion")

	b.Log("warn", "chat", "backend slow", map[string]interface{}{"ms": 900})
	report := b.ExportReport(10)
	assert.Contains(t, report, "style: pixel")
	assert.Contains(t, report, "[chat] backend slow ms=900")
	assert.Less(t, strings.Index(report, "== diagnostics =="), strings.Index(report, "== log =="))
}

func TestLogBridge_OpenWithoutFile(t *testing.T) {
	b := NewLogBridge(newTestLogger(t), nil)
	b.open = func(string) error {
		t.Fatal("nothing to open")
		return nil
	}
	assert.Error(t, b.OpenLogFile())
	assert.Error(t, b.OpenLogDir())
}
