package bridge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/spritetalk/internal/config"
	"github.com/normanking/spritetalk/internal/discovery"
)

type fakeSwitcher struct {
	url string
}

func (f *fakeSwitcher) BaseURL() string       { return f.url }
func (f *fakeSwitcher) SetBaseURL(url string) { f.url = url }

func newConnectionHarness(t *testing.T) (*ConnectionBridge, *fakeSwitcher, *eventRecorder) {
	t.Helper()
	cfg := config.DefaultConfig()
	client := &fakeSwitcher{url: cfg.Backend.BaseURL}
	svc := discovery.NewService(&discovery.Config{Timeout: time.Second}, zerolog.Nop())

	b := NewConnectionBridge(cfg, client, svc, nil, zerolog.Nop())
	b.save = func(*config.Config) error { return nil }
	rec := &eventRecorder{}
	b.set(rec.emit)
	return b, client, rec
}

func TestConnectionBridge_SelectBackend(t *testing.T) {
	b, client, rec := newConnectionHarness(t)

	require.NoError(t, b.SelectBackend(" http://10.0.0.5:8000/ "))
	assert.Equal(t, "http://10.0.0.5:8000", client.url)
	assert.Equal(t, "http://10.0.0.5:8000", b.cfg.Backend.BaseURL)
	assert.Equal(t, "http://10.0.0.5:8000", b.GetServerURL())
	assert.Len(t, rec.named("connection:backend-selected"), 1)

	assert.Error(t, b.SelectBackend("  "))
}

func TestConnectionBridge_ScanReportsBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"info":{"title":"Chat"},"paths":{"/chat/query":{},"/avatar/speak":{}}}`))
	}))
	defer srv.Close()

	b, _, rec := newConnectionHarness(t)
	require.NoError(t, b.SelectBackend(srv.URL))

	list := b.ScanBackends()
	require.Len(t, list, 1)
	assert.True(t, list[0].Speech)
	assert.Len(t, rec.named("connection:backends"), 1)

	status := b.GetConnectionStatus()
	assert.Equal(t, discovery.StatusOnline, status["backendStatus"])
	assert.Equal(t, false, status["streamEnabled"])
	assert.Len(t, b.GetBackends(), 1)
}
