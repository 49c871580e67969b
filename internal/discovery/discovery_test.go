package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backendServer(t *testing.T, doc string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openapi.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const chatDoc = `{
	"info": {"title": "Chat API", "version": "1.2.0"},
	"paths": {"/chat/query": {}, "/avatar/speak": {}, "/documents/upload": {}}
}`

func newTestService(urls ...string) *Service {
	return NewService(&Config{URLs: urls, Timeout: time.Second}, zerolog.Nop())
}

func TestScan_FindsBackend(t *testing.T) {
	srv := backendServer(t, chatDoc)
	svc := newTestService(srv.URL)

	list := svc.Scan(context.Background())
	require.Len(t, list, 1)

	b := list[0]
	assert.Equal(t, srv.URL, b.URL)
	assert.Equal(t, StatusOnline, b.Status)
	assert.Equal(t, "Chat API", b.Title)
	assert.Equal(t, "1.2.0", b.Version)
	assert.True(t, b.Speech)
	assert.True(t, b.Documents)
	assert.False(t, b.LastSeen.IsZero())
}

func TestScan_IgnoresOtherServices(t *testing.T) {
	other := backendServer(t, `{"info": {"title": "Other"}, "paths": {"/users": {}}}`)
	broken := backendServer(t, `not json`)
	svc := newTestService(other.URL, broken.URL)

	assert.Empty(t, svc.Scan(context.Background()))
}

func TestScan_MarksVanishedBackendOffline(t *testing.T) {
	srv := backendServer(t, chatDoc)
	svc := newTestService(srv.URL)

	svc.Scan(context.Background())
	srv.Close()

	list := svc.Scan(context.Background())
	require.Len(t, list, 1)
	assert.Equal(t, StatusOffline, list[0].Status)

	b, ok := svc.Backend(srv.URL + "/")
	require.True(t, ok)
	assert.Equal(t, StatusOffline, b.Status)
}

func TestScan_OnUpdate(t *testing.T) {
	srv := backendServer(t, chatDoc)
	svc := newTestService()
	svc.AddURL(srv.URL + "/")
	svc.AddURL(srv.URL)

	var got []Backend
	svc.SetOnUpdate(func(list []Backend) { got = list })
	svc.Scan(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, srv.URL, got[0].URL)
}

func TestBackends_OnlineFirst(t *testing.T) {
	svc := newTestService()
	svc.backends["http://a"] = &Backend{URL: "http://a", Status: StatusOffline}
	svc.backends["http://b"] = &Backend{URL: "http://b", Status: StatusOnline}
	svc.backends["http://c"] = &Backend{URL: "http://c", Status: StatusOnline}

	list := svc.Backends()
	require.Len(t, list, 3)
	assert.Equal(t, "http://b", list[0].URL)
	assert.Equal(t, "http://c", list[1].URL)
	assert.Equal(t, "http://a", list[2].URL)
}
