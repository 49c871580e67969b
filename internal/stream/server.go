package stream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/metrics"
)

// Server serves the frame stream, Prometheus metrics and a health check.
type Server struct {
	addr    string
	hub     *Hub
	metrics *metrics.Metrics
	logger  zerolog.Logger
	mux     *http.ServeMux
}

// NewServer wires the routes. m may be nil, in which case /metrics is not
// served.
func NewServer(addr string, hub *Hub, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		addr:    addr,
		hub:     hub,
		metrics: m,
		logger:  logger.With().Str("component", "stream-server").Logger(),
		mux:     http.NewServeMux(),
	}

	s.mux.Handle("/ws/frames", hub)
	if m != nil {
		s.mux.Handle("/metrics", m.Handler())
	}
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Frame stream listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
