package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/config"
	"github.com/normanking/spritetalk/internal/discovery"
	"github.com/normanking/spritetalk/internal/stream"
)

// BackendSwitcher is the part of the backend client the connection bridge
// redirects.
type BackendSwitcher interface {
	BaseURL() string
	SetBaseURL(url string)
}

// ConnectionBridge reports where the app talks to: the chat backend, other
// backends found on this machine and the optional frame stream.
type ConnectionBridge struct {
	emitter
	cfg       *config.Config
	save      func(*config.Config) error
	client    BackendSwitcher
	discovery *discovery.Service
	hub       *stream.Hub
	logger    zerolog.Logger
}

// NewConnectionBridge creates a connection bridge. hub may be nil when the
// frame stream is disabled.
func NewConnectionBridge(cfg *config.Config, client BackendSwitcher, svc *discovery.Service, hub *stream.Hub, logger zerolog.Logger) *ConnectionBridge {
	b := &ConnectionBridge{
		cfg:       cfg,
		save:      config.Save,
		client:    client,
		discovery: svc,
		hub:       hub,
		logger:    logger.With().Str("component", "connection").Logger(),
	}
	svc.SetOnUpdate(func(list []discovery.Backend) {
		b.send("connection:backends", list)
	})
	return b
}

// Bind sets the Wails runtime context
func (b *ConnectionBridge) Bind(ctx context.Context) {
	b.bindContext(ctx)
}

// GetServerURL returns the chat backend URL
func (b *ConnectionBridge) GetServerURL() string {
	return b.client.BaseURL()
}

// GetConnectionStatus returns the backend and frame stream status.
func (b *ConnectionBridge) GetConnectionStatus() map[string]any {
	url := b.client.BaseURL()
	status := map[string]any{
		"backendUrl":    url,
		"backendStatus": discovery.StatusOffline,
		"streamEnabled": b.hub != nil,
		"streamAddr":    "",
		"streamClients": 0,
	}
	if known, ok := b.discovery.Backend(url); ok {
		status["backendStatus"] = known.Status
		status["backendLatency"] = known.Latency
	}
	if b.hub != nil {
		status["streamAddr"] = b.cfg.Stream.ListenAddr
		status["streamClients"] = b.hub.ClientCount()
	}
	return status
}

// GetBackends returns the backends found by the last scan
func (b *ConnectionBridge) GetBackends() []discovery.Backend {
	return b.discovery.Backends()
}

// ScanBackends probes for backends now
func (b *ConnectionBridge) ScanBackends() []discovery.Backend {
	return b.discovery.Scan(context.Background())
}

// SelectBackend switches chat and speech requests to url and persists it.
func (b *ConnectionBridge) SelectBackend(url string) error {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if url == "" {
		return fmt.Errorf("backend url is empty")
	}

	next := *b.cfg
	next.Backend.BaseURL = url
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid backend url: %w", err)
	}
	if err := b.save(&next); err != nil {
		b.logger.Error().Err(err).Msg("Failed to save backend selection")
		return err
	}
	*b.cfg = next

	b.client.SetBaseURL(url)
	b.discovery.AddURL(url)
	b.logger.Info().Str("url", url).Msg("Backend selected")
	b.send("connection:backend-selected", url)
	return nil
}
