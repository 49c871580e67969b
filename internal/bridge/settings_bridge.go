package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/config"
)

// SettingsData represents the settings editable in the frontend
type SettingsData struct {
	// Backend settings
	BackendURL string `json:"backendUrl"`
	Provider   string `json:"provider"`
	UseRAG     bool   `json:"useRag"`

	// Speech settings
	SpeechEnabled bool `json:"speechEnabled"`

	// Lip-sync settings
	TransitionMs      int     `json:"transitionMs"`
	CycleRate         float64 `json:"cycleRate"`
	NearestWindowSecs float64 `json:"nearestWindowSecs"`

	// Avatar settings
	Style string `json:"style"`
}

// SettingsBridge exposes settings methods to the frontend
type SettingsBridge struct {
	emitter
	cfg      *config.Config
	save     func(*config.Config) error
	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewSettingsBridge creates a new settings bridge
func NewSettingsBridge(cfg *config.Config, eventBus *bus.EventBus, logger zerolog.Logger) *SettingsBridge {
	return &SettingsBridge{
		cfg:      cfg,
		save:     config.Save,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// Bind sets the Wails runtime context
func (b *SettingsBridge) Bind(ctx context.Context) {
	b.bindContext(ctx)
}

// GetSettings returns current settings
func (b *SettingsBridge) GetSettings() SettingsData {
	return SettingsData{
		BackendURL:        b.cfg.Backend.BaseURL,
		Provider:          b.cfg.Backend.Provider,
		UseRAG:            b.cfg.Backend.UseRAG,
		SpeechEnabled:     b.cfg.Speech.Enabled,
		TransitionMs:      int(b.cfg.LipSync.TransitionDuration / time.Millisecond),
		CycleRate:         b.cfg.LipSync.CycleRate,
		NearestWindowSecs: b.cfg.LipSync.NearestWindow,
		Style:             b.cfg.Avatar.Style,
	}
}

// SaveSettings validates and persists settings. Lip-sync tuning and the
// backend URL apply on next start; the chat toggles are applied live by
// their own bridges.
func (b *SettingsBridge) SaveSettings(settings SettingsData) error {
	next := *b.cfg
	next.Backend.BaseURL = settings.BackendURL
	next.Backend.Provider = settings.Provider
	next.Backend.UseRAG = settings.UseRAG
	next.Speech.Enabled = settings.SpeechEnabled
	next.LipSync.TransitionDuration = time.Duration(settings.TransitionMs) * time.Millisecond
	next.LipSync.CycleRate = settings.CycleRate
	next.LipSync.NearestWindow = settings.NearestWindowSecs
	next.Avatar.Style = settings.Style

	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := b.save(&next); err != nil {
		b.logger.Error().Err(err).Msg("Failed to save settings")
		return err
	}
	*b.cfg = next

	b.logger.Info().Str("provider", settings.Provider).Str("style", settings.Style).Msg("Settings saved")
	b.send("settings:saved", settings)
	b.eventBus.Publish(bus.Event{
		Type: bus.EventTypeSettingsSaved,
		Data: map[string]any{"provider": settings.Provider, "style": settings.Style},
	})
	return nil
}

// GetConfigDir returns the configuration directory
func (b *SettingsBridge) GetConfigDir() (string, error) {
	return config.GetConfigDir()
}
