// Package config provides configuration management for SpriteTalk
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	LipSync LipSyncConfig `mapstructure:"lipsync"`
	Avatar  AvatarConfig  `mapstructure:"avatar"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Window  WindowConfig  `mapstructure:"window"`
	Log     LogConfig     `mapstructure:"log"`
}

// BackendConfig configures the chat/RAG/TTS HTTP service
type BackendConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Provider string        `mapstructure:"provider"` // groq, openai, anthropic, ollama
	UseRAG   bool          `mapstructure:"use_rag"`
}

// SpeechConfig configures spoken replies
type SpeechConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	CacheSize   int           `mapstructure:"cache_size"` // 0 disables the cache
	AudioFormat string        `mapstructure:"audio_format"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LipSyncConfig tunes frame selection
type LipSyncConfig struct {
	TransitionDuration time.Duration `mapstructure:"transition_duration"`
	NearestWindow      float64       `mapstructure:"nearest_window"` // seconds
	CycleRate          float64       `mapstructure:"cycle_rate"`     // frames per second
	FrameInterval      time.Duration `mapstructure:"frame_interval"`
	MetadataTimeout    time.Duration `mapstructure:"metadata_timeout"`
}

// AvatarConfig selects the sprite style
type AvatarConfig struct {
	Style         string `mapstructure:"style"`
	ManifestPath  string `mapstructure:"manifest_path"` // empty uses the built-in styles
	WatchManifest bool   `mapstructure:"watch_manifest"`
}

// StreamConfig configures the websocket frame stream
type StreamConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// WindowConfig configures the window
type WindowConfig struct {
	Title       string `mapstructure:"title"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	AlwaysOnTop bool   `mapstructure:"always_on_top"`
	Frameless   bool   `mapstructure:"frameless"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"` // empty uses ~/.spritetalk/logs
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:  "http://localhost:8000",
			Timeout:  60 * time.Second,
			Provider: "groq",
			UseRAG:   true,
		},
		Speech: SpeechConfig{
			Enabled:     true,
			CacheSize:   64,
			AudioFormat: "mp3",
			Timeout:     60 * time.Second,
		},
		LipSync: LipSyncConfig{
			TransitionDuration: 50 * time.Millisecond,
			NearestWindow:      0.2,
			CycleRate:          8,
			FrameInterval:      16 * time.Millisecond,
			MetadataTimeout:    10 * time.Second,
		},
		Avatar: AvatarConfig{
			Style:         "classic",
			WatchManifest: true,
		},
		Stream: StreamConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:8765",
		},
		Window: WindowConfig{
			Title:  "SpriteTalk",
			Width:  480,
			Height: 760,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects values the playback engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Speech.CacheSize < 0 {
		errs = append(errs, errors.New("speech.cache_size must not be negative"))
	}
	if c.LipSync.TransitionDuration < 0 {
		errs = append(errs, errors.New("lipsync.transition_duration must not be negative"))
	}
	if c.LipSync.NearestWindow < 0 {
		errs = append(errs, errors.New("lipsync.nearest_window must not be negative"))
	}
	if c.LipSync.CycleRate <= 0 {
		errs = append(errs, errors.New("lipsync.cycle_rate must be positive"))
	}
	if c.LipSync.FrameInterval <= 0 {
		errs = append(errs, errors.New("lipsync.frame_interval must be positive"))
	}
	if c.LipSync.MetadataTimeout <= 0 {
		errs = append(errs, errors.New("lipsync.metadata_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".spritetalk"), nil
}

// Load reads ~/.spritetalk/config.yaml and SPRITETALK_* overrides. A
// default file is written on first run.
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return DefaultConfig(), err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := SaveTo(DefaultConfig(), path); err != nil {
			return DefaultConfig(), err
		}
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path on top of the defaults. A missing
// file yields the defaults with env overrides applied.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to ~/.spritetalk/config.yaml
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(configDir, "config.yaml"))
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	for key, value := range settings(cfg) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// newViper registers every default so env overrides resolve for keys the
// file does not mention.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SPRITETALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range settings(cfg) {
		v.SetDefault(key, value)
	}
	return v
}

func settings(cfg *Config) map[string]any {
	return map[string]any{
		"backend.base_url":            cfg.Backend.BaseURL,
		"backend.timeout":             cfg.Backend.Timeout,
		"backend.provider":            cfg.Backend.Provider,
		"backend.use_rag":             cfg.Backend.UseRAG,
		"speech.enabled":              cfg.Speech.Enabled,
		"speech.cache_size":           cfg.Speech.CacheSize,
		"speech.audio_format":         cfg.Speech.AudioFormat,
		"speech.timeout":              cfg.Speech.Timeout,
		"lipsync.transition_duration": cfg.LipSync.TransitionDuration,
		"lipsync.nearest_window":      cfg.LipSync.NearestWindow,
		"lipsync.cycle_rate":          cfg.LipSync.CycleRate,
		"lipsync.frame_interval":      cfg.LipSync.FrameInterval,
		"lipsync.metadata_timeout":    cfg.LipSync.MetadataTimeout,
		"avatar.style":                cfg.Avatar.Style,
		"avatar.manifest_path":        cfg.Avatar.ManifestPath,
		"avatar.watch_manifest":       cfg.Avatar.WatchManifest,
		"stream.enabled":              cfg.Stream.Enabled,
		"stream.listen_addr":          cfg.Stream.ListenAddr,
		"window.title":                cfg.Window.Title,
		"window.width":                cfg.Window.Width,
		"window.height":               cfg.Window.Height,
		"window.always_on_top":        cfg.Window.AlwaysOnTop,
		"window.frameless":            cfg.Window.Frameless,
		"log.level":                   cfg.Log.Level,
		"log.dir":                     cfg.Log.Dir,
	}
}
