// SpriteTalk - a chat window with a lip-synced sprite avatar
package main

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	"github.com/normanking/spritetalk/internal/backend"
	"github.com/normanking/spritetalk/internal/bridge"
	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/chat"
	"github.com/normanking/spritetalk/internal/config"
	"github.com/normanking/spritetalk/internal/discovery"
	"github.com/normanking/spritetalk/internal/logging"
	"github.com/normanking/spritetalk/internal/metrics"
	"github.com/normanking/spritetalk/internal/playback"
	"github.com/normanking/spritetalk/internal/sprites"
	"github.com/normanking/spritetalk/internal/stream"
)

const version = "0.3.0"

//go:embed all:frontend/dist
var assets embed.FS

// Global logger instance
var syslog *logging.Logger

// loadEnvFile copies KEY=value lines from ~/.spritetalk/.env into the
// process environment so SPRITETALK_* overrides can live there.
func loadEnvFile() []string {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil
	}
	file, err := os.Open(filepath.Join(dir, ".env"))
	if err != nil {
		return nil
	}
	defer file.Close()

	var loaded []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		// Only set if not already in environment
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			loaded = append(loaded, key)
		}
	}
	return loaded
}

func main() {
	envKeys := loadEnvFile()

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.DefaultConfig()
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Log.Level)
	if cfg.Log.Dir != "" {
		logCfg.LogDir = cfg.Log.Dir
	}

	var err error
	syslog, err = logging.New(logCfg)
	if err != nil {
		// Fallback to standard log if logger fails
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer syslog.Close()

	syslog.Info("main", "SpriteTalk starting", map[string]interface{}{"version": version})
	if len(envKeys) > 0 {
		syslog.Info("env", "Loaded environment variables", map[string]interface{}{
			"keys": strings.Join(envKeys, ", "),
		})
	}
	if cfgErr != nil {
		syslog.Warn("config", "Failed to load config, using defaults", map[string]interface{}{
			"error": cfgErr.Error(),
		})
	}
	syslog.Info("config", "Configuration loaded", map[string]interface{}{
		"backend":    cfg.Backend.BaseURL,
		"provider":   cfg.Backend.Provider,
		"windowSize": fmt.Sprintf("%dx%d", cfg.Window.Width, cfg.Window.Height),
	})

	app, err := newApp(cfg, syslog)
	if err != nil {
		syslog.Error("main", "Failed to assemble application", err, nil)
		os.Exit(1)
	}

	assetFS, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		syslog.Error("assets", "Failed to get assets", err, nil)
		os.Exit(1)
	}

	appOptions := &options.App{
		Title:       cfg.Window.Title,
		Width:       cfg.Window.Width,
		Height:      cfg.Window.Height,
		MinWidth:    320,
		MinHeight:   480,
		AlwaysOnTop: cfg.Window.AlwaysOnTop,
		Frameless:   cfg.Window.Frameless,
		AssetServer: &assetserver.Options{
			Assets: assetFS,
		},
		BackgroundColour: &options.RGBA{R: 24, G: 24, B: 37, A: 255},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
			app.avatarBridge,
			app.chatBridge,
			app.settingsBridge,
			app.logBridge,
			app.connectionBridge,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				FullSizeContent:            true,
			},
			About: &mac.AboutInfo{
				Title:   "SpriteTalk",
				Message: "Chat with a lip-synced avatar\nVersion " + version,
			},
		},
	}

	if err := wails.Run(appOptions); err != nil {
		syslog.Error("wails", "Wails.Run failed", err, nil)
		os.Exit(1)
	}
	syslog.Info("main", "Application exited normally", nil)
}

// App struct holds the main application state
type App struct {
	cfg    *config.Config
	syslog *logging.Logger
	cancel context.CancelFunc

	eventBus *bus.EventBus
	metrics  *metrics.Metrics
	store    *sprites.Store
	player   *playback.Coordinator
	session  *chat.Session
	hub       *stream.Hub
	server    *stream.Server
	discovery *discovery.Service

	avatarBridge     *bridge.AvatarBridge
	chatBridge       *bridge.ChatBridge
	settingsBridge   *bridge.SettingsBridge
	logBridge        *bridge.LogBridge
	connectionBridge *bridge.ConnectionBridge
}

func newApp(cfg *config.Config, syslog *logging.Logger) (*App, error) {
	m := metrics.New("spritetalk")
	eventBus := bus.NewEventBus()

	client, err := backend.NewClient(&backend.ClientConfig{
		BaseURL:         cfg.Backend.BaseURL,
		Timeout:         cfg.Backend.Timeout,
		SpeechCacheSize: cfg.Speech.CacheSize,
		AudioFormat:     cfg.Speech.AudioFormat,
	}, syslog.Zerolog(), m)
	if err != nil {
		return nil, err
	}

	store, err := sprites.NewStore(cfg.Avatar.ManifestPath, syslog.Zerolog())
	if err != nil {
		syslog.Error("sprites", "Failed to load sprite manifest, using built-in styles", err, map[string]interface{}{
			"path": cfg.Avatar.ManifestPath,
		})
		store, _ = sprites.NewStore("", syslog.Zerolog())
	}
	style, err := store.Style(cfg.Avatar.Style)
	if err != nil {
		syslog.Warn("sprites", "Configured style not found, using default", map[string]interface{}{
			"style": cfg.Avatar.Style,
		})
		if style, err = store.Style(""); err != nil {
			return nil, err
		}
	}

	avatarBridge := bridge.NewAvatarBridge(store, style.Name, eventBus, syslog.Zerolog())
	player := playback.New(playback.Options{
		Audio:              avatarBridge,
		Scheduler:          playback.NewTickerScheduler(cfg.LipSync.FrameInterval),
		TransitionDuration: cfg.LipSync.TransitionDuration.Seconds(),
		NearestWindow:      cfg.LipSync.NearestWindow,
		CycleRate:          cfg.LipSync.CycleRate,
		MetadataTimeout:    cfg.LipSync.MetadataTimeout,
		Bus:                eventBus,
		Metrics:            m,
		Logger:             syslog.Zerolog(),
	})
	if err := avatarBridge.AttachPlayer(player); err != nil {
		return nil, err
	}

	session := chat.NewSession(chat.SessionConfig{
		Provider:      cfg.Backend.Provider,
		UseRAG:        cfg.Backend.UseRAG,
		SpeechEnabled: cfg.Speech.Enabled,
		SpeechTimeout: cfg.Speech.Timeout,
		MaxMessages:   chat.DefaultMaxMessages,
	}, client, player, eventBus, syslog.Zerolog())

	app := &App{
		cfg:            cfg,
		syslog:         syslog,
		eventBus:       eventBus,
		metrics:        m,
		store:          store,
		player:         player,
		session:        session,
		avatarBridge:   avatarBridge,
		chatBridge:     bridge.NewChatBridge(session, syslog.Zerolog()),
		settingsBridge: bridge.NewSettingsBridge(cfg, eventBus, syslog.Zerolog()),
	}
	app.logBridge = bridge.NewLogBridge(syslog, app.diagnostics)

	if cfg.Stream.Enabled {
		app.hub = stream.NewHub(syslog.Zerolog(), m)
		player.Subscribe(app.hub.Broadcast)
		app.server = stream.NewServer(cfg.Stream.ListenAddr, app.hub, m, syslog.Zerolog())
	}

	discoveryCfg := discovery.DefaultConfig()
	discoveryCfg.URLs = []string{cfg.Backend.BaseURL}
	app.discovery = discovery.NewService(discoveryCfg, syslog.Zerolog())
	app.connectionBridge = bridge.NewConnectionBridge(cfg, client, app.discovery, app.hub, syslog.Zerolog())

	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypeSpeechRejected,
		bus.EventTypeSpeechFailed,
	}, func(e bus.Event) {
		syslog.Debug("bus", string(e.Type), e.Data)
	})
	return app, nil
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.avatarBridge.Bind(ctx)
	a.chatBridge.Bind(ctx)
	a.settingsBridge.Bind(ctx)
	a.logBridge.Bind(ctx)
	a.connectionBridge.Bind(ctx)

	a.discovery.Start(runCtx)

	if a.cfg.Avatar.WatchManifest && a.store.Path() != "" {
		if err := a.store.Watch(runCtx); err != nil {
			a.syslog.Error("sprites", "Failed to watch sprite manifest", err, nil)
		}
	}

	if a.server != nil {
		go func() {
			if err := a.server.Run(runCtx); err != nil {
				a.syslog.Error("stream", "Frame stream stopped", err, nil)
			}
		}()
	}

	a.syslog.Info("lifecycle", "App.startup() complete", nil)
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.avatarBridge.Shutdown()
	if err := a.player.Close(); err != nil {
		a.syslog.Warn("lifecycle", "Player close failed", map[string]interface{}{"error": err.Error()})
	}
	a.syslog.Info("lifecycle", "SpriteTalk shutdown complete", nil)
}

// diagnostics is the app's part of the troubleshooting report.
func (a *App) diagnostics() map[string]interface{} {
	snap := a.player.Snapshot()
	info := map[string]interface{}{
		"version":       version,
		"backendUrl":    a.connectionBridge.GetServerURL(),
		"provider":      a.session.Config().Provider,
		"style":         a.avatarBridge.Style(),
		"playbackState": string(snap.State),
		"utteranceId":   snap.UtteranceID,
		"messages":      len(a.session.Messages()),
	}
	if a.hub != nil {
		info["streamClients"] = a.hub.ClientCount()
	}
	return info
}

// GetVersion returns the application version
func (a *App) GetVersion() string {
	return version
}

// GetConfig returns the current configuration
func (a *App) GetConfig() *config.Config {
	return a.cfg
}
