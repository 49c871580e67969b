package main

import (
	"github.com/normanking/spritetalk/internal/backend"
	"github.com/normanking/spritetalk/internal/bus"
	"github.com/normanking/spritetalk/internal/metrics"
	"github.com/normanking/spritetalk/internal/playback"
)

// engine is the headless counterpart of the desktop app: a backend client
// and a coordinator driven by wall-clock audio.
type engine struct {
	bus     *bus.EventBus
	metrics *metrics.Metrics
	client  *backend.Client
	player  *playback.Coordinator
}

func newEngine(style string) (*engine, error) {
	m := metrics.New("spritectl")
	eventBus := bus.NewEventBus()

	client, err := backend.NewClient(&backend.ClientConfig{
		BaseURL:         cfg.Backend.BaseURL,
		Timeout:         cfg.Backend.Timeout,
		SpeechCacheSize: cfg.Speech.CacheSize,
		AudioFormat:     cfg.Speech.AudioFormat,
	}, logger(), m)
	if err != nil {
		return nil, err
	}

	st, err := loadStyle(style)
	if err != nil {
		return nil, err
	}

	player := playback.New(playback.Options{
		Audio:              playback.ClockFactory(nil),
		Scheduler:          playback.NewTickerScheduler(cfg.LipSync.FrameInterval),
		Frames:             st.FrameMap(),
		TransitionDuration: cfg.LipSync.TransitionDuration.Seconds(),
		NearestWindow:      cfg.LipSync.NearestWindow,
		CycleRate:          cfg.LipSync.CycleRate,
		MetadataTimeout:    cfg.LipSync.MetadataTimeout,
		Bus:                eventBus,
		Metrics:            m,
		Logger:             logger(),
	})

	return &engine{bus: eventBus, metrics: m, client: client, player: player}, nil
}

func (e *engine) Close() {
	e.player.Close()
	e.bus.Clear()
}
