package sprites

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/lipsync"
)

// Store holds the active manifest and reloads it when its file changes.
type Store struct {
	mu       sync.RWMutex
	path     string
	manifest *Manifest
	logger   zerolog.Logger
	onReload []func(*Manifest)
}

// NewStore loads the manifest at path. An empty path uses Default().
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With().Str("component", "sprites").Logger(),
	}

	if path == "" {
		s.manifest = Default()
		return s, nil
	}

	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.manifest = m
	s.logger.Info().
		Str("path", path).
		Strs("styles", m.StyleNames()).
		Msg("Sprite manifest loaded")
	return s, nil
}

// Path returns the manifest file path, empty for the built-in manifest.
func (s *Store) Path() string { return s.path }

// Manifest returns the active manifest.
func (s *Store) Manifest() *Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// Styles returns the available style names.
func (s *Store) Styles() []string {
	return s.Manifest().StyleNames()
}

// Style returns a style by name, the default style for "".
func (s *Store) Style(name string) (*Style, error) {
	return s.Manifest().Style(name)
}

// FrameMap returns the frame table of a style.
func (s *Store) FrameMap(style string) (lipsync.FrameMap, error) {
	st, err := s.Style(style)
	if err != nil {
		return nil, err
	}
	return st.FrameMap(), nil
}

// OnReload registers fn to run after every successful reload.
func (s *Store) OnReload(fn func(*Manifest)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Reload re-reads the manifest file. On error the previous manifest stays
// active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}

	m, err := Load(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Sprite manifest reload failed, keeping previous")
		return err
	}

	s.mu.Lock()
	s.manifest = m
	handlers := append(([]func(*Manifest))(nil), s.onReload...)
	s.mu.Unlock()

	s.logger.Info().Str("path", s.path).Strs("styles", m.StyleNames()).Msg("Sprite manifest reloaded")
	for _, fn := range handlers {
		fn(m)
	}
	return nil
}

// Watch reloads the manifest whenever its file is written or replaced,
// until ctx is cancelled. It returns once the watcher is registered.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("built-in sprite manifest cannot be watched")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory so editors that save via rename are seen.
	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	go s.watchLoop(ctx, watcher, target)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, target string) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				_ = s.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Msg("Sprite manifest watcher error")
		}
	}
}
