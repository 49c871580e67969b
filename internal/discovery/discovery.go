// Package discovery finds chat backends on this machine and tracks whether
// the configured one is reachable.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Backend status values
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Backend is one chat service found by a scan.
type Backend struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`     // from the OpenAPI document
	Version   string    `json:"version"`   // from the OpenAPI document
	Status    string    `json:"status"`    // "online" or "offline"
	Latency   int64     `json:"latency"`   // probe round trip in ms
	LastSeen  time.Time `json:"lastSeen"`  // last successful probe
	Speech    bool      `json:"speech"`    // serves /avatar/speak
	Documents bool      `json:"documents"` // serves /documents/upload
}

// openAPIDoc is the part of a FastAPI /openapi.json we read.
type openAPIDoc struct {
	Info struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	} `json:"info"`
	Paths map[string]json.RawMessage `json:"paths"`
}

// Config holds discovery configuration
type Config struct {
	// Ports to scan on localhost
	Ports []int
	// URLs to probe in addition to the port scan, e.g. the configured backend
	URLs []string
	// Probe timeout per endpoint
	Timeout time.Duration
	// How often Start rescans
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Ports:           []int{8000, 8001, 8080},
		Timeout:         2 * time.Second,
		RefreshInterval: 30 * time.Second,
	}
}

// Service probes candidate URLs and keeps the last known status of each.
type Service struct {
	cfg        *Config
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.RWMutex
	backends map[string]*Backend
	onUpdate func([]Backend)
}

// NewService creates a discovery service
func NewService(cfg *Config, logger zerolog.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "discovery").Logger(),
		backends:   make(map[string]*Backend),
	}
}

// SetOnUpdate sets the callback run after every scan
func (s *Service) SetOnUpdate(fn func([]Backend)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// AddURL adds a URL to probe on every scan
func (s *Service) AddURL(url string) {
	url = strings.TrimRight(url, "/")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.cfg.URLs {
		if u == url {
			return
		}
	}
	s.cfg.URLs = append(s.cfg.URLs, url)
}

// Start scans immediately and then every RefreshInterval until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go func() {
		s.Scan(ctx)

		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Scan(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Scan probes every candidate concurrently and returns all known backends.
// Backends seen before but not answering now are kept as offline.
func (s *Service) Scan(ctx context.Context) []Backend {
	s.mu.RLock()
	candidates := make([]string, 0, len(s.cfg.Ports)+len(s.cfg.URLs))
	for _, port := range s.cfg.Ports {
		candidates = append(candidates, fmt.Sprintf("http://localhost:%d", port))
	}
	candidates = append(candidates, s.cfg.URLs...)
	s.mu.RUnlock()

	var wg sync.WaitGroup
	results := make(chan *Backend, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, url := range candidates {
		if seen[url] {
			continue
		}
		seen[url] = true
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if b := s.probe(ctx, u); b != nil {
				results <- b
			}
		}(url)
	}
	wg.Wait()
	close(results)

	s.mu.Lock()
	for _, b := range s.backends {
		b.Status = StatusOffline
	}
	for b := range results {
		s.backends[b.URL] = b
	}
	list := s.listLocked()
	callback := s.onUpdate
	s.mu.Unlock()

	s.logger.Debug().Int("online", countOnline(list)).Int("known", len(list)).Msg("Backend scan complete")
	if callback != nil {
		callback(list)
	}
	return list
}

// probe fetches the OpenAPI document at baseURL. nil means nothing usable
// answered.
func (s *Service) probe(ctx context.Context, baseURL string) *Backend {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/openapi.json", nil)
	if err != nil {
		return nil
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var doc openAPIDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil
	}
	// Anything without the chat endpoint is some other service.
	if _, ok := doc.Paths["/chat/query"]; !ok {
		return nil
	}

	_, speech := doc.Paths["/avatar/speak"]
	_, docs := doc.Paths["/documents/upload"]
	return &Backend{
		URL:       baseURL,
		Title:     doc.Info.Title,
		Version:   doc.Info.Version,
		Status:    StatusOnline,
		Latency:   time.Since(start).Milliseconds(),
		LastSeen:  time.Now(),
		Speech:    speech,
		Documents: docs,
	}
}

// Backends returns all known backends, online first.
func (s *Service) Backends() []Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

// Backend returns the last known status of url.
func (s *Service) Backend(url string) (Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.backends[strings.TrimRight(url, "/")]
	if !ok {
		return Backend{}, false
	}
	return *b, true
}

func (s *Service) listLocked() []Backend {
	list := make([]Backend, 0, len(s.backends))
	for _, b := range s.backends {
		list = append(list, *b)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Status != list[j].Status {
			return list[i].Status == StatusOnline
		}
		return list[i].URL < list[j].URL
	})
	return list
}

func countOnline(list []Backend) int {
	n := 0
	for _, b := range list {
		if b.Status == StatusOnline {
			n++
		}
	}
	return n
}
