// Package backend is the HTTP client for the chat/RAG/speech service.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/normanking/spritetalk/internal/lipsync"
	"github.com/normanking/spritetalk/internal/metrics"
)

// MaxSpeechRunes is the longest text sent for synthesis; longer input is
// cut and suffixed with "...".
const MaxSpeechRunes = 1000

var (
	// ErrEmptyText is returned by Speak for blank input.
	ErrEmptyText = errors.New("no text to speak")
	// ErrEmptySpeech is returned when the service answers without audio.
	ErrEmptySpeech = errors.New("speech response contained no audio")
)

// ClientConfig configures the backend client
type ClientConfig struct {
	BaseURL         string        // e.g. "http://localhost:8000"
	Timeout         time.Duration // HTTP request timeout
	SpeechCacheSize int           // 0 disables the speech cache
	AudioFormat     string        // format of synthesized audio, "mp3" by default
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         "http://localhost:8000",
		Timeout:         60 * time.Second,
		SpeechCacheSize: 64,
		AudioFormat:     "mp3",
	}
}

// Client talks to the chat backend
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	cache      *lru.Cache[string, *Speech]

	mu      sync.RWMutex
	baseURL string
}

// NewClient creates a new backend client. m may be nil.
func NewClient(cfg *ClientConfig, logger zerolog.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}

	c := &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:  logger.With().Str("component", "backend-client").Logger(),
		metrics: m,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}

	if cfg.SpeechCacheSize > 0 {
		cache, err := lru.New[string, *Speech](cfg.SpeechCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create speech cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// BaseURL returns the service address requests go to
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL points the client at another backend. Cached speech is kept;
// it depends only on the text.
func (c *Client) SetBaseURL(url string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(url, "/")
	c.mu.Unlock()
	c.logger.Info().Str("url", url).Msg("Backend address changed")
}

// Query sends one chat turn
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.postJSON(ctx, "/chat/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload sends documents for RAG ingestion as multipart "files" parts
func (c *Client) Upload(ctx context.Context, files ...File) (*UploadResponse, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+"/documents/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	if err := c.do(req, "/documents/upload", &resp); err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("files", len(files)).
		Int("chunks", resp.ChunksAdded).
		Msg("Documents uploaded")
	return &resp, nil
}

// ClearDocuments empties the RAG index
func (c *Client) ClearDocuments(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL()+"/documents/clear", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, "/documents/clear", nil)
}

// Speak synthesizes text. Identical (normalized) text is served from the
// speech cache. When the service returns no visemes a timeline is
// estimated from the text.
func (c *Client) Speak(ctx context.Context, text string) (*Speech, error) {
	normalized := NormalizeSpeechText(text)
	if normalized == "" {
		return nil, ErrEmptyText
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(normalized); ok {
			c.metrics.RecordSpeechCache(true)
			hit := *cached
			hit.Cached = true
			return &hit, nil
		}
		c.metrics.RecordSpeechCache(false)
	}

	var resp speakResponse
	if err := c.postJSON(ctx, "/avatar/speak", speakRequest{Text: normalized}, &resp); err != nil {
		return nil, err
	}

	speech, err := resp.speech(normalized, c.config.AudioFormat)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("audio_bytes", len(speech.Audio)).
		Int("visemes", len(speech.Visemes)).
		Float64("duration", resp.Duration).
		Bool("estimated", speech.Estimated).
		Msg("Speech synthesized")

	if c.cache != nil {
		c.cache.Add(normalized, speech)
	}
	return speech, nil
}

// DecodeSpeech parses a saved /avatar/speak response body. format names
// the audio encoding; text is only used for the viseme estimate when the
// body carries no visemes.
func DecodeSpeech(data []byte, text, format string) (*Speech, error) {
	var resp speakResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse speech response: %w", err)
	}
	return resp.speech(NormalizeSpeechText(text), format)
}

func (r speakResponse) speech(text, format string) (*Speech, error) {
	audio, err := base64.StdEncoding.DecodeString(strings.TrimSpace(r.AudioBase64))
	if err != nil {
		return nil, fmt.Errorf("failed to decode speech audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptySpeech
	}

	speech := &Speech{
		Text:     text,
		Audio:    audio,
		Format:   format,
		Visemes:  r.Visemes,
		Duration: r.Duration,
	}
	if len(speech.Visemes) == 0 {
		speech.Visemes = lipsync.EstimateFromText(text, r.Duration)
		speech.Estimated = true
	}
	return speech, nil
}

// PurgeSpeechCache drops all cached speech
func (c *Client) PurgeSpeechCache() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// NormalizeSpeechText trims text and caps it at MaxSpeechRunes.
func NormalizeSpeechText(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= MaxSpeechRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxSpeechRunes]) + "..."
}

func (c *Client) postJSON(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, endpoint, out)
}

// do executes req, maps non-2xx responses to *APIError and decodes the body
// into out when out is non-nil.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordBackend(endpoint, "error", time.Since(start))
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordBackend(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, respBody)
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("detail", apiErr.Detail).
			Msg("Backend request failed")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error().Err(err).
			Str("endpoint", endpoint).
			Str("body", truncateForLog(string(respBody), 500)).
			Msg("Failed to parse backend response")
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
