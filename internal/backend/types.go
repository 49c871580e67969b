package backend

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/normanking/spritetalk/internal/lipsync"
)

// QueryRequest is the body of POST /chat/query.
type QueryRequest struct {
	Query    string `json:"query"`
	Provider string `json:"provider,omitempty"`
	UseRAG   bool   `json:"use_rag"`
}

// QueryResponse is a chat turn answer.
type QueryResponse struct {
	Response    string `json:"response"`
	ContextUsed bool   `json:"context_used"`
}

// UploadResponse reports how many chunks were indexed.
type UploadResponse struct {
	ChunksAdded int    `json:"chunks_added"`
	Message     string `json:"message,omitempty"`
}

// File is one document for upload.
type File struct {
	Name    string
	Content io.Reader
}

type speakRequest struct {
	Text string `json:"text"`
}

type speakResponse struct {
	AudioBase64 string           `json:"audio_base64"`
	Visemes     lipsync.Sequence `json:"visemes"`
	Duration    float64          `json:"duration"`
}

// Speech is decoded speech audio with its viseme timeline.
type Speech struct {
	Text     string           `json:"text"`
	Audio    []byte           `json:"-"`
	Format   string           `json:"format"`
	Visemes  lipsync.Sequence `json:"visemes"`
	Duration float64          `json:"duration"`

	// Estimated is set when the visemes were guessed locally from the text.
	Estimated bool `json:"estimated"`
	// Cached is set when the response came from the local speech cache.
	Cached bool `json:"cached"`
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// parseAPIError extracts FastAPI's "detail" field, falling back to the raw
// body.
func parseAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return &APIError{Status: status, Detail: s}
		}
		return &APIError{Status: status, Detail: string(payload.Detail)}
	}
	return &APIError{Status: status, Detail: truncateForLog(string(body), 200)}
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
