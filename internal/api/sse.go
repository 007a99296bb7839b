package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/famhealth/famhealth/internal/domain"
)

// SSEWriter frames server-sent events on an HTTP response. A stream ends
// with exactly one terminal event, either done or error; further writes
// after the terminal are dropped.
type SSEWriter struct {
	w        io.Writer
	flush    func()
	terminal bool
}

// NewSSEWriter prepares w for event streaming and returns the writer.
// Streaming needs a flushable response; plain writers still work for tests.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	return &SSEWriter{w: w, flush: flush}
}

func (s *SSEWriter) writeEvent(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.flush()
}

// WriteMessage emits one content chunk.
func (s *SSEWriter) WriteMessage(content string) {
	if s.terminal {
		return
	}
	s.writeEvent("message", map[string]any{"content": content, "done": false})
}

// WriteProgress emits an ingestion progress update.
func (s *SSEWriter) WriteProgress(current, total int, message string) {
	if s.terminal {
		return
	}
	s.writeEvent("progress", map[string]any{
		"current": current,
		"total":   total,
		"message": message,
	})
}

// WriteChunk relays a stream chunk, terminating the stream on Done.
func (s *SSEWriter) WriteChunk(chunk domain.StreamChunk) {
	if chunk.Done {
		s.WriteDone(chunk.TokensUsed, nil)
		return
	}
	s.WriteMessage(chunk.Content)
}

// WriteDone emits the terminal done event. extra fields are merged into the
// payload.
func (s *SSEWriter) WriteDone(tokensUsed int, extra map[string]any) {
	if s.terminal {
		return
	}
	s.terminal = true
	payload := map[string]any{"tokensUsed": tokensUsed}
	for k, v := range extra {
		payload[k] = v
	}
	s.writeEvent("done", payload)
}

// WriteError emits the terminal error event.
func (s *SSEWriter) WriteError(message string) {
	if s.terminal {
		return
	}
	s.terminal = true
	s.writeEvent("error", map[string]any{"error": message})
}

// Terminated reports whether a terminal event has been written.
func (s *SSEWriter) Terminated() bool { return s.terminal }
