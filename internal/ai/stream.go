package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/famhealth/famhealth/internal/domain"
)

// streamParser consumes a server-sent-event completion body and converts it
// into StreamChunk callbacks. It guarantees exactly one terminal chunk per
// completed stream: either when the provider reports finish_reason "stop" or,
// failing that, when the body ends. A context cancellation produces no
// terminal chunk at all.
type streamParser struct {
	body    io.Reader
	onChunk domain.StreamFunc

	tokens   int
	doneSent bool
}

func newStreamParser(body io.Reader, onChunk domain.StreamFunc) *streamParser {
	return &streamParser{body: body, onChunk: onChunk}
}

func (p *streamParser) run(ctx context.Context) error {
	scanner := bufio.NewScanner(p.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			continue
		}

		p.handleFrame(payload)
		if p.doneSent {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.TransportError("read completion stream", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Provider closed the stream without a finish_reason. Still owe the
	// consumer a terminal chunk.
	p.sendDone()
	return nil
}

// handleFrame decodes one data frame. Malformed frames are skipped; partial
// JSON shows up when a proxy re-chunks the stream mid-frame.
func (p *streamParser) handleFrame(payload string) {
	var resp completionResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return
	}

	if resp.Usage.TotalTokens > 0 {
		p.tokens = resp.Usage.TotalTokens
	}

	choices := resp.Choices
	if len(choices) == 0 {
		choices = resp.Output.Choices
	}
	if len(choices) == 0 {
		return
	}

	choice := choices[0]
	content := choice.Delta.Content
	if content == "" {
		content = choice.Message.Content
	}
	if content != "" {
		p.onChunk(domain.StreamChunk{Content: content})
	}

	if choice.FinishReason == "stop" {
		p.sendDone()
	}
}

func (p *streamParser) sendDone() {
	if p.doneSent {
		return
	}
	p.doneSent = true
	p.onChunk(domain.StreamChunk{Done: true, TokensUsed: p.tokens})
}
