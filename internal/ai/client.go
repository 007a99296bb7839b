// Package ai implements the completion-provider client used for both chat
// completions and vision-based text recognition. The provider speaks an
// OpenAI-compatible HTTP API but some deployments answer with a nested
// output envelope instead, so response decoding accepts both shapes.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
)

// Credentials carry everything needed to reach the provider for one request.
// They are resolved per call so a key saved through the settings API takes
// effect without a restart.
type Credentials struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	VisionModel string
}

// Configured reports whether an API key is present.
func (c Credentials) Configured() bool { return c.APIKey != "" }

// CredentialSource resolves provider credentials at request time.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Client talks to the completion provider.
type Client struct {
	creds       CredentialSource
	httpClient  *http.Client
	logger      *observability.Logger
	retry       RetryConfig
	temperature float64
	maxTokens   int
}

// Options configures a Client.
type Options struct {
	Timeout     time.Duration
	Retry       RetryConfig
	Temperature float64
	MaxTokens   int
}

// NewClient creates a provider client. creds is consulted on every request.
func NewClient(creds CredentialSource, logger *observability.Logger, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2000
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryConfig()
	}
	return &Client{
		creds:       creds,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		logger:      logger.WithComponent("ai"),
		retry:       opts.Retry,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// Message is one turn of a conversation. Content is either a plain string or
// a []ContentPart for multimodal requests.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"` // text or image_url
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps an image reference. URL may be an https URL or a data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// TextMessage builds a plain text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// VisionMessage builds a user message pairing an image with an instruction.
func VisionMessage(imageURL, instruction string) Message {
	return Message{
		Role: domain.RoleUser,
		Content: []ContentPart{
			{Type: "image_url", ImageURL: &ImageURL{URL: imageURL}},
			{Type: "text", Text: instruction},
		},
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// completionResponse covers both response envelopes the provider produces:
// the OpenAI-compatible top-level choices array and the nested output form.
type completionResponse struct {
	Choices []responseChoice `json:"choices"`
	Output  struct {
		Choices []responseChoice `json:"choices"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type responseChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

// content returns the first message content from either envelope.
func (r *completionResponse) content() (string, bool) {
	if len(r.Output.Choices) > 0 {
		return r.Output.Choices[0].Message.Content, true
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content, true
	}
	return "", false
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete performs a non-streaming completion.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (*domain.CompletionResult, error) {
	creds, err := c.resolveCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = creds.ChatModel
	}

	body, err := c.doRequest(ctx, creds, completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, domain.TransportError("read completion response", err)
	}

	var resp completionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, domain.TransportError("decode completion response", err)
	}

	content, ok := resp.content()
	if !ok {
		return nil, domain.TransportError("completion response contained no choices", nil)
	}

	return &domain.CompletionResult{
		Content:    content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      model,
	}, nil
}

// CompleteVision performs a non-streaming completion against the vision model.
func (c *Client) CompleteVision(ctx context.Context, messages []Message) (*domain.CompletionResult, error) {
	creds, err := c.resolveCredentials(ctx)
	if err != nil {
		return nil, err
	}
	return c.Complete(ctx, creds.VisionModel, messages)
}

// CompleteStream performs a streaming completion, invoking onChunk for every
// content delta and exactly once with a terminal Done chunk. On context
// cancellation the stream stops without a terminal chunk and ctx.Err() is
// returned.
func (c *Client) CompleteStream(ctx context.Context, model string, messages []Message, onChunk domain.StreamFunc) error {
	creds, err := c.resolveCredentials(ctx)
	if err != nil {
		return err
	}
	if model == "" {
		model = creds.ChatModel
	}

	body, err := c.doRequest(ctx, creds, completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer body.Close()

	parser := newStreamParser(body, onChunk)
	return parser.run(ctx)
}

func (c *Client) resolveCredentials(ctx context.Context) (Credentials, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if !creds.Configured() {
		return Credentials{}, domain.ConfigError("AI provider API key not configured", nil)
	}
	return creds, nil
}

// doRequest sends the completion request with retries and returns the
// response body on 2xx. Retries apply to connection errors and 429/5xx.
func (c *Client) doRequest(ctx context.Context, creds Credentials, req completionRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, domain.ValidationError("marshal completion request", err)
	}

	url := strings.TrimRight(creds.BaseURL, "/") + "/chat/completions"

	var body io.ReadCloser
	err = withRetry(ctx, c.retry, c.logger, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return permanent(domain.TransportError("build request", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return domain.TransportError("call completion provider", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			msg := readErrorMessage(resp.Body)
			err := domain.TransportError(
				fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, msg), nil)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return permanent(err)
		}

		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// readErrorMessage extracts an error message from a non-2xx response body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "unreadable error body"
	}
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(data))
}
