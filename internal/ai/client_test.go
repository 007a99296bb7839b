package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
)

type staticCreds struct {
	creds Credentials
}

func (s staticCreds) Credentials(_ context.Context) (Credentials, error) {
	return s.creds, nil
}

func testClient(baseURL, apiKey string) *Client {
	return NewClient(
		staticCreds{Credentials{APIKey: apiKey, BaseURL: baseURL, ChatModel: "test-model"}},
		observability.Nop(),
		Options{Retry: RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}},
	)
}

func TestCompleteOpenAIShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "hello there"}}],
			"usage": {"total_tokens": 42}
		}`))
	}))
	defer server.Close()

	client := testClient(server.URL, "sk-test")
	result, err := client.Complete(context.Background(), "", []Message{
		TextMessage(domain.RoleUser, "hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Content)
	assert.Equal(t, 42, result.TokensUsed)
	assert.Equal(t, "test-model", result.Model)
}

func TestCompleteNestedOutputShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"output": {"choices": [{"message": {"content": "nested reply"}}]},
			"usage": {"total_tokens": 7}
		}`))
	}))
	defer server.Close()

	client := testClient(server.URL, "sk-test")
	result, err := client.Complete(context.Background(), "", []Message{
		TextMessage(domain.RoleUser, "hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "nested reply", result.Content)
	assert.Equal(t, 7, result.TokensUsed)
}

func TestCompleteMissingKeyFailsBeforeNetwork(t *testing.T) {
	var called atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	defer server.Close()

	client := testClient(server.URL, "")
	_, err := client.Complete(context.Background(), "", []Message{
		TextMessage(domain.RoleUser, "hi"),
	})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
	assert.False(t, called.Load(), "request must not reach the provider without a key")
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"usage": {"total_tokens": 3}}`))
	}))
	defer server.Close()

	client := testClient(server.URL, "sk-test")
	_, err := client.Complete(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeTransport))
}

func TestCompleteClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	}))
	defer server.Close()

	client := NewClient(
		staticCreds{Credentials{APIKey: "sk-bad", BaseURL: server.URL}},
		observability.Nop(),
		Options{Retry: RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}},
	)
	_, err := client.Complete(context.Background(), "m", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices": [{"message": {"content": "recovered"}}], "usage": {"total_tokens": 1}}`))
	}))
	defer server.Close()

	client := NewClient(
		staticCreds{Credentials{APIKey: "sk-test", BaseURL: server.URL}},
		observability.Nop(),
		Options{Retry: RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}},
	)
	result, err := client.Complete(context.Background(), "m", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestVisionMessageShape(t *testing.T) {
	msg := VisionMessage("data:image/jpeg;base64,abc", "read this page")
	parts, ok := msg.Content.([]ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[0].Type)
	assert.Equal(t, "data:image/jpeg;base64,abc", parts[0].ImageURL.URL)
	assert.Equal(t, "text", parts[1].Type)
	assert.Equal(t, "read this page", parts[1].Text)
	assert.Equal(t, domain.RoleUser, msg.Role)
}
