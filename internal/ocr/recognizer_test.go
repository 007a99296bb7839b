package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famhealth/famhealth/internal/ai"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
)

type fakeVisionClient struct {
	lastMessages []ai.Message
	result       *domain.CompletionResult
	err          error
}

func (f *fakeVisionClient) CompleteVision(_ context.Context, messages []ai.Message) (*domain.CompletionResult, error) {
	f.lastMessages = messages
	return f.result, f.err
}

func TestRecognizeLocalFileBecomesDataURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page-1.png")
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))

	client := &fakeVisionClient{result: &domain.CompletionResult{Content: "血红蛋白 150 g/L", TokensUsed: 12}}
	rec := NewRecognizer(client, observability.Nop())

	result := rec.Recognize(context.Background(), path)
	require.True(t, result.Success)
	assert.Equal(t, "血红蛋白 150 g/L", result.Text)
	assert.Equal(t, 12, result.TokensUsed)

	parts := client.lastMessages[0].Content.([]ai.ContentPart)
	assert.True(t, strings.HasPrefix(parts[0].ImageURL.URL, "data:image/png;base64,"))
}

func TestRecognizeURLPassthrough(t *testing.T) {
	client := &fakeVisionClient{result: &domain.CompletionResult{Content: "ok"}}
	rec := NewRecognizer(client, observability.Nop())

	result := rec.Recognize(context.Background(), "https://example.com/scan.jpg")
	require.True(t, result.Success)

	parts := client.lastMessages[0].Content.([]ai.ContentPart)
	assert.Equal(t, "https://example.com/scan.jpg", parts[0].ImageURL.URL)
}

func TestRecognizeMissingFileFailsSoftly(t *testing.T) {
	client := &fakeVisionClient{}
	rec := NewRecognizer(client, observability.Nop())

	result := rec.Recognize(context.Background(), "/nonexistent/page.jpg")
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Nil(t, client.lastMessages, "no provider call for an unreadable image")
}

func TestRecognizeProviderErrorFailsSoftly(t *testing.T) {
	client := &fakeVisionClient{err: domain.TransportError("provider down", nil)}
	rec := NewRecognizer(client, observability.Nop())

	result := rec.Recognize(context.Background(), "data:image/jpeg;base64,abc")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "provider down")
}
