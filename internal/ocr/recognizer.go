package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/famhealth/famhealth/internal/ai"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
)

const recognitionPrompt = `请识别这张医疗健康报告图片中的所有文字内容。` +
	`保持原有的排版结构，逐行输出识别到的文字。` +
	`表格内容请按行列顺序输出，数值和单位要完整保留。不要添加任何解释或总结。`

// VisionClient is the subset of the AI client the recognizer needs.
type VisionClient interface {
	CompleteVision(ctx context.Context, messages []ai.Message) (*domain.CompletionResult, error)
}

// Recognizer extracts text from a single image through the vision model.
type Recognizer struct {
	client VisionClient
	logger *observability.Logger
}

// NewRecognizer creates a Recognizer backed by the given vision client.
func NewRecognizer(client VisionClient, logger *observability.Logger) *Recognizer {
	return &Recognizer{
		client: client,
		logger: logger.WithComponent("recognizer"),
	}
}

// Recognize runs text recognition on one image. It never returns a Go error:
// any failure becomes a RecognitionResult with Success=false so callers can
// keep iterating over remaining pages.
func (r *Recognizer) Recognize(ctx context.Context, imageSource string) domain.RecognitionResult {
	imageURL, err := resolveImageSource(imageSource)
	if err != nil {
		return domain.RecognitionResult{Success: false, Error: err.Error()}
	}

	result, err := r.client.CompleteVision(ctx, []ai.Message{
		ai.VisionMessage(imageURL, recognitionPrompt),
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("source", imageSource).Msg("recognition failed")
		return domain.RecognitionResult{Success: false, Error: err.Error()}
	}

	return domain.RecognitionResult{
		Success:    true,
		Text:       result.Content,
		TokensUsed: result.TokensUsed,
	}
}

// resolveImageSource converts a local path into a base64 data URI. Remote
// URLs and existing data URIs pass through unchanged.
func resolveImageSource(source string) (string, error) {
	if strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "data:") {
		return source, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return "", domain.IOError(fmt.Sprintf("read image %s", source), err)
	}

	mime := mimeForExtension(filepath.Ext(source))
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)), nil
}

func mimeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
