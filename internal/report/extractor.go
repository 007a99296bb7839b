// Package report turns recognized document text into a typed health report.
// Model output is treated as hostile input: the JSON may be fenced, wrapped
// in prose, or missing fields, so parsing cascades through cleanup stages and
// every absent field gets an explicit default.
package report

import (
	"context"
	"regexp"
	"strings"

	"github.com/famhealth/famhealth/internal/ai"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
	"github.com/famhealth/famhealth/internal/util/jsonx"
)

// CompletionClient is the subset of the AI client the extractor needs.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []ai.Message) (*domain.CompletionResult, error)
}

// Extractor converts recognized report text into a ParsedHealthReport.
type Extractor struct {
	client CompletionClient
	logger *observability.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(client CompletionClient, logger *observability.Logger) *Extractor {
	return &Extractor{
		client: client,
		logger: logger.WithComponent("extractor"),
	}
}

// Extract asks the chat model to structure the recognized text and parses the
// reply. The returned int is the number of tokens the extraction call used.
func (e *Extractor) Extract(ctx context.Context, text string) (*domain.ParsedHealthReport, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, domain.ValidationError("no text to extract from", nil)
	}

	result, err := e.client.Complete(ctx, "", []ai.Message{
		ai.TextMessage(domain.RoleSystem, extractionSystemPrompt),
		ai.TextMessage(domain.RoleUser, text),
	})
	if err != nil {
		return nil, 0, err
	}

	parsed, err := ParseReportJSON(result.Content)
	if err != nil {
		e.logger.Warn().Err(err).Msg("model reply did not contain a parseable report")
		return nil, result.TokensUsed, err
	}

	parsed.RawText = text
	applyDefaults(parsed)

	if len(parsed.Indicators) == 0 {
		return nil, result.TokensUsed, domain.ExtractionError("report contains no indicators", nil)
	}

	return parsed, result.TokensUsed, nil
}

// ParseReportJSON runs the parse cascade over a model reply and decodes the
// first candidate that unmarshals.
func ParseReportJSON(reply string) (*domain.ParsedHealthReport, error) {
	var parsed domain.ParsedHealthReport
	if err := jsonx.DecodeFirst(reply, &parsed); err != nil {
		return nil, domain.ExtractionError("parse report JSON", err)
	}
	return &parsed, nil
}

var whitespaceOnly = regexp.MustCompile(`^\s*$`)

// applyDefaults fills the gaps a sloppy model reply leaves behind.
func applyDefaults(r *domain.ParsedHealthReport) {
	if r.Indicators == nil {
		r.Indicators = []domain.Indicator{}
	}
	for i := range r.Indicators {
		ind := &r.Indicators[i]
		if whitespaceOnly.MatchString(ind.Name) {
			ind.Name = "unknown indicator"
		}
		if whitespaceOnly.MatchString(ind.Category) {
			ind.Category = "other"
		}
	}
}
