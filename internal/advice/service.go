// Package advice generates personalized health advice from a member's recent
// documents. The model reply is parsed defensively and normalized so the API
// never serves partial or out-of-range values.
package advice

import (
	"context"

	"github.com/famhealth/famhealth/internal/ai"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
	"github.com/famhealth/famhealth/internal/util/jsonx"
)

const advicePrompt = `你是一位家庭健康顾问。根据下面的健康档案，生成健康建议，` +
	`严格按照以下 JSON 格式输出，不要输出任何其他内容：
{
  "healthScore": 85,
  "summary": "整体健康状况概述",
  "dietSuggestions": ["饮食建议"],
  "exerciseSuggestions": ["运动建议"],
  "lifestyleSuggestions": ["生活方式建议"],
  "riskWarnings": ["需要关注的风险"]
}
healthScore 为 0 到 100 的整数。没有内容的数组输出 []。`

// Advice is the normalized advice payload.
type Advice struct {
	HealthScore          int      `json:"healthScore"`
	Summary              string   `json:"summary"`
	DietSuggestions      []string `json:"dietSuggestions"`
	ExerciseSuggestions  []string `json:"exerciseSuggestions"`
	LifestyleSuggestions []string `json:"lifestyleSuggestions"`
	RiskWarnings         []string `json:"riskWarnings"`
	TokensUsed           int      `json:"tokensUsed"`
}

// CompletionClient is the AI surface the service needs.
type CompletionClient interface {
	Complete(ctx context.Context, model string, messages []ai.Message) (*domain.CompletionResult, error)
}

// ContextSource builds the member's health-context text.
type ContextSource interface {
	Build(ctx context.Context, memberID string) (string, error)
}

// Service generates health advice.
type Service struct {
	client   CompletionClient
	contexts ContextSource
	logger   *observability.Logger
}

// NewService creates an advice Service.
func NewService(client CompletionClient, contexts ContextSource, logger *observability.Logger) *Service {
	return &Service{
		client:   client,
		contexts: contexts,
		logger:   logger.WithComponent("advice"),
	}
}

// Generate produces advice for a member based on their recent documents.
func (s *Service) Generate(ctx context.Context, memberID string) (*Advice, error) {
	if memberID == "" {
		return nil, domain.ValidationError("member id required", nil)
	}

	healthContext, err := s.contexts.Build(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if healthContext == "" {
		return nil, domain.ValidationError("member has no completed health documents", nil)
	}

	result, err := s.client.Complete(ctx, "", []ai.Message{
		ai.TextMessage(domain.RoleSystem, advicePrompt),
		ai.TextMessage(domain.RoleUser, healthContext),
	})
	if err != nil {
		return nil, err
	}

	advice, err := ParseAdvice(result.Content)
	if err != nil {
		s.logger.Warn().Err(err).Msg("advice reply did not parse")
		return nil, err
	}
	advice.TokensUsed = result.TokensUsed
	return advice, nil
}

// ParseAdvice parses a model reply into normalized Advice.
func ParseAdvice(reply string) (*Advice, error) {
	var advice Advice
	if err := jsonx.DecodeFirst(reply, &advice); err != nil {
		return nil, domain.ExtractionError("parse advice JSON", err)
	}
	normalize(&advice)
	return &advice, nil
}

func normalize(a *Advice) {
	if a.HealthScore < 0 {
		a.HealthScore = 0
	}
	if a.HealthScore > 100 {
		a.HealthScore = 100
	}
	if a.DietSuggestions == nil {
		a.DietSuggestions = []string{}
	}
	if a.ExerciseSuggestions == nil {
		a.ExerciseSuggestions = []string{}
	}
	if a.LifestyleSuggestions == nil {
		a.LifestyleSuggestions = []string{}
	}
	if a.RiskWarnings == nil {
		a.RiskWarnings = []string{}
	}
}
