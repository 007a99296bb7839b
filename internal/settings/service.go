// Package settings manages runtime AI provider configuration. Keys saved
// through the API live in the database and take precedence over the
// environment fallback, so rotating a key needs no restart.
package settings

import (
	"context"
	"errors"
	"strings"

	"github.com/famhealth/famhealth/internal/ai"
	"github.com/famhealth/famhealth/internal/config"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/storage"
)

// Setting keys.
const (
	KeyAPIKey      = "ai_api_key"
	KeyBaseURL     = "ai_base_url"
	KeyChatModel   = "ai_chat_model"
	KeyVisionModel = "ai_vision_model"
)

// Store is the persistence surface the service needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Service resolves and updates provider settings. It satisfies
// ai.CredentialSource.
type Service struct {
	store    Store
	fallback config.AIConfig
}

// NewService creates a Service. fallback supplies environment-derived values
// for anything not stored in the database.
func NewService(store Store, fallback config.AIConfig) *Service {
	return &Service{store: store, fallback: fallback}
}

// Credentials resolves the effective provider credentials, database first.
func (s *Service) Credentials(ctx context.Context) (ai.Credentials, error) {
	apiKey, err := s.resolve(ctx, KeyAPIKey, s.fallback.APIKey)
	if err != nil {
		return ai.Credentials{}, err
	}
	baseURL, err := s.resolve(ctx, KeyBaseURL, s.fallback.BaseURL)
	if err != nil {
		return ai.Credentials{}, err
	}
	chatModel, err := s.resolve(ctx, KeyChatModel, s.fallback.ChatModel)
	if err != nil {
		return ai.Credentials{}, err
	}
	visionModel, err := s.resolve(ctx, KeyVisionModel, s.fallback.VisionModel)
	if err != nil {
		return ai.Credentials{}, err
	}

	return ai.Credentials{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		ChatModel:   chatModel,
		VisionModel: visionModel,
	}, nil
}

func (s *Service) resolve(ctx context.Context, key, fallback string) (string, error) {
	val, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && val == "") {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SaveAPIKey stores a new provider key.
func (s *Service) SaveAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ValidationError("api key must not be empty", nil)
	}
	return s.store.Set(ctx, KeyAPIKey, key)
}

// ClearAPIKey removes the stored key, falling back to the environment.
func (s *Service) ClearAPIKey(ctx context.Context) error {
	return s.store.Delete(ctx, KeyAPIKey)
}

// SaveModels stores chat and vision model overrides. Empty values clear the
// override.
func (s *Service) SaveModels(ctx context.Context, chatModel, visionModel string) error {
	if err := s.saveOrClear(ctx, KeyChatModel, chatModel); err != nil {
		return err
	}
	return s.saveOrClear(ctx, KeyVisionModel, visionModel)
}

// SaveBaseURL stores a provider endpoint override.
func (s *Service) SaveBaseURL(ctx context.Context, baseURL string) error {
	return s.saveOrClear(ctx, KeyBaseURL, baseURL)
}

func (s *Service) saveOrClear(ctx context.Context, key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.store.Delete(ctx, key)
	}
	return s.store.Set(ctx, key, value)
}

// Status describes the effective configuration with the key masked.
type Status struct {
	Configured  bool   `json:"configured"`
	MaskedKey   string `json:"maskedKey,omitempty"`
	Source      string `json:"source,omitempty"` // database or environment
	BaseURL     string `json:"baseUrl"`
	ChatModel   string `json:"chatModel"`
	VisionModel string `json:"visionModel"`
}

// Status reports the current settings for display.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	creds, err := s.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Configured:  creds.Configured(),
		BaseURL:     creds.BaseURL,
		ChatModel:   creds.ChatModel,
		VisionModel: creds.VisionModel,
	}
	if creds.Configured() {
		status.MaskedKey = MaskKey(creds.APIKey)
		stored, err := s.store.Get(ctx, KeyAPIKey)
		switch {
		case err == nil && stored != "":
			status.Source = "database"
		case errors.Is(err, storage.ErrNotFound) || (err == nil && stored == ""):
			status.Source = "environment"
		default:
			return nil, err
		}
	}
	return status, nil
}

// MaskKey hides the middle of an API key. Short keys are fully masked since
// showing any part of them would give most of the secret away.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
