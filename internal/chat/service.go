// Package chat implements the health-assistant conversation service: session
// management, history-windowed prompts, and token-streaming replies.
package chat

import (
	"context"
	"strings"

	"github.com/famhealth/famhealth/internal/ai"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/observability"
	"github.com/famhealth/famhealth/internal/storage"
)

const (
	historyWindow    = 20
	titleMaxRunes    = 20
	systemBasePrompt = `你是一位专业、耐心的家庭健康助手。基于用户提供的健康档案回答问题，` +
		`用通俗易懂的语言解释医学指标。你不能做出诊断，涉及诊疗决策时提醒用户咨询医生。`
)

// Store is the persistence surface the chat service needs.
type Store interface {
	CreateSession(ctx context.Context, s *storage.ChatSession) error
	GetSession(ctx context.Context, id string) (*storage.ChatSession, error)
	ListSessions(ctx context.Context) ([]storage.ChatSession, error)
	UpdateSessionTitle(ctx context.Context, id, title string) error
	TouchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
	AddMessage(ctx context.Context, m *storage.ChatMessage) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]storage.ChatMessage, error)
}

// Streamer is the AI surface the chat service needs.
type Streamer interface {
	CompleteStream(ctx context.Context, model string, messages []ai.Message, onChunk domain.StreamFunc) error
}

// Service manages chat sessions and streams assistant replies.
type Service struct {
	store    Store
	streamer Streamer
	contexts *ContextBuilder
	logger   *observability.Logger
}

// NewService creates a chat Service.
func NewService(store Store, streamer Streamer, contexts *ContextBuilder, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		streamer: streamer,
		contexts: contexts,
		logger:   logger.WithComponent("chat"),
	}
}

// CreateSession starts a new conversation, optionally tied to a member.
func (s *Service) CreateSession(ctx context.Context, memberID string) (*storage.ChatSession, error) {
	session := &storage.ChatSession{MemberID: memberID, Title: "新对话"}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns all sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context) ([]storage.ChatSession, error) {
	return s.store.ListSessions(ctx)
}

// History returns the last messages of a session in chronological order.
func (s *Service) History(ctx context.Context, sessionID string) ([]storage.ChatMessage, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.RecentMessages(ctx, sessionID, historyWindow)
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.store.DeleteSession(ctx, sessionID)
}

// SendMessageStream persists the user message, streams the assistant reply
// through onChunk, and persists the full reply once the stream completes. On
// cancellation or upstream failure nothing is persisted for the assistant and
// the error is returned; chunks already delivered stand.
func (s *Service) SendMessageStream(ctx context.Context, sessionID, content string, onChunk domain.StreamFunc) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ValidationError("message must not be empty", nil)
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	history, err := s.store.RecentMessages(ctx, sessionID, historyWindow)
	if err != nil {
		return err
	}

	if err := s.store.AddMessage(ctx, &storage.ChatMessage{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   content,
	}); err != nil {
		return err
	}

	// The first message names the session.
	if len(history) == 0 {
		if err := s.store.UpdateSessionTitle(ctx, sessionID, autoTitle(content)); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("auto-title failed")
		}
	}

	messages, err := s.buildMessages(ctx, session, history, content)
	if err != nil {
		return err
	}

	var (
		reply  strings.Builder
		tokens int
	)
	err = s.streamer.CompleteStream(ctx, "", messages, func(chunk domain.StreamChunk) {
		if chunk.Done {
			tokens = chunk.TokensUsed
		} else {
			reply.WriteString(chunk.Content)
		}
		onChunk(chunk)
	})
	if err != nil {
		return err
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.AddMessage(persistCtx, &storage.ChatMessage{
		SessionID:  sessionID,
		Role:       domain.RoleAssistant,
		Content:    reply.String(),
		TokensUsed: tokens,
	}); err != nil {
		return err
	}
	return s.store.TouchSession(persistCtx, sessionID)
}

// buildMessages assembles the prompt: system prompt with optional health
// context, the history window, then the new user message.
func (s *Service) buildMessages(ctx context.Context, session *storage.ChatSession, history []storage.ChatMessage, content string) ([]ai.Message, error) {
	systemPrompt := systemBasePrompt
	if s.contexts != nil && session.MemberID != "" {
		healthContext, err := s.contexts.Build(ctx, session.MemberID)
		if err != nil {
			s.logger.Warn().Err(err).Str("member_id", session.MemberID).
				Msg("health context unavailable, answering without it")
		} else if healthContext != "" {
			systemPrompt += "\n\n" + healthContext
		}
	}

	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.TextMessage(domain.RoleSystem, systemPrompt))
	for _, m := range history {
		messages = append(messages, ai.TextMessage(m.Role, m.Content))
	}
	messages = append(messages, ai.TextMessage(domain.RoleUser, content))
	return messages, nil
}

// autoTitle derives a session title from the first message.
func autoTitle(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= titleMaxRunes {
		return string(runes)
	}
	return string(runes[:titleMaxRunes]) + "..."
}
