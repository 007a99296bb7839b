package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/famhealth/famhealth/internal/domain"
)

type createSessionRequest struct {
	MemberID string `json:"memberId"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.MemberID != "" {
		if _, err := s.members.Get(r.Context(), req.MemberID); err != nil {
			respondError(w, err)
			return
		}
	}

	session, err := s.chat.CreateSession(r.Context(), req.MemberID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.chat.ListSessions(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.chat.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// handleSendMessage streams the assistant reply over server-sent events:
// message events for content, one done event with the token count. Errors
// before the first chunk come back as a plain JSON error; after the stream
// starts they become the terminal error event.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	sse := NewSSEWriter(w)

	err := s.chat.SendMessageStream(r.Context(), sessionID, req.Content, func(chunk domain.StreamChunk) {
		sse.WriteChunk(chunk)
	})
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info().Str("session_id", sessionID).Msg("chat stream cancelled by client")
			return
		}
		sse.WriteError(err.Error())
	}
}
