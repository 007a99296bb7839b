package api

import "net/http"

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	status, err := s.settings.Status(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type saveKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleSaveAPIKey(w http.ResponseWriter, r *http.Request) {
	var req saveKeyRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := s.settings.SaveAPIKey(r.Context(), req.APIKey); err != nil {
		respondError(w, err)
		return
	}

	status, err := s.settings.Status(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleClearAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.ClearAPIKey(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

type saveModelsRequest struct {
	ChatModel   string `json:"chatModel"`
	VisionModel string `json:"visionModel"`
}

func (s *Server) handleSaveModels(w http.ResponseWriter, r *http.Request) {
	var req saveModelsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := s.settings.SaveModels(r.Context(), req.ChatModel, req.VisionModel); err != nil {
		respondError(w, err)
		return
	}

	status, err := s.settings.Status(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
