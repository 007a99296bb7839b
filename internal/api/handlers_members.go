package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/storage"
)

type createMemberRequest struct {
	Name            string `json:"name"`
	Gender          string `json:"gender"`
	BirthDate       string `json:"birthDate"`
	Relation        string `json:"relation"`
	BloodType       string `json:"bloodType"`
	ChronicDiseases string `json:"chronicDiseases"`
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, domain.ValidationError("name is required", nil))
		return
	}

	member := &storage.Member{
		Name:            strings.TrimSpace(req.Name),
		Gender:          req.Gender,
		BirthDate:       req.BirthDate,
		Relation:        req.Relation,
		BloodType:       req.BloodType,
		ChronicDiseases: req.ChronicDiseases,
	}
	if err := s.members.Create(r.Context(), member); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.members.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.members.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, member)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := s.members.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListMemberDocuments(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	if _, err := s.members.Get(r.Context(), memberID); err != nil {
		respondError(w, err)
		return
	}
	docs, err := s.docs.ListByMember(r.Context(), memberID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGenerateAdvice(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	if _, err := s.members.Get(r.Context(), memberID); err != nil {
		respondError(w, err)
		return
	}
	result, err := s.advice.Generate(r.Context(), memberID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
