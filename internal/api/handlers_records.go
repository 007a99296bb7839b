package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/storage"
)

const listRecordsLimit = 100

type createRecordRequest struct {
	RecordType string `json:"recordType"`
	Value      string `json:"value"`
	Unit       string `json:"unit"`
	Note       string `json:"note"`
	MeasuredAt string `json:"measuredAt"` // RFC 3339 or YYYY-MM-DD, defaults to now
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	if _, err := s.members.Get(r.Context(), memberID); err != nil {
		respondError(w, err)
		return
	}

	var req createRecordRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if strings.TrimSpace(req.Value) == "" {
		respondError(w, domain.ValidationError("value is required", nil))
		return
	}

	var measuredAt time.Time
	if req.MeasuredAt != "" {
		parsed, err := parseMeasuredAt(req.MeasuredAt)
		if err != nil {
			respondError(w, err)
			return
		}
		measuredAt = parsed
	}

	record := &storage.HealthRecord{
		MemberID:   memberID,
		RecordType: req.RecordType,
		Value:      strings.TrimSpace(req.Value),
		Unit:       req.Unit,
		Note:       req.Note,
		MeasuredAt: measuredAt,
	}
	if err := s.records.Create(r.Context(), record); err != nil {
		respondError(w, err)
		return
	}

	s.contexts.Invalidate(context.WithoutCancel(r.Context()), memberID)
	respondJSON(w, http.StatusCreated, record)
}

func parseMeasuredAt(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.ValidationError("measuredAt must be RFC 3339 or YYYY-MM-DD", nil)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	if _, err := s.members.Get(r.Context(), memberID); err != nil {
		respondError(w, err)
		return
	}
	records, err := s.records.ListRecent(r.Context(), memberID, time.Time{}, listRecordsLimit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "id")
	if err := s.records.Delete(r.Context(), chi.URLParam(r, "recordId")); err != nil {
		respondError(w, err)
		return
	}
	s.contexts.Invalidate(context.WithoutCancel(r.Context()), memberID)
	respondJSON(w, http.StatusNoContent, nil)
}
