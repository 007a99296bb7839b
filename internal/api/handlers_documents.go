package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/famhealth/famhealth/internal/cache"
	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/storage"
)

var allowedUploadExts = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

// handleUploadDocument accepts a multipart upload (file, memberId, docType),
// stores the file, and creates a pending document record. Processing is a
// separate call so the client controls when the SSE stream starts.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.Ingest.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		respondError(w, domain.ValidationError("invalid multipart form", err))
		return
	}

	memberID := r.FormValue("memberId")
	if memberID == "" {
		respondError(w, domain.ValidationError("memberId is required", nil))
		return
	}
	if _, err := s.members.Get(r.Context(), memberID); err != nil {
		respondError(w, err)
		return
	}

	docType := r.FormValue("docType")
	if docType == "" {
		docType = storage.DocTypeOther
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, domain.ValidationError("file is required", err))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedUploadExts[ext] {
		respondError(w, domain.ValidationError(fmt.Sprintf("unsupported file type %s", ext), nil))
		return
	}

	if err := os.MkdirAll(s.cfg.Ingest.UploadDir, 0o755); err != nil {
		respondError(w, domain.IOError("create upload dir", err))
		return
	}

	storedPath := filepath.Join(s.cfg.Ingest.UploadDir, uuid.NewString()+ext)
	dst, err := os.Create(storedPath)
	if err != nil {
		respondError(w, domain.IOError("store upload", err))
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(storedPath)
		respondError(w, domain.IOError("store upload", err))
		return
	}
	if err := dst.Close(); err != nil {
		os.Remove(storedPath)
		respondError(w, domain.IOError("store upload", err))
		return
	}

	doc := &storage.Document{
		MemberID: memberID,
		FileName: header.Filename,
		FilePath: storedPath,
		DocType:  docType,
	}
	if err := s.docs.Create(r.Context(), doc); err != nil {
		os.Remove(storedPath)
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// handleDocumentProgress reports the last progress snapshot of a running
// ingestion, for clients polling instead of holding the SSE stream open.
func (s *Server) handleDocumentProgress(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	progress, err := s.ingest.Progress(r.Context(), doc.ID)
	if errors.Is(err, cache.ErrMiss) {
		respondJSON(w, http.StatusOK, map[string]any{"status": doc.Status})
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": doc.Status, "progress": progress})
}

// handleProcessDocument runs the ingestion pipeline and relays progress as
// server-sent events. The stream ends with one done event carrying the
// parsed report, or one error event. A disconnected client cancels the run;
// no terminal event is owed then.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	sse := NewSSEWriter(w)

	parsed, err := s.ingest.Run(r.Context(), doc.ID, func(current, total int, message string) {
		sse.WriteProgress(current, total, message)
	})
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Info().Str("document_id", doc.ID).Msg("processing cancelled by client")
			return
		}
		sse.WriteError(err.Error())
		return
	}

	s.contexts.Invalidate(context.WithoutCancel(r.Context()), doc.MemberID)

	updated, err := s.docs.Get(r.Context(), doc.ID)
	tokens := 0
	if err == nil {
		tokens = updated.TokensUsed
	}
	sse.WriteDone(tokens, map[string]any{"report": parsed})
}
