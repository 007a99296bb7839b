package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/famhealth/famhealth/internal/domain"
	"github.com/famhealth/famhealth/internal/storage"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError maps a service error to an HTTP status and JSON body.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case domain.IsType(err, domain.ErrorTypeValidation):
		status = http.StatusBadRequest
	case domain.IsType(err, domain.ErrorTypeConfig):
		status = http.StatusServiceUnavailable
	case domain.IsType(err, domain.ErrorTypeTransport):
		status = http.StatusBadGateway
	case domain.IsType(err, domain.ErrorTypePipeline),
		domain.IsType(err, domain.ErrorTypeExtraction):
		status = http.StatusUnprocessableEntity
	}

	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ValidationError("invalid request body", err)
	}
	return nil
}
