package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"pdv-sorveteria/models"
	"pdv-sorveteria/service"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error      string               `json:"error"`
	Field      string               `json:"field,omitempty"`
	Suggestion *models.CatalogEntry `json:"suggestion,omitempty"`
	// ConfirmRead tells the operator to scan the code again
	ConfirmRead bool `json:"confirmRead,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("❌ Error encoding response")
	}
}

// statusFor maps the error taxonomy to an HTTP status
func statusFor(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case models.IsNotFound(err):
		return http.StatusNotFound
	case models.IsGateway(err):
		return http.StatusBadGateway
	case models.IsPersistence(err), errors.Is(err, service.ErrLoopStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err under op and writes it with the mapped status
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var validation *models.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		resp.Suggestion = notFound.Suggestion
		resp.ConfirmRead = notFound.ConfirmRead
	}

	entry := log.WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Errorf("❌ %s failed", op)
	} else {
		entry.Warnf("⚠️ %s rejected", op)
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &models.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}
