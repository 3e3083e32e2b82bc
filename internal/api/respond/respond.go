// Package respond writes JSON responses and maps domain errors to statuses.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mercasmart/catalog-search/internal/model"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// StatusFor maps the error taxonomy to an HTTP status.
func StatusFor(err error) int {
	switch {
	case model.IsInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable
	case model.IsPermanent(err):
		return http.StatusBadGateway
	case model.IsStoreError(err):
		return http.StatusServiceUnavailable
	case model.IsTransient(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteDomainError writes err with the status chosen by StatusFor. Input
// errors echo their message; other failures are summarized.
func WriteDomainError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Code: status}
	var in model.InputError
	switch {
	case errors.As(err, &in):
		resp.Message = in.Message
		resp.Field = in.Field
	case status == http.StatusServiceUnavailable:
		resp.Message = "search backend unavailable"
	case status == http.StatusBadGateway:
		resp.Message = "upstream provider rejected the request"
	default:
		resp.Message = "internal error"
	}
	WriteJSON(w, status, resp)
}
