package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/allocation"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Message: message})
}

// respondValidation writes 422 for field-scoped validation errors and
// reports whether err was one
func respondValidation(w http.ResponseWriter, err error) bool {
	var ve *allocation.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Field: ve.Field, Message: ve.Error()})
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// logRequests logs every request at debug level
func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("API request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}
