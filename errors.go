package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/carego/internal/auth"
	"go.uber.org/zap"
)

// APIError is the wire shape of every error response.
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// writeAuthError maps any error from the auth core onto the wire. Unknown
// errors become a 500 without leaking their text.
func writeAuthError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ae *auth.AuthError
	if errors.As(err, &ae) {
		if ae.Status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("code", ae.Code), zap.Error(err))
		}
		writeError(w, ae.Status, ae.Code, ae.Message)
		return
	}
	log.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
}
