package httpapi

import (
	"encoding/json"
	"net/http"
)

// Stable error codes shared by API controllers and CLI clients.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeImportComplete  = "IMPORT_COMPLETE"
	CodeChunkTooLarge   = "CHUNK_TOO_LARGE"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

func WriteDecodeError(w http.ResponseWriter, err error) error {
	return WriteError(w, http.StatusBadRequest, CodeValidationError, "invalid request body", map[string]string{
		"error": err.Error(),
	})
}
