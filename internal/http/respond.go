package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/invitely/invite-dispatch/internal/dispatch"
)

const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeInternalError = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Error  string                `json:"error"`
	Code   string                `json:"code,omitempty"`
	Fields []dispatch.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeValidation(w http.ResponseWriter, ve *dispatch.ValidationError) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:  ve.Error(),
		Code:   CodeInvalidInput,
		Fields: ve.Fields,
	})
}
