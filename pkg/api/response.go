package api

import (
	"encoding/json"
	"net/http"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/apperr"
)

// errorEnvelope is the uniform failure body. Success replies carry their
// own typed structs with a Success field instead of a shared wrapper, so
// payload fields stay at the top level the way device firmware expects.
type errorEnvelope struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorCode,omitempty"`
	ErrorMsg  string `json:"errorMsg"`
}

// okResponse is the minimal `{success:true}` body.
type okResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to encode response", logger.Err(err))
	}
}

// writeOK writes a 200 with the given typed payload.
func writeOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

// writeSuccess writes the bare `{success:true}` body.
func writeSuccess(w http.ResponseWriter) {
	writeOK(w, okResponse{Success: true})
}

// writeError translates a domain error into the failure envelope.
// Internal errors are logged with their cause and surface a generic
// message; client errors surface the error text itself.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.Internal {
		logger.ErrorCtx(r.Context(), "request failed",
			"path", r.URL.Path,
			logger.Err(err),
		)
		msg = "internal server error"
	}
	writeJSON(w, kind.HTTPStatus(), errorEnvelope{
		Success:   false,
		ErrorCode: apperr.Code(err),
		ErrorMsg:  msg,
	})
}

// writeBadRequest writes a 400 with a literal message.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Success: false, ErrorMsg: msg})
}

// writeUnauthorized writes a 401 with a literal message.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorEnvelope{Success: false, ErrorMsg: msg})
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns false after writing a 400 when decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}
