// Package httpapi implements the Tracker and Tool Supervisor HTTP surfaces:
// routers, JSON handlers, and middleware, grounded on the teacher's
// internal/delivery/server/http (router.go, http_util.go, error_mapper.go,
// middleware_logging.go).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"orchestrator-core/internal/apierr"
	"orchestrator-core/internal/store"
)

// errorBody is the JSON shape every error response takes.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError maps err to an HTTP status and writes the taxonomy's JSON
// body, grounded on the teacher's error_mapper.go dispatch table.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		status := http.StatusInternalServerError
		switch apiErr.Code {
		case apierr.CodeBadRequest:
			status = http.StatusBadRequest
		case apierr.CodeNotFound:
			status = http.StatusNotFound
		case apierr.CodeUpstream:
			status = http.StatusBadGateway
		case apierr.CodeInternal:
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, errorBody{Error: string(apiErr.Code), Message: apiErr.Message})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: string(apierr.CodeNotFound), Message: "not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: string(apierr.CodeInternal), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
