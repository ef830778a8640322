// Package httpapi implements the user-facing and bot-facing HTTP surfaces
// (spec §6) over chi, mirroring the teacher's REST handler idiom even though
// the teacher itself speaks gRPC — chi/httprate/jwt are drawn from the wider
// example pack per DESIGN.md.
package httpapi

import (
	"encoding/json"
	"net/http"

	apperrors "botfleet/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps an apperrors.Kind to its HTTP status per spec §7's taxonomy.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""

	var appErr *apperrors.Error
	if as, ok := err.(*apperrors.Error); ok {
		appErr = as
	}
	if appErr != nil {
		code = appErr.Code
		switch appErr.Kind {
		case apperrors.Conflict:
			status = http.StatusConflict
		case apperrors.Validation:
			status = http.StatusBadRequest
		case apperrors.Capacity:
			status = http.StatusForbidden
		case apperrors.ResourceUnavailable:
			status = http.StatusServiceUnavailable
		case apperrors.Safety:
			status = http.StatusUnprocessableEntity
		case apperrors.Transient:
			status = http.StatusBadGateway
		case apperrors.ExecutionFailure:
			status = http.StatusInternalServerError
		}
	}

	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
