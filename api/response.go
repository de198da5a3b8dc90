package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/licensor"
)

// ErrorBody is the error envelope returned by every failing endpoint.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload describes a single failure.
type ErrorPayload struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(kind licensor.Kind) int {
	switch kind {
	case licensor.KindValidation:
		return http.StatusBadRequest
	case licensor.KindNotFound:
		return http.StatusNotFound
	case licensor.KindForbidden:
		return http.StatusForbidden
	case licensor.KindConflict:
		return http.StatusConflict
	case licensor.KindBusinessRule:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code and envelope. Internal errors are
// logged with their cause and reported without it.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := requestIDFromContext(r.Context())

	if errors.Is(err, ErrUnauthenticated) {
		writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: ErrorPayload{
			Kind:      "unauthenticated",
			Message:   "authentication required",
			RequestID: reqID,
		}})
		return
	}

	kind := licensor.KindOf(err)
	if kind == licensor.KindInternal {
		h.logger.Error("licensor/api: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", reqID,
			"error", err,
		)
	}

	writeJSON(w, statusFor(kind), ErrorBody{Error: ErrorPayload{
		Kind:      string(kind),
		Message:   licensor.Message(err),
		Details:   licensor.Details(err),
		RequestID: reqID,
	}})
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return licensor.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
