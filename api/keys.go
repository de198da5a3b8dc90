package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/licensekey"
)

type validateRequest struct {
	Token string `json:"token"`
	ModID string `json:"mod_id,omitempty"`
}

type batchErrorBody struct {
	Error  ErrorPayload          `json:"error"`
	Result *licensor.BatchResult `json:"result"`
}

func (h *Handler) validateKey(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.engine.ValidateAndConsume(r.Context(), req.Token, req.ModID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) issueKey(w http.ResponseWriter, r *http.Request) {
	var req licensor.IssueParams
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	k, err := h.engine.IssueKey(r.Context(), requester(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

// issueBatch reports partial progress alongside the error when the batch
// stops early.
func (h *Handler) issueBatch(w http.ResponseWriter, r *http.Request) {
	var req licensor.BatchParams
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.engine.IssueBatch(r.Context(), requester(r), req)
	if err != nil {
		if res == nil || res.Issued == 0 {
			h.writeError(w, r, err)
			return
		}
		kind := licensor.KindOf(err)
		writeJSON(w, statusFor(kind), batchErrorBody{
			Error: ErrorPayload{
				Kind:      string(kind),
				Message:   licensor.Message(err),
				Details:   licensor.Details(err),
				RequestID: requestIDFromContext(r.Context()),
			},
			Result: res,
		})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	keys, err := h.engine.ListKeys(r.Context(), requester(r), licensekey.ListOpts{
		ModID:  q.Get("mod_id"),
		Tier:   licensekey.Tier(q.Get("tier")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *Handler) getKey(w http.ResponseWriter, r *http.Request) {
	k, err := h.engine.ViewKey(r.Context(), chi.URLParam(r, "token"), requester(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (h *Handler) deleteKey(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteKey(r.Context(), chi.URLParam(r, "token"), requester(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) extendKey(w http.ResponseWriter, r *http.Request) {
	var req daysRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	k, err := h.engine.ExtendExpiry(r.Context(), chi.URLParam(r, "token"), req.Days, requester(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (h *Handler) setKeyActive(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	token := chi.URLParam(r, "token")
	if err := h.engine.SetKeyActive(r.Context(), token, req.Value, requester(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	k, err := h.engine.ViewKey(r.Context(), token, requester(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}
