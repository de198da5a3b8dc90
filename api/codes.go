package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/referral"
)

type redeemRequest struct {
	Code     string `json:"code"`
	Username string `json:"username"`
}

func (h *Handler) createCode(w http.ResponseWriter, r *http.Request) {
	var req licensor.CodeParams
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.engine.CreateCode(r.Context(), requester(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) redeemCode(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Code == "" {
		h.writeError(w, r, licensor.ValidationError{Field: "code", Message: "is required"})
		return
	}
	a, err := h.engine.Redeem(r.Context(), req.Code, licensor.AccountParams{Username: req.Username})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) listCodes(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	codes, err := h.engine.ListCodes(r.Context(), requester(r), referral.ListOpts{
		Variant: referral.Variant(q.Get("variant")),
		Unused:  q.Get("unused") == "true",
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (h *Handler) getCode(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.ViewCode(r.Context(), chi.URLParam(r, "code"), requester(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deactivateCode(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeactivateCode(r.Context(), chi.URLParam(r, "code"), requester(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
