package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/licensor/account"
)

// modUpdate handles mutations of one account's entry for the path mod.
func modUpdate[T any](h *Handler, apply func(r *http.Request, req T) (*account.ModBalance, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		mb, err := apply(r, req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mb)
	}
}

func (h *Handler) addModBalance(w http.ResponseWriter, r *http.Request) {
	modUpdate(h, func(r *http.Request, req amountRequest) (*account.ModBalance, error) {
		accountID, err := pathAccountID(r)
		if err != nil {
			return nil, err
		}
		return h.engine.AddModBalance(r.Context(), requester(r), accountID, chi.URLParam(r, "modID"), req.Amount)
	})(w, r)
}

func (h *Handler) setModUnlimited(w http.ResponseWriter, r *http.Request) {
	modUpdate(h, func(r *http.Request, req flagRequest) (*account.ModBalance, error) {
		accountID, err := pathAccountID(r)
		if err != nil {
			return nil, err
		}
		return h.engine.SetModUnlimited(r.Context(), requester(r), accountID, chi.URLParam(r, "modID"), req.Value)
	})(w, r)
}

func (h *Handler) extendModBalance(w http.ResponseWriter, r *http.Request) {
	modUpdate(h, func(r *http.Request, req daysRequest) (*account.ModBalance, error) {
		accountID, err := pathAccountID(r)
		if err != nil {
			return nil, err
		}
		return h.engine.ExtendModExpiry(r.Context(), requester(r), accountID, chi.URLParam(r, "modID"), req.Days)
	})(w, r)
}

func (h *Handler) extendAllModBalances(w http.ResponseWriter, r *http.Request) {
	var req daysRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.engine.ExtendAllModBalanceExpiry(r.Context(), requester(r), chi.URLParam(r, "modID"), req.Days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
