package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
)

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type balanceRequest struct {
	Balance int64 `json:"balance"`
}

type flagRequest struct {
	Value bool `json:"value"`
}

type daysRequest struct {
	Days int `json:"days"`
}

func pathAccountID(r *http.Request) (id.AccountID, error) {
	accountID, err := id.ParseAccountID(chi.URLParam(r, "accountID"))
	if err != nil {
		return id.Nil, licensor.ValidationError{Field: "account_id", Message: "is not a valid account ID"}
	}
	return accountID, nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, licensor.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, licensor.ValidationError{Field: "offset", Message: "must be a non-negative integer"}
		}
	}
	return limit, offset, nil
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req licensor.CreateAccountParams
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.engine.CreateAccount(r.Context(), requester(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	accounts, err := h.engine.ListAccounts(r.Context(), requester(r), account.ListOpts{
		Role:   account.Role(r.URL.Query().Get("role")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.engine.ViewAccount(r.Context(), requester(r), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.engine.DeleteAccount(r.Context(), requester(r), accountID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// accountUpdate handles the account mutations that share the shape
// "decode a body, apply to the path account, return the account".
func accountUpdate[T any](h *Handler, apply func(r *http.Request, requesterID, accountID id.AccountID, req T) (*account.Account, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := pathAccountID(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		var req T
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		a, err := apply(r, requester(r), accountID, req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func (h *Handler) grantBalance(w http.ResponseWriter, r *http.Request) {
	accountUpdate(h, func(r *http.Request, requesterID, accountID id.AccountID, req amountRequest) (*account.Account, error) {
		return h.engine.GrantBalance(r.Context(), requesterID, accountID, req.Amount)
	})(w, r)
}

func (h *Handler) setBalance(w http.ResponseWriter, r *http.Request) {
	accountUpdate(h, func(r *http.Request, requesterID, accountID id.AccountID, req balanceRequest) (*account.Account, error) {
		return h.engine.SetBalance(r.Context(), requesterID, accountID, req.Balance)
	})(w, r)
}

func (h *Handler) setUnlimited(w http.ResponseWriter, r *http.Request) {
	accountUpdate(h, func(r *http.Request, requesterID, accountID id.AccountID, req flagRequest) (*account.Account, error) {
		return h.engine.SetUnlimited(r.Context(), requesterID, accountID, req.Value)
	})(w, r)
}

func (h *Handler) extendBalance(w http.ResponseWriter, r *http.Request) {
	accountUpdate(h, func(r *http.Request, requesterID, accountID id.AccountID, req daysRequest) (*account.Account, error) {
		return h.engine.ExtendBalanceExpiry(r.Context(), requesterID, accountID, req.Days)
	})(w, r)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	accountUpdate(h, func(r *http.Request, requesterID, accountID id.AccountID, req flagRequest) (*account.Account, error) {
		return h.engine.SetActive(r.Context(), requesterID, accountID, req.Value)
	})(w, r)
}
