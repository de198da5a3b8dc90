package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/xraph/licensor/id"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyAccountID ctxKey = "account_id"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func requestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID, err := h.auth.Authenticate(r)
		if err != nil {
			h.writeError(w, r, ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAccountID, accountID)))
	})
}

// requester returns the authenticated account. Only valid behind
// authMiddleware.
func requester(r *http.Request) id.AccountID {
	v, _ := r.Context().Value(ctxKeyAccountID).(id.AccountID)
	return v
}
