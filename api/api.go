// Package api exposes the licensor engine over HTTP+JSON.
//
// The adapter is deliberately thin: handlers decode a request, call one
// engine method and map the error kind onto a status code. Identity is
// resolved by an injected Authenticator; key validation and code
// redemption are public.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/id"
)

// DefaultAccountHeader carries the caller's account ID when no other
// Authenticator is configured.
const DefaultAccountHeader = "X-Account-ID"

// ErrUnauthenticated is returned by an Authenticator that cannot identify
// the caller.
var ErrUnauthenticated = errors.New("licensor/api: unauthenticated")

// Authenticator resolves the account making a request.
type Authenticator interface {
	Authenticate(r *http.Request) (id.AccountID, error)
}

// AuthenticatorFunc adapts a function to an Authenticator.
type AuthenticatorFunc func(r *http.Request) (id.AccountID, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(r *http.Request) (id.AccountID, error) { return f(r) }

// HeaderAuthenticator trusts an account ID placed in a request header by an
// upstream gateway.
type HeaderAuthenticator struct {
	Header string
}

// Authenticate implements Authenticator.
func (h HeaderAuthenticator) Authenticate(r *http.Request) (id.AccountID, error) {
	name := h.Header
	if name == "" {
		name = DefaultAccountHeader
	}
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return id.Nil, ErrUnauthenticated
	}
	accountID, err := id.ParseAccountID(raw)
	if err != nil {
		return id.Nil, ErrUnauthenticated
	}
	return accountID, nil
}

// Handler serves the licensor HTTP API.
type Handler struct {
	engine *licensor.Licensor
	auth   Authenticator
	logger *slog.Logger
	router chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuthenticator replaces the header-based authenticator.
func WithAuthenticator(a Authenticator) Option {
	return func(h *Handler) { h.auth = a }
}

// WithLogger sets the logger used for internal errors.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New creates a Handler for engine.
func New(engine *licensor.Licensor, opts ...Option) *Handler {
	h := &Handler{
		engine: engine,
		auth:   HeaderAuthenticator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.Routes()
	return h
}

// Routes builds a fresh router. Mount it under any base path.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Post("/", h.createAccount)
		r.Get("/", h.listAccounts)
		r.Route("/{accountID}", func(r chi.Router) {
			r.Get("/", h.getAccount)
			r.Delete("/", h.deleteAccount)
			r.Post("/balance", h.grantBalance)
			r.Put("/balance", h.setBalance)
			r.Put("/unlimited", h.setUnlimited)
			r.Post("/extend", h.extendBalance)
			r.Put("/active", h.setActive)

			r.Post("/mods/{modID}/balance", h.addModBalance)
			r.Put("/mods/{modID}/unlimited", h.setModUnlimited)
			r.Post("/mods/{modID}/extend", h.extendModBalance)
		})
	})

	r.With(h.authMiddleware).Post("/mods/{modID}/extend", h.extendAllModBalances)

	r.Route("/keys", func(r chi.Router) {
		r.Post("/validate", h.validateKey)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)
			r.Post("/", h.issueKey)
			r.Get("/", h.listKeys)
			r.Post("/batch", h.issueBatch)
			r.Get("/{token}", h.getKey)
			r.Delete("/{token}", h.deleteKey)
			r.Post("/{token}/extend", h.extendKey)
			r.Put("/{token}/active", h.setKeyActive)
		})
	})

	r.Route("/codes", func(r chi.Router) {
		r.Post("/redeem", h.redeemCode)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)
			r.Post("/", h.createCode)
			r.Get("/", h.listCodes)
			r.Get("/{code}", h.getCode)
			r.Delete("/{code}", h.deactivateCode)
		})
	})

	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}
