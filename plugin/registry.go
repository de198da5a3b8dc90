package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/referral"
)

// DefaultTimeout bounds every hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onAccountCreated    []OnAccountCreated
	onBalanceDebited    []OnBalanceDebited
	onDebitDenied       []OnDebitDenied
	onModBalanceChanged []OnModBalanceChanged
	onKeyIssued         []OnKeyIssued
	onKeyValidated      []OnKeyValidated
	onKeyRejected       []OnKeyRejected
	onKeyExtended       []OnKeyExtended
	onCodeRedeemed      []OnCodeRedeemed
	onCodeBurned        []OnCodeBurned
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnBalanceDebited); ok {
		r.onBalanceDebited = append(r.onBalanceDebited, v)
	}
	if v, ok := p.(OnDebitDenied); ok {
		r.onDebitDenied = append(r.onDebitDenied, v)
	}
	if v, ok := p.(OnModBalanceChanged); ok {
		r.onModBalanceChanged = append(r.onModBalanceChanged, v)
	}
	if v, ok := p.(OnKeyIssued); ok {
		r.onKeyIssued = append(r.onKeyIssued, v)
	}
	if v, ok := p.(OnKeyValidated); ok {
		r.onKeyValidated = append(r.onKeyValidated, v)
	}
	if v, ok := p.(OnKeyRejected); ok {
		r.onKeyRejected = append(r.onKeyRejected, v)
	}
	if v, ok := p.(OnKeyExtended); ok {
		r.onKeyExtended = append(r.onKeyExtended, v)
	}
	if v, ok := p.(OnCodeRedeemed); ok {
		r.onCodeRedeemed = append(r.onCodeRedeemed, v)
	}
	if v, ok := p.(OnCodeBurned); ok {
		r.onCodeBurned = append(r.onCodeBurned, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAccountCreated", reflect.TypeFor[OnAccountCreated]()},
	{"OnBalanceDebited", reflect.TypeFor[OnBalanceDebited]()},
	{"OnDebitDenied", reflect.TypeFor[OnDebitDenied]()},
	{"OnModBalanceChanged", reflect.TypeFor[OnModBalanceChanged]()},
	{"OnKeyIssued", reflect.TypeFor[OnKeyIssued]()},
	{"OnKeyValidated", reflect.TypeFor[OnKeyValidated]()},
	{"OnKeyRejected", reflect.TypeFor[OnKeyRejected]()},
	{"OnKeyExtended", reflect.TypeFor[OnKeyExtended]()},
	{"OnCodeRedeemed", reflect.TypeFor[OnCodeRedeemed]()},
	{"OnCodeBurned", reflect.TypeFor[OnCodeBurned]()},
}

// implementedInterfaces returns the hook names implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// dispatch calls fn for each plugin in hooks, logging failures.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, fn func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	dispatch(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	dispatch(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, a *account.Account) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	dispatch(ctx, r, "OnAccountCreated", plugins, func(p OnAccountCreated) error {
		return p.OnAccountCreated(ctx, a)
	})
}

// EmitBalanceDebited emits a balance debited event.
func (r *Registry) EmitBalanceDebited(ctx context.Context, accountID id.AccountID, modID string, amount, balance int64) {
	r.mu.RLock()
	plugins := r.onBalanceDebited
	r.mu.RUnlock()

	dispatch(ctx, r, "OnBalanceDebited", plugins, func(p OnBalanceDebited) error {
		return p.OnBalanceDebited(ctx, accountID, modID, amount, balance)
	})
}

// EmitDebitDenied emits a debit denied event.
func (r *Registry) EmitDebitDenied(ctx context.Context, accountID id.AccountID, modID string, amount int64, reason error) {
	r.mu.RLock()
	plugins := r.onDebitDenied
	r.mu.RUnlock()

	dispatch(ctx, r, "OnDebitDenied", plugins, func(p OnDebitDenied) error {
		return p.OnDebitDenied(ctx, accountID, modID, amount, reason)
	})
}

// EmitModBalanceChanged emits a mod balance changed event.
func (r *Registry) EmitModBalanceChanged(ctx context.Context, accountID id.AccountID, mb account.ModBalance) {
	r.mu.RLock()
	plugins := r.onModBalanceChanged
	r.mu.RUnlock()

	dispatch(ctx, r, "OnModBalanceChanged", plugins, func(p OnModBalanceChanged) error {
		return p.OnModBalanceChanged(ctx, accountID, mb)
	})
}

// EmitKeyIssued emits a key issued event.
func (r *Registry) EmitKeyIssued(ctx context.Context, k *licensekey.LicenseKey, cost int64) {
	r.mu.RLock()
	plugins := r.onKeyIssued
	r.mu.RUnlock()

	dispatch(ctx, r, "OnKeyIssued", plugins, func(p OnKeyIssued) error {
		return p.OnKeyIssued(ctx, k, cost)
	})
}

// EmitKeyValidated emits a key validated event.
func (r *Registry) EmitKeyValidated(ctx context.Context, k *licensekey.LicenseKey) {
	r.mu.RLock()
	plugins := r.onKeyValidated
	r.mu.RUnlock()

	dispatch(ctx, r, "OnKeyValidated", plugins, func(p OnKeyValidated) error {
		return p.OnKeyValidated(ctx, k)
	})
}

// EmitKeyRejected emits a key rejected event.
func (r *Registry) EmitKeyRejected(ctx context.Context, token string, reason error) {
	r.mu.RLock()
	plugins := r.onKeyRejected
	r.mu.RUnlock()

	dispatch(ctx, r, "OnKeyRejected", plugins, func(p OnKeyRejected) error {
		return p.OnKeyRejected(ctx, token, reason)
	})
}

// EmitKeyExtended emits a key extended event.
func (r *Registry) EmitKeyExtended(ctx context.Context, k *licensekey.LicenseKey, days int) {
	r.mu.RLock()
	plugins := r.onKeyExtended
	r.mu.RUnlock()

	dispatch(ctx, r, "OnKeyExtended", plugins, func(p OnKeyExtended) error {
		return p.OnKeyExtended(ctx, k, days)
	})
}

// EmitCodeRedeemed emits a code redeemed event.
func (r *Registry) EmitCodeRedeemed(ctx context.Context, c *referral.Code, a *account.Account) {
	r.mu.RLock()
	plugins := r.onCodeRedeemed
	r.mu.RUnlock()

	dispatch(ctx, r, "OnCodeRedeemed", plugins, func(p OnCodeRedeemed) error {
		return p.OnCodeRedeemed(ctx, c, a)
	})
}

// EmitCodeBurned emits a code burned event.
func (r *Registry) EmitCodeBurned(ctx context.Context, c *referral.Code, redeemer id.AccountID, cause error) {
	r.mu.RLock()
	plugins := r.onCodeBurned
	r.mu.RUnlock()

	dispatch(ctx, r, "OnCodeBurned", plugins, func(p OnCodeBurned) error {
		return p.OnCodeBurned(ctx, c, redeemer, cause)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
