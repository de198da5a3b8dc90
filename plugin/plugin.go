// Package plugin provides an extensible plugin system for licensor.
// Plugins can hook into ledger, key and code lifecycle events. Hooks run
// after the state change they describe and can never veto it.
package plugin

import (
	"context"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/referral"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account and ledger hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called after an account is persisted.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, a *account.Account) error
}

// OnBalanceDebited is called after a successful debit. ModID is empty for
// general balance debits.
type OnBalanceDebited interface {
	Plugin
	OnBalanceDebited(ctx context.Context, accountID id.AccountID, modID string, amount, balance int64) error
}

// OnDebitDenied is called when the ledger refuses a debit.
type OnDebitDenied interface {
	Plugin
	OnDebitDenied(ctx context.Context, accountID id.AccountID, modID string, amount int64, reason error) error
}

// OnModBalanceChanged is called after a mod balance entry is granted,
// toggled or extended.
type OnModBalanceChanged interface {
	Plugin
	OnModBalanceChanged(ctx context.Context, accountID id.AccountID, mb account.ModBalance) error
}

// ──────────────────────────────────────────────────
// License key hooks
// ──────────────────────────────────────────────────

// OnKeyIssued is called after a key is minted. Cost is zero for owner keys.
type OnKeyIssued interface {
	Plugin
	OnKeyIssued(ctx context.Context, k *licensekey.LicenseKey, cost int64) error
}

// OnKeyValidated is called after a key use is consumed.
type OnKeyValidated interface {
	Plugin
	OnKeyValidated(ctx context.Context, k *licensekey.LicenseKey) error
}

// OnKeyRejected is called when validation fails for a token.
type OnKeyRejected interface {
	Plugin
	OnKeyRejected(ctx context.Context, token string, reason error) error
}

// OnKeyExtended is called after a key's expiry moves forward.
type OnKeyExtended interface {
	Plugin
	OnKeyExtended(ctx context.Context, k *licensekey.LicenseKey, days int) error
}

// ──────────────────────────────────────────────────
// One-time code hooks
// ──────────────────────────────────────────────────

// OnCodeRedeemed is called after a code created its account.
type OnCodeRedeemed interface {
	Plugin
	OnCodeRedeemed(ctx context.Context, c *referral.Code, a *account.Account) error
}

// OnCodeBurned is called when a failed redemption could not release the
// code, leaving it marked used with no account behind it.
type OnCodeBurned interface {
	Plugin
	OnCodeBurned(ctx context.Context, c *referral.Code, redeemer id.AccountID, cause error) error
}
