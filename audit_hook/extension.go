// Package audithook bridges licensor lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/referral"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnAccountCreated    = (*Extension)(nil)
	_ plugin.OnBalanceDebited    = (*Extension)(nil)
	_ plugin.OnDebitDenied       = (*Extension)(nil)
	_ plugin.OnModBalanceChanged = (*Extension)(nil)
	_ plugin.OnKeyIssued         = (*Extension)(nil)
	_ plugin.OnKeyValidated      = (*Extension)(nil)
	_ plugin.OnKeyRejected       = (*Extension)(nil)
	_ plugin.OnKeyExtended       = (*Extension)(nil)
	_ plugin.OnCodeRedeemed      = (*Extension)(nil)
	_ plugin.OnCodeBurned        = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly. Callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges licensor lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account and ledger hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, a *account.Account) error {
	createdBy := ""
	if a.CreatedBy != nil {
		createdBy = a.CreatedBy.String()
	}
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryAccount, nil,
		"username", a.Username,
		"role", string(a.Role),
		"balance", a.Balance,
		"created_by", createdBy,
	)
}

// OnBalanceDebited implements plugin.OnBalanceDebited.
func (e *Extension) OnBalanceDebited(ctx context.Context, accountID id.AccountID, modID string, amount, balance int64) error {
	return e.record(ctx, ActionBalanceDebited, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountID.String(), CategoryLedger, nil,
		"mod_id", modID,
		"amount", amount,
		"balance", balance,
	)
}

// OnDebitDenied implements plugin.OnDebitDenied.
func (e *Extension) OnDebitDenied(ctx context.Context, accountID id.AccountID, modID string, amount int64, reason error) error {
	return e.record(ctx, ActionDebitDenied, SeverityWarning, OutcomeFailure,
		ResourceAccount, accountID.String(), CategoryLedger, reason,
		"mod_id", modID,
		"amount", amount,
	)
}

// OnModBalanceChanged implements plugin.OnModBalanceChanged.
func (e *Extension) OnModBalanceChanged(ctx context.Context, accountID id.AccountID, mb account.ModBalance) error {
	return e.record(ctx, ActionModBalanceChanged, SeverityInfo, OutcomeSuccess,
		ResourceModBalance, accountID.String(), CategoryLedger, nil,
		"mod_id", mb.ModID,
		"balance", mb.Balance,
		"unlimited", mb.UnlimitedBalance,
	)
}

// ──────────────────────────────────────────────────
// Key hooks
// ──────────────────────────────────────────────────

// OnKeyIssued implements plugin.OnKeyIssued.
func (e *Extension) OnKeyIssued(ctx context.Context, k *licensekey.LicenseKey, cost int64) error {
	return e.record(ctx, ActionKeyIssued, SeverityInfo, OutcomeSuccess,
		ResourceKey, k.ID.String(), CategoryAccess, nil,
		"tier", string(k.Tier),
		"created_by", k.CreatedBy.String(),
		"mod_id", k.ModID,
		"expires_at", k.ExpiresAt,
		"cost", cost,
	)
}

// OnKeyValidated implements plugin.OnKeyValidated.
func (e *Extension) OnKeyValidated(ctx context.Context, k *licensekey.LicenseKey) error {
	return e.record(ctx, ActionKeyValidated, SeverityInfo, OutcomeSuccess,
		ResourceKey, k.ID.String(), CategoryAccess, nil,
		"usage_count", k.UsageCount,
	)
}

// OnKeyRejected implements plugin.OnKeyRejected.
func (e *Extension) OnKeyRejected(ctx context.Context, token string, reason error) error {
	return e.record(ctx, ActionKeyRejected, SeverityWarning, OutcomeFailure,
		ResourceKey, "", CategoryAccess, reason,
		"token", maskToken(token),
	)
}

// OnKeyExtended implements plugin.OnKeyExtended.
func (e *Extension) OnKeyExtended(ctx context.Context, k *licensekey.LicenseKey, days int) error {
	return e.record(ctx, ActionKeyExtended, SeverityInfo, OutcomeSuccess,
		ResourceKey, k.ID.String(), CategoryAccess, nil,
		"days", days,
		"expires_at", k.ExpiresAt,
	)
}

// ──────────────────────────────────────────────────
// Code hooks
// ──────────────────────────────────────────────────

// OnCodeRedeemed implements plugin.OnCodeRedeemed.
func (e *Extension) OnCodeRedeemed(ctx context.Context, c *referral.Code, a *account.Account) error {
	return e.record(ctx, ActionCodeRedeemed, SeverityInfo, OutcomeSuccess,
		ResourceCode, c.ID.String(), CategoryAccount, nil,
		"variant", string(c.Variant),
		"account_id", a.ID.String(),
		"username", a.Username,
	)
}

// OnCodeBurned implements plugin.OnCodeBurned. A burned code was claimed
// but could not be released after account creation failed.
func (e *Extension) OnCodeBurned(ctx context.Context, c *referral.Code, redeemer id.AccountID, cause error) error {
	return e.record(ctx, ActionCodeBurned, SeverityCritical, OutcomeFailure,
		ResourceCode, c.ID.String(), CategoryAccount, cause,
		"redeemer", redeemer.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

// maskToken keeps only the last four characters of a key token.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
