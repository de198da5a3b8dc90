// Package observability provides a metrics plugin for licensor that records
// ledger, key and code lifecycle counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/referral"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated    = (*MetricsExtension)(nil)
	_ plugin.OnBalanceDebited    = (*MetricsExtension)(nil)
	_ plugin.OnDebitDenied       = (*MetricsExtension)(nil)
	_ plugin.OnModBalanceChanged = (*MetricsExtension)(nil)
	_ plugin.OnKeyIssued         = (*MetricsExtension)(nil)
	_ plugin.OnKeyValidated      = (*MetricsExtension)(nil)
	_ plugin.OnKeyRejected       = (*MetricsExtension)(nil)
	_ plugin.OnKeyExtended       = (*MetricsExtension)(nil)
	_ plugin.OnCodeRedeemed      = (*MetricsExtension)(nil)
	_ plugin.OnCodeBurned        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a licensor plugin to track ledger and key activity.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter

	// Ledger metrics
	CreditsDebited    Counter
	DebitAmount       Histogram
	DebitDenied       Counter
	InsufficientFunds Counter
	ModBalanceChanged Counter

	// Key metrics
	KeyIssued        Counter
	KeyIssueCost     Histogram
	KeyValidated     Counter
	KeyRejected      Counter
	KeyExtended      Counter
	KeyExtensionDays Histogram

	// Code metrics
	CodeRedeemed Counter
	CodeBurned   Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AccountCreated: factory.Counter("licensor.account.created"),

		CreditsDebited:    factory.Counter("licensor.ledger.debited"),
		DebitAmount:       factory.Histogram("licensor.ledger.debit_amount"),
		DebitDenied:       factory.Counter("licensor.ledger.denied"),
		InsufficientFunds: factory.Counter("licensor.ledger.insufficient_funds"),
		ModBalanceChanged: factory.Counter("licensor.ledger.mod_balance.changed"),

		KeyIssued:        factory.Counter("licensor.key.issued"),
		KeyIssueCost:     factory.Histogram("licensor.key.issue_cost"),
		KeyValidated:     factory.Counter("licensor.key.validated"),
		KeyRejected:      factory.Counter("licensor.key.rejected"),
		KeyExtended:      factory.Counter("licensor.key.extended"),
		KeyExtensionDays: factory.Histogram("licensor.key.extension_days"),

		CodeRedeemed: factory.Counter("licensor.code.redeemed"),
		CodeBurned:   factory.Counter("licensor.code.burned"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *account.Account) error {
	m.AccountCreated.Inc()
	return nil
}

// OnBalanceDebited implements plugin.OnBalanceDebited.
func (m *MetricsExtension) OnBalanceDebited(_ context.Context, _ id.AccountID, _ string, amount, _ int64) error {
	m.CreditsDebited.Inc()
	m.DebitAmount.Observe(float64(amount))
	return nil
}

// OnDebitDenied implements plugin.OnDebitDenied.
func (m *MetricsExtension) OnDebitDenied(_ context.Context, _ id.AccountID, _ string, _ int64, reason error) error {
	m.DebitDenied.Inc()
	if errors.Is(reason, licensor.ErrInsufficientFunds) {
		m.InsufficientFunds.Inc()
	}
	return nil
}

// OnModBalanceChanged implements plugin.OnModBalanceChanged.
func (m *MetricsExtension) OnModBalanceChanged(_ context.Context, _ id.AccountID, _ account.ModBalance) error {
	m.ModBalanceChanged.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Key hooks
// ──────────────────────────────────────────────────

// OnKeyIssued implements plugin.OnKeyIssued.
func (m *MetricsExtension) OnKeyIssued(_ context.Context, _ *licensekey.LicenseKey, cost int64) error {
	m.KeyIssued.Inc()
	m.KeyIssueCost.Observe(float64(cost))
	return nil
}

// OnKeyValidated implements plugin.OnKeyValidated.
func (m *MetricsExtension) OnKeyValidated(_ context.Context, _ *licensekey.LicenseKey) error {
	m.KeyValidated.Inc()
	return nil
}

// OnKeyRejected implements plugin.OnKeyRejected.
func (m *MetricsExtension) OnKeyRejected(_ context.Context, _ string, _ error) error {
	m.KeyRejected.Inc()
	return nil
}

// OnKeyExtended implements plugin.OnKeyExtended.
func (m *MetricsExtension) OnKeyExtended(_ context.Context, _ *licensekey.LicenseKey, days int) error {
	m.KeyExtended.Inc()
	m.KeyExtensionDays.Observe(float64(days))
	return nil
}

// ──────────────────────────────────────────────────
// Code hooks
// ──────────────────────────────────────────────────

// OnCodeRedeemed implements plugin.OnCodeRedeemed.
func (m *MetricsExtension) OnCodeRedeemed(_ context.Context, _ *referral.Code, _ *account.Account) error {
	m.CodeRedeemed.Inc()
	return nil
}

// OnCodeBurned implements plugin.OnCodeBurned.
func (m *MetricsExtension) OnCodeBurned(_ context.Context, _ *referral.Code, _ id.AccountID, _ error) error {
	m.CodeBurned.Inc()
	return nil
}
