package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"

	// Ledger actions
	ActionBalanceDebited    = "balance.debited"
	ActionDebitDenied       = "balance.debit_denied"
	ActionModBalanceChanged = "mod_balance.changed"

	// Key actions
	ActionKeyIssued    = "key.issued"
	ActionKeyValidated = "key.validated"
	ActionKeyRejected  = "key.rejected"
	ActionKeyExtended  = "key.extended"

	// Code actions
	ActionCodeRedeemed = "code.redeemed"
	ActionCodeBurned   = "code.burned"
)

// Resource constants for audit events.
const (
	ResourceAccount    = "account"
	ResourceModBalance = "mod_balance"
	ResourceKey        = "license_key"
	ResourceCode       = "code"
)

// Category constants for audit events.
const (
	CategoryAccount = "account"
	CategoryLedger  = "ledger"
	CategoryAccess  = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
