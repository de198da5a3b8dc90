package licensor

import (
	"errors"
	"fmt"

	"github.com/xraph/licensor/rate"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput  = errors.New("licensor: invalid input")
	ErrNotAuthorized = errors.New("licensor: not authorized")
	ErrInternal      = errors.New("licensor: internal error")

	// Account errors
	ErrAccountNotFound    = errors.New("licensor: account not found")
	ErrUsernameTaken      = errors.New("licensor: username already taken")
	ErrAccountInactive    = errors.New("licensor: account is inactive")
	ErrBalanceExpired     = errors.New("licensor: balance has expired")
	ErrInsufficientFunds  = errors.New("licensor: insufficient funds")
	ErrModBalanceNotFound = errors.New("licensor: mod balance not found")
	ErrOwnerExists        = errors.New("licensor: owner already exists")

	// License key errors
	ErrKeyNotFound      = errors.New("licensor: key not found")
	ErrKeyInvalid       = errors.New("licensor: key is not valid")
	ErrKeyExists        = errors.New("licensor: key token already exists")
	ErrExpiryContention = errors.New("licensor: key expiry changed concurrently")

	// One-time code errors
	ErrCodeNotFound    = errors.New("licensor: code not found")
	ErrCodeExists      = errors.New("licensor: code already exists")
	ErrCodeAlreadyUsed = errors.New("licensor: code already used")
	ErrCodeInactive    = errors.New("licensor: code is inactive")
	ErrCodeExpired     = errors.New("licensor: code has expired")
	ErrCodeNotHeld     = errors.New("licensor: code not held by redeemer")

	// Duration errors
	ErrInvalidDuration = rate.ErrInvalidDuration
)

// Kind is the machine-distinguishable class of a failure.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindConflict     Kind = "conflict"
	KindBusinessRule Kind = "business_rule"
	KindInternal     Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindValidation},
	{ErrAccountNotFound, KindNotFound},
	{ErrModBalanceNotFound, KindNotFound},
	{ErrKeyNotFound, KindNotFound},
	{ErrCodeNotFound, KindNotFound},
	{ErrNotAuthorized, KindForbidden},
	{ErrUsernameTaken, KindConflict},
	{ErrOwnerExists, KindConflict},
	{ErrKeyExists, KindConflict},
	{ErrExpiryContention, KindConflict},
	{ErrCodeExists, KindConflict},
	{ErrCodeAlreadyUsed, KindConflict},
	{ErrAccountInactive, KindBusinessRule},
	{ErrBalanceExpired, KindBusinessRule},
	{ErrInsufficientFunds, KindBusinessRule},
	{ErrKeyInvalid, KindBusinessRule},
	{ErrCodeInactive, KindBusinessRule},
	{ErrCodeExpired, KindBusinessRule},
	{ErrInvalidDuration, KindBusinessRule},
}

// KindOf classifies err. Unknown errors, including raw storage failures,
// are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Message returns text safe to show to API clients. Internal errors never
// leak their cause.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("licensor: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes ValidationError match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InsufficientFundsError reports the required and available balance of a
// failed debit. ModID is set when the mod balance was charged.
type InsufficientFundsError struct {
	Required  int64
	Available int64
	ModID     string
}

func (e *InsufficientFundsError) Error() string {
	if e.ModID != "" {
		return fmt.Sprintf("licensor: insufficient funds for mod %s: required %d, available %d",
			e.ModID, e.Required, e.Available)
	}
	return fmt.Sprintf("licensor: insufficient funds: required %d, available %d", e.Required, e.Available)
}

// Is makes InsufficientFundsError match ErrInsufficientFunds.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Details returns structured fields describing err for API clients, or nil.
func Details(err error) map[string]any {
	var ife *InsufficientFundsError
	if errors.As(err, &ife) {
		d := map[string]any{"required": ife.Required, "available": ife.Available}
		if ife.ModID != "" {
			d["mod_id"] = ife.ModID
		}
		return d
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return map[string]any{"field": ve.Field}
	}
	return nil
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "licensor: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("licensor: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict returns true if the error reports a uniqueness or race conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsBusinessRule returns true if the error is a ledger rule violation such
// as insufficient funds or an expired balance.
func IsBusinessRule(err error) bool {
	return KindOf(err) == KindBusinessRule
}
