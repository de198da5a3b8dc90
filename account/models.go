package account

import (
	"time"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/types"
)

// Role determines what an account may do.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// OwnerBalance is the sentinel balance stored on owner accounts. It is the
// largest integer that survives a round trip through a JSON number.
const OwnerBalance int64 = 1<<53 - 1

// Status values reported in notifications.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusExpired  = "expired"
)

type Account struct {
	types.Entity
	ID               id.AccountID  `json:"id"`
	Username         string        `json:"username"`
	Role             Role          `json:"role"`
	Balance          int64         `json:"balance"`
	InitialBalance   int64         `json:"initial_balance"`
	UnlimitedBalance bool          `json:"unlimited_balance"`
	BalanceDuration  string        `json:"balance_duration,omitempty"`
	BalanceExpiresAt *time.Time    `json:"balance_expires_at,omitempty"`
	Active           bool          `json:"active"`
	DeductionRates   rate.Table    `json:"deduction_rates,omitempty"`
	CreatedBy        *id.AccountID `json:"created_by,omitempty"`
	ModBalances      []ModBalance  `json:"mod_balances,omitempty"`
}

// ModBalance is a per-product balance pool layered over the general balance.
type ModBalance struct {
	ModID            string     `json:"mod_id"`
	Balance          int64      `json:"balance"`
	InitialBalance   int64      `json:"initial_balance"`
	UnlimitedBalance bool       `json:"unlimited_balance"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// IsOwner reports whether the account is a root owner.
func (a *Account) IsOwner() bool { return a.Role == RoleOwner }

// Unlimited reports whether debits against the general balance are skipped.
func (a *Account) Unlimited() bool { return a.UnlimitedBalance || a.IsOwner() }

// BalanceExpired reports whether the general balance has lapsed at now.
// Unlimited balances never lapse.
func (a *Account) BalanceExpired(now time.Time) bool {
	if a.Unlimited() || a.BalanceExpiresAt == nil {
		return false
	}
	return !now.Before(*a.BalanceExpiresAt)
}

// Status summarises the account for notifications.
func (a *Account) Status(now time.Time) string {
	switch {
	case !a.Active:
		return StatusInactive
	case a.BalanceExpired(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// FindModBalance returns the entry for modID, or nil.
func (a *Account) FindModBalance(modID string) *ModBalance {
	for i := range a.ModBalances {
		if a.ModBalances[i].ModID == modID {
			return &a.ModBalances[i]
		}
	}
	return nil
}

// Expired reports whether the mod balance has lapsed at now.
func (m *ModBalance) Expired(now time.Time) bool {
	if m.UnlimitedBalance || m.ExpiresAt == nil {
		return false
	}
	return !now.Before(*m.ExpiresAt)
}

// ExtendFrom returns the expiry reached by adding days to the later of now
// and current. Lapsed or unset expiries restart from now.
func ExtendFrom(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.AddDate(0, 0, days).UTC()
}
