package referral

import (
	"time"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/types"
)

// Variant selects where a redeemed code deposits its grant.
type Variant string

const (
	// VariantPlain credits the new account's general balance.
	VariantPlain Variant = "plain"
	// VariantMod credits a per-mod balance entry on the new account.
	VariantMod Variant = "mod"
)

// Code is a one-time, balance-granting registration code. Unlimited only
// describes the grant; a code is never redeemable twice.
type Code struct {
	types.Entity
	ID             id.CodeID      `json:"id"`
	Code           string         `json:"code"`
	Variant        Variant        `json:"variant"`
	ModID          string         `json:"mod_id,omitempty"`
	Balance        int64          `json:"balance"`
	Duration       string         `json:"duration"`
	DeductionRates rate.Table     `json:"deduction_rates,omitempty"`
	Unlimited      bool           `json:"unlimited"`
	CreatedBy      id.AccountID   `json:"created_by"`
	UsedBy         []id.AccountID `json:"used_by,omitempty"`
	UsedCount      int            `json:"used_count"`
	IsUsed         bool           `json:"is_used"`
	UsedAt         *time.Time     `json:"used_at,omitempty"`
	Active         bool           `json:"active"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
}

// Spent reports whether the code's one redemption has been taken.
func (c *Code) Spent() bool {
	if c.Variant == VariantMod {
		return c.UsedCount > 0
	}
	return c.IsUsed
}

// Expired reports whether the code can no longer be redeemed at now.
func (c *Code) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
