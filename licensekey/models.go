package licensekey

import (
	"time"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/types"
)

// Tier records which kind of account issued a key. Owner-tier keys never
// touch reseller balances.
type Tier string

const (
	TierOwner    Tier = "owner"
	TierReseller Tier = "reseller"
)

type LicenseKey struct {
	types.Entity
	ID          id.LicenseKeyID `json:"id"`
	Token       string          `json:"token"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Tier        Tier            `json:"tier"`
	CreatedBy   id.AccountID    `json:"created_by"`
	IsActive    bool            `json:"is_active"`
	ExpiresAt   time.Time       `json:"expires_at"`
	UsageCount  int64           `json:"usage_count"`
	MaxUsage    int64           `json:"max_usage"`
	MaxDevices  int             `json:"max_devices"`
	ModID       string          `json:"mod_id,omitempty"`
	LastUsed    *time.Time      `json:"last_used,omitempty"`
}

// Valid reports whether the key can be consumed at now: it must be active,
// unexpired and below its usage cap (a zero cap means unlimited).
func (k *LicenseKey) Valid(now time.Time) bool {
	if !k.IsActive || !now.Before(k.ExpiresAt) {
		return false
	}
	return k.MaxUsage == 0 || k.UsageCount < k.MaxUsage
}

// InvalidReason explains why Valid returned false, or "" when valid.
func (k *LicenseKey) InvalidReason(now time.Time) string {
	switch {
	case !k.IsActive:
		return "key is disabled"
	case !now.Before(k.ExpiresAt):
		return "key has expired"
	case k.MaxUsage > 0 && k.UsageCount >= k.MaxUsage:
		return "key usage limit reached"
	default:
		return ""
	}
}

// Details is the sanitized view returned to key holders.
type Details struct {
	Token      string     `json:"token"`
	ModID      string     `json:"mod_id,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsageCount int64      `json:"usage_count"`
	MaxUsage   int64      `json:"max_usage"`
	MaxDevices int        `json:"max_devices"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
}

// Details returns the sanitized view of the key.
func (k *LicenseKey) Details() *Details {
	return &Details{
		Token:      k.Token,
		ModID:      k.ModID,
		ExpiresAt:  k.ExpiresAt,
		UsageCount: k.UsageCount,
		MaxUsage:   k.MaxUsage,
		MaxDevices: k.MaxDevices,
		LastUsed:   k.LastUsed,
	}
}
