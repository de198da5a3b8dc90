package licensor

import (
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/referral"
	"github.com/xraph/licensor/types"
)

// Re-export common types so callers of the engine rarely need the entity packages.

// ID is the identifier type for all licensor entities.
type ID = id.ID

// Prefix identifies the entity type encoded in an ID.
type Prefix = id.Prefix

// Entity is re-exported from the types package.
type Entity = types.Entity

// Role is re-exported from the account package.
type Role = account.Role

// Tier is re-exported from the licensekey package.
type Tier = licensekey.Tier

// Variant is re-exported from the referral package.
type Variant = referral.Variant

const (
	RoleUser  = account.RoleUser
	RoleAdmin = account.RoleAdmin
	RoleOwner = account.RoleOwner

	TierOwner    = licensekey.TierOwner
	TierReseller = licensekey.TierReseller

	VariantPlain = referral.VariantPlain
	VariantMod   = referral.VariantMod
)

// NewEntity is re-exported from the types package.
var NewEntity = types.NewEntity
