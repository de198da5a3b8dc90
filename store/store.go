// Package store defines the storage contract shared by every licensor
// backend.
//
// Backends must implement every balance, code and key-usage mutation as a
// single atomic conditional write (compare-and-swap semantics). The engine
// holds no locks of its own and relies on this guarantee.
package store

import (
	"context"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/referral"
)

// Store is the unified storage interface for all licensor entities. Each
// entity store is reached through an accessor so that method names stay
// short and free of conflicts.
type Store interface {
	Accounts() account.Store
	Keys() licensekey.Store
	Codes() referral.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
