package licensekey

import (
	"context"
	"time"

	"github.com/xraph/licensor/id"
)

type Store interface {
	Create(ctx context.Context, k *LicenseKey) error
	Get(ctx context.Context, token string) (*LicenseKey, error)
	List(ctx context.Context, opts ListOpts) ([]*LicenseKey, error)
	Delete(ctx context.Context, token string) error
	SetActive(ctx context.Context, token string, active bool) error

	// Consume increments the usage counter only while the key is valid at
	// now, optionally scoped to modID. It returns the updated key.
	Consume(ctx context.Context, token, modID string, now time.Time) (*LicenseKey, error)

	// SwapExpiry replaces the expiry only if it still equals old.
	SwapExpiry(ctx context.Context, token string, old, next time.Time) error
}

type ListOpts struct {
	CreatedBy *id.AccountID
	ModID     string
	Tier      Tier
	Limit     int
	Offset    int
}
