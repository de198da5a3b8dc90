package referral

import (
	"context"
	"time"

	"github.com/xraph/licensor/id"
)

type Store interface {
	Create(ctx context.Context, c *Code) error
	Get(ctx context.Context, code string) (*Code, error)
	List(ctx context.Context, opts ListOpts) ([]*Code, error)
	SetActive(ctx context.Context, code string, active bool) error

	// MarkUsed claims the code for redeemer only while it is unspent.
	// Exactly one of any number of concurrent callers succeeds.
	MarkUsed(ctx context.Context, code string, redeemer id.AccountID, at time.Time) error

	// Release undoes MarkUsed for the same redeemer.
	Release(ctx context.Context, code string, redeemer id.AccountID) error
}

type ListOpts struct {
	CreatedBy *id.AccountID
	Variant   Variant
	Unused    bool
	Limit     int
	Offset    int
}
