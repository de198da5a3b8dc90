package account

import (
	"context"
	"time"

	"github.com/xraph/licensor/id"
)

type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, accountID id.AccountID) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	List(ctx context.Context, opts ListOpts) ([]*Account, error)
	Delete(ctx context.Context, accountID id.AccountID) error

	// Debit subtracts amount only while the account is active and holds at
	// least amount. It returns the resulting balance.
	Debit(ctx context.Context, accountID id.AccountID, amount int64) (int64, error)
	Credit(ctx context.Context, accountID id.AccountID, amount int64) (int64, error)
	SetBalance(ctx context.Context, accountID id.AccountID, balance int64) error
	SetUnlimited(ctx context.Context, accountID id.AccountID, unlimited bool) error
	SetExpiry(ctx context.Context, accountID id.AccountID, expiresAt *time.Time) error
	SetActive(ctx context.Context, accountID id.AccountID, active bool) error

	DebitMod(ctx context.Context, accountID id.AccountID, modID string, amount int64) (int64, error)
	// AddMod, SetModUnlimited and SetModExpiry create the (account, mod)
	// entry when it does not exist yet.
	AddMod(ctx context.Context, accountID id.AccountID, modID string, amount int64) (int64, error)
	SetModUnlimited(ctx context.Context, accountID id.AccountID, modID string, unlimited bool) error
	SetModExpiry(ctx context.Context, accountID id.AccountID, modID string, expiresAt time.Time) error
	ListModHolders(ctx context.Context, modID string) ([]id.AccountID, error)
}

type ListOpts struct {
	CreatedBy *id.AccountID
	Role      Role
	Limit     int
	Offset    int
}
