package licensor

import (
	"context"
	"time"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
)

// BulkResult reports a fan-out operation applied independently per account.
type BulkResult struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Errors    []BulkError `json:"errors,omitempty"`
}

// BulkError is the failure of one account within a bulk operation.
type BulkError struct {
	AccountID id.AccountID `json:"account_id"`
	Error     string       `json:"error"`
}

// AddModBalance credits amount to the account's entry for modID, creating
// the entry when it does not exist.
func (l *Licensor) AddModBalance(ctx context.Context, requesterID, accountID id.AccountID, modID string, amount int64) (*account.ModBalance, error) {
	if modID == "" {
		return nil, ValidationError{Field: "mod_id", Message: "is required"}
	}
	if amount < 0 {
		return nil, ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if _, err := l.managedAccount(ctx, requesterID, accountID); err != nil {
		return nil, err
	}

	if _, err := l.store.Accounts().AddMod(ctx, accountID, modID, amount); err != nil {
		return nil, err
	}
	return l.modChanged(ctx, accountID, modID)
}

// SetModUnlimited toggles the unlimited flag of the account's entry for
// modID, creating the entry when it does not exist.
func (l *Licensor) SetModUnlimited(ctx context.Context, requesterID, accountID id.AccountID, modID string, unlimited bool) (*account.ModBalance, error) {
	if modID == "" {
		return nil, ValidationError{Field: "mod_id", Message: "is required"}
	}
	if _, err := l.managedAccount(ctx, requesterID, accountID); err != nil {
		return nil, err
	}

	if err := l.store.Accounts().SetModUnlimited(ctx, accountID, modID, unlimited); err != nil {
		return nil, err
	}
	return l.modChanged(ctx, accountID, modID)
}

// ExtendModExpiry pushes the entry's expiry days forward from the later of
// now and its current expiry.
func (l *Licensor) ExtendModExpiry(ctx context.Context, requesterID, accountID id.AccountID, modID string, days int) (*account.ModBalance, error) {
	if modID == "" {
		return nil, ValidationError{Field: "mod_id", Message: "is required"}
	}
	if days < 1 {
		return nil, ValidationError{Field: "days", Message: "must be positive"}
	}
	a, err := l.managedAccount(ctx, requesterID, accountID)
	if err != nil {
		return nil, err
	}

	if err := l.extendMod(ctx, a, modID, days); err != nil {
		return nil, err
	}
	return l.modChanged(ctx, accountID, modID)
}

// ExtendAllModBalanceExpiry extends every holder of modID independently.
// Failures are collected and never roll back accounts already extended.
func (l *Licensor) ExtendAllModBalanceExpiry(ctx context.Context, requesterID id.AccountID, modID string, days int) (*BulkResult, error) {
	if modID == "" {
		return nil, ValidationError{Field: "mod_id", Message: "is required"}
	}
	if days < 1 {
		return nil, ValidationError{Field: "days", Message: "must be positive"}
	}
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !requester.IsOwner() {
		return nil, ErrNotAuthorized
	}

	holders, err := l.store.Accounts().ListModHolders(ctx, modID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	for _, holder := range holders {
		err := l.extendHolder(ctx, holder, modID, days)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{AccountID: holder, Error: Message(err)})
			l.logger.Warn("mod expiry extension failed",
				"account_id", holder.String(),
				"mod_id", modID,
				"error", err,
			)
			continue
		}
		result.Succeeded++
	}

	l.logger.Info("mod expiry extended",
		"mod_id", modID,
		"days", days,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

func (l *Licensor) extendHolder(ctx context.Context, accountID id.AccountID, modID string, days int) error {
	a, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return err
	}
	if err := l.extendMod(ctx, a, modID, days); err != nil {
		return err
	}
	_, err = l.modChanged(ctx, accountID, modID)
	return err
}

func (l *Licensor) extendMod(ctx context.Context, a *account.Account, modID string, days int) error {
	var current *time.Time
	if mb := a.FindModBalance(modID); mb != nil {
		current = mb.ExpiresAt
	}
	next := account.ExtendFrom(current, l.clock(), days)
	return l.store.Accounts().SetModExpiry(ctx, a.ID, modID, next)
}

// modChanged reloads the entry, then emits the hook and the notification.
func (l *Licensor) modChanged(ctx context.Context, accountID id.AccountID, modID string) (*account.ModBalance, error) {
	a, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	mb := a.FindModBalance(modID)
	if mb == nil {
		return nil, ErrModBalanceNotFound
	}

	l.plugins.EmitModBalanceChanged(ctx, accountID, *mb)
	l.notifyModBalance(ctx, a, *mb)
	return mb, nil
}
