package licensor

import (
	"context"
	"errors"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/notify"
)

// DebitResult describes a successful authorization.
type DebitResult struct {
	AccountID id.AccountID `json:"account_id"`
	// ModID is set when the mod balance paid instead of the general one.
	ModID   string `json:"mod_id,omitempty"`
	Cost    int64  `json:"cost"`
	Balance int64  `json:"balance"`
	// Debited is false when the payer is unlimited and nothing was taken.
	Debited bool `json:"debited"`
}

// AuthorizeAndDebit charges cost against the account's general balance.
// Gates are evaluated in order: inactive, expired, insufficient. Unlimited
// accounts always pass and their stored balance is left untouched.
func (l *Licensor) AuthorizeAndDebit(ctx context.Context, accountID id.AccountID, cost int64) (*DebitResult, error) {
	if cost < 0 {
		return nil, ValidationError{Field: "cost", Message: "must not be negative"}
	}

	a, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	res, err := l.debitGeneral(ctx, a, cost)
	if err != nil {
		l.plugins.EmitDebitDenied(ctx, accountID, "", cost, err)
		return nil, err
	}
	return res, nil
}

// AuthorizeAndDebitMod charges cost against the account's entry for modID
// when one exists, and against the general balance otherwise.
func (l *Licensor) AuthorizeAndDebitMod(ctx context.Context, accountID id.AccountID, modID string, cost int64) (*DebitResult, error) {
	if cost < 0 {
		return nil, ValidationError{Field: "cost", Message: "must not be negative"}
	}

	a, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var res *DebitResult
	if mb := a.FindModBalance(modID); mb != nil && modID != "" {
		res, err = l.debitMod(ctx, a, mb, cost)
	} else {
		res, err = l.debitGeneral(ctx, a, cost)
	}
	if err != nil {
		l.plugins.EmitDebitDenied(ctx, accountID, modID, cost, err)
		return nil, err
	}
	return res, nil
}

func (l *Licensor) debitGeneral(ctx context.Context, a *account.Account, cost int64) (*DebitResult, error) {
	now := l.clock()
	switch {
	case !a.Active:
		return nil, ErrAccountInactive
	case a.BalanceExpired(now):
		return nil, ErrBalanceExpired
	case !a.Unlimited() && a.Balance < cost:
		return nil, &InsufficientFundsError{Required: cost, Available: a.Balance}
	}

	res := &DebitResult{AccountID: a.ID, Cost: cost, Balance: a.Balance}
	if !a.Unlimited() {
		balance, err := l.store.Accounts().Debit(ctx, a.ID, cost)
		if err != nil {
			// A concurrent debit won the race; the store reports current numbers.
			return nil, err
		}
		res.Balance = balance
		res.Debited = true
		a.Balance = balance
		l.plugins.EmitBalanceDebited(ctx, a.ID, "", cost, balance)
	}

	l.notifyBalance(ctx, a)
	return res, nil
}

func (l *Licensor) debitMod(ctx context.Context, a *account.Account, mb *account.ModBalance, cost int64) (*DebitResult, error) {
	now := l.clock()
	unlimited := mb.UnlimitedBalance || a.IsOwner()
	switch {
	case !a.Active:
		return nil, ErrAccountInactive
	case !unlimited && mb.Expired(now):
		return nil, ErrBalanceExpired
	case !unlimited && mb.Balance < cost:
		return nil, &InsufficientFundsError{Required: cost, Available: mb.Balance, ModID: mb.ModID}
	}

	res := &DebitResult{AccountID: a.ID, ModID: mb.ModID, Cost: cost, Balance: mb.Balance}
	if !unlimited {
		balance, err := l.store.Accounts().DebitMod(ctx, a.ID, mb.ModID, cost)
		if err != nil {
			return nil, err
		}
		res.Balance = balance
		res.Debited = true
		mb.Balance = balance
		l.plugins.EmitBalanceDebited(ctx, a.ID, mb.ModID, cost, balance)
	}

	l.notifyModBalance(ctx, a, *mb)
	return res, nil
}

// refund reverses a debit whose follow-up step failed. A failed refund is
// logged at error level with enough detail to repair by hand.
func (l *Licensor) refund(ctx context.Context, res *DebitResult, cause error) {
	if res == nil || !res.Debited {
		return
	}

	var err error
	if res.ModID != "" {
		_, err = l.store.Accounts().AddMod(ctx, res.AccountID, res.ModID, res.Cost)
	} else {
		_, err = l.store.Accounts().Credit(ctx, res.AccountID, res.Cost)
	}
	if err != nil {
		l.logger.Error("refund failed, balance lost",
			"account_id", res.AccountID.String(),
			"mod_id", res.ModID,
			"amount", res.Cost,
			"cause", cause,
			"error", err,
		)
		return
	}
	l.logger.Warn("debit refunded",
		"account_id", res.AccountID.String(),
		"mod_id", res.ModID,
		"amount", res.Cost,
		"cause", cause,
	)
}

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

func (l *Licensor) notify(ctx context.Context, e notify.Event) {
	e.ID = id.NewEventID()
	e.At = l.clock()
	if err := l.sink.Notify(ctx, e); err != nil {
		l.logger.Warn("notification failed",
			"type", e.Type,
			"account_id", e.AccountID.String(),
			"error", err,
		)
	}
}

func (l *Licensor) notifyBalance(ctx context.Context, a *account.Account) {
	l.notify(ctx, notify.Event{
		Type:             notify.TypeBalanceChanged,
		AccountID:        a.ID,
		Balance:          a.Balance,
		UnlimitedBalance: a.Unlimited(),
		BalanceExpiresAt: a.BalanceExpiresAt,
		Status:           a.Status(l.clock()),
	})
}

func (l *Licensor) notifyModBalance(ctx context.Context, a *account.Account, mb account.ModBalance) {
	status := a.Status(l.clock())
	if status == account.StatusActive && mb.Expired(l.clock()) {
		status = account.StatusExpired
	}
	l.notify(ctx, notify.Event{
		Type:             notify.TypeBalanceChanged,
		AccountID:        a.ID,
		ModID:            mb.ModID,
		Balance:          mb.Balance,
		UnlimitedBalance: mb.UnlimitedBalance,
		BalanceExpiresAt: mb.ExpiresAt,
		Status:           status,
	})
}

func (l *Licensor) notifyActivation(ctx context.Context, a *account.Account) {
	l.notify(ctx, notify.Event{
		Type:      notify.TypeActivation,
		AccountID: a.ID,
		Active:    a.Active,
		Status:    a.Status(l.clock()),
	})
}

// isDenial reports whether err is a ledger refusal rather than a failure.
func isDenial(err error) bool {
	return errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrBalanceExpired) ||
		errors.Is(err, ErrInsufficientFunds)
}
