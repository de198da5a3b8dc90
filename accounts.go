package licensor

import (
	"context"
	"errors"
	"strings"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/types"
)

// CreateAccountParams describes an account created by an owner or admin.
type CreateAccountParams struct {
	Username         string       `json:"username"`
	Role             account.Role `json:"role"`
	Balance          int64        `json:"balance"`
	UnlimitedBalance bool         `json:"unlimited_balance,omitempty"`
	// BalanceDuration is optional; when set the balance expires after it.
	BalanceDuration string     `json:"balance_duration,omitempty"`
	DeductionRates  rate.Table `json:"deduction_rates,omitempty"`
}

// Bootstrap creates the root owner. It fails with ErrOwnerExists once any
// owner account is present.
func (l *Licensor) Bootstrap(ctx context.Context, username string) (*account.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ValidationError{Field: "username", Message: "is required"}
	}

	owners, err := l.store.Accounts().List(ctx, account.ListOpts{Role: account.RoleOwner, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(owners) > 0 {
		return nil, ErrOwnerExists
	}

	now := l.clock()
	a := &account.Account{
		Entity:           types.NewEntityAt(now),
		ID:               id.NewAccountID(),
		Username:         username,
		Role:             account.RoleOwner,
		Balance:          account.OwnerBalance,
		InitialBalance:   account.OwnerBalance,
		UnlimitedBalance: true,
		Active:           true,
		DeductionRates:   l.defaultRates.Clone(),
	}
	if err := l.store.Accounts().Create(ctx, a); err != nil {
		return nil, err
	}

	l.plugins.EmitAccountCreated(ctx, a)
	l.logger.Info("owner bootstrapped", "account_id", a.ID.String())
	return a, nil
}

// CreateAccount creates an admin or user account. Owners may create either;
// admins may only create users.
func (l *Licensor) CreateAccount(ctx context.Context, requesterID id.AccountID, p CreateAccountParams) (*account.Account, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !requester.Active {
		return nil, ErrAccountInactive
	}

	if p.Role == "" {
		p.Role = account.RoleUser
	}
	switch {
	case p.Role == account.RoleOwner, !p.Role.Valid():
		return nil, ValidationError{Field: "role", Message: "must be admin or user"}
	case requester.Role == account.RoleOwner:
	case requester.Role == account.RoleAdmin && p.Role == account.RoleUser && !p.UnlimitedBalance:
	default:
		return nil, ErrNotAuthorized
	}

	username := strings.TrimSpace(p.Username)
	if username == "" {
		return nil, ValidationError{Field: "username", Message: "is required"}
	}
	if p.Balance < 0 {
		return nil, ValidationError{Field: "balance", Message: "must not be negative"}
	}
	if err := p.DeductionRates.Validate(); err != nil {
		return nil, ValidationError{Field: "deduction_rates", Message: err.Error()}
	}

	now := l.clock()
	creator := requester.ID
	a := &account.Account{
		Entity:           types.NewEntityAt(now),
		ID:               id.NewAccountID(),
		Username:         username,
		Role:             p.Role,
		Balance:          p.Balance,
		InitialBalance:   p.Balance,
		UnlimitedBalance: p.UnlimitedBalance,
		Active:           true,
		DeductionRates:   p.DeductionRates.Clone(),
		CreatedBy:        &creator,
	}
	if len(a.DeductionRates) == 0 {
		a.DeductionRates = l.defaultRates.Clone()
	}
	if p.BalanceDuration != "" {
		days, err := rate.ParseDurationDays(p.BalanceDuration)
		if err != nil {
			return nil, err
		}
		expires := now.AddDate(0, 0, days)
		a.BalanceDuration = rate.FormatDurationDays(days)
		a.BalanceExpiresAt = &expires
	}

	if err := l.store.Accounts().Create(ctx, a); err != nil {
		return nil, err
	}

	l.plugins.EmitAccountCreated(ctx, a)
	l.logger.Info("account created",
		"account_id", a.ID.String(),
		"role", a.Role,
		"created_by", creator.String(),
	)
	return a, nil
}

// GetAccount returns an account by ID.
func (l *Licensor) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return l.store.Accounts().Get(ctx, accountID)
}

// ViewAccount returns accountID as seen by requesterID: accounts may read
// themselves, and otherwise the usual management rules apply.
func (l *Licensor) ViewAccount(ctx context.Context, requesterID, accountID id.AccountID) (*account.Account, error) {
	if requesterID.String() == accountID.String() {
		return l.store.Accounts().Get(ctx, accountID)
	}
	return l.managedAccount(ctx, requesterID, accountID)
}

// GetAccountByUsername returns an account by username.
func (l *Licensor) GetAccountByUsername(ctx context.Context, username string) (*account.Account, error) {
	return l.store.Accounts().GetByUsername(ctx, username)
}

// ListAccounts lists accounts visible to the requester. Admins only see
// accounts they created.
func (l *Licensor) ListAccounts(ctx context.Context, requesterID id.AccountID, opts account.ListOpts) ([]*account.Account, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	switch requester.Role {
	case account.RoleOwner:
	case account.RoleAdmin:
		opts.CreatedBy = &requester.ID
	default:
		return nil, ErrNotAuthorized
	}
	return l.store.Accounts().List(ctx, opts)
}

// GrantBalance atomically adds amount to the account's general balance.
func (l *Licensor) GrantBalance(ctx context.Context, requesterID, accountID id.AccountID, amount int64) (*account.Account, error) {
	if amount <= 0 {
		return nil, ValidationError{Field: "amount", Message: "must be positive"}
	}
	target, err := l.managedAccount(ctx, requesterID, accountID)
	if err != nil {
		return nil, err
	}
	if target.IsOwner() {
		return nil, ValidationError{Field: "account_id", Message: "owner balance is fixed"}
	}

	if _, err := l.store.Accounts().Credit(ctx, accountID, amount); err != nil {
		return nil, err
	}
	return l.balanceChanged(ctx, accountID)
}

// SetBalance overwrites the general balance. Negative values are rejected.
func (l *Licensor) SetBalance(ctx context.Context, requesterID, accountID id.AccountID, balance int64) (*account.Account, error) {
	if balance < 0 {
		return nil, ValidationError{Field: "balance", Message: "must not be negative"}
	}
	target, err := l.managedAccount(ctx, requesterID, accountID)
	if err != nil {
		return nil, err
	}
	if target.IsOwner() {
		return nil, ValidationError{Field: "account_id", Message: "owner balance is fixed"}
	}

	if err := l.store.Accounts().SetBalance(ctx, accountID, balance); err != nil {
		return nil, err
	}
	return l.balanceChanged(ctx, accountID)
}

// SetUnlimited toggles the unlimited flag. Only owners may do this.
func (l *Licensor) SetUnlimited(ctx context.Context, requesterID, accountID id.AccountID, unlimited bool) (*account.Account, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !requester.IsOwner() {
		return nil, ErrNotAuthorized
	}

	if err := l.store.Accounts().SetUnlimited(ctx, accountID, unlimited); err != nil {
		return nil, err
	}
	return l.balanceChanged(ctx, accountID)
}

// ExtendBalanceExpiry pushes the general balance expiry days forward from
// the later of now and the current expiry.
func (l *Licensor) ExtendBalanceExpiry(ctx context.Context, requesterID, accountID id.AccountID, days int) (*account.Account, error) {
	if days < 1 {
		return nil, ValidationError{Field: "days", Message: "must be positive"}
	}
	target, err := l.managedAccount(ctx, requesterID, accountID)
	if err != nil {
		return nil, err
	}

	next := account.ExtendFrom(target.BalanceExpiresAt, l.clock(), days)
	if err := l.store.Accounts().SetExpiry(ctx, accountID, &next); err != nil {
		return nil, err
	}
	return l.balanceChanged(ctx, accountID)
}

// SetActive enables or disables an account. Owner accounts cannot be
// disabled.
func (l *Licensor) SetActive(ctx context.Context, requesterID, accountID id.AccountID, active bool) (*account.Account, error) {
	target, err := l.managedAccount(ctx, requesterID, accountID)
	if err != nil {
		return nil, err
	}
	if target.IsOwner() && !active {
		return nil, ErrNotAuthorized
	}

	if err := l.store.Accounts().SetActive(ctx, accountID, active); err != nil {
		return nil, err
	}
	a, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	l.notifyActivation(ctx, a)
	return a, nil
}

// DeleteAccount removes an account. Keys it issued stay in place with a
// dangling creator. Only owners may delete, and never another owner.
func (l *Licensor) DeleteAccount(ctx context.Context, requesterID, accountID id.AccountID) error {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return err
	}
	if !requester.IsOwner() {
		return ErrNotAuthorized
	}
	target, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return err
	}
	if target.IsOwner() {
		return ErrNotAuthorized
	}

	if err := l.store.Accounts().Delete(ctx, accountID); err != nil {
		return err
	}
	l.logger.Info("account deleted",
		"account_id", accountID.String(),
		"deleted_by", requesterID.String(),
	)
	return nil
}

// managedAccount loads the target if the requester may administer it:
// owners manage everyone, admins manage the accounts they created.
func (l *Licensor) managedAccount(ctx context.Context, requesterID, accountID id.AccountID) (*account.Account, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	target, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) && !requester.IsOwner() {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}

	switch {
	case requester.IsOwner():
		return target, nil
	case requester.Role == account.RoleAdmin && target.CreatedBy != nil &&
		target.CreatedBy.String() == requester.ID.String():
		return target, nil
	default:
		return nil, ErrNotAuthorized
	}
}

func (l *Licensor) balanceChanged(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	a, err := l.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	l.notifyBalance(ctx, a)
	return a, nil
}
