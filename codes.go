package licensor

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/referral"
	"github.com/xraph/licensor/types"
)

// codeAlphabet omits characters that are easy to misread.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeParams describes a one-time code to create.
type CodeParams struct {
	// Code is generated when empty.
	Code           string           `json:"code,omitempty"`
	Variant        referral.Variant `json:"variant,omitempty"`
	ModID          string           `json:"mod_id,omitempty"`
	Balance        int64            `json:"balance"`
	Duration       string           `json:"duration"`
	DeductionRates rate.Table       `json:"deduction_rates,omitempty"`
	Unlimited      bool             `json:"unlimited,omitempty"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
}

// AccountParams describes the account a redemption creates.
type AccountParams struct {
	Username string `json:"username"`
}

// CreateCode creates a one-time code. Owners and admins may create codes;
// only owners may grant unlimited balance.
func (l *Licensor) CreateCode(ctx context.Context, requesterID id.AccountID, p CodeParams) (*referral.Code, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	switch {
	case requester.Role != account.RoleOwner && requester.Role != account.RoleAdmin:
		return nil, ErrNotAuthorized
	case p.Unlimited && !requester.IsOwner():
		return nil, ErrNotAuthorized
	case !requester.Active:
		return nil, ErrAccountInactive
	}

	if p.Variant == "" {
		p.Variant = referral.VariantPlain
	}
	switch p.Variant {
	case referral.VariantPlain:
		p.ModID = ""
	case referral.VariantMod:
		if p.ModID == "" {
			return nil, ValidationError{Field: "mod_id", Message: "is required for mod codes"}
		}
	default:
		return nil, ValidationError{Field: "variant", Message: "must be plain or mod"}
	}
	if p.Balance < 0 {
		return nil, ValidationError{Field: "balance", Message: "must not be negative"}
	}
	days, err := rate.ParseDurationDays(p.Duration)
	if err != nil {
		return nil, err
	}
	if err := p.DeductionRates.Validate(); err != nil {
		return nil, ValidationError{Field: "deduction_rates", Message: err.Error()}
	}
	now := l.clock()
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return nil, ValidationError{Field: "expires_at", Message: "must be in the future"}
	}

	c := &referral.Code{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewCodeID(),
		Code:           strings.TrimSpace(p.Code),
		Variant:        p.Variant,
		ModID:          p.ModID,
		Balance:        p.Balance,
		Duration:       rate.FormatDurationDays(days),
		DeductionRates: p.DeductionRates.Clone(),
		Unlimited:      p.Unlimited,
		CreatedBy:      requester.ID,
		Active:         true,
		ExpiresAt:      p.ExpiresAt,
	}

	generated := c.Code == ""
	for attempt := 0; ; attempt++ {
		if generated {
			if c.Code, err = newCode(); err != nil {
				return nil, err
			}
		}
		err = l.store.Codes().Create(ctx, c)
		if err == nil || !generated || !errors.Is(err, ErrCodeExists) || attempt == 2 {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("code created",
		"code_id", c.ID.String(),
		"variant", c.Variant,
		"created_by", requester.ID.String(),
	)
	return c, nil
}

// newCode returns a random code in XXXX-XXXX-XXXX form.
func newCode() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, v := range b {
		if i > 0 && i%4 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}
	return sb.String(), nil
}

// Redeem spends the code and creates the admin account it grants. The code
// is claimed first with a conditional update, so concurrent redeemers see
// exactly one winner. If account creation then fails the claim is released;
// a failed release leaves the code burned and is reported as such.
func (l *Licensor) Redeem(ctx context.Context, code string, p AccountParams) (*account.Account, error) {
	username := strings.TrimSpace(p.Username)
	if username == "" {
		return nil, ValidationError{Field: "username", Message: "is required"}
	}

	c, err := l.store.Codes().Get(ctx, code)
	if err != nil {
		return nil, err
	}
	now := l.clock()
	switch {
	case !c.Active:
		return nil, ErrCodeInactive
	case c.Expired(now):
		return nil, ErrCodeExpired
	case c.Spent():
		return nil, ErrCodeAlreadyUsed
	}

	days, err := rate.ParseDurationDays(c.Duration)
	if err != nil {
		return nil, err
	}
	if _, err := l.store.Accounts().GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	accountID := id.NewAccountID()
	if err := l.store.Codes().MarkUsed(ctx, c.Code, accountID, now); err != nil {
		return nil, err
	}

	a := newGrantAccount(c, accountID, username, now, days, l.defaultRates)
	if err := l.store.Accounts().Create(ctx, a); err != nil {
		l.releaseCode(ctx, c, accountID, err)
		return nil, err
	}

	l.plugins.EmitAccountCreated(ctx, a)
	l.plugins.EmitCodeRedeemed(ctx, c, a)
	if mb := a.FindModBalance(c.ModID); mb != nil {
		l.notifyModBalance(ctx, a, *mb)
	} else {
		l.notifyBalance(ctx, a)
	}

	l.logger.Info("code redeemed",
		"code_id", c.ID.String(),
		"account_id", a.ID.String(),
		"variant", c.Variant,
	)
	return a, nil
}

func newGrantAccount(c *referral.Code, accountID id.AccountID, username string, now time.Time, days int, defaults rate.Table) *account.Account {
	rates := c.DeductionRates.Clone()
	if len(rates) == 0 {
		rates = defaults.Clone()
	}
	creator := c.CreatedBy
	expires := now.AddDate(0, 0, days)

	a := &account.Account{
		Entity:         types.NewEntityAt(now),
		ID:             accountID,
		Username:       username,
		Role:           account.RoleAdmin,
		Active:         true,
		DeductionRates: rates,
		CreatedBy:      &creator,
	}
	if c.Variant == referral.VariantMod {
		a.ModBalances = []account.ModBalance{{
			ModID:            c.ModID,
			Balance:          c.Balance,
			InitialBalance:   c.Balance,
			UnlimitedBalance: c.Unlimited,
			ExpiresAt:        &expires,
		}}
		return a
	}

	a.Balance = c.Balance
	a.InitialBalance = c.Balance
	a.UnlimitedBalance = c.Unlimited
	a.BalanceDuration = c.Duration
	a.BalanceExpiresAt = &expires
	return a
}

func (l *Licensor) releaseCode(ctx context.Context, c *referral.Code, redeemer id.AccountID, cause error) {
	if err := l.store.Codes().Release(ctx, c.Code, redeemer); err != nil {
		l.logger.Error("code burned: release after failed redemption did not succeed",
			"code_id", c.ID.String(),
			"redeemer", redeemer.String(),
			"cause", cause,
			"error", err,
		)
		l.plugins.EmitCodeBurned(ctx, c, redeemer, cause)
		return
	}
	l.logger.Warn("code released after failed redemption",
		"code_id", c.ID.String(),
		"cause", cause,
	)
}

// GetCode returns a code by its code string.
func (l *Licensor) GetCode(ctx context.Context, code string) (*referral.Code, error) {
	return l.store.Codes().Get(ctx, code)
}

// ListCodes lists codes visible to the requester. Admins only see codes
// they created.
func (l *Licensor) ListCodes(ctx context.Context, requesterID id.AccountID, opts referral.ListOpts) ([]*referral.Code, error) {
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
	return l.store.Codes().List(ctx, opts)
}

// ViewCode returns the code if requesterID created it or is an owner.
func (l *Licensor) ViewCode(ctx context.Context, code string, requesterID id.AccountID) (*referral.Code, error) {
	return l.managedCode(ctx, code, requesterID)
}

// DeactivateCode stops a code from being redeemed. Only its creator or an
// owner may deactivate it.
func (l *Licensor) DeactivateCode(ctx context.Context, code string, requesterID id.AccountID) error {
	if _, err := l.managedCode(ctx, code, requesterID); err != nil {
		return err
	}
	return l.store.Codes().SetActive(ctx, code, false)
}

func (l *Licensor) managedCode(ctx context.Context, code string, requesterID id.AccountID) (*referral.Code, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	c, err := l.store.Codes().Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !requester.IsOwner() && c.CreatedBy.String() != requester.ID.String() {
		return nil, ErrNotAuthorized
	}
	return c, nil
}
