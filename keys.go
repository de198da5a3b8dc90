package licensor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/types"
)

// MaxBatchSize caps the number of keys one IssueBatch call may mint.
const MaxBatchSize = 1000

// IssueParams describes a single key to mint.
type IssueParams struct {
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	ModID       string    `json:"mod_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	// MaxUsage of zero means unlimited uses.
	MaxUsage   int64 `json:"max_usage,omitempty"`
	MaxDevices int   `json:"max_devices,omitempty"`
}

// BatchParams describes a batch of identical keys.
type BatchParams struct {
	ModID          string `json:"mod_id"`
	Amount         int    `json:"amount"`
	Duration       string `json:"duration"`
	DeviceCount    int    `json:"device_count"`
	UnlimitedUsage bool   `json:"unlimited_usage"`
}

// Charge records what one batch key cost and whether it was actually
// taken from a balance.
type Charge struct {
	Token   string `json:"token"`
	Cost    int64  `json:"cost"`
	Debited bool   `json:"debited"`
}

// BatchResult reports partial progress when a batch stops early.
type BatchResult struct {
	Keys      []*licensekey.LicenseKey `json:"keys"`
	Charges   []Charge                 `json:"charges"`
	Requested int                      `json:"requested"`
	Issued    int                      `json:"issued"`
}

// ──────────────────────────────────────────────────
// Issuance
// ──────────────────────────────────────────────────

// IssueKey mints a key for requesterID. Owners mint owner-tier keys for
// free; admins pay through the ledger first and mint reseller-tier keys. A
// ledger refusal leaves no key and no debit behind.
func (l *Licensor) IssueKey(ctx context.Context, requesterID id.AccountID, p IssueParams) (*licensekey.LicenseKey, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	k, _, err := l.issue(ctx, requester, p)
	return k, err
}

// IssueBatch mints Amount keys one at a time, paying for each separately.
// It stops at the first failure and returns what was issued so far along
// with the error.
func (l *Licensor) IssueBatch(ctx context.Context, requesterID id.AccountID, p BatchParams) (*BatchResult, error) {
	if p.Amount < 1 || p.Amount > MaxBatchSize {
		return nil, ValidationError{Field: "amount", Message: fmt.Sprintf("must be between 1 and %d", MaxBatchSize)}
	}
	days, err := rate.ParseDurationDays(p.Duration)
	if err != nil {
		return nil, err
	}
	devices := p.DeviceCount
	if devices < 1 {
		devices = 1
	}

	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	params := IssueParams{
		ModID:      p.ModID,
		ExpiresAt:  l.clock().AddDate(0, 0, days),
		MaxDevices: devices,
	}
	if !p.UnlimitedUsage {
		params.MaxUsage = int64(devices)
	}

	result := &BatchResult{
		Keys:      make([]*licensekey.LicenseKey, 0, p.Amount),
		Charges:   make([]Charge, 0, p.Amount),
		Requested: p.Amount,
	}
	for i := range p.Amount {
		k, debit, err := l.issue(ctx, requester, params)
		if err != nil {
			l.logger.Info("batch issuance stopped",
				"requester", requesterID.String(),
				"requested", p.Amount,
				"issued", i,
				"error", err,
			)
			return result, err
		}
		charge := Charge{Token: k.Token}
		if debit != nil {
			charge.Cost = debit.Cost
			charge.Debited = debit.Debited
		}
		result.Keys = append(result.Keys, k)
		result.Charges = append(result.Charges, charge)
		result.Issued++
	}

	return result, nil
}

func (l *Licensor) issue(ctx context.Context, requester *account.Account, p IssueParams) (*licensekey.LicenseKey, *DebitResult, error) {
	now := l.clock()
	if !p.ExpiresAt.After(now) {
		return nil, nil, ValidationError{Field: "expires_at", Message: "must be in the future"}
	}
	if p.MaxUsage < 0 {
		return nil, nil, ValidationError{Field: "max_usage", Message: "must not be negative"}
	}
	if p.MaxDevices < 0 {
		return nil, nil, ValidationError{Field: "max_devices", Message: "must not be negative"}
	}
	if p.MaxDevices == 0 {
		p.MaxDevices = 1
	}

	var (
		tier  licensekey.Tier
		debit *DebitResult
		err   error
	)
	switch requester.Role {
	case account.RoleOwner:
		if !requester.Active {
			return nil, nil, ErrAccountInactive
		}
		tier = licensekey.TierOwner
	case account.RoleAdmin:
		tier = licensekey.TierReseller
		cost := rate.ComputeKeyCost(requester.DeductionRates, rate.DaysUntil(now, p.ExpiresAt), p.MaxDevices)
		if p.ModID != "" {
			debit, err = l.AuthorizeAndDebitMod(ctx, requester.ID, p.ModID, cost)
		} else {
			debit, err = l.AuthorizeAndDebit(ctx, requester.ID, cost)
		}
		if err != nil {
			if !isDenial(err) {
				l.logger.Error("key cost authorization failed",
					"requester", requester.ID.String(),
					"cost", cost,
					"error", err,
				)
			}
			return nil, nil, err
		}
	default:
		return nil, nil, ErrNotAuthorized
	}

	token, err := newToken()
	if err != nil {
		l.refund(ctx, debit, err)
		return nil, nil, fmt.Errorf("generate token: %w", err)
	}

	name := p.Name
	if name == "" {
		name = p.ModID
	}
	if name == "" {
		name = fmt.Sprintf("key-%d", now.Unix())
	}

	k := &licensekey.LicenseKey{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewLicenseKeyID(),
		Token:       token,
		Name:        name,
		Description: p.Description,
		Tier:        tier,
		CreatedBy:   requester.ID,
		IsActive:    true,
		ExpiresAt:   p.ExpiresAt.UTC(),
		MaxUsage:    p.MaxUsage,
		MaxDevices:  p.MaxDevices,
		ModID:       p.ModID,
	}
	if err := l.store.Keys().Create(ctx, k); err != nil {
		l.refund(ctx, debit, err)
		return nil, nil, err
	}

	var cost int64
	if debit != nil && debit.Debited {
		cost = debit.Cost
	}
	l.plugins.EmitKeyIssued(ctx, k, cost)

	l.logger.Debug("license key issued",
		"key_id", k.ID.String(),
		"tier", k.Tier,
		"mod_id", k.ModID,
		"cost", cost,
	)

	return k, debit, nil
}

// newToken returns 128 random bits, hex encoded.
func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ──────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────

// ValidateAndConsume checks the key and records one use. When modID is set
// the key must belong to that mod.
func (l *Licensor) ValidateAndConsume(ctx context.Context, token, modID string) (*licensekey.Details, error) {
	if token == "" {
		return nil, ValidationError{Field: "token", Message: "is required"}
	}

	k, err := l.store.Keys().Consume(ctx, token, modID, l.clock())
	if err != nil {
		l.plugins.EmitKeyRejected(ctx, token, err)
		return nil, err
	}

	l.plugins.EmitKeyValidated(ctx, k)
	return k.Details(), nil
}

// ──────────────────────────────────────────────────
// Key management
// ──────────────────────────────────────────────────

// ExtendExpiry moves the key's expiry forward by days, counting from its
// current expiry even when that has already passed. Owners may extend any
// key; admins only their own.
func (l *Licensor) ExtendExpiry(ctx context.Context, token string, days int, requesterID id.AccountID) (*licensekey.LicenseKey, error) {
	if days < 1 {
		return nil, ValidationError{Field: "days", Message: "must be positive"}
	}

	k, err := l.managedKey(ctx, token, requesterID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < l.maxExtendRetries; attempt++ {
		next := k.ExpiresAt.AddDate(0, 0, days)
		err = l.store.Keys().SwapExpiry(ctx, token, k.ExpiresAt, next)
		if err == nil {
			k.ExpiresAt = next
			l.plugins.EmitKeyExtended(ctx, k, days)
			return k, nil
		}
		if !errors.Is(err, ErrExpiryContention) {
			return nil, err
		}
		if k, err = l.store.Keys().Get(ctx, token); err != nil {
			return nil, err
		}
	}

	return nil, ErrExpiryContention
}

// GetKey returns the full key record.
func (l *Licensor) GetKey(ctx context.Context, token string) (*licensekey.LicenseKey, error) {
	return l.store.Keys().Get(ctx, token)
}

// ViewKey returns the key if requesterID may manage it.
func (l *Licensor) ViewKey(ctx context.Context, token string, requesterID id.AccountID) (*licensekey.LicenseKey, error) {
	return l.managedKey(ctx, token, requesterID)
}

// ListKeys lists keys visible to the requester. Admins only see keys they
// created; owners see everything opts selects.
func (l *Licensor) ListKeys(ctx context.Context, requesterID id.AccountID, opts licensekey.ListOpts) ([]*licensekey.LicenseKey, error) {
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
	return l.store.Keys().List(ctx, opts)
}

// DeleteKey removes a key. Only its creator or an owner may delete it.
func (l *Licensor) DeleteKey(ctx context.Context, token string, requesterID id.AccountID) error {
	if _, err := l.managedKey(ctx, token, requesterID); err != nil {
		return err
	}
	return l.store.Keys().Delete(ctx, token)
}

// SetKeyActive enables or disables a key.
func (l *Licensor) SetKeyActive(ctx context.Context, token string, active bool, requesterID id.AccountID) error {
	if _, err := l.managedKey(ctx, token, requesterID); err != nil {
		return err
	}
	return l.store.Keys().SetActive(ctx, token, active)
}

func (l *Licensor) managedKey(ctx context.Context, token string, requesterID id.AccountID) (*licensekey.LicenseKey, error) {
	requester, err := l.store.Accounts().Get(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !requester.Active {
		return nil, ErrAccountInactive
	}
	k, err := l.store.Keys().Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !canManageKey(requester, k) {
		return nil, ErrNotAuthorized
	}
	return k, nil
}

func canManageKey(requester *account.Account, k *licensekey.LicenseKey) bool {
	switch requester.Role {
	case account.RoleOwner:
		return true
	case account.RoleAdmin:
		return k.CreatedBy.String() == requester.ID.String()
	default:
		return false
	}
}
