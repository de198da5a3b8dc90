package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/referral"
	"github.com/xraph/licensor/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:licensor_accounts"`

	ID               string          `grove:"id,pk"`
	Username         string          `grove:"username"`
	Role             string          `grove:"role"`
	Balance          int64           `grove:"balance"`
	InitialBalance   int64           `grove:"initial_balance"`
	UnlimitedBalance bool            `grove:"unlimited_balance"`
	BalanceDuration  string          `grove:"balance_duration"`
	BalanceExpiresAt *time.Time      `grove:"balance_expires_at"`
	Active           bool            `grove:"active"`
	DeductionRates   json.RawMessage `grove:"deduction_rates,type:jsonb"`
	CreatedBy        string          `grove:"created_by"`
	CreatedAt        time.Time       `grove:"created_at"`
	UpdatedAt        time.Time       `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	rates, _ := json.Marshal(a.DeductionRates) //nolint:errcheck // best-effort

	var createdBy string
	if a.CreatedBy != nil {
		createdBy = a.CreatedBy.String()
	}

	return &accountModel{
		ID:               a.ID.String(),
		Username:         a.Username,
		Role:             string(a.Role),
		Balance:          a.Balance,
		InitialBalance:   a.InitialBalance,
		UnlimitedBalance: a.UnlimitedBalance,
		BalanceDuration:  a.BalanceDuration,
		BalanceExpiresAt: a.BalanceExpiresAt,
		Active:           a.Active,
		DeductionRates:   rates,
		CreatedBy:        createdBy,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel, mods []modBalanceModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	var createdBy *id.AccountID
	if m.CreatedBy != "" {
		parsed, parseErr := id.ParseAccountID(m.CreatedBy)
		if parseErr != nil {
			return nil, parseErr
		}
		createdBy = &parsed
	}

	var rates rate.Table
	if len(m.DeductionRates) > 0 && string(m.DeductionRates) != "null" {
		_ = json.Unmarshal(m.DeductionRates, &rates) //nolint:errcheck // best-effort
	}

	a := &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               accountID,
		Username:         m.Username,
		Role:             account.Role(m.Role),
		Balance:          m.Balance,
		InitialBalance:   m.InitialBalance,
		UnlimitedBalance: m.UnlimitedBalance,
		BalanceDuration:  m.BalanceDuration,
		BalanceExpiresAt: m.BalanceExpiresAt,
		Active:           m.Active,
		DeductionRates:   rates,
		CreatedBy:        createdBy,
	}
	for i := range mods {
		a.ModBalances = append(a.ModBalances, fromModBalanceModel(&mods[i]))
	}
	return a, nil
}

// ==================== Mod balance models ====================

type modBalanceModel struct {
	grove.BaseModel `grove:"table:licensor_mod_balances"`

	AccountID        string     `grove:"account_id,pk"`
	ModID            string     `grove:"mod_id,pk"`
	Balance          int64      `grove:"balance"`
	InitialBalance   int64      `grove:"initial_balance"`
	UnlimitedBalance bool       `grove:"unlimited_balance"`
	ExpiresAt        *time.Time `grove:"expires_at"`
	CreatedAt        time.Time  `grove:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"`
}

func toModBalanceModels(a *account.Account) []modBalanceModel {
	out := make([]modBalanceModel, len(a.ModBalances))
	for i, mb := range a.ModBalances {
		out[i] = modBalanceModel{
			AccountID:        a.ID.String(),
			ModID:            mb.ModID,
			Balance:          mb.Balance,
			InitialBalance:   mb.InitialBalance,
			UnlimitedBalance: mb.UnlimitedBalance,
			ExpiresAt:        mb.ExpiresAt,
			CreatedAt:        a.CreatedAt,
			UpdatedAt:        a.UpdatedAt,
		}
	}
	return out
}

func fromModBalanceModel(m *modBalanceModel) account.ModBalance {
	return account.ModBalance{
		ModID:            m.ModID,
		Balance:          m.Balance,
		InitialBalance:   m.InitialBalance,
		UnlimitedBalance: m.UnlimitedBalance,
		ExpiresAt:        m.ExpiresAt,
	}
}

// ==================== License key models ====================

type licenseKeyModel struct {
	grove.BaseModel `grove:"table:licensor_license_keys"`

	ID          string     `grove:"id,pk"`
	Token       string     `grove:"token"`
	Name        string     `grove:"name"`
	Description string     `grove:"description"`
	Tier        string     `grove:"tier"`
	CreatedBy   string     `grove:"created_by"`
	IsActive    bool       `grove:"is_active"`
	ExpiresAt   time.Time  `grove:"expires_at"`
	UsageCount  int64      `grove:"usage_count"`
	MaxUsage    int64      `grove:"max_usage"`
	MaxDevices  int        `grove:"max_devices"`
	ModID       string     `grove:"mod_id"`
	LastUsed    *time.Time `grove:"last_used"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toLicenseKeyModel(k *licensekey.LicenseKey) *licenseKeyModel {
	return &licenseKeyModel{
		ID:          k.ID.String(),
		Token:       k.Token,
		Name:        k.Name,
		Description: k.Description,
		Tier:        string(k.Tier),
		CreatedBy:   k.CreatedBy.String(),
		IsActive:    k.IsActive,
		ExpiresAt:   k.ExpiresAt,
		UsageCount:  k.UsageCount,
		MaxUsage:    k.MaxUsage,
		MaxDevices:  k.MaxDevices,
		ModID:       k.ModID,
		LastUsed:    k.LastUsed,
		CreatedAt:   k.CreatedAt,
		UpdatedAt:   k.UpdatedAt,
	}
}

func fromLicenseKeyModel(m *licenseKeyModel) (*licensekey.LicenseKey, error) {
	keyID, err := id.ParseLicenseKeyID(m.ID)
	if err != nil {
		return nil, err
	}
	createdBy, err := id.ParseAccountID(m.CreatedBy)
	if err != nil {
		return nil, err
	}

	return &licensekey.LicenseKey{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          keyID,
		Token:       m.Token,
		Name:        m.Name,
		Description: m.Description,
		Tier:        licensekey.Tier(m.Tier),
		CreatedBy:   createdBy,
		IsActive:    m.IsActive,
		ExpiresAt:   m.ExpiresAt,
		UsageCount:  m.UsageCount,
		MaxUsage:    m.MaxUsage,
		MaxDevices:  m.MaxDevices,
		ModID:       m.ModID,
		LastUsed:    m.LastUsed,
	}, nil
}

// ==================== Code models ====================

type codeModel struct {
	grove.BaseModel `grove:"table:licensor_codes"`

	ID             string          `grove:"id,pk"`
	Code           string          `grove:"code"`
	Variant        string          `grove:"variant"`
	ModID          string          `grove:"mod_id"`
	Balance        int64           `grove:"balance"`
	Duration       string          `grove:"duration"`
	DeductionRates json.RawMessage `grove:"deduction_rates,type:jsonb"`
	Unlimited      bool            `grove:"unlimited"`
	CreatedBy      string          `grove:"created_by"`
	RedeemedBy     string          `grove:"redeemed_by"`
	UsedCount      int             `grove:"used_count"`
	IsUsed         bool            `grove:"is_used"`
	UsedAt         *time.Time      `grove:"used_at"`
	Active         bool            `grove:"active"`
	ExpiresAt      *time.Time      `grove:"expires_at"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toCodeModel(c *referral.Code) *codeModel {
	rates, _ := json.Marshal(c.DeductionRates) //nolint:errcheck // best-effort

	var redeemedBy string
	if n := len(c.UsedBy); n > 0 {
		redeemedBy = c.UsedBy[n-1].String()
	}

	return &codeModel{
		ID:             c.ID.String(),
		Code:           c.Code,
		Variant:        string(c.Variant),
		ModID:          c.ModID,
		Balance:        c.Balance,
		Duration:       c.Duration,
		DeductionRates: rates,
		Unlimited:      c.Unlimited,
		CreatedBy:      c.CreatedBy.String(),
		RedeemedBy:     redeemedBy,
		UsedCount:      c.UsedCount,
		IsUsed:         c.IsUsed,
		UsedAt:         c.UsedAt,
		Active:         c.Active,
		ExpiresAt:      c.ExpiresAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func fromCodeModel(m *codeModel) (*referral.Code, error) {
	codeID, err := id.ParseCodeID(m.ID)
	if err != nil {
		return nil, err
	}
	createdBy, err := id.ParseAccountID(m.CreatedBy)
	if err != nil {
		return nil, err
	}

	var usedBy []id.AccountID
	if m.RedeemedBy != "" {
		redeemer, parseErr := id.ParseAccountID(m.RedeemedBy)
		if parseErr != nil {
			return nil, parseErr
		}
		usedBy = []id.AccountID{redeemer}
	}

	var rates rate.Table
	if len(m.DeductionRates) > 0 && string(m.DeductionRates) != "null" {
		_ = json.Unmarshal(m.DeductionRates, &rates) //nolint:errcheck // best-effort
	}

	return &referral.Code{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             codeID,
		Code:           m.Code,
		Variant:        referral.Variant(m.Variant),
		ModID:          m.ModID,
		Balance:        m.Balance,
		Duration:       m.Duration,
		DeductionRates: rates,
		Unlimited:      m.Unlimited,
		CreatedBy:      createdBy,
		UsedBy:         usedBy,
		UsedCount:      m.UsedCount,
		IsUsed:         m.IsUsed,
		UsedAt:         m.UsedAt,
		Active:         m.Active,
		ExpiresAt:      m.ExpiresAt,
	}, nil
}
