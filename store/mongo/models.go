package mongo

import (
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

	ID               string     `grove:"id,pk"              bson:"_id"`
	Username         string     `grove:"username"           bson:"username"`
	Role             string     `grove:"role"               bson:"role"`
	Balance          int64      `grove:"balance"            bson:"balance"`
	InitialBalance   int64      `grove:"initial_balance"    bson:"initial_balance"`
	UnlimitedBalance bool       `grove:"unlimited_balance"  bson:"unlimited_balance"`
	BalanceDuration  string     `grove:"balance_duration"   bson:"balance_duration"`
	BalanceExpiresAt *time.Time `grove:"balance_expires_at" bson:"balance_expires_at,omitempty"`
	Active           bool       `grove:"active"             bson:"active"`
	DeductionRates   rate.Table `grove:"deduction_rates"    bson:"deduction_rates,omitempty"`
	CreatedBy        string     `grove:"created_by"         bson:"created_by"`
	CreatedAt        time.Time  `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"         bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
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
		DeductionRates:   a.DeductionRates,
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
		DeductionRates:   m.DeductionRates,
		CreatedBy:        createdBy,
	}
	for i := range mods {
		a.ModBalances = append(a.ModBalances, account.ModBalance{
			ModID:            mods[i].ModID,
			Balance:          mods[i].Balance,
			InitialBalance:   mods[i].InitialBalance,
			UnlimitedBalance: mods[i].UnlimitedBalance,
			ExpiresAt:        mods[i].ExpiresAt,
		})
	}
	return a, nil
}

// ==================== Mod balance models ====================

// modBalanceModel lives in its own collection so that every mod mutation
// is a single-document atomic update. ID is "<account_id>:<mod_id>".
type modBalanceModel struct {
	grove.BaseModel `grove:"table:licensor_mod_balances"`

	ID               string     `grove:"id,pk"             bson:"_id"`
	AccountID        string     `grove:"account_id"        bson:"account_id"`
	ModID            string     `grove:"mod_id"            bson:"mod_id"`
	Balance          int64      `grove:"balance"           bson:"balance"`
	InitialBalance   int64      `grove:"initial_balance"   bson:"initial_balance"`
	UnlimitedBalance bool       `grove:"unlimited_balance" bson:"unlimited_balance"`
	ExpiresAt        *time.Time `grove:"expires_at"        bson:"expires_at,omitempty"`
	CreatedAt        time.Time  `grove:"created_at"        bson:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"        bson:"updated_at"`
}

func modBalanceKey(accountID id.AccountID, modID string) string {
	return accountID.String() + ":" + modID
}

func toModBalanceModels(a *account.Account) []modBalanceModel {
	out := make([]modBalanceModel, len(a.ModBalances))
	for i, mb := range a.ModBalances {
		out[i] = modBalanceModel{
			ID:               modBalanceKey(a.ID, mb.ModID),
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

// ==================== License key models ====================

type licenseKeyModel struct {
	grove.BaseModel `grove:"table:licensor_license_keys"`

	ID          string     `grove:"id,pk"       bson:"_id"`
	Token       string     `grove:"token"       bson:"token"`
	Name        string     `grove:"name"        bson:"name"`
	Description string     `grove:"description" bson:"description"`
	Tier        string     `grove:"tier"        bson:"tier"`
	CreatedBy   string     `grove:"created_by"  bson:"created_by"`
	IsActive    bool       `grove:"is_active"   bson:"is_active"`
	ExpiresAt   time.Time  `grove:"expires_at"  bson:"expires_at"`
	UsageCount  int64      `grove:"usage_count" bson:"usage_count"`
	MaxUsage    int64      `grove:"max_usage"   bson:"max_usage"`
	MaxDevices  int        `grove:"max_devices" bson:"max_devices"`
	ModID       string     `grove:"mod_id"      bson:"mod_id"`
	LastUsed    *time.Time `grove:"last_used"   bson:"last_used,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"  bson:"updated_at"`
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

	ID             string     `grove:"id,pk"           bson:"_id"`
	Code           string     `grove:"code"            bson:"code"`
	Variant        string     `grove:"variant"         bson:"variant"`
	ModID          string     `grove:"mod_id"          bson:"mod_id"`
	Balance        int64      `grove:"balance"         bson:"balance"`
	Duration       string     `grove:"duration"        bson:"duration"`
	DeductionRates rate.Table `grove:"deduction_rates" bson:"deduction_rates,omitempty"`
	Unlimited      bool       `grove:"unlimited"       bson:"unlimited"`
	CreatedBy      string     `grove:"created_by"      bson:"created_by"`
	RedeemedBy     string     `grove:"redeemed_by"     bson:"redeemed_by"`
	UsedCount      int        `grove:"used_count"      bson:"used_count"`
	IsUsed         bool       `grove:"is_used"         bson:"is_used"`
	UsedAt         *time.Time `grove:"used_at"         bson:"used_at,omitempty"`
	Active         bool       `grove:"active"          bson:"active"`
	ExpiresAt      *time.Time `grove:"expires_at"      bson:"expires_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"      bson:"updated_at"`
}

func toCodeModel(c *referral.Code) *codeModel {
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
		DeductionRates: c.DeductionRates,
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
		DeductionRates: m.DeductionRates,
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
