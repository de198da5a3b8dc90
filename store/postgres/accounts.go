package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
)

type accountStore Store

func (s *accountStore) Create(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return licensor.ErrUsernameTaken
		}
		return err
	}

	mods := toModBalanceModels(a)
	if len(mods) == 0 {
		return nil
	}
	if _, err := s.pg.NewInsert(&mods).Exec(ctx); err != nil {
		// Leave no half-created account behind.
		_, _ = s.pg.NewDelete((*accountModel)(nil)).Where("id = $1", m.ID).Exec(ctx) //nolint:errcheck // best-effort
		return err
	}
	return nil
}

func (s *accountStore) Get(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", accountID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrAccountNotFound
		}
		return nil, err
	}
	return s.load(ctx, m)
}

func (s *accountStore) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("username = $1", username).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrAccountNotFound
		}
		return nil, err
	}
	return s.load(ctx, m)
}

// load attaches the account's mod balances.
func (s *accountStore) load(ctx context.Context, m *accountModel) (*account.Account, error) {
	var mods []modBalanceModel
	err := s.pg.NewSelect(&mods).
		Where("account_id = $1", m.ID).
		OrderExpr("created_at ASC, mod_id ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	return fromAccountModel(m, mods)
}

func (s *accountStore) List(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.CreatedBy != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_by = $%d", argIdx), opts.CreatedBy.String())
	}
	if opts.Role != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("role = $%d", argIdx), string(opts.Role))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := s.load(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *accountStore) Delete(ctx context.Context, accountID id.AccountID) error {
	rows, err := affected(s.pg.NewDelete((*accountModel)(nil)).
		Where("id = $1", accountID.String()).
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 0 {
		return licensor.ErrAccountNotFound
	}
	return nil
}

// ==================== General balance ====================

func (s *accountStore) Debit(ctx context.Context, accountID id.AccountID, amount int64) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`
		UPDATE licensor_accounts
		SET balance = balance - $2, updated_at = $3
		WHERE id = $1 AND active AND balance >= $2
		RETURNING balance
	`, accountID.String(), amount, now()).Scan(ctx, &balance)
	if err == nil {
		return balance, nil
	}
	if !isNoRows(err) {
		return 0, err
	}

	// The guard refused the write; report why from the current row.
	a, getErr := s.Get(ctx, accountID)
	if getErr != nil {
		return 0, getErr
	}
	if !a.Active {
		return 0, licensor.ErrAccountInactive
	}
	return 0, &licensor.InsufficientFundsError{Required: amount, Available: a.Balance}
}

func (s *accountStore) Credit(ctx context.Context, accountID id.AccountID, amount int64) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`
		UPDATE licensor_accounts
		SET balance = balance + $2, updated_at = $3
		WHERE id = $1
		RETURNING balance
	`, accountID.String(), amount, now()).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return 0, licensor.ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (s *accountStore) SetBalance(ctx context.Context, accountID id.AccountID, balance int64) error {
	if balance < 0 {
		return licensor.ValidationError{Field: "balance", Message: "must not be negative"}
	}
	return s.set(ctx, accountID, "balance = $1", balance)
}

func (s *accountStore) SetUnlimited(ctx context.Context, accountID id.AccountID, unlimited bool) error {
	return s.set(ctx, accountID, "unlimited_balance = $1", unlimited)
}

func (s *accountStore) SetExpiry(ctx context.Context, accountID id.AccountID, expiresAt *time.Time) error {
	return s.set(ctx, accountID, "balance_expires_at = $1", expiresAt)
}

func (s *accountStore) SetActive(ctx context.Context, accountID id.AccountID, active bool) error {
	return s.set(ctx, accountID, "active = $1", active)
}

// set updates one column of an account. expr must use $1 for value.
func (s *accountStore) set(ctx context.Context, accountID id.AccountID, expr string, value any) error {
	rows, err := affected(s.pg.NewUpdate((*accountModel)(nil)).
		Set(expr, value).
		Set("updated_at = $2", now()).
		Where("id = $3", accountID.String()).
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 0 {
		return licensor.ErrAccountNotFound
	}
	return nil
}

// ==================== Mod balances ====================

func (s *accountStore) DebitMod(ctx context.Context, accountID id.AccountID, modID string, amount int64) (int64, error) {
	var balance int64
	err := s.pg.NewRaw(`
		UPDATE licensor_mod_balances
		SET balance = balance - $3, updated_at = $4
		WHERE account_id = $1 AND mod_id = $2 AND balance >= $3
		RETURNING balance
	`, accountID.String(), modID, amount, now()).Scan(ctx, &balance)
	if err == nil {
		return balance, nil
	}
	if !isNoRows(err) {
		return 0, err
	}

	a, getErr := s.Get(ctx, accountID)
	if getErr != nil {
		return 0, getErr
	}
	mb := a.FindModBalance(modID)
	if mb == nil {
		return 0, licensor.ErrModBalanceNotFound
	}
	return 0, &licensor.InsufficientFundsError{Required: amount, Available: mb.Balance, ModID: modID}
}

func (s *accountStore) AddMod(ctx context.Context, accountID id.AccountID, modID string, amount int64) (int64, error) {
	if err := s.exists(ctx, accountID); err != nil {
		return 0, err
	}

	var balance int64
	err := s.pg.NewRaw(`
		INSERT INTO licensor_mod_balances (account_id, mod_id, balance, initial_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $4, $4)
		ON CONFLICT (account_id, mod_id) DO UPDATE
		SET balance = licensor_mod_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance
	`, accountID.String(), modID, amount, now()).Scan(ctx, &balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *accountStore) SetModUnlimited(ctx context.Context, accountID id.AccountID, modID string, unlimited bool) error {
	if err := s.exists(ctx, accountID); err != nil {
		return err
	}
	_, err := s.pg.NewRaw(`
		INSERT INTO licensor_mod_balances (account_id, mod_id, unlimited_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (account_id, mod_id) DO UPDATE
		SET unlimited_balance = EXCLUDED.unlimited_balance, updated_at = EXCLUDED.updated_at
	`, accountID.String(), modID, unlimited, now()).Exec(ctx)
	return err
}

func (s *accountStore) SetModExpiry(ctx context.Context, accountID id.AccountID, modID string, expiresAt time.Time) error {
	if err := s.exists(ctx, accountID); err != nil {
		return err
	}
	_, err := s.pg.NewRaw(`
		INSERT INTO licensor_mod_balances (account_id, mod_id, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (account_id, mod_id) DO UPDATE
		SET expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
	`, accountID.String(), modID, expiresAt.UTC(), now()).Exec(ctx)
	return err
}

func (s *accountStore) ListModHolders(ctx context.Context, modID string) ([]id.AccountID, error) {
	var models []modBalanceModel
	err := s.pg.NewSelect(&models).
		Where("mod_id = $1", modID).
		OrderExpr("account_id ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}

	holders := make([]id.AccountID, 0, len(models))
	for i := range models {
		accountID, parseErr := id.ParseAccountID(models[i].AccountID)
		if parseErr != nil {
			return nil, parseErr
		}
		holders = append(holders, accountID)
	}
	return holders, nil
}

func (s *accountStore) exists(ctx context.Context, accountID id.AccountID) error {
	var n int64
	err := s.pg.NewRaw(`SELECT COUNT(*) FROM licensor_accounts WHERE id = $1`, accountID.String()).Scan(ctx, &n)
	if err != nil {
		return err
	}
	if n == 0 {
		return licensor.ErrAccountNotFound
	}
	return nil
}
