package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
)

type accountStore Store

func (s *accountStore) Create(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return licensor.ErrUsernameTaken
		}
		return fmt.Errorf("licensor/mongo: create account: %w", err)
	}

	for _, mb := range toModBalanceModels(a) {
		if _, err := s.mdb.NewInsert(&mb).Exec(ctx); err != nil {
			_ = s.Delete(ctx, a.ID) //nolint:errcheck // best-effort
			return fmt.Errorf("licensor/mongo: create mod balance: %w", err)
		}
	}
	return nil
}

func (s *accountStore) Get(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return s.findOne(ctx, bson.M{"_id": accountID.String()})
}

func (s *accountStore) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *accountStore) findOne(ctx context.Context, filter bson.M) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrAccountNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get account: %w", err)
	}
	return s.load(ctx, &m)
}

// load attaches the account's mod balances.
func (s *accountStore) load(ctx context.Context, m *accountModel) (*account.Account, error) {
	var mods []modBalanceModel
	err := s.mdb.NewFind(&mods).
		Filter(bson.M{"account_id": m.ID}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "mod_id", Value: 1}}).
		Scan(ctx)
	if err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("licensor/mongo: load mod balances: %w", err)
	}
	return fromAccountModel(m, mods)
}

func (s *accountStore) List(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	var models []accountModel

	filter := bson.M{}
	if opts.CreatedBy != nil {
		filter["created_by"] = opts.CreatedBy.String()
	}
	if opts.Role != "" {
		filter["role"] = string(opts.Role)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("licensor/mongo: list accounts: %w", err)
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
	res, err := s.mdb.NewDelete((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: delete account: %w", err)
	}
	if res.DeletedCount() == 0 {
		return licensor.ErrAccountNotFound
	}

	_, err = s.mdb.Collection(colModBalances).DeleteMany(ctx, bson.M{"account_id": accountID.String()})
	if err != nil {
		return fmt.Errorf("licensor/mongo: delete mod balances: %w", err)
	}
	return nil
}

// ==================== General balance ====================

func (s *accountStore) Debit(ctx context.Context, accountID id.AccountID, amount int64) (int64, error) {
	var m accountModel
	err := findOneAndUpdate(ctx, s.mdb, colAccounts,
		bson.M{"_id": accountID.String(), "active": true, "balance": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"balance": -amount}, "$set": bson.M{"updated_at": now()}},
		&m,
	)
	if err == nil {
		return m.Balance, nil
	}
	if !isNoDocuments(err) {
		return 0, fmt.Errorf("licensor/mongo: debit: %w", err)
	}

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
	var m accountModel
	err := findOneAndUpdate(ctx, s.mdb, colAccounts,
		bson.M{"_id": accountID.String()},
		bson.M{"$inc": bson.M{"balance": amount}, "$set": bson.M{"updated_at": now()}},
		&m,
	)
	if err != nil {
		if isNoDocuments(err) {
			return 0, licensor.ErrAccountNotFound
		}
		return 0, fmt.Errorf("licensor/mongo: credit: %w", err)
	}
	return m.Balance, nil
}

func (s *accountStore) SetBalance(ctx context.Context, accountID id.AccountID, balance int64) error {
	if balance < 0 {
		return licensor.ValidationError{Field: "balance", Message: "must not be negative"}
	}
	return s.set(ctx, accountID, "balance", balance)
}

func (s *accountStore) SetUnlimited(ctx context.Context, accountID id.AccountID, unlimited bool) error {
	return s.set(ctx, accountID, "unlimited_balance", unlimited)
}

func (s *accountStore) SetExpiry(ctx context.Context, accountID id.AccountID, expiresAt *time.Time) error {
	return s.set(ctx, accountID, "balance_expires_at", expiresAt)
}

func (s *accountStore) SetActive(ctx context.Context, accountID id.AccountID, active bool) error {
	return s.set(ctx, accountID, "active", active)
}

func (s *accountStore) set(ctx context.Context, accountID id.AccountID, field string, value any) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set(field, value).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: update account %s: %w", field, err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrAccountNotFound
	}
	return nil
}

// ==================== Mod balances ====================

func (s *accountStore) DebitMod(ctx context.Context, accountID id.AccountID, modID string, amount int64) (int64, error) {
	var m modBalanceModel
	err := findOneAndUpdate(ctx, s.mdb, colModBalances,
		bson.M{"_id": modBalanceKey(accountID, modID), "balance": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"balance": -amount}, "$set": bson.M{"updated_at": now()}},
		&m,
	)
	if err == nil {
		return m.Balance, nil
	}
	if !isNoDocuments(err) {
		return 0, fmt.Errorf("licensor/mongo: debit mod: %w", err)
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

// upsertMod applies update to the (account, mod) entry, creating it when
// absent, and returns the resulting document.
func (s *accountStore) upsertMod(ctx context.Context, accountID id.AccountID, modID string, update bson.M) (*modBalanceModel, error) {
	if _, err := s.Get(ctx, accountID); err != nil {
		return nil, err
	}

	t := now()
	onInsert := bson.M{"account_id": accountID.String(), "mod_id": modID, "created_at": t}
	if existing, ok := update["$setOnInsert"].(bson.M); ok {
		for k, v := range existing {
			onInsert[k] = v
		}
	}
	update["$setOnInsert"] = onInsert

	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updated_at"] = t
	update["$set"] = set

	var m modBalanceModel
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(true)
	err := s.mdb.Collection(colModBalances).
		FindOneAndUpdate(ctx, bson.M{"_id": modBalanceKey(accountID, modID)}, update, opts).
		Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("licensor/mongo: upsert mod balance: %w", err)
	}
	return &m, nil
}

func (s *accountStore) AddMod(ctx context.Context, accountID id.AccountID, modID string, amount int64) (int64, error) {
	m, err := s.upsertMod(ctx, accountID, modID, bson.M{
		"$inc":         bson.M{"balance": amount},
		"$setOnInsert": bson.M{"initial_balance": amount, "unlimited_balance": false},
	})
	if err != nil {
		return 0, err
	}
	return m.Balance, nil
}

func (s *accountStore) SetModUnlimited(ctx context.Context, accountID id.AccountID, modID string, unlimited bool) error {
	_, err := s.upsertMod(ctx, accountID, modID, bson.M{
		"$set":         bson.M{"unlimited_balance": unlimited},
		"$setOnInsert": bson.M{"balance": int64(0), "initial_balance": int64(0)},
	})
	return err
}

func (s *accountStore) SetModExpiry(ctx context.Context, accountID id.AccountID, modID string, expiresAt time.Time) error {
	_, err := s.upsertMod(ctx, accountID, modID, bson.M{
		"$set":         bson.M{"expires_at": expiresAt.UTC()},
		"$setOnInsert": bson.M{"balance": int64(0), "initial_balance": int64(0), "unlimited_balance": false},
	})
	return err
}

func (s *accountStore) ListModHolders(ctx context.Context, modID string) ([]id.AccountID, error) {
	var models []modBalanceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"mod_id": modID}).
		Sort(bson.D{{Key: "account_id", Value: 1}}).
		Scan(ctx)
	if err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("licensor/mongo: list mod holders: %w", err)
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
