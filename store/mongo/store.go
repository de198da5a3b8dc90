package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/referral"
	licensorstore "github.com/xraph/licensor/store"
)

// Collection name constants.
const (
	colAccounts    = "licensor_accounts"
	colModBalances = "licensor_mod_balances"
	colKeys        = "licensor_license_keys"
	colCodes       = "licensor_codes"
)

// compile-time interface check
var _ licensorstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
//
// Guarded mutations use FindOneAndUpdate or a filtered update so that the
// precondition and the write are one single-document operation.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

func (s *Store) Accounts() account.Store { return (*accountStore)(s) }
func (s *Store) Keys() licensekey.Store { return (*keyStore)(s) }
func (s *Store) Codes() referral.Store { return (*codeStore)(s) }

// Migrate creates indexes for all licensor collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("licensor/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// findOneAndUpdate applies update to the document matching filter and
// decodes the post-update document into dst.
func findOneAndUpdate(ctx context.Context, mdb *mongodriver.MongoDB, col string, filter, update bson.M, dst any) error {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return mdb.Collection(col).FindOneAndUpdate(ctx, filter, update, opts).Decode(dst)
}

// migrationIndexes returns the index definitions for all licensor collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "role", Value: 1}}},
		},
		colModBalances: {
			{Keys: bson.D{{Key: "account_id", Value: 1}}},
			{Keys: bson.D{{Key: "mod_id", Value: 1}, {Key: "account_id", Value: 1}}},
		},
		colKeys: {
			{
				Keys:    bson.D{{Key: "token", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "mod_id", Value: 1}}},
		},
		colCodes: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_by", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
}
