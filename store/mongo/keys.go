package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/licensekey"
)

type keyStore Store

func (s *keyStore) Create(ctx context.Context, k *licensekey.LicenseKey) error {
	m := toLicenseKeyModel(k)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return licensor.ErrKeyExists
		}
		return fmt.Errorf("licensor/mongo: create key: %w", err)
	}
	return nil
}

func (s *keyStore) Get(ctx context.Context, token string) (*licensekey.LicenseKey, error) {
	var m licenseKeyModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"token": token}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrKeyNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get key: %w", err)
	}
	return fromLicenseKeyModel(&m)
}

func (s *keyStore) List(ctx context.Context, opts licensekey.ListOpts) ([]*licensekey.LicenseKey, error) {
	var models []licenseKeyModel

	filter := bson.M{}
	if opts.CreatedBy != nil {
		filter["created_by"] = opts.CreatedBy.String()
	}
	if opts.ModID != "" {
		filter["mod_id"] = opts.ModID
	}
	if opts.Tier != "" {
		filter["tier"] = string(opts.Tier)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "token", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("licensor/mongo: list keys: %w", err)
	}

	result := make([]*licensekey.LicenseKey, len(models))
	for i := range models {
		k, err := fromLicenseKeyModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = k
	}
	return result, nil
}

func (s *keyStore) Delete(ctx context.Context, token string) error {
	res, err := s.mdb.NewDelete((*licenseKeyModel)(nil)).
		Filter(bson.M{"token": token}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: delete key: %w", err)
	}
	if res.DeletedCount() == 0 {
		return licensor.ErrKeyNotFound
	}
	return nil
}

func (s *keyStore) SetActive(ctx context.Context, token string, active bool) error {
	res, err := s.mdb.NewUpdate((*licenseKeyModel)(nil)).
		Filter(bson.M{"token": token}).
		Set("is_active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: set key active: %w", err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrKeyNotFound
	}
	return nil
}

func (s *keyStore) Consume(ctx context.Context, token, modID string, at time.Time) (*licensekey.LicenseKey, error) {
	at = at.UTC()
	filter := bson.M{
		"token":      token,
		"is_active":  true,
		"expires_at": bson.M{"$gt": at},
		"$or": bson.A{
			bson.M{"max_usage": 0},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usage_count", "$max_usage"}}},
		},
	}
	if modID != "" {
		filter["mod_id"] = modID
	}

	var m licenseKeyModel
	err := findOneAndUpdate(ctx, s.mdb, colKeys, filter,
		bson.M{"$inc": bson.M{"usage_count": 1}, "$set": bson.M{"last_used": at, "updated_at": at}},
		&m,
	)
	if err == nil {
		return fromLicenseKeyModel(&m)
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("licensor/mongo: consume key: %w", err)
	}

	k, getErr := s.Get(ctx, token)
	if getErr != nil {
		return nil, getErr
	}
	if modID != "" && k.ModID != modID {
		return nil, licensor.ErrKeyNotFound
	}
	return nil, fmt.Errorf("%w: %s", licensor.ErrKeyInvalid, k.InvalidReason(at))
}

func (s *keyStore) SwapExpiry(ctx context.Context, token string, old, next time.Time) error {
	res, err := s.mdb.NewUpdate((*licenseKeyModel)(nil)).
		Filter(bson.M{"token": token, "expires_at": old}).
		Set("expires_at", next.UTC()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: swap key expiry: %w", err)
	}
	if res.MatchedCount() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, token); err != nil {
		return err
	}
	return licensor.ErrExpiryContention
}
