package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/referral"
)

type codeStore Store

func (s *codeStore) Create(ctx context.Context, c *referral.Code) error {
	m := toCodeModel(c)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return licensor.ErrCodeExists
		}
		return fmt.Errorf("licensor/mongo: create code: %w", err)
	}
	return nil
}

func (s *codeStore) Get(ctx context.Context, code string) (*referral.Code, error) {
	var m codeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"code": code}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, licensor.ErrCodeNotFound
		}
		return nil, fmt.Errorf("licensor/mongo: get code: %w", err)
	}
	return fromCodeModel(&m)
}

func (s *codeStore) List(ctx context.Context, opts referral.ListOpts) ([]*referral.Code, error) {
	var models []codeModel

	filter := bson.M{}
	if opts.CreatedBy != nil {
		filter["created_by"] = opts.CreatedBy.String()
	}
	if opts.Variant != "" {
		filter["variant"] = string(opts.Variant)
	}
	if opts.Unused {
		filter["is_used"] = false
		filter["used_count"] = 0
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "code", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("licensor/mongo: list codes: %w", err)
	}

	result := make([]*referral.Code, len(models))
	for i := range models {
		c, err := fromCodeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *codeStore) SetActive(ctx context.Context, code string, active bool) error {
	res, err := s.mdb.NewUpdate((*codeModel)(nil)).
		Filter(bson.M{"code": code}).
		Set("active", active).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: set code active: %w", err)
	}
	if res.MatchedCount() == 0 {
		return licensor.ErrCodeNotFound
	}
	return nil
}

func (s *codeStore) MarkUsed(ctx context.Context, code string, redeemer id.AccountID, at time.Time) error {
	at = at.UTC()
	res, err := s.mdb.NewUpdate((*codeModel)(nil)).
		Filter(bson.M{
			"code":   code,
			"active": true,
			"$or": bson.A{
				bson.M{"variant": string(referral.VariantMod), "used_count": 0},
				bson.M{"variant": bson.M{"$ne": string(referral.VariantMod)}, "is_used": false},
			},
		}).
		SetUpdate(bson.M{
			"$inc": bson.M{"used_count": 1},
			"$set": bson.M{
				"is_used":     true,
				"redeemed_by": redeemer.String(),
				"used_at":     at,
				"updated_at":  at,
			},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: mark code used: %w", err)
	}
	if res.MatchedCount() == 1 {
		return nil
	}

	c, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if c.Spent() {
		return licensor.ErrCodeAlreadyUsed
	}
	return licensor.ErrCodeInactive
}

func (s *codeStore) Release(ctx context.Context, code string, redeemer id.AccountID) error {
	res, err := s.mdb.NewUpdate((*codeModel)(nil)).
		Filter(bson.M{"code": code, "redeemed_by": redeemer.String(), "used_count": bson.M{"$gt": 0}}).
		SetUpdate(bson.M{
			"$inc":   bson.M{"used_count": -1},
			"$set":   bson.M{"is_used": false, "redeemed_by": "", "updated_at": now()},
			"$unset": bson.M{"used_at": ""},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("licensor/mongo: release code: %w", err)
	}
	if res.MatchedCount() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	return licensor.ErrCodeNotHeld
}
