package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/licensekey"
)

type keyStore Store

func (s *keyStore) Create(ctx context.Context, k *licensekey.LicenseKey) error {
	m := toLicenseKeyModel(k)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return licensor.ErrKeyExists
		}
		return err
	}
	return nil
}

func (s *keyStore) Get(ctx context.Context, token string) (*licensekey.LicenseKey, error) {
	m := new(licenseKeyModel)
	err := s.sdb.NewSelect(m).
		Where("token = ?", token).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrKeyNotFound
		}
		return nil, err
	}
	return fromLicenseKeyModel(m)
}

func (s *keyStore) List(ctx context.Context, opts licensekey.ListOpts) ([]*licensekey.LicenseKey, error) {
	var models []licenseKeyModel
	q := s.sdb.NewSelect(&models)

	if opts.CreatedBy != nil {
		q = q.Where("created_by = ?", opts.CreatedBy.String())
	}
	if opts.ModID != "" {
		q = q.Where("mod_id = ?", opts.ModID)
	}
	if opts.Tier != "" {
		q = q.Where("tier = ?", string(opts.Tier))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, token ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	rows, err := affected(s.sdb.NewDelete((*licenseKeyModel)(nil)).
		Where("token = ?", token).
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 0 {
		return licensor.ErrKeyNotFound
	}
	return nil
}

func (s *keyStore) SetActive(ctx context.Context, token string, active bool) error {
	rows, err := affected(s.sdb.NewUpdate((*licenseKeyModel)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", now()).
		Where("token = ?", token).
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 0 {
		return licensor.ErrKeyNotFound
	}
	return nil
}

func (s *keyStore) Consume(ctx context.Context, token, modID string, at time.Time) (*licensekey.LicenseKey, error) {
	at = at.UTC()
	q := s.sdb.NewUpdate((*licenseKeyModel)(nil)).
		Set("usage_count = usage_count + 1").
		Set("last_used = ?", at).
		Set("updated_at = ?", at).
		Where("token = ?", token).
		Where("is_active = 1").
		Where("expires_at > ?", at).
		Where("(max_usage = 0 OR usage_count < max_usage)")
	if modID != "" {
		q = q.Where("mod_id = ?", modID)
	}

	rows, err := affected(q.Exec(ctx))
	if err != nil {
		return nil, err
	}

	k, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if modID != "" && k.ModID != modID {
		return nil, licensor.ErrKeyNotFound
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: %s", licensor.ErrKeyInvalid, k.InvalidReason(at))
	}
	return k, nil
}

func (s *keyStore) SwapExpiry(ctx context.Context, token string, old, next time.Time) error {
	rows, err := affected(s.sdb.NewUpdate((*licenseKeyModel)(nil)).
		Set("expires_at = ?", next.UTC()).
		Set("updated_at = ?", now()).
		Where("token = ?", token).
		Where("expires_at = ?", old.UTC()).
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	if _, err := s.Get(ctx, token); err != nil {
		return err
	}
	return licensor.ErrExpiryContention
}
