package sqlite

import (
	"context"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/referral"
)

type codeStore Store

func (s *codeStore) Create(ctx context.Context, c *referral.Code) error {
	m := toCodeModel(c)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return licensor.ErrCodeExists
		}
		return err
	}
	return nil
}

func (s *codeStore) Get(ctx context.Context, code string) (*referral.Code, error) {
	m := new(codeModel)
	err := s.sdb.NewSelect(m).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, licensor.ErrCodeNotFound
		}
		return nil, err
	}
	return fromCodeModel(m)
}

func (s *codeStore) List(ctx context.Context, opts referral.ListOpts) ([]*referral.Code, error) {
	var models []codeModel
	q := s.sdb.NewSelect(&models)

	if opts.CreatedBy != nil {
		q = q.Where("created_by = ?", opts.CreatedBy.String())
	}
	if opts.Variant != "" {
		q = q.Where("variant = ?", string(opts.Variant))
	}
	if opts.Unused {
		q = q.Where("is_used = 0 AND used_count = 0")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, code ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	rows, err := affected(s.sdb.NewUpdate((*codeModel)(nil)).
		Set("active = ?", active).
		Set("updated_at = ?", now()).
		Where("code = ?", code).
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 0 {
		return licensor.ErrCodeNotFound
	}
	return nil
}

func (s *codeStore) MarkUsed(ctx context.Context, code string, redeemer id.AccountID, at time.Time) error {
	at = at.UTC()
	rows, err := affected(s.sdb.NewUpdate((*codeModel)(nil)).
		Set("is_used = 1").
		Set("used_count = used_count + 1").
		Set("redeemed_by = ?", redeemer.String()).
		Set("used_at = ?", at).
		Set("updated_at = ?", at).
		Where("code = ?", code).
		Where("active = 1").
		Where("((variant = 'mod' AND used_count = 0) OR (variant <> 'mod' AND is_used = 0))").
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 1 {
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
	rows, err := affected(s.sdb.NewUpdate((*codeModel)(nil)).
		Set("is_used = 0").
		Set("used_count = MAX(used_count - 1, 0)").
		Set("redeemed_by = ''").
		Set("used_at = NULL").
		Set("updated_at = ?", now()).
		Where("code = ?", code).
		Where("redeemed_by = ?", redeemer.String()).
		Exec(ctx))
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	return licensor.ErrCodeNotHeld
}
