package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/referral"
)

type codeStore Store

func (s *codeStore) Create(ctx context.Context, c *referral.Code) error {
	m := toCodeModel(c)
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return licensor.ErrCodeExists
		}
		return err
	}
	return nil
}

func (s *codeStore) Get(ctx context.Context, code string) (*referral.Code, error) {
	m := new(codeModel)
	err := s.pg.NewSelect(m).
		Where("code = $1", code).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.CreatedBy != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_by = $%d", argIdx), opts.CreatedBy.String())
	}
	if opts.Variant != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("variant = $%d", argIdx), string(opts.Variant))
	}
	if opts.Unused {
		q = q.Where("NOT is_used AND used_count = 0")
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
	rows, err := affected(s.pg.NewUpdate((*codeModel)(nil)).
		Set("active = $1", active).
		Set("updated_at = $2", now()).
		Where("code = $3", code).
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
	rows, err := affected(s.pg.NewUpdate((*codeModel)(nil)).
		Set("is_used = TRUE").
		Set("used_count = used_count + 1").
		Set("redeemed_by = $1", redeemer.String()).
		Set("used_at = $2", at).
		Set("updated_at = $3", at).
		Where("code = $4", code).
		Where("active").
		Where("((variant = 'mod' AND used_count = 0) OR (variant <> 'mod' AND NOT is_used))").
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
	rows, err := affected(s.pg.NewUpdate((*codeModel)(nil)).
		Set("is_used = FALSE").
		Set("used_count = GREATEST(used_count - 1, 0)").
		Set("redeemed_by = ''").
		Set("used_at = NULL").
		Set("updated_at = $1", now()).
		Where("code = $2", code).
		Where("redeemed_by = $3", redeemer.String()).
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
