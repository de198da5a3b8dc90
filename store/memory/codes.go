package memory

import (
	"context"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/referral"
)

type codeStore Store

func cloneCode(c *referral.Code) *referral.Code {
	out := *c
	out.DeductionRates = c.DeductionRates.Clone()
	out.UsedAt = cloneTime(c.UsedAt)
	out.ExpiresAt = cloneTime(c.ExpiresAt)
	if c.UsedBy != nil {
		out.UsedBy = make([]id.AccountID, len(c.UsedBy))
		copy(out.UsedBy, c.UsedBy)
	}
	return &out
}

func (s *codeStore) Create(_ context.Context, c *referral.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[c.Code]; exists {
		return licensor.ErrCodeExists
	}
	s.codes[c.Code] = cloneCode(c)
	return nil
}

func (s *codeStore) Get(_ context.Context, code string) (*referral.Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.codes[code]; ok {
		return cloneCode(c), nil
	}
	return nil, licensor.ErrCodeNotFound
}

func (s *codeStore) List(_ context.Context, opts referral.ListOpts) ([]*referral.Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*referral.Code, 0)
	for _, c := range s.codes {
		if opts.CreatedBy != nil && c.CreatedBy.String() != opts.CreatedBy.String() {
			continue
		}
		if opts.Variant != "" && c.Variant != opts.Variant {
			continue
		}
		if opts.Unused && c.Spent() {
			continue
		}
		result = append(result, cloneCode(c))
	}
	sortByCreated(result,
		func(c *referral.Code) int64 { return c.CreatedAt.UnixNano() },
		func(c *referral.Code) string { return c.Code })

	return page(result, opts.Limit, opts.Offset), nil
}

func (s *codeStore) SetActive(_ context.Context, code string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return licensor.ErrCodeNotFound
	}
	c.Active = active
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *codeStore) MarkUsed(_ context.Context, code string, redeemer id.AccountID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return licensor.ErrCodeNotFound
	}
	if c.Spent() {
		return licensor.ErrCodeAlreadyUsed
	}
	if !c.Active {
		return licensor.ErrCodeInactive
	}

	used := at.UTC()
	c.IsUsed = true
	c.UsedCount++
	c.UsedBy = []id.AccountID{redeemer}
	c.UsedAt = &used
	c.UpdatedAt = used
	return nil
}

func (s *codeStore) Release(_ context.Context, code string, redeemer id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.codes[code]
	if !ok {
		return licensor.ErrCodeNotFound
	}
	if len(c.UsedBy) == 0 || c.UsedBy[len(c.UsedBy)-1].String() != redeemer.String() {
		return licensor.ErrCodeNotHeld
	}

	c.IsUsed = false
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	c.UsedBy = nil
	c.UsedAt = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}
