package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/licensekey"
)

type keyStore Store

func cloneKey(k *licensekey.LicenseKey) *licensekey.LicenseKey {
	c := *k
	c.LastUsed = cloneTime(k.LastUsed)
	return &c
}

func (s *keyStore) Create(_ context.Context, k *licensekey.LicenseKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[k.Token]; exists {
		return licensor.ErrKeyExists
	}
	s.keys[k.Token] = cloneKey(k)
	return nil
}

func (s *keyStore) Get(_ context.Context, token string) (*licensekey.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k, ok := s.keys[token]; ok {
		return cloneKey(k), nil
	}
	return nil, licensor.ErrKeyNotFound
}

func (s *keyStore) List(_ context.Context, opts licensekey.ListOpts) ([]*licensekey.LicenseKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*licensekey.LicenseKey, 0)
	for _, k := range s.keys {
		if opts.CreatedBy != nil && k.CreatedBy.String() != opts.CreatedBy.String() {
			continue
		}
		if opts.ModID != "" && k.ModID != opts.ModID {
			continue
		}
		if opts.Tier != "" && k.Tier != opts.Tier {
			continue
		}
		result = append(result, cloneKey(k))
	}
	sortByCreated(result,
		func(k *licensekey.LicenseKey) int64 { return k.CreatedAt.UnixNano() },
		func(k *licensekey.LicenseKey) string { return k.Token })

	return page(result, opts.Limit, opts.Offset), nil
}

func (s *keyStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[token]; !ok {
		return licensor.ErrKeyNotFound
	}
	delete(s.keys, token)
	return nil
}

func (s *keyStore) SetActive(_ context.Context, token string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[token]
	if !ok {
		return licensor.ErrKeyNotFound
	}
	k.IsActive = active
	k.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *keyStore) Consume(_ context.Context, token, modID string, now time.Time) (*licensekey.LicenseKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[token]
	if !ok || (modID != "" && k.ModID != modID) {
		return nil, licensor.ErrKeyNotFound
	}
	if !k.Valid(now) {
		return nil, fmt.Errorf("%w: %s", licensor.ErrKeyInvalid, k.InvalidReason(now))
	}

	used := now.UTC()
	k.UsageCount++
	k.LastUsed = &used
	k.UpdatedAt = used
	return cloneKey(k), nil
}

func (s *keyStore) SwapExpiry(_ context.Context, token string, old, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[token]
	if !ok {
		return licensor.ErrKeyNotFound
	}
	if !k.ExpiresAt.Equal(old) {
		return licensor.ErrExpiryContention
	}
	k.ExpiresAt = next.UTC()
	k.UpdatedAt = time.Now().UTC()
	return nil
}
