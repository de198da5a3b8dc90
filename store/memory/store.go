// Package memory provides an in-memory store used for tests and
// single-process deployments. Every conditional mutation runs under one
// mutex, which gives the same compare-and-swap guarantee the SQL and Mongo
// backends get from conditional writes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/referral"
	"github.com/xraph/licensor/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts  map[string]*account.Account
	usernames map[string]string

	// License key storage, keyed by token
	keys map[string]*licensekey.LicenseKey

	// One-time code storage, keyed by code string
	codes map[string]*referral.Code
}

func New() *Store {
	return &Store{
		accounts:  make(map[string]*account.Account),
		usernames: make(map[string]string),
		keys:      make(map[string]*licensekey.LicenseKey),
		codes:     make(map[string]*referral.Code),
	}
}

func (s *Store) Accounts() account.Store { return (*accountStore)(s) }
func (s *Store) Keys() licensekey.Store { return (*keyStore)(s) }
func (s *Store) Codes() referral.Store { return (*codeStore)(s) }
func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

// page applies limit/offset to an already filtered result.
func page[T any](items []T, limit, offset int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// sortByCreated orders results oldest first, breaking ties by key.
func sortByCreated[T any](items []T, created func(T) int64, key func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci != cj {
			return ci < cj
		}
		return key(items[i]) < key(items[j])
	})
}

// cloneTime copies an optional timestamp so stored records never share it
// with callers.
func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
