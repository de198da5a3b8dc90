package memory

import (
	"context"
	"sort"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
)

type accountStore Store

func cloneAccount(a *account.Account) *account.Account {
	c := *a
	c.BalanceExpiresAt = cloneTime(a.BalanceExpiresAt)
	c.DeductionRates = a.DeductionRates.Clone()
	if a.ModBalances != nil {
		c.ModBalances = make([]account.ModBalance, len(a.ModBalances))
		copy(c.ModBalances, a.ModBalances)
		for i := range c.ModBalances {
			c.ModBalances[i].ExpiresAt = cloneTime(a.ModBalances[i].ExpiresAt)
		}
	}
	return &c
}

func (s *accountStore) Create(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; exists {
		return licensor.ErrUsernameTaken
	}
	if _, taken := s.usernames[a.Username]; taken {
		return licensor.ErrUsernameTaken
	}
	s.accounts[a.ID.String()] = cloneAccount(a)
	s.usernames[a.Username] = a.ID.String()
	return nil
}

func (s *accountStore) Get(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		return cloneAccount(a), nil
	}
	return nil, licensor.ErrAccountNotFound
}

func (s *accountStore) GetByUsername(_ context.Context, username string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.usernames[username]; ok {
		return cloneAccount(s.accounts[key]), nil
	}
	return nil, licensor.ErrAccountNotFound
}

func (s *accountStore) List(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if opts.CreatedBy != nil && (a.CreatedBy == nil || a.CreatedBy.String() != opts.CreatedBy.String()) {
			continue
		}
		if opts.Role != "" && a.Role != opts.Role {
			continue
		}
		result = append(result, cloneAccount(a))
	}
	sortByCreated(result,
		func(a *account.Account) int64 { return a.CreatedAt.UnixNano() },
		func(a *account.Account) string { return a.ID.String() })

	return page(result, opts.Limit, opts.Offset), nil
}

func (s *accountStore) Delete(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return licensor.ErrAccountNotFound
	}
	delete(s.usernames, a.Username)
	delete(s.accounts, accountID.String())
	return nil
}

// mutate runs fn against the stored account under the write lock.
func (s *accountStore) mutate(accountID id.AccountID, fn func(a *account.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return licensor.ErrAccountNotFound
	}
	if err := fn(a); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *accountStore) Debit(_ context.Context, accountID id.AccountID, amount int64) (int64, error) {
	var balance int64
	err := s.mutate(accountID, func(a *account.Account) error {
		if !a.Active {
			return licensor.ErrAccountInactive
		}
		if a.Balance < amount {
			return &licensor.InsufficientFundsError{Required: amount, Available: a.Balance}
		}
		a.Balance -= amount
		balance = a.Balance
		return nil
	})
	return balance, err
}

func (s *accountStore) Credit(_ context.Context, accountID id.AccountID, amount int64) (int64, error) {
	var balance int64
	err := s.mutate(accountID, func(a *account.Account) error {
		a.Balance += amount
		balance = a.Balance
		return nil
	})
	return balance, err
}

func (s *accountStore) SetBalance(_ context.Context, accountID id.AccountID, balance int64) error {
	if balance < 0 {
		return licensor.ValidationError{Field: "balance", Message: "must not be negative"}
	}
	return s.mutate(accountID, func(a *account.Account) error {
		a.Balance = balance
		return nil
	})
}

func (s *accountStore) SetUnlimited(_ context.Context, accountID id.AccountID, unlimited bool) error {
	return s.mutate(accountID, func(a *account.Account) error {
		a.UnlimitedBalance = unlimited
		return nil
	})
}

func (s *accountStore) SetExpiry(_ context.Context, accountID id.AccountID, expiresAt *time.Time) error {
	return s.mutate(accountID, func(a *account.Account) error {
		a.BalanceExpiresAt = expiresAt
		return nil
	})
}

func (s *accountStore) SetActive(_ context.Context, accountID id.AccountID, active bool) error {
	return s.mutate(accountID, func(a *account.Account) error {
		a.Active = active
		return nil
	})
}

func (s *accountStore) DebitMod(_ context.Context, accountID id.AccountID, modID string, amount int64) (int64, error) {
	var balance int64
	err := s.mutate(accountID, func(a *account.Account) error {
		mb := a.FindModBalance(modID)
		if mb == nil {
			return licensor.ErrModBalanceNotFound
		}
		if mb.Balance < amount {
			return &licensor.InsufficientFundsError{Required: amount, Available: mb.Balance, ModID: modID}
		}
		mb.Balance -= amount
		balance = mb.Balance
		return nil
	})
	return balance, err
}

// modEntry returns the entry for modID, appending an empty one if absent.
func modEntry(a *account.Account, modID string) *account.ModBalance {
	if mb := a.FindModBalance(modID); mb != nil {
		return mb
	}
	a.ModBalances = append(a.ModBalances, account.ModBalance{ModID: modID})
	return &a.ModBalances[len(a.ModBalances)-1]
}

func (s *accountStore) AddMod(_ context.Context, accountID id.AccountID, modID string, amount int64) (int64, error) {
	var balance int64
	err := s.mutate(accountID, func(a *account.Account) error {
		existed := a.FindModBalance(modID) != nil
		mb := modEntry(a, modID)
		if !existed {
			mb.InitialBalance = amount
		}
		mb.Balance += amount
		balance = mb.Balance
		return nil
	})
	return balance, err
}

func (s *accountStore) SetModUnlimited(_ context.Context, accountID id.AccountID, modID string, unlimited bool) error {
	return s.mutate(accountID, func(a *account.Account) error {
		modEntry(a, modID).UnlimitedBalance = unlimited
		return nil
	})
}

func (s *accountStore) SetModExpiry(_ context.Context, accountID id.AccountID, modID string, expiresAt time.Time) error {
	return s.mutate(accountID, func(a *account.Account) error {
		t := expiresAt.UTC()
		modEntry(a, modID).ExpiresAt = &t
		return nil
	})
}

func (s *accountStore) ListModHolders(_ context.Context, modID string) ([]id.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holders := make([]id.AccountID, 0)
	for _, a := range s.accounts {
		if a.FindModBalance(modID) != nil {
			holders = append(holders, a.ID)
		}
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].String() < holders[j].String() })
	return holders, nil
}
