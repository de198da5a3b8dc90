package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/referral"
	"github.com/xraph/licensor/store/memory"
	"github.com/xraph/licensor/types"
)

func newAccount(t *testing.T, s *memory.Store, username string, balance int64) *account.Account {
	t.Helper()
	a := &account.Account{
		Entity:   types.NewEntity(),
		ID:       id.NewAccountID(),
		Username: username,
		Role:     account.RoleAdmin,
		Balance:  balance,
		Active:   true,
	}
	if err := s.Accounts().Create(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func TestAccountCreateDuplicateUsername(t *testing.T) {
	s := memory.New()
	newAccount(t, s, "alice", 0)

	dup := &account.Account{ID: id.NewAccountID(), Username: "alice"}
	if err := s.Accounts().Create(context.Background(), dup); !errors.Is(err, licensor.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestStoredAccountIsIsolated(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newAccount(t, s, "alice", 100)

	got, err := s.Accounts().Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Balance = 5

	again, _ := s.Accounts().Get(ctx, a.ID) //nolint:errcheck // checked above
	if again.Balance != 100 {
		t.Errorf("mutating a returned account leaked into the store: %d", again.Balance)
	}
}

func TestDebit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newAccount(t, s, "alice", 1000)

	bal, err := s.Accounts().Debit(ctx, a.ID, 400)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if bal != 600 {
		t.Errorf("balance: got %d, want 600", bal)
	}

	_, err = s.Accounts().Debit(ctx, a.ID, 601)
	var ife *licensor.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if ife.Required != 601 || ife.Available != 600 {
		t.Errorf("unexpected error numbers: %+v", ife)
	}

	if err := s.Accounts().SetActive(ctx, a.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := s.Accounts().Debit(ctx, a.ID, 1); !errors.Is(err, licensor.ErrAccountInactive) {
		t.Errorf("expected ErrAccountInactive, got %v", err)
	}
}

func TestConcurrentDebitNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newAccount(t, s, "alice", 1000)

	const callers = 50
	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Accounts().Debit(ctx, a.ID, 30); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	got, err := s.Accounts().Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if succeeded.Load() != 33 {
		t.Errorf("successful debits: got %d, want 33", succeeded.Load())
	}
	if got.Balance != 1000-33*30 {
		t.Errorf("balance: got %d, want %d", got.Balance, 1000-33*30)
	}
}

func TestModBalanceFindOrInsert(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newAccount(t, s, "alice", 0)

	if _, err := s.Accounts().DebitMod(ctx, a.ID, "mod-a", 1); !errors.Is(err, licensor.ErrModBalanceNotFound) {
		t.Fatalf("expected ErrModBalanceNotFound, got %v", err)
	}

	if bal, err := s.Accounts().AddMod(ctx, a.ID, "mod-a", 300); err != nil || bal != 300 {
		t.Fatalf("add mod: bal=%d err=%v", bal, err)
	}
	if bal, err := s.Accounts().AddMod(ctx, a.ID, "mod-a", 200); err != nil || bal != 500 {
		t.Fatalf("add mod again: bal=%d err=%v", bal, err)
	}
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Accounts().SetModExpiry(ctx, a.ID, "mod-b", exp); err != nil {
		t.Fatalf("set mod expiry: %v", err)
	}

	got, _ := s.Accounts().Get(ctx, a.ID) //nolint:errcheck // account exists
	if len(got.ModBalances) != 2 {
		t.Fatalf("expected 2 mod entries, got %d", len(got.ModBalances))
	}
	if mb := got.FindModBalance("mod-a"); mb.Balance != 500 || mb.InitialBalance != 300 {
		t.Errorf("mod-a entry: %+v", mb)
	}
	if mb := got.FindModBalance("mod-b"); mb.ExpiresAt == nil || !mb.ExpiresAt.Equal(exp) {
		t.Errorf("mod-b entry: %+v", mb)
	}

	holders, err := s.Accounts().ListModHolders(ctx, "mod-b")
	if err != nil || len(holders) != 1 {
		t.Fatalf("holders: %v %v", holders, err)
	}
}

func TestConsumeRespectsMaxUsage(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Now().UTC()
	k := &licensekey.LicenseKey{
		Entity:    types.NewEntity(),
		ID:        id.NewLicenseKeyID(),
		Token:     "tok",
		IsActive:  true,
		ExpiresAt: now.Add(time.Hour),
		MaxUsage:  3,
		ModID:     "mod-a",
	}
	if err := s.Keys().Create(ctx, k); err != nil {
		t.Fatalf("create key: %v", err)
	}

	if _, err := s.Keys().Consume(ctx, "tok", "mod-b", now); !errors.Is(err, licensor.ErrKeyNotFound) {
		t.Fatalf("expected scoped lookup to miss, got %v", err)
	}
	for i := 1; i <= 3; i++ {
		got, err := s.Keys().Consume(ctx, "tok", "mod-a", now)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if got.UsageCount != int64(i) || got.LastUsed == nil {
			t.Errorf("consume %d: usage=%d last=%v", i, got.UsageCount, got.LastUsed)
		}
	}
	if _, err := s.Keys().Consume(ctx, "tok", "", now); !errors.Is(err, licensor.ErrKeyInvalid) {
		t.Errorf("expected ErrKeyInvalid on 4th use, got %v", err)
	}
}

func TestSwapExpiry(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Keys().Create(ctx, &licensekey.LicenseKey{Token: "tok", ExpiresAt: exp}); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := exp.AddDate(0, 0, 7)
	if err := s.Keys().SwapExpiry(ctx, "tok", exp, next); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if err := s.Keys().SwapExpiry(ctx, "tok", exp, next); !errors.Is(err, licensor.ErrExpiryContention) {
		t.Errorf("expected ErrExpiryContention for stale swap, got %v", err)
	}
}

func TestMarkUsedExactlyOnce(t *testing.T) {
	for _, variant := range []referral.Variant{referral.VariantPlain, referral.VariantMod} {
		t.Run(string(variant), func(t *testing.T) {
			ctx := context.Background()
			s := memory.New()
			c := &referral.Code{
				Entity:  types.NewEntity(),
				ID:      id.NewCodeID(),
				Code:    "ABCD-EFGH-JKLM",
				Variant: variant,
				Active:  true,
			}
			if err := s.Codes().Create(ctx, c); err != nil {
				t.Fatalf("create: %v", err)
			}

			const callers = 20
			var winners, conflicts atomic.Int64
			var wg sync.WaitGroup
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Codes().MarkUsed(ctx, c.Code, id.NewAccountID(), time.Now())
					switch {
					case err == nil:
						winners.Add(1)
					case errors.Is(err, licensor.ErrCodeAlreadyUsed):
						conflicts.Add(1)
					}
				}()
			}
			wg.Wait()

			if winners.Load() != 1 || conflicts.Load() != callers-1 {
				t.Errorf("winners=%d conflicts=%d", winners.Load(), conflicts.Load())
			}
			got, _ := s.Codes().Get(ctx, c.Code) //nolint:errcheck // code exists
			if !got.Spent() || got.UsedCount != 1 || len(got.UsedBy) != 1 {
				t.Errorf("unexpected code state: %+v", got)
			}
		})
	}
}

func TestReleaseRequiresSameRedeemer(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	if err := s.Codes().Create(ctx, &referral.Code{Code: "c1", Variant: referral.VariantPlain, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	winner := id.NewAccountID()
	if err := s.Codes().MarkUsed(ctx, "c1", winner, time.Now()); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if err := s.Codes().Release(ctx, "c1", id.NewAccountID()); !errors.Is(err, licensor.ErrCodeNotHeld) {
		t.Fatalf("expected ErrCodeNotHeld, got %v", err)
	}
	if err := s.Codes().Release(ctx, "c1", winner); err != nil {
		t.Fatalf("release: %v", err)
	}

	got, _ := s.Codes().Get(ctx, "c1") //nolint:errcheck // code exists
	if got.Spent() || got.UsedAt != nil {
		t.Errorf("code should be unused after release: %+v", got)
	}
	unused, err := s.Codes().List(ctx, referral.ListOpts{Unused: true})
	if err != nil || len(unused) != 1 {
		t.Errorf("unused list: %d %v", len(unused), err)
	}
}

func TestStoredTimestampsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	epoch := time.Unix(0, 0).UTC()

	exp := now.AddDate(0, 0, 30)
	balanceExp := exp
	a := &account.Account{ID: id.NewAccountID(), Username: "alice", Active: true, BalanceExpiresAt: &balanceExp}
	if err := s.Accounts().Create(ctx, a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	*a.BalanceExpiresAt = epoch
	if _, err := s.Accounts().AddMod(ctx, a.ID, "mod-a", 1); err != nil {
		t.Fatalf("add mod: %v", err)
	}
	if err := s.Accounts().SetModExpiry(ctx, a.ID, "mod-a", exp); err != nil {
		t.Fatalf("set mod expiry: %v", err)
	}
	gotAccount, _ := s.Accounts().Get(ctx, a.ID) //nolint:errcheck // account exists
	*gotAccount.FindModBalance("mod-a").ExpiresAt = epoch

	if err := s.Keys().Create(ctx, &licensekey.LicenseKey{Token: "tok", IsActive: true, ExpiresAt: exp}); err != nil {
		t.Fatalf("create key: %v", err)
	}
	k, err := s.Keys().Consume(ctx, "tok", "", now)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	*k.LastUsed = epoch

	if err := s.Codes().Create(ctx, &referral.Code{Code: "c1", Variant: referral.VariantPlain, Active: true}); err != nil {
		t.Fatalf("create code: %v", err)
	}
	if err := s.Codes().MarkUsed(ctx, "c1", id.NewAccountID(), now); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	c, _ := s.Codes().Get(ctx, "c1") //nolint:errcheck // code exists
	*c.UsedAt = epoch

	againAccount, _ := s.Accounts().Get(ctx, a.ID) //nolint:errcheck // account exists
	againKey, _ := s.Keys().Get(ctx, "tok")        //nolint:errcheck // key exists
	againCode, _ := s.Codes().Get(ctx, "c1")       //nolint:errcheck // code exists

	tests := []struct {
		name string
		got  *time.Time
		want time.Time
	}{
		{"balance expiry", againAccount.BalanceExpiresAt, exp},
		{"mod expiry", againAccount.FindModBalance("mod-a").ExpiresAt, exp},
		{"key last used", againKey.LastUsed, now},
		{"code used at", againCode.UsedAt, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got == nil || !tt.got.Equal(tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
