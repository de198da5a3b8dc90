package licensor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/notify"
)

func TestAuthorizeAndDebitGateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.reseller

	// Inactive is reported before insufficient funds.
	if _, err := f.l.ExtendBalanceExpiry(ctx, f.owner.ID, a.ID, 1); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if _, err := f.l.SetActive(ctx, f.owner.ID, a.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.l.AuthorizeAndDebit(ctx, a.ID, 5000); !errors.Is(err, licensor.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	if _, err := f.l.SetActive(ctx, f.owner.ID, a.ID, true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := f.l.AuthorizeAndDebit(ctx, a.ID, 5000); !errors.Is(err, licensor.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestAuthorizeAndDebitExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.l.ExtendBalanceExpiry(ctx, f.owner.ID, f.reseller.ID, 1); err != nil {
		t.Fatalf("extend: %v", err)
	}

	// Same store, clock two days later.
	later := licensor.New(f.store, licensor.WithClock(func() time.Time { return testNow.AddDate(0, 0, 2) }))
	if _, err := later.AuthorizeAndDebit(ctx, f.reseller.ID, 1); !errors.Is(err, licensor.ErrBalanceExpired) {
		t.Fatalf("expected ErrBalanceExpired, got %v", err)
	}
	if got := f.balance(t, f.reseller.ID); got != 1000 {
		t.Errorf("balance changed on refused debit: %d", got)
	}
}

func TestAuthorizeAndDebitInsufficientReportsNumbers(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.AuthorizeAndDebit(context.Background(), f.reseller.ID, 1200)
	var ife *licensor.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if ife.Required != 1200 || ife.Available != 1000 {
		t.Errorf("got required=%d available=%d", ife.Required, ife.Available)
	}
	if licensor.KindOf(err) != licensor.KindBusinessRule {
		t.Errorf("kind: got %s", licensor.KindOf(err))
	}
}

func TestAuthorizeAndDebitNotifies(t *testing.T) {
	f := newFixture(t)

	res, err := f.l.AuthorizeAndDebit(context.Background(), f.reseller.ID, 250)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !res.Debited || res.Balance != 750 {
		t.Errorf("unexpected result: %+v", res)
	}

	e, ok := f.sink.last()
	if !ok {
		t.Fatal("no notification sent")
	}
	if e.Type != notify.TypeBalanceChanged || e.Balance != 750 || e.Status != "active" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.AccountID.String() != f.reseller.ID.String() {
		t.Errorf("event keyed by wrong account: %s", e.AccountID)
	}
}

func TestUnlimitedDebitLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.l.SetUnlimited(ctx, f.owner.ID, f.reseller.ID, true); err != nil {
		t.Fatalf("set unlimited: %v", err)
	}
	for range 3 {
		res, err := f.l.AuthorizeAndDebit(ctx, f.reseller.ID, 100000)
		if err != nil {
			t.Fatalf("debit: %v", err)
		}
		if res.Debited {
			t.Error("unlimited account should not be debited")
		}
	}
	if got := f.balance(t, f.reseller.ID); got != 1000 {
		t.Errorf("stored balance changed: %d", got)
	}
}

func TestNegativeCostRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.l.AuthorizeAndDebit(context.Background(), f.reseller.ID, -1)
	if licensor.KindOf(err) != licensor.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentAuthorizeAndDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 40
	var total atomic.Int64
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.l.AuthorizeAndDebit(ctx, f.reseller.ID, 70); err == nil {
				total.Add(70)
			} else if !errors.Is(err, licensor.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if total.Load() > 1000 {
		t.Fatalf("debited %d from a balance of 1000", total.Load())
	}
	if got := f.balance(t, f.reseller.ID); got != 1000-total.Load() {
		t.Errorf("balance %d does not match debits %d", got, total.Load())
	}
}

func TestAuthorizeAndDebitModOverlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.l.AddModBalance(ctx, f.owner.ID, f.reseller.ID, "mod-a", 300); err != nil {
		t.Fatalf("add mod balance: %v", err)
	}

	res, err := f.l.AuthorizeAndDebitMod(ctx, f.reseller.ID, "mod-a", 200)
	if err != nil {
		t.Fatalf("mod debit: %v", err)
	}
	if res.ModID != "mod-a" || res.Balance != 100 {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := f.balance(t, f.reseller.ID); got != 1000 {
		t.Errorf("general balance touched: %d", got)
	}

	_, err = f.l.AuthorizeAndDebitMod(ctx, f.reseller.ID, "mod-a", 200)
	var ife *licensor.InsufficientFundsError
	if !errors.As(err, &ife) || ife.ModID != "mod-a" || ife.Available != 100 {
		t.Fatalf("expected mod insufficient funds, got %v", err)
	}

	// No entry for mod-b: falls back to the general balance.
	res, err = f.l.AuthorizeAndDebitMod(ctx, f.reseller.ID, "mod-b", 200)
	if err != nil {
		t.Fatalf("fallback debit: %v", err)
	}
	if res.ModID != "" || res.Balance != 800 {
		t.Errorf("unexpected fallback result: %+v", res)
	}
}
