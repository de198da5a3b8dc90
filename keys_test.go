package licensor_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/licensekey"
	"github.com/xraph/licensor/rate"
)

func TestIssueKeyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k, err := f.l.IssueKey(ctx, f.reseller.ID, licensor.IssueParams{
		ExpiresAt:  testNow.AddDate(0, 0, 7),
		MaxDevices: 2,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got := f.balance(t, f.reseller.ID); got != 600 {
		t.Errorf("balance: got %d, want 600", got)
	}
	if !k.ExpiresAt.Equal(testNow.AddDate(0, 0, 7)) {
		t.Errorf("expires at: got %v", k.ExpiresAt)
	}
	if k.Tier != licensekey.TierReseller || len(k.Token) != 32 || !k.IsActive {
		t.Errorf("unexpected key: %+v", k)
	}
	if k.Name != "key-"+strconv.FormatInt(testNow.Unix(), 10) {
		t.Errorf("default name: got %q", k.Name)
	}
}

func TestIssueKeyOwnerIsFree(t *testing.T) {
	f := newFixture(t)

	k, err := f.l.IssueKey(context.Background(), f.owner.ID, licensor.IssueParams{
		ModID:      "mod-a",
		ExpiresAt:  testNow.AddDate(0, 0, 60),
		MaxDevices: 10,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if k.Tier != licensekey.TierOwner || k.Name != "mod-a" {
		t.Errorf("unexpected key: %+v", k)
	}
	owner, _ := f.l.GetAccount(context.Background(), f.owner.ID) //nolint:errcheck // owner exists
	if owner.Balance != account.OwnerBalance {
		t.Errorf("owner balance changed: %d", owner.Balance)
	}
}

func TestIssueKeyFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.l.CreateAccount(ctx, f.owner.ID, licensor.CreateAccountParams{Username: "u", Role: account.RoleUser})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	tests := []struct {
		name      string
		requester *account.Account
		params    licensor.IssueParams
		want      licensor.Kind
	}{
		{"past expiry", f.reseller, licensor.IssueParams{ExpiresAt: testNow.Add(-time.Hour)}, licensor.KindValidation},
		{"user role", user, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 1)}, licensor.KindForbidden},
		{"too expensive", f.reseller, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 7), MaxDevices: 6}, licensor.KindBusinessRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.IssueKey(ctx, tt.requester.ID, tt.params)
			if got := licensor.KindOf(err); got != tt.want {
				t.Errorf("kind: got %s, want %s (err=%v)", got, tt.want, err)
			}
		})
	}

	if got := f.balance(t, f.reseller.ID); got != 1000 {
		t.Errorf("failed issuance touched balance: %d", got)
	}
	keys, err := f.l.ListKeys(ctx, f.owner.ID, licensekey.ListOpts{})
	if err != nil || len(keys) != 0 {
		t.Errorf("expected no keys, got %d (%v)", len(keys), err)
	}
}

func TestIssueBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 1000 / (200*2) = 2 keys before the balance runs out.
	res, err := f.l.IssueBatch(ctx, f.reseller.ID, licensor.BatchParams{
		ModID:       "mod-a",
		Amount:      5,
		Duration:    "7 days",
		DeviceCount: 2,
	})
	if !errors.Is(err, licensor.ErrInsufficientFunds) {
		t.Fatalf("expected batch to stop on insufficient funds, got %v", err)
	}
	if res.Requested != 5 || res.Issued != 2 || len(res.Keys) != 2 || len(res.Charges) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for i, c := range res.Charges {
		if c.Cost != 400 || !c.Debited || c.Token != res.Keys[i].Token {
			t.Errorf("charge %d: %+v", i, c)
		}
		if res.Keys[i].MaxUsage != 2 || res.Keys[i].MaxDevices != 2 {
			t.Errorf("key %d caps: usage=%d devices=%d", i, res.Keys[i].MaxUsage, res.Keys[i].MaxDevices)
		}
	}
	if got := f.balance(t, f.reseller.ID); got != 200 {
		t.Errorf("balance: got %d, want 200", got)
	}
}

func TestIssueBatchUnlimitedUsage(t *testing.T) {
	f := newFixture(t)

	res, err := f.l.IssueBatch(context.Background(), f.owner.ID, licensor.BatchParams{
		Amount:         3,
		Duration:       "30 days",
		DeviceCount:    1,
		UnlimitedUsage: true,
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	for _, k := range res.Keys {
		if k.MaxUsage != 0 {
			t.Errorf("expected unlimited usage, got %d", k.MaxUsage)
		}
	}
	for _, c := range res.Charges {
		if c.Debited || c.Cost != 0 {
			t.Errorf("owner batch was charged: %+v", c)
		}
	}
}

func TestIssueBatchRejectsBadDuration(t *testing.T) {
	f := newFixture(t)
	_, err := f.l.IssueBatch(context.Background(), f.reseller.ID, licensor.BatchParams{Amount: 1, Duration: "soon"})
	if !errors.Is(err, licensor.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestValidateAndConsumeMaxUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k, err := f.l.IssueKey(ctx, f.owner.ID, licensor.IssueParams{
		ModID:     "mod-a",
		ExpiresAt: testNow.AddDate(0, 0, 1),
		MaxUsage:  3,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	for i := 1; i <= 3; i++ {
		d, err := f.l.ValidateAndConsume(ctx, k.Token, "mod-a")
		if err != nil {
			t.Fatalf("use %d: %v", i, err)
		}
		if d.UsageCount != int64(i) || d.LastUsed == nil {
			t.Errorf("use %d: %+v", i, d)
		}
	}
	if _, err := f.l.ValidateAndConsume(ctx, k.Token, "mod-a"); !errors.Is(err, licensor.ErrKeyInvalid) {
		t.Fatalf("expected ErrKeyInvalid on 4th use, got %v", err)
	}
	if _, err := f.l.ValidateAndConsume(ctx, "missing", ""); !errors.Is(err, licensor.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if _, err := f.l.ValidateAndConsume(ctx, k.Token, "mod-b"); !errors.Is(err, licensor.ErrKeyNotFound) {
		t.Fatalf("expected mod-scoped miss, got %v", err)
	}
}

func TestValidateExpiredKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k, err := f.l.IssueKey(ctx, f.owner.ID, licensor.IssueParams{ExpiresAt: testNow.Add(time.Hour)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := licensor.New(f.store, licensor.WithClock(func() time.Time { return testNow.Add(2 * time.Hour) }))
	if _, err := later.ValidateAndConsume(ctx, k.Token, ""); !errors.Is(err, licensor.ErrKeyInvalid) {
		t.Fatalf("expected ErrKeyInvalid for expired key, got %v", err)
	}
}

func TestExtendExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.newReseller(t, "other", 1000, nil)

	k, err := f.l.IssueKey(ctx, f.reseller.ID, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 3)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := f.l.ExtendExpiry(ctx, k.Token, 5, other.ID); !errors.Is(err, licensor.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for foreign reseller, got %v", err)
	}

	got, err := f.l.ExtendExpiry(ctx, k.Token, 5, f.reseller.ID)
	if err != nil {
		t.Fatalf("extend by creator: %v", err)
	}
	if want := testNow.AddDate(0, 0, 8); !got.ExpiresAt.Equal(want) {
		t.Errorf("expires at: got %v, want %v", got.ExpiresAt, want)
	}

	got, err = f.l.ExtendExpiry(ctx, k.Token, 2, f.owner.ID)
	if err != nil {
		t.Fatalf("extend by owner: %v", err)
	}
	if want := testNow.AddDate(0, 0, 10); !got.ExpiresAt.Equal(want) {
		t.Errorf("expires at: got %v, want %v", got.ExpiresAt, want)
	}
}

func TestExtendExpiryCompoundsFromPastExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k, err := f.l.IssueKey(ctx, f.owner.ID, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := licensor.New(f.store, licensor.WithClock(func() time.Time { return testNow.AddDate(0, 0, 10) }))
	got, err := later.ExtendExpiry(ctx, k.Token, 3, f.owner.ID)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if want := testNow.AddDate(0, 0, 4); !got.ExpiresAt.Equal(want) {
		t.Errorf("expires at: got %v, want %v", got.ExpiresAt, want)
	}
}

func TestKeyManagementPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.newReseller(t, "other", 1000, rate.Table{rate.Day1: 1})

	k, err := f.l.IssueKey(ctx, f.reseller.ID, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.l.IssueKey(ctx, other.ID, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 1)}); err != nil {
		t.Fatalf("issue other: %v", err)
	}

	mine, err := f.l.ListKeys(ctx, f.reseller.ID, licensekey.ListOpts{})
	if err != nil || len(mine) != 1 {
		t.Fatalf("reseller should see only own keys: %d %v", len(mine), err)
	}
	all, err := f.l.ListKeys(ctx, f.owner.ID, licensekey.ListOpts{})
	if err != nil || len(all) != 2 {
		t.Fatalf("owner should see all keys: %d %v", len(all), err)
	}

	if err := f.l.SetKeyActive(ctx, k.Token, false, other.ID); !errors.Is(err, licensor.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := f.l.SetKeyActive(ctx, k.Token, false, f.reseller.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := f.l.ValidateAndConsume(ctx, k.Token, ""); !errors.Is(err, licensor.ErrKeyInvalid) {
		t.Fatalf("disabled key validated: %v", err)
	}
	if err := f.l.DeleteKey(ctx, k.Token, f.owner.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.l.GetKey(ctx, k.Token); !licensor.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestInactiveAdminCannotManageKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k, err := f.l.IssueKey(ctx, f.reseller.ID, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 7)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.l.SetActive(ctx, f.owner.ID, f.reseller.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"extend", func() error {
			_, err := f.l.ExtendExpiry(ctx, k.Token, 3, f.reseller.ID)
			return err
		}},
		{"disable", func() error { return f.l.SetKeyActive(ctx, k.Token, false, f.reseller.ID) }},
		{"delete", func() error { return f.l.DeleteKey(ctx, k.Token, f.reseller.ID) }},
		{"view", func() error {
			_, err := f.l.ViewKey(ctx, k.Token, f.reseller.ID)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, licensor.ErrAccountInactive) {
				t.Errorf("expected ErrAccountInactive, got %v", err)
			}
		})
	}

	got, err := f.l.GetKey(ctx, k.Token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsActive || !got.ExpiresAt.Equal(k.ExpiresAt) {
		t.Errorf("key changed by an inactive admin: %+v", got)
	}
}
