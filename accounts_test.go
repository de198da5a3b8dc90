package licensor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/notify"
)

func TestCreateAccountPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		requester *account.Account
		role      account.Role
		wantErr   error
	}{
		{"owner creates admin", f.owner, account.RoleAdmin, nil},
		{"owner creates user", f.owner, account.RoleUser, nil},
		{"admin creates user", f.reseller, account.RoleUser, nil},
		{"admin creates admin", f.reseller, account.RoleAdmin, licensor.ErrNotAuthorized},
		{"nobody creates owner", f.owner, account.RoleOwner, licensor.ErrInvalidInput},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.CreateAccount(ctx, tt.requester.ID, licensor.CreateAccountParams{
				Username: "acct-" + string(rune('a'+i)),
				Role:     tt.role,
			})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateAccountDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	_, err := f.l.CreateAccount(context.Background(), f.owner.ID, licensor.CreateAccountParams{
		Username: "reseller",
		Role:     account.RoleAdmin,
	})
	if !errors.Is(err, licensor.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestCreateAccountWithDuration(t *testing.T) {
	f := newFixture(t)
	a, err := f.l.CreateAccount(context.Background(), f.owner.ID, licensor.CreateAccountParams{
		Username:        "timed",
		Role:            account.RoleAdmin,
		Balance:         10,
		BalanceDuration: "7",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.BalanceDuration != "7 days" || !a.BalanceExpiresAt.Equal(testNow.AddDate(0, 0, 7)) {
		t.Errorf("duration not applied: %q %v", a.BalanceDuration, a.BalanceExpiresAt)
	}
}

func TestBalanceAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.l.GrantBalance(ctx, f.owner.ID, f.reseller.ID, 250)
	if err != nil || a.Balance != 1250 {
		t.Fatalf("grant: %+v %v", a, err)
	}
	if a.InitialBalance != 1000 {
		t.Errorf("initial balance is a snapshot, got %d", a.InitialBalance)
	}

	if _, err := f.l.SetBalance(ctx, f.owner.ID, f.reseller.ID, -5); licensor.KindOf(err) != licensor.KindValidation {
		t.Fatalf("expected validation error for negative balance, got %v", err)
	}
	if a, err = f.l.SetBalance(ctx, f.owner.ID, f.reseller.ID, 42); err != nil || a.Balance != 42 {
		t.Fatalf("set balance: %+v %v", a, err)
	}

	if _, err := f.l.SetUnlimited(ctx, f.reseller.ID, f.reseller.ID, true); !errors.Is(err, licensor.ErrNotAuthorized) {
		t.Fatalf("admins cannot make themselves unlimited, got %v", err)
	}
	if _, err := f.l.GrantBalance(ctx, f.reseller.ID, f.owner.ID, 1); !errors.Is(err, licensor.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestExtendBalanceExpiryCompounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.l.ExtendBalanceExpiry(ctx, f.owner.ID, f.reseller.ID, 3)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	a, err = f.l.ExtendBalanceExpiry(ctx, f.owner.ID, f.reseller.ID, 4)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if want := testNow.AddDate(0, 0, 7); !a.BalanceExpiresAt.Equal(want) {
		t.Errorf("expiry: got %v, want %v", a.BalanceExpiresAt, want)
	}
}

func TestSetActiveNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.l.SetActive(ctx, f.owner.ID, f.reseller.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	e, ok := f.sink.last()
	if !ok || e.Type != notify.TypeActivation || e.Active || e.Status != account.StatusInactive {
		t.Errorf("unexpected notification: %+v", e)
	}

	if _, err := f.l.SetActive(ctx, f.owner.ID, f.owner.ID, false); !errors.Is(err, licensor.ErrNotAuthorized) {
		t.Errorf("owner must not be deactivated, got %v", err)
	}
}

func TestDeleteAccountLeavesKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	k, err := f.l.IssueKey(ctx, f.reseller.ID, licensor.IssueParams{ExpiresAt: testNow.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.l.DeleteAccount(ctx, f.reseller.ID, f.reseller.ID); !errors.Is(err, licensor.ErrNotAuthorized) {
		t.Fatalf("admins cannot delete, got %v", err)
	}
	if err := f.l.DeleteAccount(ctx, f.owner.ID, f.reseller.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.l.GetAccount(ctx, f.reseller.ID); !licensor.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.l.GetKey(ctx, k.Token); err != nil {
		t.Errorf("orphan key should remain: %v", err)
	}
}
