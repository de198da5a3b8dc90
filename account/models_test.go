package account

import (
	"testing"
	"time"
)

func TestStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		acct Account
		want string
	}{
		{"active no expiry", Account{Active: true}, StatusActive},
		{"inactive", Account{Active: false}, StatusInactive},
		{"expired", Account{Active: true, BalanceExpiresAt: &past}, StatusExpired},
		{"not yet expired", Account{Active: true, BalanceExpiresAt: &future}, StatusActive},
		{"unlimited ignores expiry", Account{Active: true, UnlimitedBalance: true, BalanceExpiresAt: &past}, StatusActive},
		{"owner ignores expiry", Account{Active: true, Role: RoleOwner, BalanceExpiresAt: &past}, StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.acct.Status(now); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFindModBalance(t *testing.T) {
	a := Account{ModBalances: []ModBalance{{ModID: "alpha", Balance: 10}, {ModID: "beta", Balance: 20}}}

	mb := a.FindModBalance("beta")
	if mb == nil || mb.Balance != 20 {
		t.Fatalf("got %+v, want beta entry", mb)
	}
	mb.Balance = 5
	if a.ModBalances[1].Balance != 5 {
		t.Error("FindModBalance should return a pointer into the slice")
	}
	if a.FindModBalance("gamma") != nil {
		t.Error("expected nil for missing mod")
	}
}

func TestExtendFrom(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 0, 10)
	past := now.AddDate(0, 0, -10)

	if got := ExtendFrom(&future, now, 5); !got.Equal(now.AddDate(0, 0, 15)) {
		t.Errorf("future base: got %v", got)
	}
	if got := ExtendFrom(&past, now, 5); !got.Equal(now.AddDate(0, 0, 5)) {
		t.Errorf("past base: got %v", got)
	}
	if got := ExtendFrom(nil, now, 1); !got.Equal(now.AddDate(0, 0, 1)) {
		t.Errorf("nil base: got %v", got)
	}
}
