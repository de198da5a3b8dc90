package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/api"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/store/memory"
)

type fixture struct {
	srv   *httptest.Server
	owner *account.Account
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := licensor.New(memory.New(),
		licensor.WithLogger(logger),
		licensor.WithClock(func() time.Time { return now }),
	)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })

	owner, err := l.Bootstrap(ctx, "root")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	srv := httptest.NewServer(api.New(l, api.WithLogger(logger)))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, owner: owner, now: now}
}

// do sends body as JSON with as the caller (zero ID for anonymous) and
// decodes the response into out when out is non-nil.
func (f *fixture) do(t *testing.T, method, path string, as id.AccountID, body, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !as.IsNil() {
		req.Header.Set(api.DefaultAccountHeader, as.String())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newFixture(t)

	var reseller account.Account
	if code := f.do(t, http.MethodPost, "/accounts", f.owner.ID,
		map[string]any{"username": "reseller", "role": "admin"}, &reseller); code != http.StatusCreated {
		t.Fatalf("create account: status %d", code)
	}

	issue := map[string]any{"expires_at": f.now.AddDate(0, 0, 30).Format(time.RFC3339)}

	var denied api.ErrorBody
	if code := f.do(t, http.MethodPost, "/keys", reseller.ID, issue, &denied); code != http.StatusUnprocessableEntity {
		t.Fatalf("issue without funds: status %d", code)
	}
	if denied.Error.Kind != string(licensor.KindBusinessRule) {
		t.Errorf("kind = %q", denied.Error.Kind)
	}
	if denied.Error.Details["available"] != float64(0) {
		t.Errorf("details = %v", denied.Error.Details)
	}

	var granted account.Account
	if code := f.do(t, http.MethodPost, "/accounts/"+reseller.ID.String()+"/balance", f.owner.ID,
		map[string]any{"amount": 1000}, &granted); code != http.StatusOK {
		t.Fatalf("grant: status %d", code)
	}
	if granted.Balance != 1000 {
		t.Fatalf("balance = %d, want 1000", granted.Balance)
	}

	var key struct {
		Token string `json:"token"`
	}
	if code := f.do(t, http.MethodPost, "/keys", reseller.ID, issue, &key); code != http.StatusCreated {
		t.Fatalf("issue: status %d", code)
	}

	var details struct {
		UsageCount int64 `json:"usage_count"`
	}
	if code := f.do(t, http.MethodPost, "/keys/validate", id.Nil,
		map[string]any{"token": key.Token}, &details); code != http.StatusOK {
		t.Fatalf("validate: status %d", code)
	}
	if details.UsageCount != 1 {
		t.Errorf("usage_count = %d, want 1", details.UsageCount)
	}

	var after account.Account
	if code := f.do(t, http.MethodGet, "/accounts/"+reseller.ID.String(), reseller.ID, nil, &after); code != http.StatusOK {
		t.Fatalf("get self: status %d", code)
	}
	if after.Balance != 500 {
		t.Errorf("balance after issue = %d, want 500", after.Balance)
	}

	if code := f.do(t, http.MethodDelete, "/keys/"+key.Token, reseller.ID, nil, nil); code != http.StatusNoContent {
		t.Errorf("delete key: status %d", code)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	f := newFixture(t)

	var reseller account.Account
	if code := f.do(t, http.MethodPost, "/accounts", f.owner.ID,
		map[string]any{"username": "reseller", "role": "admin"}, &reseller); code != http.StatusCreated {
		t.Fatalf("create account: status %d", code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		as     id.AccountID
		body   any
		want   int
	}{
		{"missing identity", http.MethodGet, "/accounts", id.Nil, nil, http.StatusUnauthorized},
		{"unknown field", http.MethodPost, "/accounts", f.owner.ID, map[string]any{"nope": 1}, http.StatusBadRequest},
		{"bad path id", http.MethodGet, "/accounts/not-an-id", f.owner.ID, nil, http.StatusBadRequest},
		{"forbidden", http.MethodGet, "/accounts/" + f.owner.ID.String(), reseller.ID, nil, http.StatusForbidden},
		{"duplicate username", http.MethodPost, "/accounts", f.owner.ID, map[string]any{"username": "reseller", "role": "admin"}, http.StatusConflict},
		{"unknown key", http.MethodPost, "/keys/validate", id.Nil, map[string]any{"token": "missing"}, http.StatusNotFound},
		{"bad duration", http.MethodPost, "/codes", f.owner.ID, map[string]any{"balance": 10, "duration": "forever"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body api.ErrorBody
			if got := f.do(t, tt.method, tt.path, tt.as, tt.body, &body); got != tt.want {
				t.Errorf("status = %d, want %d (%+v)", got, tt.want, body.Error)
			}
			if body.Error.Message == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestAPIRedeemOnce(t *testing.T) {
	f := newFixture(t)

	var code struct {
		Code string `json:"code"`
	}
	if status := f.do(t, http.MethodPost, "/codes", f.owner.ID,
		map[string]any{"balance": 100, "duration": "30 days"}, &code); status != http.StatusCreated {
		t.Fatalf("create code: status %d", status)
	}

	var a account.Account
	if status := f.do(t, http.MethodPost, "/codes/redeem", id.Nil,
		map[string]any{"code": code.Code, "username": "alice"}, &a); status != http.StatusCreated {
		t.Fatalf("redeem: status %d", status)
	}
	if a.Balance != 100 || a.Role != account.RoleAdmin {
		t.Errorf("redeemed account = %+v", a)
	}

	var body api.ErrorBody
	if status := f.do(t, http.MethodPost, "/codes/redeem", id.Nil,
		map[string]any{"code": code.Code, "username": "bob"}, &body); status != http.StatusConflict {
		t.Errorf("second redeem: status %d, want 409", status)
	}
}
