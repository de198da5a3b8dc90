package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/account"
	"github.com/xraph/licensor/observability"
	"github.com/xraph/licensor/store/memory"
)

func counterValue(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	if !ok {
		t.Fatalf("counter is %T, not a prometheus.Counter", c)
	}
	return testutil.ToFloat64(pc)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg)

	a := f.Counter("licensor.key.issued")
	b := f.Counter("licensor.key.issued")
	a.Inc()
	b.Add(2)

	if got := counterValue(t, a); got != 3 {
		t.Errorf("got %v, want 3", got)
	}

	// A second factory on the same registry sees the same collector.
	c := observability.NewPrometheusFactory(reg).Counter("licensor.key.issued")
	if got := counterValue(t, c); got != 3 {
		t.Errorf("second factory: got %v, want 3", got)
	}

	if n, err := testutil.GatherAndCount(reg, "licensor_key_issued_total"); err != nil || n != 1 {
		t.Errorf("gather: n=%d err=%v", n, err)
	}
}

func TestMetricsExtensionCountsEngineEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(prometheus.NewRegistry()))
	l := licensor.New(memory.New(),
		licensor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		licensor.WithClock(func() time.Time { return now }),
		licensor.WithPlugin(m),
	)
	if err := l.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop() //nolint:errcheck // memory store

	owner, err := l.Bootstrap(ctx, "root")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	reseller, err := l.CreateAccount(ctx, owner.ID, licensor.CreateAccountParams{
		Username: "reseller",
		Role:     account.RoleAdmin,
		Balance:  500,
	})
	if err != nil {
		t.Fatalf("create reseller: %v", err)
	}

	k, err := l.IssueKey(ctx, reseller.ID, licensor.IssueParams{ExpiresAt: now.AddDate(0, 0, 30)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := l.ValidateAndConsume(ctx, k.Token, ""); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := l.ValidateAndConsume(ctx, "missing", ""); err == nil {
		t.Fatal("expected rejection for unknown token")
	}
	_, err = l.IssueKey(ctx, reseller.ID, licensor.IssueParams{ExpiresAt: now.AddDate(0, 0, 30)})
	if !errors.Is(err, licensor.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	tests := []struct {
		name string
		c    observability.Counter
		want float64
	}{
		{"accounts created", m.AccountCreated, 2},
		{"debited", m.CreditsDebited, 1},
		{"denied", m.DebitDenied, 1},
		{"insufficient funds", m.InsufficientFunds, 1},
		{"key issued", m.KeyIssued, 1},
		{"key validated", m.KeyValidated, 1},
		{"key rejected", m.KeyRejected, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
