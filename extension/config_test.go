package extension

import (
	"testing"
	"time"

	"github.com/xraph/licensor/store/memory"
)

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{
		BasePath:     "/api/licensor",
		Notify:       NotifyRedis,
		DefaultRates: map[string]int64{"day1": 10},
	}
	prog := Config{
		BasePath:       "/ignored",
		DisableMigrate: true,
		RedisAddr:      "localhost:6379",
		NotifyTimeout:  time.Second,
	}

	got := mergeConfigurations(yaml, prog)

	tests := []struct {
		name string
		ok   bool
	}{
		{"yaml base path wins", got.BasePath == "/api/licensor"},
		{"programmatic flag applies", got.DisableMigrate},
		{"programmatic fills redis addr", got.RedisAddr == "localhost:6379"},
		{"programmatic fills timeout", got.NotifyTimeout == time.Second},
		{"default store driver", got.StoreDriver == DriverMemory},
		{"default retries", got.MaxExtendRetries == 5},
		{"default buffer", got.NotifyBufferSize == 256},
		{"yaml rates kept", got.DefaultRates["day1"] == 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.ok {
				t.Errorf("unexpected merged config: %+v", got)
			}
		})
	}
}

func TestValidateConfigRejectsUnknownTier(t *testing.T) {
	if err := validateConfig(Config{DefaultRates: map[string]int64{"day2": 1}}); err == nil {
		t.Fatal("expected an error for an unknown tier")
	}
	if err := validateConfig(Config{DefaultRates: map[string]int64{"day30": 100}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildStore(t *testing.T) {
	t.Run("explicit store wins", func(t *testing.T) {
		s := memory.New()
		e := New(WithStore(s))
		if err := e.buildStore(); err != nil {
			t.Fatalf("build: %v", err)
		}
		if e.store != s {
			t.Error("expected the explicit store")
		}
	})

	t.Run("memory by default", func(t *testing.T) {
		e := New()
		e.config = mergeWithDefaults(e.config)
		if err := e.buildStore(); err != nil {
			t.Fatalf("build: %v", err)
		}
		if _, ok := e.store.(*memory.Store); !ok {
			t.Errorf("store is %T", e.store)
		}
	})

	t.Run("sql driver without database", func(t *testing.T) {
		e := New(WithConfig(Config{StoreDriver: DriverPostgres}))
		if err := e.buildStore(); err == nil {
			t.Fatal("expected an error")
		}
	})
}
