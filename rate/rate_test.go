package rate

import (
	"errors"
	"testing"
	"time"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		days int
		want Tier
	}{
		{0, Day1},
		{1, Day1},
		{2, Day3},
		{3, Day3},
		{4, Day7},
		{7, Day7},
		{8, Day15},
		{15, Day15},
		{16, Day30},
		{30, Day30},
		{31, Day60},
		{365, Day60},
	}

	for _, tt := range tests {
		t.Run(FormatDurationDays(tt.days), func(t *testing.T) {
			if got := TierFor(tt.days); got != tt.want {
				t.Errorf("TierFor(%d): got %s, want %s", tt.days, got, tt.want)
			}
		})
	}
}

func TestComputeKeyCost(t *testing.T) {
	tests := []struct {
		name    string
		rates   Table
		days    int
		devices int
		want    int64
	}{
		{"day7 two devices", Table{Day7: 200}, 7, 2, 400},
		{"nil table uses default", nil, 30, 1, 500},
		{"missing tier uses default", Table{Day1: 10}, 3, 3, 1500},
		{"zero devices priced as one", Table{Day1: 10}, 1, 0, 10},
		{"long duration uses day60", Table{Day30: 100, Day60: 150}, 90, 2, 300},
		{"free tier", Table{Day15: 0}, 10, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeKeyCost(tt.rates, tt.days, tt.devices); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeKeyCostMonotonicInDevices(t *testing.T) {
	rates := Table{Day1: 5, Day3: 12, Day7: 20, Day15: 40, Day30: 70, Day60: 120}
	for _, days := range []int{1, 3, 4, 7, 15, 30, 60} {
		prev := int64(-1)
		for devices := 1; devices <= 50; devices++ {
			cost := ComputeKeyCost(rates, days, devices)
			if cost < prev {
				t.Fatalf("days=%d devices=%d: cost %d decreased from %d", days, devices, cost, prev)
			}
			prev = cost
		}
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		exp  time.Time
		want int
	}{
		{"exactly one day", now.Add(24 * time.Hour), 1},
		{"just over a day", now.Add(24*time.Hour + time.Second), 2},
		{"three days", now.AddDate(0, 0, 3), 3},
		{"past", now.Add(-time.Hour), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysUntil(now, tt.exp); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseDurationDays(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"30 days", 30, false},
		{"1 day", 1, false},
		{" 7 Days ", 7, false},
		{"15", 15, false},
		{"", 0, true},
		{"days", 0, true},
		{"0 days", 0, true},
		{"-3 days", 0, true},
		{"3 weeks", 0, true},
		{"3 days extra", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDurationDays(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDuration) {
					t.Fatalf("expected ErrInvalidDuration, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTableValidate(t *testing.T) {
	if err := (Table{Day1: 1, Day60: 9}).Validate(); err != nil {
		t.Errorf("valid table rejected: %v", err)
	}
	if err := (Table{"day2": 1}).Validate(); err == nil {
		t.Error("expected error for unknown tier")
	}
	if err := (Table{Day3: -1}).Validate(); err == nil {
		t.Error("expected error for negative rate")
	}
}

func TestTableClone(t *testing.T) {
	orig := Table{Day7: 200}
	c := orig.Clone()
	c[Day7] = 1
	if orig[Day7] != 200 {
		t.Errorf("clone aliases original: %d", orig[Day7])
	}
	if Table(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}
