package licensekey

import (
	"testing"
	"time"
)

func TestValid(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		key    LicenseKey
		valid  bool
		reason string
	}{
		{"fresh", LicenseKey{IsActive: true, ExpiresAt: future}, true, ""},
		{"disabled", LicenseKey{IsActive: false, ExpiresAt: future}, false, "key is disabled"},
		{"expired", LicenseKey{IsActive: true, ExpiresAt: now}, false, "key has expired"},
		{"under cap", LicenseKey{IsActive: true, ExpiresAt: future, MaxUsage: 3, UsageCount: 2}, true, ""},
		{"at cap", LicenseKey{IsActive: true, ExpiresAt: future, MaxUsage: 3, UsageCount: 3}, false, "key usage limit reached"},
		{"unlimited usage", LicenseKey{IsActive: true, ExpiresAt: future, UsageCount: 1 << 40}, true, ""},
		{"expired ignores usage", LicenseKey{IsActive: true, ExpiresAt: now.Add(-time.Hour)}, false, "key has expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Valid(now); got != tt.valid {
				t.Errorf("Valid: got %v, want %v", got, tt.valid)
			}
			if got := tt.key.InvalidReason(now); got != tt.reason {
				t.Errorf("InvalidReason: got %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestDetailsOmitsInternalFields(t *testing.T) {
	k := LicenseKey{Token: "abc", ModID: "m1", MaxUsage: 5, UsageCount: 2, MaxDevices: 3}
	d := k.Details()
	if d.Token != "abc" || d.ModID != "m1" || d.MaxUsage != 5 || d.UsageCount != 2 || d.MaxDevices != 3 {
		t.Errorf("unexpected details: %+v", d)
	}
}
