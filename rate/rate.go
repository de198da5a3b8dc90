// Package rate holds the deduction rate table and the pure cost rules used
// by the credit ledger.
//
// Key cost is duration-bucketed, not linear: a request is priced at the
// smallest tier whose upper bound covers its duration, multiplied by the
// number of devices the key may bind.
//
//	rates := rate.Table{rate.Day7: 200}
//	cost := rate.ComputeKeyCost(rates, 7, 2) // 400
package rate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Tier identifies a fixed duration bucket used for cost lookup.
type Tier string

// Tier keys, ordered by upper bound.
const (
	Day1  Tier = "day1"
	Day3  Tier = "day3"
	Day7  Tier = "day7"
	Day15 Tier = "day15"
	Day30 Tier = "day30"
	Day60 Tier = "day60"
)

// DefaultRate is the per-device cost applied when a table has no entry for
// the selected tier.
const DefaultRate int64 = 500

// ErrInvalidDuration is returned when a duration string cannot be parsed.
var ErrInvalidDuration = errors.New("rate: invalid duration")

// bounds lists every tier with its inclusive upper bound in days.
var bounds = []struct {
	tier Tier
	days int
}{
	{Day1, 1},
	{Day3, 3},
	{Day7, 7},
	{Day15, 15},
	{Day30, 30},
}

// Tiers returns all tier keys in ascending order.
func Tiers() []Tier {
	return []Tier{Day1, Day3, Day7, Day15, Day30, Day60}
}

// Valid reports whether t is a known tier key.
func (t Tier) Valid() bool {
	for _, known := range Tiers() {
		if t == known {
			return true
		}
	}
	return false
}

// TierFor returns the smallest tier covering durationDays. Anything above
// 30 days falls into the 60 day tier.
func TierFor(durationDays int) Tier {
	for _, b := range bounds {
		if durationDays <= b.days {
			return b.tier
		}
	}
	return Day60
}

// Table maps a tier to its per-device cost.
type Table map[Tier]int64

// DefaultTable returns a table with DefaultRate for every tier.
func DefaultTable() Table {
	t := make(Table, len(bounds)+1)
	for _, tier := range Tiers() {
		t[tier] = DefaultRate
	}
	return t
}

// Rate returns the per-device cost for tier, or DefaultRate when the table
// is nil or has no entry for it.
func (t Table) Rate(tier Tier) int64 {
	if v, ok := t[tier]; ok {
		return v
	}
	return DefaultRate
}

// Clone returns a copy of the table. A nil table clones to nil.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Validate checks that every key is a known tier and every rate is
// non-negative.
func (t Table) Validate() error {
	for k, v := range t {
		if !k.Valid() {
			return fmt.Errorf("rate: unknown tier %q", k)
		}
		if v < 0 {
			return fmt.Errorf("rate: negative rate for %s", k)
		}
	}
	return nil
}

// ComputeKeyCost returns the credit cost of a key lasting durationDays and
// bound to deviceCount devices. Device counts below one are priced as one.
func ComputeKeyCost(rates Table, durationDays, deviceCount int) int64 {
	if deviceCount < 1 {
		deviceCount = 1
	}
	return rates.Rate(TierFor(durationDays)) * int64(deviceCount)
}

// DaysUntil returns the number of days between now and expiresAt, rounded
// up, so that 1 day and 1 second counts as 2 days. Past instants yield 0.
func DaysUntil(now, expiresAt time.Time) int {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// ParseDurationDays parses a day-count duration such as "30 days", "1 day"
// or "7". It is the single parser for durations crossing the API boundary:
// empty, malformed, zero and negative values are rejected with
// ErrInvalidDuration rather than replaced by a default.
func ParseDurationDays(s string) (int, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 || len(fields) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	if len(fields) == 2 && fields[1] != "day" && fields[1] != "days" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	days, err := strconv.Atoi(fields[0])
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return days, nil
}

// FormatDurationDays renders days in the canonical "N days" form accepted
// by ParseDurationDays.
func FormatDurationDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return strconv.Itoa(days) + " days"
}
