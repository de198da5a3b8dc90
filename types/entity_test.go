package types

import (
	"testing"
	"time"
)

func TestNewEntityAt(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)

	e := NewEntityAt(at)
	if !e.CreatedAt.Equal(at) || !e.UpdatedAt.Equal(at) {
		t.Fatalf("timestamps: got %v/%v, want %v", e.CreatedAt, e.UpdatedAt, at)
	}
	if e.CreatedAt.Location() != time.UTC {
		t.Errorf("location: got %v, want UTC", e.CreatedAt.Location())
	}
}

func TestTouch(t *testing.T) {
	e := NewEntityAt(time.Now().Add(-time.Hour))
	before := e.UpdatedAt

	e.Touch()
	if !e.UpdatedAt.After(before) {
		t.Errorf("UpdatedAt not advanced: %v -> %v", before, e.UpdatedAt)
	}
	if e.Age() < time.Hour {
		t.Errorf("Age: got %v, want >= 1h", e.Age())
	}
}
