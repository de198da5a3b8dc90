// Package notify delivers account events to a push channel keyed by account
// ID. The engine calls a Sink synchronously after each mutation and treats
// delivery as fire-and-forget: a failing sink is logged and never fails the
// operation that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xraph/licensor/id"
)

// Type names the kind of event.
type Type string

const (
	TypeBalanceChanged Type = "balance.changed"
	TypeActivation     Type = "account.activation"
)

// Event is a single account notification. Only the fields relevant to Type
// are encoded on the wire.
type Event struct {
	ID               id.EventID
	Type             Type
	AccountID        id.AccountID
	ModID            string
	Balance          int64
	UnlimitedBalance bool
	BalanceExpiresAt *time.Time
	Active           bool
	Status           string
	At               time.Time
}

type balancePayload struct {
	ID               string     `json:"id"`
	Type             Type       `json:"type"`
	AccountID        string     `json:"account_id"`
	ModID            string     `json:"mod_id,omitempty"`
	Balance          int64      `json:"balance"`
	UnlimitedBalance bool       `json:"unlimited_balance"`
	BalanceExpiresAt *time.Time `json:"balance_expires_at"`
	Status           string     `json:"status"`
	At               time.Time  `json:"at"`
}

type activationPayload struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	AccountID string    `json:"account_id"`
	Active    bool      `json:"active"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// MarshalJSON encodes the payload for the event's type.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == TypeActivation {
		return json.Marshal(activationPayload{
			ID:        e.ID.String(),
			Type:      e.Type,
			AccountID: e.AccountID.String(),
			Active:    e.Active,
			Status:    e.Status,
			At:        e.At,
		})
	}
	return json.Marshal(balancePayload{
		ID:               e.ID.String(),
		Type:             e.Type,
		AccountID:        e.AccountID.String(),
		ModID:            e.ModID,
		Balance:          e.Balance,
		UnlimitedBalance: e.UnlimitedBalance,
		BalanceExpiresAt: e.BalanceExpiresAt,
		Status:           e.Status,
		At:               e.At,
	})
}

// Sink receives account events.
type Sink interface {
	Notify(ctx context.Context, e Event) error
}

// Nop discards every event. It is the engine default.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Func adapts a plain function to the Sink interface.
type Func func(ctx context.Context, e Event) error

func (f Func) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// Multi delivers each event to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
