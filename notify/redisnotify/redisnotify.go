// Package redisnotify publishes licensor notifications on Redis pub/sub.
//
// Each event is JSON encoded and published to "<prefix>:<account_id>", so a
// client can subscribe to exactly the account it cares about.
package redisnotify

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/licensor/notify"
)

// DefaultPrefix is the channel prefix used when none is configured.
const DefaultPrefix = "licensor:account"

// compile-time interface check
var _ notify.Sink = (*Sink)(nil)

// Sink publishes events to Redis.
type Sink struct {
	client goredis.UniversalClient
	prefix string
}

// New returns a sink publishing through client. An empty prefix selects
// DefaultPrefix.
func New(client goredis.UniversalClient, prefix string) *Sink {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Sink{client: client, prefix: prefix}
}

// Channel returns the channel events for accountID are published on.
func (s *Sink) Channel(accountID string) string {
	return s.prefix + ":" + accountID
}

// Notify implements notify.Sink.
func (s *Sink) Notify(ctx context.Context, e notify.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redisnotify: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(e.AccountID.String()), payload).Err(); err != nil {
		return fmt.Errorf("redisnotify: publish: %w", err)
	}
	return nil
}
