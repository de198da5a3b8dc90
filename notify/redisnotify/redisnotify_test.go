package redisnotify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/notify/redisnotify"
)

func setup(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestChannel(t *testing.T) {
	client, _ := setup(t)

	if got := redisnotify.New(client, "").Channel("acct_1"); got != "licensor:account:acct_1" {
		t.Errorf("default prefix: got %q", got)
	}
	if got := redisnotify.New(client, "push").Channel("acct_1"); got != "push:acct_1" {
		t.Errorf("custom prefix: got %q", got)
	}
}

func TestNotifyPublishesToAccountChannel(t *testing.T) {
	client, _ := setup(t)
	ctx := context.Background()
	sink := redisnotify.New(client, "")

	acct := id.NewAccountID()
	sub := client.Subscribe(ctx, sink.Channel(acct.String()))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	err := sink.Notify(ctx, notify.Event{
		ID:        id.NewEventID(),
		Type:      notify.TypeBalanceChanged,
		AccountID: acct,
		Balance:   600,
		Status:    "active",
		At:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var payload map[string]any
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["account_id"] != acct.String() {
			t.Errorf("account_id: got %v", payload["account_id"])
		}
		if payload["balance"] != float64(600) {
			t.Errorf("balance: got %v", payload["balance"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestNotifyFailsWhenRedisIsDown(t *testing.T) {
	client, mr := setup(t)
	mr.Close()

	err := redisnotify.New(client, "").Notify(context.Background(), notify.Event{
		Type:      notify.TypeActivation,
		AccountID: id.NewAccountID(),
	})
	if err == nil {
		t.Fatal("expected error with redis unavailable")
	}
}
