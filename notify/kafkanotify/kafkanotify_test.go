package kafkanotify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/notify/kafkanotify"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNotifyKeysByAccount(t *testing.T) {
	w := &fakeWriter{}
	sink := kafkanotify.NewWithWriter(w, "")

	acct := id.NewAccountID()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := sink.Notify(context.Background(), notify.Event{
		ID:        id.NewEventID(),
		Type:      notify.TypeActivation,
		AccountID: acct,
		Active:    false,
		Status:    "inactive",
		At:        at,
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != kafkanotify.DefaultTopic {
		t.Errorf("topic: got %q", msg.Topic)
	}
	if string(msg.Key) != acct.String() {
		t.Errorf("key: got %q", msg.Key)
	}
	if !msg.Time.Equal(at) {
		t.Errorf("time: got %v", msg.Time)
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["type"] != string(notify.TypeActivation) || payload["status"] != "inactive" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestNotifyWrapsWriterError(t *testing.T) {
	boom := errors.New("broker unavailable")
	sink := kafkanotify.NewWithWriter(&fakeWriter{err: boom}, "events")

	err := sink.Notify(context.Background(), notify.Event{AccountID: id.NewAccountID()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := kafkanotify.New(nil, "events"); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	if err := kafkanotify.NewWithWriter(w, "").Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}
