// Package kafkanotify writes licensor notifications to a Kafka topic, keyed
// by account ID so that one account's events stay ordered on a partition.
package kafkanotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/xraph/licensor/notify"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "licensor.account-events"

// compile-time interface check
var _ notify.Sink = (*Sink)(nil)

// Writer is the subset of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes events through a Writer.
type Sink struct {
	writer Writer
	topic  string
}

// New returns a sink writing to topic on brokers.
func New(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafkanotify: at least one broker is required")
	}
	return NewWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, topic), nil
}

// NewWithWriter wraps an existing writer. The writer must not set its own
// Topic; the sink sets it on every message.
func NewWithWriter(w Writer, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{writer: w, topic: topic}
}

// Notify implements notify.Sink.
func (s *Sink) Notify(ctx context.Context, e notify.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafkanotify: marshal event: %w", err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(e.AccountID.String()),
		Value: payload,
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafkanotify: write: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
