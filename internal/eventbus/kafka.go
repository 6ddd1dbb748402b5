// internal/eventbus/kafka.go
package eventbus

import (
	"context"
	"fmt"
	"time"

	"categoryhub/internal/category"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes one message per event, keyed by category id so a
// category's events stay on one partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaWriter builds the producer used by KafkaSink.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}
}

func NewKafkaSink(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, events []category.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := encodeEvent(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.CategoryID),
			Value: value,
			Time:  e.OccurredOn,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(e.Kind())},
				{Key: "event-id", Value: []byte(e.ID)},
			},
		})
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages: %w", len(msgs), err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
