// Package kafka publishes and consumes service events on a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	kafkaGo "github.com/segmentio/kafka-go"
)

// Publisher writes to a single topic.
type Publisher struct {
	writer *kafkaGo.Writer
}

// NewPublisher creates a publisher for topic on brokers. No connection is made until the
// first write.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafkaGo.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes body keyed by key. Keying by event type keeps each type ordered.
func (p *Publisher) Publish(ctx context.Context, key string, body []byte) error {
	if err := p.writer.WriteMessages(ctx, kafkaGo.Message{Key: []byte(key), Value: body}); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Consume reads topic as groupID and calls handler for each message. It blocks until ctx is
// cancelled.
func Consume(ctx context.Context, brokers []string, topic, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Consumer shutting down", "topic", topic)
				return
			}
			slog.Error("Error reading message", "topic", topic, "err", err)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			slog.Error("Error handling message", "topic", topic, "err", err)
		}
	}
}
