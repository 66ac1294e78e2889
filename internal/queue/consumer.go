package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ConsumerConfig describes one group member's subscription.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer is a single-threaded pull loop member of a consumer group. Offsets
// are committed explicitly by the caller, never automatically, so a crash
// mid-job results in redelivery rather than lost work.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer opens a group reader on topic. The 1s poll ceiling keeps the
// loop responsive to shutdown between fetches.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     time.Second,
	})

	return &Consumer{reader: reader}
}

// Fetch blocks until a message is available or ctx is done. The message is
// not committed; call Commit once it has been fully handled.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	return c.reader.FetchMessage(ctx)
}

// Commit acknowledges msg with the broker, advancing the group offset for its
// partition past it.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset %d on %s[%d]: %w", msg.Offset, msg.Topic, msg.Partition, err)
	}
	return nil
}

// Close leaves the consumer group and releases the connection.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
