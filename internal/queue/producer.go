package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DannyyLC/uaa-indexing/internal/types"
)

// messageWriter is the slice of kafka.Writer the producer needs. Tests swap in
// an in-memory implementation.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ProducerConfig locates the broker and names the two topics.
type ProducerConfig struct {
	Brokers    []string
	QueueTopic string
	DLQTopic   string
}

// Producer publishes job messages onto the partitioned indexing queue and the
// dead-letter topic. All messages are keyed by job_id so the broker's hash
// partitioning keeps per-job ordering, including across retries.
type Producer struct {
	queue  messageWriter
	dlq    messageWriter
	logger *slog.Logger

	queueWriter *kafka.Writer
	dlqWriter   *kafka.Writer
}

// NewProducer builds a Producer with durable-acknowledgment, gzip-compressed
// writers for both topics.
func NewProducer(cfg ProducerConfig) *Producer {
	queueWriter := newWriter(cfg.Brokers, cfg.QueueTopic)
	dlqWriter := newWriter(cfg.Brokers, cfg.DLQTopic)

	return &Producer{
		queue:       queueWriter,
		dlq:         dlqWriter,
		queueWriter: queueWriter,
		dlqWriter:   dlqWriter,
		logger:      slog.Default().With("component", "producer"),
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Publish enqueues a fresh indexing job. It returns only after the broker has
// acknowledged the write.
func (p *Producer) Publish(ctx context.Context, msg types.JobMessage) error {
	if err := p.write(ctx, p.queue, msg.JobID, msg); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", msg.JobID, err)
	}
	p.logger.Info("job published", "job_id", msg.JobID, "filename", msg.Filename)
	return nil
}

// PublishRetry re-enqueues a job after a transient failure, stamping the new
// retry count. The job_id key guarantees the retry lands on the same partition
// as the original delivery.
func (p *Producer) PublishRetry(ctx context.Context, msg types.JobMessage, retryCount int) error {
	now := time.Now().UTC()
	msg.RetryCount = retryCount
	msg.RetriedAt = &now

	if err := p.write(ctx, p.queue, msg.JobID, msg); err != nil {
		return fmt.Errorf("failed to re-publish job %s: %w", msg.JobID, err)
	}
	p.logger.Warn("job re-queued for retry", "job_id", msg.JobID, "retry_count", retryCount)
	return nil
}

// PublishToDLQ moves a permanently failed job to the dead-letter topic,
// embedding the full original message for forensic replay.
func (p *Producer) PublishToDLQ(ctx context.Context, jobID string, original types.JobMessage, jobErr error) error {
	msg := types.DLQMessage{
		JobID:           jobID,
		OriginalMessage: original,
		Error:           jobErr.Error(),
		FailedAt:        time.Now().UTC(),
	}

	if err := p.write(ctx, p.dlq, jobID, msg); err != nil {
		return fmt.Errorf("failed to publish job %s to DLQ: %w", jobID, err)
	}
	p.logger.Error("job sent to DLQ", "job_id", jobID, "err", jobErr.Error())
	return nil
}

func (p *Producer) write(ctx context.Context, w messageWriter, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	})
}

// Close flushes and closes both writers.
func (p *Producer) Close() error {
	if err := p.queueWriter.Close(); err != nil {
		return err
	}
	return p.dlqWriter.Close()
}
