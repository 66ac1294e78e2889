package dlq

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DannyyLC/uaa-indexing/internal/types"
)

// MessageSource is the dead-letter topic subscription.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
	Close() error
}

// AuditSink records dead-lettered jobs for operator review.
type AuditSink interface {
	RecordAudit(ctx context.Context, entry types.AuditEntry) error
}

const (
	auditAction  = "indexing.dlq"
	auditService = "indexing"

	fetchErrorBackoff = 5 * time.Second
)

// Consumer drains the dead-letter topic and writes one audit record per
// failed job. Dead letters are terminal: nothing here ever republishes to the
// work queue, replay is a deliberate operator action.
type Consumer struct {
	source MessageSource
	audit  AuditSink
	logger *slog.Logger
}

func NewConsumer(source MessageSource, audit AuditSink) *Consumer {
	return &Consumer{
		source: source,
		audit:  audit,
		logger: slog.Default().With("component", "dlq-consumer"),
	}
}

// Run drains the topic until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.source.Close()

	c.logger.Info("dlq consumer started")

	for {
		msg, err := c.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("dlq consumer stopping")
				return nil
			}
			c.logger.Error("fetch failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		c.handleMessage(ctx, msg)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, raw kafka.Message) {
	var msg types.DLQMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		c.logger.Error("unparseable dead letter, skipping", "partition", raw.Partition, "offset", raw.Offset, "err", err)
		c.commit(ctx, raw)
		return
	}

	logger := c.logger.With("job_id", msg.JobID, "user_id", msg.OriginalMessage.UserID)
	logger.Error("dead-lettered job received",
		"filename", msg.OriginalMessage.Filename,
		"topic", msg.OriginalMessage.Topic,
		"retry_count", msg.OriginalMessage.RetryCount,
		"error", msg.Error,
	)

	detail, err := json.Marshal(map[string]any{
		"job_id":      msg.JobID,
		"filename":    msg.OriginalMessage.Filename,
		"topic":       msg.OriginalMessage.Topic,
		"retry_count": msg.OriginalMessage.RetryCount,
		"error":       msg.Error,
		"failed_at":   msg.FailedAt,
	})
	if err != nil {
		logger.Error("failed to encode audit detail", "err", err)
		c.commit(ctx, raw)
		return
	}

	entry := types.AuditEntry{
		UserID:  msg.OriginalMessage.UserID,
		Action:  auditAction,
		Service: auditService,
		Detail:  string(detail),
	}
	if err := c.audit.RecordAudit(ctx, entry); err != nil {
		// Keep the offset: the record must land eventually, redelivery is
		// harmless because the audit trail is append-only per delivery.
		logger.Error("failed to record audit entry", "err", err)
		return
	}

	c.commit(ctx, raw)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.source.Commit(ctx, msg); err != nil {
		c.logger.Error("failed to commit offset", "partition", msg.Partition, "offset", msg.Offset, "err", err)
	}
}
