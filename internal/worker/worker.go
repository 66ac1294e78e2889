package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DannyyLC/uaa-indexing/internal/chunker"
	"github.com/DannyyLC/uaa-indexing/internal/jobstore"
	"github.com/DannyyLC/uaa-indexing/internal/types"
)

// MessageSource is one consumer-group member feeding this worker.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
	Close() error
}

// JobStore is the slice of the job repository the worker mutates.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*types.Job, error)
	UpdateStatus(ctx context.Context, id string, status types.JobStatus, errorMessage string) error
	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
	EstimateTokens(texts []string) int
}

// VectorIndexer upserts and deletes chunk vectors.
type VectorIndexer interface {
	IndexChunks(ctx context.Context, chunks []types.Chunk, embeddings [][]float32, userID, jobID, filename, topic string, metadata map[string]string) (int, error)
	DeleteByJob(ctx context.Context, jobID string) (int, error)
}

// RetryPublisher re-enqueues retryable jobs and dead-letters exhausted ones.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, msg types.JobMessage, retryCount int) error
	PublishToDLQ(ctx context.Context, jobID string, original types.JobMessage, jobErr error) error
}

// FileStore reads and removes the uploaded document objects.
type FileStore interface {
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectName string) error
}

// TextExtractor resolves a format extractor and runs it.
type TextExtractor interface {
	Extract(ctx context.Context, filename, mimeType string, r io.Reader) (string, map[string]string, error)
}

// fetchErrorBackoff paces the loop when the broker misbehaves, so a flapping
// connection does not spin the CPU.
const fetchErrorBackoff = 5 * time.Second

// Worker consumes indexing jobs from the queue and drives each one through
// extraction, chunking, embedding and vector indexing. One message is handled
// at a time; the offset is committed only after the message is fully resolved
// (completed, permanently failed, re-queued or dead-lettered), so a crash
// mid-job means redelivery, and the status check at the top of every delivery
// makes that redelivery a no-op for finished or cancelled jobs.
type Worker struct {
	id         int
	consumer   MessageSource
	jobs       JobStore
	producer   RetryPublisher
	embedder   Embedder
	index      VectorIndexer
	files      FileStore
	extractor  TextExtractor
	splitter   *chunker.Splitter
	maxRetries int
	logger     *slog.Logger
}

// New wires a worker instance. All collaborators are injected; nothing is
// reached through ambient globals.
func New(id int, consumer MessageSource, jobs JobStore, producer RetryPublisher, embedder Embedder, index VectorIndexer, files FileStore, extractor TextExtractor, splitter *chunker.Splitter, maxRetries int) *Worker {
	return &Worker{
		id:         id,
		consumer:   consumer,
		jobs:       jobs,
		producer:   producer,
		embedder:   embedder,
		index:      index,
		files:      files,
		extractor:  extractor,
		splitter:   splitter,
		maxRetries: maxRetries,
		logger:     slog.Default().With("component", "worker", "worker_id", id),
	}
}

// Run is the pull loop. It exits when ctx is cancelled; an in-flight message
// finishes its current step first and its offset stays uncommitted if it was
// interrupted before resolution.
func (w *Worker) Run(ctx context.Context) error {
	defer w.consumer.Close()

	w.logger.Info("worker started")

	for {
		msg, err := w.consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return nil
			}
			w.logger.Error("fetch failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		w.handleMessage(ctx, msg)
	}
}

// handleMessage resolves one delivery end to end.
func (w *Worker) handleMessage(ctx context.Context, raw kafka.Message) {
	var msg types.JobMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		// Malformed payloads can never succeed; drop them past the offset.
		w.logger.Error("unparseable message, skipping", "partition", raw.Partition, "offset", raw.Offset, "err", err)
		w.commit(ctx, raw)
		return
	}

	logger := w.logger.With("job_id", msg.JobID, "partition", raw.Partition, "offset", raw.Offset)
	logger.Info("processing job", "filename", msg.Filename, "retry_count", msg.RetryCount)

	job, err := w.jobs.GetJob(ctx, msg.JobID)
	if errors.Is(err, jobstore.ErrJobNotFound) {
		logger.Warn("job not found in store, skipping")
		w.commit(ctx, raw)
		return
	}
	if err != nil {
		// Store unavailable: leave the offset uncommitted so the message is
		// redelivered after restart or rebalance.
		logger.Error("failed to look up job", "err", err)
		return
	}

	// Idempotency guard: redeliveries of finished work and stale cancel races
	// are acknowledged without doing anything. Failed is terminal too: a crash
	// between MarkFailed and the commit must not resurrect the job.
	if job.Status.IsTerminal() {
		logger.Info("job already resolved, skipping", "status", string(job.Status))
		w.commit(ctx, raw)
		return
	}

	if err := w.jobs.UpdateStatus(ctx, msg.JobID, types.StatusProcessing, ""); err != nil {
		logger.Error("failed to mark job processing", "err", err)
		return
	}

	procErr := w.processJob(ctx, &msg)
	if procErr == nil {
		w.commit(ctx, raw)
		logger.Info("job committed")
		return
	}

	if types.IsPermanent(procErr) {
		// Cannot succeed on retry: fail it now, no DLQ.
		logger.Error("job failed permanently", "err", procErr)
		if err := w.jobs.MarkFailed(ctx, msg.JobID, procErr.Error()); err != nil {
			logger.Error("failed to mark job failed", "err", err)
			return
		}
		w.commit(ctx, raw)
		return
	}

	w.scheduleRetry(ctx, raw, msg, procErr, logger)
}

// scheduleRetry routes a retryable failure: re-publish with an incremented
// retry count while attempts remain, dead-letter once they are exhausted.
// Either way the original offset is committed so the partition keeps moving.
func (w *Worker) scheduleRetry(ctx context.Context, raw kafka.Message, msg types.JobMessage, procErr error, logger *slog.Logger) {
	if msg.RetryCount < w.maxRetries {
		logger.Warn("job failed, scheduling retry", "err", procErr, "attempt", msg.RetryCount+1, "max_retries", w.maxRetries)
		if err := w.producer.PublishRetry(ctx, msg, msg.RetryCount+1); err != nil {
			// Re-publish failed: keep the offset so the broker redelivers the
			// original instead of losing the job.
			logger.Error("failed to re-publish job", "err", err)
			return
		}
		w.commit(ctx, raw)
		return
	}

	logger.Error("job exhausted retries, sending to DLQ", "err", procErr, "retry_count", msg.RetryCount)
	if err := w.producer.PublishToDLQ(ctx, msg.JobID, msg, procErr); err != nil {
		logger.Error("failed to publish to DLQ", "err", err)
		return
	}
	if err := w.jobs.MarkFailed(ctx, msg.JobID, fmt.Sprintf("max retries exceeded: %s", procErr)); err != nil {
		logger.Error("failed to mark job failed", "err", err)
	}
	w.commit(ctx, raw)
}

// processJob runs extraction → chunking → embedding → indexing for one job.
// A returned PermanentError means the job can never succeed; any other error
// is a transient failure eligible for retry.
func (w *Worker) processJob(ctx context.Context, msg *types.JobMessage) error {
	logger := w.logger.With("job_id", msg.JobID)

	reader, err := w.files.Get(ctx, msg.FilePath)
	if err != nil {
		return fmt.Errorf("failed to fetch document: %w", err)
	}
	defer reader.Close()

	text, docMeta, err := w.extractor.Extract(ctx, msg.Filename, msg.MimeType, reader)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return types.Permanentf("document has no extractable text")
	}
	logger.Info("text extracted", "chars", len(text), "pages", docMeta["pages"])

	chunkMeta := make(map[string]any, len(docMeta)+len(msg.Metadata)+2)
	for k, v := range docMeta {
		chunkMeta[k] = v
	}
	for k, v := range msg.Metadata {
		chunkMeta[k] = v
	}
	chunkMeta["source"] = msg.Filename
	chunkMeta["topic"] = msg.Topic

	chunks := w.splitter.Split(text, chunkMeta)
	if len(chunks) == 0 {
		return types.Permanentf("no chunks generated from document")
	}
	logger.Info("document chunked", "chunks", len(chunks))

	// A retry may have left vectors behind from a partial earlier attempt.
	// Best effort: duplicates are bounded, not fatal.
	if msg.RetryCount > 0 {
		if deleted, err := w.index.DeleteByJob(ctx, msg.JobID); err != nil {
			logger.Warn("failed to clean up vectors from previous attempt", "err", err)
		} else if deleted > 0 {
			logger.Info("removed stale vectors from previous attempt", "count", deleted)
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	w.embedder.EstimateTokens(texts)

	embeddings, err := w.embedder.GenerateBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("mismatch: %d chunks vs %d embeddings", len(chunks), len(embeddings))
	}

	indexed, err := w.index.IndexChunks(ctx, chunks, embeddings, msg.UserID, msg.JobID, msg.Filename, msg.Topic, mergeStringMeta(docMeta, msg.Metadata))
	if err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	logger.Info("chunks indexed", "count", indexed)

	if err := w.jobs.MarkCompleted(ctx, msg.JobID, len(chunks)); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	// The uploaded object is a temporary artifact; losing the delete only
	// leaks storage, never correctness.
	if err := w.files.Remove(ctx, msg.FilePath); err != nil {
		logger.Warn("failed to remove uploaded object", "object", msg.FilePath, "err", err)
	}

	return nil
}

func (w *Worker) commit(ctx context.Context, msg kafka.Message) {
	if err := w.consumer.Commit(ctx, msg); err != nil {
		w.logger.Error("failed to commit offset", "partition", msg.Partition, "offset", msg.Offset, "err", err)
	}
}

func mergeStringMeta(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
