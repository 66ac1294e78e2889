package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DannyyLC/uaa-indexing/internal/storage"
	"github.com/DannyyLC/uaa-indexing/internal/types"
)

// JobStore is the slice of the job repository the front door needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id string) (*types.Job, error)
	ListJobs(ctx context.Context, userID string, status types.JobStatus, topic string, limit int) ([]types.Job, error)
	ListTopics(ctx context.Context, userID string) ([]string, error)
	Stats(ctx context.Context, userID string) (map[string]int, error)
	MarkCancelled(ctx context.Context, id string) (bool, error)
}

// Publisher enqueues freshly accepted jobs.
type Publisher interface {
	Publish(ctx context.Context, msg types.JobMessage) error
}

// FileStore persists the uploaded bytes until a worker picks them up.
type FileStore interface {
	Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
}

// VectorStore is the slice of the vector index the front door needs: cleanup
// for cancellations and topic deletion, plus collection stats.
type VectorStore interface {
	DeleteByJob(ctx context.Context, jobID string) (int, error)
	DeleteByUserAndTopic(ctx context.Context, userID, topic string) (int, error)
	CollectionInfo(ctx context.Context) (map[string]any, error)
}

// TypeChecker gates uploads to formats the pipeline can extract.
type TypeChecker interface {
	Supports(filenameOrType string) bool
}

// ErrNotOwner is returned when a user addresses another user's job.
var ErrNotOwner = fmt.Errorf("job belongs to another user")

// Document accepts uploads, tracks job state and exposes read views over it.
// Acceptance is the synchronous half of the pipeline: store the bytes, create
// the job row, publish the message, answer immediately. Everything heavy
// happens in the workers.
type Document struct {
	jobs     JobStore
	producer Publisher
	files    FileStore
	vectors  VectorStore
	formats  TypeChecker
	logger   *slog.Logger
}

func NewDocument(jobs JobStore, producer Publisher, files FileStore, vectors VectorStore, formats TypeChecker) *Document {
	return &Document{
		jobs:     jobs,
		producer: producer,
		files:    files,
		vectors:  vectors,
		formats:  formats,
		logger:   slog.Default().With("component", "document-service"),
	}
}

// Upload holds one accepted document submission.
type Upload struct {
	Filename string
	MimeType string
	Topic    string
	Size     int64
	Metadata map[string]string
	Content  io.Reader
}

// UploadResponse is the acceptance receipt. The job id is the handle for all
// later status queries.
type UploadResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Topic    string `json:"topic"`
}

// Accept validates the upload, stores it, records the job and enqueues it.
func (d *Document) Accept(ctx context.Context, userID string, up *Upload) (*UploadResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("userID is required")
	}

	filename := SanitizeFilename(up.Filename)
	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	topic := strings.TrimSpace(up.Topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	if !d.formats.Supports(filename) && !d.formats.Supports(up.MimeType) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	jobID := uuid.NewString()
	objectName := storage.ObjectName(userID, jobID, filename)

	if err := d.files.Put(ctx, objectName, up.Content, up.Size, up.MimeType); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	job := &types.Job{
		ID:       jobID,
		UserID:   userID,
		Filename: filename,
		Topic:    topic,
		MimeType: up.MimeType,
	}
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msg := types.JobMessage{
		JobID:     jobID,
		UserID:    userID,
		FilePath:  objectName,
		Filename:  filename,
		MimeType:  up.MimeType,
		Topic:     topic,
		Metadata:  up.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.producer.Publish(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	d.logger.Info("upload accepted", "job_id", jobID, "user_id", userID, "filename", filename, "topic", topic, "size", up.Size)

	return &UploadResponse{
		JobID:    jobID,
		Status:   string(types.StatusPending),
		Filename: filename,
		Topic:    topic,
	}, nil
}

// GetJob returns a job after checking the caller owns it.
func (d *Document) GetJob(ctx context.Context, userID, jobID string) (*types.Job, error) {
	job, err := d.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotOwner
	}
	return job, nil
}

// ListJobs returns the caller's jobs, newest first.
func (d *Document) ListJobs(ctx context.Context, userID string, status types.JobStatus, topic string, limit int) ([]types.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return d.jobs.ListJobs(ctx, userID, status, topic, limit)
}

// Cancel moves a job to cancelled if it has not finished, then removes any
// vectors an in-flight worker may already have written. Cancellation is
// cooperative: a worker mid-job finishes its attempt, but redelivery is
// skipped once the status reads cancelled.
func (d *Document) Cancel(ctx context.Context, userID, jobID string) (bool, error) {
	job, err := d.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.UserID != userID {
		return false, ErrNotOwner
	}

	cancelled, err := d.jobs.MarkCancelled(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !cancelled {
		return false, nil
	}

	if deleted, err := d.vectors.DeleteByJob(ctx, jobID); err != nil {
		d.logger.Warn("failed to clean up vectors for cancelled job", "job_id", jobID, "err", err)
	} else if deleted > 0 {
		d.logger.Info("removed vectors for cancelled job", "job_id", jobID, "count", deleted)
	}

	return true, nil
}

// Topics lists the distinct topics the caller has indexed documents under.
func (d *Document) Topics(ctx context.Context, userID string) ([]string, error) {
	return d.jobs.ListTopics(ctx, userID)
}

// DeleteTopic removes every vector the caller has indexed under topic and
// returns how many points were dropped.
func (d *Document) DeleteTopic(ctx context.Context, userID, topic string) (int, error) {
	if strings.TrimSpace(topic) == "" {
		return 0, fmt.Errorf("topic is required")
	}

	deleted, err := d.vectors.DeleteByUserAndTopic(ctx, userID, topic)
	if err != nil {
		return 0, fmt.Errorf("failed to delete topic %s: %w", topic, err)
	}

	d.logger.Info("topic deleted", "user_id", userID, "topic", topic, "vectors_removed", deleted)
	return deleted, nil
}

// Stats aggregates the caller's job counts by status plus collection-level
// vector counts.
func (d *Document) Stats(ctx context.Context, userID string) (map[string]any, error) {
	jobStats, err := d.jobs.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]any, len(jobStats)+1)
	for k, v := range jobStats {
		stats[k] = v
	}

	// Collection info is deployment-wide and advisory; its absence never
	// fails the endpoint.
	if info, err := d.vectors.CollectionInfo(ctx); err != nil {
		d.logger.Warn("failed to fetch collection info", "err", err)
	} else {
		stats["collection"] = info
	}

	return stats, nil
}

// SanitizeFilename strips any path components and control characters from a
// client-supplied filename, keeping only its base name.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == ".." || name == "/" {
		return ""
	}

	var sb strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
