package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"github.com/DannyyLC/uaa-indexing/internal/types"
)

// ErrJobNotFound is returned when a job id has no row in the store.
var ErrJobNotFound = errors.New("job not found")

// Repository provides CRUD over indexing jobs and the audit trail. Every
// mutation is safe to call redundantly: redelivered messages may repeat
// status updates.
type Repository struct {
	store  *Store
	logger *slog.Logger
}

// NewRepository wraps a connected Store.
func NewRepository(store *Store) *Repository {
	return &Repository{
		store:  store,
		logger: slog.Default().With("component", "jobstore"),
	}
}

// CreateJob inserts a new job in pending state.
func (r *Repository) CreateJob(ctx context.Context, job *types.Job) error {
	now := time.Now().UTC()
	job.Status = types.StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	err := r.store.session.Query(
		`INSERT INTO indexing_jobs (id, user_id, filename, topic, mime_type, status, chunks_created, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, null, ?, ?)`,
		job.ID, job.UserID, job.Filename, job.Topic, job.MimeType, string(job.Status), job.CreatedAt, job.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}

	r.logger.Info("job created", "job_id", job.ID, "user_id", job.UserID, "filename", job.Filename, "topic", job.Topic)
	return nil
}

// GetJob fetches a job by id, returning ErrJobNotFound when absent.
func (r *Repository) GetJob(ctx context.Context, id string) (*types.Job, error) {
	var job types.Job
	var status string

	err := r.store.session.Query(
		`SELECT id, user_id, filename, topic, mime_type, status, chunks_created, error_message, created_at, updated_at
		 FROM indexing_jobs WHERE id = ?`,
		id,
	).WithContext(ctx).Scan(
		&job.ID, &job.UserID, &job.Filename, &job.Topic, &job.MimeType,
		&status, &job.ChunksCreated, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	job.Status = types.JobStatus(status)
	return &job, nil
}

// UpdateStatus sets the job's status and optional error message.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status types.JobStatus, errorMessage string) error {
	err := r.store.session.Query(
		`UPDATE indexing_jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), errorMessage, time.Now().UTC(), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update job %s to %s: %w", id, status, err)
	}

	r.logger.Info("job status updated", "job_id", id, "status", string(status))
	return nil
}

// MarkCompleted records a successful run with its final chunk count.
func (r *Repository) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	err := r.store.session.Query(
		`UPDATE indexing_jobs SET status = ?, chunks_created = ?, error_message = null, updated_at = ? WHERE id = ?`,
		string(types.StatusCompleted), chunkCount, time.Now().UTC(), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark job %s completed: %w", id, err)
	}

	r.logger.Info("job completed", "job_id", id, "chunks_created", chunkCount)
	return nil
}

// MarkFailed records a terminal failure. The error message is the only
// user-visible failure surface.
func (r *Repository) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	err := r.store.session.Query(
		`UPDATE indexing_jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(types.StatusFailed), errorMessage, time.Now().UTC(), id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}

	r.logger.Error("job failed", "job_id", id, "error", errorMessage)
	return nil
}

// MarkCancelled moves a job to cancelled, but only from pending or processing.
// The lightweight transaction keeps the transition monotonic even when a
// worker completes the job concurrently.
func (r *Repository) MarkCancelled(ctx context.Context, id string) (bool, error) {
	for _, from := range []types.JobStatus{types.StatusPending, types.StatusProcessing} {
		var prev string
		applied, err := r.store.session.Query(
			`UPDATE indexing_jobs SET status = ?, updated_at = ? WHERE id = ? IF status = ?`,
			string(types.StatusCancelled), time.Now().UTC(), id, string(from),
		).WithContext(ctx).ScanCAS(&prev)
		if err != nil {
			return false, fmt.Errorf("failed to cancel job %s: %w", id, err)
		}
		if applied {
			r.logger.Info("job cancelled", "job_id", id)
			return true, nil
		}
	}
	return false, nil
}

// ListJobs returns a user's jobs, newest first, optionally filtered by status
// and topic. A limit of zero or less means no cap.
func (r *Repository) ListJobs(ctx context.Context, userID string, status types.JobStatus, topic string, limit int) ([]types.Job, error) {
	iter := r.store.session.Query(
		`SELECT id, user_id, filename, topic, mime_type, status, chunks_created, error_message, created_at, updated_at
		 FROM indexing_jobs WHERE user_id = ?`,
		userID,
	).WithContext(ctx).Iter()

	var jobs []types.Job
	var job types.Job
	var st string
	for iter.Scan(&job.ID, &job.UserID, &job.Filename, &job.Topic, &job.MimeType,
		&st, &job.ChunksCreated, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt) {
		job.Status = types.JobStatus(st)
		if status != "" && job.Status != status {
			continue
		}
		if topic != "" && job.Topic != topic {
			continue
		}
		jobs = append(jobs, job)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list jobs for user %s: %w", userID, err)
	}

	sortJobsNewestFirst(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// ListTopics returns the distinct topics a user has completed jobs under.
func (r *Repository) ListTopics(ctx context.Context, userID string) ([]string, error) {
	jobs, err := r.ListJobs(ctx, userID, types.StatusCompleted, "", 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var topics []string
	for _, job := range jobs {
		if !seen[job.Topic] {
			seen[job.Topic] = true
			topics = append(topics, job.Topic)
		}
	}
	return topics, nil
}

// Stats aggregates a user's job counts by status plus total chunks indexed.
func (r *Repository) Stats(ctx context.Context, userID string) (map[string]int, error) {
	jobs, err := r.ListJobs(ctx, userID, "", "", 0)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{
		"pending": 0, "processing": 0, "completed": 0, "failed": 0, "cancelled": 0,
		"total": 0, "total_chunks": 0,
	}
	for _, job := range jobs {
		stats[string(job.Status)]++
		stats["total"]++
		stats["total_chunks"] += job.ChunksCreated
	}
	return stats, nil
}

// RecordAudit appends an immutable entry to the audit trail. Used by the DLQ
// consumer; records are operator-only and never shown to users.
func (r *Repository) RecordAudit(ctx context.Context, entry types.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := r.store.session.Query(
		`INSERT INTO audit_log (id, user_id, action, service, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		gocql.TimeUUID(), entry.UserID, entry.Action, entry.Service, entry.Detail, entry.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func sortJobsNewestFirst(jobs []types.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
