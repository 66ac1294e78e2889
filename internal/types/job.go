package types

import "time"

// JobStatus is the lifecycle state of an indexing job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
// Transitions are monotonic: pending → processing → {completed|failed},
// with cancelled reachable only from pending or processing.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	}
	return false
}

// Job is one document-indexing work item tracked in the job store.
type Job struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Filename      string    `json:"filename"`
	Topic         string    `json:"topic"`
	MimeType      string    `json:"mime_type"`
	Status        JobStatus `json:"status"`
	ChunksCreated int       `json:"chunks_created"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobMessage is the queue payload for one indexing job. The message key on
// the broker is always JobID so retries of a job land on the same partition.
type JobMessage struct {
	JobID      string            `json:"job_id"`
	UserID     string            `json:"user_id"`
	FilePath   string            `json:"file_path"`
	Filename   string            `json:"filename"`
	MimeType   string            `json:"mime_type"`
	Topic      string            `json:"topic"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RetryCount int               `json:"retry_count"`
	CreatedAt  time.Time         `json:"created_at"`
	RetriedAt  *time.Time        `json:"retried_at,omitempty"`
}

// DLQMessage is the dead-letter payload: the full original message plus the
// error that exhausted its retries, kept for forensic replay.
type DLQMessage struct {
	JobID           string     `json:"job_id"`
	OriginalMessage JobMessage `json:"original_message"`
	Error           string     `json:"error"`
	FailedAt        time.Time  `json:"failed_at"`
}

// Chunk is a bounded fragment of a document, the unit that gets embedded and
// indexed. Chunks are derived in memory per job and never persisted on their own.
type Chunk struct {
	Text      string
	Index     int
	StartChar int
	EndChar   int
	Metadata  map[string]any
}

// AuditEntry is one immutable record written by the DLQ consumer.
type AuditEntry struct {
	UserID    string
	Action    string
	Service   string
	Detail    string
	CreatedAt time.Time
}
