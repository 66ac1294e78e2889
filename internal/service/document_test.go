package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyyLC/uaa-indexing/internal/types"
)

type fakeJobStore struct {
	created   []*types.Job
	jobs      map[string]*types.Job
	cancelled map[string]bool
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:      make(map[string]*types.Job),
		cancelled: make(map[string]bool),
	}
}

func (f *fakeJobStore) CreateJob(ctx context.Context, job *types.Job) error {
	f.created = append(f.created, job)
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, id string) (*types.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	return job, nil
}

func (f *fakeJobStore) ListJobs(ctx context.Context, userID string, status types.JobStatus, topic string, limit int) ([]types.Job, error) {
	return nil, nil
}

func (f *fakeJobStore) ListTopics(ctx context.Context, userID string) ([]string, error) {
	return []string{"physics"}, nil
}

func (f *fakeJobStore) Stats(ctx context.Context, userID string) (map[string]int, error) {
	return map[string]int{"total": 0}, nil
}

func (f *fakeJobStore) MarkCancelled(ctx context.Context, id string) (bool, error) {
	job, ok := f.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = types.StatusCancelled
	f.cancelled[id] = true
	return true, nil
}

type fakePublisher struct {
	published []types.JobMessage
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, msg types.JobMessage) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeFiles struct {
	stored map[string]int64
}

func (f *fakeFiles) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	if f.stored == nil {
		f.stored = make(map[string]int64)
	}
	f.stored[objectName] = size
	return nil
}

type fakeVectors struct {
	deletedFor    []string
	deletedTopics []string
}

func (f *fakeVectors) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	f.deletedFor = append(f.deletedFor, jobID)
	return 2, nil
}

func (f *fakeVectors) DeleteByUserAndTopic(ctx context.Context, userID, topic string) (int, error) {
	f.deletedTopics = append(f.deletedTopics, userID+"/"+topic)
	return 5, nil
}

func (f *fakeVectors) CollectionInfo(ctx context.Context) (map[string]any, error) {
	return map[string]any{"points_count": uint64(12)}, nil
}

type fakeChecker struct{}

func (fakeChecker) Supports(filenameOrType string) bool {
	for _, suffix := range []string{".pdf", ".txt", ".md", ".docx"} {
		if strings.HasSuffix(strings.ToLower(filenameOrType), suffix) {
			return true
		}
	}
	return false
}

type fixture struct {
	svc      *Document
	jobs     *fakeJobStore
	producer *fakePublisher
	files    *fakeFiles
	vectors  *fakeVectors
}

func newFixture() *fixture {
	f := &fixture{
		jobs:     newFakeJobStore(),
		producer: &fakePublisher{},
		files:    &fakeFiles{},
		vectors:  &fakeVectors{},
	}
	f.svc = NewDocument(f.jobs, f.producer, f.files, f.vectors, fakeChecker{})
	return f
}

func upload(filename, topic string) *Upload {
	return &Upload{
		Filename: filename,
		MimeType: "text/plain",
		Topic:    topic,
		Size:     42,
		Content:  strings.NewReader("content"),
	}
}

func TestAccept(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Accept(context.Background(), "user-1", upload("notes.txt", "biology"))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "notes.txt", resp.Filename)
	assert.Equal(t, "biology", resp.Topic)

	require.Len(t, f.jobs.created, 1)
	assert.Equal(t, resp.JobID, f.jobs.created[0].ID)
	assert.Equal(t, "user-1", f.jobs.created[0].UserID)

	require.Len(t, f.producer.published, 1)
	msg := f.producer.published[0]
	assert.Equal(t, resp.JobID, msg.JobID)
	assert.Equal(t, "user-1/"+resp.JobID+"/notes.txt", msg.FilePath)
	assert.Equal(t, 0, msg.RetryCount)

	assert.Contains(t, f.files.stored, msg.FilePath)
}

func TestAcceptValidation(t *testing.T) {
	f := newFixture()

	t.Run("missing user", func(t *testing.T) {
		_, err := f.svc.Accept(context.Background(), "  ", upload("notes.txt", "bio"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "userID is required")
	})

	t.Run("missing topic", func(t *testing.T) {
		_, err := f.svc.Accept(context.Background(), "user-1", upload("notes.txt", " "))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "topic is required")
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := f.svc.Accept(context.Background(), "user-1", &Upload{
			Filename: "archive.zip",
			MimeType: "application/zip",
			Topic:    "bio",
			Content:  strings.NewReader(""),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported file type")
	})
}

func TestAcceptStripsPathFromFilename(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Accept(context.Background(), "user-1", upload("../../etc/passwd.txt", "bio"))
	require.NoError(t, err)
	assert.Equal(t, "passwd.txt", resp.Filename)
}

func TestGetJobOwnership(t *testing.T) {
	f := newFixture()
	f.jobs.jobs["job-1"] = &types.Job{ID: "job-1", UserID: "user-1"}

	job, err := f.svc.GetJob(context.Background(), "user-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)

	_, err = f.svc.GetJob(context.Background(), "user-2", "job-1")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestCancel(t *testing.T) {
	t.Run("pending job cancels and cleans vectors", func(t *testing.T) {
		f := newFixture()
		f.jobs.jobs["job-1"] = &types.Job{ID: "job-1", UserID: "user-1", Status: types.StatusPending}

		cancelled, err := f.svc.Cancel(context.Background(), "user-1", "job-1")
		require.NoError(t, err)
		assert.True(t, cancelled)
		assert.Equal(t, []string{"job-1"}, f.vectors.deletedFor)
	})

	t.Run("finished job is not cancellable", func(t *testing.T) {
		f := newFixture()
		f.jobs.jobs["job-1"] = &types.Job{ID: "job-1", UserID: "user-1", Status: types.StatusCompleted}

		cancelled, err := f.svc.Cancel(context.Background(), "user-1", "job-1")
		require.NoError(t, err)
		assert.False(t, cancelled)
		assert.Empty(t, f.vectors.deletedFor)
	})

	t.Run("other users cannot cancel", func(t *testing.T) {
		f := newFixture()
		f.jobs.jobs["job-1"] = &types.Job{ID: "job-1", UserID: "user-1", Status: types.StatusPending}

		_, err := f.svc.Cancel(context.Background(), "user-2", "job-1")
		assert.ErrorIs(t, err, ErrNotOwner)
	})
}

func TestDeleteTopic(t *testing.T) {
	f := newFixture()

	deleted, err := f.svc.DeleteTopic(context.Background(), "user-1", "physics")
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)
	assert.Equal(t, []string{"user-1/physics"}, f.vectors.deletedTopics)

	_, err = f.svc.DeleteTopic(context.Background(), "user-1", "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic is required")
}

func TestStatsIncludesCollectionInfo(t *testing.T) {
	f := newFixture()

	stats, err := f.svc.Stats(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats["total"])

	info, ok := stats["collection"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, uint64(12), info["points_count"])
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "doc.pdf", SanitizeFilename("doc.pdf"))
	assert.Equal(t, "doc.pdf", SanitizeFilename("  doc.pdf  "))
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "doc.pdf", SanitizeFilename("C:\\Users\\victim\\doc.pdf"))
	assert.Equal(t, "", SanitizeFilename(".."))
	assert.Equal(t, "", SanitizeFilename("   "))
	assert.Equal(t, "evil.txt", SanitizeFilename("evil\x00\x1f.txt"))
}
