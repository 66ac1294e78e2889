package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyyLC/uaa-indexing/internal/chunker"
	"github.com/DannyyLC/uaa-indexing/internal/extractor"
	"github.com/DannyyLC/uaa-indexing/internal/jobstore"
	"github.com/DannyyLC/uaa-indexing/internal/types"
)

type fakeConsumer struct {
	committed []kafka.Message
}

func (f *fakeConsumer) Fetch(ctx context.Context) (kafka.Message, error) {
	return kafka.Message{}, io.EOF
}

func (f *fakeConsumer) Commit(ctx context.Context, msg kafka.Message) error {
	f.committed = append(f.committed, msg)
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeJobStore struct {
	jobs          map[string]*types.Job
	getErr        error
	statusUpdates []types.JobStatus
	completed     map[string]int
	failed        map[string]string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:      make(map[string]*types.Job),
		completed: make(map[string]int),
		failed:    make(map[string]string),
	}
}

func (f *fakeJobStore) GetJob(ctx context.Context, id string) (*types.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, jobstore.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobStore) UpdateStatus(ctx context.Context, id string, status types.JobStatus, errorMessage string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	if job, ok := f.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (f *fakeJobStore) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	f.completed[id] = chunkCount
	if job, ok := f.jobs[id]; ok {
		job.Status = types.StatusCompleted
	}
	return nil
}

func (f *fakeJobStore) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	f.failed[id] = errorMessage
	if job, ok := f.jobs[id]; ok {
		job.Status = types.StatusFailed
	}
	return nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

func (f *fakeEmbedder) EstimateTokens(texts []string) int { return len(texts) * 10 }

type fakeIndexer struct {
	indexed    int
	indexErr   error
	deletedFor []string
	deleteErr  error
}

func (f *fakeIndexer) IndexChunks(ctx context.Context, chunks []types.Chunk, embeddings [][]float32, userID, jobID, filename, topic string, metadata map[string]string) (int, error) {
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.indexed += len(chunks)
	return len(chunks), nil
}

func (f *fakeIndexer) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedFor = append(f.deletedFor, jobID)
	return 1, nil
}

type fakePublisher struct {
	retries    []types.JobMessage
	retryCount []int
	retryErr   error
	deadLetter []types.DLQMessage
}

func (f *fakePublisher) PublishRetry(ctx context.Context, msg types.JobMessage, retryCount int) error {
	if f.retryErr != nil {
		return f.retryErr
	}
	f.retries = append(f.retries, msg)
	f.retryCount = append(f.retryCount, retryCount)
	return nil
}

func (f *fakePublisher) PublishToDLQ(ctx context.Context, jobID string, original types.JobMessage, jobErr error) error {
	f.deadLetter = append(f.deadLetter, types.DLQMessage{
		JobID:           jobID,
		OriginalMessage: original,
		Error:           jobErr.Error(),
	})
	return nil
}

type fakeFiles struct {
	objects map[string]string
	getErr  error
	removed []string
}

func (f *fakeFiles) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	content, ok := f.objects[objectName]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader([]byte(content))), nil
}

func (f *fakeFiles) Remove(ctx context.Context, objectName string) error {
	f.removed = append(f.removed, objectName)
	return nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, filename, mimeType string, r io.Reader) (string, map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	return string(data), map[string]string{"format": "Plain text"}, nil
}

type fixture struct {
	worker   *Worker
	consumer *fakeConsumer
	jobs     *fakeJobStore
	producer *fakePublisher
	embedder *fakeEmbedder
	index    *fakeIndexer
	files    *fakeFiles
}

func newFixture() *fixture {
	f := &fixture{
		consumer: &fakeConsumer{},
		jobs:     newFakeJobStore(),
		producer: &fakePublisher{},
		embedder: &fakeEmbedder{},
		index:    &fakeIndexer{},
		files:    &fakeFiles{objects: make(map[string]string)},
	}
	f.worker = New(1, f.consumer, f.jobs, f.producer, f.embedder, f.index, f.files, fakeExtractor{}, chunker.New(100, 20), 3)
	return f
}

func (f *fixture) addJob(id string, status types.JobStatus) {
	f.jobs.jobs[id] = &types.Job{ID: id, UserID: "user-1", Status: status}
}

func message(t *testing.T, msg types.JobMessage) kafka.Message {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(msg.JobID), Value: data, Offset: 7}
}

func TestHandleMessageHappyPath(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusPending)
	f.files.objects["user-1/job-1/doc.txt"] = strings.Repeat("Interesting content here. ", 20)

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:    "job-1",
		UserID:   "user-1",
		FilePath: "user-1/job-1/doc.txt",
		Filename: "doc.txt",
		MimeType: "text/plain",
		Topic:    "notes",
	}))

	assert.Contains(t, f.jobs.statusUpdates, types.StatusProcessing)
	assert.Greater(t, f.jobs.completed["job-1"], 0)
	assert.Greater(t, f.index.indexed, 0)
	assert.Equal(t, []string{"user-1/job-1/doc.txt"}, f.files.removed)
	assert.Len(t, f.consumer.committed, 1)
	assert.Empty(t, f.producer.retries)
	assert.Empty(t, f.producer.deadLetter)
	// First delivery never triggers vector cleanup.
	assert.Empty(t, f.index.deletedFor)
}

func TestHandleMessageDispatchesByFilename(t *testing.T) {
	// curl and many SDKs send application/octet-stream or a parameterized
	// Content-Type; any upload the front door accepts must still dispatch.
	for _, mimeType := range []string{"application/octet-stream", "text/plain; charset=utf-8"} {
		t.Run(mimeType, func(t *testing.T) {
			f := newFixture()
			f.worker = New(1, f.consumer, f.jobs, f.producer, f.embedder, f.index, f.files,
				extractor.NewRegistry(), chunker.New(100, 20), 3)
			f.addJob("job-1", types.StatusPending)
			f.files.objects["user-1/job-1/doc.txt"] = strings.Repeat("Interesting content here. ", 20)

			f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
				JobID:    "job-1",
				UserID:   "user-1",
				FilePath: "user-1/job-1/doc.txt",
				Filename: "doc.txt",
				MimeType: mimeType,
				Topic:    "notes",
			}))

			assert.Greater(t, f.jobs.completed["job-1"], 0)
			assert.Empty(t, f.producer.retries)
			assert.Empty(t, f.producer.deadLetter)
			assert.Len(t, f.consumer.committed, 1)
		})
	}
}

func TestHandleMessageMalformedPayload(t *testing.T) {
	f := newFixture()

	f.worker.handleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})

	assert.Len(t, f.consumer.committed, 1)
	assert.Empty(t, f.jobs.statusUpdates)
}

func TestHandleMessageJobNotFound(t *testing.T) {
	f := newFixture()

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{JobID: "ghost"}))

	assert.Len(t, f.consumer.committed, 1)
	assert.Empty(t, f.jobs.statusUpdates)
	assert.Empty(t, f.producer.deadLetter)
}

func TestHandleMessageStoreUnavailable(t *testing.T) {
	f := newFixture()
	f.jobs.getErr = fmt.Errorf("scylla timeout")

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{JobID: "job-1"}))

	// Offset stays uncommitted so the delivery comes back.
	assert.Empty(t, f.consumer.committed)
}

func TestHandleMessageSkipsResolvedJobs(t *testing.T) {
	// Failed is included: a crash between MarkFailed and the offset commit
	// redelivers the message, and the redelivery must not flip the job back
	// to processing.
	for _, status := range []types.JobStatus{types.StatusCancelled, types.StatusCompleted, types.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture()
			f.addJob("job-1", status)

			f.worker.handleMessage(context.Background(), message(t, types.JobMessage{JobID: "job-1"}))

			assert.Len(t, f.consumer.committed, 1)
			assert.Empty(t, f.jobs.statusUpdates)
			assert.Equal(t, 0, f.embedder.calls)
			assert.Equal(t, status, f.jobs.jobs["job-1"].Status)
		})
	}
}

func TestHandleMessagePermanentFailure(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusPending)
	f.files.objects["user-1/job-1/doc.txt"] = "   \n\n   "

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:    "job-1",
		UserID:   "user-1",
		FilePath: "user-1/job-1/doc.txt",
		Filename: "doc.txt",
		MimeType: "text/plain",
	}))

	assert.Contains(t, f.jobs.failed["job-1"], "no extractable text")
	assert.Len(t, f.consumer.committed, 1)
	// Permanent failures never reach the retry queue or the DLQ.
	assert.Empty(t, f.producer.retries)
	assert.Empty(t, f.producer.deadLetter)
}

func TestHandleMessageRetryableFailure(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusPending)
	f.files.objects["user-1/job-1/doc.txt"] = "real content worth indexing"
	f.embedder.err = fmt.Errorf("provider unavailable")

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:      "job-1",
		UserID:     "user-1",
		FilePath:   "user-1/job-1/doc.txt",
		Filename:   "doc.txt",
		MimeType:   "text/plain",
		RetryCount: 1,
	}))

	require.Len(t, f.producer.retries, 1)
	assert.Equal(t, []int{2}, f.producer.retryCount)
	assert.Len(t, f.consumer.committed, 1)
	assert.Empty(t, f.producer.deadLetter)
	// Status stays processing across scheduled retries; failed is never set.
	assert.Empty(t, f.jobs.failed)
}

func TestHandleMessageRetriesExhausted(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusPending)
	f.files.objects["user-1/job-1/doc.txt"] = "real content worth indexing"
	f.embedder.err = fmt.Errorf("provider unavailable")

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:      "job-1",
		UserID:     "user-1",
		FilePath:   "user-1/job-1/doc.txt",
		Filename:   "doc.txt",
		MimeType:   "text/plain",
		RetryCount: 3,
	}))

	require.Len(t, f.producer.deadLetter, 1)
	assert.Equal(t, "job-1", f.producer.deadLetter[0].JobID)
	assert.Equal(t, 3, f.producer.deadLetter[0].OriginalMessage.RetryCount)
	assert.Contains(t, f.jobs.failed["job-1"], "max retries exceeded")
	assert.Len(t, f.consumer.committed, 1)
	assert.Empty(t, f.producer.retries)
}

func TestHandleMessageRepublishFailureKeepsOffset(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusPending)
	f.files.objects["user-1/job-1/doc.txt"] = "real content worth indexing"
	f.embedder.err = fmt.Errorf("provider unavailable")
	f.producer.retryErr = fmt.Errorf("broker down")

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:    "job-1",
		UserID:   "user-1",
		FilePath: "user-1/job-1/doc.txt",
		Filename: "doc.txt",
		MimeType: "text/plain",
	}))

	assert.Empty(t, f.consumer.committed)
}

func TestHandleMessageRetryCleansStaleVectors(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusProcessing)
	f.files.objects["user-1/job-1/doc.txt"] = "real content worth indexing"

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:      "job-1",
		UserID:     "user-1",
		FilePath:   "user-1/job-1/doc.txt",
		Filename:   "doc.txt",
		MimeType:   "text/plain",
		RetryCount: 2,
	}))

	assert.Equal(t, []string{"job-1"}, f.index.deletedFor)
	assert.Greater(t, f.jobs.completed["job-1"], 0)
}

func TestHandleMessageCleanupFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusProcessing)
	f.files.objects["user-1/job-1/doc.txt"] = "real content worth indexing"
	f.index.deleteErr = fmt.Errorf("scroll timeout")

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:      "job-1",
		UserID:     "user-1",
		FilePath:   "user-1/job-1/doc.txt",
		Filename:   "doc.txt",
		MimeType:   "text/plain",
		RetryCount: 1,
	}))

	assert.Greater(t, f.jobs.completed["job-1"], 0)
	assert.Len(t, f.consumer.committed, 1)
}

func TestHandleMessageStorageFailureIsRetryable(t *testing.T) {
	f := newFixture()
	f.addJob("job-1", types.StatusPending)
	f.files.getErr = fmt.Errorf("minio unreachable")

	f.worker.handleMessage(context.Background(), message(t, types.JobMessage{
		JobID:    "job-1",
		UserID:   "user-1",
		FilePath: "user-1/job-1/doc.txt",
		MimeType: "text/plain",
	}))

	require.Len(t, f.producer.retries, 1)
	assert.Equal(t, []int{1}, f.producer.retryCount)
}
