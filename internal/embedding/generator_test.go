package embedding

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient scripts provider responses per call.
type fakeClient struct {
	calls     [][]string
	failUntil int
	failWith  error
	dimension int
}

func (f *fakeClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if len(f.calls) <= f.failUntil {
		return nil, f.failWith
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dimension)
		vec[0] = float32(len(texts[i]))
		vectors[i] = vec
	}
	return vectors, nil
}

func newTestGenerator(client *fakeClient, cfg Config) *Generator {
	g := NewWithClient(client, cfg)
	g.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return g
}

func TestGenerateBatchEmpty(t *testing.T) {
	g := newTestGenerator(&fakeClient{dimension: 4}, Config{Dimension: 4})

	vectors, err := g.GenerateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestGenerateBatchPreservesPositions(t *testing.T) {
	client := &fakeClient{dimension: 4}
	g := newTestGenerator(client, Config{Dimension: 4})

	vectors, err := g.GenerateBatch(context.Background(), []string{"aa", "bbbb", "cccccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Equal(t, float32(2), vectors[0][0])
	assert.Equal(t, float32(4), vectors[1][0])
	assert.Equal(t, float32(6), vectors[2][0])
}

func TestGenerateBatchBlankInputsGetZeroVectors(t *testing.T) {
	client := &fakeClient{dimension: 4}
	g := newTestGenerator(client, Config{Dimension: 4})

	vectors, err := g.GenerateBatch(context.Background(), []string{"real text", "", "   ", "more text"})
	require.NoError(t, err)
	require.Len(t, vectors, 4)

	// Blanks never reach the provider.
	require.Len(t, client.calls, 1)
	assert.Equal(t, []string{"real text", "more text"}, client.calls[0])

	assert.Equal(t, make([]float32, 4), vectors[1])
	assert.Equal(t, make([]float32, 4), vectors[2])
	assert.NotEqual(t, float32(0), vectors[0][0])
	assert.NotEqual(t, float32(0), vectors[3][0])
}

func TestGenerateBatchSubBatching(t *testing.T) {
	client := &fakeClient{dimension: 2}
	g := newTestGenerator(client, Config{Dimension: 2, BatchSize: 100})

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	vectors, err := g.GenerateBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 250)

	require.Len(t, client.calls, 3)
	assert.Len(t, client.calls[0], 100)
	assert.Len(t, client.calls[1], 100)
	assert.Len(t, client.calls[2], 50)
}

func TestGenerateBatchCapsConfiguredBatchSize(t *testing.T) {
	client := &fakeClient{dimension: 2}
	g := newTestGenerator(client, Config{Dimension: 2, BatchSize: 5000})

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = "x"
	}

	_, err := g.GenerateBatch(context.Background(), texts)
	require.NoError(t, err)

	for _, call := range client.calls {
		assert.LessOrEqual(t, len(call), 100)
	}
}

func TestGenerateBatchRetriesTransientErrors(t *testing.T) {
	client := &fakeClient{
		dimension: 2,
		failUntil: 2,
		failWith:  fmt.Errorf("rate limit exceeded: 429"),
	}
	g := newTestGenerator(client, Config{Dimension: 2, MaxRetries: 3})

	vectors, err := g.GenerateBatch(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Len(t, client.calls, 3)
}

func TestGenerateBatchExhaustsRetries(t *testing.T) {
	client := &fakeClient{
		dimension: 2,
		failUntil: 100,
		failWith:  fmt.Errorf("upstream down"),
	}
	g := newTestGenerator(client, Config{Dimension: 2, MaxRetries: 3})

	_, err := g.GenerateBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 retries")
	assert.ErrorContains(t, err, "upstream down")
	// Initial attempt plus three retries.
	assert.Len(t, client.calls, 4)
}

func TestGenerateBatchBackoffSchedule(t *testing.T) {
	client := &fakeClient{
		dimension: 2,
		failUntil: 3,
		failWith:  fmt.Errorf("429 too many requests"),
	}
	g := NewWithClient(client, Config{Dimension: 2, MaxRetries: 3})

	var waits []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := g.GenerateBatch(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestGenerateBatchRespectsContext(t *testing.T) {
	client := &fakeClient{
		dimension: 2,
		failUntil: 100,
		failWith:  fmt.Errorf("unavailable"),
	}
	g := NewWithClient(client, Config{Dimension: 2, MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	g.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := g.GenerateBatch(ctx, []string{"text"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(fmt.Errorf("status 429")))
	assert.True(t, IsRateLimit(fmt.Errorf("Rate Limit exceeded")))
	assert.False(t, IsRateLimit(fmt.Errorf("connection refused")))
	assert.False(t, IsRateLimit(nil))
}

func TestCountTokens(t *testing.T) {
	g := newTestGenerator(&fakeClient{dimension: 2}, Config{Dimension: 2})
	if g.encoding == nil {
		t.Skip("token encoding unavailable in this environment")
	}

	assert.Equal(t, 0, g.CountTokens(""))
	assert.Greater(t, g.CountTokens("the quick brown fox jumps over the lazy dog"), 4)
}

func TestEstimateTokens(t *testing.T) {
	g := newTestGenerator(&fakeClient{dimension: 2}, Config{Dimension: 2})
	if g.encoding == nil {
		t.Skip("token encoding unavailable in this environment")
	}

	assert.Equal(t, 0, g.EstimateTokens(nil))
	assert.Greater(t, g.EstimateTokens([]string{"hello world", "more text here"}), 0)
}
