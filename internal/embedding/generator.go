package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms/openai"
)

// Client is the provider call the generator is built on. langchaingo's
// *openai.LLM satisfies it directly.
type Client interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls batching, retries and the embedding model.
type Config struct {
	Model      string
	Dimension  int
	BatchSize  int
	MaxRetries int
	APIKey     string
}

// maxBatchSize caps sub-batches regardless of configuration so a single
// failed provider call never takes down more than 100 chunks worth of work.
const maxBatchSize = 100

// Generator turns batches of chunk texts into embedding vectors. It owns
// sub-batching, token accounting and retry with exponential backoff; oversized
// inputs are the chunker's problem, never silently truncated here.
type Generator struct {
	client     Client
	model      string
	dimension  int
	batchSize  int
	maxRetries int
	encoding   *tiktoken.Tiktoken
	logger     *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Generator backed by the OpenAI embeddings API.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not configured")
	}

	client, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient builds a Generator on an existing provider client. Used by
// tests and by callers that manage the client lifetime themselves.
func NewWithClient(client Client, cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	logger := slog.Default().With("component", "embeddings")

	// tiktoken loads BPE ranks lazily, over the network on first use; in an
	// offline environment the generator still works, only token estimates go
	// dark.
	encoding, err := tiktoken.EncodingForModel(cfg.Model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("token encoding unavailable, estimates disabled", "model", cfg.Model, "err", err)
			encoding = nil
		}
	}

	return &Generator{
		client:     client,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		encoding:   encoding,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Dimension returns the vector size every embedding from this generator has.
func (g *Generator) Dimension() int { return g.dimension }

// CountTokens reports the token count of text under the model's encoding.
// Used for cost estimation and logging only.
func (g *Generator) CountTokens(text string) int {
	if g.encoding == nil {
		return 0
	}
	return len(g.encoding.Encode(text, nil, nil))
}

// GenerateBatch embeds texts, preserving positions: output i embeds input i.
// Blank inputs yield an all-zero vector of the configured dimension instead of
// failing the whole batch. Provider errors are retried with exponential
// backoff and propagated after MaxRetries.
func (g *Generator) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	type indexed struct {
		pos  int
		text string
	}
	valid := make([]indexed, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			valid = append(valid, indexed{pos: i, text: t})
		}
	}

	result := make([][]float32, len(texts))

	for start := 0; start < len(valid); start += g.batchSize {
		end := min(start+g.batchSize, len(valid))
		batch := valid[start:end]

		batchTexts := make([]string, len(batch))
		for i, item := range batch {
			batchTexts[i] = item.text
		}

		vectors, err := g.embedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batchTexts) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batchTexts))
		}

		for i, item := range batch {
			result[item.pos] = vectors[i]
		}

		g.logger.Debug("embedded sub-batch", "from", start, "to", end, "of", len(valid))
	}

	// Blank inputs get deterministic zero vectors.
	for i, vec := range result {
		if vec == nil {
			result[i] = make([]float32, g.dimension)
		}
	}

	return result, nil
}

// EstimateTokens logs and returns a rough token total for a chunk set, sampling
// the first few chunks the way the provider bill would count them.
func (g *Generator) EstimateTokens(chunks []string) int {
	if len(chunks) == 0 {
		return 0
	}
	sample := min(len(chunks), 10)
	total := 0
	for _, c := range chunks[:sample] {
		total += g.CountTokens(c)
	}
	estimate := total / sample * len(chunks)
	g.logger.Info("token estimate for embedding run", "chunks", len(chunks), "estimated_tokens", estimate)
	return estimate
}

// embedWithRetry calls the provider, backing off 2^attempt seconds on rate
// limits and transient errors, up to maxRetries attempts after the first.
func (g *Generator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		vectors, err := g.client.CreateEmbedding(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if attempt >= g.maxRetries {
			break
		}

		wait := time.Duration(1<<attempt) * time.Second
		if IsRateLimit(err) {
			g.logger.Warn("rate limited by embedding provider", "wait", wait, "attempt", attempt+1)
		} else {
			g.logger.Warn("embedding provider error, retrying", "err", err, "wait", wait, "attempt", attempt+1)
		}

		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embedding failed after %d retries: %w", g.maxRetries, lastErr)
}

// IsRateLimit reports whether err is the provider's rate-limit signal, which
// is distinguishable from other failures only by status code in the message.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate limit")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
