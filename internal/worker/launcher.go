package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/DannyyLC/uaa-indexing/internal/chunker"
	"github.com/DannyyLC/uaa-indexing/internal/queue"
)

// Deps carries the shared collaborators every worker instance uses. The
// message consumers are not here: each worker gets its own group member so
// the broker can spread partitions across them.
type Deps struct {
	Jobs      JobStore
	Producer  RetryPublisher
	Embedder  Embedder
	Index     VectorIndexer
	Files     FileStore
	Extractor TextExtractor
	Splitter  *chunker.Splitter
}

// LauncherConfig sizes the pool and locates the queue.
type LauncherConfig struct {
	Brokers     []string
	QueueTopic  string
	GroupID     string
	WorkerCount int
	MaxRetries  int
}

// Launcher runs a fixed pool of workers against the indexing queue. All
// workers join the same consumer group, so the broker assigns each partition
// to exactly one of them and per-job ordering within a partition is kept.
type Launcher struct {
	cfg    LauncherConfig
	deps   Deps
	logger *slog.Logger
}

func NewLauncher(cfg LauncherConfig, deps Deps) *Launcher {
	return &Launcher{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "launcher"),
	}
}

// Run starts the pool and blocks until ctx is cancelled and every worker has
// drained. The first worker error stops the group.
func (l *Launcher) Run(ctx context.Context) error {
	l.logger.Info("starting workers", "count", l.cfg.WorkerCount, "group", l.cfg.GroupID, "topic", l.cfg.QueueTopic)

	g, ctx := errgroup.WithContext(ctx)

	for i := 1; i <= l.cfg.WorkerCount; i++ {
		consumer := queue.NewConsumer(queue.ConsumerConfig{
			Brokers: l.cfg.Brokers,
			Topic:   l.cfg.QueueTopic,
			GroupID: l.cfg.GroupID,
		})

		w := New(i, consumer,
			l.deps.Jobs,
			l.deps.Producer,
			l.deps.Embedder,
			l.deps.Index,
			l.deps.Files,
			l.deps.Extractor,
			l.deps.Splitter,
			l.cfg.MaxRetries,
		)

		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	err := g.Wait()
	l.logger.Info("all workers stopped")
	return err
}
