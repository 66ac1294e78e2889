package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DannyyLC/uaa-indexing/internal/chunker"
	"github.com/DannyyLC/uaa-indexing/internal/config"
	"github.com/DannyyLC/uaa-indexing/internal/embedding"
	"github.com/DannyyLC/uaa-indexing/internal/extractor"
	"github.com/DannyyLC/uaa-indexing/internal/jobstore"
	"github.com/DannyyLC/uaa-indexing/internal/queue"
	"github.com/DannyyLC/uaa-indexing/internal/storage"
	"github.com/DannyyLC/uaa-indexing/internal/vectorstore"
	"github.com/DannyyLC/uaa-indexing/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := queue.EnsureTopics(cfg.KafkaBrokers,
		queue.TopicConfig{Name: cfg.IndexingQueueTopic, Partitions: cfg.QueuePartitions},
		queue.TopicConfig{Name: cfg.IndexingDLQTopic, Partitions: cfg.DLQPartitions},
	); err != nil {
		log.Fatalf("Failed to ensure topics: %v", err)
	}
	log.Println("✓ Kafka topics ready")

	storageClient, err := storage.NewStorage(ctx, &storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Println("✓ Connected to MinIO")

	store, err := jobstore.Connect(jobstore.Config{
		Hosts:    cfg.ScyllaHosts,
		Keyspace: cfg.ScyllaKeyspace,
	})
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer store.Close()
	log.Println("✓ Connected to ScyllaDB")

	vectors, err := vectorstore.Connect(ctx, vectorstore.Config{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		Collection: cfg.QdrantCollection,
		VectorSize: cfg.EmbeddingDimension,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Qdrant: %v", err)
	}
	defer vectors.Close()
	log.Println("✓ Connected to Qdrant")

	embedder, err := embedding.New(embedding.Config{
		Model:      cfg.EmbeddingModel,
		Dimension:  cfg.EmbeddingDimension,
		BatchSize:  cfg.EmbeddingBatchSize,
		MaxRetries: cfg.MaxRetries,
		APIKey:     cfg.OpenAIAPIKey,
	})
	if err != nil {
		log.Fatalf("Failed to initialize embeddings: %v", err)
	}
	log.Println("✓ Embedding client ready")

	producer := queue.NewProducer(queue.ProducerConfig{
		Brokers:    cfg.KafkaBrokers,
		QueueTopic: cfg.IndexingQueueTopic,
		DLQTopic:   cfg.IndexingDLQTopic,
	})
	defer producer.Close()

	launcher := worker.NewLauncher(
		worker.LauncherConfig{
			Brokers:     cfg.KafkaBrokers,
			QueueTopic:  cfg.IndexingQueueTopic,
			GroupID:     cfg.WorkerGroup,
			WorkerCount: cfg.WorkerCount,
			MaxRetries:  cfg.MaxRetries,
		},
		worker.Deps{
			Jobs:      jobstore.NewRepository(store),
			Producer:  producer,
			Embedder:  embedder,
			Index:     vectors,
			Files:     storageClient,
			Extractor: extractor.NewRegistry(),
			Splitter:  chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		},
	)

	log.Printf("🚀 Starting %d indexing workers...", cfg.WorkerCount)
	if err := launcher.Run(ctx); err != nil {
		log.Fatalf("Workers stopped with error: %v", err)
	}

	log.Println("👋 Workers shut down gracefully")
}
