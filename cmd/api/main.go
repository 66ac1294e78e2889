package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/DannyyLC/uaa-indexing/internal/config"
	"github.com/DannyyLC/uaa-indexing/internal/extractor"
	"github.com/DannyyLC/uaa-indexing/internal/handler"
	"github.com/DannyyLC/uaa-indexing/internal/jobstore"
	"github.com/DannyyLC/uaa-indexing/internal/jwt"
	"github.com/DannyyLC/uaa-indexing/internal/middleware"
	"github.com/DannyyLC/uaa-indexing/internal/queue"
	"github.com/DannyyLC/uaa-indexing/internal/server"
	"github.com/DannyyLC/uaa-indexing/internal/service"
	"github.com/DannyyLC/uaa-indexing/internal/storage"
	"github.com/DannyyLC/uaa-indexing/internal/vectorstore"
)

func main() {
	ctx := context.Background()

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

	producer := queue.NewProducer(queue.ProducerConfig{
		Brokers:    cfg.KafkaBrokers,
		QueueTopic: cfg.IndexingQueueTopic,
		DLQTopic:   cfg.IndexingDLQTopic,
	})
	defer producer.Close()

	repo := jobstore.NewRepository(store)
	registry := extractor.NewRegistry()

	jwtService := jwt.NewService(cfg.JWTSecretKey, 24*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	documentService := service.NewDocument(repo, producer, storageClient, vectors, registry)
	documentHandler := handler.NewDocumentHandler(documentService, cfg.MaxFileSize)

	g := server.NewServer(documentHandler, authMiddleware)

	log.Printf("🚀 Indexing API starting on %s", cfg.APIPort)
	if err := g.Run(cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
