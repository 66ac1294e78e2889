package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DannyyLC/uaa-indexing/internal/config"
	"github.com/DannyyLC/uaa-indexing/internal/dlq"
	"github.com/DannyyLC/uaa-indexing/internal/jobstore"
	"github.com/DannyyLC/uaa-indexing/internal/queue"
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
		queue.TopicConfig{Name: cfg.IndexingDLQTopic, Partitions: cfg.DLQPartitions},
	); err != nil {
		log.Fatalf("Failed to ensure topics: %v", err)
	}
	log.Println("✓ Kafka topics ready")

	store, err := jobstore.Connect(jobstore.Config{
		Hosts:    cfg.ScyllaHosts,
		Keyspace: cfg.ScyllaKeyspace,
	})
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer store.Close()
	log.Println("✓ Connected to ScyllaDB")

	consumer := queue.NewConsumer(queue.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.IndexingDLQTopic,
		GroupID: cfg.DLQGroup,
	})

	dlqConsumer := dlq.NewConsumer(consumer, jobstore.NewRepository(store))

	log.Println("🚀 Starting DLQ consumer...")
	if err := dlqConsumer.Run(ctx); err != nil {
		log.Fatalf("DLQ consumer stopped with error: %v", err)
	}

	log.Println("👋 DLQ consumer shut down gracefully")
}
