package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/lpernett/godotenv"
)

// Config holds every setting the indexing pipeline reads from the environment.
type Config struct {
	// Kafka
	KafkaBrokers       []string
	IndexingQueueTopic string
	IndexingDLQTopic   string
	WorkerGroup        string
	DLQGroup           string
	QueuePartitions    int
	DLQPartitions      int

	// Worker pool
	WorkerCount int
	MaxRetries  int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Embeddings
	OpenAIAPIKey       string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatchSize int

	// Qdrant
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// ScyllaDB
	ScyllaHosts    []string
	ScyllaKeyspace string

	// MinIO
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// API
	APIPort      string
	JWTSecretKey string
	MaxFileSize  int64
}

// Load reads the configuration from the environment, loading .env first when
// present. Missing values fall back to local-development defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, using defaults")
	}

	cfg := &Config{
		KafkaBrokers:       strings.Split(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092"), ","),
		IndexingQueueTopic: getEnvOrDefault("KAFKA_INDEXING_QUEUE", "indexing.queue"),
		IndexingDLQTopic:   getEnvOrDefault("KAFKA_INDEXING_DLQ", "indexing.dlq"),
		WorkerGroup:        getEnvOrDefault("KAFKA_CONSUMER_GROUP", "indexing-workers"),
		DLQGroup:           getEnvOrDefault("KAFKA_DLQ_GROUP", "dlq-consumer"),
		QueuePartitions:    getEnvInt("KAFKA_QUEUE_PARTITIONS", 3),
		DLQPartitions:      getEnvInt("KAFKA_DLQ_PARTITIONS", 1),

		WorkerCount: getEnvInt("INDEXING_WORKERS", 3),
		MaxRetries:  getEnvInt("INDEXING_MAX_RETRIES", 3),

		ChunkSize:    getEnvInt("INDEXING_CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("INDEXING_CHUNK_OVERLAP", 200),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:     getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
		EmbeddingBatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 100),

		QdrantHost:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection: getEnvOrDefault("QDRANT_COLLECTION_NAME", "documents"),

		ScyllaHosts:    strings.Split(getEnvOrDefault("SCYLLADB_HOSTS", "127.0.0.1:9042"), ","),
		ScyllaKeyspace: getEnvOrDefault("SCYLLADB_KEYSPACE", "uaa_indexing"),

		MinioEndpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin123"),
		MinioBucket:    getEnvOrDefault("MINIO_BUCKET", "uaa-documents"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		APIPort:      getEnvOrDefault("API_PORT", ":8004"),
		JWTSecretKey: getEnvOrDefault("JWT_SECRET_KEY", "supersecretkey123"),
		MaxFileSize:  int64(getEnvInt("MAX_FILE_SIZE_MB", 50)) << 20,
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("INDEXING_CHUNK_OVERLAP (%d) must be smaller than INDEXING_CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("INDEXING_WORKERS must be at least 1")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
