package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/DannyyLC/uaa-indexing/internal/types"
)

// upsertBatchSize bounds points per upsert call so a slow store cannot time
// out an entire job's worth of vectors at once.
const upsertBatchSize = 100

// scrollPageSize is the max ids fetched per scroll when scanning for deletion.
const scrollPageSize = 10000

// Config locates the Qdrant instance and names the collection.
type Config struct {
	Host       string
	Port       int
	Collection string
	VectorSize int
}

// Indexer upserts chunk vectors into a Qdrant collection and deletes them by
// job or by (user, topic). Every point carries job_id and user_id in its
// payload so cleanup can target exactly the right subset.
type Indexer struct {
	client     *qdrant.Client
	collection string
	vectorSize uint64
	logger     *slog.Logger
}

// Connect dials Qdrant over gRPC and verifies the collection exists, creating
// it (with its payload indexes) when absent.
func Connect(ctx context.Context, cfg Config) (*Indexer, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	idx := &Indexer{
		client:     client,
		collection: cfg.Collection,
		vectorSize: uint64(cfg.VectorSize),
		logger:     slog.Default().With("component", "vectorstore"),
	}

	if err := idx.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return idx, nil
}

// EnsureCollection creates the collection if it does not exist, with cosine
// distance and keyword payload indexes on user_id and topic for filtered
// queries. Safe to call repeatedly.
func (x *Indexer) EnsureCollection(ctx context.Context) error {
	exists, err := x.client.CollectionExists(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", x.collection, err)
	}
	if exists {
		x.logger.Info("collection already exists", "collection", x.collection)
		return nil
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     x.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", x.collection, err)
	}

	for _, field := range []string{"user_id", "topic"} {
		_, err = x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: x.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create payload index on %s: %w", field, err)
		}
	}

	x.logger.Info("collection created", "collection", x.collection, "vector_size", x.vectorSize)
	return nil
}

// IndexChunks upserts one point per chunk, in batches, waiting for each batch
// to be acknowledged before continuing. Point ids are freshly minted per call:
// a redelivered job never silently overwrites points from a previous partial
// attempt, stale points are deleted explicitly by the worker instead.
func (x *Indexer) IndexChunks(ctx context.Context, chunks []types.Chunk, embeddings [][]float32, userID, jobID, filename, topic string, metadata map[string]string) (int, error) {
	if len(chunks) != len(embeddings) {
		return 0, fmt.Errorf("mismatch: %d chunks vs %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"user_id":      userID,
			"job_id":       jobID,
			"source":       filename,
			"topic":        topic,
			"chunk_index":  int64(i),
			"total_chunks": int64(len(chunks)),
			"text":         chunk.Text,
			"char_count":   int64(len(chunk.Text)),
		}
		for k, v := range metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	indexed := 0
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: x.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points[start:end],
		})
		if err != nil {
			return indexed, fmt.Errorf("failed to upsert batch %d-%d: %w", start, end, err)
		}
		indexed += end - start
	}

	x.logger.Info("chunks indexed", "count", indexed, "job_id", jobID, "user_id", userID, "topic", topic)
	return indexed, nil
}

// DeleteByJob removes every point indexed under jobID and returns how many
// were deleted. Used by cancellation and by retry cleanup.
func (x *Indexer) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	return x.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("job_id", jobID),
		},
	})
}

// DeleteByUserAndTopic removes every point a user has indexed under a topic.
func (x *Indexer) DeleteByUserAndTopic(ctx context.Context, userID, topic string) (int, error) {
	return x.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("user_id", userID),
			qdrant.NewMatch("topic", topic),
		},
	})
}

// deleteByFilter scans matching point ids then deletes them, so the caller
// gets an accurate count back.
func (x *Indexer) deleteByFilter(ctx context.Context, filter *qdrant.Filter) (int, error) {
	deleted := 0
	for {
		page, err := x.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: x.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayload(false),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to scan points: %w", err)
		}
		if len(page) == 0 {
			return deleted, nil
		}

		ids := make([]*qdrant.PointId, 0, len(page))
		for _, point := range page {
			ids = append(ids, point.Id)
		}

		_, err = x.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: x.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(ids...),
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete points: %w", err)
		}
		deleted += len(ids)

		if len(page) < scrollPageSize {
			return deleted, nil
		}
	}
}

// CollectionInfo returns point counts for operator visibility.
func (x *Indexer) CollectionInfo(ctx context.Context) (map[string]any, error) {
	info, err := x.client.GetCollectionInfo(ctx, x.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	result := map[string]any{
		"name":   x.collection,
		"status": info.GetStatus().String(),
	}
	if info.PointsCount != nil {
		result["points_count"] = *info.PointsCount
	}
	if info.IndexedVectorsCount != nil {
		result["indexed_vectors_count"] = *info.IndexedVectorsCount
	}
	return result, nil
}

// Close releases the underlying gRPC connection.
func (x *Indexer) Close() error {
	return x.client.Close()
}
