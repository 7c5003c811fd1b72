// Package vectorstore defines the external nearest-neighbor index the dense
// retrieval path depends on, plus the bundled implementations.
package vectorstore

import "context"

// Hit is one ranked answer from the store: a chunk id with its similarity
// score. Score semantics (cosine vs dot) belong to the store; callers must
// only rely on relative order.
type Hit struct {
	ChunkID string
	Score   float64
}

// Store is the nearest-neighbor index. Upsert and Delete are owned by the
// ingestion path; query-time code only calls Query.
type Store interface {
	// Init prepares the backing collection for vectors of the given dimension.
	Init(ctx context.Context, dimension int) error
	// Upsert stores vectors under their chunk ids.
	Upsert(ctx context.Context, ids []string, vectors [][]float64) error
	// Query returns up to limit hits ranked by similarity descending.
	Query(ctx context.Context, vector []float64, limit int) ([]Hit, error)
	// Delete removes vectors by chunk id.
	Delete(ctx context.Context, ids []string) error
}
