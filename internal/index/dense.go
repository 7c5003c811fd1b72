package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filberthamijoyo/CinematicAI/internal/vectorstore"
	"github.com/rs/zerolog"
)

// ErrRetrievalUnavailable means the external vector store could not answer
// within the timeout. The orchestrator degrades to sparse-only retrieval.
var ErrRetrievalUnavailable = errors.New("dense retrieval unavailable")

// Dense wraps the external vector store. It does not compute query vectors
// itself; embedding happens upstream. It forwards the vector and maps the
// store's cosine scores onto [0,1] so downstream fusion sees a non-negative
// range. The mapping is monotonic, only relative order is meaningful.
type Dense struct {
	store   vectorstore.Store
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewDense(store vectorstore.Store, timeout time.Duration, logger *zerolog.Logger) *Dense {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dense{
		store:   store,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Dense) Search(ctx context.Context, vector []float64, limit int) ([]ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrRetrievalUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	hits, err := d.store.Query(ctx, vector, limit)
	if err != nil {
		d.logger.Warn().Err(err).Msg("vector store query failed")
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	results := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		results = append(results, ScoredChunk{
			ChunkID: h.ChunkID,
			Score:   cosineToUnit(h.Score),
		})
	}
	return results, nil
}

// cosineToUnit shifts a cosine similarity in [-1,1] to [0,1], clamping values
// that drift outside the range through floating point error.
func cosineToUnit(score float64) float64 {
	unit := (score + 1) / 2
	if unit < 0 {
		return 0
	}
	if unit > 1 {
		return 1
	}
	return unit
}
