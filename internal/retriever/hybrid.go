// Package retriever merges sparse and dense retrieval into one ranked
// candidate pool.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/filberthamijoyo/CinematicAI/internal/index"
	"github.com/rs/zerolog"
)

// ErrRetrievalFailed means neither retrieval path produced candidates. There
// is no fallback; the orchestrator fails the request.
var ErrRetrievalFailed = errors.New("both retrieval methods failed")

// SparseSearcher is the keyword index contract.
type SparseSearcher interface {
	Search(query string, limit int) ([]index.ScoredChunk, error)
}

// DenseSearcher is the vector index contract. The query vector is computed by
// the Embedder before the call.
type DenseSearcher interface {
	Search(ctx context.Context, vector []float64, limit int) ([]index.ScoredChunk, error)
}

// Embedder turns query text into a fixed-dimension vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Hybrid runs both retrieval paths, normalizes each score list per query and
// fuses them with a configurable weight.
type Hybrid struct {
	sparse       SparseSearcher
	dense        DenseSearcher
	embedder     Embedder
	denseWeight  float64
	retrieveSize int
	logger       *zerolog.Logger
}

func NewHybrid(
	sparse SparseSearcher,
	dense DenseSearcher,
	embedder Embedder,
	denseWeight float64,
	retrieveSize int,
	logger *zerolog.Logger,
) *Hybrid {
	if denseWeight < 0 || denseWeight > 1 {
		denseWeight = 0.5
	}
	if retrieveSize <= 0 {
		retrieveSize = 50
	}
	return &Hybrid{
		sparse:       sparse,
		dense:        dense,
		embedder:     embedder,
		denseWeight:  denseWeight,
		retrieveSize: retrieveSize,
		logger:       logger,
	}
}

// Retrieve runs sparse and dense search concurrently and fuses the two ranked
// lists. An empty-term query counts as zero sparse results, not a sparse
// failure. If exactly one path fails the result is tagged Degraded; if both
// fail, ErrRetrievalFailed.
func (h *Hybrid) Retrieve(ctx context.Context, query string) (Result, error) {
	var (
		wg            sync.WaitGroup
		sparseResults []index.ScoredChunk
		denseResults  []index.ScoredChunk
		sparseErr     error
		denseErr      error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		sparseResults, sparseErr = h.sparse.Search(query, h.retrieveSize)
		if errors.Is(sparseErr, index.ErrEmptyQuery) {
			// No indexable terms: zero sparse results, not a failure.
			sparseResults, sparseErr = nil, nil
		}
	}()

	go func() {
		defer wg.Done()
		vector, err := h.embedder.EmbedQuery(ctx, query)
		if err != nil {
			denseErr = fmt.Errorf("query embedding failed: %w", err)
			return
		}
		denseResults, denseErr = h.dense.Search(ctx, vector, h.retrieveSize)
	}()

	wg.Wait()

	if sparseErr != nil && denseErr != nil {
		return Result{}, fmt.Errorf("%w: sparse=%v, dense=%v", ErrRetrievalFailed, sparseErr, denseErr)
	}

	degraded := sparseErr != nil || denseErr != nil
	if degraded {
		h.logger.Warn().
			AnErr("sparse_error", sparseErr).
			AnErr("dense_error", denseErr).
			Msg("retrieval degraded to a single method")
	}

	candidates := h.fuse(sparseResults, denseResults)
	if len(candidates) > h.retrieveSize {
		candidates = candidates[:h.retrieveSize]
	}

	h.logger.Debug().
		Int("sparse_count", len(sparseResults)).
		Int("dense_count", len(denseResults)).
		Int("fused_count", len(candidates)).
		Bool("degraded", degraded).
		Msg("hybrid retrieval completed")

	return Result{Candidates: candidates, Degraded: degraded}, nil
}

// fuse merges the two ranked lists by chunk id. Each list is min-max
// normalized to [0,1] independently, recomputed for every query. Chunks found
// by both methods get denseWeight*dense + (1-denseWeight)*sparse; chunks found
// by one method keep their normalized score. Order: fused score descending,
// then both-tagged before single-method, then chunk id ascending.
func (h *Hybrid) fuse(sparseResults, denseResults []index.ScoredChunk) []Candidate {
	sparseNorm := minMaxNormalize(sparseResults)
	denseNorm := minMaxNormalize(denseResults)

	merged := make(map[string]Candidate, len(sparseNorm)+len(denseNorm))
	for id, score := range sparseNorm {
		merged[id] = Candidate{ChunkID: id, Score: score, Method: MethodSparse}
	}
	for id, score := range denseNorm {
		if existing, ok := merged[id]; ok {
			merged[id] = Candidate{
				ChunkID: id,
				Score:   h.denseWeight*score + (1-h.denseWeight)*existing.Score,
				Method:  MethodBoth,
			}
			continue
		}
		merged[id] = Candidate{ChunkID: id, Score: score, Method: MethodDense}
	}

	candidates := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if (a.Method == MethodBoth) != (b.Method == MethodBoth) {
			return a.Method == MethodBoth
		}
		return a.ChunkID < b.ChunkID
	})
	return candidates
}

// minMaxNormalize maps the list's scores onto [0,1]. When all scores are
// equal every entry maps to 1, keeping a lone perfect match competitive.
func minMaxNormalize(results []index.ScoredChunk) map[string]float64 {
	if len(results) == 0 {
		return nil
	}

	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}

	norm := make(map[string]float64, len(results))
	for _, r := range results {
		if hi == lo {
			norm[r.ChunkID] = 1
			continue
		}
		norm[r.ChunkID] = (r.Score - lo) / (hi - lo)
	}
	return norm
}
