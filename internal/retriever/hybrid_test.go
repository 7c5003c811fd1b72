package retriever

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/filberthamijoyo/CinematicAI/internal/index"
	"github.com/rs/zerolog"
)

type fakeSparse struct {
	results []index.ScoredChunk
	err     error
}

func (f *fakeSparse) Search(string, int) ([]index.ScoredChunk, error) {
	return f.results, f.err
}

type fakeDense struct {
	results []index.ScoredChunk
	err     error
}

func (f *fakeDense) Search(context.Context, []float64, int) ([]index.ScoredChunk, error) {
	return f.results, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newHybrid(sparse *fakeSparse, dense *fakeDense, retrieveSize int) *Hybrid {
	return NewHybrid(sparse, dense, &fakeEmbedder{}, 0.5, retrieveSize, newTestLogger())
}

func TestHybrid_Retrieve_TagsBothMethods(t *testing.T) {
	sparse := &fakeSparse{results: []index.ScoredChunk{
		{ChunkID: "blade-runner", Score: 8.0},
		{ChunkID: "sparse-only", Score: 4.0},
	}}
	dense := &fakeDense{results: []index.ScoredChunk{
		{ChunkID: "blade-runner", Score: 0.9},
		{ChunkID: "dense-only", Score: 0.6},
	}}

	result, err := newHybrid(sparse, dense, 50).Retrieve(context.Background(), "sci-fi movie similar to Blade Runner")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if result.Degraded {
		t.Error("result must not be degraded when both paths succeed")
	}

	methods := map[string]Method{}
	for _, c := range result.Candidates {
		methods[c.ChunkID] = c.Method
	}
	if methods["blade-runner"] != MethodBoth {
		t.Errorf("expected blade-runner tagged both, got %s", methods["blade-runner"])
	}
	if methods["sparse-only"] != MethodSparse {
		t.Errorf("expected sparse-only tagged sparse, got %s", methods["sparse-only"])
	}
	if methods["dense-only"] != MethodDense {
		t.Errorf("expected dense-only tagged dense, got %s", methods["dense-only"])
	}
	if result.Candidates[0].ChunkID != "blade-runner" {
		t.Errorf("expected both-tagged top match first, got %s", result.Candidates[0].ChunkID)
	}
}

func TestHybrid_Retrieve_DenseFailureDegrades(t *testing.T) {
	sparse := &fakeSparse{results: []index.ScoredChunk{{ChunkID: "a", Score: 2.0}}}
	dense := &fakeDense{err: index.ErrRetrievalUnavailable}

	result, err := newHybrid(sparse, dense, 50).Retrieve(context.Background(), "some query")
	if err != nil {
		t.Fatalf("Retrieve must survive a single failing path: %v", err)
	}
	if !result.Degraded {
		t.Error("expected degraded result")
	}
	if len(result.Candidates) != 1 || result.Candidates[0].ChunkID != "a" {
		t.Errorf("expected surviving sparse results, got %v", result.Candidates)
	}
}

func TestHybrid_Retrieve_EmbeddingFailureDegrades(t *testing.T) {
	sparse := &fakeSparse{results: []index.ScoredChunk{{ChunkID: "a", Score: 2.0}}}
	dense := &fakeDense{results: []index.ScoredChunk{{ChunkID: "b", Score: 0.9}}}
	hybrid := NewHybrid(sparse, dense, &fakeEmbedder{err: errors.New("embed down")}, 0.5, 50, newTestLogger())

	result, err := hybrid.Retrieve(context.Background(), "some query")
	if err != nil {
		t.Fatalf("Retrieve must survive embedding failure: %v", err)
	}
	if !result.Degraded {
		t.Error("expected degraded result when embedding fails")
	}
}

func TestHybrid_Retrieve_BothFail(t *testing.T) {
	sparse := &fakeSparse{err: errors.New("index corrupt")}
	dense := &fakeDense{err: index.ErrRetrievalUnavailable}

	_, err := newHybrid(sparse, dense, 50).Retrieve(context.Background(), "some query")
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Errorf("expected ErrRetrievalFailed, got %v", err)
	}
}

func TestHybrid_Retrieve_EmptyQueryNotDegraded(t *testing.T) {
	sparse := &fakeSparse{err: index.ErrEmptyQuery}
	dense := &fakeDense{results: []index.ScoredChunk{{ChunkID: "b", Score: 0.9}}}

	result, err := newHybrid(sparse, dense, 50).Retrieve(context.Background(), "???")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if result.Degraded {
		t.Error("EmptyQuery is zero sparse results, not a degraded retrieval")
	}
	if len(result.Candidates) != 1 {
		t.Errorf("expected dense results only, got %v", result.Candidates)
	}
}

func TestHybrid_Retrieve_TruncatesToRetrieveSize(t *testing.T) {
	var sparseResults, denseResults []index.ScoredChunk
	for i := 0; i < 40; i++ {
		sparseResults = append(sparseResults, index.ScoredChunk{ChunkID: chunkName("s", i), Score: float64(40 - i)})
		denseResults = append(denseResults, index.ScoredChunk{ChunkID: chunkName("d", i), Score: float64(40-i) / 40})
	}

	result, err := newHybrid(&fakeSparse{results: sparseResults}, &fakeDense{results: denseResults}, 50).
		Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(result.Candidates) != 50 {
		t.Errorf("expected pool truncated to 50, got %d", len(result.Candidates))
	}
}

func TestHybrid_Fuse_Deterministic(t *testing.T) {
	sparseResults := []index.ScoredChunk{
		{ChunkID: "a", Score: 3.0}, {ChunkID: "b", Score: 2.0}, {ChunkID: "c", Score: 1.0},
	}
	denseResults := []index.ScoredChunk{
		{ChunkID: "b", Score: 0.8}, {ChunkID: "d", Score: 0.7}, {ChunkID: "a", Score: 0.2},
	}
	h := newHybrid(&fakeSparse{}, &fakeDense{}, 50)

	first := h.fuse(sparseResults, denseResults)
	for i := 0; i < 10; i++ {
		again := h.fuse(sparseResults, denseResults)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("fusion not deterministic:\n got: %v\nwant: %v", again, first)
		}
	}
}

func TestHybrid_Fuse_TieBreakBothBeforeSingle(t *testing.T) {
	// "both" chunk fuses to 0.5*1 + 0.5*1 = 1.0; the singles normalize to 1.0 too.
	sparseResults := []index.ScoredChunk{{ChunkID: "zz-both", Score: 5.0}}
	denseResults := []index.ScoredChunk{
		{ChunkID: "zz-both", Score: 0.9},
		{ChunkID: "aa-dense", Score: 0.9},
	}
	h := newHybrid(&fakeSparse{}, &fakeDense{}, 50)

	fused := h.fuse(sparseResults, denseResults)
	if fused[0].ChunkID != "zz-both" {
		t.Errorf("both-tagged chunk must win the tie, got %v", fused)
	}
}

func TestHybrid_Fuse_TieBreakLowerChunkID(t *testing.T) {
	sparseResults := []index.ScoredChunk{
		{ChunkID: "beta", Score: 1.0},
		{ChunkID: "alpha", Score: 1.0},
	}
	h := newHybrid(&fakeSparse{}, &fakeDense{}, 50)

	fused := h.fuse(sparseResults, nil)
	if fused[0].ChunkID != "alpha" {
		t.Errorf("expected lexicographically lower id first, got %v", fused)
	}
}

func chunkName(prefix string, i int) string {
	return prefix + string(rune('a'+i/26)) + string(rune('a'+i%26))
}
