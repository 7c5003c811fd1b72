package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filberthamijoyo/CinematicAI/internal/vectorstore"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	hits  []vectorstore.Hit
	err   error
	delay time.Duration
}

func (f *fakeStore) Init(context.Context, int) error              { return nil }
func (f *fakeStore) Upsert(context.Context, []string, [][]float64) error { return nil }
func (f *fakeStore) Delete(context.Context, []string) error       { return nil }

func (f *fakeStore) Query(ctx context.Context, _ []float64, _ int) ([]vectorstore.Hit, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.hits, f.err
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func TestDense_Search_MapsScoresToUnitRange(t *testing.T) {
	store := &fakeStore{hits: []vectorstore.Hit{
		{ChunkID: "a", Score: 1.0},
		{ChunkID: "b", Score: 0.0},
		{ChunkID: "c", Score: -1.0},
	}}
	dense := NewDense(store, time.Second, newTestLogger())

	results, err := dense.Search(context.Background(), []float64{0.1, 0.2}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Score != 1.0 || results[1].Score != 0.5 || results[2].Score != 0.0 {
		t.Errorf("unexpected mapped scores: %v", results)
	}
	// Relative order must survive the mapping.
	if !(results[0].Score > results[1].Score && results[1].Score > results[2].Score) {
		t.Errorf("score mapping broke ordering: %v", results)
	}
}

func TestDense_Search_StoreErrorIsRetrievalUnavailable(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	dense := NewDense(store, time.Second, newTestLogger())

	_, err := dense.Search(context.Background(), []float64{0.1}, 10)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestDense_Search_TimeoutIsRetrievalUnavailable(t *testing.T) {
	store := &fakeStore{delay: 200 * time.Millisecond}
	dense := NewDense(store, 20*time.Millisecond, newTestLogger())

	start := time.Now()
	_, err := dense.Search(context.Background(), []float64{0.1}, 10)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("expected ErrRetrievalUnavailable on timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestDense_Search_EmptyVector(t *testing.T) {
	dense := NewDense(&fakeStore{}, time.Second, newTestLogger())

	_, err := dense.Search(context.Background(), nil, 10)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Errorf("expected ErrRetrievalUnavailable for empty vector, got %v", err)
	}
}
