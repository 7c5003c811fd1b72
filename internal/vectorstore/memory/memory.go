// Package memory is a brute-force cosine similarity store used in tests and
// single-process deployments without a Qdrant instance.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/filberthamijoyo/CinematicAI/internal/vectorstore"
)

type Store struct {
	mu        sync.RWMutex
	dimension int
	ids       []string
	vectors   [][]float64
	position  map[string]int
}

func NewStore() *Store {
	return &Store{position: make(map[string]int)}
}

func (s *Store) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.ids = nil
	s.vectors = nil
	s.position = make(map[string]int)
	return nil
}

func (s *Store) Upsert(_ context.Context, ids []string, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return errors.New("ids and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
		if pos, ok := s.position[ids[i]]; ok {
			s.vectors[pos] = v
			continue
		}
		s.position[ids[i]] = len(s.ids)
		s.ids = append(s.ids, ids[i])
		s.vectors = append(s.vectors, v)
	}
	return nil
}

func (s *Store) Query(_ context.Context, vector []float64, limit int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}

	hits := make([]vectorstore.Hit, 0, len(s.ids))
	for i, id := range s.ids {
		hits = append(hits, vectorstore.Hit{ChunkID: id, Score: dot(s.vectors[i], vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if limit > len(hits) {
		limit = len(hits)
	}
	return hits[:limit], nil
}

func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		pos, ok := s.position[id]
		if !ok {
			continue
		}
		last := len(s.ids) - 1
		s.ids[pos] = s.ids[last]
		s.vectors[pos] = s.vectors[last]
		s.position[s.ids[pos]] = pos
		s.ids = s.ids[:last]
		s.vectors = s.vectors[:last]
		delete(s.position, id)
	}
	return nil
}

// dot assumes L2-normalized vectors, making it equivalent to cosine similarity.
func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
