// Package index holds the two retrieval indexes: the in-process BM25 sparse
// index and the adapter over the external vector store. Both are read-only
// after startup; re-indexing happens by building a fresh index and swapping
// the reference.
package index

import (
	"errors"
	"math"
	"sort"

	"github.com/filberthamijoyo/CinematicAI/internal/corpus"
)

// ErrEmptyQuery means the query had no indexable terms after normalization.
// Callers treat this as zero results, not a pipeline failure.
var ErrEmptyQuery = errors.New("query has no indexable terms")

// ScoredChunk is one ranked answer from an index.
type ScoredChunk struct {
	ChunkID string
	Score   float64
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Sparse is a BM25 index over chunk text. Built once from the full chunk set;
// Search never mutates it, so concurrent queries need no locking.
type Sparse struct {
	ids       []string
	idSet     map[string]struct{}
	docLens   []int
	avgDocLen float64
	postings  map[string][]posting
}

type posting struct {
	doc int
	tf  int
}

// BuildSparse indexes the given chunks. The chunk slice order fixes internal
// document numbering, so a fixed corpus yields a fixed index.
func BuildSparse(chunks []corpus.Chunk) *Sparse {
	s := &Sparse{
		ids:      make([]string, len(chunks)),
		idSet:    make(map[string]struct{}, len(chunks)),
		docLens:  make([]int, len(chunks)),
		postings: make(map[string][]posting),
	}

	totalLen := 0
	for i, ch := range chunks {
		s.ids[i] = ch.ID
		s.idSet[ch.ID] = struct{}{}
		tokens := Tokenize(ch.Text)
		s.docLens[i] = len(tokens)
		totalLen += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, count := range tf {
			s.postings[term] = append(s.postings[term], posting{doc: i, tf: count})
		}
	}
	if len(chunks) > 0 {
		s.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	return s
}

// Size returns the number of indexed chunks.
func (s *Sparse) Size() int { return len(s.ids) }

// Has reports whether the chunk id is part of the index.
func (s *Sparse) Has(chunkID string) bool {
	_, ok := s.idSet[chunkID]
	return ok
}

// Search scores every chunk containing at least one query term with BM25 and
// returns the top results, score descending, chunk id ascending on ties.
// Returns ErrEmptyQuery when nothing in the query survives normalization.
func (s *Sparse) Search(query string, limit int) ([]ScoredChunk, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}

	n := float64(len(s.ids))
	scores := make(map[int]float64)

	for _, term := range terms {
		plist, ok := s.postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))

		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1 - bm25B + bm25B*float64(s.docLens[p.doc])/s.avgDocLen
			scores[p.doc] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	results := make([]ScoredChunk, 0, len(scores))
	for doc, score := range scores {
		results = append(results, ScoredChunk{ChunkID: s.ids[doc], Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if limit > len(results) {
		limit = len(results)
	}
	return results[:limit], nil
}
