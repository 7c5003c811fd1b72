// Package rerank re-orders a small candidate set with an external
// cross-encoder scorer.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable means the external scorer failed or timed out. The
// orchestrator falls back to the pre-rerank order.
var ErrUnavailable = errors.New("reranker unavailable")

// Passage is a candidate handed to the scorer: the chunk id plus its text.
type Passage struct {
	ChunkID string
	Text    string
}

// Scored is a reranked candidate. Scores are only comparable within the one
// call that produced them.
type Scored struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// Reranker scores (query, passage) pairs and returns the top passages by
// relevance descending.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []Passage, topK int) ([]Scored, error)
}

// CrossEncoder calls a TEI-style /rerank HTTP endpoint.
type CrossEncoder struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zerolog.Logger
}

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

func NewCrossEncoder(cfg Config, logger *zerolog.Logger) *CrossEncoder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &CrossEncoder{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankAnswer struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores every passage against the query and returns the topK by score
// descending, chunk id ascending on ties. The output does not depend on the
// order of the input passages.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, passages []Passage, topK int) ([]Scored, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(passages) {
		topK = len(passages)
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cross-encoder request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrUnavailable, resp.Status)
	}

	var answers []rerankAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	scored := make([]Scored, 0, len(answers))
	for _, a := range answers {
		if a.Index < 0 || a.Index >= len(passages) {
			return nil, fmt.Errorf("%w: scorer returned index %d out of range", ErrUnavailable, a.Index)
		}
		scored = append(scored, Scored{ChunkID: passages[a.Index].ChunkID, Score: a.Score})
	}

	return TopK(scored, topK), nil
}

// TopK sorts by score descending with chunk id as the deterministic tie-break
// and truncates. Sorting by (score, id) is what makes the adapter independent
// of input candidate order.
func TopK(scored []Scored, topK int) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}
