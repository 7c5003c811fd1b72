// Package contextbuilder assembles the grounding context handed to the
// generator, under a hard character budget.
package contextbuilder

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/filberthamijoyo/CinematicAI/internal/corpus"
	"github.com/filberthamijoyo/CinematicAI/internal/index"
	"github.com/filberthamijoyo/CinematicAI/internal/rerank"
	"github.com/rs/zerolog"
)

// ErrContextEmpty means no chunk fit the budget even after relaxing the
// rating threshold. Surfaced to the caller as an explicit "insufficient
// information" outcome; content is never fabricated.
var ErrContextEmpty = errors.New("no chunk fits the context budget")

// Entry is one chunk admitted into the prompt context with its attribution.
type Entry struct {
	ChunkID     string  `json:"chunk_id"`
	Text        string  `json:"text"`
	Attribution string  `json:"attribution"`
	Score       float64 `json:"score"`
}

// PromptContext is the assembled grounding block.
type PromptContext struct {
	Entries          []Entry `json:"entries"`
	TotalChars       int     `json:"total_chars"`
	ThresholdRelaxed bool    `json:"threshold_relaxed"`
}

// Text renders the attributed context block for the prompt.
func (p PromptContext) Text() string {
	var b strings.Builder
	for i, e := range p.Entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", e.Attribution, e.Text)
	}
	return b.String()
}

// ChunkIDs lists the ids used as evidence, in context order.
func (p PromptContext) ChunkIDs() []string {
	ids := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.ChunkID
	}
	return ids
}

const nearDuplicateThreshold = 0.8

type Builder struct {
	catalog   *corpus.Catalog
	minRating float64
	logger    *zerolog.Logger
}

func NewBuilder(catalog *corpus.Catalog, minRating float64, logger *zerolog.Logger) *Builder {
	return &Builder{
		catalog:   catalog,
		minRating: minRating,
		logger:    logger,
	}
}

// Build walks the reranked candidates in order and admits each chunk whole if
// it fits the remaining budget; a chunk that does not fit is skipped entirely
// and the walk continues. Chunks below the rating threshold are filtered out
// first, unless that would leave nothing, in which case the threshold is
// relaxed for this one query. Near-identical chunks from the same source keep
// only the higher-ranked copy.
func (b *Builder) Build(candidates []rerank.Scored, charBudget int) (PromptContext, error) {
	if charBudget <= 0 {
		return PromptContext{}, fmt.Errorf("invalid context budget %d", charBudget)
	}

	resolved := b.resolve(candidates)
	if len(resolved) == 0 {
		return PromptContext{}, ErrContextEmpty
	}

	admitted := b.filterByRating(resolved)
	relaxed := false
	if len(admitted) == 0 {
		// Filtering everything out would produce an empty context: relax the
		// threshold for this query rather than answer from nothing.
		relaxed = true
		admitted = resolved
		b.logger.Warn().
			Float64("min_rating", b.minRating).
			Msg("rating threshold relaxed: every candidate was below it")
	}

	admitted = dedupeNearIdentical(admitted)

	ctx := PromptContext{ThresholdRelaxed: relaxed}
	remaining := charBudget
	for _, rc := range admitted {
		entry := Entry{
			ChunkID:     rc.scored.ChunkID,
			Text:        rc.chunk.Text,
			Attribution: attribution(rc.chunk.Metadata),
			Score:       rc.scored.Score,
		}
		// Runes, not bytes: the chunker slices on runes and the budget
		// must mean the same unit.
		cost := utf8.RuneCountInString(entry.Text)
		if cost > remaining {
			continue
		}
		ctx.Entries = append(ctx.Entries, entry)
		ctx.TotalChars += cost
		remaining -= cost
	}

	if len(ctx.Entries) == 0 {
		return PromptContext{}, ErrContextEmpty
	}
	return ctx, nil
}

type resolvedCandidate struct {
	scored rerank.Scored
	chunk  corpus.Chunk
}

// resolve drops candidates whose id is not in the catalog. Upstream stages
// only emit ids known to the indexes, so a miss here is a wiring bug worth a
// log line, not a reason to fail the query.
func (b *Builder) resolve(candidates []rerank.Scored) []resolvedCandidate {
	out := make([]resolvedCandidate, 0, len(candidates))
	for _, c := range candidates {
		chunk, err := b.catalog.Get(c.ChunkID)
		if err != nil {
			b.logger.Error().Str("chunk_id", c.ChunkID).Msg("reranked candidate missing from catalog")
			continue
		}
		out = append(out, resolvedCandidate{scored: c, chunk: chunk})
	}
	return out
}

func (b *Builder) filterByRating(candidates []resolvedCandidate) []resolvedCandidate {
	out := make([]resolvedCandidate, 0, len(candidates))
	for _, rc := range candidates {
		if rc.chunk.Metadata.IMDBRating < b.minRating {
			continue
		}
		out = append(out, rc)
	}
	return out
}

// dedupeNearIdentical keeps the first (higher-ranked) of any two chunks from
// the same source whose token sets are nearly the same, which is what the
// ingestion overlap produces for adjacent chunks.
func dedupeNearIdentical(candidates []resolvedCandidate) []resolvedCandidate {
	kept := make([]resolvedCandidate, 0, len(candidates))
	for _, rc := range candidates {
		duplicate := false
		for _, k := range kept {
			if k.chunk.SourceID != rc.chunk.SourceID {
				continue
			}
			if ochiai(k.chunk.Text, rc.chunk.Text) >= nearDuplicateThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, rc)
		}
	}
	return kept
}

// ochiai computes |A∩B| / sqrt(|A||B|) over the two texts' token sets.
func ochiai(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(setA))*float64(len(setB)))
}

func tokenSet(text string) map[string]struct{} {
	tokens := index.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func attribution(m corpus.Metadata) string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Year > 0 {
		fmt.Fprintf(&b, " (%d)", m.Year)
	}
	if m.IMDBRating > 0 {
		fmt.Fprintf(&b, ", IMDb %.1f", m.IMDBRating)
	}
	if m.ReviewAuthor != "" {
		fmt.Fprintf(&b, ", review by %s", m.ReviewAuthor)
		if m.ReviewRating > 0 {
			fmt.Fprintf(&b, " (%.0f/10)", m.ReviewRating)
		}
	} else if m.ReviewRating > 0 {
		fmt.Fprintf(&b, ", user review (%.0f/10)", m.ReviewRating)
	}
	return b.String()
}
