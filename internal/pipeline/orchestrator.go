// Package pipeline sequences one recommendation request through augmentation,
// retrieval, reranking, context assembly and generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/filberthamijoyo/CinematicAI/internal/contextbuilder"
	"github.com/filberthamijoyo/CinematicAI/internal/conversation"
	"github.com/filberthamijoyo/CinematicAI/internal/corpus"
	"github.com/filberthamijoyo/CinematicAI/internal/rerank"
	"github.com/filberthamijoyo/CinematicAI/internal/retriever"
	"github.com/rs/zerolog"
)

// InsufficientAnswer is returned when no retrieved chunk fits the context
// budget. It is a legitimate outcome, not a failure.
const InsufficientAnswer = "I don't have enough information about movies matching that request. Could you rephrase or ask about something else?"

// FailedAnswer is the user-visible text for a terminal Failed state.
const FailedAnswer = "Something went wrong and no recommendation could be produced for this request."

// Memory augments queries with session history and records completed turns.
type Memory interface {
	Lock(sessionID string) func()
	Augment(ctx context.Context, sessionID, rawQuery string) (string, error)
	Record(ctx context.Context, sessionID string, turn conversation.Turn) error
	ProfileSummary(ctx context.Context, sessionID string) (string, error)
	ExtractTitles(text string) []string
}

// Retriever produces the fused candidate pool for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (retriever.Result, error)
}

// Reranker re-orders the candidate pool with an external scorer.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []rerank.Passage, topK int) ([]rerank.Scored, error)
}

// Builder assembles the prompt context from reranked candidates.
type Builder interface {
	Build(candidates []rerank.Scored, charBudget int) (contextbuilder.PromptContext, error)
}

// Generator produces the final response text.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Catalog resolves chunk ids to their text and metadata.
type Catalog interface {
	Get(chunkID string) (corpus.Chunk, error)
}

type Config struct {
	// FinalCount bounds the reranked candidate list.
	FinalCount int
	// CharBudget bounds the assembled context size in characters.
	CharBudget int
	// MaxResponseTokens is passed to the generator.
	MaxResponseTokens int
	// GenerationTimeout bounds the single generator call.
	GenerationTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FinalCount <= 0 {
		c.FinalCount = 12
	}
	if c.CharBudget <= 0 {
		c.CharBudget = 6000
	}
	if c.MaxResponseTokens <= 0 {
		c.MaxResponseTokens = 1024
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 30 * time.Second
	}
	return c
}

// Orchestrator drives the request state machine. Shared collaborators are
// read-only per request; session state is serialized through Memory.Lock.
type Orchestrator struct {
	memory    Memory
	retriever Retriever
	reranker  Reranker
	builder   Builder
	generator Generator
	catalog   Catalog
	cfg       Config
	logger    *zerolog.Logger
}

func NewOrchestrator(
	memory Memory,
	ret Retriever,
	reranker Reranker,
	builder Builder,
	generator Generator,
	catalog Catalog,
	cfg Config,
	logger *zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		memory:    memory,
		retriever: ret,
		reranker:  reranker,
		builder:   builder,
		generator: generator,
		catalog:   catalog,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Answer runs the full pipeline for one request. It holds the session lock
// from augmentation through recording so a later request for the same session
// observes this one's turn.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Response, error) {
	unlock := o.memory.Lock(req.SessionID)
	defer unlock()

	resp := Response{SessionID: req.SessionID, State: StateReceived}

	effective, err := o.memory.Augment(ctx, req.SessionID, req.Query)
	if err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			// No session to record the failure into.
			resp.State = StateFailed
			resp.FailReason = "session not found"
			return resp, err
		}
		return o.fail(ctx, req, resp, fmt.Errorf("augmentation failed: %w", err))
	}
	resp.State = StateAugmented
	resp.EffectiveQuery = effective

	result, err := o.retriever.Retrieve(ctx, effective)
	if err != nil {
		return o.fail(ctx, req, resp, err)
	}
	resp.State = StateRetrieved
	resp.Degraded = result.Degraded

	scored := o.rerankStage(ctx, effective, result.Candidates, &resp)
	resp.State = StateReranked

	promptCtx, err := o.builder.Build(scored, o.cfg.CharBudget)
	if errors.Is(err, contextbuilder.ErrContextEmpty) {
		return o.insufficient(ctx, req, resp)
	}
	if err != nil {
		return o.fail(ctx, req, resp, fmt.Errorf("context assembly failed: %w", err))
	}
	resp.State = StateContextBuilt
	resp.Evidence = promptCtx.ChunkIDs()

	profileLine, err := o.memory.ProfileSummary(ctx, req.SessionID)
	if err != nil {
		o.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Profile unavailable, prompting without it")
		profileLine = ""
	}
	prompt := o.buildPrompt(effective, profileLine, promptCtx)
	resp.State = StatePromptReady

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()
	answer, err := o.generator.Generate(genCtx, prompt, o.cfg.MaxResponseTokens)
	if err != nil {
		return o.fail(ctx, req, resp, fmt.Errorf("generation failed: %w", err))
	}
	resp.Answer = answer

	turn := conversation.Turn{
		UserQuery: req.Query,
		Facts:     o.extractFacts(req.Query, answer, resp.Evidence),
		Response:  answer,
		Evidence:  resp.Evidence,
	}
	if err := o.record(ctx, req.SessionID, turn); err != nil {
		return resp, err
	}
	resp.State = StateRecorded

	o.logger.Info().
		Str("session_id", req.SessionID).
		Bool("degraded", resp.Degraded).
		Int("evidence_count", len(resp.Evidence)).
		Msg("Request completed")
	return resp, nil
}

// rerankStage reranks the candidate pool, falling back to the pre-rerank
// order truncated to the final count when the scorer is unavailable.
func (o *Orchestrator) rerankStage(ctx context.Context, query string, candidates []retriever.Candidate, resp *Response) []rerank.Scored {
	passages := make([]rerank.Passage, 0, len(candidates))
	preRerank := make([]rerank.Scored, 0, len(candidates))
	for _, c := range candidates {
		chunk, err := o.catalog.Get(c.ChunkID)
		if err != nil {
			o.logger.Error().Str("chunk_id", c.ChunkID).Msg("retrieved candidate missing from catalog")
			continue
		}
		passages = append(passages, rerank.Passage{ChunkID: c.ChunkID, Text: chunk.Text})
		preRerank = append(preRerank, rerank.Scored{ChunkID: c.ChunkID, Score: c.Score})
	}

	scored, err := o.reranker.Rerank(ctx, query, passages, o.cfg.FinalCount)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Reranker unavailable, keeping retrieval order")
		resp.Degraded = true
		if len(preRerank) > o.cfg.FinalCount {
			preRerank = preRerank[:o.cfg.FinalCount]
		}
		return preRerank
	}
	return scored
}

// insufficient is the ContextEmpty outcome: a recorded turn with an explicit
// no-information answer, not a Failed state.
func (o *Orchestrator) insufficient(ctx context.Context, req Request, resp Response) (Response, error) {
	resp.Insufficient = true
	resp.Answer = InsufficientAnswer

	turn := conversation.Turn{
		UserQuery: req.Query,
		Response:  InsufficientAnswer,
	}
	if err := o.record(ctx, req.SessionID, turn); err != nil {
		return resp, err
	}
	resp.State = StateRecorded
	return resp, nil
}

// fail moves the request to the terminal Failed state and still records a
// turn noting the failure, so memory reflects that no answer was produced.
func (o *Orchestrator) fail(ctx context.Context, req Request, resp Response, cause error) (Response, error) {
	o.logger.Error().
		Err(cause).
		Str("session_id", req.SessionID).
		Str("stage", string(resp.State)).
		Msg("Request failed")

	resp.State = StateFailed
	resp.FailReason = cause.Error()
	resp.Answer = FailedAnswer

	turn := conversation.Turn{
		UserQuery: req.Query,
		Response:  FailedAnswer,
		Failed:    true,
	}
	if err := o.record(ctx, req.SessionID, turn); err != nil {
		o.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Failed to record failure turn")
	}
	return resp, cause
}

// record appends the turn unless the caller already abandoned the request. A
// cancelled request must leave no partial write in conversation memory.
func (o *Orchestrator) record(ctx context.Context, sessionID string, turn conversation.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.memory.Record(ctx, sessionID, turn); err != nil {
		return fmt.Errorf("failed to record turn: %w", err)
	}
	return nil
}

// extractFacts pulls the preference signals out of one exchange: titles from
// the query and answer text, genres, directors and cast from the evidence
// chunk metadata.
func (o *Orchestrator) extractFacts(query, answer string, evidence []string) conversation.Facts {
	facts := conversation.Facts{
		Titles: o.memory.ExtractTitles(query + " " + answer),
	}

	seenGenre := map[string]struct{}{}
	seenDirector := map[string]struct{}{}
	seenActor := map[string]struct{}{}
	for _, id := range evidence {
		chunk, err := o.catalog.Get(id)
		if err != nil {
			continue
		}
		for _, g := range chunk.Metadata.Genres {
			if _, ok := seenGenre[g]; !ok {
				seenGenre[g] = struct{}{}
				facts.Genres = append(facts.Genres, g)
			}
		}
		if d := chunk.Metadata.Director; d != "" {
			if _, ok := seenDirector[d]; !ok {
				seenDirector[d] = struct{}{}
				facts.Directors = append(facts.Directors, d)
			}
		}
		for _, a := range chunk.Metadata.Cast {
			if _, ok := seenActor[a]; !ok {
				seenActor[a] = struct{}{}
				facts.Actors = append(facts.Actors, a)
			}
		}
	}
	return facts
}

func (o *Orchestrator) buildPrompt(query, profileLine string, promptCtx contextbuilder.PromptContext) string {
	var db strings.Builder
	db.WriteString("Movie reviews and details:\n<context>\n")
	db.WriteString(promptCtx.Text())
	db.WriteString("\n</context>\n")
	if profileLine != "" {
		db.WriteString("\n")
		db.WriteString(profileLine)
		db.WriteString("\n")
	}

	return fmt.Sprintf(`You are a movie recommendation assistant.

%s
Current request: %s

Recommend movies grounded in the reviews above. Mention the movie title for every recommendation and do not invent movies that are not in the context.`,
		db.String(), query)
}
