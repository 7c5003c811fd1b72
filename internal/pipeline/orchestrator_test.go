package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/filberthamijoyo/CinematicAI/internal/contextbuilder"
	"github.com/filberthamijoyo/CinematicAI/internal/conversation"
	"github.com/filberthamijoyo/CinematicAI/internal/corpus"
	"github.com/filberthamijoyo/CinematicAI/internal/pipeline/mocks"
	"github.com/filberthamijoyo/CinematicAI/internal/rerank"
	"github.com/filberthamijoyo/CinematicAI/internal/retriever"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type testHarness struct {
	memory    *mocks.MockMemory
	retriever *mocks.MockRetriever
	reranker  *mocks.MockReranker
	builder   *mocks.MockBuilder
	generator *mocks.MockGenerator
	catalog   *mocks.MockCatalog
}

func newHarness(ctrl *gomock.Controller) *testHarness {
	return &testHarness{
		memory:    mocks.NewMockMemory(ctrl),
		retriever: mocks.NewMockRetriever(ctrl),
		reranker:  mocks.NewMockReranker(ctrl),
		builder:   mocks.NewMockBuilder(ctrl),
		generator: mocks.NewMockGenerator(ctrl),
		catalog:   mocks.NewMockCatalog(ctrl),
	}
}

func (h *testHarness) orchestrator(cfg Config) *Orchestrator {
	return NewOrchestrator(h.memory, h.retriever, h.reranker, h.builder, h.generator, h.catalog, cfg, newTestLogger())
}

func testConfig() Config {
	return Config{FinalCount: 2, CharBudget: 1000, MaxResponseTokens: 256, GenerationTimeout: time.Second}
}

func chunkFor(id string) corpus.Chunk {
	return corpus.Chunk{
		ID:       id,
		SourceID: "blade-runner-1982",
		Text:     "A moody neo-noir set in a rain-soaked future Los Angeles.",
		Metadata: corpus.Metadata{
			Title:    "Blade Runner",
			Year:     1982,
			Genres:   []string{"Sci-Fi"},
			Director: "Ridley Scott",
		},
	}
}

func TestOrchestrator_Answer_FullPipeline(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "a gritty sci-fi movie"}

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return(req.Query, nil)

	candidates := []retriever.Candidate{
		{ChunkID: "c1", Score: 0.9, Method: retriever.MethodBoth},
		{ChunkID: "c2", Score: 0.4, Method: retriever.MethodSparse},
	}
	h.retriever.EXPECT().Retrieve(gomock.Any(), req.Query).Return(retriever.Result{Candidates: candidates}, nil)
	h.catalog.EXPECT().Get(gomock.Any()).Return(chunkFor("c1"), nil).AnyTimes()

	scored := []rerank.Scored{{ChunkID: "c1", Score: 2.1}, {ChunkID: "c2", Score: 0.3}}
	h.reranker.EXPECT().Rerank(gomock.Any(), req.Query, gomock.Len(2), 2).Return(scored, nil)

	promptCtx := contextbuilder.PromptContext{
		Entries: []contextbuilder.Entry{{ChunkID: "c1", Text: "chunk text", Attribution: "Blade Runner (1982)"}},
	}
	h.builder.EXPECT().Build(scored, 1000).Return(promptCtx, nil)

	h.memory.EXPECT().ProfileSummary(gomock.Any(), "s1").Return("Viewer preferences: favors Sci-Fi.", nil)
	var prompt string
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), 256).DoAndReturn(
		func(_ context.Context, p string, _ int) (string, error) {
			prompt = p
			return "Watch Blade Runner.", nil
		})
	h.memory.EXPECT().ExtractTitles(gomock.Any()).Return([]string{"Blade Runner"})

	var recorded conversation.Turn
	h.memory.EXPECT().Record(gomock.Any(), "s1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, turn conversation.Turn) error {
			recorded = turn
			return nil
		})

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.State != StateRecorded {
		t.Errorf("state = %s, want %s", resp.State, StateRecorded)
	}
	if resp.Answer != "Watch Blade Runner." {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if len(resp.Evidence) != 1 || resp.Evidence[0] != "c1" {
		t.Errorf("unexpected evidence %v", resp.Evidence)
	}
	if resp.Degraded {
		t.Error("full pipeline must not be degraded")
	}
	if recorded.Failed || recorded.Response != "Watch Blade Runner." {
		t.Errorf("unexpected recorded turn %+v", recorded)
	}
	if len(recorded.Facts.Titles) != 1 || recorded.Facts.Titles[0] != "Blade Runner" {
		t.Errorf("unexpected turn facts %+v", recorded.Facts)
	}
	if len(recorded.Facts.Genres) != 1 || recorded.Facts.Genres[0] != "Sci-Fi" {
		t.Errorf("expected genre fact from evidence metadata, got %+v", recorded.Facts)
	}
	if !strings.Contains(prompt, "Viewer preferences: favors Sci-Fi.") {
		t.Error("prompt must carry the preference profile line")
	}
}

func TestOrchestrator_Answer_DegradedRetrievalStillRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "space horror"}

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return(req.Query, nil)

	// Dense path down: sparse-only result tagged degraded.
	result := retriever.Result{
		Candidates: []retriever.Candidate{{ChunkID: "c1", Score: 1, Method: retriever.MethodSparse}},
		Degraded:   true,
	}
	h.retriever.EXPECT().Retrieve(gomock.Any(), req.Query).Return(result, nil)
	h.catalog.EXPECT().Get(gomock.Any()).Return(chunkFor("c1"), nil).AnyTimes()

	scored := []rerank.Scored{{ChunkID: "c1", Score: 1.5}}
	h.reranker.EXPECT().Rerank(gomock.Any(), req.Query, gomock.Any(), 2).Return(scored, nil)
	h.builder.EXPECT().Build(scored, 1000).Return(contextbuilder.PromptContext{
		Entries: []contextbuilder.Entry{{ChunkID: "c1", Text: "t"}},
	}, nil)
	h.memory.EXPECT().ProfileSummary(gomock.Any(), "s1").Return("", nil)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), 256).Return("Try Alien.", nil)
	h.memory.EXPECT().ExtractTitles(gomock.Any()).Return(nil)
	h.memory.EXPECT().Record(gomock.Any(), "s1", gomock.Any()).Return(nil)

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.State != StateRecorded {
		t.Errorf("degraded retrieval must still reach %s, got %s", StateRecorded, resp.State)
	}
	if !resp.Degraded {
		t.Error("response must carry the degraded tag")
	}
}

func TestOrchestrator_Answer_RerankUnavailableFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "heist movies"}

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return(req.Query, nil)

	candidates := []retriever.Candidate{
		{ChunkID: "c1", Score: 0.9, Method: retriever.MethodBoth},
		{ChunkID: "c2", Score: 0.7, Method: retriever.MethodDense},
		{ChunkID: "c3", Score: 0.5, Method: retriever.MethodSparse},
	}
	h.retriever.EXPECT().Retrieve(gomock.Any(), req.Query).Return(retriever.Result{Candidates: candidates}, nil)
	h.catalog.EXPECT().Get(gomock.Any()).Return(chunkFor("c1"), nil).AnyTimes()

	h.reranker.EXPECT().Rerank(gomock.Any(), req.Query, gomock.Any(), 2).Return(nil, rerank.ErrUnavailable)

	// Pre-rerank order truncated to the final count.
	fallback := []rerank.Scored{{ChunkID: "c1", Score: 0.9}, {ChunkID: "c2", Score: 0.7}}
	h.builder.EXPECT().Build(fallback, 1000).Return(contextbuilder.PromptContext{
		Entries: []contextbuilder.Entry{{ChunkID: "c1", Text: "t"}},
	}, nil)
	h.memory.EXPECT().ProfileSummary(gomock.Any(), "s1").Return("", nil)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), 256).Return("Try Heat.", nil)
	h.memory.EXPECT().ExtractTitles(gomock.Any()).Return(nil)
	h.memory.EXPECT().Record(gomock.Any(), "s1", gomock.Any()).Return(nil)

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.State != StateRecorded {
		t.Errorf("rerank fallback must still reach %s, got %s", StateRecorded, resp.State)
	}
	if !resp.Degraded {
		t.Error("rerank fallback must tag the response degraded")
	}
}

func TestOrchestrator_Answer_RetrievalFailedRecordsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "anything"}

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return(req.Query, nil)
	h.retriever.EXPECT().Retrieve(gomock.Any(), req.Query).Return(retriever.Result{}, retriever.ErrRetrievalFailed)

	var recorded conversation.Turn
	h.memory.EXPECT().Record(gomock.Any(), "s1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, turn conversation.Turn) error {
			recorded = turn
			return nil
		})

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if !errors.Is(err, retriever.ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed, got %v", err)
	}
	if resp.State != StateFailed {
		t.Errorf("state = %s, want %s", resp.State, StateFailed)
	}
	if !recorded.Failed {
		t.Error("failure turn must be recorded with the failed flag")
	}
	if resp.Answer != FailedAnswer {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
}

func TestOrchestrator_Answer_ContextEmptyIsInsufficientNotFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "films about competitive snail racing"}

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return(req.Query, nil)
	h.retriever.EXPECT().Retrieve(gomock.Any(), req.Query).Return(retriever.Result{
		Candidates: []retriever.Candidate{{ChunkID: "c1", Score: 0.1, Method: retriever.MethodDense}},
	}, nil)
	h.catalog.EXPECT().Get(gomock.Any()).Return(chunkFor("c1"), nil).AnyTimes()
	h.reranker.EXPECT().Rerank(gomock.Any(), req.Query, gomock.Any(), 2).Return([]rerank.Scored{{ChunkID: "c1", Score: 0.1}}, nil)
	h.builder.EXPECT().Build(gomock.Any(), 1000).Return(contextbuilder.PromptContext{}, contextbuilder.ErrContextEmpty)

	var recorded conversation.Turn
	h.memory.EXPECT().Record(gomock.Any(), "s1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, turn conversation.Turn) error {
			recorded = turn
			return nil
		})

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.State != StateRecorded {
		t.Errorf("state = %s, want %s", resp.State, StateRecorded)
	}
	if !resp.Insufficient {
		t.Error("response must carry the insufficient tag")
	}
	if resp.Answer != InsufficientAnswer {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if recorded.Failed {
		t.Error("insufficient outcome is a completed turn, not a failure")
	}
}

func TestOrchestrator_Answer_GenerationFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "a western"}
	genErr := errors.New("model throttled")

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return(req.Query, nil)
	h.retriever.EXPECT().Retrieve(gomock.Any(), req.Query).Return(retriever.Result{
		Candidates: []retriever.Candidate{{ChunkID: "c1", Score: 1, Method: retriever.MethodSparse}},
	}, nil)
	h.catalog.EXPECT().Get(gomock.Any()).Return(chunkFor("c1"), nil).AnyTimes()
	h.reranker.EXPECT().Rerank(gomock.Any(), req.Query, gomock.Any(), 2).Return([]rerank.Scored{{ChunkID: "c1", Score: 1}}, nil)
	h.builder.EXPECT().Build(gomock.Any(), 1000).Return(contextbuilder.PromptContext{
		Entries: []contextbuilder.Entry{{ChunkID: "c1", Text: "t"}},
	}, nil)
	h.memory.EXPECT().ProfileSummary(gomock.Any(), "s1").Return("", nil)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), 256).Return("", genErr)

	var recorded conversation.Turn
	h.memory.EXPECT().Record(gomock.Any(), "s1", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, turn conversation.Turn) error {
			recorded = turn
			return nil
		})

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if !errors.Is(err, genErr) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if resp.State != StateFailed {
		t.Errorf("state = %s, want %s", resp.State, StateFailed)
	}
	if !recorded.Failed {
		t.Error("generation failure must still record a failed turn")
	}
}

func TestOrchestrator_Answer_NoUsableQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "   "}

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return("", conversation.ErrNoUsableQuery)
	h.memory.EXPECT().Record(gomock.Any(), "s1", gomock.Any()).Return(nil)

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if !errors.Is(err, conversation.ErrNoUsableQuery) {
		t.Fatalf("expected ErrNoUsableQuery, got %v", err)
	}
	if resp.State != StateFailed {
		t.Errorf("state = %s, want %s", resp.State, StateFailed)
	}
}

func TestOrchestrator_Answer_SessionNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "missing", Query: "a thriller"}

	h.memory.EXPECT().Lock("missing").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "missing", req.Query).Return("", conversation.ErrSessionNotFound)
	// No Record call: there is no session to write into.

	resp, err := h.orchestrator(testConfig()).Answer(context.Background(), req)
	if !errors.Is(err, conversation.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if resp.State != StateFailed {
		t.Errorf("state = %s, want %s", resp.State, StateFailed)
	}
}

func TestOrchestrator_Answer_CancelledRequestNeverRecords(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	req := Request{SessionID: "s1", Query: "a comedy"}

	ctx, cancel := context.WithCancel(context.Background())

	h.memory.EXPECT().Lock("s1").Return(func() {})
	h.memory.EXPECT().Augment(gomock.Any(), "s1", req.Query).Return(req.Query, nil)
	h.retriever.EXPECT().Retrieve(gomock.Any(), req.Query).Return(retriever.Result{
		Candidates: []retriever.Candidate{{ChunkID: "c1", Score: 1, Method: retriever.MethodSparse}},
	}, nil)
	h.catalog.EXPECT().Get(gomock.Any()).Return(chunkFor("c1"), nil).AnyTimes()
	h.reranker.EXPECT().Rerank(gomock.Any(), req.Query, gomock.Any(), 2).Return([]rerank.Scored{{ChunkID: "c1", Score: 1}}, nil)
	h.builder.EXPECT().Build(gomock.Any(), 1000).Return(contextbuilder.PromptContext{
		Entries: []contextbuilder.Entry{{ChunkID: "c1", Text: "t"}},
	}, nil)
	h.memory.EXPECT().ProfileSummary(gomock.Any(), "s1").Return("", nil)
	h.generator.EXPECT().Generate(gomock.Any(), gomock.Any(), 256).DoAndReturn(
		func(context.Context, string, int) (string, error) {
			// Caller abandons the request while generation is in flight.
			cancel()
			return "late answer", nil
		})
	h.memory.EXPECT().ExtractTitles(gomock.Any()).Return(nil).AnyTimes()
	// No Record call: a cancelled request must not write to memory.

	resp, err := h.orchestrator(testConfig()).Answer(ctx, req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if resp.State == StateRecorded {
		t.Error("cancelled request must not reach the recorded state")
	}
}

func TestOrchestrator_BuildPromptShape(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	h := newHarness(ctrl)

	o := h.orchestrator(testConfig())
	promptCtx := contextbuilder.PromptContext{
		Entries: []contextbuilder.Entry{
			{ChunkID: "c1", Text: "A moody neo-noir.", Attribution: "Blade Runner (1982), IMDb 8.1"},
		},
	}

	prompt := o.buildPrompt("gritty sci-fi", "Viewer preferences: favors Sci-Fi; liked Alien.", promptCtx)
	for _, want := range []string{"<context>", "</context>", "Blade Runner (1982), IMDb 8.1", "A moody neo-noir.", "Viewer preferences: favors Sci-Fi; liked Alien.", "Current request: gritty sci-fi"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	bare := o.buildPrompt("gritty sci-fi", "", promptCtx)
	if strings.Contains(bare, "Viewer preferences") {
		t.Error("empty profile must not leave a stray preferences line")
	}
}
