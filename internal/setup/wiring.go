// Package setup loads the environment configuration and wires the pipeline
// components together.
package setup

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/filberthamijoyo/CinematicAI/internal/bedrock"
	"github.com/filberthamijoyo/CinematicAI/internal/config"
	"github.com/filberthamijoyo/CinematicAI/internal/contextbuilder"
	"github.com/filberthamijoyo/CinematicAI/internal/conversation"
	"github.com/filberthamijoyo/CinematicAI/internal/corpus"
	"github.com/filberthamijoyo/CinematicAI/internal/index"
	"github.com/filberthamijoyo/CinematicAI/internal/pipeline"
	redisconn "github.com/filberthamijoyo/CinematicAI/internal/redis"
	"github.com/filberthamijoyo/CinematicAI/internal/rerank"
	"github.com/filberthamijoyo/CinematicAI/internal/retriever"
	"github.com/filberthamijoyo/CinematicAI/internal/vectorstore"
	"github.com/filberthamijoyo/CinematicAI/internal/vectorstore/memory"
	"github.com/filberthamijoyo/CinematicAI/internal/vectorstore/qdrant"
	"github.com/rs/zerolog"
)

type Config struct {
	LogLevel   string
	APIPort    string
	ReviewsCSV string

	RedisAddr         string
	RedisPassword     string
	SessionTTLMinutes int

	AWSRegion       string
	ClaudeModelID   string
	EmbedModelID    string
	EmbedDimensions int

	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	RerankerURL    string
	RerankerAPIKey string
}

type Dependencies struct {
	Orchestrator *pipeline.Orchestrator
	Sessions     *conversation.Memory
	Catalog      *corpus.Catalog
	Embedder     *bedrock.Titan
	VectorStore  vectorstore.Store
	Logger       *zerolog.Logger
}

func LoadConfig() *Config {
	return &Config{
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		APIPort:           getEnv("API_PORT", "18080"),
		ReviewsCSV:        getEnv("REVIEWS_CSV_PATH", "data/reviews.csv"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		SessionTTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 30),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		ClaudeModelID:     getEnv("CLAUDE_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
		EmbedModelID:      getEnv("EMBED_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		EmbedDimensions:   getEnvInt("EMBED_DIMENSIONS", 1024),
		QdrantURL:         getEnv("QDRANT_URL", ""),
		QdrantAPIKey:      getEnv("QDRANT_API_KEY", ""),
		QdrantCollection:  getEnv("QDRANT_COLLECTION", "movie-chunks"),
		RerankerURL:       getEnv("RERANKER_URL", ""),
		RerankerAPIKey:    getEnv("RERANKER_API_KEY", ""),
	}
}

// Wire builds the full dependency graph: corpus, indexes, memory, adapters,
// orchestrator. The sparse index and catalog are built once here and shared
// read-only by every request.
func Wire(ctx context.Context, cfg *Config, rcfg *config.RetrievalConfig, logger *zerolog.Logger) (*Dependencies, error) {
	chunks, err := LoadChunks(cfg.ReviewsCSV, rcfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("chunks", len(chunks)).Str("path", cfg.ReviewsCSV).Msg("Corpus loaded")

	catalog := corpus.NewCatalog(chunks)
	sparse := index.BuildSparse(chunks)

	bedrockClient, err := bedrock.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bedrock client: %w", err)
	}
	embedder := bedrock.NewTitan(bedrockClient, cfg.EmbedModelID, cfg.EmbedDimensions)
	generator := bedrock.NewClaude(bedrockClient, cfg.ClaudeModelID, 0.3)

	store, err := buildVectorStore(ctx, cfg, embedder, chunks, logger)
	if err != nil {
		return nil, err
	}
	dense := index.NewDense(store, rcfg.DenseTimeout(), logger)

	hybrid := retriever.NewHybrid(sparse, dense, embedder, rcfg.DenseWeight, rcfg.RetrieveCount, logger)

	reranker := rerank.NewCrossEncoder(rerank.Config{
		Endpoint: cfg.RerankerURL,
		APIKey:   cfg.RerankerAPIKey,
		Timeout:  rcfg.RerankTimeout(),
	}, logger)

	builder := contextbuilder.NewBuilder(catalog, rcfg.MinRating, logger)

	sessions, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	mem := conversation.NewMemory(sessions, catalog.Titles(), rcfg.MemoryWindow, logger)

	orchestrator := pipeline.NewOrchestrator(mem, hybrid, reranker, builder, generator, catalog, pipeline.Config{
		FinalCount:        rcfg.FinalCount,
		CharBudget:        rcfg.CharBudget,
		MaxResponseTokens: rcfg.MaxResponseTokens,
		GenerationTimeout: rcfg.GenerationTimeout(),
	}, logger)

	return &Dependencies{
		Orchestrator: orchestrator,
		Sessions:     mem,
		Catalog:      catalog,
		Embedder:     embedder,
		VectorStore:  store,
		Logger:       logger,
	}, nil
}

// LoadChunks parses the reviews CSV and chunks every document with the
// configured size and overlap. Shared with the ingest command.
func LoadChunks(path string, rcfg *config.RetrievalConfig) ([]corpus.Chunk, error) {
	parser := corpus.NewParser()
	movies, err := parser.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reviews: %w", err)
	}

	chunker := corpus.NewChunker(rcfg.ChunkSize, rcfg.ChunkOverlap)
	var chunks []corpus.Chunk
	for _, doc := range corpus.BuildDocuments(movies) {
		chunks = append(chunks, chunker.ChunkDocument(doc)...)
	}
	return chunks, nil
}

// buildVectorStore prefers Qdrant. Without a Qdrant URL the chunks are
// embedded at startup into the in-process store, which is only sensible for
// small corpora and local runs.
func buildVectorStore(ctx context.Context, cfg *Config, embedder *bedrock.Titan, chunks []corpus.Chunk, logger *zerolog.Logger) (vectorstore.Store, error) {
	if cfg.QdrantURL != "" {
		return qdrant.NewStore(qdrant.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}), nil
	}

	logger.Warn().Msg("QDRANT_URL not set, embedding corpus into the in-process vector store")
	store := memory.NewStore()
	if err := store.Init(ctx, cfg.EmbedDimensions); err != nil {
		return nil, err
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		texts[i] = c.Text
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed corpus: %w", err)
	}
	if err := store.Upsert(ctx, ids, vectors); err != nil {
		return nil, err
	}
	return store, nil
}

func buildSessionStore(ctx context.Context, cfg *Config, logger *zerolog.Logger) (conversation.Store, error) {
	if cfg.RedisAddr == "" {
		return conversation.NewMemoryStore(), nil
	}
	client, err := redisconn.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, 5, logger)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	return conversation.NewRedisStore(client, ttl), nil
}

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}

	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		value = defaultValue
	}

	return value
}
