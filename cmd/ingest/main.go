package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/filberthamijoyo/CinematicAI/internal/bedrock"
	"github.com/filberthamijoyo/CinematicAI/internal/config"
	"github.com/filberthamijoyo/CinematicAI/internal/setup"
	"github.com/filberthamijoyo/CinematicAI/internal/vectorstore/qdrant"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const upsertBatchSize = 64

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	filePath := flag.String("filePath", "data/reviews.csv", "Relative path to the reviews CSV")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Unable to load env variables")
	}

	cfg := setup.LoadConfig()
	if cfg.QdrantURL == "" {
		log.Fatal().Msg("QDRANT_URL is required for ingestion")
	}

	rcfg, err := config.LoadRetrievalConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load retrieval config")
	}

	ctx := context.Background()

	chunks, err := setup.LoadChunks(*filePath, rcfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load corpus")
	}
	log.Info().Int("chunks", len(chunks)).Str("path", *filePath).Msg("Corpus chunked")

	bedrockClient, err := bedrock.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to create bedrock client")
	}
	embedder := bedrock.NewTitan(bedrockClient, cfg.EmbedModelID, cfg.EmbedDimensions)

	store := qdrant.NewStore(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})
	if err := store.Init(ctx, cfg.EmbedDimensions); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize collection")
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		ids := make([]string, len(batch))
		texts := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
			texts[i] = c.Text
		}

		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			log.Fatal().Err(err).Int("batch_start", start).Msg("Embedding failed")
		}
		if err := store.Upsert(ctx, ids, vectors); err != nil {
			log.Fatal().Err(err).Int("batch_start", start).Msg("Upsert failed")
		}
		log.Info().Int("upserted", end).Int("total", len(chunks)).Msg("Batch ingested")
	}

	log.Info().Msg("Ingestion successful!")
}
