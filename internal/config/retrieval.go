// Package config loads the retrieval tunables from YAML and the service
// settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// RetrievalConfig holds the pipeline tunables. Fusion weighting and the
// rating threshold are policy choices, kept in configuration rather than
// code.
type RetrievalConfig struct {
	ChunkSize     int     `yaml:"chunk_size"`
	ChunkOverlap  int     `yaml:"chunk_overlap"`
	RetrieveCount int     `yaml:"retrieve_count"`
	FinalCount    int     `yaml:"final_count"`
	CharBudget    int     `yaml:"char_budget"`
	MinRating     float64 `yaml:"min_rating"`
	MemoryWindow  int     `yaml:"memory_window"`
	DenseWeight   float64 `yaml:"dense_weight"`

	MaxResponseTokens int `yaml:"max_response_tokens"`

	// Timeouts are plain seconds in the YAML file.
	DenseTimeoutSeconds      int `yaml:"dense_timeout_seconds"`
	RerankTimeoutSeconds     int `yaml:"rerank_timeout_seconds"`
	GenerationTimeoutSeconds int `yaml:"generation_timeout_seconds"`
}

func (c *RetrievalConfig) DenseTimeout() time.Duration {
	return time.Duration(c.DenseTimeoutSeconds) * time.Second
}

func (c *RetrievalConfig) RerankTimeout() time.Duration {
	return time.Duration(c.RerankTimeoutSeconds) * time.Second
}

func (c *RetrievalConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

func LoadRetrievalConfig() (*RetrievalConfig, error) {
	path := os.Getenv("RETRIEVAL_CONFIG_PATH")
	if path == "" {
		path = "configs/retrieval.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RetrievalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *RetrievalConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 600
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 100
	}
	if cfg.RetrieveCount == 0 {
		cfg.RetrieveCount = 50
	}
	if cfg.FinalCount == 0 {
		cfg.FinalCount = 12
	}
	if cfg.CharBudget == 0 {
		cfg.CharBudget = 6000
	}
	if cfg.MinRating == 0 {
		cfg.MinRating = 6.5
	}
	if cfg.MemoryWindow == 0 {
		cfg.MemoryWindow = 5
	}
	if cfg.DenseWeight == 0 {
		cfg.DenseWeight = 0.5
	}
	if cfg.MaxResponseTokens == 0 {
		cfg.MaxResponseTokens = 1024
	}
	if cfg.DenseTimeoutSeconds == 0 {
		cfg.DenseTimeoutSeconds = 5
	}
	if cfg.RerankTimeoutSeconds == 0 {
		cfg.RerankTimeoutSeconds = 10
	}
	if cfg.GenerationTimeoutSeconds == 0 {
		cfg.GenerationTimeoutSeconds = 30
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap %d must be smaller than chunk_size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.FinalCount > c.RetrieveCount {
		return fmt.Errorf("final_count %d must not exceed retrieve_count %d", c.FinalCount, c.RetrieveCount)
	}
	if c.DenseWeight < 0 || c.DenseWeight > 1 {
		return fmt.Errorf("dense_weight %v must be in [0,1]", c.DenseWeight)
	}
	return nil
}
