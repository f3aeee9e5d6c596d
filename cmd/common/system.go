// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package common

import (
	"errors"
	"fmt"
	"os"

	"adaptive-crawler/internal/config"
	"adaptive-crawler/pkg/crawler"
	"adaptive-crawler/pkg/embedding"
	"adaptive-crawler/pkg/fetcher"
	"adaptive-crawler/pkg/llm"
	llmopenai "adaptive-crawler/pkg/llm/openai"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// System bundles the wired components a CLI command works with.
type System struct {
	Config  *config.Config
	Crawler *crawler.AdaptiveCrawler
	Log     *logrus.Logger
}

// LoadConfig reads the config file when it exists, otherwise returns
// defaults. Environment files (.env, .env.local) are loaded first so
// provider credentials resolve during wiring.
func LoadConfig(path string) (*config.Config, error) {
	loadEnvFiles()

	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

// InitializeSystem wires the fetcher, providers, and crawler for the given
// configuration.
func InitializeSystem(cfg *config.Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := NewLogger()
	f := fetcher.NewHTTPFetcher()

	var deps *crawler.StrategyDeps
	if cfg.Strategy == config.StrategyEmbedding {
		var err error
		deps, err = embeddingDeps(cfg)
		if err != nil {
			return nil, err
		}
	}

	c, err := crawler.New(cfg, f, deps, log)
	if err != nil {
		return nil, err
	}

	return &System{
		Config:  cfg,
		Crawler: c,
		Log:     log,
	}, nil
}

// embeddingDeps builds the OpenAI-backed embedder and query expander the
// embedding strategy requires.
func embeddingDeps(cfg *config.Config) (*crawler.StrategyDeps, error) {
	apiKey := getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", ""))
	if apiKey == "" {
		return nil, errors.New("embedding strategy requires OPENAI_API_KEY (or EMBEDDING_API_KEY)")
	}

	embedder, err := embedding.NewOpenAIEmbedder(apiKey, cfg.EmbeddingModel, &embedding.Config{
		Provider:       "openai",
		APIKey:         apiKey,
		BaseURL:        getEnv("EMBEDDING_BASE_URL", ""),
		Model:          cfg.EmbeddingModel,
		BatchSize:      100,
		TimeoutSeconds: 30,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	expansionModel := getEnv("EXPANSION_LLM_MODEL", "gpt-4o-mini")
	provider, err := llmopenai.NewProvider(getEnv("EXPANSION_LLM_API_KEY", apiKey), expansionModel, &llm.Config{
		Provider:           "openai",
		BaseURL:            getEnv("EXPANSION_LLM_BASE_URL", ""),
		Model:              expansionModel,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   1024,
		TimeoutSeconds:     60,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query expander: %w", err)
	}

	return &crawler.StrategyDeps{
		Embedder: embedder,
		Expander: crawler.NewLLMQueryExpander(provider),
	}, nil
}

// NewLogger builds the structured logger used across commands. LOG_LEVEL
// and LOG_FORMAT (text|json) come from the environment.
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if getEnv("LOG_FORMAT", "text") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadEnvFiles() {
	for _, file := range []string{".env", ".env.local"} {
		envMap, err := godotenv.Read(file)
		if err != nil {
			continue
		}
		for key, value := range envMap {
			if current, exists := os.LookupEnv(key); !exists || current == "" {
				_ = os.Setenv(key, value)
			}
		}
	}
}
