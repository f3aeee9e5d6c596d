// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements Embedder using OpenAI's embedding models.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	config     *Config
}

// Dimensions of common OpenAI embedding models.
const (
	DimensionsTextEmbedding3Small = 1536
	DimensionsTextEmbedding3Large = 3072
	DimensionsTextEmbeddingAda002 = 1536
)

// NewOpenAIEmbedder creates an OpenAI-backed embedder.
func NewOpenAIEmbedder(apiKey, model string, config *Config) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		return nil, errors.New("embedding model name is required")
	}

	if config == nil {
		config = &Config{
			Provider:       "openai",
			APIKey:         apiKey,
			Model:          model,
			BatchSize:      100,
			TimeoutSeconds: 30,
		}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: dimensionsForModel(model),
		config:     config,
	}, nil
}

func dimensionsForModel(model string) int {
	switch model {
	case "text-embedding-3-small":
		return DimensionsTextEmbedding3Small
	case "text-embedding-3-large":
		return DimensionsTextEmbedding3Large
	default:
		return DimensionsTextEmbeddingAda002
	}
}

// Embed generates embeddings for the given texts, batching requests to stay
// under API limits. Rows come back in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts cannot be empty")
	}

	if e.config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.config.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	batchSize := e.config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: texts[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI embedding request failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(resp.Data))
		}

		for _, item := range resp.Data {
			vectors = append(vectors, item.Embedding)
		}
	}

	return vectors, nil
}

// Dimensions returns the dimensionality of produced vectors.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the embedding model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
