// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package llm

import "context"

// Message is a single turn in a conversation. Role is "system", "user", or
// "assistant".
type Message struct {
	Role    string
	Content string
}

// CompletionRequest carries the parameters for one completion call.
type CompletionRequest struct {
	// Messages is the conversation including system prompts.
	Messages []Message

	// Temperature controls randomness (0 = deterministic).
	Temperature float32

	// MaxTokens caps generation length.
	MaxTokens int

	// JSONMode asks the model to emit a single JSON object.
	JSONMode bool
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the generated text.
	Content string

	// FinishReason indicates why generation stopped ("stop", "length", ...).
	FinishReason string

	// Usage contains token usage statistics.
	Usage UsageStats

	// Model is the model that actually served the request.
	Model string
}

// UsageStats tracks token usage for a completion request.
type UsageStats struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the interface all LLM backends implement. The crawl engine
// only needs completions (query-space expansion); swapping providers is a
// construction-time decision.
type Provider interface {
	// Complete generates a completion for the given request.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "openai").
	Name() string

	// ModelName returns the specific model being used.
	ModelName() string
}

// Config contains common configuration options for LLM providers.
type Config struct {
	// Provider selects the LLM backend.
	Provider string

	// APIKey for authentication (if required).
	APIKey string

	// BaseURL overrides the default API endpoint.
	BaseURL string

	// Model selects the model (e.g., "gpt-4o-mini").
	Model string

	// DefaultTemperature applies when requests don't set one.
	DefaultTemperature float32

	// DefaultMaxTokens applies when requests don't set one.
	DefaultMaxTokens int

	// TimeoutSeconds bounds each API request.
	TimeoutSeconds int
}
