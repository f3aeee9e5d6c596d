// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"adaptive-crawler/pkg/llm"
)

// QueryExpander produces variations of a query that explore its semantic
// neighborhood. The original query is added by the caller, not the expander.
type QueryExpander interface {
	ExpandQuery(ctx context.Context, query string, n int) ([]string, error)
}

// LLMQueryExpander expands queries with a fast LLM.
type LLMQueryExpander struct {
	provider    llm.Provider
	temperature float32
	maxTokens   int
}

// NewLLMQueryExpander creates an expander backed by the given provider.
func NewLLMQueryExpander(provider llm.Provider) *LLMQueryExpander {
	return &LLMQueryExpander{
		provider:    provider,
		temperature: 0.7,
		maxTokens:   1024,
	}
}

const systemPromptExpander = `You generate variations of search queries for information retrieval. Respond with a JSON object of the form {"queries": ["...", "..."]} and nothing else.`

// ExpandQuery asks the LLM for n query variations as a JSON payload.
func (e *LLMQueryExpander) ExpandQuery(ctx context.Context, query string, n int) ([]string, error) {
	prompt := fmt.Sprintf(`Generate %d variations of this query that explore different aspects: %q

These should be queries a user might ask when looking for similar information.
Include different phrasings, related concepts, and specific aspects.`, n, query)

	resp, err := e.provider.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: systemPromptExpander},
			{Role: "user", Content: prompt},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("query expansion failed: %w", err)
	}

	variations, err := parseQueryVariations(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("query expansion returned unusable output: %w", err)
	}
	if len(variations) < n {
		return nil, fmt.Errorf("query expansion returned %d variations, wanted %d", len(variations), n)
	}
	return variations, nil
}

// parseQueryVariations accepts either {"queries": [...]} or a bare JSON
// array, tolerating surrounding prose.
func parseQueryVariations(content string) ([]string, error) {
	content = strings.TrimSpace(content)

	var wrapped struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.Queries) > 0 {
		return cleanVariations(wrapped.Queries), nil
	}

	var bare []string
	if err := json.Unmarshal([]byte(content), &bare); err == nil && len(bare) > 0 {
		return cleanVariations(bare), nil
	}

	// Some models wrap JSON in code fences or prose; find the first array.
	if start := strings.Index(content, "["); start >= 0 {
		if end := strings.LastIndex(content, "]"); end > start {
			if err := json.Unmarshal([]byte(content[start:end+1]), &bare); err == nil && len(bare) > 0 {
				return cleanVariations(bare), nil
			}
		}
	}

	return nil, fmt.Errorf("no query array found in %q", truncateForError(content))
}

func cleanVariations(in []string) []string {
	out := in[:0]
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func truncateForError(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
