// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"context"
	"fmt"

	"adaptive-crawler/internal/config"
	"adaptive-crawler/pkg/fetcher"
)

// ScoredLink pairs a pending link with its expected information gain.
type ScoredLink struct {
	Link  fetcher.Link
	Score float64
}

// Strategy decides how an adaptive crawl progresses. Implementations must
// treat Confidence, RankLinks, and ShouldStop as reads (metrics writes
// aside); only UpdateState mutates non-metric state.
type Strategy interface {
	// UpdateState integrates freshly fetched documents into state.
	UpdateState(ctx context.Context, state *CrawlState, results []*fetcher.Result) error

	// Confidence estimates how well state answers the query (0-1) and
	// writes component metrics into state.Metrics.
	Confidence(ctx context.Context, state *CrawlState) (float64, error)

	// RankLinks scores uncrawled pending links, descending by score.
	RankLinks(ctx context.Context, state *CrawlState, cfg *config.Config) ([]ScoredLink, error)

	// ShouldStop is the terminal test for the loop.
	ShouldStop(ctx context.Context, state *CrawlState, cfg *config.Config) (bool, error)
}

// newStrategy builds the strategy named by cfg.Strategy. The embedding
// strategy needs its collaborators supplied by the caller.
func newStrategy(cfg *config.Config, deps *StrategyDeps) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyStatistical:
		return NewStatisticalStrategy(cfg), nil
	case config.StrategyEmbedding:
		if deps == nil || deps.Embedder == nil {
			return nil, fmt.Errorf("embedding strategy requires an embedder")
		}
		if deps.Expander == nil {
			return nil, fmt.Errorf("embedding strategy requires a query expander")
		}
		return NewEmbeddingStrategy(cfg, deps.Embedder, deps.Expander), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", cfg.Strategy)
	}
}
