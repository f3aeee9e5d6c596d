// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"adaptive-crawler/internal/config"
	"adaptive-crawler/pkg/embedding"
	"adaptive-crawler/pkg/fetcher"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StrategyDeps carries the collaborators the embedding strategy needs.
// The statistical strategy ignores them.
type StrategyDeps struct {
	Embedder embedding.Embedder
	Expander QueryExpander
}

// AdaptiveCrawler orchestrates an adaptive crawl: starting from a seed URL
// it expands the frontier until the configured strategy judges the gathered
// knowledge sufficient for the query.
type AdaptiveCrawler struct {
	fetch    fetcher.Fetcher
	cfg      *config.Config
	strategy Strategy
	state    *CrawlState
	log      *logrus.Logger
	runID    string
}

// New creates an adaptive crawler, validating the config and building the
// strategy it names. logger may be nil.
func New(cfg *config.Config, f fetcher.Fetcher, deps *StrategyDeps, logger *logrus.Logger) (*AdaptiveCrawler, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("fetcher is required")
	}

	strategy, err := newStrategy(cfg, deps)
	if err != nil {
		return nil, err
	}
	return NewWithStrategy(cfg, f, strategy, logger)
}

// NewWithStrategy creates a crawler with a caller-supplied strategy.
func NewWithStrategy(cfg *config.Config, f fetcher.Fetcher, strategy Strategy, logger *logrus.Logger) (*AdaptiveCrawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &AdaptiveCrawler{
		fetch:    f,
		cfg:      cfg,
		strategy: strategy,
		log:      logger,
		runID:    uuid.New().String(),
	}, nil
}

// State returns the state of the current or last run.
func (c *AdaptiveCrawler) State() *CrawlState {
	return c.state
}

// RestoreState attaches a previously saved state, for export and stats
// without re-running a digest.
func (c *AdaptiveCrawler) RestoreState(state *CrawlState) {
	c.state = state
}

// RunID identifies this crawler instance's run in exports and mirrors.
func (c *AdaptiveCrawler) RunID() string {
	return c.runID
}

// Strategy returns the active strategy.
func (c *AdaptiveCrawler) Strategy() Strategy {
	return c.strategy
}

// Digest crawls adaptively from startURL until the strategy is confident
// the knowledge base answers query, a budget runs out, or the frontier
// empties. A non-empty resumeFrom loads a previously saved state first.
// The returned state is also retained on the crawler for stats and export.
func (c *AdaptiveCrawler) Digest(ctx context.Context, startURL, query, resumeFrom string) (*CrawlState, error) {
	resuming := resumeFrom != ""
	if resuming {
		state, err := LoadState(resumeFrom)
		if err != nil {
			return nil, err
		}
		state.Query = query
		c.state = state
	} else {
		c.state = NewCrawlState(query)
	}
	state := c.state

	if es, ok := c.strategy.(*EmbeddingStrategy); ok && !resuming {
		if err := es.MapQuerySemanticSpace(ctx, state, query); err != nil {
			return nil, fmt.Errorf("query space expansion failed: %w", err)
		}
	}

	if !state.CrawledURLs[startURL] {
		result, err := c.fetchWithPreview(ctx, startURL, query)
		if err != nil || result == nil || !result.Success {
			c.log.WithField("url", startURL).WithError(err).Warn("seed fetch failed")
		} else {
			c.integrate(state, result, startURL)
			if err := c.strategy.UpdateState(ctx, state, []*fetcher.Result{result}); err != nil {
				return nil, err
			}
		}
	}

	depth := 0
	for depth < c.cfg.MaxDepth {
		confidence, err := c.strategy.Confidence(ctx, state)
		if err != nil {
			return nil, err
		}
		state.Metrics["confidence"] = confidence

		stop, err := c.strategy.ShouldStop(ctx, state, c.cfg)
		if err != nil {
			return nil, err
		}
		if stop {
			break
		}

		ranked, err := c.strategy.RankLinks(ctx, state, c.cfg)
		if err != nil {
			return nil, err
		}
		if len(ranked) == 0 {
			break
		}
		if ranked[0].Score < c.cfg.MinGainThreshold {
			break
		}

		var toCrawl []ScoredLink
		for _, sl := range ranked {
			if len(toCrawl) >= c.cfg.TopKLinks {
				break
			}
			if state.CrawledURLs[sl.Link.Href] {
				continue
			}
			toCrawl = append(toCrawl, sl)
		}
		if len(toCrawl) == 0 {
			break
		}

		c.log.WithFields(logrus.Fields{
			"depth":      depth,
			"confidence": confidence,
			"batch":      len(toCrawl),
		}).Info("expanding crawl frontier")

		successes, hrefs := c.fetchBatch(ctx, toCrawl, query)
		for i, result := range successes {
			c.integrate(state, result, hrefs[i])
		}
		if len(successes) > 0 {
			if err := c.strategy.UpdateState(ctx, state, successes); err != nil {
				return nil, err
			}
		}

		depth++

		c.persist(state)

		// Cancellation: partial results above are already integrated.
		if ctx.Err() != nil {
			break
		}
	}

	learningScore, err := c.strategy.Confidence(ctx, state)
	if err != nil {
		return nil, err
	}
	if es, ok := c.strategy.(*EmbeddingStrategy); ok {
		state.Metrics["confidence"] = es.QualityConfidence(state)
	} else {
		state.Metrics["confidence"] = learningScore
	}
	state.Metrics["pages_crawled"] = float64(len(state.CrawledURLs))
	state.Metrics["depth_reached"] = float64(depth)

	c.persist(state)

	return state, nil
}

// integrate appends a successful fetch to the knowledge base and extends
// the frontier with its uncrawled links.
func (c *AdaptiveCrawler) integrate(state *CrawlState, result *fetcher.Result, href string) {
	state.AddDocument(&Document{
		URL:      result.URL,
		Content:  result.Markdown.RawMarkdown,
		Links:    result.Links,
		Metadata: result.Metadata,
	})
	state.CrawledURLs[href] = true
	state.ExtendPendingLinks(result.Links.Internal)
	state.ExtendPendingLinks(result.Links.External)
}

// fetchWithPreview fetches one URL with link previews enabled so discovered
// links arrive scored and carrying head metadata.
func (c *AdaptiveCrawler) fetchWithPreview(ctx context.Context, url, query string) (*fetcher.Result, error) {
	return c.fetch.Fetch(ctx, url, &fetcher.PreviewOptions{
		IncludeInternal: true,
		Query:           query,
		Concurrency:     5,
		Timeout:         5 * time.Second,
		MaxLinks:        50,
		ScoreLinks:      true,
	})
}

// fetchBatch fetches the selected links in parallel and returns the
// successful results in ranked order, paired with the hrefs they were
// selected under. Failed fetches are logged and skipped.
func (c *AdaptiveCrawler) fetchBatch(ctx context.Context, toCrawl []ScoredLink, query string) ([]*fetcher.Result, []string) {
	results := make([]*fetcher.Result, len(toCrawl))

	var wg sync.WaitGroup
	for i, sl := range toCrawl {
		wg.Add(1)
		go func(i int, href string) {
			defer wg.Done()
			result, err := c.fetchWithPreview(ctx, href, query)
			if err != nil {
				c.log.WithField("url", href).WithError(err).Warn("fetch failed")
				return
			}
			if !result.Success {
				c.log.WithField("url", href).Warn("skipping failed crawl")
				return
			}
			results[i] = result
		}(i, sl.Link.Href)
	}
	wg.Wait()

	var successes []*fetcher.Result
	var hrefs []string
	for i, result := range results {
		if result != nil {
			successes = append(successes, result)
			hrefs = append(hrefs, toCrawl[i].Link.Href)
		}
	}
	return successes, hrefs
}

// persist saves the state when persistence is configured. Write failures
// are logged, not fatal: persistence is best-effort.
func (c *AdaptiveCrawler) persist(state *CrawlState) {
	if !c.cfg.SaveState || c.cfg.StatePath == "" {
		return
	}
	if err := state.Save(c.cfg.StatePath); err != nil {
		c.log.WithError(err).Warn("failed to persist crawl state")
	}
}
