// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"context"
	"math"
	"sort"
	"strings"

	"adaptive-crawler/internal/config"
	"adaptive-crawler/pkg/fetcher"
)

// StatisticalStrategy drives the crawl with pure term statistics: no LLM,
// no embeddings, no network calls of its own.
type StatisticalStrategy struct {
	cfg *config.Config
}

// NewStatisticalStrategy creates the statistical strategy.
func NewStatisticalStrategy(cfg *config.Config) *StatisticalStrategy {
	return &StatisticalStrategy{cfg: cfg}
}

// UpdateState folds each new document's terms into the running statistics.
func (s *StatisticalStrategy) UpdateState(ctx context.Context, state *CrawlState, results []*fetcher.Result) error {
	for _, result := range results {
		oldVocab := len(state.TermFrequencies)

		terms := Tokenize(strings.ToLower(result.Markdown.RawMarkdown))

		termSet := make(map[string]bool)
		for _, term := range terms {
			state.TermFrequencies[term]++
			termSet[term] = true
		}

		docID := state.TotalDocuments
		for term := range termSet {
			docs := state.DocumentsWithTerms[term]
			if docs == nil {
				docs = make(map[int]bool)
				state.DocumentsWithTerms[term] = docs
			}
			if !docs[docID] {
				state.DocumentFrequencies[term]++
				docs[docID] = true
			}
		}

		state.NewTermsHistory = append(state.NewTermsHistory, len(state.TermFrequencies)-oldVocab)
		state.TotalDocuments++
		state.CrawlOrder = append(state.CrawlOrder, result.URL)
	}
	return nil
}

// Confidence combines coverage, consistency, and saturation with the
// configured weights, writing each component into state.Metrics.
func (s *StatisticalStrategy) Confidence(ctx context.Context, state *CrawlState) (float64, error) {
	if len(state.KnowledgeBase) == 0 {
		return 0, nil
	}

	coverage := s.calculateCoverage(state)
	consistency := s.calculateConsistency(state)
	saturation := s.calculateSaturation(state)

	state.Metrics["coverage"] = coverage
	state.Metrics["consistency"] = consistency
	state.Metrics["saturation"] = saturation

	confidence := s.cfg.CoverageWeight*coverage +
		s.cfg.ConsistencyWeight*consistency +
		s.cfg.SaturationWeight*saturation

	return confidence, nil
}

// calculateCoverage measures query-term presence across the knowledge base:
// per term, the fraction of documents containing it boosted by a normalized
// log-frequency signal, averaged and square-rooted so partial coverage is
// visibly non-zero.
func (s *StatisticalStrategy) calculateCoverage(state *CrawlState) float64 {
	if state.Query == "" || state.TotalDocuments == 0 {
		return 0
	}

	queryTerms := uniqueTerms(Tokenize(strings.ToLower(state.Query)))
	if len(queryTerms) == 0 {
		return 0
	}

	maxTF := 1
	for _, tf := range state.TermFrequencies {
		if tf > maxTF {
			maxTF = tf
		}
	}

	var total float64
	for _, term := range queryTerms {
		df := state.DocumentFrequencies[term]
		if df == 0 {
			continue
		}
		docCoverage := float64(df) / float64(state.TotalDocuments)

		freqSignal := 0.0
		if maxTF > 0 {
			freqSignal = math.Log(1+float64(state.TermFrequencies[term])) / math.Log(1+float64(maxTF))
		}
		total += docCoverage * (1 + 0.5*freqSignal)
	}

	coverage := total / float64(len(queryTerms))
	return math.Min(1.0, math.Sqrt(coverage))
}

// calculateConsistency is the mean pairwise Jaccard similarity of document
// token sets. High overlap suggests coherent topic coverage.
func (s *StatisticalStrategy) calculateConsistency(state *CrawlState) float64 {
	if len(state.KnowledgeBase) < 2 {
		return 1.0
	}

	termSets := make([]map[string]bool, len(state.KnowledgeBase))
	for i, doc := range state.KnowledgeBase {
		set := make(map[string]bool)
		for _, term := range Tokenize(strings.ToLower(doc.Content)) {
			set[term] = true
		}
		termSets[i] = set
	}

	var overlaps []float64
	for i := 0; i < len(termSets); i++ {
		for j := i + 1; j < len(termSets); j++ {
			a, b := termSets[i], termSets[j]
			if len(a) == 0 || len(b) == 0 {
				continue
			}
			intersection := 0
			for term := range a {
				if b[term] {
					intersection++
				}
			}
			union := len(a) + len(b) - intersection
			overlaps = append(overlaps, float64(intersection)/float64(union))
		}
	}

	if len(overlaps) == 0 {
		return 0
	}
	return mean(overlaps)
}

// calculateSaturation compares the first and most recent new-term rates;
// it rises as each new page yields fewer new terms.
func (s *StatisticalStrategy) calculateSaturation(state *CrawlState) float64 {
	if len(state.NewTermsHistory) < 2 {
		return 0
	}

	recent := state.NewTermsHistory[len(state.NewTermsHistory)-1]
	if recent <= 0 {
		recent = 1
	}
	initial := state.NewTermsHistory[0]
	if initial <= 0 {
		initial = 1
	}

	return clamp01(1 - float64(recent)/float64(initial))
}

// RankLinks scores uncrawled pending links by relevance, novelty, and
// authority with the configured weights. The sort is stable: ties keep
// pending order.
func (s *StatisticalStrategy) RankLinks(ctx context.Context, state *CrawlState, cfg *config.Config) ([]ScoredLink, error) {
	var scored []ScoredLink
	for _, link := range state.PendingLinks {
		if state.CrawledURLs[link.Href] {
			continue
		}

		relevance := s.calculateRelevance(link, state)
		novelty := s.calculateNovelty(link, state)
		authority := s.calculateAuthority(link)

		score := cfg.RelevanceWeight*relevance +
			cfg.NoveltyWeight*novelty +
			cfg.AuthorityWeight*authority

		scored = append(scored, ScoredLink{Link: link, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// uniqueTerms deduplicates tokens preserving first-seen order.
func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// linkPreviewText concatenates the advisory text fields of a link.
func linkPreviewText(link fetcher.Link) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{
		link.Text,
		link.Title,
		link.HeadMeta["title"],
		link.HeadMeta["description"],
		link.HeadMeta["keywords"],
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// calculateRelevance prefers the fetcher's contextual score when present,
// falling back to query-term overlap against the link preview.
func (s *StatisticalStrategy) calculateRelevance(link fetcher.Link, state *CrawlState) float64 {
	if state.Query == "" {
		return 0
	}

	linkText := linkPreviewText(link)
	if linkText == "" {
		return 0
	}

	if link.ContextualScore != nil && *link.ContextualScore > 0 {
		return *link.ContextualScore
	}

	queryTerms := make(map[string]bool)
	for _, t := range Tokenize(strings.ToLower(state.Query)) {
		queryTerms[t] = true
	}
	if len(queryTerms) == 0 {
		return 0
	}

	linkTerms := make(map[string]bool)
	for _, t := range Tokenize(linkText) {
		linkTerms[t] = true
	}
	overlap := 0
	for t := range queryTerms {
		if linkTerms[t] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTerms))
}

// calculateNovelty estimates how much of the link preview's vocabulary is
// new relative to the knowledge base.
func (s *StatisticalStrategy) calculateNovelty(link fetcher.Link, state *CrawlState) float64 {
	if len(state.KnowledgeBase) == 0 {
		return 1.0
	}

	linkTerms := make(map[string]bool)
	for _, t := range Tokenize(linkPreviewText(link)) {
		linkTerms[t] = true
	}
	if len(linkTerms) == 0 {
		return 0.5
	}

	newTerms := 0
	for t := range linkTerms {
		if _, known := state.TermFrequencies[t]; !known {
			newTerms++
		}
	}
	return float64(newTerms) / float64(len(linkTerms))
}

// calculateAuthority scores URL structure: documentation-shaped paths up,
// image files down, blended with the fetcher's intrinsic score when present.
func (s *StatisticalStrategy) calculateAuthority(link fetcher.Link) float64 {
	if link.Href == "" {
		return 0
	}

	score := 0.5
	url := strings.ToLower(link.Href)

	if strings.Contains(url, "/docs/") || strings.Contains(url, "/documentation/") {
		score += 0.2
	}
	if strings.Contains(url, "/api/") || strings.Contains(url, "/reference/") {
		score += 0.2
	}
	if strings.Contains(url, "/guide/") || strings.Contains(url, "/tutorial/") {
		score += 0.1
	}

	if strings.HasSuffix(url, ".pdf") {
		score += 0.1
	} else if strings.HasSuffix(url, ".jpg") || strings.HasSuffix(url, ".png") || strings.HasSuffix(url, ".gif") {
		score -= 0.3
	}

	if link.IntrinsicScore != nil {
		score = 0.7*score + 0.3**link.IntrinsicScore
	}

	return clamp01(score)
}

// ShouldStop terminates on confidence, page budget, empty frontier, or
// saturation.
func (s *StatisticalStrategy) ShouldStop(ctx context.Context, state *CrawlState, cfg *config.Config) (bool, error) {
	if state.Metrics["confidence"] >= cfg.ConfidenceThreshold {
		return true, nil
	}
	if len(state.CrawledURLs) >= cfg.MaxPages {
		return true, nil
	}
	if len(state.PendingLinks) == 0 {
		return true, nil
	}
	if state.Metrics["saturation"] >= cfg.SaturationThreshold {
		return true, nil
	}
	return false, nil
}
