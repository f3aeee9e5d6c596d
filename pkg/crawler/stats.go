// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// CoverageStats summarizes a run for reporting.
type CoverageStats struct {
	PagesCrawled       int     `json:"pages_crawled"`
	TotalContentLength int     `json:"total_content_length"`
	UniqueTerms        int     `json:"unique_terms"`
	TotalTerms         int     `json:"total_terms"`
	PendingLinks       int     `json:"pending_links"`
	Confidence         float64 `json:"confidence"`
	Coverage           float64 `json:"coverage"`
	Consistency        float64 `json:"consistency"`
	Saturation         float64 `json:"saturation"`
}

// Confidence returns the current confidence level.
func (c *AdaptiveCrawler) Confidence() float64 {
	if c.state == nil {
		return 0
	}
	return c.state.Metrics["confidence"]
}

// Stats returns detailed coverage statistics for the current state.
func (c *AdaptiveCrawler) Stats() CoverageStats {
	if c.state == nil {
		return CoverageStats{}
	}

	totalContent := 0
	for _, doc := range c.state.KnowledgeBase {
		totalContent += len(doc.Content)
	}
	totalTerms := 0
	for _, tf := range c.state.TermFrequencies {
		totalTerms += tf
	}

	return CoverageStats{
		PagesCrawled:       len(c.state.CrawledURLs),
		TotalContentLength: totalContent,
		UniqueTerms:        len(c.state.TermFrequencies),
		TotalTerms:         totalTerms,
		PendingLinks:       len(c.state.PendingLinks),
		Confidence:         c.state.Metrics["confidence"],
		Coverage:           c.state.Metrics["coverage"],
		Consistency:        c.state.Metrics["consistency"],
		Saturation:         c.state.Metrics["saturation"],
	}
}

// IsSufficient reports whether the gathered knowledge answers the query:
// the embedding strategy requires a passed validation probe, the
// statistical strategy compares confidence against its threshold.
func (c *AdaptiveCrawler) IsSufficient() bool {
	if es, ok := c.strategy.(*EmbeddingStrategy); ok {
		return es.ValidationPassed()
	}
	return c.Confidence() >= c.cfg.ConfidenceThreshold
}

// PrintStats writes a plain-text report of the crawl to w.
func (c *AdaptiveCrawler) PrintStats(w io.Writer, detailed bool) {
	if c.state == nil {
		fmt.Fprintln(w, "No crawling state available.")
		return
	}
	state := c.state
	stats := c.Stats()

	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Adaptive Crawl Statistics - Query: %q\n", state.Query)
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "\nPages Crawled:  %d\n", stats.PagesCrawled)
	fmt.Fprintf(w, "Pending Links:  %d\n", stats.PendingLinks)
	fmt.Fprintf(w, "Total Content:  %d chars\n", stats.TotalContentLength)
	fmt.Fprintf(w, "Unique Terms:   %d\n", stats.UniqueTerms)
	fmt.Fprintf(w, "Total Terms:    %d\n", stats.TotalTerms)

	if _, ok := c.strategy.(*EmbeddingStrategy); ok {
		fmt.Fprintf(w, "\nSemantic Coverage:\n")
		fmt.Fprintf(w, "  Embedding Model:   %s\n", state.EmbeddingModel)
		fmt.Fprintf(w, "  Query Variations:  %d\n", len(state.ExpandedQueries))
		fmt.Fprintf(w, "  KB Embeddings:     %d\n", len(state.KBEmbeddings))
		fmt.Fprintf(w, "  Semantic Gaps:     %d\n", len(state.SemanticGaps))
		fmt.Fprintf(w, "  Learning Score:    %.2f\n", state.Metrics["learning_score"])
		fmt.Fprintf(w, "  Validation Score:  %.2f\n", state.Metrics["validation_confidence"])

		status := "NOT VALIDATED"
		if c.IsSufficient() {
			status = "VALIDATED"
		}
		fmt.Fprintf(w, "\nOverall Confidence: %.2f [%s]\n", c.Confidence(), status)
	} else {
		fmt.Fprintf(w, "\nQuery Coverage:\n")
		for _, term := range uniqueTerms(Tokenize(strings.ToLower(state.Query))) {
			tf := state.TermFrequencies[term]
			df := state.DocumentFrequencies[term]
			if df > 0 {
				fmt.Fprintf(w, "  %q: found in %d/%d docs, %d occurrences\n", term, df, state.TotalDocuments, tf)
			} else {
				fmt.Fprintf(w, "  %q: not found\n", term)
			}
		}

		status := "insufficient"
		if c.IsSufficient() {
			status = "sufficient"
		}
		fmt.Fprintf(w, "\nOverall Confidence: %.2f (%s)\n", c.Confidence(), status)
		fmt.Fprintf(w, "  Coverage:    %.2f\n", stats.Coverage)
		fmt.Fprintf(w, "  Consistency: %.2f\n", stats.Consistency)
		fmt.Fprintf(w, "  Saturation:  %.2f\n", stats.Saturation)
	}

	if len(state.NewTermsHistory) > 0 {
		total := 0
		for _, n := range state.NewTermsHistory {
			total += n
		}
		fmt.Fprintf(w, "\nAvg New Terms per Page: %.1f\n", float64(total)/float64(len(state.NewTermsHistory)))
	}

	if detailed {
		c.printDetailedStats(w)
	}

	fmt.Fprintln(w, rule)
}

func (c *AdaptiveCrawler) printDetailedStats(w io.Writer) {
	state := c.state

	type termFreq struct {
		term string
		freq int
	}
	terms := make([]termFreq, 0, len(state.TermFrequencies))
	for term, freq := range state.TermFrequencies {
		terms = append(terms, termFreq{term, freq})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})

	fmt.Fprintf(w, "\nTop Terms by Frequency:\n")
	for i, t := range terms {
		if i >= 20 {
			break
		}
		fmt.Fprintf(w, "  %2d. %q: %d occurrences in %d docs\n", i+1, t.term, t.freq, state.DocumentFrequencies[t.term])
	}

	fmt.Fprintf(w, "\nURLs Crawled (%d):\n", len(state.CrawlOrder))
	for i, url := range state.CrawlOrder {
		newTerms := 0
		if i < len(state.NewTermsHistory) {
			newTerms = state.NewTermsHistory[i]
		}
		fmt.Fprintf(w, "  %d. %s (+%d new terms)\n", i+1, url, newTerms)
	}
}
