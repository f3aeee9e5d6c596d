// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"adaptive-crawler/pkg/fetcher"
	"adaptive-crawler/pkg/vectorstore"

	"github.com/google/uuid"
)

// exportRecord is one JSONL line of an exported knowledge base.
type exportRecord struct {
	URL      string                 `json:"url"`
	Query    string                 `json:"query"`
	Content  string                 `json:"content"`
	Links    fetcher.Links          `json:"links"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	CrawlMetadata struct {
		RunID             string  `json:"run_id"`
		CrawlOrder        int     `json:"crawl_order"`
		ConfidenceAtCrawl float64 `json:"confidence_at_crawl"`
		TotalDocuments    int     `json:"total_documents"`
	} `json:"crawl_metadata"`
}

// ExportKnowledgeBase writes the knowledge base as JSONL, one document per
// line, with crawl provenance attached.
func (c *AdaptiveCrawler) ExportKnowledgeBase(path string) error {
	if c.state == nil || len(c.state.KnowledgeBase) == 0 {
		return errors.New("no knowledge base to export")
	}
	state := c.state

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	orderIndex := make(map[string]int, len(state.CrawlOrder))
	for i, url := range state.CrawlOrder {
		orderIndex[url] = i + 1
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, doc := range state.KnowledgeBase {
		rec := exportRecord{
			URL:      doc.URL,
			Query:    state.Query,
			Content:  doc.Content,
			Links:    doc.Links,
			Metadata: doc.Metadata,
		}
		rec.CrawlMetadata.RunID = c.runID
		rec.CrawlMetadata.CrawlOrder = orderIndex[doc.URL]
		rec.CrawlMetadata.ConfidenceAtCrawl = state.Metrics["confidence"]
		rec.CrawlMetadata.TotalDocuments = state.TotalDocuments

		if err := enc.Encode(&rec); err != nil {
			return fmt.Errorf("failed to encode document %s: %w", doc.URL, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}

// ImportKnowledgeBase reads a JSONL export and replays its documents
// through the strategy so statistics and embeddings are rebuilt.
func (c *AdaptiveCrawler) ImportKnowledgeBase(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	if c.state == nil {
		c.state = NewCrawlState("")
	}

	var results []*fetcher.Result
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec exportRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return 0, fmt.Errorf("failed to parse line %d: %w", line, err)
		}

		c.state.AddDocument(&Document{
			URL:      rec.URL,
			Content:  rec.Content,
			Links:    rec.Links,
			Metadata: rec.Metadata,
		})
		results = append(results, &fetcher.Result{
			URL:      rec.URL,
			Success:  true,
			Markdown: fetcher.Markdown{RawMarkdown: rec.Content},
			Links:    rec.Links,
			Metadata: rec.Metadata,
		})
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read import file: %w", err)
	}
	if len(results) == 0 {
		return 0, nil
	}

	if err := c.strategy.UpdateState(ctx, c.state, results); err != nil {
		return 0, err
	}
	return len(results), nil
}

// RelevantContent is one knowledge-base document with its query-term overlap
// score, as returned by GetRelevantContent.
type RelevantContent struct {
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
	Index   int     `json:"index"`
}

// GetRelevantContent returns the knowledge-base documents most relevant to
// the run's query by simple term overlap.
func (c *AdaptiveCrawler) GetRelevantContent(topK int) []RelevantContent {
	if c.state == nil || len(c.state.KnowledgeBase) == 0 {
		return nil
	}

	queryTerms := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(c.state.Query)) {
		queryTerms[t] = true
	}

	scored := make([]RelevantContent, 0, len(c.state.KnowledgeBase))
	for i, doc := range c.state.KnowledgeBase {
		contentTerms := make(map[string]bool)
		for _, t := range strings.Fields(strings.ToLower(doc.Content)) {
			contentTerms[t] = true
		}
		overlap := 0
		for t := range queryTerms {
			if contentTerms[t] {
				overlap++
			}
		}
		score := 0.0
		if len(queryTerms) > 0 {
			score = float64(overlap) / float64(len(queryTerms))
		}
		scored = append(scored, RelevantContent{
			URL:     doc.URL,
			Score:   score,
			Content: doc.Content,
			Index:   i,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// MirrorKnowledgeBase upserts the embedded knowledge base into a vector
// store collection for downstream retrieval. Only documents that were
// embedded (rows of kb_embeddings, in crawl order) are mirrored.
func (c *AdaptiveCrawler) MirrorKnowledgeBase(ctx context.Context, store vectorstore.Store, collection string) (int, error) {
	if c.state == nil {
		return 0, errors.New("no crawl state to mirror")
	}
	state := c.state
	if len(state.KBEmbeddings) == 0 {
		return 0, errors.New("knowledge base has no embeddings; run the embedding strategy first")
	}
	if len(state.KBEmbeddings) > len(state.CrawlOrder) {
		return 0, fmt.Errorf("embedding rows (%d) exceed crawl order entries (%d)", len(state.KBEmbeddings), len(state.CrawlOrder))
	}

	contentByURL := make(map[string]string, len(state.KnowledgeBase))
	for _, doc := range state.KnowledgeBase {
		contentByURL[doc.URL] = doc.Content
	}

	if err := store.EnsureCollection(ctx, collection, len(state.KBEmbeddings[0])); err != nil {
		return 0, err
	}

	docs := make([]vectorstore.Document, 0, len(state.KBEmbeddings))
	for i, emb := range state.KBEmbeddings {
		url := state.CrawlOrder[i]
		docs = append(docs, vectorstore.Document{
			ID:        uuid.New().String(),
			Content:   truncateRunes(contentByURL[url], kbContentLimit),
			Embedding: emb,
			Metadata: map[string]interface{}{
				"url":         url,
				"query":       state.Query,
				"run_id":      c.runID,
				"crawl_order": i + 1,
			},
		})
	}

	resp, err := store.Insert(ctx, &vectorstore.InsertRequest{
		Documents:      docs,
		CollectionName: collection,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mirror knowledge base: %w", err)
	}
	return len(resp.InsertedIDs), nil
}
