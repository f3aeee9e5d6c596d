// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"adaptive-crawler/pkg/fetcher"
)

// ErrStateNotFound is returned when resuming from a missing state file.
var ErrStateNotFound = errors.New("crawl state file not found")

// Document is a knowledge-base entry: the markdown content of one crawled
// page plus the links discovered on it.
type Document struct {
	URL      string                 `json:"url"`
	Content  string                 `json:"content"`
	Links    fetcher.Links          `json:"links"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SemanticGap is a query point in embedding space together with its distance
// to the nearest knowledge-base vector at the time of the last ranking.
// It serializes as a [vector, distance] pair.
type SemanticGap struct {
	Point    []float32
	Distance float64
}

// MarshalJSON renders the gap as [vector, distance].
func (g SemanticGap) MarshalJSON() ([]byte, error) {
	point := g.Point
	if point == nil {
		point = []float32{}
	}
	return json.Marshal([2]interface{}{point, g.Distance})
}

// UnmarshalJSON parses the [vector, distance] pair form.
func (g *SemanticGap) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &g.Point); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &g.Distance)
}

// CrawlState is the single mutable object of a run. It is owned by the
// adaptive loop and mutated only through strategy methods.
type CrawlState struct {
	Query         string
	CrawledURLs   map[string]bool
	KnowledgeBase []*Document
	PendingLinks  []fetcher.Link
	Metrics       map[string]float64

	// StoppedReason names the branch that terminated the run
	// ("converged_validated", "low_validation", ...).
	StoppedReason string

	// Statistical tracking
	TermFrequencies     map[string]int
	DocumentFrequencies map[string]int
	DocumentsWithTerms  map[string]map[int]bool
	TotalDocuments      int

	// History tracking
	NewTermsHistory []int
	CrawlOrder      []string

	// Embedding tracking (populated only by the embedding strategy)
	KBEmbeddings      [][]float32
	QueryEmbeddings   [][]float32
	ExpandedQueries   []string
	SemanticGaps      []SemanticGap
	EmbeddingModel    string
	ConfidenceHistory []float64
}

// NewCrawlState allocates an empty state for the given query.
func NewCrawlState(query string) *CrawlState {
	return &CrawlState{
		Query:               query,
		CrawledURLs:         make(map[string]bool),
		Metrics:             make(map[string]float64),
		TermFrequencies:     make(map[string]int),
		DocumentFrequencies: make(map[string]int),
		DocumentsWithTerms:  make(map[string]map[int]bool),
	}
}

// AddDocument appends a fetched page to the knowledge base and marks its
// URL as crawled.
func (s *CrawlState) AddDocument(doc *Document) {
	s.KnowledgeBase = append(s.KnowledgeBase, doc)
	s.CrawledURLs[doc.URL] = true
}

// ExtendPendingLinks appends links whose href has not been crawled yet.
func (s *CrawlState) ExtendPendingLinks(links []fetcher.Link) {
	for _, link := range links {
		if link.Href == "" || s.CrawledURLs[link.Href] {
			continue
		}
		s.PendingLinks = append(s.PendingLinks, link)
	}
}

// UncrawledLinks returns pending links whose href is not yet crawled,
// deduplicated by href, preserving pending order.
func (s *CrawlState) UncrawledLinks() []fetcher.Link {
	seen := make(map[string]bool)
	var out []fetcher.Link
	for _, link := range s.PendingLinks {
		if s.CrawledURLs[link.Href] || seen[link.Href] {
			continue
		}
		seen[link.Href] = true
		out = append(out, link)
	}
	return out
}

// CheckInvariants verifies the structural invariants that must hold at
// every observable boundary of the loop. A violation is a bug.
func (s *CrawlState) CheckInvariants() error {
	if s.TotalDocuments != len(s.KnowledgeBase) {
		return fmt.Errorf("total_documents %d != knowledge base size %d", s.TotalDocuments, len(s.KnowledgeBase))
	}
	for _, u := range s.CrawlOrder {
		if !s.CrawledURLs[u] {
			return fmt.Errorf("crawl order url %q missing from crawled set", u)
		}
	}
	for term, df := range s.DocumentFrequencies {
		docs := s.DocumentsWithTerms[term]
		if df != len(docs) {
			return fmt.Errorf("term %q: document frequency %d != doc set size %d", term, df, len(docs))
		}
		if df > s.TotalDocuments {
			return fmt.Errorf("term %q: document frequency %d exceeds total documents %d", term, df, s.TotalDocuments)
		}
		if s.TermFrequencies[term] < df {
			return fmt.Errorf("term %q: term frequency %d below document frequency %d", term, s.TermFrequencies[term], df)
		}
	}
	return nil
}

// stateDoc is the serialized form of CrawlState: a single self-describing
// JSON document with numeric arrays preserved losslessly.
type stateDoc struct {
	CrawledURLs         []string               `json:"crawled_urls"`
	KnowledgeBase       []*Document            `json:"knowledge_base"`
	PendingLinks        []fetcher.Link         `json:"pending_links"`
	Query               string                 `json:"query"`
	Metrics             map[string]interface{} `json:"metrics"`
	TermFrequencies     map[string]int         `json:"term_frequencies"`
	DocumentFrequencies map[string]int         `json:"document_frequencies"`
	DocumentsWithTerms  map[string][]int       `json:"documents_with_terms"`
	TotalDocuments      int                    `json:"total_documents"`
	NewTermsHistory     []int                  `json:"new_terms_history"`
	CrawlOrder          []string               `json:"crawl_order"`

	KBEmbeddings    [][]float32   `json:"kb_embeddings,omitempty"`
	QueryEmbeddings [][]float32   `json:"query_embeddings,omitempty"`
	ExpandedQueries []string      `json:"expanded_queries,omitempty"`
	SemanticGaps    []SemanticGap `json:"semantic_gaps,omitempty"`
	EmbeddingModel  string        `json:"embedding_model,omitempty"`
}

// Save writes the state atomically (temp file + rename) as JSON.
func (s *CrawlState) Save(path string) error {
	doc := &stateDoc{
		CrawledURLs:         sortedKeys(s.CrawledURLs),
		KnowledgeBase:       s.KnowledgeBase,
		PendingLinks:        s.PendingLinks,
		Query:               s.Query,
		Metrics:             make(map[string]interface{}, len(s.Metrics)+1),
		TermFrequencies:     s.TermFrequencies,
		DocumentFrequencies: s.DocumentFrequencies,
		DocumentsWithTerms:  make(map[string][]int, len(s.DocumentsWithTerms)),
		TotalDocuments:      s.TotalDocuments,
		NewTermsHistory:     s.NewTermsHistory,
		CrawlOrder:          s.CrawlOrder,
		KBEmbeddings:        s.KBEmbeddings,
		QueryEmbeddings:     s.QueryEmbeddings,
		ExpandedQueries:     s.ExpandedQueries,
		SemanticGaps:        s.SemanticGaps,
		EmbeddingModel:      s.EmbeddingModel,
	}
	if doc.KnowledgeBase == nil {
		doc.KnowledgeBase = []*Document{}
	}
	if doc.PendingLinks == nil {
		doc.PendingLinks = []fetcher.Link{}
	}
	if doc.NewTermsHistory == nil {
		doc.NewTermsHistory = []int{}
	}
	if doc.CrawlOrder == nil {
		doc.CrawlOrder = []string{}
	}
	for k, v := range s.Metrics {
		doc.Metrics[k] = v
	}
	if s.StoppedReason != "" {
		doc.Metrics["stopped_reason"] = s.StoppedReason
	}
	for term, docs := range s.DocumentsWithTerms {
		indices := make([]int, 0, len(docs))
		for idx := range docs {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		doc.DocumentsWithTerms[term] = indices
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// LoadState reads a previously saved state document.
func LoadState(path string) (*CrawlState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStateNotFound, path)
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	s := NewCrawlState(doc.Query)
	for _, u := range doc.CrawledURLs {
		s.CrawledURLs[u] = true
	}
	s.KnowledgeBase = doc.KnowledgeBase
	s.PendingLinks = doc.PendingLinks
	for k, v := range doc.Metrics {
		switch val := v.(type) {
		case float64:
			s.Metrics[k] = val
		case string:
			if k == "stopped_reason" {
				s.StoppedReason = val
			}
		}
	}
	if doc.TermFrequencies != nil {
		s.TermFrequencies = doc.TermFrequencies
	}
	if doc.DocumentFrequencies != nil {
		s.DocumentFrequencies = doc.DocumentFrequencies
	}
	for term, indices := range doc.DocumentsWithTerms {
		set := make(map[int]bool, len(indices))
		for _, idx := range indices {
			set[idx] = true
		}
		s.DocumentsWithTerms[term] = set
	}
	s.TotalDocuments = doc.TotalDocuments
	s.NewTermsHistory = doc.NewTermsHistory
	s.CrawlOrder = doc.CrawlOrder
	s.KBEmbeddings = doc.KBEmbeddings
	s.QueryEmbeddings = doc.QueryEmbeddings
	s.ExpandedQueries = doc.ExpandedQueries
	s.SemanticGaps = doc.SemanticGaps
	s.EmbeddingModel = doc.EmbeddingModel

	return s, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
