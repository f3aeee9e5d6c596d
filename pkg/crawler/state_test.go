// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"adaptive-crawler/pkg/fetcher"
)

func sampleState() *CrawlState {
	s := NewCrawlState("async await event loop")
	s.AddDocument(&Document{
		URL:     "https://x.example/a",
		Content: "async functions await the event loop",
		Links: fetcher.Links{
			Internal: []fetcher.Link{{Href: "https://x.example/b", Text: "next"}},
		},
	})
	s.AddDocument(&Document{
		URL:     "https://x.example/b",
		Content: "the event loop schedules coroutines",
	})
	s.PendingLinks = []fetcher.Link{
		{Href: "https://x.example/c", Text: "deep dive", HeadMeta: fetcher.HeadMeta{"description": "internals"}},
	}
	s.Metrics["confidence"] = 0.42
	s.Metrics["coverage"] = 0.5
	s.StoppedReason = "converged_validated"
	s.TermFrequencies = map[string]int{"async": 1, "await": 1, "event": 2, "loop": 2}
	s.DocumentFrequencies = map[string]int{"async": 1, "await": 1, "event": 2, "loop": 2}
	s.DocumentsWithTerms = map[string]map[int]bool{
		"async": {0: true},
		"await": {0: true},
		"event": {0: true, 1: true},
		"loop":  {0: true, 1: true},
	}
	s.TotalDocuments = 2
	s.NewTermsHistory = []int{5, 2}
	s.CrawlOrder = []string{"https://x.example/a", "https://x.example/b"}

	s.KBEmbeddings = [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}
	s.QueryEmbeddings = [][]float32{{0.7, 0.8, 0.9}}
	s.ExpandedQueries = []string{"how does the event loop work"}
	s.SemanticGaps = []SemanticGap{{Point: []float32{0.7, 0.8, 0.9}, Distance: 0.35}}
	s.EmbeddingModel = "text-embedding-3-small"
	return s
}

func TestStateSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	original := sampleState()
	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	if loaded.Query != original.Query {
		t.Errorf("query mismatch: %q vs %q", loaded.Query, original.Query)
	}
	if len(loaded.CrawledURLs) != len(original.CrawledURLs) {
		t.Errorf("crawled urls mismatch")
	}
	for u := range original.CrawledURLs {
		if !loaded.CrawledURLs[u] {
			t.Errorf("missing crawled url %q", u)
		}
	}
	if len(loaded.KnowledgeBase) != 2 || loaded.KnowledgeBase[1].Content != original.KnowledgeBase[1].Content {
		t.Errorf("knowledge base mismatch")
	}
	if len(loaded.PendingLinks) != 1 || loaded.PendingLinks[0].HeadMeta["description"] != "internals" {
		t.Errorf("pending links mismatch: %+v", loaded.PendingLinks)
	}
	if loaded.Metrics["confidence"] != 0.42 {
		t.Errorf("metrics mismatch: %v", loaded.Metrics)
	}
	if loaded.StoppedReason != "converged_validated" {
		t.Errorf("stopped reason mismatch: %q", loaded.StoppedReason)
	}
	if loaded.TotalDocuments != 2 {
		t.Errorf("total documents mismatch: %d", loaded.TotalDocuments)
	}
	if loaded.TermFrequencies["event"] != 2 || loaded.DocumentFrequencies["loop"] != 2 {
		t.Errorf("term stats mismatch")
	}
	if !loaded.DocumentsWithTerms["event"][1] {
		t.Errorf("documents_with_terms mismatch: %v", loaded.DocumentsWithTerms)
	}
	if len(loaded.NewTermsHistory) != 2 || loaded.NewTermsHistory[0] != 5 {
		t.Errorf("new terms history mismatch: %v", loaded.NewTermsHistory)
	}
	if len(loaded.CrawlOrder) != 2 || loaded.CrawlOrder[0] != original.CrawlOrder[0] {
		t.Errorf("crawl order mismatch: %v", loaded.CrawlOrder)
	}
	if loaded.EmbeddingModel != original.EmbeddingModel {
		t.Errorf("embedding model mismatch")
	}
	if len(loaded.ExpandedQueries) != 1 {
		t.Errorf("expanded queries mismatch")
	}

	if err := loaded.CheckInvariants(); err != nil {
		t.Errorf("loaded state violates invariants: %v", err)
	}
}

// Embedding round-trips must preserve cosine distances within 1e-6.
func TestStateEmbeddingPrecision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	original := sampleState()
	if err := original.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}

	for i := range original.KBEmbeddings {
		before := cosineDistance(original.QueryEmbeddings[0], original.KBEmbeddings[i])
		after := cosineDistance(loaded.QueryEmbeddings[0], loaded.KBEmbeddings[i])
		if math.Abs(before-after) > 1e-6 {
			t.Errorf("cosine distance drifted: %v vs %v", before, after)
		}
	}
}

func TestSemanticGapSerializedShape(t *testing.T) {
	gap := SemanticGap{Point: []float32{0.5, 0.25}, Distance: 0.75}
	data, err := json.Marshal(gap)
	if err != nil {
		t.Fatal(err)
	}

	// The wire form is a [vector, distance] pair.
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		t.Fatalf("gap is not an array: %s", data)
	}
	if len(pair) != 2 {
		t.Fatalf("gap pair has %d elements: %s", len(pair), data)
	}

	var back SemanticGap
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Distance != gap.Distance || len(back.Point) != 2 || back.Point[1] != 0.25 {
		t.Errorf("gap round-trip mismatch: %+v", back)
	}
}

func TestLoadStateMissingFile(t *testing.T) {
	_, err := LoadState(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrStateNotFound) {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := sampleState()
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the state file, found %v", names)
	}
}

func TestCheckInvariantsDetectsViolations(t *testing.T) {
	s := sampleState()
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("sample state should satisfy invariants: %v", err)
	}

	broken := sampleState()
	broken.TotalDocuments = 5
	if err := broken.CheckInvariants(); err == nil {
		t.Error("expected total_documents violation")
	}

	broken = sampleState()
	broken.TermFrequencies["event"] = 1 // below df of 2
	if err := broken.CheckInvariants(); err == nil {
		t.Error("expected tf >= df violation")
	}

	broken = sampleState()
	broken.CrawlOrder = append(broken.CrawlOrder, "https://x.example/ghost")
	if err := broken.CheckInvariants(); err == nil {
		t.Error("expected crawl order violation")
	}
}

func TestUncrawledLinksFiltersAndDedupes(t *testing.T) {
	s := NewCrawlState("q")
	s.CrawledURLs["https://x.example/done"] = true
	s.PendingLinks = []fetcher.Link{
		{Href: "https://x.example/done"},
		{Href: "https://x.example/new"},
		{Href: "https://x.example/new"},
		{Href: "https://x.example/other"},
	}

	got := s.UncrawledLinks()
	if len(got) != 2 {
		t.Fatalf("expected 2 links, got %d", len(got))
	}
	if got[0].Href != "https://x.example/new" || got[1].Href != "https://x.example/other" {
		t.Errorf("unexpected order: %+v", got)
	}
}
