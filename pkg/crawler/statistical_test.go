// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"context"
	"testing"

	"adaptive-crawler/internal/config"
	"adaptive-crawler/pkg/fetcher"
)

func resultWithContent(url, content string) *fetcher.Result {
	return &fetcher.Result{
		URL:      url,
		Success:  true,
		Markdown: fetcher.Markdown{RawMarkdown: content},
	}
}

func TestStatisticalUpdateState(t *testing.T) {
	cfg := config.Default()
	s := NewStatisticalStrategy(cfg)
	state := NewCrawlState("alpha beta")

	results := []*fetcher.Result{
		resultWithContent("https://x.example/a", "alpha beta alpha gamma"),
		resultWithContent("https://x.example/b", "alpha delta"),
	}
	for _, r := range results {
		state.AddDocument(&Document{URL: r.URL, Content: r.Markdown.RawMarkdown})
	}
	if err := s.UpdateState(context.Background(), state, results); err != nil {
		t.Fatal(err)
	}

	if state.TotalDocuments != 2 {
		t.Errorf("total documents = %d", state.TotalDocuments)
	}
	if state.TermFrequencies["alpha"] != 3 {
		t.Errorf("tf(alpha) = %d, want 3", state.TermFrequencies["alpha"])
	}
	if state.DocumentFrequencies["alpha"] != 2 {
		t.Errorf("df(alpha) = %d, want 2", state.DocumentFrequencies["alpha"])
	}
	if state.DocumentFrequencies["beta"] != 1 {
		t.Errorf("df(beta) = %d, want 1", state.DocumentFrequencies["beta"])
	}
	// First doc brings 3 new terms, second brings 1 (delta).
	if len(state.NewTermsHistory) != 2 || state.NewTermsHistory[0] != 3 || state.NewTermsHistory[1] != 1 {
		t.Errorf("new terms history = %v", state.NewTermsHistory)
	}
	if len(state.CrawlOrder) != 2 {
		t.Errorf("crawl order = %v", state.CrawlOrder)
	}
	if err := state.CheckInvariants(); err != nil {
		t.Errorf("invariants violated: %v", err)
	}
}

func TestStatisticalConfidenceEmptyKB(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())
	conf, err := s.Confidence(context.Background(), NewCrawlState("alpha"))
	if err != nil {
		t.Fatal(err)
	}
	if conf != 0 {
		t.Errorf("empty KB confidence = %v, want 0", conf)
	}
}

func TestStatisticalConfidenceComponents(t *testing.T) {
	cfg := config.Default()
	s := NewStatisticalStrategy(cfg)
	state := NewCrawlState("alpha beta")

	doc := resultWithContent("https://x.example/a", "alpha beta content here")
	if err := s.UpdateState(context.Background(), state, []*fetcher.Result{doc}); err != nil {
		t.Fatal(err)
	}
	state.AddDocument(&Document{URL: doc.URL, Content: doc.Markdown.RawMarkdown})

	conf, err := s.Confidence(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}

	if state.Metrics["coverage"] <= 0 {
		t.Errorf("coverage = %v, want > 0", state.Metrics["coverage"])
	}
	// A single document is vacuously consistent.
	if state.Metrics["consistency"] != 1 {
		t.Errorf("consistency = %v, want 1", state.Metrics["consistency"])
	}
	if state.Metrics["saturation"] != 0 {
		t.Errorf("saturation = %v, want 0 with short history", state.Metrics["saturation"])
	}

	want := cfg.CoverageWeight*state.Metrics["coverage"] +
		cfg.ConsistencyWeight*state.Metrics["consistency"] +
		cfg.SaturationWeight*state.Metrics["saturation"]
	if !almostEqual(conf, want, 1e-9) {
		t.Errorf("confidence = %v, want weighted %v", conf, want)
	}
}

func TestStatisticalCoverageEmptyQuery(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())
	state := NewCrawlState("")
	state.AddDocument(&Document{URL: "u", Content: "words"})
	state.TotalDocuments = 1
	if cov := s.calculateCoverage(state); cov != 0 {
		t.Errorf("coverage with empty query = %v", cov)
	}
}

// Adding a document that contains every query token and no new vocabulary
// never decreases coverage.
func TestStatisticalCoverageMonotonic(t *testing.T) {
	cfg := config.Default()
	s := NewStatisticalStrategy(cfg)
	ctx := context.Background()
	state := NewCrawlState("alpha beta")

	first := resultWithContent("https://x.example/1", "alpha beta gamma delta")
	if err := s.UpdateState(ctx, state, []*fetcher.Result{first}); err != nil {
		t.Fatal(err)
	}
	state.AddDocument(&Document{URL: first.URL, Content: first.Markdown.RawMarkdown})
	before := s.calculateCoverage(state)

	// Same vocabulary, contains all query tokens.
	second := resultWithContent("https://x.example/2", "alpha beta gamma")
	if err := s.UpdateState(ctx, state, []*fetcher.Result{second}); err != nil {
		t.Fatal(err)
	}
	state.AddDocument(&Document{URL: second.URL, Content: second.Markdown.RawMarkdown})
	after := s.calculateCoverage(state)

	if after < before {
		t.Errorf("coverage decreased: %v -> %v", before, after)
	}
}

func TestStatisticalConsistencySingleDoc(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())
	state := NewCrawlState("q")
	state.AddDocument(&Document{URL: "u", Content: "anything at all"})
	if c := s.calculateConsistency(state); c != 1 {
		t.Errorf("single-document consistency = %v, want exactly 1", c)
	}
}

func TestStatisticalConsistencyPairwise(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())
	state := NewCrawlState("q")
	state.AddDocument(&Document{URL: "a", Content: "alpha beta gamma"})
	state.AddDocument(&Document{URL: "b", Content: "alpha beta delta"})

	// Jaccard = |{alpha,beta}| / |{alpha,beta,gamma,delta}| = 0.5
	if c := s.calculateConsistency(state); !almostEqual(c, 0.5, 1e-9) {
		t.Errorf("consistency = %v, want 0.5", c)
	}
}

func TestStatisticalSaturation(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())
	state := NewCrawlState("q")

	if sat := s.calculateSaturation(state); sat != 0 {
		t.Errorf("no history saturation = %v", sat)
	}

	state.NewTermsHistory = []int{10}
	if sat := s.calculateSaturation(state); sat != 0 {
		t.Errorf("single-entry saturation = %v", sat)
	}

	state.NewTermsHistory = []int{10, 5, 2}
	if sat := s.calculateSaturation(state); !almostEqual(sat, 0.8, 1e-9) {
		t.Errorf("saturation = %v, want 0.8", sat)
	}

	// Zero entries are treated as 1.
	state.NewTermsHistory = []int{0, 0}
	if sat := s.calculateSaturation(state); sat != 0 {
		t.Errorf("zero-rate saturation = %v, want 0", sat)
	}
}

func TestRankLinksAuthorityBias(t *testing.T) {
	cfg := config.Default()
	s := NewStatisticalStrategy(cfg)
	state := NewCrawlState("quantum entanglement")
	state.AddDocument(&Document{URL: "https://x.example/seed", Content: "unrelated seed content"})

	// Identical text, neither matching the query: only authority differs.
	state.PendingLinks = []fetcher.Link{
		{Href: "https://x.example/img/a.png", Text: "some page"},
		{Href: "https://x.example/docs/a", Text: "some page"},
	}

	ranked, err := s.RankLinks(context.Background(), state, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked links, got %d", len(ranked))
	}
	if ranked[0].Link.Href != "https://x.example/docs/a" {
		t.Errorf("docs link should rank first, got %s", ranked[0].Link.Href)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("docs link must score strictly above the image: %v vs %v", ranked[0].Score, ranked[1].Score)
	}
}

func TestRankLinksStableOnTies(t *testing.T) {
	cfg := config.Default()
	s := NewStatisticalStrategy(cfg)
	state := NewCrawlState("quantum entanglement")
	state.AddDocument(&Document{URL: "https://x.example/seed", Content: "unrelated"})

	// Same text, same URL shape: identical scores.
	state.PendingLinks = []fetcher.Link{
		{Href: "https://x.example/p1", Text: "same preview"},
		{Href: "https://x.example/p2", Text: "same preview"},
		{Href: "https://x.example/p3", Text: "same preview"},
	}

	ranked, err := s.RankLinks(context.Background(), state, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"https://x.example/p1", "https://x.example/p2", "https://x.example/p3"} {
		if ranked[i].Link.Href != want {
			t.Errorf("position %d: got %s, want %s (ties must keep pending order)", i, ranked[i].Link.Href, want)
		}
	}
}

func TestRankLinksSkipsCrawled(t *testing.T) {
	cfg := config.Default()
	s := NewStatisticalStrategy(cfg)
	state := NewCrawlState("q")
	state.CrawledURLs["https://x.example/done"] = true
	state.PendingLinks = []fetcher.Link{
		{Href: "https://x.example/done", Text: "done"},
		{Href: "https://x.example/new", Text: "new"},
	}

	ranked, err := s.RankLinks(context.Background(), state, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 1 || ranked[0].Link.Href != "https://x.example/new" {
		t.Errorf("crawled links must be skipped: %+v", ranked)
	}
}

func TestCalculateRelevance(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())
	state := NewCrawlState("async event loop")

	// Jaccard-style overlap against query terms.
	link := fetcher.Link{Href: "u", Text: "the event loop explained"}
	rel := s.calculateRelevance(link, state)
	if !almostEqual(rel, 2.0/3.0, 1e-9) {
		t.Errorf("relevance = %v, want 2/3", rel)
	}

	// Pre-computed positive contextual score wins.
	score := 0.9
	link.ContextualScore = &score
	if rel := s.calculateRelevance(link, state); rel != 0.9 {
		t.Errorf("contextual relevance = %v, want 0.9", rel)
	}

	// Empty preview text scores zero.
	if rel := s.calculateRelevance(fetcher.Link{Href: "u"}, state); rel != 0 {
		t.Errorf("empty link relevance = %v", rel)
	}
}

func TestCalculateNovelty(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())
	state := NewCrawlState("q")

	// Empty KB: maximally novel.
	if n := s.calculateNovelty(fetcher.Link{Href: "u", Text: "anything new"}, state); n != 1 {
		t.Errorf("empty KB novelty = %v", n)
	}

	state.AddDocument(&Document{URL: "a", Content: "known terms"})
	state.TermFrequencies = map[string]int{"known": 1, "terms": 1}

	// Empty preview: unknown novelty.
	if n := s.calculateNovelty(fetcher.Link{Href: "u"}, state); n != 0.5 {
		t.Errorf("unknown novelty = %v, want 0.5", n)
	}

	// Half the preview terms are new.
	n := s.calculateNovelty(fetcher.Link{Href: "u", Text: "known fresh"}, state)
	if !almostEqual(n, 0.5, 1e-9) {
		t.Errorf("novelty = %v, want 0.5", n)
	}
}

func TestCalculateAuthority(t *testing.T) {
	s := NewStatisticalStrategy(config.Default())

	docs := s.calculateAuthority(fetcher.Link{Href: "https://x.example/docs/guide"})
	if !almostEqual(docs, 0.7, 1e-9) {
		t.Errorf("docs authority = %v, want 0.7", docs)
	}

	img := s.calculateAuthority(fetcher.Link{Href: "https://x.example/shot.png"})
	if !almostEqual(img, 0.2, 1e-9) {
		t.Errorf("image authority = %v, want 0.2", img)
	}

	pdf := s.calculateAuthority(fetcher.Link{Href: "https://x.example/paper.pdf"})
	if !almostEqual(pdf, 0.6, 1e-9) {
		t.Errorf("pdf authority = %v, want 0.6", pdf)
	}

	// Intrinsic blend: 0.7*0.7 + 0.3*1.0
	intrinsic := 1.0
	blended := s.calculateAuthority(fetcher.Link{Href: "https://x.example/docs/a", IntrinsicScore: &intrinsic})
	if !almostEqual(blended, 0.79, 1e-9) {
		t.Errorf("blended authority = %v, want 0.79", blended)
	}

	if a := s.calculateAuthority(fetcher.Link{}); a != 0 {
		t.Errorf("missing href authority = %v", a)
	}
}

func TestStatisticalShouldStop(t *testing.T) {
	cfg := config.Default()
	cfg.ConfidenceThreshold = 0.7
	cfg.MaxPages = 3
	cfg.SaturationThreshold = 0.8
	s := NewStatisticalStrategy(cfg)
	ctx := context.Background()

	// Confidence reached.
	state := NewCrawlState("q")
	state.PendingLinks = []fetcher.Link{{Href: "u"}}
	state.Metrics["confidence"] = 0.75
	if stop, _ := s.ShouldStop(ctx, state, cfg); !stop {
		t.Error("should stop at confidence threshold")
	}

	// Page budget reached.
	state = NewCrawlState("q")
	state.PendingLinks = []fetcher.Link{{Href: "u"}}
	for _, u := range []string{"a", "b", "c"} {
		state.CrawledURLs[u] = true
	}
	if stop, _ := s.ShouldStop(ctx, state, cfg); !stop {
		t.Error("should stop at max pages")
	}

	// Empty frontier.
	state = NewCrawlState("q")
	if stop, _ := s.ShouldStop(ctx, state, cfg); !stop {
		t.Error("should stop with empty frontier")
	}

	// Saturation reached.
	state = NewCrawlState("q")
	state.PendingLinks = []fetcher.Link{{Href: "u"}}
	state.Metrics["saturation"] = 0.85
	if stop, _ := s.ShouldStop(ctx, state, cfg); !stop {
		t.Error("should stop at saturation threshold")
	}

	// None of the above.
	state = NewCrawlState("q")
	state.PendingLinks = []fetcher.Link{{Href: "u"}}
	state.Metrics["confidence"] = 0.2
	if stop, _ := s.ShouldStop(ctx, state, cfg); stop {
		t.Error("should continue")
	}
}
