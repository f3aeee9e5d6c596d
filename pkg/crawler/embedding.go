// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package crawler

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"

	"adaptive-crawler/internal/config"
	"adaptive-crawler/pkg/embedding"
	"adaptive-crawler/pkg/fetcher"
)

// kbSimilarityThreshold is the cosine similarity at or above which a new
// document is considered a duplicate of existing knowledge and is left out of
// the KB embeddings.
const kbSimilarityThreshold = 0.95

// kbContentLimit caps how many characters of a document are embedded.
const kbContentLimit = 5000

// EmbeddingStrategy crawls by covering a synthetically expanded query space
// with document embeddings: links are chosen to fill the remaining semantic
// gaps, and crawling stops once the learning curve flattens and a held-out
// validation set confirms coverage.
type EmbeddingStrategy struct {
	cfg      *config.Config
	embedder embedding.Embedder
	expander QueryExpander

	// linkEmbeddings caches link-preview embeddings keyed by a hash of
	// href + preview text.
	linkEmbeddings map[uint64][]float32

	// distMatrix caches the query-to-KB cosine-distance matrix, keyed by a
	// content hash of the KB embeddings.
	distMatrix  [][]float64
	kbHash      uint64
	kbHashValid bool

	// Held-out validation split, embedded lazily on the first probe.
	validationQueries    []string
	validationEmbeddings [][]float32
	validationPassed     bool
}

// NewEmbeddingStrategy creates the embedding strategy.
func NewEmbeddingStrategy(cfg *config.Config, embedder embedding.Embedder, expander QueryExpander) *EmbeddingStrategy {
	return &EmbeddingStrategy{
		cfg:            cfg,
		embedder:       embedder,
		expander:       expander,
		linkEmbeddings: make(map[uint64][]float32),
	}
}

// ValidationPassed reports whether the held-out validation probe has
// confirmed coverage.
func (s *EmbeddingStrategy) ValidationPassed() bool {
	return s.validationPassed
}

// MapQuerySemanticSpace expands the query into a point cloud: variations
// come from the LLM, the original query always lands in the training split,
// and the remainder is shuffled into 80% training / 20% validation (at
// least 2). Training queries are embedded immediately; validation queries
// wait for the first probe.
func (s *EmbeddingStrategy) MapQuerySemanticSpace(ctx context.Context, state *CrawlState, query string) error {
	nTotal := int(float64(s.cfg.NQueryVariations) * 1.3)
	if nTotal < 1 {
		nTotal = 1
	}

	variations, err := s.expander.ExpandQuery(ctx, query, nTotal)
	if err != nil {
		return err
	}

	shuffled := make([]string, len(variations))
	copy(shuffled, variations)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nValidation := int(float64(len(shuffled)) * 0.2)
	if nValidation < 2 {
		nValidation = 2
	}
	if nValidation > len(shuffled) {
		nValidation = len(shuffled)
	}

	split := len(shuffled) - nValidation
	trainQueries := append([]string{query}, shuffled[:split]...)
	s.validationQueries = shuffled[split:]
	s.validationEmbeddings = nil

	trainEmbeddings, err := s.embedder.Embed(ctx, trainQueries)
	if err != nil {
		return fmt.Errorf("failed to embed training queries: %w", err)
	}

	state.QueryEmbeddings = trainEmbeddings
	state.ExpandedQueries = trainQueries[1:]
	state.EmbeddingModel = s.embedder.ModelName()
	return nil
}

// UpdateState embeds new documents and appends them to the KB, dropping
// near-duplicates of existing knowledge. Every integrated document counts
// toward total_documents; only embedded survivors extend crawl_order.
func (s *EmbeddingStrategy) UpdateState(ctx context.Context, state *CrawlState, results []*fetcher.Result) error {
	var texts []string
	var valid []*fetcher.Result
	for _, result := range results {
		content := result.Markdown.RawMarkdown
		if content == "" {
			state.TotalDocuments++
			continue
		}
		texts = append(texts, truncateRunes(content, kbContentLimit))
		valid = append(valid, result)
		state.TotalDocuments++
	}
	if len(texts) == 0 {
		return nil
	}

	newEmbeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	if len(state.KBEmbeddings) == 0 {
		state.KBEmbeddings = newEmbeddings
		for _, result := range valid {
			state.CrawlOrder = append(state.CrawlOrder, result.URL)
		}
	} else {
		existing := state.KBEmbeddings
		for i, emb := range newEmbeddings {
			if maxSimilarityTo(emb, existing) >= kbSimilarityThreshold {
				continue
			}
			state.KBEmbeddings = append(state.KBEmbeddings, emb)
			state.CrawlOrder = append(state.CrawlOrder, valid[i].URL)
		}
	}

	s.invalidateDistanceMatrix()
	return nil
}

func (s *EmbeddingStrategy) invalidateDistanceMatrix() {
	s.distMatrix = nil
	s.kbHashValid = false
}

// cachedDistanceMatrix returns the query-to-KB cosine-distance matrix,
// recomputing only when the KB embeddings changed.
func (s *EmbeddingStrategy) cachedDistanceMatrix(state *CrawlState) [][]float64 {
	if len(state.KBEmbeddings) == 0 || len(state.QueryEmbeddings) == 0 {
		return nil
	}

	hash := embeddingsHash(state.KBEmbeddings)
	if s.distMatrix == nil || !s.kbHashValid || hash != s.kbHash {
		s.distMatrix = distanceMatrix(state.QueryEmbeddings, state.KBEmbeddings)
		s.kbHash = hash
		s.kbHashValid = true
	}
	return s.distMatrix
}

// Confidence is the learning score: each training query's best cosine
// similarity to any KB vector, averaged (or, with coverage_tau set, the
// fraction of queries meeting the threshold).
func (s *EmbeddingStrategy) Confidence(ctx context.Context, state *CrawlState) (float64, error) {
	if len(state.KBEmbeddings) == 0 || len(state.QueryEmbeddings) == 0 {
		return 0, nil
	}

	qn := normalizeRows(state.QueryEmbeddings)
	dn := normalizeRows(state.KBEmbeddings)

	best := make([]float64, len(qn))
	for i, q := range qn {
		bestSim := math.Inf(-1)
		for _, d := range dn {
			var dot float64
			n := min(len(q), len(d))
			for k := 0; k < n; k++ {
				dot += float64(q[k]) * float64(d[k])
			}
			if dot > bestSim {
				bestSim = dot
			}
		}
		best[i] = bestSim
	}

	var score float64
	if tau := s.cfg.CoverageTau; tau > 0 {
		hits := 0
		for _, b := range best {
			if b >= tau {
				hits++
			}
		}
		score = float64(hits) / float64(len(best))
	} else {
		score = mean(best)
	}

	state.Metrics["coverage_score"] = score
	state.Metrics["avg_best_similarity"] = mean(best)
	state.Metrics["median_best_similarity"] = median(best)
	state.Metrics["learning_score"] = score

	return score, nil
}

// findCoverageGaps returns each training query's distance to its nearest KB
// vector; with an empty KB every gap is maximal.
func (s *EmbeddingStrategy) findCoverageGaps(state *CrawlState) []SemanticGap {
	gaps := make([]SemanticGap, 0, len(state.QueryEmbeddings))

	matrix := s.cachedDistanceMatrix(state)
	if matrix == nil {
		for _, q := range state.QueryEmbeddings {
			gaps = append(gaps, SemanticGap{Point: q, Distance: 1.0})
		}
		return gaps
	}

	for i, q := range state.QueryEmbeddings {
		minDist := math.Inf(1)
		for _, d := range matrix[i] {
			if d < minDist {
				minDist = d
			}
		}
		gaps = append(gaps, SemanticGap{Point: q, Distance: minDist})
	}
	return gaps
}

// RankLinks scores uncrawled links by how efficiently they fill the current
// semantic gaps, penalizing overlap with existing knowledge.
func (s *EmbeddingStrategy) RankLinks(ctx context.Context, state *CrawlState, cfg *config.Config) ([]ScoredLink, error) {
	candidates := state.UncrawledLinks()
	if len(candidates) == 0 {
		return nil, nil
	}

	gaps := s.findCoverageGaps(state)
	state.SemanticGaps = gaps

	embeddings, err := s.embedCandidates(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var scored []ScoredLink
	for _, link := range candidates {
		emb, ok := embeddings[link.Href]
		if !ok {
			continue
		}
		score := s.scoreLinkAgainstGaps(emb, gaps, state.KBEmbeddings, cfg)
		if link.ContextualScore != nil && *link.ContextualScore > 0 {
			score = 0.8*score + 0.2**link.ContextualScore
		}
		scored = append(scored, ScoredLink{Link: link, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// embedCandidates embeds the preview text of links not already cached and
// returns href -> embedding for every candidate with usable text.
func (s *EmbeddingStrategy) embedCandidates(ctx context.Context, candidates []fetcher.Link) (map[string][]float32, error) {
	out := make(map[string][]float32, len(candidates))

	var toEmbed []string
	var toEmbedKeys []uint64
	var toEmbedHrefs []string

	for _, link := range candidates {
		text := candidateText(link)
		if text == "" {
			continue
		}
		key := linkCacheKey(link.Href, text)
		if emb, ok := s.linkEmbeddings[key]; ok {
			out[link.Href] = emb
			continue
		}
		toEmbed = append(toEmbed, text)
		toEmbedKeys = append(toEmbedKeys, key)
		toEmbedHrefs = append(toEmbedHrefs, link.Href)
	}

	if len(toEmbed) > 0 {
		embeddings, err := s.embedder.Embed(ctx, toEmbed)
		if err != nil {
			return nil, fmt.Errorf("failed to embed link previews: %w", err)
		}
		for i, emb := range embeddings {
			s.linkEmbeddings[toEmbedKeys[i]] = emb
			out[toEmbedHrefs[i]] = emb
		}
	}

	return out, nil
}

// candidateText builds the text a link is embedded from.
func candidateText(link fetcher.Link) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{link.Text, link.Title, link.HeadMeta["description"]} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func linkCacheKey(href, text string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(href))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

// scoreLinkAgainstGaps accrues amplified distance improvements over gaps
// outside the coverage radius, averaged over gaps needing help, then damps
// the result by how much the link overlaps existing knowledge.
func (s *EmbeddingStrategy) scoreLinkAgainstGaps(emb []float32, gaps []SemanticGap, kb [][]float32, cfg *config.Config) float64 {
	if len(gaps) == 0 {
		return 0
	}

	gapsNeedingHelp := 0
	var totalImprovement float64
	for _, gap := range gaps {
		if gap.Distance <= cfg.EmbeddingCoverageRadius {
			continue
		}
		gapsNeedingHelp++
		newDistance := cosineDistance(emb, gap.Point)
		if newDistance < gap.Distance {
			totalImprovement += 2 * (gap.Distance - newDistance)
		}
	}

	gapReduction := 0.0
	if gapsNeedingHelp > 0 {
		gapReduction = totalImprovement / float64(gapsNeedingHelp)
	}

	overlapPenalty := 0.0
	if len(kb) > 0 {
		if maxSim := maxSimilarityTo(emb, kb); maxSim > cfg.EmbeddingOverlapThreshold {
			overlapPenalty = 2 * (maxSim - cfg.EmbeddingOverlapThreshold)
		}
	}

	return gapReduction * (1 - overlapPenalty)
}

// validateCoverage probes the held-out validation queries against the KB,
// embedding them once on first use.
func (s *EmbeddingStrategy) validateCoverage(ctx context.Context, state *CrawlState) (float64, error) {
	if len(s.validationQueries) == 0 {
		return state.Metrics["confidence"], nil
	}

	if s.validationEmbeddings == nil {
		embeddings, err := s.embedder.Embed(ctx, s.validationQueries)
		if err != nil {
			return 0, fmt.Errorf("failed to embed validation queries: %w", err)
		}
		s.validationEmbeddings = embeddings
	}

	if len(state.KBEmbeddings) == 0 {
		return 0, nil
	}

	matrix := distanceMatrix(s.validationEmbeddings, state.KBEmbeddings)
	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		minDist := math.Inf(1)
		for _, d := range row {
			if d < minDist {
				minDist = d
			}
		}
		scores[i] = math.Exp(-s.cfg.EmbeddingKExp * minDist)
	}

	validation := mean(scores)
	state.Metrics["validation_confidence"] = validation
	return validation, nil
}

// ShouldStop terminates on the page budget or an empty frontier, and
// otherwise watches the learning curve: once average improvement falls
// below the relative threshold, the held-out validation probe decides
// whether convergence is genuine coverage or a plateau worth pushing past.
// The confidence history is appended here, not in Confidence, so resumed
// runs never double-append.
func (s *EmbeddingStrategy) ShouldStop(ctx context.Context, state *CrawlState, cfg *config.Config) (bool, error) {
	confidence := state.Metrics["confidence"]

	if len(state.CrawledURLs) >= cfg.MaxPages || len(state.PendingLinks) == 0 {
		return true, nil
	}

	state.ConfidenceHistory = append(state.ConfidenceHistory, confidence)
	if len(state.ConfidenceHistory) < 2 {
		return false, nil
	}

	var totalDelta float64
	for i := 1; i < len(state.ConfidenceHistory); i++ {
		totalDelta += math.Abs(state.ConfidenceHistory[i] - state.ConfidenceHistory[i-1])
	}
	avgImprovement := totalDelta / float64(len(state.ConfidenceHistory)-1)
	state.Metrics["avg_improvement"] = avgImprovement

	if avgImprovement >= cfg.EmbeddingMinRelativeImprovement*confidence {
		return false, nil
	}

	// Converged; validate before trusting it.
	valScore, err := s.validateCoverage(ctx, state)
	if err != nil {
		return false, err
	}
	if valScore > cfg.EmbeddingValidationMinScore {
		state.StoppedReason = "converged_validated"
		state.Metrics["_validation_passed"] = 1
		s.validationPassed = true
		return true, nil
	}

	state.StoppedReason = "low_validation"
	return false, nil
}

// QualityConfidence maps the internal learning score onto a user-facing
// confidence. Validated runs land in the configured quality band; anything
// unvalidated is reported conservatively. It never feeds the stop test.
func (s *EmbeddingStrategy) QualityConfidence(state *CrawlState) float64 {
	learningScore := state.Metrics["learning_score"]
	validationScore := state.Metrics["validation_confidence"]

	if s.validationPassed && validationScore > s.cfg.EmbeddingValidationMinScore {
		switch {
		case learningScore < 0.4:
			return s.cfg.EmbeddingQualityMinConfidence
		case learningScore > 0.7:
			return s.cfg.EmbeddingQualityMaxConfidence
		default:
			return s.cfg.EmbeddingQualityMinConfidence + (learningScore-0.4)*s.cfg.EmbeddingQualityScaleFactor
		}
	}
	return learningScore * 0.8
}

// truncateRunes limits s to n runes without splitting a multibyte rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
