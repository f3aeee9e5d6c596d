// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Strategy names accepted by Config.Strategy.
const (
	StrategyStatistical = "statistical"
	StrategyEmbedding   = "embedding"
)

// Config controls an adaptive crawl run. The zero value is not usable;
// call Default() and override fields, or load from a file.
type Config struct {
	// Core loop parameters
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxDepth            int     `json:"max_depth" yaml:"max_depth"`
	MaxPages            int     `json:"max_pages" yaml:"max_pages"`
	TopKLinks           int     `json:"top_k_links" yaml:"top_k_links"`
	MinGainThreshold    float64 `json:"min_gain_threshold" yaml:"min_gain_threshold"`
	Strategy            string  `json:"strategy" yaml:"strategy"`

	// Statistical confidence parameters
	SaturationThreshold  float64 `json:"saturation_threshold" yaml:"saturation_threshold"`
	ConsistencyThreshold float64 `json:"consistency_threshold" yaml:"consistency_threshold"`
	CoverageWeight       float64 `json:"coverage_weight" yaml:"coverage_weight"`
	ConsistencyWeight    float64 `json:"consistency_weight" yaml:"consistency_weight"`
	SaturationWeight     float64 `json:"saturation_weight" yaml:"saturation_weight"`

	// Link scoring parameters
	RelevanceWeight float64 `json:"relevance_weight" yaml:"relevance_weight"`
	NoveltyWeight   float64 `json:"novelty_weight" yaml:"novelty_weight"`
	AuthorityWeight float64 `json:"authority_weight" yaml:"authority_weight"`

	// Persistence
	SaveState bool   `json:"save_state" yaml:"save_state"`
	StatePath string `json:"state_path,omitempty" yaml:"state_path,omitempty"`

	// Embedding strategy parameters
	EmbeddingModel   string `json:"embedding_model" yaml:"embedding_model"`
	NQueryVariations int    `json:"n_query_variations" yaml:"n_query_variations"`

	// CoverageTau, when positive, switches the embedding confidence from
	// mean best-similarity to the fraction of queries whose best similarity
	// meets the threshold.
	CoverageTau float64 `json:"coverage_tau,omitempty" yaml:"coverage_tau,omitempty"`

	EmbeddingCoverageRadius         float64 `json:"embedding_coverage_radius" yaml:"embedding_coverage_radius"`
	EmbeddingKExp                   float64 `json:"embedding_k_exp" yaml:"embedding_k_exp"`
	EmbeddingNearestWeight          float64 `json:"embedding_nearest_weight" yaml:"embedding_nearest_weight"`
	EmbeddingTopKWeight             float64 `json:"embedding_top_k_weight" yaml:"embedding_top_k_weight"`
	EmbeddingOverlapThreshold       float64 `json:"embedding_overlap_threshold" yaml:"embedding_overlap_threshold"`
	EmbeddingMinRelativeImprovement float64 `json:"embedding_min_relative_improvement" yaml:"embedding_min_relative_improvement"`
	EmbeddingValidationMinScore     float64 `json:"embedding_validation_min_score" yaml:"embedding_validation_min_score"`
	EmbeddingQualityMinConfidence   float64 `json:"embedding_quality_min_confidence" yaml:"embedding_quality_min_confidence"`
	EmbeddingQualityMaxConfidence   float64 `json:"embedding_quality_max_confidence" yaml:"embedding_quality_max_confidence"`
	EmbeddingQualityScaleFactor     float64 `json:"embedding_quality_scale_factor" yaml:"embedding_quality_scale_factor"`
}

// Default returns a Config populated with the standard defaults.
func Default() *Config {
	return &Config{
		ConfidenceThreshold: 0.7,
		MaxDepth:            5,
		MaxPages:            20,
		TopKLinks:           3,
		MinGainThreshold:    0.1,
		Strategy:            StrategyStatistical,

		SaturationThreshold:  0.8,
		ConsistencyThreshold: 0.7,
		CoverageWeight:       0.4,
		ConsistencyWeight:    0.3,
		SaturationWeight:     0.3,

		RelevanceWeight: 0.5,
		NoveltyWeight:   0.3,
		AuthorityWeight: 0.2,

		EmbeddingModel:   "text-embedding-3-small",
		NQueryVariations: 10,

		EmbeddingCoverageRadius:         0.2,
		EmbeddingKExp:                   3.0,
		EmbeddingNearestWeight:          0.7,
		EmbeddingTopKWeight:             0.3,
		EmbeddingOverlapThreshold:       0.85,
		EmbeddingMinRelativeImprovement: 0.1,
		EmbeddingValidationMinScore:     0.4,
		EmbeddingQualityMinConfidence:   0.7,
		EmbeddingQualityMaxConfidence:   0.95,
		EmbeddingQualityScaleFactor:     0.833,
	}
}

// OptionError reports an invalid configuration option.
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("invalid config option %q: %s", e.Option, e.Reason)
}

func optionErr(option, reason string) error {
	return &OptionError{Option: option, Reason: reason}
}

// Validate checks all options and returns an error naming the first
// offending option. It must be called before any network activity.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return optionErr("confidence_threshold", "must be between 0 and 1, got "+ftoa(c.ConfidenceThreshold))
	}
	if c.MaxDepth < 1 {
		return optionErr("max_depth", "must be at least 1, got "+strconv.Itoa(c.MaxDepth))
	}
	if c.MaxPages < 1 {
		return optionErr("max_pages", "must be at least 1, got "+strconv.Itoa(c.MaxPages))
	}
	if c.TopKLinks < 1 {
		return optionErr("top_k_links", "must be at least 1, got "+strconv.Itoa(c.TopKLinks))
	}
	if c.MinGainThreshold < 0 || c.MinGainThreshold > 1 {
		return optionErr("min_gain_threshold", "must be between 0 and 1, got "+ftoa(c.MinGainThreshold))
	}
	if c.Strategy != StrategyStatistical && c.Strategy != StrategyEmbedding {
		return optionErr("strategy", fmt.Sprintf("must be %q or %q, got %q", StrategyStatistical, StrategyEmbedding, c.Strategy))
	}

	if sum := c.CoverageWeight + c.ConsistencyWeight + c.SaturationWeight; !sumsToOne(sum) {
		return optionErr("coverage_weight", "coverage_weight + consistency_weight + saturation_weight must sum to 1, got "+ftoa(sum))
	}
	if sum := c.RelevanceWeight + c.NoveltyWeight + c.AuthorityWeight; !sumsToOne(sum) {
		return optionErr("relevance_weight", "relevance_weight + novelty_weight + authority_weight must sum to 1, got "+ftoa(sum))
	}

	if c.SaveState && c.StatePath == "" {
		return optionErr("state_path", "required when save_state is enabled")
	}

	if c.EmbeddingCoverageRadius <= 0 || c.EmbeddingCoverageRadius >= 1 {
		return optionErr("embedding_coverage_radius", "must be strictly between 0 and 1, got "+ftoa(c.EmbeddingCoverageRadius))
	}
	if c.EmbeddingKExp <= 0 {
		return optionErr("embedding_k_exp", "must be positive, got "+ftoa(c.EmbeddingKExp))
	}
	if c.EmbeddingNearestWeight < 0 || c.EmbeddingNearestWeight > 1 {
		return optionErr("embedding_nearest_weight", "must be between 0 and 1, got "+ftoa(c.EmbeddingNearestWeight))
	}
	if c.EmbeddingTopKWeight < 0 || c.EmbeddingTopKWeight > 1 {
		return optionErr("embedding_top_k_weight", "must be between 0 and 1, got "+ftoa(c.EmbeddingTopKWeight))
	}
	if sum := c.EmbeddingNearestWeight + c.EmbeddingTopKWeight; !sumsToOne(sum) {
		return optionErr("embedding_nearest_weight", "embedding_nearest_weight + embedding_top_k_weight must sum to 1, got "+ftoa(sum))
	}
	if c.EmbeddingOverlapThreshold < 0 || c.EmbeddingOverlapThreshold > 1 {
		return optionErr("embedding_overlap_threshold", "must be between 0 and 1, got "+ftoa(c.EmbeddingOverlapThreshold))
	}
	if c.EmbeddingMinRelativeImprovement <= 0 || c.EmbeddingMinRelativeImprovement >= 1 {
		return optionErr("embedding_min_relative_improvement", "must be strictly between 0 and 1, got "+ftoa(c.EmbeddingMinRelativeImprovement))
	}
	if c.EmbeddingValidationMinScore < 0 || c.EmbeddingValidationMinScore > 1 {
		return optionErr("embedding_validation_min_score", "must be between 0 and 1, got "+ftoa(c.EmbeddingValidationMinScore))
	}
	if c.EmbeddingQualityMinConfidence < 0 || c.EmbeddingQualityMinConfidence > 1 {
		return optionErr("embedding_quality_min_confidence", "must be between 0 and 1, got "+ftoa(c.EmbeddingQualityMinConfidence))
	}
	if c.EmbeddingQualityMaxConfidence < 0 || c.EmbeddingQualityMaxConfidence > 1 {
		return optionErr("embedding_quality_max_confidence", "must be between 0 and 1, got "+ftoa(c.EmbeddingQualityMaxConfidence))
	}
	if c.EmbeddingQualityScaleFactor <= 0 {
		return optionErr("embedding_quality_scale_factor", "must be positive, got "+ftoa(c.EmbeddingQualityScaleFactor))
	}
	if c.Strategy == StrategyEmbedding && c.NQueryVariations < 1 {
		return optionErr("n_query_variations", "must be at least 1, got "+strconv.Itoa(c.NQueryVariations))
	}

	return nil
}

// LoadFromFile loads a Config from a JSON or YAML file, fills defaults for
// unset fields, and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func sumsToOne(sum float64) bool {
	return math.Abs(sum-1.0) < 0.001
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
