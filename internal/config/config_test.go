// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		option string
	}{
		{"confidence above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"zero max depth", func(c *Config) { c.MaxDepth = 0 }, "max_depth"},
		{"zero max pages", func(c *Config) { c.MaxPages = 0 }, "max_pages"},
		{"zero top k", func(c *Config) { c.TopKLinks = 0 }, "top_k_links"},
		{"negative gain", func(c *Config) { c.MinGainThreshold = -0.1 }, "min_gain_threshold"},
		{"unknown strategy", func(c *Config) { c.Strategy = "llm" }, "strategy"},
		{"coverage radius at bound", func(c *Config) { c.EmbeddingCoverageRadius = 1.0 }, "embedding_coverage_radius"},
		{"zero k exp", func(c *Config) { c.EmbeddingKExp = 0 }, "embedding_k_exp"},
		{"overlap above one", func(c *Config) { c.EmbeddingOverlapThreshold = 1.2 }, "embedding_overlap_threshold"},
		{"improvement at bound", func(c *Config) { c.EmbeddingMinRelativeImprovement = 1.0 }, "embedding_min_relative_improvement"},
		{"zero scale factor", func(c *Config) { c.EmbeddingQualityScaleFactor = 0 }, "embedding_quality_scale_factor"},
		{"save without path", func(c *Config) { c.SaveState = true; c.StatePath = "" }, "state_path"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var oe *OptionError
			if !errors.As(err, &oe) {
				t.Fatalf("expected *OptionError, got %T", err)
			}
			if oe.Option != tc.option {
				t.Errorf("expected option %q in error, got %q", tc.option, oe.Option)
			}
		})
	}
}

func TestValidateWeightSums(t *testing.T) {
	cfg := Default()
	cfg.CoverageWeight = 0.5 // 0.5 + 0.3 + 0.3 = 1.1
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sum to 1") {
		t.Fatalf("expected weight-sum error, got: %v", err)
	}

	cfg = Default()
	cfg.RelevanceWeight = 0.9
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected link weight-sum error, got nil")
	}

	cfg = Default()
	cfg.EmbeddingNearestWeight = 0.5 // 0.5 + 0.3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected embedding weight-sum error, got nil")
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"strategy": "embedding", "max_pages": 7, "top_k_links": 5}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Strategy != StrategyEmbedding {
		t.Errorf("expected embedding strategy, got %q", cfg.Strategy)
	}
	if cfg.MaxPages != 7 {
		t.Errorf("expected max_pages 7, got %d", cfg.MaxPages)
	}
	// Defaults fill unset fields.
	if cfg.EmbeddingKExp != 3.0 {
		t.Errorf("expected default embedding_k_exp 3.0, got %v", cfg.EmbeddingKExp)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "strategy: statistical\nmax_depth: 8\nsaturation_threshold: 0.9\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.MaxDepth != 8 {
		t.Errorf("expected max_depth 8, got %d", cfg.MaxDepth)
	}
	if cfg.SaturationThreshold != 0.9 {
		t.Errorf("expected saturation_threshold 0.9, got %v", cfg.SaturationThreshold)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"max_pages": 0}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected validation error for max_pages 0")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	cfg := Default()
	cfg.Strategy = StrategyEmbedding
	cfg.NQueryVariations = 4
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Strategy != cfg.Strategy || loaded.NQueryVariations != cfg.NQueryVariations {
		t.Errorf("round-trip mismatch: %+v vs %+v", loaded, cfg)
	}
}
