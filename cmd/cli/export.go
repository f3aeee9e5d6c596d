// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"adaptive-crawler/cmd/common"
	"adaptive-crawler/pkg/crawler"
	"adaptive-crawler/pkg/vectorstore"
	"adaptive-crawler/pkg/vectorstore/qdrant"
)

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to configuration file")
	statePath := fs.String("state", "", "Saved state file to export from (required)")
	outPath := fs.String("out", "", "Write the knowledge base as JSONL to this file")
	qdrantAddr := fs.String("qdrant", "", "Mirror embedded documents to this Qdrant address")
	collection := fs.String("collection", "crawl_knowledge", "Qdrant collection name")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: adaptive-crawler export [options]

Export a saved crawl state: as JSONL for sharing, or into a Qdrant
collection for downstream retrieval (embedding-strategy runs only).

Options:
  -config string
        Path to configuration file (default "config.json")
  -state string
        Saved state file to export from (required)
  -out string
        Write the knowledge base as JSONL to this file
  -qdrant string
        Mirror embedded documents to this Qdrant address (e.g. localhost:6334)
  -collection string
        Qdrant collection name (default "crawl_knowledge")

Examples:
  adaptive-crawler export -state run.json -out knowledge.jsonl
  adaptive-crawler export -state run.json -qdrant localhost:6334 -collection research
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *statePath == "" {
		return fmt.Errorf("-state is required")
	}
	if *outPath == "" && *qdrantAddr == "" {
		return fmt.Errorf("nothing to do: pass -out and/or -qdrant")
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	state, err := crawler.LoadState(*statePath)
	if err != nil {
		return err
	}

	// Export never fetches; the statistical strategy needs no providers.
	exportCfg := *cfg
	exportCfg.Strategy = "statistical"
	exportCfg.SaveState = false
	exportCfg.StatePath = ""
	system, err := common.InitializeSystem(&exportCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize system: %w", err)
	}
	system.Crawler.RestoreState(state)

	if *outPath != "" {
		if err := system.Crawler.ExportKnowledgeBase(*outPath); err != nil {
			return err
		}
		fmt.Printf("Exported %d documents to %s\n", len(state.KnowledgeBase), *outPath)
	}

	if *qdrantAddr != "" {
		store, err := qdrant.NewStore(*qdrantAddr, &vectorstore.Config{
			Type:              "qdrant",
			Address:           *qdrantAddr,
			DefaultCollection: *collection,
			TimeoutSeconds:    30,
		})
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := system.Crawler.MirrorKnowledgeBase(context.Background(), store, *collection)
		if err != nil {
			return err
		}
		fmt.Printf("Mirrored %d embedded documents to %s/%s\n", n, *qdrantAddr, *collection)
	}

	return nil
}
