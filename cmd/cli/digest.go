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
	"os/signal"
	"strings"
	"syscall"

	"adaptive-crawler/cmd/common"
)

func runDigest(args []string) error {
	fs := flag.NewFlagSet("digest", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to configuration file")
	strategy := fs.String("strategy", "", "Override strategy (statistical or embedding)")
	maxPages := fs.Int("max-pages", 0, "Override maximum pages to crawl")
	maxDepth := fs.Int("max-depth", 0, "Override maximum iterations")
	statePath := fs.String("state", "", "Persist state to this file after each iteration")
	resumeFrom := fs.String("resume", "", "Resume from a previously saved state file")
	detailed := fs.Bool("detailed", false, "Show detailed statistics after the crawl")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: adaptive-crawler digest [options] <start-url> <query>

Crawl adaptively from a seed URL, expanding the frontier until the gathered
knowledge answers the query.

Options:
  -config string
        Path to configuration file (default "config.json")
  -strategy string
        Override strategy: statistical or embedding
  -max-pages int
        Override maximum pages to crawl
  -max-depth int
        Override maximum iterations
  -state string
        Persist state to this file after each iteration
  -resume string
        Resume from a previously saved state file
  -detailed
        Show detailed statistics after the crawl

Examples:
  adaptive-crawler digest https://docs.python.org/3/library/asyncio.html "async await event loop"
  adaptive-crawler digest -strategy embedding -state run.json https://example.com "deployment options"
  adaptive-crawler digest -resume run.json -max-pages 40 https://example.com "deployment options"
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("start URL and query are required")
	}
	startURL := fs.Arg(0)
	query := strings.Join(fs.Args()[1:], " ")

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *strategy != "" {
		cfg.Strategy = *strategy
	}
	if *maxPages > 0 {
		cfg.MaxPages = *maxPages
	}
	if *maxDepth > 0 {
		cfg.MaxDepth = *maxDepth
	}
	if *statePath != "" {
		cfg.SaveState = true
		cfg.StatePath = *statePath
	}

	system, err := common.InitializeSystem(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize system: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state, err := system.Crawler.Digest(ctx, startURL, query, *resumeFrom)
	if err != nil {
		return err
	}

	system.Crawler.PrintStats(os.Stdout, *detailed)
	if state.StoppedReason != "" {
		fmt.Printf("Stopped: %s\n", state.StoppedReason)
	}
	return nil
}
