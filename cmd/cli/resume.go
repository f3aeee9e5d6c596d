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

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "Path to configuration file")
	maxPages := fs.Int("max-pages", 0, "Override maximum pages to crawl")
	maxDepth := fs.Int("max-depth", 0, "Override maximum iterations")
	statePath := fs.String("state", "", "Persist state to this file instead of the resumed one")
	detailed := fs.Bool("detailed", false, "Show detailed statistics after the crawl")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: adaptive-crawler resume [options] <state-file> <start-url> <query>

Continue a crawl from a previously saved state file. The state keeps
checkpointing to the same file unless -state names another one.

Options:
  -config string
        Path to configuration file (default "config.json")
  -max-pages int
        Override maximum pages to crawl
  -max-depth int
        Override maximum iterations
  -state string
        Persist state to this file instead of the resumed one
  -detailed
        Show detailed statistics after the crawl

Examples:
  adaptive-crawler resume run.json https://example.com "deployment options"
  adaptive-crawler resume -max-pages 40 run.json https://example.com "deployment options"
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return fmt.Errorf("state file, start URL, and query are required")
	}
	resumeFrom := fs.Arg(0)
	startURL := fs.Arg(1)
	query := strings.Join(fs.Args()[2:], " ")

	if _, err := os.Stat(resumeFrom); err != nil {
		return fmt.Errorf("cannot resume from %s: %w", resumeFrom, err)
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *maxPages > 0 {
		cfg.MaxPages = *maxPages
	}
	if *maxDepth > 0 {
		cfg.MaxDepth = *maxDepth
	}
	cfg.SaveState = true
	cfg.StatePath = resumeFrom
	if *statePath != "" {
		cfg.StatePath = *statePath
	}

	system, err := common.InitializeSystem(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize system: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	state, err := system.Crawler.Digest(ctx, startURL, query, resumeFrom)
	if err != nil {
		return err
	}

	system.Crawler.PrintStats(os.Stdout, *detailed)
	if state.StoppedReason != "" {
		fmt.Printf("Stopped: %s\n", state.StoppedReason)
	}
	return nil
}
