// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package main

import (
	"flag"
	"fmt"
	"os"

	"adaptive-crawler/internal/config"
)

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	outPath := fs.String("out", "config.json", "Where to write the config file")
	force := fs.Bool("force", false, "Overwrite an existing file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: adaptive-crawler config [options]

Write a default configuration file to edit.

Options:
  -out string
        Where to write the config file (default "config.json")
  -force
        Overwrite an existing file
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*outPath); err == nil {
			return fmt.Errorf("%s already exists (use -force to overwrite)", *outPath)
		}
	}

	if err := config.Default().SaveToFile(*outPath); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", *outPath)
	return nil
}
