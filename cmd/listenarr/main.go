// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "listenarr",
		Short: "Audiobook request and acquisition pipeline",
		Long: `Listenarr watches audiobook requests through search, download,
import, and library matching, driven by a Redis-backed job pipeline.`,
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunVersionCommand())
	rootCmd.AddCommand(RunDBCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
