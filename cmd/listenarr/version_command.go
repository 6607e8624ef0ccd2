// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("listenarr %s\n", version)
			if commit != "" {
				cmd.Printf("commit: %s\n", commit)
			}
			if date != "" {
				cmd.Printf("built: %s\n", date)
			}
			cmd.Printf("go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
