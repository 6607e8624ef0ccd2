// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/listenarr/listenarr/internal/database"
)

func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	cmd.AddCommand(runDBMigrateCommand())
	cmd.AddCommand(runDBInfoCommand())
	return cmd
}

func runDBMigrateCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return errors.New("--db is required")
			}

			db, err := database.New(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			cmd.Println("Database schema is up to date.")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite database file")

	return cmd
}

func runDBInfoCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show applied migrations and table row counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return errors.New("--db is required")
			}

			db, err := database.New(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()

			rows, err := db.Conn().QueryContext(ctx,
				`SELECT filename, applied_at FROM migrations ORDER BY id`)
			if err != nil {
				return err
			}
			defer rows.Close()

			cmd.Println("Applied migrations:")
			for rows.Next() {
				var filename, appliedAt string
				if err := rows.Scan(&filename, &appliedAt); err != nil {
					return err
				}
				cmd.Printf("  - %s (%s)\n", filename, appliedAt)
			}
			if err := rows.Err(); err != nil {
				return err
			}

			cmd.Println("Row counts:")
			for _, table := range []string{
				"requests", "audiobooks", "download_history", "jobs",
				"scheduled_jobs", "app_settings", "path_mappings", "metadata_cache",
			} {
				var n int
				if err := db.Conn().QueryRowContext(ctx,
					`SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
					return err
				}
				cmd.Printf("  - %s: %d\n", table, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite database file")

	return cmd
}
