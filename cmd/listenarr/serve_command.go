// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/listenarr/listenarr/internal/app"
	"github.com/listenarr/listenarr/internal/config"
	"github.com/listenarr/listenarr/internal/logger"
)

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the request pipeline and ops HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appConfig, err := config.New(configDir, version)
			if err != nil {
				return err
			}

			logger.Init(appConfig.Config)

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, appConfig.Config)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				log.Error().Err(err).Msg("listenarr exited with error")
				return err
			}
			log.Info().Msg("listenarr stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory containing config.toml (created on first run)")

	return cmd
}
