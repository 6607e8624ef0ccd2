// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package logger configures the global zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/listenarr/listenarr/internal/domain"
)

// Init configures the global logger from config. Console output is always
// enabled; when LogPath is set, a rotating file writer is added as well.
func Init(cfg *domain.Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := parseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	writers := []io.Writer{console}
	if cfg.LogPath != "" {
		maxSize := cfg.LogMaxSize
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := cfg.LogMaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO", "":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
