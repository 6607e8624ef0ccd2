// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package web serves the operational HTTP surface: liveness, readiness, and
// prometheus metrics.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/database"
	"github.com/listenarr/listenarr/internal/metrics"
	"github.com/listenarr/listenarr/internal/queue"
)

type Server struct {
	srv *http.Server
}

// NewServer builds the ops router. metricsManager may be nil when metrics
// are disabled; /metrics then returns 404.
func NewServer(host string, port int, db *database.DB, broker *queue.Broker, metricsManager *metrics.Manager) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		if err := db.Conn().PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if _, err := broker.Counts(); err != nil {
			http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if metricsManager != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			metricsManager.GetRegistry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}

	return &Server{
		srv: &http.Server{
			Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// ListenAndServe blocks until the server stops. A closed-server shutdown is
// not an error.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.srv.Addr).Msg("ops http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
