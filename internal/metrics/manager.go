// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes a prometheus registry with pipeline collectors:
// request counts by lifecycle state and broker queue depths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
)

type Manager struct {
	registry          *prometheus.Registry
	pipelineCollector *PipelineCollector
}

func NewManager(requests *models.RequestStore, broker *queue.Broker) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipelineCollector := NewPipelineCollector(requests, broker)
	registry.MustRegister(pipelineCollector)

	log.Info().Msg("metrics manager initialized with pipeline collector")

	return &Manager{
		registry:          registry,
		pipelineCollector: pipelineCollector,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
