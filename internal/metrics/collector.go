// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
)

// PipelineCollector samples request and queue state on scrape.
type PipelineCollector struct {
	requests *models.RequestStore
	broker   *queue.Broker

	requestsDesc  *prometheus.Desc
	jobsDesc      *prometheus.Desc
	queueDownDesc *prometheus.Desc
}

func NewPipelineCollector(requests *models.RequestStore, broker *queue.Broker) *PipelineCollector {
	return &PipelineCollector{
		requests: requests,
		broker:   broker,

		requestsDesc: prometheus.NewDesc(
			"listenarr_requests",
			"Number of live requests by lifecycle status",
			[]string{"status"},
			nil,
		),
		jobsDesc: prometheus.NewDesc(
			"listenarr_jobs",
			"Number of broker jobs by state",
			[]string{"state"},
			nil,
		),
		queueDownDesc: prometheus.NewDesc(
			"listenarr_broker_up",
			"Whether the job broker answered the last scrape (1=up, 0=down)",
			nil,
			nil,
		),
	}
}

func (c *PipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsDesc
	ch <- c.jobsDesc
	ch <- c.queueDownDesc
}

func (c *PipelineCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := c.requests.CountByStatus(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to collect request metrics")
	} else {
		for _, status := range []models.RequestStatus{
			models.StatusAwaitingSearch,
			models.StatusAwaitingDownload,
			models.StatusDownloading,
			models.StatusAwaitingImport,
			models.StatusProcessing,
			models.StatusDownloaded,
			models.StatusCompleted,
			models.StatusWarn,
			models.StatusFailed,
			models.StatusCancelled,
		} {
			ch <- prometheus.MustNewConstMetric(c.requestsDesc,
				prometheus.GaugeValue, float64(counts[status]), string(status))
		}
	}

	queueCounts, err := c.broker.Counts()
	if err != nil {
		log.Warn().Err(err).Msg("failed to collect broker metrics")
		ch <- prometheus.MustNewConstMetric(c.queueDownDesc, prometheus.GaugeValue, 0)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.queueDownDesc, prometheus.GaugeValue, 1)
	for state, n := range map[string]int{
		"waiting":   queueCounts.Waiting,
		"active":    queueCounts.Active,
		"completed": queueCounts.Completed,
		"failed":    queueCounts.Failed,
		"delayed":   queueCounts.Delayed,
	} {
		ch <- prometheus.MustNewConstMetric(c.jobsDesc,
			prometheus.GaugeValue, float64(n), state)
	}
}
