// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package app is the composition root: it builds the database, stores,
// external clients, broker, processors, scheduler, and the ops HTTP server,
// and owns startup and shutdown ordering.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/listenarr/listenarr/internal/clients"
	"github.com/listenarr/listenarr/internal/clients/audible"
	"github.com/listenarr/listenarr/internal/clients/ebookscraper"
	"github.com/listenarr/listenarr/internal/clients/mediaserver"
	"github.com/listenarr/listenarr/internal/clients/prowlarr"
	"github.com/listenarr/listenarr/internal/clients/qbittorrent"
	"github.com/listenarr/listenarr/internal/clients/sabnzbd"
	"github.com/listenarr/listenarr/internal/database"
	"github.com/listenarr/listenarr/internal/domain"
	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/metrics"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
	"github.com/listenarr/listenarr/internal/scheduler"
	"github.com/listenarr/listenarr/internal/services/download"
	"github.com/listenarr/listenarr/internal/services/librarymatch"
	"github.com/listenarr/listenarr/internal/services/notifications"
	"github.com/listenarr/listenarr/internal/services/organizer"
	"github.com/listenarr/listenarr/internal/services/recurring"
	"github.com/listenarr/listenarr/internal/services/search"
	"github.com/listenarr/listenarr/internal/web"
)

// App holds every long-lived component.
type App struct {
	cfg *domain.Config

	db        *database.DB
	broker    *queue.Broker
	scheduler *scheduler.Scheduler
	webServer *web.Server
}

// New wires the full pipeline. External clients are optional: a missing
// endpoint leaves the client nil and the processors that need it skip.
func New(ctx context.Context, cfg *domain.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.DataDir, cfg.DownloadDir, cfg.MediaDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := database.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	requests := models.NewRequestStore(db)
	audiobooks := models.NewAudiobookStore(db)
	history := models.NewDownloadHistoryStore(db)
	jobStore := models.NewJobStore(db)
	scheduledJobs := models.NewScheduledJobStore(db)
	settings := models.NewAppSettingStore(db)
	pathmaps := models.NewPathMappingStore(db)
	metadata := models.NewMetadataCacheStore(db)

	broker := queue.NewBroker(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, jobStore)

	var prowlarrClient *prowlarr.Client
	if cfg.Prowlarr.Host != "" {
		prowlarrClient = prowlarr.NewClient(prowlarr.Config{
			Host:    cfg.Prowlarr.Host,
			APIKey:  cfg.Prowlarr.APIKey,
			Timeout: cfg.Prowlarr.TimeoutSeconds,
		})
	}

	var qbtClient *qbittorrent.Client
	if cfg.QBittorrent.Host != "" {
		qbtClient, err = qbittorrent.NewClient(ctx, cfg.QBittorrent.Host,
			cfg.QBittorrent.Username, cfg.QBittorrent.Password)
		if err != nil {
			// The client is down, not misconfigured: torrent handoffs fail
			// and retry until it comes back.
			log.Warn().Err(err).Msg("qbittorrent unreachable at startup")
			qbtClient = nil
		}
	}

	var sabClient *sabnzbd.Client
	if cfg.SABnzbd.Host != "" {
		sabClient = sabnzbd.NewClient(cfg.SABnzbd.Host, cfg.SABnzbd.APIKey)
	}

	var scraper *ebookscraper.Client
	if cfg.EbookSidecar.BaseURL != "" {
		scraper = ebookscraper.NewClient(cfg.EbookSidecar.BaseURL, cfg.EbookSidecar.FlaresolverrURL)
	}

	audibleClient := audible.NewClient(cfg.Audible.Region)

	backends := buildBackends(cfg)
	scanTargets := buildScanTargets(cfg)

	downloaders := map[models.DownloadClient]clients.Downloader{}
	if qbtClient != nil {
		downloaders[models.ClientQBittorrent] = qbtClient
	}
	if sabClient != nil {
		downloaders[models.ClientSABnzbd] = sabClient
	}

	notifier := notifications.NewService(cfg.Notifications.WebhookURL)

	searchSvc := search.NewService(requests, history, settings,
		prowlarrClient, scraper, broker, cfg.EbookSidecar.PreferredFormat)
	// A typed nil must not reach the Extractor interface value.
	var extractor download.Extractor
	if scraper != nil {
		extractor = scraper
	}
	downloadSvc := download.NewService(requests, history, pathmaps, broker,
		notifier, qbtClient, sabClient, extractor, cfg.DownloadDir)
	organizerSvc := organizer.NewService(requests, audiobooks, metadata, broker,
		notifier, audibleClient, cfg.MediaDir, cfg.PathTemplate, scanTargets)
	matchSvc := librarymatch.NewService(requests, audiobooks, notifier, backends)
	recurringSvc := recurring.NewService(requests, audiobooks, history, settings,
		pathmaps, metadata, broker, prowlarrClient, audibleClient, backends,
		downloaders, cfg.DownloadDir, thumbnailDir(cfg), cfg.Audible.RefreshCount)

	registerHandlers(broker, searchSvc, downloadSvc, organizerSvc, matchSvc, recurringSvc)

	var metricsManager *metrics.Manager
	if cfg.MetricsEnabled {
		metricsManager = metrics.NewManager(requests, broker)
	}

	return &App{
		cfg:       cfg,
		db:        db,
		broker:    broker,
		scheduler: scheduler.New(scheduledJobs, broker),
		webServer: web.NewServer(cfg.Host, cfg.Port, db, broker, metricsManager),
	}, nil
}

// registerHandlers binds every job type to its processor.
func registerHandlers(
	broker *queue.Broker,
	searchSvc *search.Service,
	downloadSvc *download.Service,
	organizerSvc *organizer.Service,
	matchSvc *librarymatch.Service,
	recurringSvc *recurring.Service,
) {
	broker.Handle(jobs.TypeSearchIndexers, searchSvc.ProcessSearch)
	broker.Handle(jobs.TypeSearchEbook, searchSvc.ProcessSearchEbook)
	broker.Handle(jobs.TypeDownloadTorrent, downloadSvc.ProcessDownloadTorrent)
	broker.Handle(jobs.TypeStartDirectDownload, downloadSvc.ProcessStartDirectDownload)
	broker.Handle(jobs.TypeMonitorDownload, downloadSvc.ProcessMonitorDownload)
	broker.Handle(jobs.TypeMonitorDirectDownload, downloadSvc.ProcessMonitorDirectDownload)
	broker.Handle(jobs.TypeOrganizeFiles, organizerSvc.ProcessOrganizeFiles)
	broker.Handle(jobs.TypeScanLibrary, matchSvc.ProcessScanLibrary)
	broker.Handle(jobs.TypeMatchLibrary, matchSvc.ProcessMatchLibrary)
	broker.Handle(jobs.TypeRetryMissingSearch, recurringSvc.ProcessRetryMissingSearch)
	broker.Handle(jobs.TypeRetryFailedImports, recurringSvc.ProcessRetryFailedImports)
	broker.Handle(jobs.TypeMonitorRSSFeeds, recurringSvc.ProcessMonitorRSSFeeds)
	broker.Handle(jobs.TypeCleanupSeeded, recurringSvc.ProcessCleanupSeeded)
	broker.Handle(jobs.TypeRefreshMetadata, recurringSvc.ProcessRefreshMetadata)
	broker.Handle(jobs.TypePlexLibraryScan, recurringSvc.ProcessPlexLibraryScan)
	broker.Handle(jobs.TypeRecentlyAdded, recurringSvc.ProcessRecentlyAdded)
	broker.Handle(jobs.TypeSyncShelves, recurringSvc.ProcessSyncShelves)
}

// buildBackends returns the configured media-server backends.
func buildBackends(cfg *domain.Config) []librarymatch.Backend {
	var backends []librarymatch.Backend
	if cfg.Audiobookshelf.Host != "" {
		backends = append(backends, librarymatch.Backend{
			Name:      "audiobookshelf",
			LibraryID: cfg.Audiobookshelf.LibraryID,
			Library:   mediaserver.NewAudiobookshelf(cfg.Audiobookshelf.Host, cfg.Audiobookshelf.Token),
		})
	}
	if cfg.Plex.Host != "" {
		backends = append(backends, librarymatch.Backend{
			Name:      "plex",
			LibraryID: cfg.Plex.LibraryID,
			Library:   mediaserver.NewPlex(cfg.Plex.Host, cfg.Plex.Token),
		})
	}
	return backends
}

// buildScanTargets lists the backends that want a scan after each import.
func buildScanTargets(cfg *domain.Config) []organizer.ScanTarget {
	var targets []organizer.ScanTarget
	if cfg.Audiobookshelf.Host != "" && cfg.Audiobookshelf.TriggerScanAfterImport {
		targets = append(targets, organizer.ScanTarget{
			Backend:   "audiobookshelf",
			LibraryID: cfg.Audiobookshelf.LibraryID,
		})
	}
	if cfg.Plex.Host != "" && cfg.Plex.TriggerScanAfterImport {
		targets = append(targets, organizer.ScanTarget{
			Backend:   "plex",
			LibraryID: cfg.Plex.LibraryID,
		})
	}
	return targets
}

func thumbnailDir(cfg *domain.Config) string {
	if cfg.Audible.ThumbnailDir != "" {
		return cfg.Audible.ThumbnailDir
	}
	return filepath.Join(cfg.DataDir, "thumbnails")
}

// Run starts the broker, the scheduler, and the ops server, then blocks until
// ctx is cancelled. Shutdown is ordered: HTTP first, then workers (draining
// in-flight jobs), then the database.
func (a *App) Run(ctx context.Context) error {
	if err := a.broker.Start(); err != nil {
		return err
	}
	if err := a.scheduler.Start(ctx); err != nil {
		a.broker.Shutdown()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.webServer.ListenAndServe()
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.webServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("ops http server shutdown failed")
		}

		a.broker.Shutdown()

		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("database close failed")
		}
		return nil
	})

	log.Info().Str("version", a.cfg.Version).Msg("listenarr started")
	return g.Wait()
}

// Scheduler exposes the recurring-job manager.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}
