// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
)

const (
	// Per-mirror attempt budget.
	mirrorTimeout = 120 * time.Second
	// Progress flush cadence while streaming.
	progressInterval = 2 * time.Second
)

// directDownloadID derives the registry key for a history row. Deterministic
// so a redelivered start job finds the stream it already launched.
func directDownloadID(historyID int64) string {
	return fmt.Sprintf("direct-%d", historyID)
}

// ProcessStartDirectDownload handles start_direct_download: it registers the
// in-memory record, launches the streaming goroutine over the mirror list,
// and enqueues the monitor loop. The stream outlives this handler, so it
// runs on a background context. A redelivery re-arms the monitor for the
// live stream instead of starting a second one.
func (s *Service) ProcessStartDirectDownload(ctx context.Context, payload []byte) (any, error) {
	var p jobs.StartDirectDownloadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid direct download payload: %w", err))
	}
	if len(p.DownloadURLs) == 0 {
		return nil, queue.Terminal(errors.New("direct download has no mirror urls"))
	}

	downloadID := directDownloadID(p.DownloadHistoryID)
	targetPath := filepath.Join(s.downloads, p.TargetFilename)

	req, err := s.requests.GetActive(ctx, p.RequestID)
	if errors.Is(err, models.ErrStateConflict) || errors.Is(err, models.ErrRequestNotFound) {
		return Result{Skipped: true, Reason: "request no longer active"}, nil
	}
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case models.StatusAwaitingDownload:
		// First delivery, proceed below.
	case models.StatusDownloading:
		// A retry after a failed monitor enqueue must re-arm the monitor for
		// the stream already running, not start a second one.
		if _, ok := s.registry.Get(downloadID); ok {
			if _, err := s.broker.Enqueue(ctx, jobs.TypeMonitorDirectDownload, jobs.MonitorDirectDownloadPayload{
				RequestID:         p.RequestID,
				DownloadHistoryID: p.DownloadHistoryID,
				DownloadID:        downloadID,
				TargetPath:        targetPath,
				ExpectedSize:      p.ExpectedSize,
			}, queue.EnqueueOptions{RequestID: &p.RequestID, Delay: monitorDelay}); err != nil {
				return nil, err
			}
			return Result{State: "downloading"}, nil
		}
		return Result{Skipped: true, Reason: "request already downloading"}, nil
	default:
		return Result{Skipped: true, Reason: "request not awaiting download"}, nil
	}

	if s.scraper == nil {
		return nil, s.failRequest(ctx, req, nil, jobs.AudiobookRef{},
			[]models.RequestStatus{models.StatusAwaitingDownload},
			"ebook sidecar not configured")
	}

	if _, ok := s.registry.Get(downloadID); ok {
		return Result{Skipped: true, Reason: "direct download already streaming"}, nil
	}

	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusAwaitingDownload},
		models.StatusDownloading,
		&models.RequestPatch{ClearError: true},
	); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return Result{Skipped: true, Reason: "request state changed"}, nil
		}
		return nil, err
	}

	d := &DirectDownload{
		ID:         downloadID,
		TargetPath: targetPath,
		StartTime:  time.Now(),
	}
	d.lastUpdate.Store(time.Now().UnixNano())
	s.registry.Add(d)

	if err := s.history.SetClientHandle(ctx, p.DownloadHistoryID, downloadID, "downloading"); err != nil {
		return nil, err
	}

	go s.stream(context.Background(), d, p)

	if _, err := s.broker.Enqueue(ctx, jobs.TypeMonitorDirectDownload, jobs.MonitorDirectDownloadPayload{
		RequestID:         p.RequestID,
		DownloadHistoryID: p.DownloadHistoryID,
		DownloadID:        downloadID,
		TargetPath:        targetPath,
		ExpectedSize:      p.ExpectedSize,
	}, queue.EnqueueOptions{RequestID: &p.RequestID, Delay: monitorDelay}); err != nil {
		return nil, err
	}

	log.Info().Int64("requestId", p.RequestID).Str("downloadId", downloadID).
		Int("mirrors", len(p.DownloadURLs)).Msg("direct download started")
	return Result{State: "downloading"}, nil
}

// stream iterates the mirror list until one yields the file. Each attempt
// gets its own timeout; partial files are unlinked on error.
func (s *Service) stream(ctx context.Context, d *DirectDownload, p jobs.StartDirectDownloadPayload) {
	preferredFormat := filepath.Ext(p.TargetFilename)

	for i, mirror := range p.DownloadURLs {
		err := s.streamMirror(ctx, d, mirror, preferredFormat, p.RequestID)
		if err == nil {
			d.completed.Store(true)
			log.Info().Int64("requestId", p.RequestID).Str("mirror", mirror).
				Int64("bytes", d.BytesDownloaded()).Msg("direct download finished")
			return
		}
		log.Warn().Err(err).Int64("requestId", p.RequestID).
			Int("attempt", i+1).Str("mirror", mirror).Msg("mirror attempt failed")
	}

	d.markFailed(fmt.Sprintf("all %d mirrors failed", len(p.DownloadURLs)))
}

func (s *Service) streamMirror(parent context.Context, d *DirectDownload, mirror, preferredFormat string, requestID int64) error {
	ctx, cancel := context.WithTimeout(parent, mirrorTimeout)
	defer cancel()

	resolved, err := s.scraper.ExtractDownloadURL(ctx, mirror, preferredFormat)
	if err != nil {
		return err
	}
	if resolved == nil {
		return errors.New("no download link on mirror page")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.URL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirror returned status %d", resp.StatusCode)
	}

	d.bytesDownloaded.Store(0)
	if resp.ContentLength > 0 {
		d.bytesTotal.Store(resp.ContentLength)
	}

	if err := os.MkdirAll(filepath.Dir(d.TargetPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(d.TargetPath)
	if err != nil {
		return err
	}

	if err := s.copyWithProgress(ctx, d, f, resp.Body, requestID); err != nil {
		f.Close()
		os.Remove(d.TargetPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(d.TargetPath)
		return err
	}
	return nil
}

// copyWithProgress streams body to f, updating the in-memory record and
// flushing progress to the request at the flush cadence. At most one DB
// write is in flight at a time; the pending flag drops flush ticks while a
// write is outstanding.
func (s *Service) copyWithProgress(ctx context.Context, d *DirectDownload, f *os.File, body io.Reader, requestID int64) error {
	buf := make([]byte, 64<<10)
	lastFlush := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return err
			}
			d.bytesDownloaded.Add(int64(n))
			d.lastUpdate.Store(time.Now().UnixNano())

			if time.Since(lastFlush) >= progressInterval {
				lastFlush = time.Now()
				s.flushProgress(d, requestID)
			}
		}
		if readErr == io.EOF {
			s.flushProgress(d, requestID)
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (s *Service) flushProgress(d *DirectDownload, requestID int64) {
	if !d.pendingWrite.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer d.pendingWrite.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.requests.UpdateProgress(ctx, requestID, d.Progress()); err != nil {
			log.Warn().Err(err).Int64("requestId", requestID).Msg("failed to flush download progress")
		}
	}()
}

// ProcessMonitorDirectDownload handles monitor_direct_download: inspect the
// in-memory record and either finish, fail, or re-enqueue.
func (s *Service) ProcessMonitorDirectDownload(ctx context.Context, payload []byte) (any, error) {
	var p jobs.MonitorDirectDownloadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid direct monitor payload: %w", err))
	}

	req, err := s.requests.GetActive(ctx, p.RequestID)
	if errors.Is(err, models.ErrStateConflict) || errors.Is(err, models.ErrRequestNotFound) {
		s.registry.Remove(p.DownloadID)
		return Result{Skipped: true, Reason: "request no longer active"}, nil
	}
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusDownloading {
		s.registry.Remove(p.DownloadID)
		return Result{Skipped: true, Reason: "request not downloading"}, nil
	}

	d, ok := s.registry.Get(p.DownloadID)
	if !ok {
		// Registry is in-memory: a restart orphans the stream.
		return nil, s.failDirect(ctx, req, p, "direct download interrupted by restart")
	}

	switch {
	case d.Completed():
		s.registry.Remove(p.DownloadID)
		if err := s.history.MarkCompleted(ctx, p.DownloadHistoryID, d.TargetPath, filepath.Base(d.TargetPath)); err != nil {
			return nil, err
		}

		progress := 99
		if err := s.requests.Transition(ctx, req.ID,
			[]models.RequestStatus{models.StatusDownloading},
			models.StatusAwaitingImport,
			&models.RequestPatch{Progress: &progress, ClearError: true},
		); err != nil {
			if errors.Is(err, models.ErrStateConflict) {
				return Result{Skipped: true, Reason: "request state changed"}, nil
			}
			return nil, err
		}

		if _, err := s.broker.Enqueue(ctx, jobs.TypeOrganizeFiles, jobs.OrganizeFilesPayload{
			RequestID:    req.ID,
			AudiobookID:  req.AudiobookID,
			DownloadPath: d.TargetPath,
		}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
			return nil, err
		}
		return Result{State: "completed", Progress: 100}, nil

	case d.Failed():
		s.registry.Remove(p.DownloadID)
		return nil, s.failDirect(ctx, req, p, d.FailureMessage())

	default:
		progress := d.Progress()
		if _, err := s.broker.Enqueue(ctx, jobs.TypeMonitorDirectDownload, p,
			queue.EnqueueOptions{RequestID: &req.ID, Delay: monitorDelay}); err != nil {
			return nil, err
		}
		return Result{State: "downloading", Progress: progress}, nil
	}
}

func (s *Service) failDirect(ctx context.Context, req *models.Request, p jobs.MonitorDirectDownloadPayload, msg string) error {
	if err := s.history.MarkFailed(ctx, p.DownloadHistoryID, msg); err != nil {
		return err
	}
	return s.failRequest(ctx, req, nil, jobs.AudiobookRef{},
		[]models.RequestStatus{models.StatusDownloading}, msg)
}
