// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package organizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients/audible"
	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
	"github.com/listenarr/listenarr/internal/services/notifications"
)

// audioExtensions are the file types moved into the library.
var audioExtensions = map[string]bool{
	".m4b": true,
	".m4a": true,
	".mp3": true,
	".mp4": true,
	".aa":  true,
	".aax": true,
}

// coverNames are the art base names recognized case-insensitively.
var coverNames = map[string]bool{
	"cover":  true,
	"folder": true,
	"art":    true,
}

var coverExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Result is the structured processor outcome recorded on the job row.
type Result struct {
	Skipped    bool   `json:"skipped,omitempty"`
	Reason     string `json:"reason,omitempty"`
	TargetDir  string `json:"targetDir,omitempty"`
	FilesMoved int    `json:"filesMoved,omitempty"`
	Retried    bool   `json:"retried,omitempty"`
	Warned     bool   `json:"warned,omitempty"`
}

// ScanTarget describes a backend whose library should rescan after import.
type ScanTarget struct {
	Backend   string
	LibraryID string
}

type Service struct {
	requests   *models.RequestStore
	audiobooks *models.AudiobookStore
	metadata   *models.MetadataCacheStore
	broker     *queue.Broker
	notifier   *notifications.Service
	audible    *audible.Client

	mediaDir     string
	pathTemplate string
	scanTargets  []ScanTarget
	httpClient   *http.Client
}

func NewService(
	requests *models.RequestStore,
	audiobooks *models.AudiobookStore,
	metadata *models.MetadataCacheStore,
	broker *queue.Broker,
	notifier *notifications.Service,
	audibleClient *audible.Client,
	mediaDir, pathTemplate string,
	scanTargets []ScanTarget,
) *Service {
	return &Service{
		requests:     requests,
		audiobooks:   audiobooks,
		metadata:     metadata,
		broker:       broker,
		notifier:     notifier,
		audible:      audibleClient,
		mediaDir:     mediaDir,
		pathTemplate: pathTemplate,
		scanTargets:  scanTargets,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ProcessOrganizeFiles handles organize_files: move the completed download
// into the library tree and advance the request to downloaded. File-level
// failures consume an import attempt instead of failing outright.
func (s *Service) ProcessOrganizeFiles(ctx context.Context, payload []byte) (any, error) {
	var p jobs.OrganizeFilesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid organize payload: %w", err))
	}

	req, err := s.requests.GetActive(ctx, p.RequestID)
	if errors.Is(err, models.ErrStateConflict) || errors.Is(err, models.ErrRequestNotFound) {
		return Result{Skipped: true, Reason: "request no longer active"}, nil
	}
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusAwaitingImport && req.Status != models.StatusProcessing {
		return Result{Skipped: true, Reason: "request not awaiting import"}, nil
	}

	if req.Status == models.StatusAwaitingImport {
		progress := 100
		if err := s.requests.Transition(ctx, req.ID,
			[]models.RequestStatus{models.StatusAwaitingImport},
			models.StatusProcessing,
			&models.RequestPatch{Progress: &progress, IncrementImportAttempts: true},
		); err != nil {
			if errors.Is(err, models.ErrStateConflict) {
				return Result{Skipped: true, Reason: "request state changed"}, nil
			}
			return nil, err
		}
		req.ImportAttempts++
	}

	book, err := s.audiobooks.Get(ctx, p.AudiobookID)
	if err != nil {
		return nil, err
	}

	s.resolveYear(ctx, book)

	folder, err := RenderFolder(s.pathTemplate, book)
	if err != nil {
		return nil, s.terminalFailure(ctx, req, book, fmt.Sprintf("cannot render library path: %v", err))
	}
	targetDir := filepath.Join(s.mediaDir, filepath.FromSlash(folder))

	moved, importErr := s.importFiles(ctx, p.DownloadPath, targetDir, book)
	if importErr != nil {
		if isRetryableImport(importErr) {
			return s.retryableFailure(ctx, req, book, importErr)
		}
		return nil, s.terminalFailure(ctx, req, book, importErr.Error())
	}

	if err := s.audiobooks.SetFilePath(ctx, book.ID, targetDir); err != nil {
		return nil, err
	}

	progress := 100
	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusProcessing},
		models.StatusDownloaded,
		&models.RequestPatch{Progress: &progress, ClearError: true},
	); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return Result{Skipped: true, Reason: "request state changed"}, nil
		}
		return nil, err
	}

	s.enqueueFollowups(ctx, req, book, targetDir)

	log.Info().Int64("requestId", req.ID).Str("targetDir", targetDir).
		Int("filesMoved", moved).Msg("organize completed")
	return Result{TargetDir: targetDir, FilesMoved: moved}, nil
}

// resolveYear backfills the release year from the metadata cache or the
// catalog. A failed lookup is not an organize failure.
func (s *Service) resolveYear(ctx context.Context, book *models.Audiobook) {
	if book.Year != nil || book.ASIN == nil {
		return
	}

	if entry, err := s.metadata.GetByASIN(ctx, *book.ASIN); err == nil && entry.Year != nil {
		if err := s.audiobooks.SetYear(ctx, book.ID, *entry.Year); err == nil {
			book.Year = entry.Year
		}
		return
	}

	if s.audible == nil {
		return
	}
	product, err := s.audible.GetByASIN(ctx, *book.ASIN)
	if err != nil || product.ReleaseYear == 0 {
		return
	}
	if err := s.audiobooks.SetYear(ctx, book.ID, product.ReleaseYear); err != nil {
		log.Warn().Err(err).Int64("audiobookId", book.ID).Msg("failed to backfill year")
		return
	}
	book.Year = &product.ReleaseYear

	year := product.ReleaseYear
	if err := s.metadata.Upsert(ctx, &models.MetadataEntry{
		ASIN:   *book.ASIN,
		Title:  product.Title,
		Author: product.Author,
		Year:   &year,
	}); err != nil {
		log.Warn().Err(err).Str("asin", *book.ASIN).Msg("failed to cache metadata")
	}
}

// importFiles walks the download path, creates the target directory, and
// moves audio files plus cover art. Returns how many files were moved.
func (s *Service) importFiles(ctx context.Context, downloadPath, targetDir string, book *models.Audiobook) (int, error) {
	info, err := os.Stat(downloadPath)
	if err != nil {
		return 0, err
	}

	var audioFiles []string
	var coverFile string

	if info.IsDir() {
		walkErr := filepath.WalkDir(downloadPath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
			switch {
			case audioExtensions[ext]:
				audioFiles = append(audioFiles, path)
			case coverFile == "" && coverNames[base] && coverExtensions[ext]:
				coverFile = path
			}
			return nil
		})
		if walkErr != nil {
			return 0, walkErr
		}
	} else {
		// Direct downloads land as a single file (e-book sidecar).
		audioFiles = []string{downloadPath}
	}

	if len(audioFiles) == 0 {
		return 0, errNoAudioFiles
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return 0, err
	}

	moved := 0
	for _, src := range audioFiles {
		if err := moveFile(src, filepath.Join(targetDir, filepath.Base(src))); err != nil {
			return moved, err
		}
		moved++
	}

	if coverFile != "" {
		if err := moveFile(coverFile, filepath.Join(targetDir, "cover.jpg")); err != nil {
			log.Warn().Err(err).Str("cover", coverFile).Msg("failed to move cover art")
		}
	} else if book.CoverArtURL != nil {
		s.downloadCover(ctx, *book.CoverArtURL, filepath.Join(targetDir, "cover.jpg"))
	}

	return moved, nil
}

var errNoAudioFiles = errors.New("no audio files found in download path")

// isRetryableImport classifies file-level errors that consume an import
// attempt: missing paths, permission refusals, and empty downloads.
func isRetryableImport(err error) bool {
	if errors.Is(err, errNoAudioFiles) {
		return true
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return true
	}
	return strings.Contains(err.Error(), "no such file or directory")
}

// moveFile renames src to dst, falling back to copy+unlink when the rename
// crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func (s *Service) downloadCover(ctx context.Context, coverURL, dst string) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("coverUrl", coverURL).Msg("cover download failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	f, err := os.Create(dst)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dst)
	}
}

// retryableFailure consumes an import attempt: back to awaiting_import while
// attempts remain, warn with a notification once exhausted.
func (s *Service) retryableFailure(ctx context.Context, req *models.Request, book *models.Audiobook, cause error) (any, error) {
	msg := cause.Error()

	if req.ImportAttempts < req.MaxImportRetries {
		if err := s.requests.Transition(ctx, req.ID,
			[]models.RequestStatus{models.StatusProcessing},
			models.StatusAwaitingImport,
			&models.RequestPatch{ErrorMessage: &msg},
		); err != nil && !errors.Is(err, models.ErrStateConflict) {
			return nil, err
		}
		log.Warn().Int64("requestId", req.ID).Int("importAttempts", req.ImportAttempts).
			Str("cause", msg).Msg("organize failed, will retry import")
		return Result{Retried: true, Reason: msg}, nil
	}

	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusProcessing},
		models.StatusWarn,
		&models.RequestPatch{ErrorMessage: &msg},
	); err != nil && !errors.Is(err, models.ErrStateConflict) {
		return nil, err
	}

	s.notifier.Publish(ctx, notifications.Event{
		Kind:      notifications.EventRequestError,
		RequestID: req.ID,
		Title:     book.Title,
		Author:    book.Author,
		Message:   fmt.Sprintf("import failed after %d attempts: %s", req.ImportAttempts, msg),
	})

	log.Error().Int64("requestId", req.ID).Int("importAttempts", req.ImportAttempts).
		Str("cause", msg).Msg("import attempts exhausted, request warned")
	return Result{Warned: true, Reason: msg}, nil
}

func (s *Service) terminalFailure(ctx context.Context, req *models.Request, book *models.Audiobook, msg string) error {
	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusProcessing, models.StatusAwaitingImport},
		models.StatusFailed,
		&models.RequestPatch{ErrorMessage: &msg},
	); err != nil && !errors.Is(err, models.ErrStateConflict) {
		return err
	}

	s.notifier.Publish(ctx, notifications.Event{
		Kind:      notifications.EventRequestError,
		RequestID: req.ID,
		Title:     book.Title,
		Author:    book.Author,
		Message:   msg,
	})

	return queue.Terminal(errors.New(msg))
}

// enqueueFollowups schedules the post-import scan and match steps.
// Follow-up enqueue failures are logged, not fatal: the files are placed.
func (s *Service) enqueueFollowups(ctx context.Context, req *models.Request, book *models.Audiobook, targetDir string) {
	for _, target := range s.scanTargets {
		if _, err := s.broker.Enqueue(ctx, jobs.TypeScanLibrary, jobs.ScanLibraryPayload{
			Backend:   target.Backend,
			LibraryID: target.LibraryID,
			Path:      targetDir,
			Partial:   true,
		}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
			log.Warn().Err(err).Str("backend", target.Backend).Msg("failed to enqueue library scan")
		}
	}

	if _, err := s.broker.Enqueue(ctx, jobs.TypeMatchLibrary, jobs.MatchLibraryPayload{
		RequestID:   req.ID,
		AudiobookID: book.ID,
		Title:       book.Title,
		Author:      book.Author,
	}, queue.EnqueueOptions{RequestID: &req.ID}); err != nil {
		log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to enqueue library match")
	}
}
