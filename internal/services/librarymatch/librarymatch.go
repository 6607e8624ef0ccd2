// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package librarymatch confirms library visibility of organized audiobooks:
// it triggers media-server scans and fuzzy-matches imports against the
// library. Matching never escalates; the filesystem placement is the source
// of truth.
package librarymatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/clients/mediaserver"
	"github.com/listenarr/listenarr/internal/jobs"
	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/internal/queue"
	"github.com/listenarr/listenarr/internal/services/notifications"
)

const matchThreshold = 0.70

// Backend couples a media library client with its configured library id.
type Backend struct {
	Name      string
	LibraryID string
	Library   mediaserver.MediaLibrary
}

// Result is the structured processor outcome recorded on the job row.
type Result struct {
	Skipped bool    `json:"skipped,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Matched bool    `json:"matched,omitempty"`
	Score   float64 `json:"score,omitempty"`
	GUID    string  `json:"guid,omitempty"`
}

type Service struct {
	requests   *models.RequestStore
	audiobooks *models.AudiobookStore
	notifier   *notifications.Service
	backends   []Backend
}

func NewService(
	requests *models.RequestStore,
	audiobooks *models.AudiobookStore,
	notifier *notifications.Service,
	backends []Backend,
) *Service {
	return &Service{
		requests:   requests,
		audiobooks: audiobooks,
		notifier:   notifier,
		backends:   backends,
	}
}

// ProcessScanLibrary handles scan_library: ask the named backend (or every
// backend) to rescan. A refused scan is degraded-success, never a failure.
func (s *Service) ProcessScanLibrary(ctx context.Context, payload []byte) (any, error) {
	var p jobs.ScanLibraryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid scan payload: %w", err))
	}

	if len(s.backends) == 0 {
		return Result{Skipped: true, Reason: "no media servers configured"}, nil
	}

	triggered := 0
	for _, b := range s.backends {
		if p.Backend != "" && p.Backend != b.Name {
			continue
		}
		libraryID := p.LibraryID
		if libraryID == "" {
			libraryID = b.LibraryID
		}
		if libraryID == "" {
			log.Debug().Str("backend", b.Name).Msg("library id unset, scan skipped")
			continue
		}
		if err := b.Library.TriggerLibraryScan(ctx, libraryID); err != nil {
			log.Warn().Err(err).Str("backend", b.Name).Msg("library scan refused")
			continue
		}
		triggered++
	}

	return map[string]int{"triggered": triggered}, nil
}

// ProcessMatchLibrary handles match_library: fuzzy-match the audiobook
// against library items and complete the request either way.
func (s *Service) ProcessMatchLibrary(ctx context.Context, payload []byte) (any, error) {
	var p jobs.MatchLibraryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, queue.Terminal(fmt.Errorf("invalid match payload: %w", err))
	}

	req, err := s.requests.GetActive(ctx, p.RequestID)
	if errors.Is(err, models.ErrStateConflict) || errors.Is(err, models.ErrRequestNotFound) {
		return Result{Skipped: true, Reason: "request no longer active"}, nil
	}
	if err != nil {
		return nil, err
	}
	if req.Status != models.StatusDownloaded {
		return Result{Skipped: true, Reason: "request not in downloaded state"}, nil
	}

	best, bestScore := s.bestMatch(ctx, p.Title, p.Author)

	matched := best != nil && bestScore >= matchThreshold
	if matched {
		if err := s.audiobooks.SetLibraryMatch(ctx, p.AudiobookID, best.GUID, best.RatingKey); err != nil {
			return nil, err
		}
	} else {
		log.Info().Int64("requestId", p.RequestID).Float64("score", bestScore).
			Msg("no confident library match, completing anyway")
	}

	if err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.StatusDownloaded},
		models.StatusCompleted,
		&models.RequestPatch{ClearError: true},
	); err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return Result{Skipped: true, Reason: "request state changed"}, nil
		}
		return nil, err
	}

	s.notifier.Publish(ctx, notifications.Event{
		Kind:      notifications.EventRequestCompleted,
		RequestID: req.ID,
		Title:     p.Title,
		Author:    p.Author,
	})

	result := Result{Matched: matched, Score: bestScore}
	if matched {
		result.GUID = best.GUID
	}
	return result, nil
}

// bestMatch searches every backend and returns the highest scoring item.
// Backend errors degrade to "no match" rather than failing the job.
func (s *Service) bestMatch(ctx context.Context, title, author string) (*mediaserver.Item, float64) {
	var best *mediaserver.Item
	bestScore := 0.0

	for _, b := range s.backends {
		if b.LibraryID == "" {
			continue
		}
		items, err := b.Library.SearchLibrary(ctx, b.LibraryID, title)
		if err != nil {
			log.Warn().Err(err).Str("backend", b.Name).Msg("library search failed")
			continue
		}
		for i := range items {
			score := MatchScore(title, author, items[i].Title, items[i].Author)
			if score > bestScore {
				bestScore = score
				best = &items[i]
			}
		}
	}
	return best, bestScore
}

// MatchScore weighs title similarity at 0.7 and author similarity at 0.3.
func MatchScore(wantTitle, wantAuthor, gotTitle, gotAuthor string) float64 {
	return 0.7*Similarity(wantTitle, gotTitle) + 0.3*Similarity(wantAuthor, gotAuthor)
}

// Similarity is a normalized Levenshtein ratio in [0,1] over case-folded,
// whitespace-collapsed strings.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	distance := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
