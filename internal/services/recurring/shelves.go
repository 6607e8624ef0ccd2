// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recurring

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/models"
)

// SettingShelfURLs holds a JSON array of Goodreads shelf RSS URLs to sync.
const SettingShelfURLs = "goodreads_shelf_urls"

// systemUserID owns requests created by automation rather than a person.
const systemUserID = 0

type shelfFeed struct {
	Channel struct {
		Items []struct {
			Title      string `xml:"title"`
			AuthorName string `xml:"author_name"`
		} `xml:"item"`
	} `xml:"channel"`
}

// ProcessSyncShelves handles sync_goodreads_shelves: pull each configured
// shelf feed and create audiobook requests for titles not yet known.
func (s *Service) ProcessSyncShelves(ctx context.Context, _ []byte) (any, error) {
	raw, err := s.settings.GetOrDefault(ctx, SettingShelfURLs, "")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return map[string]any{"skipped": true, "reason": "no shelves configured"}, nil
	}

	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", SettingShelfURLs, err)
	}

	created, seen := 0, 0
	client := &http.Client{Timeout: 30 * time.Second}
	for _, shelfURL := range urls {
		feed, err := fetchShelf(ctx, client, shelfURL)
		if err != nil {
			log.Warn().Err(err).Str("shelf", shelfURL).Msg("shelf fetch failed")
			continue
		}

		for _, item := range feed.Channel.Items {
			title := strings.TrimSpace(item.Title)
			author := strings.TrimSpace(item.AuthorName)
			if title == "" || author == "" {
				continue
			}
			seen++

			if _, err := s.audiobooks.FindByTitleAuthor(ctx, title, author); err == nil {
				continue
			} else if !errors.Is(err, models.ErrAudiobookNotFound) {
				return nil, err
			}

			book, err := s.audiobooks.Create(ctx, &models.Audiobook{Title: title, Author: author})
			if err != nil {
				log.Warn().Err(err).Str("title", title).Msg("failed to create shelf audiobook")
				continue
			}
			req, err := s.requests.Create(ctx, systemUserID, models.RequestTypeAudiobook, book.ID)
			if err != nil {
				log.Warn().Err(err).Str("title", title).Msg("failed to create shelf request")
				continue
			}
			if err := s.enqueueSearch(ctx, req); err != nil {
				log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to enqueue shelf search")
			}
			created++
			time.Sleep(enqueueSpacing)
		}
	}

	log.Info().Int("seen", seen).Int("created", created).Msg("shelf sync completed")
	return map[string]int{"seen": seen, "created": created}, nil
}

func fetchShelf(ctx context.Context, client *http.Client, shelfURL string) (*shelfFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shelfURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build shelf request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shelf request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("shelf returned status %d", resp.StatusCode)
	}

	var feed shelfFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode shelf feed: %w", err)
	}
	return &feed, nil
}
