// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recurring

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/listenarr/listenarr/internal/models"
)

// ProcessMonitorRSSFeeds handles monitor_rss_feeds: pull fresh releases from
// every RSS-enabled indexer and re-enqueue searches for waiting requests
// whose title shows up in the feed.
func (s *Service) ProcessMonitorRSSFeeds(ctx context.Context, _ []byte) (any, error) {
	if s.prowlarr == nil {
		return map[string]any{"skipped": true, "reason": "prowlarr not configured"}, nil
	}

	indexers, err := s.settings.GetIndexers(ctx)
	if err != nil {
		return nil, err
	}

	var rssIndexers []models.IndexerConfig
	for _, idx := range indexers {
		if idx.RSSEnabled {
			rssIndexers = append(rssIndexers, idx)
		}
	}
	if len(rssIndexers) == 0 {
		return map[string]any{"skipped": true, "reason": "no rss-enabled indexers"}, nil
	}

	var itemTitles []string
	for _, idx := range rssIndexers {
		cats := make([]string, len(idx.Categories))
		for i, c := range idx.Categories {
			cats[i] = strconv.Itoa(c)
		}
		rss, err := s.prowlarr.FetchRSS(ctx, idx.ID, cats)
		if err != nil {
			log.Warn().Err(err).Str("indexer", idx.Name).Msg("rss fetch failed")
			continue
		}
		for _, item := range rss.Channel.Items {
			itemTitles = append(itemTitles, item.Title)
		}
	}
	if len(itemTitles) == 0 {
		return map[string]any{"matched": 0, "items": 0}, nil
	}

	reqs, err := s.requests.ListByStatus(ctx, models.StatusAwaitingSearch, scanBatchSize)
	if err != nil {
		return nil, err
	}

	matched := 0
	for _, req := range reqs {
		book, err := s.audiobooks.Get(ctx, req.AudiobookID)
		if err != nil {
			continue
		}
		for _, title := range itemTitles {
			if !MatchesRelease(title, book.Title, book.Author) {
				continue
			}
			if err := s.enqueueSearch(ctx, req); err != nil {
				log.Warn().Err(err).Int64("requestId", req.ID).Msg("failed to enqueue rss-triggered search")
				break
			}
			matched++
			break
		}
	}

	log.Info().Int("items", len(itemTitles)).Int("requests", len(reqs)).Int("matched", matched).
		Msg("rss monitor completed")
	return map[string]any{"matched": matched, "items": len(itemTitles)}, nil
}

// MatchesRelease applies the weak fuzzy rule connecting a feed item to a
// request: the release title must contain at least one author word of three
// or more characters, and at least two of the first three title words of
// three or more characters.
func MatchesRelease(releaseTitle, wantTitle, wantAuthor string) bool {
	haystack := strings.ToLower(releaseTitle)

	authorHit := false
	for _, w := range significantWords(wantAuthor, 0) {
		if strings.Contains(haystack, w) {
			authorHit = true
			break
		}
	}
	if !authorHit {
		return false
	}

	titleWords := significantWords(wantTitle, 3)
	if len(titleWords) == 0 {
		return false
	}
	hits := 0
	for _, w := range titleWords {
		if strings.Contains(haystack, w) {
			hits++
		}
	}
	need := 2
	if len(titleWords) < 2 {
		need = len(titleWords)
	}
	return hits >= need
}

// significantWords returns lowercase words of three or more characters,
// taking only the first max words of the input when max > 0.
func significantWords(s string, max int) []string {
	fields := strings.Fields(strings.ToLower(s))
	if max > 0 && len(fields) > max {
		fields = fields[:max]
	}
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
