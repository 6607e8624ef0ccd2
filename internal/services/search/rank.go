// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search runs the indexer search processors and the candidate
// ranking that picks what gets downloaded.
package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Candidate is one indexer release under consideration.
type Candidate struct {
	Title           string
	DownloadURL     string
	Protocol        string // "torrent" or "usenet"
	Category        string
	Size            int64
	Seeders         int
	IndexerID       int
	IndexerName     string
	IndexerPriority int
}

// Query carries the request's target for relevance filtering.
type Query struct {
	Title  string
	Author string
}

// formatScores prefer single-file audiobook containers over raw mp3 rips.
var formatScores = []struct {
	token string
	score int
}{
	{"m4b", 40},
	{"m4a", 30},
	{"mp3", 20},
}

// Rank filters candidates for relevance and orders them best-first. The
// ordering is deterministic: score, then seeders, then title.
func Rank(q Query, candidates []Candidate) []Candidate {
	type scored struct {
		c     Candidate
		score int
	}

	var kept []scored
	for _, c := range candidates {
		if !relevant(q, c.Title) {
			continue
		}
		kept = append(kept, scored{c: c, score: score(c)})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		if kept[i].c.Seeders != kept[j].c.Seeders {
			return kept[i].c.Seeders > kept[j].c.Seeders
		}
		return kept[i].c.Title < kept[j].c.Title
	})

	out := make([]Candidate, len(kept))
	for i, s := range kept {
		out[i] = s.c
	}
	return out
}

// relevant requires the release title to loosely contain the requested title
// and author. Both checks are case-folded subsequence matches, which tolerate
// separators, bracketed tags, and reordered fields.
func relevant(q Query, releaseTitle string) bool {
	if q.Title != "" && !fuzzy.MatchNormalizedFold(compact(q.Title), compact(releaseTitle)) {
		return false
	}
	if q.Author != "" {
		lastName := lastWord(q.Author)
		if lastName != "" && !strings.Contains(strings.ToLower(releaseTitle), strings.ToLower(lastName)) {
			return false
		}
	}
	return true
}

func score(c Candidate) int {
	title := strings.ToLower(c.Title)
	total := 0

	for _, f := range formatScores {
		if strings.Contains(title, f.token) {
			total += f.score
			break
		}
	}

	if strings.Contains(title, "unabridged") {
		total += 10
	} else if strings.Contains(title, "abridged") {
		total -= 20
	}

	total += c.IndexerPriority

	seeders := c.Seeders
	if seeders > 30 {
		seeders = 30
	}
	total += seeders

	return total
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
