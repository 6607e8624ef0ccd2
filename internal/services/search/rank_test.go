// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankFiltersIrrelevantReleases(t *testing.T) {
	q := Query{Title: "Project Hail Mary", Author: "Andy Weir"}

	got := Rank(q, []Candidate{
		{Title: "Project Hail Mary - Andy Weir [M4B]", Seeders: 10},
		{Title: "The Martian - Andy Weir [M4B]", Seeders: 100},
		{Title: "Project Hail Mary by Someone Else", Seeders: 50},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "Project Hail Mary - Andy Weir [M4B]", got[0].Title)
}

func TestRankPrefersBetterFormat(t *testing.T) {
	q := Query{Title: "Dune", Author: "Frank Herbert"}

	got := Rank(q, []Candidate{
		{Title: "Dune - Frank Herbert MP3 64k", Seeders: 5},
		{Title: "Dune - Frank Herbert M4B", Seeders: 5},
		{Title: "Dune - Frank Herbert M4A", Seeders: 5},
	})

	require.Len(t, got, 3)
	assert.Contains(t, got[0].Title, "M4B")
	assert.Contains(t, got[1].Title, "M4A")
	assert.Contains(t, got[2].Title, "MP3")
}

func TestRankAbridgedPenalty(t *testing.T) {
	q := Query{Title: "Dune", Author: "Frank Herbert"}

	got := Rank(q, []Candidate{
		{Title: "Dune - Frank Herbert M4B Abridged", Seeders: 20},
		{Title: "Dune - Frank Herbert M4B Unabridged", Seeders: 1},
	})

	require.Len(t, got, 2)
	assert.Contains(t, got[0].Title, "Unabridged")
}

func TestRankSeederCap(t *testing.T) {
	q := Query{Title: "Dune", Author: "Frank Herbert"}

	// 500 seeders must not outweigh a format upgrade: the seeder bonus is
	// capped at 30, below the m4b/mp3 gap plus the real seeder delta.
	got := Rank(q, []Candidate{
		{Title: "Dune - Frank Herbert MP3", Seeders: 500},
		{Title: "Dune - Frank Herbert M4B", Seeders: 25},
	})

	require.Len(t, got, 2)
	assert.Contains(t, got[0].Title, "M4B")
}

func TestRankIndexerPriorityBreaksFormatTies(t *testing.T) {
	q := Query{Title: "Dune", Author: "Frank Herbert"}

	got := Rank(q, []Candidate{
		{Title: "Dune - Frank Herbert M4B", Seeders: 10, IndexerName: "b", IndexerPriority: 0},
		{Title: "Dune - Frank Herbert (M4B)", Seeders: 10, IndexerName: "a", IndexerPriority: 15},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].IndexerName)
}

func TestRankDeterministicTieBreak(t *testing.T) {
	q := Query{Title: "Dune", Author: "Frank Herbert"}

	candidates := []Candidate{
		{Title: "Dune - Frank Herbert M4B vol2", Seeders: 10},
		{Title: "Dune - Frank Herbert M4B vol1", Seeders: 10},
	}

	first := Rank(q, candidates)
	second := Rank(q, candidates)

	require.Len(t, first, 2)
	assert.Equal(t, "Dune - Frank Herbert M4B vol1", first[0].Title)
	assert.Equal(t, first, second)
}

func TestRankEmptyInput(t *testing.T) {
	got := Rank(Query{Title: "Dune"}, nil)
	assert.Empty(t, got)
}
