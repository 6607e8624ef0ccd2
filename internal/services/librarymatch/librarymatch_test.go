// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package librarymatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Project Hail Mary", "Project Hail Mary", 1},
		{"case and whitespace folded", "project  hail mary", "Project Hail Mary", 1},
		{"both empty", "", "", 1},
		{"completely different", "Dune", "xxxx", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestSimilarityPartial(t *testing.T) {
	// One edit over a longer string scores high but below 1.
	got := Similarity("Project Hail Mary", "Project Hail Marry")
	assert.Greater(t, got, 0.9)
	assert.Less(t, got, 1.0)
}

func TestMatchScoreWeighting(t *testing.T) {
	// Exact title, unrelated author: 0.7*1 + 0.3*0 = 0.7, right at the
	// acceptance threshold.
	got := MatchScore("Dune", "Frank Herbert", "Dune", "zzzzzzzzzzzzz")
	assert.InDelta(t, 0.7, got, 0.001)

	// Exact everything.
	assert.InDelta(t, 1.0, MatchScore("Dune", "Frank Herbert", "Dune", "Frank Herbert"), 0.001)
}

func TestMatchScoreBelowThreshold(t *testing.T) {
	got := MatchScore("Project Hail Mary", "Andy Weir", "The Martian", "Andy Weir")
	assert.Less(t, got, 0.7)
}
