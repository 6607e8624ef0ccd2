// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package recurring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesRelease(t *testing.T) {
	tests := []struct {
		name         string
		releaseTitle string
		wantTitle    string
		wantAuthor   string
		want         bool
	}{
		{
			name:         "full match",
			releaseTitle: "Project Hail Mary - Andy Weir (Unabridged) [M4B]",
			wantTitle:    "Project Hail Mary",
			wantAuthor:   "Andy Weir",
			want:         true,
		},
		{
			name:         "two of three title words suffice",
			releaseTitle: "Hail Mary by Weir 2021 retail",
			wantTitle:    "Project Hail Mary",
			wantAuthor:   "Andy Weir",
			want:         true,
		},
		{
			name:         "author missing",
			releaseTitle: "Project Hail Mary retail epub",
			wantTitle:    "Project Hail Mary",
			wantAuthor:   "Andy Weir",
			want:         false,
		},
		{
			name:         "only one title word",
			releaseTitle: "Project X - Weir",
			wantTitle:    "Project Hail Mary",
			wantAuthor:   "Andy Weir",
			want:         false,
		},
		{
			name:         "short author words ignored",
			releaseTitle: "Dune - complete saga",
			wantTitle:    "Dune",
			wantAuthor:   "J K",
			want:         false,
		},
		{
			name:         "single-word title needs that word",
			releaseTitle: "Dune - Frank Herbert [MP3]",
			wantTitle:    "Dune",
			wantAuthor:   "Frank Herbert",
			want:         true,
		},
		{
			name:         "case insensitive",
			releaseTitle: "PROJECT HAIL MARY - ANDY WEIR",
			wantTitle:    "project hail mary",
			wantAuthor:   "andy weir",
			want:         true,
		},
		{
			name:         "unrelated release",
			releaseTitle: "The Expanse S03 1080p",
			wantTitle:    "Project Hail Mary",
			wantAuthor:   "Andy Weir",
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchesRelease(tt.releaseTitle, tt.wantTitle, tt.wantAuthor)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignificantWords(t *testing.T) {
	assert.Equal(t, []string{"project", "hail", "mary"}, significantWords("Project Hail Mary Returns", 3))
	assert.Equal(t, []string{"weir"}, significantWords("A J Weir", 0))
	assert.Empty(t, significantWords("a b", 0))
}
