// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package sanitize

import (
	"strings"
	"testing"
)

func TestSegment(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple name",
			input:    "The Name of the Wind",
			expected: "The Name of the Wind",
		},
		{
			name:     "strips illegal chars",
			input:    `Author<>:"/\|?*Name`,
			expected: "AuthorName",
		},
		{
			name:     "collapses whitespace",
			input:    "Brandon   Sanderson \t Mistborn",
			expected: "Brandon Sanderson Mistborn",
		},
		{
			name:     "removes trailing dots",
			input:    "Jr. Author Ltd...",
			expected: "Jr. Author Ltd",
		},
		{
			name:     "trims surrounding space",
			input:    "   Mistborn   ",
			expected: "Mistborn",
		},
		{
			name:     "Windows reserved name",
			input:    "CON",
			expected: "_CON",
		},
		{
			name:     "reserved name case insensitive",
			input:    "con",
			expected: "_con",
		},
		{
			name:     "reserved name inside longer name untouched",
			input:    "Confessions",
			expected: "Confessions",
		},
		{
			name:     "empty after stripping",
			input:    `<>:"/\|?*`,
			expected: "",
		},
		{
			name:     "control characters removed",
			input:    "Title\x00\x1fHere",
			expected: "TitleHere",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Segment(tt.input); got != tt.expected {
				t.Errorf("Segment(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSegmentCapsLength(t *testing.T) {
	long := strings.Repeat("a", 500)
	got := Segment(long)
	if len(got) != 200 {
		t.Fatalf("expected 200 chars, got %d", len(got))
	}
}
