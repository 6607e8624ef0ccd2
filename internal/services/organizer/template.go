// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package organizer moves completed downloads into the media library tree.
package organizer

import (
	"errors"
	"strconv"
	"strings"

	"github.com/listenarr/listenarr/internal/models"
	"github.com/listenarr/listenarr/pkg/sanitize"
)

// DefaultTemplate is the library folder layout when none is configured.
const DefaultTemplate = "{author}/{title} {asin}"

// RenderFolder expands the path template for an audiobook. Every token is
// sanitized per segment; optional tokens with no value collapse along with
// surrounding whitespace. Author and title are required.
func RenderFolder(template string, book *models.Audiobook) (string, error) {
	if template == "" {
		template = DefaultTemplate
	}
	if book.Title == "" || book.Author == "" {
		return "", errors.New("audiobook needs both title and author")
	}

	tokens := map[string]string{
		"{author}":     book.Author,
		"{title}":      book.Title,
		"{asin}":       deref(book.ASIN),
		"{series}":     deref(book.Series),
		"{seriesPart}": deref(book.SeriesPart),
		"{narrator}":   deref(book.Narrator),
	}
	if book.Year != nil {
		tokens["{year}"] = strconv.Itoa(*book.Year)
	} else {
		tokens["{year}"] = ""
	}

	expanded := template
	for token, value := range tokens {
		expanded = strings.ReplaceAll(expanded, token, value)
	}

	segments := strings.Split(expanded, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		clean := sanitize.Segment(seg)
		if clean == "" {
			continue
		}
		out = append(out, clean)
	}
	if len(out) == 0 {
		return "", errors.New("path template rendered empty")
	}
	return strings.Join(out, "/"), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
