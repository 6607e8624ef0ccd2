// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sanitize cleans user- and metadata-derived strings before they are
// used as filesystem path segments.
package sanitize

import (
	"strings"
)

const maxSegmentLength = 200

// illegal characters for path segments across the filesystems we care about.
const illegalChars = `<>:"/\|?*`

// Windows reserved device names cannot be used as file or directory names
// regardless of extension.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// Segment sanitizes a single path component: illegal characters are stripped,
// whitespace runs collapse to a single space, leading/trailing whitespace and
// trailing dots are removed, and the result is capped at 200 characters.
// Reserved Windows device names are prefixed with an underscore.
func Segment(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if r < 0x20 || strings.ContainsRune(illegalChars, r) {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.TrimRight(cleaned, ". ")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return cleaned
	}

	if _, ok := reservedNames[strings.ToUpper(cleaned)]; ok {
		cleaned = "_" + cleaned
	}

	if len(cleaned) > maxSegmentLength {
		cleaned = strings.TrimSpace(cleaned[:maxSegmentLength])
	}

	return cleaned
}
