// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package mediaserver provides library clients for Audiobookshelf and Plex
// behind one capability surface: trigger a scan, search a library, and list
// recently added items.
package mediaserver

import "context"

// Item is one library entry as seen by the matcher.
type Item struct {
	// GUID is the server's stable identifier; RatingKey is the secondary
	// handle (Plex) or item id (Audiobookshelf).
	GUID      string
	RatingKey string
	Title     string
	Author    string
}

// MediaLibrary is the capability consumed by the scan and match processors.
type MediaLibrary interface {
	TriggerLibraryScan(ctx context.Context, libraryID string) error
	SearchLibrary(ctx context.Context, libraryID, query string) ([]Item, error)
	RecentlyAdded(ctx context.Context, libraryID string) ([]Item, error)
}
