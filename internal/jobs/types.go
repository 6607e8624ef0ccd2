// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package jobs defines the typed job catalog shared by the broker, the
// processors, and the scheduler. Payloads are persisted as JSON; processors
// bind them back to these shapes at entry.
package jobs

// Job type names. These are the broker task types and the jobs.type values.
const (
	TypeSearchIndexers        = "search_indexers"
	TypeSearchEbook           = "search_ebook"
	TypeDownloadTorrent       = "download_torrent"
	TypeStartDirectDownload   = "start_direct_download"
	TypeMonitorDownload       = "monitor_download"
	TypeMonitorDirectDownload = "monitor_direct_download"
	TypeOrganizeFiles         = "organize_files"
	TypeScanLibrary           = "scan_library"
	TypeMatchLibrary          = "match_library"

	TypeRetryMissingSearch = "retry_missing_torrents"
	TypeRetryFailedImports = "retry_failed_imports"
	TypeMonitorRSSFeeds    = "monitor_rss_feeds"
	TypeCleanupSeeded      = "cleanup_seeded_torrents"
	TypeRefreshMetadata    = "audible_refresh"
	TypePlexLibraryScan    = "plex_library_scan"
	TypeRecentlyAdded      = "plex_recently_added_check"
	TypeSyncShelves        = "sync_goodreads_shelves"
)

// AudiobookRef is the slice of audiobook metadata that travels in payloads.
type AudiobookRef struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	ASIN   string `json:"asin,omitempty"`
}

// SearchPayload drives search_indexers and search_ebook.
type SearchPayload struct {
	RequestID int64        `json:"requestId"`
	Audiobook AudiobookRef `json:"audiobook"`
}

// TorrentRef describes the candidate selected by the search processor.
type TorrentRef struct {
	IndexerName string `json:"indexerName"`
	Priority    int    `json:"priority"`
	DownloadURL string `json:"downloadUrl"`
	Protocol    string `json:"protocol"`
	Category    string `json:"category,omitempty"`
	Title       string `json:"title,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// DownloadTorrentPayload drives the torrent/usenet handoff.
type DownloadTorrentPayload struct {
	RequestID int64        `json:"requestId"`
	Audiobook AudiobookRef `json:"audiobook"`
	Torrent   TorrentRef   `json:"torrent"`
}

// MonitorDownloadPayload drives the client polling loop.
type MonitorDownloadPayload struct {
	RequestID         int64  `json:"requestId"`
	DownloadHistoryID int64  `json:"downloadHistoryId"`
	DownloadClientID  string `json:"downloadClientId"`
	DownloadClient    string `json:"downloadClient"`
}

// StartDirectDownloadPayload drives the e-book sidecar direct download.
type StartDirectDownloadPayload struct {
	RequestID         int64    `json:"requestId"`
	DownloadHistoryID int64    `json:"downloadHistoryId"`
	DownloadURLs      []string `json:"downloadUrls"`
	TargetFilename    string   `json:"targetFilename"`
	ExpectedSize      int64    `json:"expectedSize,omitempty"`
}

// MonitorDirectDownloadPayload polls an in-memory direct download.
type MonitorDirectDownloadPayload struct {
	RequestID         int64  `json:"requestId"`
	DownloadHistoryID int64  `json:"downloadHistoryId"`
	DownloadID        string `json:"downloadId"`
	TargetPath        string `json:"targetPath"`
	ExpectedSize      int64  `json:"expectedSize,omitempty"`
}

// OrganizeFilesPayload drives library organization.
type OrganizeFilesPayload struct {
	RequestID    int64  `json:"requestId"`
	AudiobookID  int64  `json:"audiobookId"`
	DownloadPath string `json:"downloadPath"`
}

// ScanLibraryPayload asks a media server to rescan.
type ScanLibraryPayload struct {
	Backend   string `json:"backend,omitempty"`
	LibraryID string `json:"libraryId,omitempty"`
	Path      string `json:"path,omitempty"`
	Partial   bool   `json:"partial,omitempty"`
}

// MatchLibraryPayload drives fuzzy library matching.
type MatchLibraryPayload struct {
	RequestID   int64  `json:"requestId"`
	AudiobookID int64  `json:"audiobookId"`
	Title       string `json:"title"`
	Author      string `json:"author"`
}

// RecurringPayload is shared by all scheduled housekeeping jobs.
type RecurringPayload struct {
	ScheduledJobID int64 `json:"scheduledJobId,omitempty"`
}
