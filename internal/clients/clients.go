// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package clients defines the capability surface shared by all download
// clients. The monitor processor polls through this interface and never
// talks to a concrete client directly.
package clients

import (
	"context"
	"errors"
	"time"
)

// ErrDownloadNotFound is returned when the client no longer knows the handle,
// e.g. a torrent removed out-of-band.
var ErrDownloadNotFound = errors.New("download not found in client")

// DownloadState is the coarse lifecycle as seen by the poller.
type DownloadState string

const (
	StateDownloading DownloadState = "downloading"
	StateCompleted   DownloadState = "completed"
	StateFailed      DownloadState = "failed"
	StateStalled     DownloadState = "stalled"
)

// DownloadStatus is one poll snapshot of an in-flight or finished download.
type DownloadStatus struct {
	ID          string
	Name        string
	State       DownloadState
	Progress    float64 // 0..100
	Path        string  // client-reported content path, empty until known
	SeedingTime time.Duration
	Message     string // failure detail when State == StateFailed
}

// Downloader is the capability every download client wrapper provides.
type Downloader interface {
	// GetDownload returns the current status of the handle, or
	// ErrDownloadNotFound if the client no longer tracks it.
	GetDownload(ctx context.Context, id string) (*DownloadStatus, error)
	// Remove deletes the download from the client, optionally with its data.
	Remove(ctx context.Context, id string, deleteFiles bool) error
}
