// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"sync"
	"sync/atomic"
	"time"
)

// DirectDownload is the in-memory record of one streaming download. The
// single writer is the downloading goroutine; readers observe the latest
// snapshot through atomic fields, so no lock is needed.
type DirectDownload struct {
	ID         string
	TargetPath string
	StartTime  time.Time

	bytesDownloaded atomic.Int64
	bytesTotal      atomic.Int64
	lastUpdate      atomic.Int64 // unix nanos
	completed       atomic.Bool
	failed          atomic.Bool
	failure         atomic.Pointer[string]
	pendingWrite    atomic.Bool // debounces progress flushes to the DB
}

func (d *DirectDownload) BytesDownloaded() int64 { return d.bytesDownloaded.Load() }
func (d *DirectDownload) BytesTotal() int64      { return d.bytesTotal.Load() }
func (d *DirectDownload) Completed() bool        { return d.completed.Load() }
func (d *DirectDownload) Failed() bool           { return d.failed.Load() }

func (d *DirectDownload) LastUpdate() time.Time {
	return time.Unix(0, d.lastUpdate.Load())
}

// FailureMessage returns the recorded failure reason, if any.
func (d *DirectDownload) FailureMessage() string {
	if msg := d.failure.Load(); msg != nil {
		return *msg
	}
	return ""
}

// Progress returns percent complete, capped at 99 while streaming and 100
// once completed.
func (d *DirectDownload) Progress() int {
	if d.completed.Load() {
		return 100
	}
	total := d.bytesTotal.Load()
	if total <= 0 {
		return 0
	}
	pct := int(d.bytesDownloaded.Load() * 100 / total)
	if pct > 99 {
		pct = 99
	}
	return pct
}

func (d *DirectDownload) markFailed(msg string) {
	d.failure.Store(&msg)
	d.failed.Store(true)
}

// Registry is the process-wide table of in-flight direct downloads.
type Registry struct {
	mu        sync.RWMutex
	downloads map[string]*DirectDownload
}

func NewRegistry() *Registry {
	return &Registry{downloads: make(map[string]*DirectDownload)}
}

func (r *Registry) Add(d *DirectDownload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads[d.ID] = d
}

func (r *Registry) Get(id string) (*DirectDownload, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.downloads[id]
	return d, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.downloads, id)
}
