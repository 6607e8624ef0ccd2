// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectDownloadProgress(t *testing.T) {
	d := &DirectDownload{ID: "direct-1"}

	// Unknown total reports zero.
	assert.Equal(t, 0, d.Progress())

	d.bytesTotal.Store(1000)
	d.bytesDownloaded.Store(400)
	assert.Equal(t, 40, d.Progress())

	// Streaming caps at 99 even when the byte counts say done.
	d.bytesDownloaded.Store(1000)
	assert.Equal(t, 99, d.Progress())

	d.completed.Store(true)
	assert.Equal(t, 100, d.Progress())
}

func TestDirectDownloadFailure(t *testing.T) {
	d := &DirectDownload{ID: "direct-2"}
	assert.False(t, d.Failed())
	assert.Empty(t, d.FailureMessage())

	d.markFailed("all 3 mirrors failed")
	assert.True(t, d.Failed())
	assert.Equal(t, "all 3 mirrors failed", d.FailureMessage())
}

func TestDirectDownloadIDDeterministic(t *testing.T) {
	// A redelivered start job must derive the same registry key, so the
	// live-stream check can see the stream the first delivery launched.
	assert.Equal(t, "direct-42", directDownloadID(42))
	assert.Equal(t, directDownloadID(7), directDownloadID(7))
}

func TestRegistryFindsStreamByHistoryID(t *testing.T) {
	r := NewRegistry()
	d := &DirectDownload{ID: directDownloadID(9)}
	r.Add(d)

	got, ok := r.Get(directDownloadID(9))
	require.True(t, ok)
	assert.Same(t, d, got)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("missing")
	assert.False(t, ok)

	d := &DirectDownload{ID: "direct-3", TargetPath: "/downloads/book.epub"}
	r.Add(d)

	got, ok := r.Get("direct-3")
	require.True(t, ok)
	assert.Same(t, d, got)

	r.Remove("direct-3")
	_, ok = r.Get("direct-3")
	assert.False(t, ok)
}
