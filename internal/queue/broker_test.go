// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		retried int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{5, 64 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(tt.retried))
	}
}

func TestTerminal(t *testing.T) {
	base := errors.New("no indexers configured")

	assert.False(t, IsTerminal(base))

	wrapped := Terminal(base)
	assert.True(t, IsTerminal(wrapped))
	assert.ErrorIs(t, wrapped, base)
}

func TestQueueForType(t *testing.T) {
	// Every declared pool routes at least one job type; unknown types fall
	// back to the recurring pool.
	assert.Equal(t, "search", QueueForType("search_indexers"))
	assert.Equal(t, "monitor", QueueForType("monitor_download"))
	assert.Equal(t, "recurring", QueueForType("something_unknown"))
}

func TestQueueForPriority(t *testing.T) {
	// Positive priorities land in the pool's high queue, which every pool
	// server drains ahead of its default queue.
	assert.Equal(t, "search", QueueFor("search_indexers", 0))
	assert.Equal(t, "search-high", QueueFor("search_indexers", 5))
	assert.Equal(t, "organize-high", QueueFor("organize_files", 1))
	assert.Equal(t, "recurring", QueueFor("something_unknown", 0))
	assert.Equal(t, "recurring-high", QueueFor("something_unknown", 2))
}

func TestQueueWeights(t *testing.T) {
	assert.Equal(t, map[string]int{"handoff-high": 3, "handoff": 1}, QueueWeights("handoff"))
}
