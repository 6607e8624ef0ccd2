// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package queue

import "github.com/listenarr/listenarr/internal/jobs"

// Pool is a named worker pool with its own queue and concurrency limit.
// Budgets reflect serialization costs: the organizer moves files on disk, the
// library scan is serialized to one at a time.
type Pool struct {
	Name        string
	Concurrency int
}

var pools = []Pool{
	{Name: "search", Concurrency: 3},
	{Name: "handoff", Concurrency: 3},
	{Name: "monitor", Concurrency: 5},
	{Name: "organize", Concurrency: 2},
	{Name: "scan", Concurrency: 1},
	{Name: "match", Concurrency: 3},
	{Name: "recurring", Concurrency: 2},
}

// poolByType maps every job type to its worker pool.
var poolByType = map[string]string{
	jobs.TypeSearchIndexers:        "search",
	jobs.TypeSearchEbook:           "search",
	jobs.TypeDownloadTorrent:       "handoff",
	jobs.TypeStartDirectDownload:   "handoff",
	jobs.TypeMonitorDownload:       "monitor",
	jobs.TypeMonitorDirectDownload: "monitor",
	jobs.TypeOrganizeFiles:         "organize",
	jobs.TypeScanLibrary:           "scan",
	jobs.TypeMatchLibrary:          "match",

	jobs.TypeRetryMissingSearch: "recurring",
	jobs.TypeRetryFailedImports: "recurring",
	jobs.TypeMonitorRSSFeeds:    "recurring",
	jobs.TypeCleanupSeeded:      "recurring",
	jobs.TypeRefreshMetadata:    "recurring",
	jobs.TypePlexLibraryScan:    "recurring",
	jobs.TypeRecentlyAdded:      "recurring",
	jobs.TypeSyncShelves:        "recurring",
}

// highSuffix names the jump-ahead queue paired with every pool queue.
const highSuffix = "-high"

// HighQueue returns the jump-ahead queue name for a pool.
func HighQueue(pool string) string {
	return pool + highSuffix
}

// QueueForType returns the broker queue serving the given job type. Unknown
// types land in the recurring pool rather than being dropped.
func QueueForType(jobType string) string {
	if pool, ok := poolByType[jobType]; ok {
		return pool
	}
	return "recurring"
}

// QueueFor returns the queue for a job type at the given priority. Positive
// priorities land in the pool's high queue, which workers drain ahead of the
// default queue.
func QueueFor(jobType string, priority int) string {
	pool := QueueForType(jobType)
	if priority > 0 {
		return HighQueue(pool)
	}
	return pool
}

// QueueWeights returns the asynq queue weight map for one pool. The high
// queue is drained three times as often as the default queue, so prioritized
// jobs jump ahead without starving normal work.
func QueueWeights(pool string) map[string]int {
	return map[string]int{HighQueue(pool): 3, pool: 1}
}

// Pools returns the pool table.
func Pools() []Pool {
	out := make([]Pool, len(pools))
	copy(out, pools)
	return out
}
