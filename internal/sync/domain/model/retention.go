package model

import "time"

const day = 24 * time.Hour

// RetentionCutoff returns the instant before which records are outdated.
// It is recomputed for every pruning cycle.
func RetentionCutoff(now time.Time, maxDataAliveInDays int) time.Time {
	return now.UTC().Add(-time.Duration(maxDataAliveInDays) * day)
}

// PruneResult summarises one pruning cycle.
type PruneResult struct {
	Rounds  int
	Deleted int64
}
