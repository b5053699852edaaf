// Package sink persists roster snapshots and attrition records.
package sink

import "fleetroster/internal/fleet"

// SnapshotWriter receives one history entry per refresh.
type SnapshotWriter interface {
	WriteSnapshot(fleet.HistoryEntry) error
}

// LossWriter receives attrition records.
type LossWriter interface {
	WriteLoss(fleet.LossRecord) error
}

// Optional: writers may accept several snapshots at once.
type batchSnapshotWriter interface {
	WriteSnapshots([]fleet.HistoryEntry) error
}
