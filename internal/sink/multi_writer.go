package sink

import "fleetroster/internal/fleet"

// MultiWriter fans snapshots and loss records out to multiple writers.
type MultiWriter struct {
	snapWriters []SnapshotWriter
	lossWriters []LossWriter
}

// NewMultiWriter creates a new MultiWriter. Nil entries are skipped.
func NewMultiWriter(sws []SnapshotWriter, lws []LossWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range sws {
		if w != nil {
			mw.snapWriters = append(mw.snapWriters, w)
		}
	}
	for _, w := range lws {
		if w != nil {
			mw.lossWriters = append(mw.lossWriters, w)
		}
	}
	return mw
}

// WriteSnapshot sends an entry to all snapshot writers.
func (mw *MultiWriter) WriteSnapshot(e fleet.HistoryEntry) error {
	for _, w := range mw.snapWriters {
		if err := w.WriteSnapshot(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshots sends several entries to all writers, using batch if supported.
func (mw *MultiWriter) WriteSnapshots(entries []fleet.HistoryEntry) error {
	for _, w := range mw.snapWriters {
		if bw, ok := w.(batchSnapshotWriter); ok {
			if err := bw.WriteSnapshots(entries); err != nil {
				return err
			}
			continue
		}
		for _, e := range entries {
			if err := w.WriteSnapshot(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteLoss sends a loss record to all loss writers.
func (mw *MultiWriter) WriteLoss(r fleet.LossRecord) error {
	for _, w := range mw.lossWriters {
		if err := w.WriteLoss(r); err != nil {
			return err
		}
	}
	return nil
}
