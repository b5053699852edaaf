package sink

import (
	"encoding/json"
	"io"
	"os"

	"fleetroster/internal/fleet"
)

// ReplayLog feeds the history entries of a JSONL snapshot log to writer in
// file order.
func ReplayLog(r io.Reader, writer SnapshotWriter) error {
	dec := json.NewDecoder(r)
	for {
		var e fleet.HistoryEntry
		if err := dec.Decode(&e); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := writer.WriteSnapshot(e); err != nil {
			return err
		}
	}
}

// ReplayLogFile opens a file and replays its snapshots.
func ReplayLogFile(path string, writer SnapshotWriter) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer)
}

// SnapshotFunc adapts a function to SnapshotWriter.
type SnapshotFunc func(fleet.HistoryEntry) error

func (fn SnapshotFunc) WriteSnapshot(e fleet.HistoryEntry) error { return fn(e) }
