package sink

import (
	"encoding/json"
	"os"
	"sync"

	"fleetroster/internal/fleet"
)

// FileWriter writes snapshots and loss records to JSONL files.
type FileWriter struct {
	mu       sync.Mutex
	snapFile *os.File
	lossFile *os.File
	snapEnc  *json.Encoder
	lossEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. lossPath may be empty to skip the loss log.
func NewFileWriter(snapshotPath, lossPath string) (*FileWriter, error) {
	sf, err := os.Create(snapshotPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{snapFile: sf, snapEnc: json.NewEncoder(sf)}
	if lossPath != "" {
		lf, err := os.Create(lossPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.lossFile = lf
		fw.lossEnc = json.NewEncoder(lf)
	}
	return fw, nil
}

// WriteSnapshot logs a single history entry.
func (f *FileWriter) WriteSnapshot(e fleet.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapEnc.Encode(e)
}

// WriteSnapshots logs multiple history entries.
func (f *FileWriter) WriteSnapshots(entries []fleet.HistoryEntry) error {
	for _, e := range entries {
		if err := f.WriteSnapshot(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteLoss logs a loss record, if enabled.
func (f *FileWriter) WriteLoss(r fleet.LossRecord) error {
	if f.lossEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lossEnc.Encode(r)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.snapFile != nil {
		if e := f.snapFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.lossFile != nil {
		if e := f.lossFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
