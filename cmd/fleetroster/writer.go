package main

import (
	"fleetroster/internal/config"
	"fleetroster/internal/sink"
)

// newSinks sets up the snapshot and loss writers based on flags and config.
// It returns the writers and a cleanup function to close any resources.
func newSinks(cfg *config.RosterConfig, printOnly bool, logFile string) (sink.SnapshotWriter, sink.LossWriter, func(), error) {
	cleanup := func() {}

	sw, lw, err := baseSinks(cfg, printOnly)
	if err != nil {
		return nil, nil, nil, err
	}
	if logFile == "" {
		return sw, lw, cleanup, nil
	}

	fw, err := sink.NewFileWriter(logFile, logFile+".loss")
	if err != nil {
		return nil, nil, nil, err
	}
	mw := sink.NewMultiWriter([]sink.SnapshotWriter{sw, fw}, []sink.LossWriter{lw, fw})
	cleanup = func() { fw.Close() }
	return mw, mw, cleanup, nil
}

// baseSinks chooses GreptimeDB when an endpoint is configured and STDOUT
// otherwise.
func baseSinks(cfg *config.RosterConfig, printOnly bool) (sink.SnapshotWriter, sink.LossWriter, error) {
	if printOnly || cfg == nil || cfg.Greptime.Endpoint == "" {
		w := sink.NewStdoutWriter()
		return w, w, nil
	}
	g := cfg.Greptime
	w, err := sink.NewGreptimeDBWriter(g.Endpoint, g.Database, g.HistoryTable, g.LossTable)
	if err != nil {
		return nil, nil, err
	}
	return w, w, nil
}

// quietSinks returns only the sinks that do not write to the terminal.
// Both writers are nil when neither GreptimeDB nor a log file is set.
func quietSinks(cfg *config.RosterConfig, logFile string) (sink.SnapshotWriter, sink.LossWriter, func(), error) {
	cleanup := func() {}
	var sws []sink.SnapshotWriter
	var lws []sink.LossWriter
	if cfg != nil && cfg.Greptime.Endpoint != "" {
		g := cfg.Greptime
		w, err := sink.NewGreptimeDBWriter(g.Endpoint, g.Database, g.HistoryTable, g.LossTable)
		if err != nil {
			return nil, nil, nil, err
		}
		sws = append(sws, w)
		lws = append(lws, w)
	}
	if logFile != "" {
		fw, err := sink.NewFileWriter(logFile, logFile+".loss")
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup = func() { fw.Close() }
		sws = append(sws, fw)
		lws = append(lws, fw)
	}
	if len(sws) == 0 {
		return nil, nil, cleanup, nil
	}
	mw := sink.NewMultiWriter(sws, lws)
	return mw, mw, cleanup, nil
}
