package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"fleetroster/internal/analysis"
	"fleetroster/internal/config"
	"fleetroster/internal/directory"
	"fleetroster/internal/fleet"
	"fleetroster/internal/history"
	"fleetroster/internal/logging"
	"fleetroster/internal/sink"
)

var (
	replayInput     string
	replayPrintOnly bool
	replaySameShip  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a snapshot log and recompute losses",
	Long:  "replay feeds the snapshots of a JSONL log back into GreptimeDB or STDOUT and estimates the attrition between consecutive snapshots.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := offlineConfig()
		if err != nil {
			return err
		}
		logger := logging.NewWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		ships, err := directory.LoadShips(cfg.ShipCatalogPath)
		if errors.Is(err, fs.ErrNotExist) {
			ships = directory.NewShips()
		} else if err != nil {
			return err
		}

		sw, lw, err := baseSinks(cfg, replayPrintOnly)
		if err != nil {
			return err
		}
		r := newLossReplayer(analysis.New(ships), replaySameShip, sw, lw)
		if err := sink.ReplayLogFile(replayInput, r); err != nil {
			return fmt.Errorf("replay %s: %w", replayInput, err)
		}
		logger.Info("replay finished", "snapshots", r.snapshots, "loss_records", r.records)
		return nil
	},
}

// offlineConfig loads the configuration when present and falls back to
// defaults, so a log can be replayed without a live fleet setup.
func offlineConfig() (*config.RosterConfig, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(configPath, schemaPath)
}

// lossReplayer forwards snapshots and emits a loss record for every
// consecutive pair that shows attrition.
type lossReplayer struct {
	analyzer *analysis.Analyzer
	sameShip bool
	window   *history.Bounded[fleet.HistoryEntry]
	out      sink.SnapshotWriter
	losses   sink.LossWriter

	snapshots int
	records   int
}

func newLossReplayer(a *analysis.Analyzer, sameShip bool, out sink.SnapshotWriter, losses sink.LossWriter) *lossReplayer {
	return &lossReplayer{
		analyzer: a,
		sameShip: sameShip,
		window:   history.New[fleet.HistoryEntry](2),
		out:      out,
		losses:   losses,
	}
}

func (r *lossReplayer) WriteSnapshot(e fleet.HistoryEntry) error {
	r.snapshots++
	if r.out != nil {
		if err := r.out.WriteSnapshot(e); err != nil {
			return err
		}
	}
	r.window.Append(e)
	if r.window.Len() < 2 {
		return nil
	}
	entries := r.window.All()
	var (
		loss map[string]float64
		err  error
	)
	if r.sameShip {
		loss, err = r.analyzer.EstimateLossSameShip(entries)
	} else {
		loss, err = analysis.EstimateLoss(entries)
	}
	if err != nil || len(loss) == 0 {
		return err
	}
	r.records++
	if r.losses == nil {
		return nil
	}
	return r.losses.WriteLoss(fleet.LossRecord{Timestamp: e.Timestamp, Loss: loss})
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to snapshot log file")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print to STDOUT instead of writing to GreptimeDB")
	replayCmd.Flags().BoolVar(&replaySameShip, "same-ship", false, "Only count members flying the main character's ship")
	replayCmd.MarkFlagRequired("input")
}
