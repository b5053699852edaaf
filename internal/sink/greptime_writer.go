package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"fleetroster/internal/fleet"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter stores one row per member per snapshot and one row per
// shrinking class per loss record.
type GreptimeDBWriter struct {
	client       greptimeClient
	historyTable string
	lossTable    string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database, historyTable, lossTable string) (*GreptimeDBWriter, error) {
	host, port := endpoint, 0
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint port %q: %w", p, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port != 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GreptimeDBWriter{
		client:       client,
		historyTable: historyTable,
		lossTable:    lossTable,
		timeout:      10 * time.Second,
		logger:       slog.Default().With("component", "greptime"),
	}, nil
}

func (w *GreptimeDBWriter) log() *slog.Logger {
	if w.logger == nil {
		return slog.Default()
	}
	return w.logger
}

func (w *GreptimeDBWriter) write(tbl *table.Table, rows int) error {
	timeout := w.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log().Error("write failed", "err", err)
		return err
	}
	w.log().Debug("wrote rows", "rows", rows)
	return nil
}

func (w *GreptimeDBWriter) snapshotTable() (*table.Table, error) {
	tbl, err := table.New(w.historyTable)
	if err != nil {
		return nil, err
	}
	tbl.AddTagColumn("fleet_id", types.INT64)
	tbl.AddTagColumn("character_id", types.INT64)
	tbl.AddFieldColumn("role", types.STRING)
	tbl.AddFieldColumn("ship_type_id", types.INT64)
	tbl.AddFieldColumn("solar_system_id", types.INT64)
	tbl.AddFieldColumn("wing_id", types.INT64)
	tbl.AddFieldColumn("squad_id", types.INT64)
	tbl.AddFieldColumn("is_main", types.BOOLEAN)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	return tbl, nil
}

func addSnapshotRows(tbl *table.Table, e fleet.HistoryEntry) error {
	for _, m := range e.Members {
		isMain := e.Main != nil && e.Main.CharacterID == m.CharacterID
		if err := tbl.AddRow(e.FleetID, m.CharacterID, string(m.Role), m.ShipTypeID,
			m.SolarSystemID, m.WingID, m.SquadID, isMain, e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot inserts the members of one history entry.
func (w *GreptimeDBWriter) WriteSnapshot(e fleet.HistoryEntry) error {
	return w.WriteSnapshots([]fleet.HistoryEntry{e})
}

// WriteSnapshots inserts the members of several history entries.
func (w *GreptimeDBWriter) WriteSnapshots(entries []fleet.HistoryEntry) error {
	tbl, err := w.snapshotTable()
	if err != nil {
		return err
	}
	rows := 0
	for _, e := range entries {
		if err := addSnapshotRows(tbl, e); err != nil {
			return err
		}
		rows += len(e.Members)
	}
	if rows == 0 {
		return nil
	}
	return w.write(tbl, rows)
}

// WriteLoss inserts one row per class of a loss record.
func (w *GreptimeDBWriter) WriteLoss(r fleet.LossRecord) error {
	if len(r.Loss) == 0 {
		return nil
	}
	tbl, err := table.New(w.lossTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("class", types.STRING)
	tbl.AddFieldColumn("per_minute", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)
	for _, class := range sortedKeys(r.Loss) {
		if err := tbl.AddRow(class, r.Loss[class], r.Timestamp); err != nil {
			return err
		}
	}
	return w.write(tbl, len(r.Loss))
}
