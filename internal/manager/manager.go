// Package manager keeps the local roster mirror in sync with the remote
// fleet and exposes the operator operations on it.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fleetroster/internal/analysis"
	"fleetroster/internal/fleet"
	"fleetroster/internal/history"
	"fleetroster/internal/logging"
	"fleetroster/internal/sink"
)

// Directory resolves character names to ids. Unknown names are absent from
// the result.
type Directory interface {
	IDs(ctx context.Context, names []string) (map[string]int64, error)
}

// Options holds the tunables of a Manager.
type Options struct {
	FleetID          int64
	MainCharacterID  int64
	AltIDs           []int64
	AltAliases       []string
	DefaultShipTypes []int64
	HistorySize      int
	LossHistorySize  int
	RefreshInterval  time.Duration
	PoolSize         int
	MaxPerSquad      int
	KickDelay        time.Duration
	// LossSameShip restricts loss estimation to the main member's ship.
	LossSameShip bool
}

func (o *Options) applyDefaults() {
	if o.HistorySize == 0 {
		o.HistorySize = 10
	}
	if o.LossHistorySize == 0 {
		o.LossHistorySize = 5
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = time.Minute
	}
	if o.PoolSize < 1 {
		o.PoolSize = 5
	}
	if o.MaxPerSquad < 1 {
		o.MaxPerSquad = 8
	}
	if len(o.AltAliases) == 0 {
		o.AltAliases = []string{"alt", "account"}
	}
}

// Manager owns the roster mirror, its history and the refresh loop.
type Manager struct {
	svc       fleet.Service
	dir       Directory
	analyzer  *analysis.Analyzer
	opts      Options
	snapshots sink.SnapshotWriter
	lossSink  sink.LossWriter
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error

	mu          sync.RWMutex
	roster      fleet.Roster
	main        *fleet.Member
	lastRefresh time.Time
	lastErr     string

	history  *history.Bounded[fleet.HistoryEntry]
	lossHist *history.Bounded[fleet.LossRecord]

	// drainMu orders inflight.Add against the final Wait in Run.
	drainMu  sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// Option customises a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithDirectory sets the name resolver used by Invite and Kick.
func WithDirectory(d Directory) Option {
	return func(m *Manager) { m.dir = d }
}

// WithSinks forwards snapshots and loss records to the given writers.
// Either may be nil.
func WithSinks(s sink.SnapshotWriter, l sink.LossWriter) Option {
	return func(m *Manager) {
		m.snapshots = s
		m.lossSink = l
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSleep replaces the pause used between kicks.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(m *Manager) { m.sleep = fn }
}

// New builds a Manager and performs an initial refresh. A failing refresh
// is logged and leaves the manager partially initialised; only invalid
// options are returned as errors.
func New(ctx context.Context, svc fleet.Service, catalog analysis.ShipCatalog, opts Options, options ...Option) (*Manager, error) {
	if svc == nil {
		return nil, fleet.Invalid("service", "must not be nil")
	}
	if opts.FleetID <= 0 {
		return nil, fleet.Invalid("fleet_id", "must be positive, got %d", opts.FleetID)
	}
	if opts.MainCharacterID <= 0 {
		return nil, fleet.Invalid("main_character_id", "must be positive, got %d", opts.MainCharacterID)
	}
	opts.applyDefaults()
	m := &Manager{
		svc:      svc,
		analyzer: analysis.New(catalog),
		opts:     opts,
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepCtx,
		roster:   fleet.Roster{FleetID: opts.FleetID},
		history:  history.New[fleet.HistoryEntry](opts.HistorySize),
		lossHist: history.New[fleet.LossRecord](opts.LossHistorySize),
	}
	for _, o := range options {
		o(m)
	}
	m.logger = m.logger.With("component", "manager", "fleet_id", opts.FleetID)

	if err := m.Refresh(ctx); err != nil {
		m.logger.Error("initial refresh failed, continuing with empty roster", "err", err)
	}
	return m, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// observe logs the start, end and duration of op and prefixes its error
// with the operation name.
func (m *Manager) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	logger := logging.FromContextOr(ctx, m.logger).With("op", op)
	start := m.now()
	logger.Debug("operation started")
	err := fn(logging.NewContext(ctx, logger))
	elapsed := m.now().Sub(start)
	if err != nil {
		logger.Error("operation failed", "duration", elapsed, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("operation finished", "duration", elapsed)
	return nil
}

// Run refreshes the roster every RefreshInterval until ctx is cancelled,
// then waits for dispatches still in flight.
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("refresh loop started", "interval", m.opts.RefreshInterval)
	ticker := time.NewTicker(m.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.Refresh(ctx)
		case <-ctx.Done():
			m.drainMu.Lock()
			m.draining = true
			m.drainMu.Unlock()
			m.inflight.Wait()
			m.logger.Info("refresh loop stopped")
			return
		}
	}
}

// Refresh pulls members, MOTD and hierarchy, records a history entry and
// updates the loss series. Only a failed member query fails the refresh;
// the other steps are logged and skipped.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.observe(ctx, "refresh", m.refresh)
}

func (m *Manager) refresh(ctx context.Context) error {
	logger := logging.FromContextOr(ctx, m.logger)
	members, err := m.svc.Members(ctx, m.opts.FleetID)
	if err != nil {
		m.setLastErr(err)
		return err
	}

	var main *fleet.Member
	if mm, ok := fleet.FindMember(members, m.opts.MainCharacterID); ok {
		main = &mm
	} else {
		logger.Warn("main character not in fleet", "character_id", m.opts.MainCharacterID)
	}

	m.mu.RLock()
	motd := m.roster.Motd
	m.mu.RUnlock()
	if fresh, err := m.svc.Motd(ctx, m.opts.FleetID); err != nil {
		logger.Warn("motd fetch failed, keeping previous", "err", err)
	} else {
		motd = fresh
	}

	composition := m.analyzer.Composition(members, nil)
	byClass := m.analyzer.CompositionByClass(members)
	ts := m.now()
	entry := fleet.HistoryEntry{
		Timestamp:   ts,
		FleetID:     m.opts.FleetID,
		Main:        main,
		Members:     members,
		Composition: composition,
		Motd:        motd,
	}

	m.mu.Lock()
	m.roster.Members = members
	m.roster.Motd = motd
	m.roster.Composition = composition
	m.roster.CompositionClass = byClass
	m.main = main
	m.lastRefresh = ts
	m.lastErr = ""
	m.mu.Unlock()
	m.history.Append(entry)

	if wings, err := m.svc.Wings(ctx, m.opts.FleetID); err != nil {
		logger.Error("fleet tree build failed, keeping previous tree", "err", err)
	} else {
		tree := fleet.BuildTree(wings, members)
		m.mu.Lock()
		m.roster.Tree = tree
		m.mu.Unlock()
	}

	if m.history.Len() > 1 {
		m.recordLoss(ctx, ts)
	}

	if m.snapshots != nil {
		if err := m.snapshots.WriteSnapshot(entry); err != nil {
			logger.Warn("snapshot sink failed", "err", err)
		}
	}
	logger.Debug("roster refreshed", "members", len(members), "main_present", main != nil)
	return nil
}

func (m *Manager) recordLoss(ctx context.Context, ts time.Time) {
	logger := logging.FromContextOr(ctx, m.logger)
	entries := m.history.Last(2)
	var (
		loss map[string]float64
		err  error
	)
	if m.opts.LossSameShip {
		loss, err = m.analyzer.EstimateLossSameShip(entries)
	} else {
		loss, err = analysis.EstimateLoss(entries)
	}
	if err != nil {
		logger.Error("loss estimation failed", "err", err)
		return
	}
	if len(loss) == 0 {
		return
	}
	rec := fleet.LossRecord{Timestamp: ts, Loss: loss}
	m.lossHist.Append(rec)
	if m.lossSink != nil {
		if err := m.lossSink.WriteLoss(rec); err != nil {
			logger.Warn("loss sink failed", "err", err)
		}
	}
}

func (m *Manager) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

// UpdateMotd re-reads the MOTD, appends text to it or replaces it, writes
// it back and reads it again to confirm.
func (m *Manager) UpdateMotd(ctx context.Context, text string, appendText bool) error {
	return m.observe(ctx, "update_motd", func(ctx context.Context) error {
		current, err := m.svc.Motd(ctx, m.opts.FleetID)
		if err != nil {
			return err
		}
		motd := text
		if appendText {
			motd = current + text
		}
		if err := m.svc.PutMotd(ctx, m.opts.FleetID, motd, true); err != nil {
			return err
		}
		if confirmed, err := m.svc.Motd(ctx, m.opts.FleetID); err != nil {
			logging.FromContextOr(ctx, m.logger).Warn("motd written but not confirmed", "err", err)
		} else {
			motd = confirmed
		}
		m.mu.Lock()
		m.roster.Motd = motd
		m.mu.Unlock()
		return nil
	})
}

// History returns up to limit entries, oldest first; limit <= 0 returns all.
func (m *Manager) History(limit int) []fleet.HistoryEntry {
	return m.history.Last(limit)
}

// LossHistory returns up to limit loss records, oldest first.
func (m *Manager) LossHistory(limit int) []fleet.LossRecord {
	return m.lossHist.Last(limit)
}

// Composition is the aggregate view served to operators.
type Composition struct {
	FleetID          int64          `json:"fleet_id"`
	Members          int            `json:"members"`
	Composition      map[string]int `json:"composition"`
	CompositionClass map[string]int `json:"composition_class"`
	Motd             string         `json:"motd"`
}

// CompositionSnapshot returns the latest composition.
func (m *Manager) CompositionSnapshot() Composition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Composition{
		FleetID:          m.roster.FleetID,
		Members:          len(m.roster.Members),
		Composition:      copyCounts(m.roster.Composition),
		CompositionClass: copyCounts(m.roster.CompositionClass),
		Motd:             m.roster.Motd,
	}
}

// StructureSnapshot returns a copy of the hierarchy mirror.
func (m *Manager) StructureSnapshot() fleet.Tree {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roster.Tree.Clone()
}

// Members returns a copy of the current member list.
func (m *Manager) Members() []fleet.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]fleet.Member(nil), m.roster.Members...)
}

// Status summarises the manager state.
type Status struct {
	FleetID         int64     `json:"fleet_id"`
	MainCharacterID int64     `json:"main_character_id"`
	MainPresent     bool      `json:"main_present"`
	Members         int       `json:"members"`
	Wings           int       `json:"wings"`
	Squads          int       `json:"squads"`
	HistoryLen      int       `json:"history_len"`
	LossLen         int       `json:"loss_len"`
	LastRefresh     time.Time `json:"last_refresh"`
	LastError       string    `json:"last_error,omitempty"`
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		FleetID:         m.opts.FleetID,
		MainCharacterID: m.opts.MainCharacterID,
		MainPresent:     m.main != nil,
		Members:         len(m.roster.Members),
		Wings:           len(m.roster.Tree),
		Squads:          m.roster.Tree.SquadCount(),
		HistoryLen:      m.history.Len(),
		LossLen:         m.lossHist.Len(),
		LastRefresh:     m.lastRefresh,
		LastError:       m.lastErr,
	}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// track registers an in-flight dispatch. It fails once Run is draining.
func (m *Manager) track() error {
	m.drainMu.Lock()
	defer m.drainMu.Unlock()
	if m.draining {
		return ErrStopped
	}
	m.inflight.Add(1)
	return nil
}

// ErrStopped is returned for directives issued after the refresh loop shut down.
var ErrStopped = errors.New("roster manager stopped")

// errNoDirectory is reported for names when no resolver is configured.
var errNoDirectory = errors.New("no character directory configured")
