package manager

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetroster/internal/allocator"
	"fleetroster/internal/fleet"
	"fleetroster/internal/logging"
)

// BatchResult reports the outcome of an invite, kick or move batch.
type BatchResult struct {
	Op        string   `json:"op"`
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	IDs       []int64  `json:"ids"`
	Errors    []string `json:"errors,omitempty"`

	errs []error
	mu   sync.Mutex
}

func newBatch(op string) *BatchResult {
	return &BatchResult{Op: op, IDs: []int64{}}
}

func (r *BatchResult) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.errs = append(r.errs, err)
	r.Errors = append(r.Errors, err.Error())
}

func (r *BatchResult) ok() {
	r.mu.Lock()
	r.Succeeded++
	r.mu.Unlock()
}

// Err returns a *fleet.BatchError when every requested item failed.
func (r *BatchResult) Err() error {
	if r.Requested > 0 && r.Succeeded == 0 {
		return &fleet.BatchError{Op: r.Op, Failed: r.Failed, Errs: append([]error(nil), r.errs...)}
	}
	return nil
}

// dispatch runs fn for every index on the worker pool. Failures are
// recorded on res and never cancel the other calls.
func (m *Manager) dispatch(ctx context.Context, res *BatchResult, n int, fn func(context.Context, int) error) {
	if err := m.track(); err != nil {
		for i := 0; i < n; i++ {
			res.fail(err)
		}
		return
	}
	defer m.inflight.Done()
	logger := logging.FromContextOr(ctx, m.logger)

	var g errgroup.Group
	g.SetLimit(m.opts.PoolSize)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := fn(ctx, i); err != nil {
				logger.Warn("directive failed", "index", i, "err", err)
				res.fail(err)
				return nil
			}
			res.ok()
			return nil
		})
	}
	_ = g.Wait()
}

// resolve expands aliases, parses numeric ids and looks names up in one
// batch. Unresolvable entries are recorded as failures on res.
func (m *Manager) resolve(ctx context.Context, items []string, res *BatchResult) []int64 {
	aliases := make(map[string]bool, len(m.opts.AltAliases))
	for _, a := range m.opts.AltAliases {
		aliases[strings.ToLower(a)] = true
	}

	var ids []int64
	var names []string
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		switch {
		case item == "":
			continue
		case aliases[strings.ToLower(item)]:
			ids = append(ids, m.opts.AltIDs...)
			res.Requested += len(m.opts.AltIDs)
		default:
			res.Requested++
			if id, err := strconv.ParseInt(item, 10, 64); err == nil {
				ids = append(ids, id)
			} else {
				names = append(names, item)
			}
		}
	}
	if len(names) == 0 {
		return ids
	}
	if m.dir == nil {
		for _, n := range names {
			res.fail(fmt.Errorf("character %q: %w", n, errNoDirectory))
		}
		return ids
	}

	found, err := m.dir.IDs(ctx, names)
	if err != nil {
		logging.FromContextOr(ctx, m.logger).Warn("name resolution incomplete", "err", err)
	}
	for _, n := range names {
		if id, ok := found[strings.ToLower(n)]; ok {
			ids = append(ids, id)
		} else {
			res.fail(fmt.Errorf("character %q not found", n))
		}
	}
	return ids
}

// Invite resolves idsOrNames and sends the invitations through the worker
// pool. It fails only when every item failed.
func (m *Manager) Invite(ctx context.Context, idsOrNames []string) (*BatchResult, error) {
	res := newBatch("invite")
	err := m.observe(ctx, "invite", func(ctx context.Context) error {
		ids := m.resolve(ctx, idsOrNames, res)
		var directives []fleet.InviteDirective
		for _, id := range ids {
			d := fleet.InviteDirective{CharacterID: id, Role: fleet.RoleSquadMember}
			if err := fleet.ValidateInvite(d); err != nil {
				res.fail(fmt.Errorf("invite %d: %w", id, err))
				continue
			}
			directives = append(directives, d)
			res.IDs = append(res.IDs, id)
		}
		m.dispatch(ctx, res, len(directives), func(ctx context.Context, i int) error {
			d := directives[i]
			if err := m.svc.InviteMember(ctx, m.opts.FleetID, d); err != nil {
				return fmt.Errorf("invite %d: %w", d.CharacterID, err)
			}
			return nil
		})
		return res.Err()
	})
	return res, err
}

// Kick removes members one at a time with delay between consecutive calls.
// A negative delay selects the configured default.
func (m *Manager) Kick(ctx context.Context, idsOrNames []string, delay time.Duration) (*BatchResult, error) {
	if delay < 0 {
		delay = m.opts.KickDelay
	}
	res := newBatch("kick")
	err := m.observe(ctx, "kick", func(ctx context.Context) error {
		logger := logging.FromContextOr(ctx, m.logger)
		ids := m.resolve(ctx, idsOrNames, res)
		if err := m.track(); err != nil {
			return err
		}
		defer m.inflight.Done()
		for i, id := range ids {
			if i > 0 {
				if err := m.sleep(ctx, delay); err != nil {
					return err
				}
			}
			res.IDs = append(res.IDs, id)
			if err := m.svc.KickMember(ctx, m.opts.FleetID, id); err != nil {
				logger.Warn("kick failed", "character_id", id, "err", err)
				res.fail(fmt.Errorf("kick %d: %w", id, err))
				continue
			}
			res.ok()
		}
		return res.Err()
	})
	return res, err
}

// FormationOptions parameterise a formation pass.
type FormationOptions struct {
	// MaxPerSquad defaults to the configured value when zero.
	MaxPerSquad   int     `json:"max_per_squad"`
	LocationMatch bool    `json:"location_match"`
	SquadCount    int     `json:"squad_count,omitempty"`
	ShipTypes     []int64 `json:"ship_types,omitempty"`
}

// FormationResult is the plan together with its dispatch outcome.
type FormationResult struct {
	Plan  *allocator.Plan `json:"plan"`
	Moves *BatchResult    `json:"moves"`
}

type structurer struct {
	svc     fleet.Service
	fleetID int64
}

func (s structurer) CreateWing(ctx context.Context) (int64, error) {
	return s.svc.CreateWing(ctx, s.fleetID)
}

func (s structurer) CreateSquad(ctx context.Context, wingID int64) (int64, error) {
	return s.svc.CreateSquad(ctx, s.fleetID, wingID)
}

// Formation refreshes the roster, plans squad assignments and dispatches
// the resulting moves through the worker pool.
func (m *Manager) Formation(ctx context.Context, opts FormationOptions) (*FormationResult, error) {
	if opts.MaxPerSquad == 0 {
		opts.MaxPerSquad = m.opts.MaxPerSquad
	}
	result := &FormationResult{Moves: newBatch("move")}
	err := m.observe(ctx, "formation", func(ctx context.Context) error {
		if err := m.refresh(ctx); err != nil {
			return err
		}
		m.mu.RLock()
		members := append([]fleet.Member(nil), m.roster.Members...)
		tree := m.roster.Tree.Clone()
		main := m.main
		m.mu.RUnlock()

		req := allocator.Request{
			Members:       members,
			Tree:          tree,
			Main:          main,
			LocationMatch: opts.LocationMatch,
			MaxPerSquad:   opts.MaxPerSquad,
			SquadCount:    opts.SquadCount,
			Filter:        m.analyzer.ShipFilter(members, opts.ShipTypes, m.opts.DefaultShipTypes),
		}
		plan, err := allocator.Allocate(ctx, req, structurer{svc: m.svc, fleetID: m.opts.FleetID})
		if err != nil {
			return err
		}
		result.Plan = plan
		if plan.CreatedWings > 0 || plan.CreatedSquads > 0 {
			m.mu.Lock()
			m.roster.Tree = plan.Tree.Clone()
			m.mu.Unlock()
		}

		moves := result.Moves
		moves.Requested = len(plan.Directives)
		for _, d := range plan.Directives {
			moves.IDs = append(moves.IDs, d.CharacterID)
		}
		m.dispatch(ctx, moves, len(plan.Directives), func(ctx context.Context, i int) error {
			d := plan.Directives[i]
			if err := m.svc.MoveMember(ctx, m.opts.FleetID, d); err != nil {
				return fmt.Errorf("move %d: %w", d.CharacterID, err)
			}
			return nil
		})
		logging.FromContextOr(ctx, m.logger).Info("formation dispatched",
			"useful", len(plan.Useful), "squads", plan.Required, "moves", moves.Requested, "failed", moves.Failed)
		return moves.Err()
	})
	return result, err
}
