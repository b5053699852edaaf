// Package allocator computes squad assignments for a formation pass.
package allocator

import (
	"context"
	"fmt"

	"fleetroster/internal/fleet"
)

// Structurer creates hierarchy nodes on the remote side.
type Structurer interface {
	CreateWing(ctx context.Context) (int64, error)
	CreateSquad(ctx context.Context, wingID int64) (int64, error)
}

// Request describes one formation pass.
type Request struct {
	Members []fleet.Member
	Tree    fleet.Tree
	// Main is the designated main member; nil when absent from the roster.
	Main          *fleet.Member
	LocationMatch bool
	MaxPerSquad   int
	// SquadCount selects the even-distribution policy when positive.
	SquadCount int
	Filter     map[int64]bool
}

// Plan is the outcome of a formation pass.
type Plan struct {
	Directives []fleet.MoveDirective
	// Tree is the hierarchy after any wings or squads were created.
	Tree           fleet.Tree
	Targets        []int64
	Required       int
	Useful         []fleet.Member
	Other          []fleet.Member
	Pinned         []fleet.Member
	CreatedWings   int
	CreatedSquads  int
	EvenlySpread   bool
	OperationalID  int64
	OverflowID     int64
	OverflowSquad  int64
	UsefulPerSquad map[int64]int
}

func (r Request) validate() error {
	if r.SquadCount < 0 {
		return fleet.Invalid("squad_count", "must not be negative, got %d", r.SquadCount)
	}
	if r.SquadCount == 0 && r.MaxPerSquad < 1 {
		return fleet.Invalid("max_per_squad", "must be at least 1, got %d", r.MaxPerSquad)
	}
	return nil
}

// Allocate partitions members, makes sure the hierarchy can hold them and
// returns the move directives realizing the target layout. Req.Tree is not
// modified. s may be nil when the tree is known to be large enough.
func Allocate(ctx context.Context, req Request, s Structurer) (*Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	plan := &Plan{Tree: req.Tree.Clone(), EvenlySpread: req.SquadCount > 0}
	plan.Useful, plan.Other, plan.Pinned = partition(req)

	plan.Required = req.SquadCount
	if !plan.EvenlySpread {
		plan.Required = (len(plan.Useful) + req.MaxPerSquad - 1) / req.MaxPerSquad
	}

	if err := ensureStructure(ctx, plan, s); err != nil {
		return nil, err
	}
	op, _ := plan.Tree.Operational()
	ov, _ := plan.Tree.Overflow()
	plan.OperationalID = op.ID
	plan.OverflowID = ov.ID
	plan.OverflowSquad = ov.Squads[0].ID
	for i := 0; i < plan.Required; i++ {
		plan.Targets = append(plan.Targets, op.Squads[i].ID)
	}

	if plan.EvenlySpread {
		plan.UsefulPerSquad = spreadEvenly(plan)
	} else {
		plan.UsefulPerSquad = fillByCapacity(plan, req.MaxPerSquad)
	}

	for _, m := range plan.Other {
		if m.WingID == op.ID {
			plan.Directives = append(plan.Directives, fleet.MoveDirective{
				CharacterID: m.CharacterID,
				Role:        fleet.RoleSquadMember,
				SquadID:     plan.OverflowSquad,
				WingID:      plan.OverflowID,
			})
		}
	}
	return plan, nil
}

// partition splits members into useful (matching ship filter and, with
// location match, the main member's system) and other. Fleet and wing
// commanders keep their seats and are never moved.
func partition(req Request) (useful, other, pinned []fleet.Member) {
	for _, m := range req.Members {
		if m.Role == fleet.RoleFleetCommander || m.Role == fleet.RoleWingCommander {
			pinned = append(pinned, m)
			continue
		}
		sameSystem := !req.LocationMatch || (req.Main != nil && m.SolarSystemID == req.Main.SolarSystemID)
		if req.Filter[m.ShipTypeID] && sameSystem {
			useful = append(useful, m)
		} else {
			other = append(other, m)
		}
	}
	return useful, other, pinned
}

func ensureStructure(ctx context.Context, plan *Plan, s Structurer) error {
	need := func() bool {
		if len(plan.Tree) < 2 {
			return true
		}
		return len(plan.Tree[0].Squads) < plan.Required || len(plan.Tree[len(plan.Tree)-1].Squads) == 0
	}
	if !need() {
		return nil
	}
	if s == nil {
		if len(plan.Tree) == 0 {
			return fleet.ErrEmptyTree
		}
		return fmt.Errorf("hierarchy too small for %d squads and no structurer given", plan.Required)
	}

	for len(plan.Tree) < 2 {
		wingID, err := s.CreateWing(ctx)
		if err != nil {
			return fmt.Errorf("create wing: %w", err)
		}
		plan.CreatedWings++
		squadID, err := s.CreateSquad(ctx, wingID)
		if err != nil {
			return fmt.Errorf("create squad in wing %d: %w", wingID, err)
		}
		plan.CreatedSquads++
		plan.Tree = append(plan.Tree, fleet.Wing{ID: wingID, Squads: []fleet.Squad{{ID: squadID, Members: []int64{}}}})
	}

	op := &plan.Tree[0]
	for len(op.Squads) < plan.Required {
		squadID, err := s.CreateSquad(ctx, op.ID)
		if err != nil {
			return fmt.Errorf("create squad in wing %d: %w", op.ID, err)
		}
		plan.CreatedSquads++
		op.Squads = append(op.Squads, fleet.Squad{ID: squadID, Members: []int64{}})
	}

	ov := &plan.Tree[len(plan.Tree)-1]
	if len(ov.Squads) == 0 {
		squadID, err := s.CreateSquad(ctx, ov.ID)
		if err != nil {
			return fmt.Errorf("create squad in wing %d: %w", ov.ID, err)
		}
		plan.CreatedSquads++
		ov.Squads = append(ov.Squads, fleet.Squad{ID: squadID, Members: []int64{}})
	}
	return nil
}

// spreadEvenly hands useful members out in order: every target gets
// len/required members and the first len%required targets one more.
func spreadEvenly(plan *Plan) map[int64]int {
	counts := make(map[int64]int, len(plan.Targets))
	if len(plan.Targets) == 0 {
		return counts
	}
	base := len(plan.Useful) / len(plan.Targets)
	extra := len(plan.Useful) % len(plan.Targets)
	next := 0
	for i, squadID := range plan.Targets {
		n := base
		if i < extra {
			n++
		}
		for j := 0; j < n && next < len(plan.Useful); j++ {
			m := plan.Useful[next]
			next++
			counts[squadID]++
			if m.SquadID != squadID {
				plan.Directives = append(plan.Directives, moveTo(m, squadID, plan.OperationalID))
			}
		}
	}
	return counts
}

// fillByCapacity empties non-target squads and trims overfull targets,
// moving the last-listed members first into the first target with room.
func fillByCapacity(plan *Plan, maxPerSquad int) map[int64]int {
	isTarget := make(map[int64]bool, len(plan.Targets))
	for _, id := range plan.Targets {
		isTarget[id] = true
	}

	bySquad := make(map[int64][]fleet.Member)
	var order []int64
	for _, m := range plan.Useful {
		if _, seen := bySquad[m.SquadID]; !seen {
			order = append(order, m.SquadID)
		}
		bySquad[m.SquadID] = append(bySquad[m.SquadID], m)
	}
	for _, id := range plan.Targets {
		if _, seen := bySquad[id]; !seen {
			bySquad[id] = nil
			order = append(order, id)
		}
	}

	for _, squadID := range order {
		var leaving []fleet.Member
		current := bySquad[squadID]
		switch {
		case !isTarget[squadID]:
			leaving = current
			bySquad[squadID] = nil
		case len(current) > maxPerSquad:
			leaving = current[maxPerSquad:]
			bySquad[squadID] = current[:maxPerSquad:maxPerSquad]
		}
		for i := len(leaving) - 1; i >= 0; i-- {
			m := leaving[i]
			for _, dest := range plan.Targets {
				if len(bySquad[dest]) < maxPerSquad {
					bySquad[dest] = append(bySquad[dest], m)
					plan.Directives = append(plan.Directives, moveTo(m, dest, plan.OperationalID))
					break
				}
			}
		}
	}

	counts := make(map[int64]int, len(plan.Targets))
	for _, id := range plan.Targets {
		counts[id] = len(bySquad[id])
	}
	return counts
}

func moveTo(m fleet.Member, squadID, wingID int64) fleet.MoveDirective {
	return fleet.MoveDirective{
		CharacterID: m.CharacterID,
		Role:        fleet.RoleSquadMember,
		SquadID:     squadID,
		WingID:      wingID,
	}
}
