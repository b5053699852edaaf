// Package analysis derives ship composition and attrition from roster snapshots.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"fleetroster/internal/fleet"
)

// DominantShare is the fraction of the fleet a ship class needs to be picked
// as the formation filter.
const DominantShare = 0.5

// UnknownClass is reported for ship types missing from the catalog.
const UnknownClass = "Unknown"

// ErrInsufficientHistory is returned when fewer than two snapshots exist.
var ErrInsufficientHistory = errors.New("loss estimation needs at least two snapshots")

// ShipCatalog maps ship types to names and classes (groups).
type ShipCatalog interface {
	TypeName(typeID int64) (string, bool)
	GroupID(typeID int64) (int64, bool)
	GroupName(groupID int64) (string, bool)
}

// Analyzer computes composition maps against a ship catalog.
type Analyzer struct {
	catalog ShipCatalog
}

// New returns an Analyzer backed by catalog.
func New(catalog ShipCatalog) *Analyzer {
	return &Analyzer{catalog: catalog}
}

func (a *Analyzer) shipName(typeID int64) string {
	if name, ok := a.catalog.TypeName(typeID); ok {
		return name
	}
	return fmt.Sprintf("unknown:%d", typeID)
}

func (a *Analyzer) className(typeID int64) string {
	gid, ok := a.catalog.GroupID(typeID)
	if !ok {
		return UnknownClass
	}
	if name, ok := a.catalog.GroupName(gid); ok {
		return name
	}
	return UnknownClass
}

// Composition counts members per ship name. With a non-nil filter only
// members flying the filter's ship type are counted.
func (a *Analyzer) Composition(members []fleet.Member, filter *fleet.Member) map[string]int {
	out := make(map[string]int)
	for _, m := range members {
		if filter != nil && m.ShipTypeID != filter.ShipTypeID {
			continue
		}
		out[a.shipName(m.ShipTypeID)]++
	}
	return out
}

// CompositionByClass counts members per ship class name.
func (a *Analyzer) CompositionByClass(members []fleet.Member) map[string]int {
	out := make(map[string]int)
	for _, m := range members {
		out[a.className(m.ShipTypeID)]++
	}
	return out
}

// EstimateLoss compares the two newest entries and reports, for every ship
// that shrank, the members lost per minute rounded to two decimals. The
// interval is floored at one minute.
func EstimateLoss(entries []fleet.HistoryEntry) (map[string]float64, error) {
	if len(entries) < 2 {
		return nil, ErrInsufficientHistory
	}
	prev, now := entries[len(entries)-2], entries[len(entries)-1]
	return lossBetween(prev.Composition, now.Composition, now.Timestamp.Sub(prev.Timestamp).Minutes()), nil
}

// EstimateLossSameShip is EstimateLoss restricted to members flying the
// newest main member's ship. Without a main member it reports nothing.
func (a *Analyzer) EstimateLossSameShip(entries []fleet.HistoryEntry) (map[string]float64, error) {
	if len(entries) < 2 {
		return nil, ErrInsufficientHistory
	}
	prev, now := entries[len(entries)-2], entries[len(entries)-1]
	if now.Main == nil {
		return map[string]float64{}, nil
	}
	before := a.Composition(prev.Members, now.Main)
	after := a.Composition(now.Members, now.Main)
	return lossBetween(before, after, now.Timestamp.Sub(prev.Timestamp).Minutes()), nil
}

func lossBetween(prev, now map[string]int, minutes float64) map[string]float64 {
	minutes = math.Max(minutes, 1)
	out := make(map[string]float64)
	for k, before := range prev {
		after := now[k]
		if before > after {
			out[k] = round2(float64(before-after) / minutes)
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DominantClasses returns the class (group) ids holding at least share of
// members, sorted ascending. Members without a known class still count
// towards the total.
func (a *Analyzer) DominantClasses(members []fleet.Member, share float64) []int64 {
	if len(members) == 0 {
		return nil
	}
	counts := make(map[int64]int)
	for _, m := range members {
		if gid, ok := a.catalog.GroupID(m.ShipTypeID); ok {
			counts[gid]++
		}
	}
	threshold := float64(len(members)) * share
	var out []int64
	for gid, n := range counts {
		if float64(n) >= threshold {
			out = append(out, gid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ShipFilter picks the ship types used by a formation pass. An explicit
// filter wins. Otherwise the fleet's ship types belonging to dominant
// classes are used, falling back to defaults.
func (a *Analyzer) ShipFilter(members []fleet.Member, explicit, defaults []int64) map[int64]bool {
	if explicit != nil {
		return toSet(explicit)
	}
	dominant := a.DominantClasses(members, DominantShare)
	if len(dominant) == 0 {
		return toSet(defaults)
	}
	classes := toSet(dominant)
	out := make(map[int64]bool)
	for _, m := range members {
		if gid, ok := a.catalog.GroupID(m.ShipTypeID); ok && classes[gid] {
			out[m.ShipTypeID] = true
		}
	}
	return out
}

func toSet(ids []int64) map[int64]bool {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
