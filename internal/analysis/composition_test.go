package analysis

import (
	"errors"
	"testing"
	"time"

	"fleetroster/internal/fleet"
)

// fakeCatalog maps type ids to names and groups for tests.
type fakeCatalog struct {
	names  map[int64]string
	groups map[int64]int64
	gnames map[int64]string
}

func (c *fakeCatalog) TypeName(id int64) (string, bool) { n, ok := c.names[id]; return n, ok }
func (c *fakeCatalog) GroupID(id int64) (int64, bool)   { g, ok := c.groups[id]; return g, ok }
func (c *fakeCatalog) GroupName(id int64) (string, bool) {
	n, ok := c.gnames[id]
	return n, ok
}

// Types 1,2 are Stealth Bombers (group 10), 3 is a Logistics cruiser (group 20),
// 4 is an Interceptor (group 30).
func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		names:  map[int64]string{1: "Purifier", 2: "Hound", 3: "Scimitar", 4: "Stiletto"},
		groups: map[int64]int64{1: 10, 2: 10, 3: 20, 4: 30},
		gnames: map[int64]string{10: "Stealth Bomber", 20: "Logistics", 30: "Interceptor"},
	}
}

func members(types ...int64) []fleet.Member {
	out := make([]fleet.Member, len(types))
	for i, t := range types {
		out[i] = fleet.Member{CharacterID: int64(100 + i), ShipTypeID: t}
	}
	return out
}

func TestComposition(t *testing.T) {
	a := New(newCatalog())
	ms := members(1, 1, 2, 3, 99)
	got := a.Composition(ms, nil)
	if got["Purifier"] != 2 || got["Hound"] != 1 || got["Scimitar"] != 1 || got["unknown:99"] != 1 {
		t.Fatalf("Composition = %v", got)
	}
	filtered := a.Composition(ms, &fleet.Member{ShipTypeID: 1})
	if len(filtered) != 1 || filtered["Purifier"] != 2 {
		t.Fatalf("filtered Composition = %v", filtered)
	}
}

func TestCompositionByClass(t *testing.T) {
	a := New(newCatalog())
	got := a.CompositionByClass(members(1, 2, 3, 99))
	if got["Stealth Bomber"] != 2 || got["Logistics"] != 1 || got[UnknownClass] != 1 {
		t.Fatalf("CompositionByClass = %v", got)
	}
}

func TestEstimateLossNeedsTwoEntries(t *testing.T) {
	if _, err := EstimateLoss([]fleet.HistoryEntry{{}}); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestEstimateLossFloorsToOneMinute(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	entries := []fleet.HistoryEntry{
		{Timestamp: t0, Composition: map[string]int{"Purifier": 8, "Scimitar": 2}},
		{Timestamp: t0.Add(30 * time.Second), Composition: map[string]int{"Purifier": 5, "Scimitar": 4, "Hound": 1}},
	}
	loss, err := EstimateLoss(entries)
	if err != nil {
		t.Fatalf("EstimateLoss: %v", err)
	}
	if len(loss) != 1 || loss["Purifier"] != 3.0 {
		t.Fatalf("loss = %v, want map[Purifier:3]", loss)
	}
}

func TestEstimateLossRatePerMinute(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0)
	entries := []fleet.HistoryEntry{
		{Timestamp: t0, Composition: map[string]int{"Hound": 1}},
		{Timestamp: t0, Composition: map[string]int{"Purifier": 10, "Hound": 3}},
		{Timestamp: t0.Add(3 * time.Minute), Composition: map[string]int{"Purifier": 9}},
	}
	loss, err := EstimateLoss(entries)
	if err != nil {
		t.Fatalf("EstimateLoss: %v", err)
	}
	if loss["Purifier"] != 0.33 || loss["Hound"] != 1.0 {
		t.Fatalf("loss = %v, want Purifier 0.33 and Hound 1", loss)
	}
	for k, v := range loss {
		if v <= 0 {
			t.Errorf("class %s reported non-positive loss %v", k, v)
		}
	}
}

func TestEstimateLossSameShip(t *testing.T) {
	a := New(newCatalog())
	t0 := time.Unix(1_700_000_000, 0)
	main := fleet.Member{CharacterID: 1, ShipTypeID: 1}
	entries := []fleet.HistoryEntry{
		{Timestamp: t0, Members: members(1, 1, 1, 3, 3)},
		{Timestamp: t0.Add(2 * time.Minute), Main: &main, Members: members(1, 3)},
	}
	loss, err := a.EstimateLossSameShip(entries)
	if err != nil {
		t.Fatalf("EstimateLossSameShip: %v", err)
	}
	if len(loss) != 1 || loss["Purifier"] != 1.0 {
		t.Fatalf("loss = %v, want map[Purifier:1]", loss)
	}
}

func TestDominantClasses(t *testing.T) {
	a := New(newCatalog())
	tests := []struct {
		name  string
		types []int64
		want  []int64
	}{
		{"majority", []int64{1, 2, 1, 3}, []int64{10}},
		{"tie", []int64{1, 2, 3, 3}, []int64{10, 20}},
		{"below threshold", []int64{1, 3, 4}, nil},
		{"unknown types count in total", []int64{1, 99, 99}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		got := a.DominantClasses(members(tt.types...), DominantShare)
		if len(got) != len(tt.want) {
			t.Errorf("%s: DominantClasses = %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: DominantClasses = %v, want %v", tt.name, got, tt.want)
			}
		}
	}
}

func TestShipFilter(t *testing.T) {
	a := New(newCatalog())
	defaults := []int64{12038, 12032}

	explicit := a.ShipFilter(members(1, 1), []int64{4}, defaults)
	if len(explicit) != 1 || !explicit[4] {
		t.Fatalf("explicit filter = %v", explicit)
	}

	auto := a.ShipFilter(members(1, 2, 2, 3), nil, defaults)
	if len(auto) != 2 || !auto[1] || !auto[2] {
		t.Fatalf("auto filter = %v, want types 1 and 2", auto)
	}

	fallback := a.ShipFilter(members(1, 3, 4), nil, defaults)
	if len(fallback) != 2 || !fallback[12038] {
		t.Fatalf("fallback filter = %v, want defaults", fallback)
	}

	empty := a.ShipFilter(nil, nil, defaults)
	if len(empty) != 2 {
		t.Fatalf("empty roster filter = %v, want defaults", empty)
	}
}
