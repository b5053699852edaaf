package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fleetroster/internal/fleet"
	"fleetroster/internal/manager"
)

type fakeSource struct {
	extra []fleet.Member
}

func (fakeSource) Status() manager.Status {
	return manager.Status{FleetID: 7, Members: 2, Wings: 2, Squads: 2, MainPresent: true,
		LastRefresh: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (fakeSource) CompositionSnapshot() manager.Composition {
	return manager.Composition{
		FleetID:     7,
		Members:     2,
		Composition: map[string]int{"Purifier": 1, "Hound": 1},
		Motd:        "alpha beta gamma delta epsilon zeta eta theta",
	}
}

func (fakeSource) StructureSnapshot() fleet.Tree {
	return fleet.Tree{
		{ID: 1, Name: "Operational", Squads: []fleet.Squad{{ID: 11, Name: "Bombers", Members: []int64{100}}}},
		{ID: 2, Name: "Overflow", Squads: []fleet.Squad{{ID: 21, Name: "Waiting", Members: []int64{200}}}},
	}
}

func (f fakeSource) Members() []fleet.Member {
	return append([]fleet.Member{
		{CharacterID: 200, Role: fleet.RoleSquadMember, ShipTypeID: 12034, WingID: 2, SquadID: 21},
		{CharacterID: 100, Role: fleet.RoleSquadCommander, ShipTypeID: 12038, WingID: 1, SquadID: 11},
	}, f.extra...)
}

func (fakeSource) LossHistory(limit int) []fleet.LossRecord {
	return []fleet.LossRecord{{Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), Loss: map[string]float64{"Stealth Bomber": 2}}}
}

type ships map[int64]string

func (s ships) TypeName(id int64) (string, bool) {
	n, ok := s[id]
	return n, ok
}

type chars map[int64]string

func (c chars) Names(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, id := range ids {
		if n, ok := c[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func loaded(t *testing.T, opts ...Option) model {
	t.Helper()
	m := newModel(fakeSource{}, opts...)
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 40})
	m = mi.(model)
	msg := m.fetch()()
	mi, _ = m.Update(msg)
	return mi.(model)
}

func TestSnapshotFillsTable(t *testing.T) {
	m := loaded(t,
		WithShipNames(ships{12038: "Purifier"}),
		WithCharacterNames(chars{100: "Anna"}))

	rows := m.table.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Anna" || rows[0][2] != "Purifier" || rows[0][4] != "Operational" || rows[0][5] != "Bombers" {
		t.Errorf("unexpected first row %v", rows[0])
	}
	if rows[1][0] != "200" || rows[1][2] != "12034" {
		t.Errorf("unresolved ids should fall back to numbers, got %v", rows[1])
	}
	details := m.renderDetails()
	for _, want := range []string{"Operational", "Purifier", "Stealth Bomber -2.00/min"} {
		if !strings.Contains(details, want) {
			t.Errorf("details missing %q:\n%s", want, details)
		}
	}
}

func TestWrapToggle(t *testing.T) {
	m := loaded(t)
	if !m.wrap {
		t.Fatalf("wrap should start enabled")
	}
	wrapped := strings.Count(m.renderHeader(), "\n")

	mi, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	m = mi.(model)
	if m.wrap {
		t.Fatalf("wrap not toggled")
	}
	if got := strings.Count(m.renderHeader(), "\n"); got >= wrapped {
		t.Errorf("expected truncated MOTD to use fewer lines: %d >= %d", got, wrapped)
	}
}

func TestTickSchedulesFetch(t *testing.T) {
	m := newModel(fakeSource{}, WithInterval(time.Millisecond))
	if m.interval != time.Millisecond {
		t.Fatalf("interval not applied")
	}
	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatalf("expected a command after tick")
	}
}

func TestQuitAndHelp(t *testing.T) {
	m := loaded(t)
	mi, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'h'}})
	m = mi.(model)
	if !strings.Contains(m.View(), "Key Bindings") {
		t.Errorf("help view not shown")
	}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("expected QuitMsg")
	}
}

func TestUnplacedMembersShowNoSquad(t *testing.T) {
	src := fakeSource{extra: []fleet.Member{
		{CharacterID: 300, Role: fleet.RoleWingCommander, ShipTypeID: 12038, WingID: 1, SquadID: fleet.Unassigned},
		{CharacterID: 50, Role: fleet.RoleFleetCommander, ShipTypeID: 12038, WingID: fleet.Unassigned, SquadID: fleet.Unassigned},
	}}
	m := newModel(src)
	mi, _ := m.Update(m.fetch()())
	m = mi.(model)

	byName := make(map[string][]string)
	for _, row := range m.table.Rows() {
		byName[row[0]] = row
	}
	if row := byName["300"]; row == nil || row[4] != "Operational" || row[5] != "-" {
		t.Errorf("wing commander row = %v", row)
	}
	if row := byName["50"]; row == nil || row[4] != "-" || row[5] != "-" {
		t.Errorf("fleet commander row = %v", row)
	}
	if row := byName["100"]; row == nil || row[5] != "Bombers" {
		t.Errorf("placed member row = %v", row)
	}
}
