// Package fleet holds the roster model mirroring the fleet-control wire
// format, its validation and the error kinds shared by the engine.
package fleet

import "time"

// Unassigned marks a member that is not placed in a wing or squad.
const Unassigned int64 = -1

// Role is a member's position in the fleet hierarchy.
type Role string

// Fleet roles.
const (
	RoleFleetCommander Role = "fleet_commander"
	RoleWingCommander  Role = "wing_commander"
	RoleSquadCommander Role = "squad_commander"
	RoleSquadMember    Role = "squad_member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleFleetCommander, RoleWingCommander, RoleSquadCommander, RoleSquadMember:
		return true
	}
	return false
}

// Member is one character in the fleet.
type Member struct {
	CharacterID    int64     `json:"character_id" yaml:"character_id"`
	JoinTime       time.Time `json:"join_time" yaml:"join_time"`
	Role           Role      `json:"role" yaml:"role"`
	ShipTypeID     int64     `json:"ship_type_id" yaml:"ship_type_id"`
	SolarSystemID  int64     `json:"solar_system_id" yaml:"solar_system_id"`
	SquadID        int64     `json:"squad_id" yaml:"squad_id"`
	WingID         int64     `json:"wing_id" yaml:"wing_id"`
	StationID      *int64    `json:"station_id,omitempty" yaml:"station_id,omitempty"`
	TakesFleetWarp bool      `json:"takes_fleet_warp" yaml:"takes_fleet_warp"`
}

// Placed reports whether the member sits inside a squad.
func (m Member) Placed() bool {
	return m.SquadID != Unassigned && m.WingID != Unassigned
}

// Roster is the local mirror of the remote fleet.
type Roster struct {
	FleetID          int64          `json:"fleet_id"`
	Motd             string         `json:"motd"`
	Members          []Member       `json:"members"`
	Tree             Tree           `json:"tree"`
	Composition      map[string]int `json:"composition"`
	CompositionClass map[string]int `json:"composition_class"`
}

// HistoryEntry is a snapshot captured at refresh time.
type HistoryEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	FleetID     int64          `json:"fleet_id"`
	Main        *Member        `json:"main_member,omitempty"`
	Members     []Member       `json:"members"`
	Composition map[string]int `json:"composition"`
	Motd        string         `json:"motd"`
}

// LossRecord holds per-class attrition (members lost per minute).
type LossRecord struct {
	Timestamp time.Time          `json:"timestamp"`
	Loss      map[string]float64 `json:"loss"`
}

// MoveDirective asks the remote service to place a member.
type MoveDirective struct {
	CharacterID int64 `json:"character_id"`
	Role        Role  `json:"role"`
	SquadID     int64 `json:"squad_id"`
	WingID      int64 `json:"wing_id"`
}

// InviteDirective asks the remote service to invite a character. Zero
// SquadID/WingID lets the remote side choose the placement.
type InviteDirective struct {
	CharacterID int64 `json:"character_id"`
	Role        Role  `json:"role"`
	SquadID     int64 `json:"squad_id,omitempty"`
	WingID      int64 `json:"wing_id,omitempty"`
}

// FindMember returns the member with the given character id.
func FindMember(members []Member, id int64) (Member, bool) {
	for _, m := range members {
		if m.CharacterID == id {
			return m, true
		}
	}
	return Member{}, false
}
