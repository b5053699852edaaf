package fleet

import "context"

// Service is the remote fleet-control surface.
type Service interface {
	Members(ctx context.Context, fleetID int64) ([]Member, error)
	Motd(ctx context.Context, fleetID int64) (string, error)
	PutMotd(ctx context.Context, fleetID int64, motd string, freeMove bool) error
	Wings(ctx context.Context, fleetID int64) ([]Wing, error)
	CreateWing(ctx context.Context, fleetID int64) (int64, error)
	CreateSquad(ctx context.Context, fleetID, wingID int64) (int64, error)
	MoveMember(ctx context.Context, fleetID int64, d MoveDirective) error
	InviteMember(ctx context.Context, fleetID int64, d InviteDirective) error
	KickMember(ctx context.Context, fleetID, characterID int64) error
}

// ValidateInvite checks an invite directive. A squad_member invite may
// leave the placement to the remote side; any explicit placement must
// follow the move rules.
func ValidateInvite(d InviteDirective) error {
	if d.CharacterID <= 0 {
		return Invalid("character_id", "must be positive, got %d", d.CharacterID)
	}
	if d.Role == RoleSquadMember && d.SquadID == 0 && d.WingID == 0 {
		return nil
	}
	return ValidatePlacement(d.Role, d.SquadID, d.WingID)
}

// ValidateMove checks a move directive.
func ValidateMove(d MoveDirective) error {
	if d.CharacterID <= 0 {
		return Invalid("character_id", "must be positive, got %d", d.CharacterID)
	}
	if d.SquadID == Unassigned || d.WingID == Unassigned {
		return Invalid("placement", "unassigned sentinel cannot be a move target")
	}
	return ValidatePlacement(d.Role, d.SquadID, d.WingID)
}
