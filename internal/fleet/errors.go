package fleet

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyTree is returned when an operation needs the hierarchy before
	// the first successful tree build.
	ErrEmptyTree = errors.New("fleet tree is empty")
	// ErrOutOfRange is returned for random access outside the valid range.
	ErrOutOfRange = errors.New("index out of range")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RemoteCallError wraps a transport failure or non-2xx response from a
// remote collaborator.
type RemoteCallError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteCallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }

// BatchError is returned when every item of an invite or kick batch failed.
type BatchError struct {
	Op     string
	Failed int
	Errs   []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: all %d items failed: %s", e.Op, e.Failed, strings.Join(msgs, "; "))
}

func (e *BatchError) Unwrap() []error { return e.Errs }

// ValidatePlacement checks the role/placement rules of the fleet-control
// protocol. Zero ids count as "not set".
func ValidatePlacement(role Role, squadID, wingID int64) error {
	hasSquad := squadID > 0
	hasWing := wingID > 0
	switch role {
	case RoleFleetCommander:
		if hasSquad || hasWing {
			return Invalid("placement", "fleet_commander takes neither squad nor wing")
		}
	case RoleWingCommander:
		if !hasWing || hasSquad {
			return Invalid("placement", "wing_commander takes a wing only")
		}
	case RoleSquadCommander, RoleSquadMember:
		if !hasSquad || !hasWing {
			return Invalid("placement", "%s requires squad and wing", role)
		}
	default:
		return Invalid("role", "unknown role %q", role)
	}
	return nil
}
