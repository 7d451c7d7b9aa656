package team

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict reports a team name that is already taken.
	ErrConflict = errors.New("team name already exists")
	// ErrNotFound reports a missing team or user on read paths.
	ErrNotFound = errors.New("not found")
	// ErrNotFoundOrForbidden merges "no such team" with "not allowed" so that
	// callers cannot probe for team existence.
	ErrNotFoundOrForbidden = errors.New("team not found or action forbidden")
	// ErrForbidden reports a role that may not be granted.
	ErrForbidden = errors.New("forbidden")
	// ErrNonEmptyTeam reports a dissolve attempt on a team that still has members.
	ErrNonEmptyTeam = errors.New("team still has members")
	// ErrValidation reports malformed input.
	ErrValidation = errors.New("invalid input")
	// ErrPartialFailure matches every *PartialFailureError.
	ErrPartialFailure = errors.New("staged write partially applied")
)

// PartialFailureError reports a staged write that stopped after some steps
// were applied. Applied steps stay applied until reconciled.
type PartialFailureError struct {
	Op         string   `json:"op"`
	TeamID     string   `json:"team_id"`
	FailedStep int      `json:"failed_step"`
	Applied    []int    `json:"applied_steps"`
	Mirrored   []string `json:"mirrored"`
	Unmirrored []string `json:"unmirrored"`
	Cause      error    `json:"-"`
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s on team %s partially applied: step %d failed after %v (unmirrored users %v): %v",
		e.Op, e.TeamID, e.FailedStep, e.Applied, e.Unmirrored, e.Cause)
}

// Is matches ErrPartialFailure.
func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

func (e *PartialFailureError) Unwrap() error { return e.Cause }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
