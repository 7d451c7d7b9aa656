package team

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/splax/teamhub/internal/repository"
)

// plan is a staged write plus the user each step mirrors.
type plan struct {
	steps []repository.Step
	users []string
}

func (p *plan) add(userID string, step repository.Step) {
	p.steps = append(p.steps, step)
	p.users = append(p.users, userID)
}

func (p *plan) empty() bool { return len(p.steps) == 0 }

// split partitions the plan's users by whether all of their steps ran
// before failed.
func (p *plan) split(failed int) (mirrored, unmirrored []string) {
	pending := make(map[string]bool)
	for i, u := range p.users {
		if i >= failed {
			pending[u] = true
		}
	}
	mirrored, unmirrored = []string{}, []string{}
	for _, u := range p.users {
		if pending[u] {
			if !slices.Contains(unmirrored, u) {
				unmirrored = append(unmirrored, u)
			}
			continue
		}
		if !slices.Contains(mirrored, u) {
			mirrored = append(mirrored, u)
		}
	}
	return mirrored, unmirrored
}

// stage runs p. A failure before anything was applied comes back wrapped; a
// failure after some steps were applied comes back as *PartialFailureError.
func (s Service) stage(ctx context.Context, op, teamID string, p *plan) error {
	err := s.store.RunStaged(ctx, p.steps)
	if err == nil {
		return nil
	}
	var stageErr *repository.StageError
	if !errors.As(err, &stageErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(stageErr.Applied) == 0 {
		return fmt.Errorf("%s: %w", op, stageErr.Cause)
	}
	mirrored, unmirrored := p.split(stageErr.FailedStep)
	pf := &PartialFailureError{
		Op:         op,
		TeamID:     teamID,
		FailedStep: stageErr.FailedStep,
		Applied:    stageErr.Applied,
		Mirrored:   mirrored,
		Unmirrored: unmirrored,
		Cause:      stageErr.Cause,
	}
	s.log.Error("staged write partially applied",
		"op", op,
		"team_id", teamID,
		"failed_step", pf.FailedStep,
		"applied", pf.Applied,
		"unmirrored", pf.Unmirrored,
		"error", pf.Cause,
	)
	return pf
}
