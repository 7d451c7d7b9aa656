package team

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
)

// ReconcileReport lists the user-side repairs made for one team.
type ReconcileReport struct {
	TeamID   string   `json:"team_id"`
	Restored []string `json:"restored"`
	Pruned   []string `json:"pruned"`
	// Missing holds members whose user document does not exist.
	Missing []string `json:"missing"`
}

// Changed reports whether any repair was made.
func (r ReconcileReport) Changed() bool {
	return len(r.Restored) > 0 || len(r.Pruned) > 0
}

// Reconcile repairs the user-side mirror of teamID: members without a
// matching TeamRef get one, TeamRefs with a stale role are replaced, and
// TeamRefs held by non-members are pruned. When the team no longer exists
// every TeamRef pointing at it is pruned.
func (s Service) Reconcile(ctx context.Context, teamID string) (report *ReconcileReport, err error) {
	defer func() { s.metrics.observe(opReconcile, err) }()

	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, invalid("team id is required")
	}
	report = &ReconcileReport{TeamID: teamID, Restored: []string{}, Pruned: []string{}, Missing: []string{}}

	// Holders are read before the team. Writers touch the team before the
	// user, so a holder missing from the later team snapshot is stale.
	var holders []domain.User
	if err := s.store.Find(ctx, repository.CollectionUsers, repository.Filter{}.WithElem("teams", teamID), &holders); err != nil {
		return nil, fmt.Errorf("find team holders: %w", err)
	}

	team, err := s.loadTeam(ctx, teamID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var p plan
	if team != nil {
		memberIDs := make([]string, 0, len(team.Members))
		for _, m := range team.Members {
			memberIDs = append(memberIDs, m.ID)
		}
		var users []domain.User
		if len(memberIDs) > 0 {
			if err := s.store.Find(ctx, repository.CollectionUsers, repository.Filter{IDs: memberIDs}, &users); err != nil {
				return nil, fmt.Errorf("load members: %w", err)
			}
		}
		byID := make(map[string]domain.User, len(users))
		for _, u := range users {
			byID[u.ID] = u
		}
		for _, m := range team.Members {
			u, ok := byID[m.ID]
			if !ok {
				report.Missing = append(report.Missing, m.ID)
				continue
			}
			ref, has := u.TeamRef(teamID)
			if has && ref.Role == m.Role {
				continue
			}
			if has {
				p.add(m.ID, mirrorPull(teamID, m.ID))
			}
			p.add(m.ID, mirrorPush(team, m))
			report.Restored = append(report.Restored, m.ID)
		}
	}
	for _, u := range holders {
		if team != nil {
			if _, member := team.Member(u.ID); member {
				continue
			}
		}
		p.add(u.ID, mirrorPull(teamID, u.ID))
		report.Pruned = append(report.Pruned, u.ID)
	}

	if p.empty() {
		return report, nil
	}
	if err := s.stage(ctx, opReconcile, teamID, &p); err != nil {
		return nil, err
	}
	s.log.Audit("team mirror reconciled", "team_id", teamID, "restored", report.Restored, "pruned", report.Pruned, "missing", report.Missing)
	return report, nil
}

// ReconcileAll reconciles every team plus every team id still referenced
// from a user after the team itself is gone.
func (s Service) ReconcileAll(ctx context.Context) ([]ReconcileReport, error) {
	var teams []domain.Team
	if err := s.store.Find(ctx, repository.CollectionTeams, repository.Filter{}, &teams); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	ids := make([]string, 0, len(teams))
	for _, t := range teams {
		ids = append(ids, t.ID)
	}

	var users []domain.User
	if err := s.store.Find(ctx, repository.CollectionUsers, repository.Filter{}, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		for _, ref := range u.Teams {
			if !slices.Contains(ids, ref.ID) {
				ids = append(ids, ref.ID)
			}
		}
	}

	reports := make([]ReconcileReport, 0, len(ids))
	var errs []error
	for _, id := range ids {
		report, err := s.Reconcile(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", id, err))
			continue
		}
		reports = append(reports, *report)
	}
	return reports, errors.Join(errs...)
}
