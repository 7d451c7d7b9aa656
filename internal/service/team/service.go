package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/notify"
	"github.com/splax/teamhub/internal/policy"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/pkg/logger"
)

// Service keeps Team.Members and User.Teams in step. It holds no mutable
// state of its own; everything shared lives in the store.
type Service struct {
	store   repository.Store
	sink    notify.Sink
	log     *logger.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

// New constructs a Service. A nil sink discards notifications and nil
// metrics record nothing.
func New(store repository.Store, sink notify.Sink, log *logger.Logger, metrics *Metrics) Service {
	if sink == nil {
		sink = notify.Discard
	}
	if log == nil {
		log = logger.Nop()
	}
	return Service{
		store:   store,
		sink:    sink,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// CreateInput describes a new team and its creator.
type CreateInput struct {
	Name            string
	Icon            string
	CreatorID       string
	CreatorUsername string
	CreatorEmail    string
}

// CreateTeam creates a team whose only member is its creator, as owner.
// The name check is not locked: two concurrent creates with one name may
// both succeed unless the store enforces a unique index.
func (s Service) CreateTeam(ctx context.Context, in CreateInput) (team *domain.Team, err error) {
	defer func() { s.metrics.observe(opCreateTeam, err) }()

	name := strings.TrimSpace(in.Name)
	creatorID := strings.TrimSpace(in.CreatorID)
	if name == "" {
		return nil, invalid("team name is required")
	}
	if creatorID == "" {
		return nil, invalid("creator id is required")
	}

	var existing domain.Team
	switch err := s.store.FindOne(ctx, repository.CollectionTeams, repository.ByField("name", name), &existing); {
	case err == nil:
		return nil, ErrConflict
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("check team name: %w", err)
	}

	var creator domain.User
	if err := s.store.FindOne(ctx, repository.CollectionUsers, repository.ByID(creatorID), &creator); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid("creator %s is not a known user", creatorID)
		}
		return nil, fmt.Errorf("load creator: %w", err)
	}

	owner := domain.MemberRef{
		ID:       creatorID,
		Username: firstNonEmpty(creator.Username, in.CreatorUsername),
		Email:    firstNonEmpty(creator.Email, in.CreatorEmail),
		Role:     domain.RoleOwner,
	}
	team = &domain.Team{
		ID:        s.newID(),
		Name:      name,
		Icon:      strings.TrimSpace(in.Icon),
		CreatorID: creatorID,
		Members:   []domain.MemberRef{owner},
		CreatedAt: s.now(),
	}

	var p plan
	p.add(creatorID, repository.Step{
		Collection: repository.CollectionTeams,
		Mutation:   repository.InsertDoc(team),
	})
	p.add(creatorID, mirrorPush(team, owner))

	if err := s.stage(ctx, opCreateTeam, team.ID, &p); err != nil {
		var pf *PartialFailureError
		if !errors.As(err, &pf) && errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.log.Audit("team created", "team_id", team.ID, "name", team.Name, "creator_id", creatorID)
	return team, nil
}

// DissolveTeam deletes an empty team. Only an owner who is still a member or
// the creator may ask; either gets ErrNonEmptyTeam while members remain, so
// owners remove themselves and the rest first. The delete itself is allowed
// to the creator only.
func (s Service) DissolveTeam(ctx context.Context, teamID, actingUserID string) (err error) {
	defer func() { s.metrics.observe(opDissolveTeam, err) }()

	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFoundOrForbidden
		}
		return err
	}
	if policy.Authorize(team, actingUserID, policy.DissolveRoles...) {
		return ErrNonEmptyTeam
	}
	if actingUserID == "" || team.CreatorID != actingUserID {
		return ErrNotFoundOrForbidden
	}
	if len(team.Members) > 0 {
		return ErrNonEmptyTeam
	}

	guard := repository.Filter{
		ID:    team.ID,
		Equal: map[string]string{"creatorId": actingUserID},
		Empty: "members",
	}
	deleted, err := s.store.DeleteOne(ctx, repository.CollectionTeams, guard)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if !deleted {
		return ErrNonEmptyTeam
	}

	s.log.Audit("team dissolved", "team_id", team.ID, "acting_user_id", actingUserID)
	return nil
}

// GetMembers returns the team's members in invite order. Visibility is not
// restricted here; callers that need it enforce it above the engine.
func (s Service) GetMembers(ctx context.Context, teamID string) (members []domain.MemberRef, err error) {
	defer func() { s.metrics.observe(opGetMembers, err) }()

	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.Members == nil {
		return []domain.MemberRef{}, nil
	}
	return team.Members, nil
}

// ListUserTeams returns the user-side mirror of the user's memberships.
func (s Service) ListUserTeams(ctx context.Context, userID string) (teams []domain.TeamRef, err error) {
	defer func() { s.metrics.observe(opListUserTeams, err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrNotFound
	}
	var user domain.User
	if err := s.store.FindOne(ctx, repository.CollectionUsers, repository.ByID(userID), &user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Teams == nil {
		return []domain.TeamRef{}, nil
	}
	return user.Teams, nil
}

func (s Service) loadTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, ErrNotFound
	}
	var team domain.Team
	if err := s.store.FindOne(ctx, repository.CollectionTeams, repository.ByID(teamID), &team); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load team: %w", err)
	}
	return &team, nil
}

// mirrorPush adds the member's TeamRef unless the user already holds one.
func mirrorPush(team *domain.Team, m domain.MemberRef) repository.Step {
	return repository.Step{
		Collection: repository.CollectionUsers,
		Filter:     repository.ByID(m.ID).WithoutElem("teams", team.ID),
		Mutation:   repository.PushElem("teams", team.Ref(m.Role)),
	}
}

// mirrorPull removes the team's TeamRef from userID, keyed on both ids.
func mirrorPull(teamID, userID string) repository.Step {
	return repository.Step{
		Collection: repository.CollectionUsers,
		Filter:     repository.ByID(userID).WithElem("teams", teamID),
		Mutation:   repository.PullElem("teams", teamID),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
