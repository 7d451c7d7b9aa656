package team

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/policy"
	"github.com/splax/teamhub/internal/repository"
)

// AddMemberInput describes an invitation.
type AddMemberInput struct {
	TeamID       string
	ActingUserID string
	Emails       []string
	Role         string
}

// Invitation is the effective result of AddMember. Skipped holds emails with
// no matching user and emails of users who were already members.
type Invitation struct {
	Invited []string `json:"invited"`
	Skipped []string `json:"skipped"`
}

// AddMember adds the users behind in.Emails to the team with in.Role and
// mirrors the membership on each user. Invite messages go out only after
// every step applied.
func (s Service) AddMember(ctx context.Context, in AddMemberInput) (inv *Invitation, err error) {
	defer func() { s.metrics.observe(opAddMember, err) }()

	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if !policy.Grantable(role) {
		return nil, fmt.Errorf("%w: role %s cannot be granted", ErrForbidden, role)
	}
	emails := normalizeEmails(in.Emails)
	if len(emails) == 0 {
		return nil, invalid("at least one email is required")
	}

	team, err := s.loadTeam(ctx, in.TeamID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFoundOrForbidden
		}
		return nil, err
	}
	actor, ok := team.Member(in.ActingUserID)
	if !ok || !policy.Authorize(team, in.ActingUserID, policy.InviteRoles...) {
		return nil, ErrNotFoundOrForbidden
	}

	var users []domain.User
	if err := s.store.Find(ctx, repository.CollectionUsers, repository.Filter{InFold: map[string][]string{"email": emails}}, &users); err != nil {
		return nil, fmt.Errorf("resolve emails: %w", err)
	}
	byEmail := make(map[string]domain.User, len(users))
	for _, u := range users {
		byEmail[strings.ToLower(u.Email)] = u
	}

	inv = &Invitation{Invited: []string{}, Skipped: []string{}}
	invitees := make([]domain.MemberRef, 0, len(emails))
	for _, email := range emails {
		u, found := byEmail[strings.ToLower(email)]
		if !found {
			inv.Skipped = append(inv.Skipped, email)
			continue
		}
		if _, member := team.Member(u.ID); member || slices.ContainsFunc(invitees, func(m domain.MemberRef) bool { return m.ID == u.ID }) {
			inv.Skipped = append(inv.Skipped, email)
			continue
		}
		invitees = append(invitees, domain.MemberRef{ID: u.ID, Username: u.Username, Email: u.Email, Role: role})
	}
	if len(invitees) == 0 {
		return inv, nil
	}

	var p plan
	for _, m := range invitees {
		p.add(m.ID, repository.Step{
			Collection: repository.CollectionTeams,
			Filter:     repository.ByID(team.ID).WithoutElem("members", m.ID),
			Mutation:   repository.PushElem("members", m),
		})
	}
	for _, m := range invitees {
		p.add(m.ID, mirrorPush(team, m))
	}
	if err := s.stage(ctx, opAddMember, team.ID, &p); err != nil {
		return nil, err
	}

	for _, m := range invitees {
		inv.Invited = append(inv.Invited, m.ID)
	}
	s.log.Audit("members added", "team_id", team.ID, "acting_user_id", actor.ID, "role", role, "invited", inv.Invited)
	s.sendInvites(ctx, team, actor, invitees)
	return inv, nil
}

func (s Service) sendInvites(ctx context.Context, team *domain.Team, actor domain.MemberRef, invitees []domain.MemberRef) {
	sender := firstNonEmpty(actor.Username, actor.Email, actor.ID)
	for _, m := range invitees {
		msg := domain.Message{
			ID:         s.newID(),
			Category:   domain.MessageCategoryInvite,
			Content:    fmt.Sprintf("%s invited you to join %s.", sender, team.Name),
			SenderID:   actor.ID,
			ReceiverID: m.ID,
			TeamID:     team.ID,
			CreatedAt:  s.now(),
		}
		if err := s.sink.Notify(ctx, msg); err != nil {
			s.log.Warn("invite notification failed", "team_id", team.ID, "receiver_id", m.ID, "error", err)
		}
	}
}

// RemoveMember removes targetUserID from the team and from the user's team
// list. Any member may remove themselves; removing someone else takes owner
// or manager.
func (s Service) RemoveMember(ctx context.Context, teamID, actingUserID, targetUserID string) (err error) {
	defer func() { s.metrics.observe(opRemoveMember, err) }()

	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFoundOrForbidden
		}
		return err
	}
	targetUserID = strings.TrimSpace(targetUserID)
	required := policy.InviteRoles
	if targetUserID == actingUserID {
		required = nil
	}
	if !policy.Authorize(team, actingUserID, required...) {
		return ErrNotFoundOrForbidden
	}
	if _, ok := team.Member(targetUserID); !ok {
		return ErrNotFoundOrForbidden
	}

	var p plan
	p.add(targetUserID, repository.Step{
		Collection: repository.CollectionTeams,
		Filter:     repository.ByID(team.ID).WithElem("members", targetUserID),
		Mutation:   repository.PullElem("members", targetUserID),
	})
	p.add(targetUserID, mirrorPull(team.ID, targetUserID))
	if err := s.stage(ctx, opRemoveMember, team.ID, &p); err != nil {
		return err
	}

	s.log.Audit("member removed", "team_id", team.ID, "acting_user_id", actingUserID, "target_user_id", targetUserID)
	return nil
}

// normalizeEmails trims and drops case-insensitive duplicates, keeping the
// first-seen spelling. Matching against users ignores case.
func normalizeEmails(emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" || slices.ContainsFunc(out, func(seen string) bool { return strings.EqualFold(seen, e) }) {
			continue
		}
		out = append(out, e)
	}
	return out
}
