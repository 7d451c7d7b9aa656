package team

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/pkg/logger"
)

func TestCreateTeamMakesCreatorOwnerAndMirrorsIt(t *testing.T) {
	f := newFixture(t, user("u1"))

	team, err := f.svc.CreateTeam(context.Background(), CreateInput{
		Name:            "  Alpha ",
		Icon:            "alpha.png",
		CreatorID:       "u1",
		CreatorUsername: "Ada",
		CreatorEmail:    "ADA@example.com",
	})
	if err != nil {
		t.Fatalf("CreateTeam returned error: %v", err)
	}
	if team.Name != "Alpha" || team.CreatorID != "u1" || team.ID == "" {
		t.Fatalf("unexpected team: %+v", team)
	}
	if len(team.Members) != 1 {
		t.Fatalf("expected exactly one member, got %d", len(team.Members))
	}
	owner := team.Members[0]
	if owner.ID != "u1" || owner.Role != domain.RoleOwner || owner.Username != "Ada" || owner.Email != "ada@example.com" {
		t.Fatalf("unexpected owner: %+v", owner)
	}

	ref, ok := f.user(t, "u1").TeamRef(team.ID)
	if !ok {
		t.Fatalf("creator has no TeamRef")
	}
	if ref != (domain.TeamRef{ID: team.ID, Name: "Alpha", Icon: "alpha.png", Role: domain.RoleOwner}) {
		t.Fatalf("unexpected TeamRef: %+v", ref)
	}
	f.assertMirrored(t, team.ID)
}

func TestCreateTeamSnapshotsUserWhenInputOmitsIt(t *testing.T) {
	f := newFixture(t, domain.User{ID: "u1", Username: "ada", Email: "ada@example.com"})
	team := f.createTeam(t, "Alpha", "u1")
	if m := team.Members[0]; m.Username != "ada" || m.Email != "ada@example.com" {
		t.Fatalf("expected user snapshot, got %+v", m)
	}
}

func TestCreateTeamRejectsDuplicateName(t *testing.T) {
	f := newFixture(t, user("u1"), user("u2"))
	f.createTeam(t, "Alpha", "u1")

	_, err := f.svc.CreateTeam(context.Background(), CreateInput{Name: "Alpha", CreatorID: "u2"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var teams []domain.Team
	if err := f.store.Find(context.Background(), repository.CollectionTeams, repository.Filter{}, &teams); err != nil {
		t.Fatalf("find teams: %v", err)
	}
	if len(teams) != 1 {
		t.Fatalf("expected no new team, got %d teams", len(teams))
	}
	if refs := f.user(t, "u2").Teams; len(refs) != 0 {
		t.Fatalf("u2 must not be mirrored: %+v", refs)
	}
}

func TestCreateTeamValidation(t *testing.T) {
	f := newFixture(t, user("u1"))
	cases := []CreateInput{
		{Name: " ", CreatorID: "u1"},
		{Name: "Alpha", CreatorID: ""},
		{Name: "Alpha", CreatorID: "ghost"},
	}
	for _, in := range cases {
		if _, err := f.svc.CreateTeam(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("CreateTeam(%+v): expected ErrValidation, got %v", in, err)
		}
	}
}

func TestCreateTeamDuplicateKeyOnInsertIsConflict(t *testing.T) {
	f := newFixture(t, user("u1"))
	f.store.FailStep(func(index int, _ repository.Step) error {
		if index == 0 {
			return repository.ErrDuplicate
		}
		return nil
	})
	if _, err := f.svc.CreateTeam(context.Background(), CreateInput{Name: "Alpha", CreatorID: "u1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateTeamInsertFailureCreatesNothing(t *testing.T) {
	f := newFixture(t, user("u1"))
	boom := errors.New("store down")
	f.store.FailStep(func(index int, _ repository.Step) error {
		if index == 0 {
			return boom
		}
		return nil
	})
	_, err := f.svc.CreateTeam(context.Background(), CreateInput{Name: "Alpha", CreatorID: "u1"})
	if !errors.Is(err, boom) || errors.Is(err, ErrPartialFailure) {
		t.Fatalf("expected plain wrapped failure, got %v", err)
	}
	if _, ok := f.team(t, "id-1"); ok {
		t.Fatalf("team must not exist")
	}
}

func TestCreateTeamMirrorFailureIsPartial(t *testing.T) {
	f := newFixture(t, user("u1"))
	boom := errors.New("users collection unavailable")
	f.store.FailStep(func(index int, _ repository.Step) error {
		if index == 1 {
			return boom
		}
		return nil
	})

	team, err := f.svc.CreateTeam(context.Background(), CreateInput{Name: "Alpha", CreatorID: "u1"})
	if team != nil {
		t.Fatalf("partial failure must not report a team")
	}
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if !errors.Is(err, ErrPartialFailure) || !errors.Is(err, boom) {
		t.Fatalf("partial failure should match sentinel and cause: %v", err)
	}
	if pf.Op != opCreateTeam || pf.TeamID != "id-1" || pf.FailedStep != 1 {
		t.Fatalf("unexpected partial failure: %+v", pf)
	}
	if len(pf.Unmirrored) != 1 || pf.Unmirrored[0] != "u1" || len(pf.Mirrored) != 0 {
		t.Fatalf("unexpected mirror sets: %+v", pf)
	}
	if _, ok := f.team(t, "id-1"); !ok {
		t.Fatalf("applied insert stays applied")
	}
	if len(f.user(t, "u1").Teams) != 0 {
		t.Fatalf("creator must not be mirrored")
	}
}

func TestCreateTeamCreatorDeletedMidWriteIsPartial(t *testing.T) {
	f := newFixture(t, user("c1"))
	store := &hookedStore{Store: f.store}
	store.beforeStage = func() {
		if _, err := f.store.DeleteOne(context.Background(), repository.CollectionUsers, repository.ByID("c1")); err != nil {
			t.Fatalf("delete creator: %v", err)
		}
	}
	svc := New(store, f.sink, logger.Nop(), nil)

	team, err := svc.CreateTeam(context.Background(), CreateInput{Name: "Gamma", CreatorID: "c1"})
	if team != nil {
		t.Fatalf("a team whose creator was never mirrored must not be reported: %+v", team)
	}
	var pf *PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("expected PartialFailureError, got %v", err)
	}
	if pf.FailedStep != 1 || !slices.Equal(pf.Unmirrored, []string{"c1"}) {
		t.Fatalf("unexpected partial failure: %+v", pf)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("cause should be the missing user document: %v", err)
	}
}

func TestDissolveTeamWithMembersIsRejected(t *testing.T) {
	f := newFixture(t, user("u1"), user("u2"))
	team := f.createTeam(t, "Alpha", "u1")
	f.invite(t, team.ID, "u1", domain.RoleGuest, "u2")

	if err := f.svc.DissolveTeam(context.Background(), team.ID, "u1"); !errors.Is(err, ErrNonEmptyTeam) {
		t.Fatalf("expected ErrNonEmptyTeam, got %v", err)
	}
	got, ok := f.team(t, team.ID)
	if !ok || len(got.Members) != 2 {
		t.Fatalf("team must be unchanged: %+v", got)
	}
}

func TestDissolveTeamHidesExistenceFromOthers(t *testing.T) {
	f := newFixture(t, user("u1"), user("u2"), user("u3"))
	team := f.createTeam(t, "Alpha", "u1")
	f.invite(t, team.ID, "u1", domain.RoleManager, "u2")

	for _, actor := range []string{"u2", "u3", ""} {
		if err := f.svc.DissolveTeam(context.Background(), team.ID, actor); !errors.Is(err, ErrNotFoundOrForbidden) {
			t.Fatalf("actor %q: expected ErrNotFoundOrForbidden, got %v", actor, err)
		}
	}
	if err := f.svc.DissolveTeam(context.Background(), "missing", "u1"); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("missing team: expected ErrNotFoundOrForbidden, got %v", err)
	}
}

func TestDissolveTeamTwoStepProtocol(t *testing.T) {
	f := newFixture(t, user("u1"), user("u2"))
	team := f.createTeam(t, "Alpha", "u1")
	f.invite(t, team.ID, "u1", domain.RoleGuest, "u2")
	ctx := context.Background()

	if err := f.svc.RemoveMember(ctx, team.ID, "u1", "u2"); err != nil {
		t.Fatalf("remove guest: %v", err)
	}
	if err := f.svc.RemoveMember(ctx, team.ID, "u1", "u1"); err != nil {
		t.Fatalf("owner self removal: %v", err)
	}
	if err := f.svc.DissolveTeam(ctx, team.ID, "u2"); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("non-creator on empty team: expected ErrNotFoundOrForbidden, got %v", err)
	}
	if err := f.svc.DissolveTeam(ctx, team.ID, "u1"); err != nil {
		t.Fatalf("dissolve: %v", err)
	}
	if _, ok := f.team(t, team.ID); ok {
		t.Fatalf("team should be deleted")
	}
	if err := f.svc.DissolveTeam(ctx, team.ID, "u1"); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("second dissolve: expected ErrNotFoundOrForbidden, got %v", err)
	}
}

func TestDissolveTeamCreatorAfterLeavingWithMembersLeft(t *testing.T) {
	f := newFixture(t, user("u1"), user("u2"))
	team := f.createTeam(t, "Alpha", "u1")
	f.invite(t, team.ID, "u1", domain.RoleGuest, "u2")
	ctx := context.Background()

	if err := f.svc.RemoveMember(ctx, team.ID, "u1", "u1"); err != nil {
		t.Fatalf("owner self removal: %v", err)
	}
	if err := f.svc.DissolveTeam(ctx, team.ID, "u1"); !errors.Is(err, ErrNonEmptyTeam) {
		t.Fatalf("expected ErrNonEmptyTeam, got %v", err)
	}
	if err := f.svc.DissolveTeam(ctx, team.ID, "u2"); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("guest: expected ErrNotFoundOrForbidden, got %v", err)
	}
	got, ok := f.team(t, team.ID)
	if !ok || !slices.Equal(memberIDs(got.Members), []string{"u2"}) {
		t.Fatalf("team must be unchanged: %+v", got)
	}
}

func TestGetMembers(t *testing.T) {
	f := newFixture(t, user("u1"), user("u2"))
	team := f.createTeam(t, "Alpha", "u1")
	f.invite(t, team.ID, "u1", domain.RoleGuest, "u2")

	members, err := f.svc.GetMembers(context.Background(), team.ID)
	if err != nil {
		t.Fatalf("GetMembers: %v", err)
	}
	if ids := memberIDs(members); len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
		t.Fatalf("unexpected members: %v", ids)
	}
	if _, err := f.svc.GetMembers(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUserTeams(t *testing.T) {
	f := newFixture(t, user("u1"), user("u2"))
	alpha := f.createTeam(t, "Alpha", "u1")
	beta := f.createTeam(t, "Beta", "u2")
	f.invite(t, beta.ID, "u2", domain.RoleManager, "u1")

	refs, err := f.svc.ListUserTeams(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListUserTeams: %v", err)
	}
	if len(refs) != 2 || refs[0].ID != alpha.ID || refs[1].ID != beta.ID || refs[1].Role != domain.RoleManager {
		t.Fatalf("unexpected refs: %+v", refs)
	}
	if _, err := f.svc.ListUserTeams(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
