package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
)

func TestInsertFindAndDuplicate(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.Insert(ctx, repository.CollectionUsers, domain.User{ID: "u-1", Email: "ada@example.com"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := store.Insert(ctx, repository.CollectionUsers, domain.User{ID: "u-1"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	var user domain.User
	if err := store.FindOne(ctx, repository.CollectionUsers, repository.ByField("email", "ada@example.com"), &user); err != nil {
		t.Fatalf("find one: %v", err)
	}
	if user.ID != "u-1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if err := store.FindOne(ctx, repository.CollectionUsers, repository.ByID("u-2"), &user); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var all []domain.User
	if err := store.Find(ctx, repository.CollectionUsers, repository.Filter{}, &all); err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 user, got %d", len(all))
	}
}

func TestReturnedDocumentsAreDetached(t *testing.T) {
	ctx := context.Background()
	store := New()
	team := domain.Team{ID: "t-1", Members: []domain.MemberRef{{ID: "u-1"}}}
	if err := store.Insert(ctx, repository.CollectionTeams, team); err != nil {
		t.Fatalf("insert: %v", err)
	}
	team.Members[0].ID = "changed"

	var got domain.Team
	if err := store.FindOne(ctx, repository.CollectionTeams, repository.ByID("t-1"), &got); err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Members[0].ID != "u-1" {
		t.Fatalf("stored document changed through caller value")
	}
}

func TestRunStagedAppliesStepsInOrder(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.Insert(ctx, repository.CollectionUsers, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	team := domain.Team{ID: "t-1", Name: "Alpha", Members: []domain.MemberRef{{ID: "u-1", Role: domain.RoleOwner}}}
	steps := []repository.Step{
		{Collection: repository.CollectionTeams, Mutation: repository.InsertDoc(team)},
		{
			Collection: repository.CollectionUsers,
			Filter:     repository.ByID("u-1").WithoutElem("teams", "t-1"),
			Mutation:   repository.PushElem("teams", team.Ref(domain.RoleOwner)),
		},
	}
	if err := store.RunStaged(ctx, steps); err != nil {
		t.Fatalf("run staged: %v", err)
	}
	// the push is guarded, so repeating it is a no-op
	if err := store.RunStaged(ctx, steps[1:]); err != nil {
		t.Fatalf("rerun push: %v", err)
	}

	var user domain.User
	if err := store.FindOne(ctx, repository.CollectionUsers, repository.ByID("u-1"), &user); err != nil {
		t.Fatalf("find user: %v", err)
	}
	if len(user.Teams) != 1 || user.Teams[0].ID != "t-1" {
		t.Fatalf("unexpected user teams: %+v", user.Teams)
	}
}

func TestRunStagedStopsAtFailedStep(t *testing.T) {
	ctx := context.Background()
	store := New()
	boom := errors.New("boom")
	store.FailStep(func(index int, _ repository.Step) error {
		if index == 1 {
			return boom
		}
		return nil
	})
	steps := []repository.Step{
		{Collection: repository.CollectionTeams, Mutation: repository.InsertDoc(domain.Team{ID: "t-1"})},
		{Collection: repository.CollectionTeams, Mutation: repository.InsertDoc(domain.Team{ID: "t-2"})},
		{Collection: repository.CollectionTeams, Mutation: repository.InsertDoc(domain.Team{ID: "t-3"})},
	}
	err := store.RunStaged(ctx, steps)
	var stageErr *repository.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if stageErr.FailedStep != 1 || len(stageErr.Applied) != 1 || stageErr.Applied[0] != 0 {
		t.Fatalf("unexpected stage error: %+v", stageErr)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause to unwrap")
	}

	var teams []domain.Team
	if err := store.Find(ctx, repository.CollectionTeams, repository.Filter{}, &teams); err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(teams) != 1 || teams[0].ID != "t-1" {
		t.Fatalf("applied steps must stay applied: %+v", teams)
	}
}

func TestRunStagedPushToMissingDocumentFails(t *testing.T) {
	ctx := context.Background()
	store := New()
	team := domain.Team{ID: "t-1"}
	steps := []repository.Step{
		{Collection: repository.CollectionTeams, Mutation: repository.InsertDoc(team)},
		{
			Collection: repository.CollectionUsers,
			Filter:     repository.ByID("gone").WithoutElem("teams", "t-1"),
			Mutation:   repository.PushElem("teams", team.Ref(domain.RoleOwner)),
		},
	}
	err := store.RunStaged(ctx, steps)
	var stageErr *repository.StageError
	if !errors.As(err, &stageErr) || stageErr.FailedStep != 1 {
		t.Fatalf("expected step 1 to fail, got %v", err)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound cause, got %v", err)
	}

	pull := []repository.Step{{
		Collection: repository.CollectionUsers,
		Filter:     repository.ByID("gone").WithElem("teams", "t-1"),
		Mutation:   repository.PullElem("teams", "t-1"),
	}}
	if err := store.RunStaged(ctx, pull); err != nil {
		t.Fatalf("pull from a missing document must be a no-op: %v", err)
	}
}

func TestRunStagedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := New()
	store.FailStep(func(index int, _ repository.Step) error {
		if index == 0 {
			cancel()
		}
		return nil
	})
	steps := []repository.Step{
		{Collection: repository.CollectionTeams, Mutation: repository.InsertDoc(domain.Team{ID: "t-1"})},
		{Collection: repository.CollectionTeams, Mutation: repository.InsertDoc(domain.Team{ID: "t-2"})},
	}
	err := store.RunStaged(ctx, steps)
	var stageErr *repository.StageError
	if !errors.As(err, &stageErr) || stageErr.FailedStep != 1 {
		t.Fatalf("expected failure at step 1, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled cause, got %v", err)
	}
}

func TestDeleteOneHonoursEmptyGuard(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.Insert(ctx, repository.CollectionTeams, domain.Team{ID: "t-1", Members: []domain.MemberRef{{ID: "u-1"}}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	guard := repository.Filter{ID: "t-1", Empty: "members"}
	deleted, err := store.DeleteOne(ctx, repository.CollectionTeams, guard)
	if err != nil || deleted {
		t.Fatalf("expected guarded delete to skip, got %v %v", deleted, err)
	}
	if err := store.RunStaged(ctx, []repository.Step{{
		Collection: repository.CollectionTeams,
		Filter:     repository.ByID("t-1"),
		Mutation:   repository.PullElem("members", "u-1"),
	}}); err != nil {
		t.Fatalf("pull: %v", err)
	}
	deleted, err = store.DeleteOne(ctx, repository.CollectionTeams, guard)
	if err != nil || !deleted {
		t.Fatalf("expected delete, got %v %v", deleted, err)
	}
}
