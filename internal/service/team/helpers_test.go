package team

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/repository/memory"
	"github.com/splax/teamhub/pkg/logger"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []domain.Message
	err  error
}

func (r *recordingSink) Notify(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingSink) messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.msgs...)
}

type fixture struct {
	store *memory.Store
	sink  *recordingSink
	svc   Service
}

func newFixture(t *testing.T, users ...domain.User) *fixture {
	t.Helper()
	store := memory.New()
	for _, u := range users {
		if err := store.Insert(context.Background(), repository.CollectionUsers, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	sink := &recordingSink{}
	svc := New(store, sink, logger.Nop(), nil)
	var seq int
	var mu sync.Mutex
	svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return &fixture{store: store, sink: sink, svc: svc}
}

func user(id string) domain.User {
	return domain.User{ID: id, Username: id, Email: id + "@example.com"}
}

func (f *fixture) createTeam(t *testing.T, name, creator string) *domain.Team {
	t.Helper()
	team, err := f.svc.CreateTeam(context.Background(), CreateInput{Name: name, CreatorID: creator})
	if err != nil {
		t.Fatalf("create team %s: %v", name, err)
	}
	return team
}

func (f *fixture) invite(t *testing.T, teamID, actor string, role domain.Role, users ...string) *Invitation {
	t.Helper()
	emails := make([]string, 0, len(users))
	for _, u := range users {
		emails = append(emails, u+"@example.com")
	}
	inv, err := f.svc.AddMember(context.Background(), AddMemberInput{
		TeamID:       teamID,
		ActingUserID: actor,
		Emails:       emails,
		Role:         string(role),
	})
	if err != nil {
		t.Fatalf("invite %v to %s: %v", users, teamID, err)
	}
	return inv
}

func (f *fixture) team(t *testing.T, id string) (domain.Team, bool) {
	t.Helper()
	var team domain.Team
	err := f.store.FindOne(context.Background(), repository.CollectionTeams, repository.ByID(id), &team)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Team{}, false
	}
	if err != nil {
		t.Fatalf("load team %s: %v", id, err)
	}
	return team, true
}

func (f *fixture) user(t *testing.T, id string) domain.User {
	t.Helper()
	var u domain.User
	if err := f.store.FindOne(context.Background(), repository.CollectionUsers, repository.ByID(id), &u); err != nil {
		t.Fatalf("load user %s: %v", id, err)
	}
	return u
}

// assertMirrored checks that every member of the team holds a TeamRef with
// the same role, that member ids are unique, and that no non-member holds
// a TeamRef to the team.
func (f *fixture) assertMirrored(t *testing.T, teamID string) {
	t.Helper()
	team, ok := f.team(t, teamID)
	if !ok {
		t.Fatalf("team %s missing", teamID)
	}
	seen := make(map[string]bool)
	for _, m := range team.Members {
		if seen[m.ID] {
			t.Fatalf("duplicate member %s in team %s", m.ID, teamID)
		}
		seen[m.ID] = true
		ref, ok := f.user(t, m.ID).TeamRef(teamID)
		if !ok {
			t.Fatalf("member %s has no TeamRef for %s", m.ID, teamID)
		}
		if ref.Role != m.Role {
			t.Fatalf("member %s role %s mirrored as %s", m.ID, m.Role, ref.Role)
		}
	}
	var holders []domain.User
	if err := f.store.Find(context.Background(), repository.CollectionUsers, repository.Filter{}.WithElem("teams", teamID), &holders); err != nil {
		t.Fatalf("find holders: %v", err)
	}
	for _, u := range holders {
		if !seen[u.ID] {
			t.Fatalf("user %s holds a TeamRef for %s without membership", u.ID, teamID)
		}
	}
}

func memberIDs(members []domain.MemberRef) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

// hookedStore runs hooks at fixed points of the engine's store traffic so
// tests can interleave other writes deterministically.
type hookedStore struct {
	*memory.Store
	beforeStage    func()
	beforeTeamLoad func()
}

func (h *hookedStore) RunStaged(ctx context.Context, steps []repository.Step) error {
	if hook := h.beforeStage; hook != nil {
		h.beforeStage = nil
		hook()
	}
	return h.Store.RunStaged(ctx, steps)
}

func (h *hookedStore) FindOne(ctx context.Context, collection string, filter repository.Filter, out any) error {
	if hook := h.beforeTeamLoad; hook != nil && collection == repository.CollectionTeams && filter.ID != "" {
		h.beforeTeamLoad = nil
		hook()
	}
	return h.Store.FindOne(ctx, collection, filter, out)
}
