// Package memory implements the repository store in process memory. It backs
// local development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/repository/document"
)

// StepHook may fail a staged step before it is applied.
type StepHook func(index int, step repository.Step) error

// Store keeps collections as ordered document slices.
type Store struct {
	mu          sync.Mutex
	collections map[string][]bson.M
	failStep    StepHook
}

var _ repository.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{collections: make(map[string][]bson.M)}
}

// FailStep installs a hook consulted before every staged step. Pass nil to clear it.
func (s *Store) FailStep(hook StepHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStep = hook
}

// FindOne decodes the first matching document into out.
func (s *Store) FindOne(ctx context.Context, collection string, filter repository.Filter, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	idx := s.indexOf(collection, filter)
	var doc bson.M
	if idx >= 0 {
		doc = s.collections[collection][idx]
	}
	s.mu.Unlock()
	if doc == nil {
		return repository.ErrNotFound
	}
	return document.Decode(doc, out)
}

// Find decodes every matching document into out.
func (s *Store) Find(ctx context.Context, collection string, filter repository.Filter, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	matched := make([]bson.M, 0)
	for _, doc := range s.collections[collection] {
		if document.Match(doc, filter) {
			matched = append(matched, doc)
		}
	}
	s.mu.Unlock()
	return document.DecodeAll(matched, out)
}

// Insert stores a copy of doc.
func (s *Store) Insert(ctx context.Context, collection string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(collection, doc)
}

// DeleteOne removes the first matching document.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter repository.Filter) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteOne(collection, filter), nil
}

// RunStaged applies steps one at a time. Other callers may interleave
// between steps.
func (s *Store) RunStaged(ctx context.Context, steps []repository.Step) error {
	return repository.RunSteps(ctx, steps, s.applyStep)
}

func (s *Store) applyStep(_ context.Context, index int, step repository.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStep != nil {
		if err := s.failStep(index, step); err != nil {
			return err
		}
	}
	switch step.Mutation.Kind {
	case repository.MutationInsert:
		return s.insert(step.Collection, step.Mutation.Doc)
	case repository.MutationDelete:
		s.deleteOne(step.Collection, step.Filter)
		return nil
	case repository.MutationPush, repository.MutationPull:
		idx := s.indexOf(step.Collection, step.Filter)
		if idx < 0 {
			if step.Mutation.Kind == repository.MutationPush && step.Filter.ID != "" &&
				s.indexOf(step.Collection, repository.ByID(step.Filter.ID)) < 0 {
				return repository.MissingDocument(step.Collection, step.Filter.ID)
			}
			return nil
		}
		docs := s.collections[step.Collection]
		updated, err := document.Apply(docs[idx], step.Mutation)
		if err != nil {
			return err
		}
		docs[idx] = updated
		return nil
	}
	return fmt.Errorf("memory: unsupported mutation %s", step.Mutation.Kind)
}

func (s *Store) insert(collection string, doc any) error {
	m, err := document.Encode(doc)
	if err != nil {
		return err
	}
	id := document.ID(m)
	if id == "" {
		return fmt.Errorf("memory: document in %s has no %s", collection, document.IDField)
	}
	if s.indexOf(collection, repository.ByID(id)) >= 0 {
		return fmt.Errorf("%w: %s/%s", repository.ErrDuplicate, collection, id)
	}
	s.collections[collection] = append(s.collections[collection], m)
	return nil
}

func (s *Store) deleteOne(collection string, filter repository.Filter) bool {
	idx := s.indexOf(collection, filter)
	if idx < 0 {
		return false
	}
	docs := s.collections[collection]
	s.collections[collection] = append(docs[:idx:idx], docs[idx+1:]...)
	return true
}

func (s *Store) indexOf(collection string, filter repository.Filter) int {
	for i, doc := range s.collections[collection] {
		if document.Match(doc, filter) {
			return i
		}
	}
	return -1
}
