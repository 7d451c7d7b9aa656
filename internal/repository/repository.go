package repository

import (
	"context"
	"fmt"
)

// Collections used by the membership engine.
const (
	CollectionTeams    = "teams"
	CollectionUsers    = "users"
	CollectionMessages = "messages"
)

// Store is a document store addressed by collection name. Documents are
// keyed by their "_id" field.
type Store interface {
	// FindOne decodes the first matching document into out or returns ErrNotFound.
	FindOne(ctx context.Context, collection string, filter Filter, out any) error
	// Find decodes all matching documents into out, which must point to a slice.
	Find(ctx context.Context, collection string, filter Filter, out any) error
	// Insert stores doc or returns ErrDuplicate when its key is taken.
	Insert(ctx context.Context, collection string, doc any) error
	// DeleteOne removes the first matching document and reports whether one was removed.
	DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error)
	// RunStaged applies steps in order; see RunSteps.
	RunStaged(ctx context.Context, steps []Step) error
}

// ElemMatch selects documents whose array Field holds an element with
// _id equal to ID and, when Where is set, whose other fields take one of the
// listed values.
type ElemMatch struct {
	Field string
	ID    string
	Where map[string][]string
}

// Filter is a conjunction of conditions. The zero Filter matches everything.
type Filter struct {
	ID      string
	IDs     []string
	Equal   map[string]string
	In      map[string][]string
	// InFold is In with case-insensitive comparison.
	InFold  map[string][]string
	Elem    *ElemMatch
	NotElem *ElemMatch
	// Empty names an array field that must be missing or have no elements.
	Empty string
}

// ByID matches the document keyed id.
func ByID(id string) Filter { return Filter{ID: id} }

// ByField matches documents whose field equals value.
func ByField(field, value string) Filter {
	return Filter{Equal: map[string]string{field: value}}
}

// WithElem narrows f to documents holding an element of field keyed id.
func (f Filter) WithElem(field, id string) Filter {
	f.Elem = &ElemMatch{Field: field, ID: id}
	return f
}

// WithoutElem narrows f to documents lacking an element of field keyed id.
func (f Filter) WithoutElem(field, id string) Filter {
	f.NotElem = &ElemMatch{Field: field, ID: id}
	return f
}

// MutationKind enumerates staged mutations.
type MutationKind int

const (
	MutationInsert MutationKind = iota + 1
	MutationPush
	MutationPull
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationInsert:
		return "insert"
	case MutationPush:
		return "push"
	case MutationPull:
		return "pull"
	case MutationDelete:
		return "delete"
	}
	return fmt.Sprintf("mutation(%d)", int(k))
}

// Mutation is one change to a document. Push, Pull and Delete act on the
// first document matching the step filter.
type Mutation struct {
	Kind   MutationKind
	Doc    any
	Field  string
	ElemID string
}

// InsertDoc inserts doc as a new document.
func InsertDoc(doc any) Mutation { return Mutation{Kind: MutationInsert, Doc: doc} }

// PushElem appends elem to the array field.
func PushElem(field string, elem any) Mutation {
	return Mutation{Kind: MutationPush, Field: field, Doc: elem}
}

// PullElem removes every element of the array field keyed id.
func PullElem(field, id string) Mutation {
	return Mutation{Kind: MutationPull, Field: field, ElemID: id}
}

// DeleteDoc removes the document.
func DeleteDoc() Mutation { return Mutation{Kind: MutationDelete} }

// Step is one single-document write in a staged sequence.
type Step struct {
	Collection string
	Filter     Filter
	Mutation   Mutation
}

// ApplyFunc applies a single step for a backend. A pull or delete whose
// filter matches nothing is not an error. A push whose filter matches
// nothing is a no-op only while the document keyed Filter.ID exists;
// otherwise the backend fails the step with ErrNotFound.
type ApplyFunc func(ctx context.Context, index int, step Step) error

// RunSteps applies steps in order and stops at the first failure, returning
// a *StageError that lists the steps already applied. Steps are not rolled
// back. Cancellation of ctx fails the next pending step.
func RunSteps(ctx context.Context, steps []Step, apply ApplyFunc) error {
	applied := make([]int, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StageError{FailedStep: i, Applied: applied, Cause: err}
		}
		if err := apply(ctx, i, step); err != nil {
			return &StageError{FailedStep: i, Applied: applied, Cause: err}
		}
		applied = append(applied, i)
	}
	return nil
}
