// Package document evaluates repository filters and mutations against
// in-process BSON documents.
package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/splax/teamhub/internal/repository"
)

// IDField keys every document.
const IDField = "_id"

// ErrNotArray is returned when a push or pull targets a non-array field.
var ErrNotArray = errors.New("document: field is not an array")

// Encode converts a struct or map into a detached bson.M.
func Encode(v any) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return m, nil
}

// Decode fills out from doc.
func Decode(doc bson.M, out any) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DecodeAll fills out, a pointer to a slice, from docs.
func DecodeAll(docs []bson.M, out any) error {
	arr := make(bson.A, 0, len(docs))
	for _, d := range docs {
		arr = append(arr, d)
	}
	data, err := bson.Marshal(bson.D{{Key: "v", Value: arr}})
	if err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	if err := bson.Raw(data).Lookup("v").Unmarshal(out); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	return nil
}

// ID returns the document key as a string.
func ID(doc bson.M) string {
	return text(doc[IDField])
}

// Match reports whether doc satisfies every condition of f.
func Match(doc bson.M, f repository.Filter) bool {
	if f.ID != "" && ID(doc) != f.ID {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, ID(doc)) {
		return false
	}
	for field, want := range f.Equal {
		got, ok := lookup(doc, field)
		if !ok || text(got) != want {
			return false
		}
	}
	for field, allowed := range f.In {
		got, ok := lookup(doc, field)
		if !ok || !slices.Contains(allowed, text(got)) {
			return false
		}
	}
	for field, allowed := range f.InFold {
		got, ok := lookup(doc, field)
		if !ok {
			return false
		}
		value := text(got)
		if !slices.ContainsFunc(allowed, func(a string) bool { return strings.EqualFold(a, value) }) {
			return false
		}
	}
	if f.Elem != nil && !hasElem(doc, *f.Elem) {
		return false
	}
	if f.NotElem != nil && hasElem(doc, *f.NotElem) {
		return false
	}
	if f.Empty != "" {
		v, ok := lookup(doc, f.Empty)
		if ok && v != nil {
			arr, isArr := asArray(v)
			if !isArr || len(arr) > 0 {
				return false
			}
		}
	}
	return true
}

// Apply returns a copy of doc with a push or pull mutation applied.
func Apply(doc bson.M, m repository.Mutation) (bson.M, error) {
	out, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	switch m.Kind {
	case repository.MutationPush:
		elem, err := Encode(m.Doc)
		if err != nil {
			return nil, err
		}
		arr, err := arrayField(out, m.Field)
		if err != nil {
			return nil, err
		}
		out[m.Field] = append(arr, elem)
	case repository.MutationPull:
		arr, err := arrayField(out, m.Field)
		if err != nil {
			return nil, err
		}
		kept := make(bson.A, 0, len(arr))
		for _, e := range arr {
			if id, ok := field(e, IDField); ok && text(id) == m.ElemID {
				continue
			}
			kept = append(kept, e)
		}
		out[m.Field] = kept
	default:
		return nil, fmt.Errorf("document: %s cannot be applied in place", m.Kind)
	}
	return out, nil
}

func arrayField(doc bson.M, name string) (bson.A, error) {
	v, ok := doc[name]
	if !ok || v == nil {
		return bson.A{}, nil
	}
	arr, ok := asArray(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, name)
	}
	return arr, nil
}

func hasElem(doc bson.M, em repository.ElemMatch) bool {
	v, ok := lookup(doc, em.Field)
	if !ok {
		return false
	}
	arr, ok := asArray(v)
	if !ok {
		return false
	}
	for _, e := range arr {
		if id, ok := field(e, IDField); !ok || text(id) != em.ID {
			continue
		}
		if elemWhere(e, em.Where) {
			return true
		}
	}
	return false
}

func elemWhere(e any, where map[string][]string) bool {
	for name, allowed := range where {
		v, ok := field(e, name)
		if !ok || !slices.Contains(allowed, text(v)) {
			return false
		}
	}
	return true
}

// lookup resolves a dotted path through embedded documents.
func lookup(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		v, ok := field(cur, part)
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func field(v any, name string) (any, bool) {
	switch d := v.(type) {
	case bson.M:
		val, ok := d[name]
		return val, ok
	case map[string]any:
		val, ok := d[name]
		return val, ok
	case bson.D:
		for _, e := range d {
			if e.Key == name {
				return e.Value, true
			}
		}
	}
	return nil, false
}

func asArray(v any) (bson.A, bool) {
	switch a := v.(type) {
	case nil:
		return bson.A{}, true
	case bson.A:
		return a, true
	case []any:
		return bson.A(a), true
	case []bson.M:
		out := make(bson.A, 0, len(a))
		for _, e := range a {
			out = append(out, e)
		}
		return out, true
	case []map[string]any:
		out := make(bson.A, 0, len(a))
		for _, e := range a {
			out = append(out, e)
		}
		return out, true
	}
	return nil, false
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}
