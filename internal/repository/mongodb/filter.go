package mongodb

import (
	"regexp"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/splax/teamhub/internal/repository"
)

// translate converts a repository filter into a MongoDB query document.
// Conditions sharing a key are combined under $and.
func translate(f repository.Filter) bson.D {
	conds := make([]bson.E, 0, 4)
	if f.ID != "" {
		conds = append(conds, bson.E{Key: "_id", Value: f.ID})
	}
	if len(f.IDs) > 0 {
		conds = append(conds, bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: f.IDs}}})
	}
	for _, k := range sortedKeys(f.Equal) {
		conds = append(conds, bson.E{Key: k, Value: f.Equal[k]})
	}
	for _, k := range sortedKeys(f.In) {
		conds = append(conds, bson.E{Key: k, Value: bson.D{{Key: "$in", Value: f.In[k]}}})
	}
	for _, k := range sortedKeys(f.InFold) {
		patterns := make(bson.A, 0, len(f.InFold[k]))
		for _, v := range f.InFold[k] {
			patterns = append(patterns, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(v) + "$", Options: "i"})
		}
		conds = append(conds, bson.E{Key: k, Value: bson.D{{Key: "$in", Value: patterns}}})
	}
	if f.Elem != nil {
		conds = append(conds, bson.E{Key: f.Elem.Field, Value: bson.D{{Key: "$elemMatch", Value: elemMatch(*f.Elem)}}})
	}
	if f.NotElem != nil {
		if len(f.NotElem.Where) == 0 {
			conds = append(conds, bson.E{Key: f.NotElem.Field + "._id", Value: bson.D{{Key: "$ne", Value: f.NotElem.ID}}})
		} else {
			conds = append(conds, bson.E{Key: f.NotElem.Field, Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$elemMatch", Value: elemMatch(*f.NotElem)}}}}})
		}
	}
	if f.Empty != "" {
		conds = append(conds, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: f.Empty, Value: bson.D{{Key: "$size", Value: 0}}}},
			bson.D{{Key: f.Empty, Value: nil}},
		}})
	}

	seen := make(map[string]bool, len(conds))
	for _, c := range conds {
		if seen[c.Key] {
			and := make(bson.A, 0, len(conds))
			for _, c := range conds {
				and = append(and, bson.D{c})
			}
			return bson.D{{Key: "$and", Value: and}}
		}
		seen[c.Key] = true
	}
	return bson.D(conds)
}

func elemMatch(em repository.ElemMatch) bson.D {
	doc := bson.D{{Key: "_id", Value: em.ID}}
	for _, k := range sortedKeys(em.Where) {
		doc = append(doc, bson.E{Key: k, Value: bson.D{{Key: "$in", Value: em.Where[k]}}})
	}
	return doc
}

// update converts a push or pull mutation into an update document.
func update(m repository.Mutation) bson.D {
	switch m.Kind {
	case repository.MutationPush:
		return bson.D{{Key: "$push", Value: bson.D{{Key: m.Field, Value: m.Doc}}}}
	case repository.MutationPull:
		return bson.D{{Key: "$pull", Value: bson.D{{Key: m.Field, Value: bson.D{{Key: "_id", Value: m.ElemID}}}}}}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
