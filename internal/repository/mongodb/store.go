// Package mongodb implements the repository store on MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/splax/teamhub/internal/repository"
)

// Store implements repository.Store on a MongoDB database.
type Store struct {
	db *mongo.Database
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect dials uri, verifies the primary is reachable and returns the client.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// FindOne decodes the first matching document into out.
func (s *Store) FindOne(ctx context.Context, collection string, filter repository.Filter, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, translate(filter)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return err
}

// Find decodes every matching document into out.
func (s *Store) Find(ctx context.Context, collection string, filter repository.Filter, out any) error {
	cursor, err := s.db.Collection(collection).Find(ctx, translate(filter))
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

// Insert stores doc.
func (s *Store) Insert(ctx context.Context, collection string, doc any) error {
	_, err := s.db.Collection(collection).InsertOne(ctx, doc)
	return mapWriteError(err)
}

// DeleteOne removes the first matching document.
func (s *Store) DeleteOne(ctx context.Context, collection string, filter repository.Filter) (bool, error) {
	res, err := s.db.Collection(collection).DeleteOne(ctx, translate(filter))
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// RunStaged applies each step as its own single-document write.
func (s *Store) RunStaged(ctx context.Context, steps []repository.Step) error {
	return repository.RunSteps(ctx, steps, s.applyStep)
}

func (s *Store) applyStep(ctx context.Context, _ int, step repository.Step) error {
	coll := s.db.Collection(step.Collection)
	switch step.Mutation.Kind {
	case repository.MutationInsert:
		_, err := coll.InsertOne(ctx, step.Mutation.Doc)
		return mapWriteError(err)
	case repository.MutationPush, repository.MutationPull:
		res, err := coll.UpdateOne(ctx, translate(step.Filter), update(step.Mutation))
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 || step.Mutation.Kind != repository.MutationPush || step.Filter.ID == "" {
			return nil
		}
		n, err := coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: step.Filter.ID}}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.MissingDocument(step.Collection, step.Filter.ID)
		}
		return nil
	case repository.MutationDelete:
		_, err := coll.DeleteOne(ctx, translate(step.Filter))
		return err
	}
	return fmt.Errorf("mongodb: unsupported mutation %s", step.Mutation.Kind)
}

// EnsureIndexes creates the lookup indexes the membership engine relies on.
// Team names are unique only when uniqueTeamNames is set.
func (s *Store) EnsureIndexes(ctx context.Context, uniqueTeamNames bool) error {
	specs := map[string][]mongo.IndexModel{
		repository.CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}},
			{Keys: bson.D{{Key: "teams._id", Value: 1}}},
		},
		repository.CollectionTeams: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(uniqueTeamNames)},
			{Keys: bson.D{{Key: "members._id", Value: 1}}},
		},
		repository.CollectionMessages: {
			{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for _, name := range []string{repository.CollectionUsers, repository.CollectionTeams, repository.CollectionMessages} {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, specs[name]); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}
