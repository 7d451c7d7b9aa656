package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/repository/document"
)

// Repository implements repository.Store on a PostgreSQL JSONB table.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ensure Repository satisfies the store interface.
var _ repository.Store = (*Repository)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// FindOne decodes the first matching document into out.
func (r *Repository) FindOne(ctx context.Context, collection string, filter repository.Filter, out any) error {
	docs, err := r.match(ctx, r.pool, collection, filter, false, true)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return repository.ErrNotFound
	}
	return document.Decode(docs[0], out)
}

// Find decodes every matching document into out.
func (r *Repository) Find(ctx context.Context, collection string, filter repository.Filter, out any) error {
	docs, err := r.match(ctx, r.pool, collection, filter, false, false)
	if err != nil {
		return err
	}
	return document.DecodeAll(docs, out)
}

// Insert stores doc as a new row.
func (r *Repository) Insert(ctx context.Context, collection string, doc any) error {
	return r.insert(ctx, collection, doc)
}

// DeleteOne removes the first matching document.
func (r *Repository) DeleteOne(ctx context.Context, collection string, filter repository.Filter) (bool, error) {
	var deleted bool
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		docs, err := r.match(ctx, tx, collection, filter, true, true)
		if err != nil || len(docs) == 0 {
			return err
		}
		const query = `DELETE FROM documents WHERE collection = $1 AND id = $2`
		tag, err := tx.Exec(ctx, query, collection, document.ID(docs[0]))
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		return nil
	})
	return deleted, err
}

// RunStaged applies each step in its own transaction.
func (r *Repository) RunStaged(ctx context.Context, steps []repository.Step) error {
	return repository.RunSteps(ctx, steps, r.applyStep)
}

func (r *Repository) applyStep(ctx context.Context, _ int, step repository.Step) error {
	switch step.Mutation.Kind {
	case repository.MutationInsert:
		return r.insert(ctx, step.Collection, step.Mutation.Doc)
	case repository.MutationDelete:
		_, err := r.DeleteOne(ctx, step.Collection, step.Filter)
		return err
	case repository.MutationPush, repository.MutationPull:
		return r.inTx(ctx, func(tx pgx.Tx) error {
			docs, err := r.match(ctx, tx, step.Collection, step.Filter, true, true)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				if step.Mutation.Kind != repository.MutationPush || step.Filter.ID == "" {
					return nil
				}
				const exists = `SELECT EXISTS(SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`
				var found bool
				if err := tx.QueryRow(ctx, exists, step.Collection, step.Filter.ID).Scan(&found); err != nil {
					return err
				}
				if !found {
					return repository.MissingDocument(step.Collection, step.Filter.ID)
				}
				return nil
			}
			updated, err := document.Apply(docs[0], step.Mutation)
			if err != nil {
				return err
			}
			body, err := bson.MarshalExtJSON(updated, false, false)
			if err != nil {
				return fmt.Errorf("encode body: %w", err)
			}
			const query = `UPDATE documents SET body = $3, updated_at = NOW() WHERE collection = $1 AND id = $2`
			_, err = tx.Exec(ctx, query, step.Collection, document.ID(updated), body)
			return err
		})
	}
	return fmt.Errorf("postgres: unsupported mutation %s", step.Mutation.Kind)
}

func (r *Repository) insert(ctx context.Context, collection string, doc any) error {
	m, err := document.Encode(doc)
	if err != nil {
		return err
	}
	id := document.ID(m)
	if id == "" {
		return fmt.Errorf("postgres: document in %s has no %s", collection, document.IDField)
	}
	body, err := bson.MarshalExtJSON(m, false, false)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	const query = `INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())`
	if _, err := r.pool.Exec(ctx, query, collection, id, body); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s/%s", repository.ErrDuplicate, collection, id)
		}
		return err
	}
	return nil
}

// match loads candidate rows selected in SQL and applies the rest of the
// filter in process.
func (r *Repository) match(ctx context.Context, q querier, collection string, filter repository.Filter, forUpdate, first bool) ([]bson.M, error) {
	query, args := selectQuery(collection, filter, forUpdate)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]bson.M, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var doc bson.M
		if err := bson.UnmarshalExtJSON(body, false, &doc); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
		if !document.Match(doc, filter) {
			continue
		}
		docs = append(docs, doc)
		if first {
			break
		}
	}
	return docs, rows.Err()
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// selectQuery pushes the scalar parts of filter into SQL. Array conditions
// are evaluated by the caller.
func selectQuery(collection string, filter repository.Filter, forUpdate bool) (string, []any) {
	var b strings.Builder
	args := []any{collection}
	b.WriteString(`SELECT body FROM documents WHERE collection = $1`)

	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ID != "" {
		b.WriteString(" AND id = " + next(filter.ID))
	}
	if len(filter.IDs) > 0 {
		b.WriteString(" AND id = ANY(" + next(filter.IDs) + ")")
	}
	for _, k := range sortedKeys(filter.Equal) {
		path := next(strings.Split(k, "."))
		b.WriteString(" AND body #>> " + path + "::text[] = " + next(filter.Equal[k]))
	}
	for _, k := range sortedKeys(filter.In) {
		path := next(strings.Split(k, "."))
		b.WriteString(" AND body #>> " + path + "::text[] = ANY(" + next(filter.In[k]) + ")")
	}
	for _, k := range sortedKeys(filter.InFold) {
		path := next(strings.Split(k, "."))
		folded := make([]string, 0, len(filter.InFold[k]))
		for _, v := range filter.InFold[k] {
			folded = append(folded, strings.ToLower(v))
		}
		b.WriteString(" AND lower(body #>> " + path + "::text[]) = ANY(" + next(folded) + ")")
	}
	b.WriteString(" ORDER BY created_at, id")
	if forUpdate {
		b.WriteString(" FOR UPDATE")
	}
	return b.String(), args
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
