// Package bootstrap opens the backing services selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/splax/teamhub/internal/app/migrate"
	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/internal/repository/memory"
	"github.com/splax/teamhub/internal/repository/mongodb"
	"github.com/splax/teamhub/internal/repository/postgres"
	"github.com/splax/teamhub/pkg/config"
	"github.com/splax/teamhub/pkg/logger"
)

const connectTimeout = 10 * time.Second

// Store is an opened repository together with its lifecycle hooks.
type Store struct {
	repository.Store
	Driver string
	Health func(context.Context) error
	Close  func()
}

// OpenStore connects the driver named by cfg.StoreDriver and prepares its
// schema: indexes for mongo, goose migrations for postgres.
func OpenStore(ctx context.Context, cfg config.APIConfig, log *logger.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		store := mongodb.New(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(ctx, cfg.MongoUniqueTeamNames); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		log.Info("mongo store ready", "database", cfg.MongoDatabase, "unique_team_names", cfg.MongoUniqueTeamNames)
		return &Store{
			Store:  store,
			Driver: cfg.StoreDriver,
			Health: func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) },
			Close: func() {
				shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Disconnect(shutdown); err != nil {
					log.Warn("mongo disconnect failed", "error", err)
				}
			},
		}, nil

	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("configure migrations: %w", err)
		}
		if err := runner.Ensure(ctx); err != nil {
			runner.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("postgres store ready")
		return &Store{
			Store:  postgres.New(pool),
			Driver: cfg.StoreDriver,
			Health: runner.Ping,
			Close:  runner.Close,
		}, nil

	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on exit")
		return &Store{
			Store:  memory.New(),
			Driver: cfg.StoreDriver,
			Health: func(context.Context) error { return nil },
			Close:  func() {},
		}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

// OpenRedis connects to cfg.RedisAddr. It returns nil without error when no
// address is configured.
func OpenRedis(ctx context.Context, cfg config.APIConfig) (redis.UniversalClient, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
