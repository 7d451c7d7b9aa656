package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/splax/teamhub/internal/repository"
	"github.com/splax/teamhub/pkg/config"
	"github.com/splax/teamhub/pkg/logger"
)

func TestOpenStoreMemory(t *testing.T) {
	store, err := OpenStore(context.Background(), config.APIConfig{StoreDriver: config.StoreMemory}, logger.Nop())
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	defer store.Close()
	if err := store.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	var out map[string]any
	if err := store.FindOne(context.Background(), repository.CollectionTeams, repository.ByID("missing"), &out); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenStore(context.Background(), config.APIConfig{StoreDriver: "sqlite"}, logger.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenRedisSkipsWithoutAddress(t *testing.T) {
	client, err := OpenRedis(context.Background(), config.APIConfig{})
	if err != nil || client != nil {
		t.Fatalf("expected nil client and error, got %v %v", client, err)
	}
}
