//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/lendkit/internal/domain/entity"
)

// setupRedis creates a Redis container and returns a connected SessionStore.
func setupRedis(t *testing.T, ttl time.Duration) (*SessionStore, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	store, err := NewSessionStore(Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		TTL:       ttl,
		KeyPrefix: "test",
	}, nil)
	if err != nil {
		t.Fatalf("failed to create session store: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := store.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}

	return store, cleanup
}

func TestSessionStore_SaveLoadClear(t *testing.T) {
	store, cleanup := setupRedis(t, time.Hour)
	defer cleanup()
	ctx := context.Background()

	if _, ok, err := store.Load(ctx); ok || err != nil {
		t.Fatalf("empty Load = ok=%v err=%v", ok, err)
	}

	want := entity.PersistedSession{ChainID: 10, Address: "0x00000000000000000000000000000000000000aa", Connected: true}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load(ctx)
	if err != nil || !ok || got != want {
		t.Fatalf("Load = %+v ok=%v err=%v, want %+v", got, ok, err, want)
	}

	ttl, err := store.client.TTL(ctx, store.key("connected")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL = %v, want within (0, 1h]", ttl)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := store.Load(ctx); ok {
		t.Error("Load after Clear must report nothing persisted")
	}
}

func TestSessionStore_CachedConnector(t *testing.T) {
	store, cleanup := setupRedis(t, 0)
	defer cleanup()
	ctx := context.Background()

	if id, err := store.CachedConnector(ctx); id != "" || err != nil {
		t.Fatalf("CachedConnector = %q, %v", id, err)
	}
	if err := store.SetCachedConnector(ctx, "rpc"); err != nil {
		t.Fatal(err)
	}
	if id, _ := store.CachedConnector(ctx); id != "rpc" {
		t.Errorf("CachedConnector = %q, want rpc", id)
	}
	if err := store.ClearCachedConnector(ctx); err != nil {
		t.Fatal(err)
	}
	if id, _ := store.CachedConnector(ctx); id != "" {
		t.Errorf("CachedConnector after clear = %q", id)
	}
}
