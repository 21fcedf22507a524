package clickcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestGuard(t *testing.T, config Config) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, config), server
}

func TestRememberThenSeen(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, DefaultConfig())

	seen, err := guard.Seen(context.Background(), "offer-1", "client-1")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("expected unseen pair")
	}

	if err := guard.Remember(context.Background(), "offer-1", "client-1"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	seen, err = guard.Seen(context.Background(), "offer-1", "client-1")
	if err != nil {
		t.Fatalf("seen after remember: %v", err)
	}
	if !seen {
		t.Fatal("expected remembered pair to be seen")
	}

	// A different client on the same offer is a fresh pair.
	seen, err = guard.Seen(context.Background(), "offer-1", "client-2")
	if err != nil {
		t.Fatalf("seen other client: %v", err)
	}
	if seen {
		t.Fatal("expected other client to be unseen")
	}
}

func TestRememberExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	guard, server := newTestGuard(t, Config{TTL: time.Minute})

	if err := guard.Remember(context.Background(), "offer-1", "client-1"); err != nil {
		t.Fatalf("remember: %v", err)
	}
	server.FastForward(2 * time.Minute)

	seen, err := guard.Seen(context.Background(), "offer-1", "client-1")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("expected pair to expire with the TTL")
	}
}

func TestSeenSurfacesConnectionErrors(t *testing.T) {
	t.Parallel()
	guard, server := newTestGuard(t, DefaultConfig())
	server.Close()

	if _, err := guard.Seen(context.Background(), "offer-1", "client-1"); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestDefaultsFillEmptyConfig(t *testing.T) {
	t.Parallel()
	guard, _ := newTestGuard(t, Config{})
	if guard.config.KeyPrefix != defaultKeyPrefix || guard.config.TTL != defaultTTL {
		t.Fatalf("expected defaults, got %+v", guard.config)
	}
}
