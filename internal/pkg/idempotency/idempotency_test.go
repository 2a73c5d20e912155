package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}

	uri, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}

	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStateTracker_Do(t *testing.T) {
	client := newRedis(t)
	ctx := context.Background()

	t.Run("replays completed result", func(t *testing.T) {
		// Arrange
		s := New(client, WithPrefix("test-replay:"))
		calls := 0
		fn := func(context.Context) ([]byte, error) {
			calls++
			return []byte(`{"success":true}`), nil
		}

		// Act
		first, replayed1, err1 := s.Do(ctx, "k1", fn)
		second, replayed2, err2 := s.Do(ctx, "k1", fn)

		// Assert
		if err1 != nil || err2 != nil {
			t.Fatalf("unexpected errors: %v, %v", err1, err2)
		}
		if calls != 1 {
			t.Fatalf("fn called %d times, want 1", calls)
		}
		if replayed1 || !replayed2 {
			t.Fatalf("replayed flags = %v, %v", replayed1, replayed2)
		}
		if string(first) != string(second) {
			t.Fatalf("results differ: %s vs %s", first, second)
		}
	})

	t.Run("failure releases key", func(t *testing.T) {
		s := New(client, WithPrefix("test-release:"))
		boom := errors.New("boom")

		if _, _, err := s.Do(ctx, "k2", func(context.Context) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		got, replayed, err := s.Do(ctx, "k2", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
		if err != nil || replayed || string(got) != "ok" {
			t.Fatalf("retry after failure: got=%q replayed=%v err=%v", got, replayed, err)
		}
	})

	t.Run("in progress rejects duplicate", func(t *testing.T) {
		s := New(client, WithPrefix("test-busy:"), WithLockDuration(time.Minute))

		state, _, err := s.Acquire(ctx, "k3")
		if err != nil || state != StateNone {
			t.Fatalf("acquire: state=%v err=%v", state, err)
		}

		_, _, err = s.Do(ctx, "k3", func(context.Context) ([]byte, error) { return nil, nil })
		if !errors.Is(err, ErrInProgress) {
			t.Fatalf("expected ErrInProgress, got %v", err)
		}
	})
}

func TestStateTracker_EmptyKey(t *testing.T) {
	s := New(nil)

	if _, _, err := s.Acquire(context.Background(), ""); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("expected ErrKeyRequired, got %v", err)
	}
}
