package statusstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/drfengyu/dall-e/internal/domain"
)

func newTestRedis(t *testing.T, opts RedisOptions) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := OpenRedis(context.Background(), "redis://"+mr.Addr(), opts)
	if err != nil {
		t.Fatalf("OpenRedis error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) domain.StatusStore {
		store, _ := newTestRedis(t, RedisOptions{})
		return store
	})
}

func TestRedisStoreKeyLayoutAndTTL(t *testing.T) {
	store, mr := newTestRedis(t, RedisOptions{Prefix: "test:", TTL: time.Minute})
	if _, err := store.Complete(context.Background(), "job-1", "https://img/1.png"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if !mr.Exists("test:job-1") {
		t.Fatalf("expected key test:job-1, have %v", mr.Keys())
	}
	if ttl := mr.TTL("test:job-1"); ttl != time.Minute {
		t.Fatalf("ttl = %s, want 1m", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(context.Background(), "job-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStoreReadsBareURL(t *testing.T) {
	store, mr := newTestRedis(t, RedisOptions{})
	if err := mr.Set(defaultRedisPrefix+"job-legacy", "https://img/legacy.png"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec, err := store.Get(context.Background(), "job-legacy")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec.Status != domain.JobStatusComplete || rec.ResultURL != "https://img/legacy.png" || rec.JobID != "job-legacy" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewRedisStore(client, RedisOptions{})
	t.Cleanup(func() { _ = store.Close() })
	mr.Close()

	if _, err := store.Get(context.Background(), "job-1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("Get error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := store.Complete(context.Background(), "job-1", "https://img/1.png"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("Complete error = %v, want ErrStoreUnavailable", err)
	}
	if err := store.MarkPending(context.Background(), "job-1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("MarkPending error = %v, want ErrStoreUnavailable", err)
	}
}

func TestOpenRedisRejectsBadURL(t *testing.T) {
	if _, err := OpenRedis(context.Background(), "http://nope", RedisOptions{}); err == nil {
		t.Fatalf("expected error for non-redis url")
	}
}
