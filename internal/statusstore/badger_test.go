package statusstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/domain"
)

func openTestBadger(t *testing.T, opts BadgerOptions) *BadgerStore {
	t.Helper()
	opts.Logger = zerolog.Nop()
	store, err := OpenBadger(opts)
	if err != nil {
		t.Fatalf("OpenBadger error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) domain.StatusStore {
		return openTestBadger(t, BadgerOptions{})
	})
}

func TestBadgerStorePersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenBadger(BadgerOptions{Path: dir, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("OpenBadger error: %v", err)
	}
	if _, err := store.Complete(context.Background(), "job-1", "https://img/1.png"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened := openTestBadger(t, BadgerOptions{Path: dir})
	rec, err := reopened.Get(context.Background(), "job-1")
	if err != nil || rec.ResultURL != "https://img/1.png" {
		t.Fatalf("Get after reopen = %+v, %v", rec, err)
	}
}

func TestBadgerStoreTTL(t *testing.T) {
	store := openTestBadger(t, BadgerOptions{TTL: time.Second})
	if _, err := store.Complete(context.Background(), "job-ttl", "https://img/ttl.png"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, err := store.Get(context.Background(), "job-ttl"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired record, got %v", err)
	}
}

func TestBadgerStoreClosed(t *testing.T) {
	store := openTestBadger(t, BadgerOptions{})
	_ = store.Close()
	if _, err := store.Get(context.Background(), "job-1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable after close, got %v", err)
	}
}

func TestBadgerStoreDuplicateCallbacksRace(t *testing.T) {
	testCases := []struct {
		name string
		opts func(t *testing.T) BadgerOptions
	}{
		{name: "in memory", opts: func(t *testing.T) BadgerOptions { return BadgerOptions{} }},
		{name: "on disk", opts: func(t *testing.T) BadgerOptions { return BadgerOptions{Path: t.TempDir()} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := openTestBadger(t, tc.opts(t))
			ctx := context.Background()
			const callers = 32

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				outcomes = map[domain.WriteOutcome]int{}
				errs     []error
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					outcome, err := store.Complete(ctx, "job-race", "https://img/race.png")
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					outcomes[outcome]++
				}()
			}
			wg.Wait()

			if len(errs) > 0 {
				t.Fatalf("%d of %d callers failed, first: %v", len(errs), callers, errs[0])
			}
			if outcomes[domain.Written] != 1 || outcomes[domain.Unchanged] != callers-1 {
				t.Fatalf("outcomes = %v, want 1 written and %d unchanged", outcomes, callers-1)
			}
		})
	}
}

func TestBadgerStorePendingRacesWithCallbacks(t *testing.T) {
	store := openTestBadger(t, BadgerOptions{Path: t.TempDir()})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("job-%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := store.Complete(ctx, id, "https://img/"+id+".png"); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if err := store.MarkPending(ctx, id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("write error: %v", err)
	}
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("job-%d", i)
		rec, err := store.Get(ctx, id)
		if err != nil || rec.Status != domain.JobStatusComplete {
			t.Fatalf("Get(%s) = %+v, %v", id, rec, err)
		}
	}
}
