package statusstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/drfengyu/dall-e/internal/domain"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, open func(t *testing.T) domain.StatusStore) {
	t.Run("miss is not found", func(t *testing.T) {
		store := open(t)
		if _, err := store.Get(context.Background(), "nonexistent-job"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("write then read", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		outcome, err := store.Complete(ctx, "job-1", "https://img/1.png")
		if err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		if outcome != domain.Written {
			t.Fatalf("outcome = %s, want written", outcome)
		}
		rec, err := store.Get(ctx, "job-1")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if rec.Status != domain.JobStatusComplete || rec.ResultURL != "https://img/1.png" || rec.JobID != "job-1" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	t.Run("idempotent completion", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		if _, err := store.Complete(ctx, "job-2", "https://img/2.png"); err != nil {
			t.Fatalf("first Complete error: %v", err)
		}
		outcome, err := store.Complete(ctx, "job-2", "https://img/2.png")
		if err != nil {
			t.Fatalf("second Complete error: %v", err)
		}
		if outcome != domain.Unchanged {
			t.Fatalf("outcome = %s, want unchanged", outcome)
		}
		rec, err := store.Get(ctx, "job-2")
		if err != nil || rec.ResultURL != "https://img/2.png" {
			t.Fatalf("Get = %+v, %v", rec, err)
		}
	})

	t.Run("conflicting completion latest wins", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		_, _ = store.Complete(ctx, "job-3", "https://img/a.png")
		outcome, err := store.Complete(ctx, "job-3", "https://img/b.png")
		if err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		if outcome != domain.Overwritten {
			t.Fatalf("outcome = %s, want overwritten", outcome)
		}
		rec, _ := store.Get(ctx, "job-3")
		if rec == nil || rec.ResultURL != "https://img/b.png" {
			t.Fatalf("latest write should win, got %+v", rec)
		}
	})

	t.Run("pending marker", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		if err := store.MarkPending(ctx, "job-4"); err != nil {
			t.Fatalf("MarkPending error: %v", err)
		}
		rec, err := store.Get(ctx, "job-4")
		if err != nil || rec.Status != domain.JobStatusPending {
			t.Fatalf("Get = %+v, %v", rec, err)
		}
		outcome, err := store.Complete(ctx, "job-4", "https://img/4.png")
		if err != nil || outcome != domain.Written {
			t.Fatalf("Complete over pending = %s, %v", outcome, err)
		}
	})

	t.Run("pending marker never clobbers a result", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		if _, err := store.Complete(ctx, "job-5", "https://img/5.png"); err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		if err := store.MarkPending(ctx, "job-5"); err != nil {
			t.Fatalf("MarkPending error: %v", err)
		}
		rec, err := store.Get(ctx, "job-5")
		if err != nil || rec.Status != domain.JobStatusComplete || rec.ResultURL != "https://img/5.png" {
			t.Fatalf("result clobbered: %+v, %v", rec, err)
		}
	})

	t.Run("failure is recorded", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		if _, err := store.Fail(ctx, "job-6", domain.KindWorkerFailed, "content policy"); err != nil {
			t.Fatalf("Fail error: %v", err)
		}
		rec, err := store.Get(ctx, "job-6")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if rec.Status != domain.JobStatusFailed || rec.ErrorKind != domain.KindWorkerFailed || rec.ErrorMessage != "content policy" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	})

	t.Run("concurrent duplicate callbacks", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Complete(ctx, "job-7", "https://img/7.png"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Complete error: %v", err)
		}
		rec, err := store.Get(ctx, "job-7")
		if err != nil || rec.ResultURL != "https://img/7.png" {
			t.Fatalf("Get = %+v, %v", rec, err)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("job-ind-%d", i)
			if _, err := store.Complete(ctx, id, "https://img/"+id+".png"); err != nil {
				t.Fatalf("Complete(%s) error: %v", id, err)
			}
		}
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("job-ind-%d", i)
			rec, err := store.Get(ctx, id)
			if err != nil || rec.ResultURL != "https://img/"+id+".png" {
				t.Fatalf("Get(%s) = %+v, %v", id, rec, err)
			}
		}
	})
}
