// Package statusstore implements domain.StatusStore on the supported
// backends. Every backend treats a missing key as pending and wraps I/O
// failures in domain.ErrStoreUnavailable.
package statusstore

import (
	"context"
	"fmt"
	"time"

	"github.com/drfengyu/dall-e/internal/domain"
	"github.com/drfengyu/dall-e/internal/infra"
)

// Open builds the backend selected by cfg.StatusStore.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.StatusStore, error) {
	var (
		store domain.StatusStore
		err   error
	)
	switch cfg.StatusStore {
	case infra.StoreMemory:
		store = NewMemoryStore()
	case infra.StoreRedis:
		store, err = OpenRedis(ctx, cfg.RedisURL, RedisOptions{TTL: cfg.StatusTTL})
	case infra.StoreBadger:
		store, err = OpenBadger(BadgerOptions{Path: cfg.BadgerPath, TTL: cfg.StatusTTL, Logger: logger})
	case infra.StorePostgres:
		store, err = OpenPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("statusstore: unsupported backend %q", cfg.StatusStore)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

func pendingRecord(jobID string) domain.Record {
	return domain.Record{JobID: jobID, Status: domain.JobStatusPending, UpdatedAt: time.Now().UTC()}
}

func completeRecord(jobID, resultURL string) domain.Record {
	return domain.Record{JobID: jobID, Status: domain.JobStatusComplete, ResultURL: resultURL, UpdatedAt: time.Now().UTC()}
}

func failedRecord(jobID, kind, message string) domain.Record {
	return domain.Record{
		JobID:        jobID,
		Status:       domain.JobStatusFailed,
		ErrorKind:    kind,
		ErrorMessage: message,
		UpdatedAt:    time.Now().UTC(),
	}
}
