package statusstore

import (
	"context"
	"sync"

	"github.com/drfengyu/dall-e/internal/domain"
)

// MemoryStore keeps records in process. Used for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.Record)}
}

func (s *MemoryStore) MarkPending(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("memory mark pending", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[jobID]; !ok {
		s.records[jobID] = pendingRecord(jobID)
	}
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, jobID, resultURL string) (domain.WriteOutcome, error) {
	return s.put(ctx, completeRecord(jobID, resultURL))
}

func (s *MemoryStore) Fail(ctx context.Context, jobID, kind, message string) (domain.WriteOutcome, error) {
	return s.put(ctx, failedRecord(jobID, kind, message))
}

func (s *MemoryStore) put(ctx context.Context, rec domain.Record) (domain.WriteOutcome, error) {
	if err := ctx.Err(); err != nil {
		return domain.Written, unavailable("memory put", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var prev *domain.Record
	if existing, ok := s.records[rec.JobID]; ok {
		prev = &existing
	}
	s.records[rec.JobID] = rec
	return domain.Resolve(prev, rec), nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("memory get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }

var _ domain.StatusStore = (*MemoryStore)(nil)
