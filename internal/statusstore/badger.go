package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/drfengyu/dall-e/internal/domain"
)

const (
	badgerGCInterval = 2 * time.Minute
	badgerTxRetries  = 5
)

// BadgerOptions configures the embedded store. An empty Path keeps the
// database in memory.
type BadgerOptions struct {
	Path   string
	TTL    time.Duration
	Logger zerolog.Logger
}

// BadgerStore is an embedded single-node store.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger zerolog.Logger

	// writeMu serializes read-modify-write transactions so duplicate
	// callbacks never surface as ErrConflict.
	writeMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	cancelGC context.CancelFunc
}

func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(badgerLogger{l: opts.Logger.With().Str("component", "badger").Logger()})
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	} else {
		// Memtable stays at the default: the max batch derived from it must
		// exceed ValueThreshold or Open is refused.
		bopts.ValueLogFileSize = 16 << 20
		bopts.NumMemtables = 2
		bopts.NumLevelZeroTables = 2
		bopts.NumLevelZeroTablesStall = 3
		bopts.CompactL0OnClose = true
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, unavailable("badger open", err)
	}
	s := &BadgerStore{db: db, ttl: opts.TTL, logger: opts.Logger}
	if opts.Path != "" {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelGC = cancel
		go s.valueLogGC(ctx)
	}
	return s, nil
}

func (s *BadgerStore) valueLogGC(ctx context.Context) {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.7)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				s.logger.Warn().Err(err).Msg("badger value log gc failed")
			}
		}
	}
}

func (s *BadgerStore) entry(rec domain.Record) (*badger.Entry, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	e := badger.NewEntry([]byte(rec.JobID), data)
	if s.ttl > 0 {
		e = e.WithTTL(s.ttl)
	}
	return e, nil
}

func (s *BadgerStore) MarkPending(ctx context.Context, jobID string) error {
	e, err := s.entry(pendingRecord(jobID))
	if err != nil {
		return err
	}
	return s.update(ctx, "badger mark pending", func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(jobID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) Complete(ctx context.Context, jobID, resultURL string) (domain.WriteOutcome, error) {
	return s.put(ctx, completeRecord(jobID, resultURL))
}

func (s *BadgerStore) Fail(ctx context.Context, jobID, kind, message string) (domain.WriteOutcome, error) {
	return s.put(ctx, failedRecord(jobID, kind, message))
}

func (s *BadgerStore) put(ctx context.Context, rec domain.Record) (domain.WriteOutcome, error) {
	e, err := s.entry(rec)
	if err != nil {
		return domain.Written, err
	}
	var outcome domain.WriteOutcome
	err = s.update(ctx, "badger put", func(txn *badger.Txn) error {
		prev, err := readBadgerRecord(txn, rec.JobID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		outcome = domain.Resolve(prev, rec)
		return txn.SetEntry(e)
	})
	return outcome, err
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for i := 0; i < badgerTxRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return unavailable(op, ctxErr)
		}
		if s.isClosed() {
			return unavailable(op, badger.ErrDBClosed)
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return unavailable(op, err)
	}
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, jobID string) (*domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("badger get", err)
	}
	if s.isClosed() {
		return nil, unavailable("badger get", badger.ErrDBClosed)
	}
	var rec *domain.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readBadgerRecord(txn, jobID)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("badger get", err)
	}
	return rec, nil
}

func readBadgerRecord(txn *badger.Txn, jobID string) (*domain.Record, error) {
	item, err := txn.Get([]byte(jobID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec domain.Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decode record %s: %w", jobID, err)
	}
	return &rec, nil
}

func (s *BadgerStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancelGC != nil {
		s.cancelGC()
	}
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error().Msgf(format, args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn().Msgf(format, args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug().Msgf(format, args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Trace().Msgf(format, args...)
}

var _ domain.StatusStore = (*BadgerStore)(nil)
