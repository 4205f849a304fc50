package statusstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drfengyu/dall-e/internal/domain"
	"github.com/drfengyu/dall-e/internal/infra"
	"github.com/drfengyu/dall-e/internal/sqlinline"
)

// PostgresStore keeps one row per job in the job_status table.
type PostgresStore struct {
	sql  infra.SQLExecutor
	pool *pgxpool.Pool
}

// OpenPostgres connects, wraps the pool in a SQLRunner and ensures the schema.
func OpenPostgres(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*PostgresStore, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, unavailable("postgres connect", err)
	}
	store := &PostgresStore{sql: infra.NewSQLRunner(pool, logger), pool: pool}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore builds a store over an existing executor.
func NewPostgresStore(sql infra.SQLExecutor) *PostgresStore {
	return &PostgresStore{sql: sql}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QEnsureJobStatusTable); err != nil {
		return unavailable("postgres ensure schema", err)
	}
	return nil
}

func (s *PostgresStore) MarkPending(ctx context.Context, jobID string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QMarkJobPending, jobID); err != nil {
		return unavailable("postgres mark pending", err)
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, jobID, resultURL string) (domain.WriteOutcome, error) {
	return s.put(ctx, completeRecord(jobID, resultURL))
}

func (s *PostgresStore) Fail(ctx context.Context, jobID, kind, message string) (domain.WriteOutcome, error) {
	return s.put(ctx, failedRecord(jobID, kind, message))
}

func (s *PostgresStore) put(ctx context.Context, rec domain.Record) (domain.WriteOutcome, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QPutJobTerminal,
		rec.JobID, string(rec.Status), rec.ResultURL, rec.ErrorKind, rec.ErrorMessage)

	var prevStatus, prevURL, prevKind, prevMessage *string
	if err := row.Scan(&prevStatus, &prevURL, &prevKind, &prevMessage); err != nil {
		return domain.Written, unavailable("postgres put", err)
	}
	if prevStatus == nil {
		return domain.Written, nil
	}
	prev := domain.Record{
		JobID:        rec.JobID,
		Status:       domain.JobStatus(*prevStatus),
		ResultURL:    deref(prevURL),
		ErrorKind:    deref(prevKind),
		ErrorMessage: deref(prevMessage),
	}
	return domain.Resolve(&prev, rec), nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (*domain.Record, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectJobStatus, jobID)
	rec := domain.Record{JobID: jobID}
	var status string
	var updatedAt time.Time
	if err := row.Scan(&status, &rec.ResultURL, &rec.ErrorKind, &rec.ErrorMessage, &updatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("postgres get", err)
	}
	rec.Status = domain.JobStatus(status)
	rec.UpdatedAt = updatedAt.UTC()
	return &rec, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.StatusStore = (*PostgresStore)(nil)
