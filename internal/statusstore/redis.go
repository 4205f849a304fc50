package statusstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drfengyu/dall-e/internal/domain"
)

const defaultRedisPrefix = "dalle:job:"

// swapScript stores ARGV[1] (with an optional PX of ARGV[2]) and returns the
// previous value in one round trip.
var swapScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return prev
`)

// RedisOptions configures key layout and retention.
type RedisOptions struct {
	Prefix string
	// TTL bounds how long records live. Zero keeps them forever.
	TTL time.Duration
}

// RedisStore stores JSON encoded records, one key per job.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// OpenRedis connects to rawURL (redis:// or rediss://) and pings it.
func OpenRedis(ctx context.Context, rawURL string, opts RedisOptions) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("statusstore: parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("redis ping", err)
	}
	return NewRedisStore(client, opts), nil
}

func NewRedisStore(client redis.UniversalClient, opts RedisOptions) *RedisStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *RedisStore) key(jobID string) string {
	return s.prefix + jobID
}

func (s *RedisStore) MarkPending(ctx context.Context, jobID string) error {
	data, err := json.Marshal(pendingRecord(jobID))
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, s.key(jobID), data, s.ttl).Err(); err != nil {
		return unavailable("redis setnx", err)
	}
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, jobID, resultURL string) (domain.WriteOutcome, error) {
	return s.put(ctx, completeRecord(jobID, resultURL))
}

func (s *RedisStore) Fail(ctx context.Context, jobID, kind, message string) (domain.WriteOutcome, error) {
	return s.put(ctx, failedRecord(jobID, kind, message))
}

func (s *RedisStore) put(ctx context.Context, rec domain.Record) (domain.WriteOutcome, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.Written, err
	}
	prev, err := decodeRedisRecord(swapScript.Run(ctx, s.client, []string{s.key(rec.JobID)}, data, s.ttl.Milliseconds()).Text())
	if err != nil {
		return domain.Written, unavailable("redis swap", err)
	}
	return domain.Resolve(prev, rec), nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*domain.Record, error) {
	rec, err := decodeRedisRecord(s.client.Get(ctx, s.key(jobID)).Result())
	if err != nil {
		return nil, unavailable("redis get", err)
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}
	if rec.JobID == "" {
		rec.JobID = jobID
	}
	return rec, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// decodeRedisRecord returns nil, nil on a miss. A value that is not an
// encoded record, such as a bare URL written by another producer, is read as
// a completed result URL.
func decodeRedisRecord(raw string, err error) (*domain.Record, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Status == "" {
		return &domain.Record{Status: domain.JobStatusComplete, ResultURL: raw}, nil
	}
	return &rec, nil
}

var _ domain.StatusStore = (*RedisStore)(nil)
