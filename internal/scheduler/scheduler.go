// Package scheduler runs delayed, fire-and-forget events on top of Redis.
//
// A job is stored as JSON in the scheduler:jobs hash and indexed by run time in
// the scheduler:due sorted set. Workers claim a due job by removing it from the
// sorted set; only the caller whose ZREM succeeds runs it, so delivery is
// at-most-once even with several workers polling.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	dueKey  = "scheduler:due"
	jobsKey = "scheduler:jobs"
)

// Scheduler accepts events to run after a delay
type Scheduler interface {
	Schedule(ctx context.Context, event string, payload any, delay time.Duration) error
}

// Job is one scheduled event
type Job struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	RunAt   time.Time       `json:"run_at"`
}

// Decode unmarshals the payload into v
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// RedisScheduler stores jobs in Redis
type RedisScheduler struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisScheduler creates a RedisScheduler
func NewRedisScheduler(client *redis.Client) *RedisScheduler {
	return &RedisScheduler{client: client, now: time.Now}
}

// Schedule enqueues event to run once delay has elapsed
func (s *RedisScheduler) Schedule(ctx context.Context, event string, payload any, delay time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	job := Job{
		ID:      uuid.NewString(),
		Event:   event,
		Payload: raw,
		RunAt:   s.now().Add(delay),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobsKey, job.ID, body)
		pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", event, err)
	}
	return nil
}

// Due lists up to limit job ids whose run time has passed
func (s *RedisScheduler) Due(ctx context.Context, limit int64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", s.now().UnixMilli()),
		Count: limit,
	}).Result()
}

// Claim takes ownership of job id. It returns false when another worker got it first.
func (s *RedisScheduler) Claim(ctx context.Context, id string) (*Job, bool, error) {
	removed, err := s.client.ZRem(ctx, dueKey, id).Result()
	if err != nil {
		return nil, false, err
	}
	if removed == 0 {
		return nil, false, nil
	}

	// read and drop the body together so a claimed job never leaves it behind
	var get *redis.StringCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, jobsKey, id)
		pipe.HDel(ctx, jobsKey, id)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("claim job %s: %w", id, err)
	}
	body, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, false, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, true, nil
}

// Pending returns how many jobs are waiting, due or not
func (s *RedisScheduler) Pending(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, dueKey).Result()
}
