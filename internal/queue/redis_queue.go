package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/helpdesk-labs/triage-service/internal/domain"
	apperrors "github.com/helpdesk-labs/triage-service/pkg/util/errorutil"
)

// blockSlice bounds each BLMOVE; go-redis rounds shorter waits up to a second.
const blockSlice = time.Second

// promoteScript moves due delayed ids back to the ready list.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(ids) do
  if redis.call('ZREM', KEYS[1], id) == 1 then
    redis.call('LPUSH', KEYS[2], id)
    redis.call('HSET', ARGV[2] .. id, 'state', 'queued')
  end
end
return #ids
`)

// RedisQueue stores jobs in Redis:
//
//	{prefix}:{name}:ready     LIST  ids waiting, pushed left, taken right
//	{prefix}:{name}:active    LIST  ids reserved by a worker
//	{prefix}:{name}:delayed   ZSET  ids waiting for a retry, scored by due unix ms
//	{prefix}:{name}:dead      LIST  ids whose attempts are exhausted
//	{prefix}:{name}:job:{id}  HASH  payload and bookkeeping
type RedisQueue struct {
	client *redis.Client
	prefix string
	opts   Options
}

// NewRedisQueue creates a queue under keyPrefix:name.
func NewRedisQueue(client *redis.Client, keyPrefix, name string, opts Options) *RedisQueue {
	return &RedisQueue{
		client: client,
		prefix: keyPrefix + ":" + name,
		opts:   opts.withDefaults(),
	}
}

func (q *RedisQueue) readyKey() string   { return q.prefix + ":ready" }
func (q *RedisQueue) activeKey() string  { return q.prefix + ":active" }
func (q *RedisQueue) delayedKey() string { return q.prefix + ":delayed" }
func (q *RedisQueue) deadKey() string    { return q.prefix + ":dead" }
func (q *RedisQueue) jobKeyPrefix() string {
	return q.prefix + ":job:"
}
func (q *RedisQueue) jobKey(id string) string { return q.jobKeyPrefix() + id }

func (q *RedisQueue) Enqueue(ctx context.Context, payload domain.TriageJob) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", apperrors.NewValidationError("invalid triage job", map[string]any{"reason": err.Error()})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	id := uuid.NewString()
	now := formatTime(time.Now())
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id),
			"payload", string(raw),
			"state", string(domain.JobStateQueued),
			"attempts", 0,
			"max_attempts", q.opts.MaxAttempts,
			"last_error", "",
			"enqueued_at", now,
			"updated_at", now,
		)
		pipe.LPush(ctx, q.readyKey(), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) Reserve(ctx context.Context, wait time.Duration) (*Job, error) {
	// Block in slices so retries that come due during the wait are promoted.
	deadline := time.Now().Add(wait)
	var id string
	for {
		if err := q.promoteDue(ctx); err != nil {
			return nil, err
		}
		var err error
		id, err = q.client.BLMove(ctx, q.readyKey(), q.activeKey(), "RIGHT", "LEFT", blockSlice).Result()
		if errors.Is(err, redis.Nil) {
			if time.Now().Before(deadline) {
				continue
			}
			return nil, ErrNoJob
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("reserve job: %w", err)
		}
		break
	}

	var fields *redis.MapStringStringCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, q.jobKey(id), "attempts", 1)
		pipe.HSet(ctx, q.jobKey(id), "state", string(domain.JobStateRunning), "updated_at", formatTime(time.Now()))
		fields = pipe.HGetAll(ctx, q.jobKey(id))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	job, err := decodeJob(id, fields.Val())
	if err != nil {
		// Corrupt records cannot succeed on retry.
		stub := &Job{ID: id, State: domain.JobStateRunning, MaxAttempts: 1, Attempts: 1}
		if _, failErr := q.Fail(ctx, stub, Permanent(err)); failErr != nil {
			return nil, failErr
		}
		return nil, ErrNoJob
	}
	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	now := time.Now()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.activeKey(), 1, job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID), "state", string(domain.JobStateDone), "last_error", "", "updated_at", formatTime(now))
		pipe.Expire(ctx, q.jobKey(job.ID), q.opts.DoneRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	job.State = domain.JobStateDone
	job.LastError = ""
	job.UpdatedAt = now
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) (domain.JobState, error) {
	now := time.Now()
	state := nextState(job, cause)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.activeKey(), 1, job.ID)
		pipe.HSet(ctx, q.jobKey(job.ID), "state", string(state), "last_error", errorText(cause), "updated_at", formatTime(now))
		if state == domain.JobStateDead {
			pipe.LPush(ctx, q.deadKey(), job.ID)
			return nil
		}
		due := now.Add(Backoff(q.opts.BackoffBase, job.Attempts))
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fail job: %w", err)
	}
	job.State = state
	job.LastError = errorText(cause)
	job.UpdatedAt = now
	return state, nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return decodeJob(id, fields)
}

// DeadLetters lists dead jobs, most recent first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := q.client.LRange(ctx, q.deadKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, q.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load dead letters: %w", err)
	}
	out := make([]Job, 0, len(ids))
	for i, id := range ids {
		job, err := decodeJob(id, cmds[i].Val())
		if err != nil {
			out = append(out, Job{ID: id, State: domain.JobStateDead, LastError: err.Error()})
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, id string) error {
	removed, err := q.client.LRem(ctx, q.deadKey(), 1, id).Result()
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if removed == 0 {
		exists, err := q.client.Exists(ctx, q.jobKey(id)).Result()
		if err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		if exists == 0 {
			return ErrJobNotFound
		}
		return ErrNotDead
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(id), "state", string(domain.JobStateQueued), "attempts", 0, "updated_at", formatTime(time.Now()))
		pipe.LPush(ctx, q.readyKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) RecoverInFlight(ctx context.Context) (int, error) {
	n := 0
	for {
		id, err := q.client.LMove(ctx, q.activeKey(), q.readyKey(), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover in-flight jobs: %w", err)
		}
		if err := q.client.HSet(ctx, q.jobKey(id), "state", string(domain.JobStateQueued)).Err(); err != nil {
			return n, fmt.Errorf("recover in-flight jobs: %w", err)
		}
		n++
	}
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var ready, active, delayed, dead *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.LLen(ctx, q.readyKey())
		active = pipe.LLen(ctx, q.activeKey())
		delayed = pipe.ZCard(ctx, q.delayedKey())
		dead = pipe.LLen(ctx, q.deadKey())
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Ready: ready.Val(), Running: active.Val(), Delayed: delayed.Val(), Dead: dead.Val()}, nil
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	err := promoteScript.Run(ctx, q.client, []string{q.delayedKey(), q.readyKey()}, now, q.jobKeyPrefix()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("promote delayed jobs: %w", err)
	}
	return nil
}

func decodeJob(id string, fields map[string]string) (*Job, error) {
	if len(fields) == 0 || fields["payload"] == "" {
		return nil, fmt.Errorf("job %s has no payload", id)
	}
	var payload domain.TriageJob
	if err := json.Unmarshal([]byte(fields["payload"]), &payload); err != nil {
		return nil, fmt.Errorf("job %s payload: %w", id, err)
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("job %s payload: %w", id, err)
	}
	attempts, _ := strconv.Atoi(fields["attempts"])
	maxAttempts, _ := strconv.Atoi(fields["max_attempts"])
	return &Job{
		ID:          id,
		Payload:     payload,
		State:       domain.JobState(fields["state"]),
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		LastError:   fields["last_error"],
		EnqueuedAt:  parseTime(fields["enqueued_at"]),
		UpdatedAt:   parseTime(fields["updated_at"]),
	}, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
