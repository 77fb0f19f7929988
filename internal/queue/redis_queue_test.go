package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisQueue connects to TRIAGE_TEST_REDIS_ADDR and isolates the test
// under a random key prefix.
func newTestRedisQueue(t *testing.T, opts Options) *RedisQueue {
	t.Helper()
	addr := os.Getenv("TRIAGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRIAGE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis unreachable: %v", err)
	}
	prefix := "triage-test-" + uuid.NewString()
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
	})
	return NewRedisQueue(client, prefix, "triageQueue", opts)
}

func TestRedisQueueContract(t *testing.T) {
	exerciseQueue(t, newTestRedisQueue(t, Options{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond}))
}

func TestRedisQueueReserveReportsUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	q := NewRedisQueue(client, "triage", "triageQueue", Options{})

	job, err := q.Reserve(context.Background(), 10*time.Millisecond)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoJob)
	assert.Nil(t, job)
}

func TestRedisQueueKeys(t *testing.T) {
	q := NewRedisQueue(nil, "triage", "triageQueue", Options{})
	assert.Equal(t, "triage:triageQueue:ready", q.readyKey())
	assert.Equal(t, "triage:triageQueue:active", q.activeKey())
	assert.Equal(t, "triage:triageQueue:delayed", q.delayedKey())
	assert.Equal(t, "triage:triageQueue:dead", q.deadKey())
	assert.Equal(t, "triage:triageQueue:job:abc", q.jobKey("abc"))
}

func TestDecodeJobRejectsBadPayload(t *testing.T) {
	_, err := decodeJob("j1", map[string]string{"payload": `{"ticketId":"t"}`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traceId")

	job, err := decodeJob("j2", map[string]string{
		"payload":      `{"ticketId":"t","traceId":"tr"}`,
		"attempts":     "2",
		"max_attempts": "3",
		"state":        "failed",
		"last_error":   "boom",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, "boom", job.LastError)
}
