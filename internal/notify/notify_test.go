package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	const key = "test:notifications"

	Send(ctx, NewRedisQueue(client, key), "user-1", "Your appointment has been canceled.")
	Send(ctx, NewRedisQueue(client, key), "user-2", "Dr. House has been assigned to your appointment.")

	items, err := mr.List(key)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	var got []Job
	worker := NewWorker(client, key, func(_ context.Context, job Job) error {
		got = append(got, job)
		return nil
	})

	for i := 0; i < 2; i++ {
		handled, err := worker.ProcessOne(ctx)
		require.NoError(t, err)
		assert.True(t, handled)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "user-1", got[0].RecipientID, "jobs are delivered oldest first")
	assert.Equal(t, "Your appointment has been canceled.", got[0].Message)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestWorkerIdleAndHandlerError(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	const key = "test:notifications"

	worker := NewWorker(client, key, func(context.Context, Job) error { return errors.New("smtp down") })
	worker.wait = 50 * time.Millisecond

	handled, err := worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, handled)

	require.NoError(t, NewRedisQueue(client, key).Enqueue(ctx, Job{RecipientID: "user-1", Message: "hi"}))
	handled, err = worker.ProcessOne(ctx)
	assert.Error(t, err)
	assert.False(t, handled)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	_, client := newRedis(t)
	worker := NewWorker(client, "test:notifications", nil)
	worker.wait = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type failingQueue struct{ calls int }

func (q *failingQueue) Enqueue(context.Context, Job) error {
	q.calls++
	return errors.New("queue unavailable")
}

func TestSendSwallowsFailures(t *testing.T) {
	q := &failingQueue{}
	Send(context.Background(), q, "user-1", "hello")
	assert.Equal(t, 1, q.calls)

	Send(context.Background(), q, "", "hello")
	Send(context.Background(), nil, "user-1", "hello")
	assert.Equal(t, 1, q.calls)
}

func TestLogQueueDeliversImmediately(t *testing.T) {
	assert.NoError(t, LogQueue{Logger: zerolog.Nop()}.Enqueue(context.Background(), Job{RecipientID: "user-1"}))
}
