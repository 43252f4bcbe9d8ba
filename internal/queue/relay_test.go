package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRefresher struct {
	mu        sync.Mutex
	hospitals []string
}

func (r *recordingRefresher) QueueChanged(_ context.Context, hospitalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hospitals = append(r.hospitals, hospitalID)
}

func (r *recordingRefresher) count(hospitalID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.hospitals {
		if h == hospitalID {
			n++
		}
	}
	return n
}

func (r *recordingRefresher) seen(hospitalID string) bool {
	return r.count(hospitalID) > 0
}

func runRelay(t *testing.T, relay *RedisRelay) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("relay did not stop")
		}
	})
}

func TestRedisRelayRefreshesLocallyWithoutSubscription(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	local := &recordingRefresher{}
	NewRedisRelay(client, "", local).QueueChanged(context.Background(), "h1")

	assert.Equal(t, 1, local.count("h1"), "the committing instance refreshes its own subscribers")
}

func TestRedisRelayFansOutToOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	localA, localB := &recordingRefresher{}, &recordingRefresher{}
	relayA := NewRedisRelay(client, "", localA)
	relayB := NewRedisRelay(client, "", localB)
	runRelay(t, relayA)
	runRelay(t, relayB)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultRelayChannel)[DefaultRelayChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	relayA.QueueChanged(context.Background(), "h1")
	assert.Eventually(t, func() bool { return localB.seen("h1") }, 2*time.Second, 10*time.Millisecond)

	// Notices on one subscription arrive in order, so once A sees B's later notice any echo
	// of its own would already have been handled.
	relayB.QueueChanged(context.Background(), "h2")
	assert.Eventually(t, func() bool { return localA.seen("h2") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, localA.count("h1"), "own notices are not applied twice")
	assert.Equal(t, 1, localB.count("h2"))
}

func TestRedisRelaySkipsMalformedNotices(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	local := &recordingRefresher{}
	runRelay(t, NewRedisRelay(client, "", local))
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultRelayChannel)[DefaultRelayChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Publish(context.Background(), DefaultRelayChannel, "not-json").Err())
	require.NoError(t, client.Publish(context.Background(), DefaultRelayChannel, `{"origin":"other","hospital_id":"h9"}`).Err())

	assert.Eventually(t, func() bool { return local.seen("h9") }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, local.seen("not-json"))
}

func TestRedisRelayRefreshesLocallyWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	local := &recordingRefresher{}
	NewRedisRelay(client, "", local).QueueChanged(context.Background(), "h1")

	require.Equal(t, 1, local.count("h1"))
}
