package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu       sync.Mutex
	received []Snapshot
	fail     bool
	closed   int
}

func (c *fakeChannel) Send(s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrSlowConsumer
	}
	c.received = append(c.received, s)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeChannel) snapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Snapshot(nil), c.received...)
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type stubProjector struct {
	mu      sync.Mutex
	entries map[string][]Entry
	err     error
	calls   int
}

func (p *stubProjector) Project(_ context.Context, hospitalID string) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return Snapshot{}, p.err
	}
	data := append([]Entry{}, p.entries[hospitalID]...)
	return Snapshot{Type: MessageTypeQueueUpdate, HospitalID: hospitalID, Data: data}, nil
}

func (p *stubProjector) set(hospitalID string, entries ...Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries == nil {
		p.entries = make(map[string][]Entry)
	}
	p.entries[hospitalID] = entries
}

func TestSubscribeSendsSnapshotToNewChannelOnly(t *testing.T) {
	projector := &stubProjector{}
	projector.set("h1", Entry{ID: "a1"})
	hub := NewHub(projector)
	ctx := context.Background()

	first, second := &fakeChannel{}, &fakeChannel{}
	require.NoError(t, hub.Subscribe(ctx, "h1", first))
	require.NoError(t, hub.Subscribe(ctx, "h1", second))

	assert.Len(t, first.snapshots(), 1)
	require.Len(t, second.snapshots(), 1)
	assert.Equal(t, "a1", second.snapshots()[0].Data[0].ID)
	assert.Equal(t, 2, hub.SubscriberCount("h1"))
}

func TestSubscribeProjectionErrorLeavesNoRegistration(t *testing.T) {
	hub := NewHub(&stubProjector{err: errors.New("db down")})

	err := hub.Subscribe(context.Background(), "h1", &fakeChannel{})
	require.Error(t, err)
	assert.Equal(t, 0, hub.SubscriberCount("h1"))
	assert.Equal(t, 0, hub.Hospitals())
}

func TestSubscribeFailedInitialSend(t *testing.T) {
	hub := NewHub(&stubProjector{})

	err := hub.Subscribe(context.Background(), "h1", &fakeChannel{fail: true})
	assert.ErrorIs(t, err, ErrSlowConsumer)
	assert.Equal(t, 0, hub.Hospitals())
}

func TestUnsubscribeDiscardsEmptyBucket(t *testing.T) {
	hub := NewHub(&stubProjector{})
	ctx := context.Background()
	a, b := &fakeChannel{}, &fakeChannel{}
	require.NoError(t, hub.Subscribe(ctx, "h1", a))
	require.NoError(t, hub.Subscribe(ctx, "h1", b))

	assert.True(t, hub.Unsubscribe("h1", a))
	assert.False(t, hub.Unsubscribe("h1", a))
	assert.Equal(t, 1, hub.Hospitals())

	assert.True(t, hub.Unsubscribe("h1", b))
	assert.Equal(t, 0, hub.Hospitals())
	assert.False(t, hub.Unsubscribe("h2", b))
}

func TestPublishIdenticalSnapshotAndDropsFailing(t *testing.T) {
	hub := NewHub(&stubProjector{})
	ctx := context.Background()
	healthy, other, broken := &fakeChannel{}, &fakeChannel{}, &fakeChannel{}
	for _, ch := range []*fakeChannel{healthy, other, broken} {
		require.NoError(t, hub.Subscribe(ctx, "h1", ch))
	}
	broken.mu.Lock()
	broken.fail = true
	broken.mu.Unlock()

	snapshot := Snapshot{Type: MessageTypeQueueUpdate, HospitalID: "h1", Data: []Entry{{ID: "a1"}, {ID: "a2"}}}
	hub.Publish("h1", snapshot)

	assert.Equal(t, snapshot, healthy.snapshots()[1])
	assert.Equal(t, snapshot, other.snapshots()[1])
	assert.Equal(t, 2, hub.SubscriberCount("h1"))
	assert.Equal(t, 1, broken.closeCount())

	hub.Publish("h1", snapshot)
	assert.Len(t, healthy.snapshots(), 3)
	assert.Equal(t, 1, broken.closeCount(), "dropped channel is not written or closed again")
}

func TestPublishToUnknownHospitalIsNoop(t *testing.T) {
	hub := NewHub(&stubProjector{})
	ch := &fakeChannel{}
	require.NoError(t, hub.Subscribe(context.Background(), "h1", ch))

	hub.Publish("h2", Snapshot{HospitalID: "h2"})
	assert.Len(t, ch.snapshots(), 1)
}

func TestDropRemovesFromEveryHospitalOnce(t *testing.T) {
	hub := NewHub(&stubProjector{})
	ctx := context.Background()
	ch := &fakeChannel{}
	require.NoError(t, hub.Subscribe(ctx, "h1", ch))
	require.NoError(t, hub.Subscribe(ctx, "h2", ch))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Drop(ch)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ch.closeCount())
	assert.Equal(t, 0, hub.Hospitals())
}

func TestRefreshPublishesFreshProjection(t *testing.T) {
	projector := &stubProjector{}
	hub := NewHub(projector)
	ctx := context.Background()
	ch := &fakeChannel{}
	require.NoError(t, hub.Subscribe(ctx, "h1", ch))

	projector.set("h1", Entry{ID: "a1", Status: "pending"})
	hub.QueueChanged(ctx, "h1")

	got := ch.snapshots()
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Data)
	assert.Equal(t, []Entry{{ID: "a1", Status: "pending"}}, got[1].Data)
}

func TestRefreshSkipsHospitalsWithoutSubscribers(t *testing.T) {
	projector := &stubProjector{}
	hub := NewHub(projector)

	require.NoError(t, hub.Refresh(context.Background(), "h1"))
	assert.Zero(t, projector.calls)
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	hub := NewHub(&stubProjector{})
	ctx := context.Background()

	var wg sync.WaitGroup
	channels := make([]*fakeChannel, 20)
	for i := range channels {
		channels[i] = &fakeChannel{}
		wg.Add(2)
		go func(ch *fakeChannel, hospital string) {
			defer wg.Done()
			assert.NoError(t, hub.Subscribe(ctx, hospital, ch))
		}(channels[i], fmt.Sprintf("h%d", i%3))
		go func(hospital string) {
			defer wg.Done()
			hub.QueueChanged(ctx, hospital)
		}(fmt.Sprintf("h%d", i%3))
	}
	wg.Wait()

	total := 0
	for i := 0; i < 3; i++ {
		total += hub.SubscriberCount(fmt.Sprintf("h%d", i))
	}
	assert.Equal(t, len(channels), total)
	for _, ch := range channels {
		assert.NotEmpty(t, ch.snapshots())
	}
}

func TestHospitalLocksReleasedAfterUse(t *testing.T) {
	hub := NewHub(&stubProjector{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		hospitalID := fmt.Sprintf("h%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := &fakeChannel{}
			assert.NoError(t, hub.Subscribe(ctx, hospitalID, ch))
			assert.NoError(t, hub.Refresh(ctx, hospitalID))
			hub.Drop(ch)
			assert.NoError(t, hub.Refresh(ctx, hospitalID))
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.Hospitals())
	assert.Zero(t, hub.lockedHospitals(), "no lock is kept for hospitals nobody is using")
}
