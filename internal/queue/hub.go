// Package queue projects hospital appointment queues and broadcasts them to live
// subscribers.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"queuemedix-server/internal/metrics"
)

var (
	// ErrSlowConsumer is returned by a Channel whose send buffer is full.
	ErrSlowConsumer = errors.New("queue channel send buffer full")
	// ErrChannelClosed is returned by a Channel that has been closed.
	ErrChannelClosed = errors.New("queue channel closed")
)

// Channel is one live subscriber connection.
// Send must not block; a channel that cannot take the snapshot immediately returns an error.
type Channel interface {
	Send(snapshot Snapshot) error
	Close() error
}

// Hub keeps, per hospital, the set of subscribed channels.
type Hub struct {
	projector Projector
	logger    zerolog.Logger

	mu          sync.RWMutex
	buckets     map[string]map[Channel]struct{}
	memberships map[Channel]map[string]struct{}

	locksMu sync.Mutex
	locks   map[string]*hospitalLock
}

// hospitalLock is a per-hospital mutex kept only while someone holds or waits on it.
type hospitalLock struct {
	mu   sync.Mutex
	refs int
}

// NewHub creates a hub that projects snapshots with projector.
func NewHub(projector Projector) *Hub {
	return &Hub{
		projector:   projector,
		logger:      log.With().Str("component", "queue-hub").Logger(),
		buckets:     make(map[string]map[Channel]struct{}),
		memberships: make(map[Channel]map[string]struct{}),
		locks:       make(map[string]*hospitalLock),
	}
}

// lockHospital serializes project-then-send per hospital so a later snapshot is never
// overtaken by an earlier one. The returned func releases the lock.
func (h *Hub) lockHospital(hospitalID string) func() {
	h.locksMu.Lock()
	l, ok := h.locks[hospitalID]
	if !ok {
		l = &hospitalLock{}
		h.locks[hospitalID] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, hospitalID)
		}
		h.locksMu.Unlock()
	}
}

// lockedHospitals returns how many hospital locks are held or awaited.
func (h *Hub) lockedHospitals() int {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	return len(h.locks)
}

// Subscribe registers ch under hospitalID and sends it the current snapshot.
// Nothing is broadcast to the other channels.
func (h *Hub) Subscribe(ctx context.Context, hospitalID string, ch Channel) error {
	unlock := h.lockHospital(hospitalID)
	defer unlock()

	snapshot, err := h.projector.Project(ctx, hospitalID)
	if err != nil {
		return err
	}

	h.add(hospitalID, ch)
	if err := ch.Send(snapshot); err != nil {
		h.Unsubscribe(hospitalID, ch)
		return err
	}
	h.logger.Debug().Str("hospital_id", hospitalID).Int("subscribers", h.SubscriberCount(hospitalID)).Msg("channel subscribed")
	return nil
}

func (h *Hub) add(hospitalID string, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket, ok := h.buckets[hospitalID]
	if !ok {
		bucket = make(map[Channel]struct{})
		h.buckets[hospitalID] = bucket
	}
	if _, exists := bucket[ch]; exists {
		return
	}
	bucket[ch] = struct{}{}

	if h.memberships[ch] == nil {
		h.memberships[ch] = make(map[string]struct{})
	}
	h.memberships[ch][hospitalID] = struct{}{}
	metrics.SubscriberAdded()
}

// Unsubscribe removes ch from hospitalID's bucket and discards the bucket once empty.
// It reports whether ch was subscribed; repeated calls are no-ops.
func (h *Hub) Unsubscribe(hospitalID string, ch Channel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(hospitalID, ch)
}

func (h *Hub) removeLocked(hospitalID string, ch Channel) bool {
	bucket, ok := h.buckets[hospitalID]
	if !ok {
		return false
	}
	if _, ok := bucket[ch]; !ok {
		return false
	}

	delete(bucket, ch)
	if len(bucket) == 0 {
		delete(h.buckets, hospitalID)
	}
	if hospitals := h.memberships[ch]; hospitals != nil {
		delete(hospitals, hospitalID)
		if len(hospitals) == 0 {
			delete(h.memberships, ch)
		}
	}
	metrics.SubscriberRemoved()
	return true
}

// Drop deregisters ch from every hospital and closes it. Only the call that actually
// removed the channel closes it.
func (h *Hub) Drop(ch Channel) bool {
	h.mu.Lock()
	hospitals := h.memberships[ch]
	removed := false
	for hospitalID := range hospitals {
		if h.removeLocked(hospitalID, ch) {
			removed = true
		}
	}
	h.mu.Unlock()

	if removed {
		if err := ch.Close(); err != nil {
			h.logger.Debug().Err(err).Msg("closing dropped channel")
		}
	}
	return removed
}

// Publish sends snapshot to every channel subscribed to hospitalID. Channels that fail are
// dropped; the failure never propagates to the caller.
func (h *Hub) Publish(hospitalID string, snapshot Snapshot) {
	h.mu.RLock()
	bucket := h.buckets[hospitalID]
	channels := make([]Channel, 0, len(bucket))
	for ch := range bucket {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	metrics.BroadcastPublished()
	for _, ch := range channels {
		if err := ch.Send(snapshot); err != nil {
			h.logger.Warn().Err(err).Str("hospital_id", hospitalID).Msg("dropping queue channel")
			if h.Drop(ch) {
				metrics.ChannelDropped()
			}
		}
	}
}

// Refresh projects hospitalID's queue and publishes it. Hospitals without subscribers are
// skipped.
func (h *Hub) Refresh(ctx context.Context, hospitalID string) error {
	unlock := h.lockHospital(hospitalID)
	defer unlock()

	if h.SubscriberCount(hospitalID) == 0 {
		return nil
	}

	snapshot, err := h.projector.Project(ctx, hospitalID)
	if err != nil {
		return err
	}
	h.Publish(hospitalID, snapshot)
	return nil
}

// QueueChanged refreshes the hospital's subscribers, logging failures.
func (h *Hub) QueueChanged(ctx context.Context, hospitalID string) {
	if err := h.Refresh(ctx, hospitalID); err != nil {
		h.logger.Error().Err(err).Str("hospital_id", hospitalID).Msg("queue refresh failed")
	}
}

// SubscriberCount returns how many channels watch hospitalID.
func (h *Hub) SubscriberCount(hospitalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buckets[hospitalID])
}

// Hospitals returns the number of hospitals with at least one subscriber.
func (h *Hub) Hospitals() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buckets)
}
