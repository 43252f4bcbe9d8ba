package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRelayChannel is the Redis pub/sub channel carrying changed hospital IDs.
const DefaultRelayChannel = "queuemedix:queue-changed"

// Refresher is told which hospital queue changed.
type Refresher interface {
	QueueChanged(ctx context.Context, hospitalID string)
}

// relayNotice is the payload published on the relay channel.
type relayNotice struct {
	Origin     string `json:"origin"`
	HospitalID string `json:"hospital_id"`
}

// RedisRelay fans queue-change notices out to every server instance, so subscribers
// connected to one instance see mutations committed on another. The local hub is always
// refreshed directly; Redis only carries the notice to the other instances.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	local    Refresher
	instance string
	logger   zerolog.Logger
}

// NewRedisRelay creates a relay that refreshes local for its own mutations and for every
// notice received from another instance.
func NewRedisRelay(client *redis.Client, channel string, local Refresher) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	instance := uuid.NewString()
	return &RedisRelay{
		client:   client,
		channel:  channel,
		local:    local,
		instance: instance,
		logger:   log.With().Str("component", "queue-relay").Str("instance", instance).Logger(),
	}
}

// QueueChanged refreshes this instance's subscribers and publishes hospitalID to the others.
// A failed publish only costs the other instances their update.
func (r *RedisRelay) QueueChanged(ctx context.Context, hospitalID string) {
	r.local.QueueChanged(ctx, hospitalID)

	data, err := json.Marshal(relayNotice{Origin: r.instance, HospitalID: hospitalID})
	if err != nil {
		r.logger.Error().Err(err).Str("hospital_id", hospitalID).Msg("failed to encode relay notice")
		return
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn().Err(err).Str("hospital_id", hospitalID).Msg("relay publish failed, other instances not notified")
	}
}

// Run consumes notices from other instances until ctx is canceled. Notices this instance
// published are skipped since QueueChanged already refreshed locally.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("queue relay subscribed")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("relay subscription to %s closed", r.channel)
			}
			var notice relayNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil || notice.HospitalID == "" {
				r.logger.Warn().Str("payload", msg.Payload).Msg("skipping malformed relay notice")
				continue
			}
			if notice.Origin == r.instance {
				continue
			}
			r.local.QueueChanged(ctx, notice.HospitalID)
		}
	}
}
