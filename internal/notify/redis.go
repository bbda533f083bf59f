package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel board changes are published on.
const DefaultChannel = "taskboard:boards"

type boardEvent struct {
	BoardID string    `json:"board_id"`
	At      time.Time `json:"at"`
}

// RedisBroker publishes board changes through Redis so every server process
// sharing the database wakes its own stream subscribers. Subscriptions are
// served from a local Hub that Run keeps fed.
type RedisBroker struct {
	rc      *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger

	// newBackOff builds the reconnect policy; replaced in tests.
	newBackOff func() backoff.BackOff
}

// NewRedisBroker returns a broker on channel. An empty channel uses DefaultChannel.
func NewRedisBroker(rc *redis.Client, channel string, log *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBroker{
		rc:      rc,
		channel: channel,
		hub:     NewHub(),
		log:     log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Publish sends a change event for boardID to every process.
func (b *RedisBroker) Publish(ctx context.Context, boardID string) error {
	payload, err := json.Marshal(boardEvent{BoardID: boardID, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal board event: %w", err)
	}
	if err := b.rc.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish board event: %w", err)
	}
	return nil
}

// Subscribe registers for changes to boardID delivered by Run.
func (b *RedisBroker) Subscribe(ctx context.Context, boardID string) (<-chan struct{}, func()) {
	return b.hub.Subscribe(ctx, boardID)
}

// Run forwards events from Redis to local subscribers until ctx is done,
// resubscribing with backoff whenever the subscription drops.
func (b *RedisBroker) Run(ctx context.Context) error {
	policy := b.newBackOff()
	for {
		err := b.consume(ctx, policy)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("redis subscription lost: %w", err)
		}
		b.log.Warn("redis subscription lost, reconnecting",
			zap.String("channel", b.channel),
			zap.Duration("retry_in", wait),
			zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (b *RedisBroker) consume(ctx context.Context, policy backoff.BackOff) error {
	sub := b.rc.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	policy.Reset()
	b.log.Info("subscribed to board events", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			var ev boardEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.BoardID == "" {
				b.log.Error("unable to parse board event", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			_ = b.hub.Publish(ctx, ev.BoardID)
		}
	}
}
