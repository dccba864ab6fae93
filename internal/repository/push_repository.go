package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/ibs-portal-api/internal/models"
)

// PushRepository publishes notification hints over Redis pub/sub, one channel per recipient.
type PushRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewPushRepository constructs a publisher. Channels are named "<prefix>:<user_id>".
func NewPushRepository(client *redis.Client, prefix string, logger *zap.Logger) *PushRepository {
	if prefix == "" {
		prefix = "notifications"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushRepository{client: client, prefix: prefix, logger: logger}
}

// Channel returns the pub/sub channel of a recipient.
func (r *PushRepository) Channel(userID int64) string {
	return r.prefix + ":" + strconv.FormatInt(userID, 10)
}

// Publish sends an event to the recipient's channel.
func (r *PushRepository) Publish(ctx context.Context, event models.NotificationEvent) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}
	if err := r.client.Publish(ctx, r.Channel(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification event: %w", err)
	}
	return nil
}

// Subscribe listens on the recipient's channel until ctx ends or the returned cancel runs.
func (r *PushRepository) Subscribe(ctx context.Context, userID int64) (<-chan models.NotificationEvent, func(), error) {
	if r.client == nil {
		return nil, nil, fmt.Errorf("push channel unavailable")
	}

	sub := r.client.Subscribe(ctx, r.Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	ctx, stop := context.WithCancel(ctx)
	out := make(chan models.NotificationEvent, 8)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = sub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.NotificationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					r.logger.Warn("ignoring malformed notification event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				default:
					// Events only mean "re-fetch"; a full buffer already guarantees one.
				}
			}
		}
	}()

	return out, cancel, nil
}
