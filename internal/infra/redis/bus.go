package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

// Bus fans leaderboard updates out to every instance over Redis pub/sub.
type Bus struct {
	client  *redis.Client
	channel string
}

var _ app.Publisher = (*Bus)(nil)

func NewBus(client *redis.Client, prefix string) *Bus {
	if prefix == "" {
		prefix = "classroom:"
	}
	return &Bus{client: client, channel: prefix + "leaderboard-updates"}
}

func (b *Bus) Publish(ctx context.Context, update domain.LeaderboardUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish leaderboard update: %w", err)
	}
	return nil
}

// Run forwards every update received on the channel into sink until ctx ends.
// ready, if non-nil, is closed once the subscription is active.
func (b *Bus) Run(ctx context.Context, sink app.Publisher, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var update domain.LeaderboardUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				log.Warnf("malformed leaderboard update: %v", err)
				continue
			}
			if err := sink.Publish(ctx, update); err != nil {
				log.Warnf("forward leaderboard update: %v", err)
			}
		}
	}
}
