package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const changeChannelPrefix = "outbox:changed:"

// ChangeNotifier broadcasts store-change signals over Redis pub/sub so every
// process sharing a user's outbox can refresh its view and, if it holds the
// lease, wake its flush scheduler.
type ChangeNotifier struct {
	client *redis.Client
}

func NewChangeNotifier(client *redis.Client) *ChangeNotifier {
	return &ChangeNotifier{client: client}
}

func (n *ChangeNotifier) NotifyChanged(ctx context.Context, userID string) error {
	if err := n.client.Publish(ctx, changeChannelPrefix+userID, "changed").Err(); err != nil {
		return fmt.Errorf("publish outbox change: %w", err)
	}
	return nil
}

// SubscribeChanges delivers one signal per published change until ctx ends.
func (n *ChangeNotifier) SubscribeChanges(ctx context.Context, userID string) (<-chan struct{}, error) {
	sub := n.client.Subscribe(ctx, changeChannelPrefix+userID)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe outbox changes: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer sub.Close()
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default: // a wake is already pending
				}
			}
		}
	}()
	return out, nil
}
