package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parkgate/parkgate/internal/domain"
)

// LifecyclePubSub broadcasts session and reservation lifecycle events
// to external consumers (display boards, notification dispatchers).
type LifecyclePubSub struct {
	rdb     *redis.Client
	channel string
}

func NewLifecyclePubSub(rdb *redis.Client) *LifecyclePubSub {
	return &LifecyclePubSub{
		rdb:     rdb,
		channel: ChannelLifecycle(),
	}
}

func (p *LifecyclePubSub) Publish(ctx context.Context, ev domain.LifecycleEvent) error {
	if ev.TsUnix == 0 {
		ev.TsUnix = time.Now().Unix()
	}

	b, _ := json.Marshal(ev)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *LifecyclePubSub) Subscribe(
	ctx context.Context,
	handler func(ctx context.Context, ev domain.LifecycleEvent),
) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.LifecycleEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.Type != "" {
				handler(ctx, ev)
			}
		}
	}
}
