package occupancy

import (
	"context"
	"encoding/json"

	"event-access/pkg/logger"

	"github.com/redis/go-redis/v9"
)

type subscribeClient interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Feed relays published snapshots to in-process listeners, one Redis
// subscription per listener.
type Feed struct {
	rdb subscribeClient
}

func NewFeed(rdb subscribeClient) *Feed {
	return &Feed{rdb: rdb}
}

// Watch streams snapshots for eventID until ctx is done. The returned
// channel is closed when the subscription ends.
func (f *Feed) Watch(ctx context.Context, eventID string) (<-chan Snapshot, error) {
	sub := f.rdb.Subscribe(ctx, Channel(eventID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Snapshot, 8)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				snap, err := decodeSnapshot(m.Payload)
				if err != nil {
					logger.From(ctx).Warn("occupancy: bad payload", "channel", m.Channel, "err", err)
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeSnapshot(payload string) (Snapshot, error) {
	var s Snapshot
	err := json.Unmarshal([]byte(payload), &s)
	return s, err
}
