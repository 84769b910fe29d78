package redisad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rently/internal/domain"
	"rently/internal/events"
)

var _ events.Handler = (*Relay)(nil)

// Envelope is what Relay writes to the channel.
type Envelope struct {
	Key         domain.EventKey `json:"key"`
	Payload     any             `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Relay forwards dispatched events to a Redis pub/sub channel so that other
// processes can react to them. Delivery is at most once.
type Relay struct {
	c       *redis.Client
	channel string
	now     func() time.Time
}

func NewRelay(c *redis.Client, channel string) *Relay {
	return &Relay{c: c, channel: channel, now: time.Now}
}

// Register subscribes the relay to every domain event.
func (r *Relay) Register(d *events.Dispatcher) {
	for _, key := range domain.EventKeys {
		d.Subscribe(key, r)
	}
}

func (r *Relay) Handle(ctx context.Context, e domain.Event) error {
	b, err := json.Marshal(Envelope{Key: e.Key, Payload: e.Payload, PublishedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.Key, err)
	}
	if err := r.c.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("relaying %s: %w", e.Key, err)
	}
	return nil
}
