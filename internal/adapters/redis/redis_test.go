package redisad_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisad "rently/internal/adapters/redis"
	"rently/internal/domain"
	"rently/internal/events"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestCache_SetGetDel(t *testing.T) {
	mr, c := newClient(t)
	cache := redisad.New(c)
	ctx := context.Background()

	var p domain.Property
	if ok, err := cache.Get(ctx, "property:P", &p); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	want := domain.Property{ID: "P", HostID: "h", MaxGuests: 3, Available: true, NightlyPrice: 9900}
	if err := cache.Set(ctx, "property:P", want, 60); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("property:P"); ttl != time.Minute {
		t.Fatalf("ttl %v", ttl)
	}
	ok, err := cache.Get(ctx, "property:P", &p)
	if !ok || err != nil || p != want {
		t.Fatalf("got %+v ok=%v err=%v", p, ok, err)
	}

	mr.FastForward(2 * time.Minute)
	if ok, _ := cache.Get(ctx, "property:P", &p); ok {
		t.Fatal("entry outlived its ttl")
	}

	_ = cache.Set(ctx, "property:P", want, 60)
	if err := cache.Del(ctx, "property:P"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("property:P") {
		t.Fatal("del left the key")
	}
}

func TestRelay_PublishesEnvelope(t *testing.T) {
	_, c := newClient(t)
	ctx := context.Background()

	sub := c.Subscribe(ctx, "rently.events")
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus := events.NewDispatcher()
	redisad.NewRelay(c, "rently.events").Register(bus)

	b := domain.Booking{ID: "b1", ConfirmationCode: "ABCDEFGHJK", PropertyID: "P"}
	if err := bus.Publish(ctx, domain.EventBookingCreated, b); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got struct {
			Key     domain.EventKey `json:"key"`
			Payload domain.Booking  `json:"payload"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Key != domain.EventBookingCreated || got.Payload.ConfirmationCode != "ABCDEFGHJK" {
			t.Fatalf("envelope %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message relayed")
	}
}

func TestRelay_ServerDown(t *testing.T) {
	mr, c := newClient(t)
	mr.Close()

	r := redisad.NewRelay(c, "rently.events")
	err := r.Handle(context.Background(), domain.Event{Key: domain.EventBookingCanceled, Payload: domain.Booking{}})
	if err == nil {
		t.Fatal("want error when redis is unreachable")
	}
}
