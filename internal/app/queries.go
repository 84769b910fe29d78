package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"rently/internal/domain"
)

// QueryService serves reads. Property records are cached; bookings are not,
// since their status can change at any time.
type QueryService struct {
	store    domain.BookingStore
	cache    domain.Cache
	cacheTTL time.Duration
	group    singleflight.Group
}

var _ PropertySource = (*QueryService)(nil)

func NewQueryService(s domain.BookingStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{store: s, cache: c, cacheTTL: ttl}
}

func propertyKey(id string) string { return fmt.Sprintf("property:%s", id) }

func (s *QueryService) GetProperty(ctx context.Context, id string) (domain.Property, error) {
	key := propertyKey(id)
	var p domain.Property
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &p); ok {
			return p, nil
		}
	}
	// concurrent misses for the same property share one store read
	v, err, _ := s.group.Do(key, func() (any, error) {
		p, err := s.store.GetProperty(ctx, id)
		if err != nil {
			return domain.Property{}, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, p, int(s.cacheTTL.Seconds()))
		}
		return p, nil
	})
	if err != nil {
		return domain.Property{}, err
	}
	return v.(domain.Property), nil
}

// InvalidateProperty drops the cached copy of a property.
func (s *QueryService) InvalidateProperty(ctx context.Context, id string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, propertyKey(id))
	}
}

func (s *QueryService) GetBooking(ctx context.Context, code string) (domain.Booking, error) {
	return s.store.GetBookingByCode(ctx, code)
}
