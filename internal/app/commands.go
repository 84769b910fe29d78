package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"rently/internal/domain"
)

// SyncService copies listings and promotions from the upstream listings
// service into the local catalog the reservation engine reads.
type SyncService struct {
	src     domain.ListingSource
	catalog domain.Catalog
	cache   domain.Cache
}

func NewSyncService(src domain.ListingSource, catalog domain.Catalog, cache domain.Cache) *SyncService {
	return &SyncService{src: src, catalog: catalog, cache: cache}
}

// SyncListing refreshes one property. A listing the upstream no longer knows
// is kept locally but marked unavailable, so existing bookings stay valid and
// no new ones are accepted.
func (s *SyncService) SyncListing(ctx context.Context, id string) error {
	raw, err := s.src.GetListing(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return s.delist(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("fetching listing %s: %w", id, err)
	}

	p, err := mapListing(raw)
	if err != nil {
		return err
	}
	if p.ID != id {
		return fmt.Errorf("%w: asked for listing %s, got %s", domain.ErrInvalidRequest, id, p.ID)
	}
	if err := s.catalog.UpsertProperty(ctx, p); err != nil {
		return fmt.Errorf("upsert property %s: %w", id, err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *SyncService) delist(ctx context.Context, id string) error {
	p, err := s.catalog.GetProperty(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !p.Available {
		return nil
	}
	p.Available = false
	if err := s.catalog.UpsertProperty(ctx, p); err != nil {
		return fmt.Errorf("delist property %s: %w", id, err)
	}
	s.invalidate(ctx, id)
	log.Info().Str("property", id).Msg("listing removed upstream; property delisted")
	return nil
}

// SyncPromotions upserts every valid promotion and reports how many were
// stored. Malformed promotions are skipped with a warning.
func (s *SyncService) SyncPromotions(ctx context.Context) (int, error) {
	raws, err := s.src.GetPromotions(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching promotions: %w", err)
	}
	n := 0
	for _, raw := range raws {
		c, err := mapPromotion(raw)
		if err != nil {
			log.Warn().Err(err).Msg("skipping promotion")
			continue
		}
		if err := s.catalog.UpsertCoupon(ctx, c); err != nil {
			return n, fmt.Errorf("upsert coupon %s: %w", c.Code, err)
		}
		n++
	}
	return n, nil
}

func (s *SyncService) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, propertyKey(id))
	}
}
