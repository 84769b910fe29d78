package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rently/internal/domain"
)

/********** alias registries (single source of truth) **********/

var listingAliases = map[string][]string{
	"id":          {"id", "listing_id", "listingId"},
	"host":        {"host_id", "hostId", "host.id", "owner.id"},
	"max_guests":  {"max_guests", "maxGuests", "capacity", "occupancy.max"},
	"available":   {"available", "bookable", "is_active", "active"},
	"status":      {"status", "state"},
	"price_minor": {"nightly_price_cents", "nightlyPriceCents", "price.nightly_cents"},
	"price_major": {"nightly_price", "nightlyPrice", "price.nightly", "price"},
}

var promotionAliases = map[string][]string{
	"code":        {"code", "promo_code", "coupon"},
	"type":        {"discount_type", "discountType", "type", "kind"},
	"value_minor": {"amount_cents", "amountCents", "value_cents"},
	"value":       {"value", "amount", "percent", "percentage"},
	"expires":     {"expires_at", "expiresAt", "valid_until", "validUntil"},
	"scope":       {"scope", "redemption_scope"},
	"per_user":    {"per_user", "perUser", "once_per_user"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstStr: first non-empty string (numbers are formatted) for an alias set.
func firstStr(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		switch v := lookupAny(m, p).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// firstInt64: int64 from JSON numbers or numeric strings.
func firstInt64(m map[string]any, aliases map[string][]string, key string) (int64, bool) {
	for _, p := range aliases[key] {
		switch v := lookupAny(m, p).(type) {
		case float64:
			return int64(v), true
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// firstBool: bool from JSON booleans or "true"/"1"/"yes".
func firstBool(m map[string]any, aliases map[string][]string, key string) (bool, bool) {
	for _, p := range aliases[key] {
		switch v := lookupAny(m, p).(type) {
		case bool:
			return v, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true, true
			case "false", "0", "no":
				return false, true
			}
		}
	}
	return false, false
}

// minorUnits converts a decimal amount in major units ("120", "120.5",
// "120,50") to minor units without going through float.
func minorUnits(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	frac += strings.Repeat("0", 2-len(frac))
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("amount %q is not a positive decimal", s)
	}
	return w*100 + f, nil
}

func parseWhen(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: %w", s, err)
	}
	return t, nil
}

/********** listing mapper **********/

// mapListing turns an upstream listing into a Property. A listing that does
// not say whether it is bookable is taken as bookable unless its status says
// otherwise.
func mapListing(m map[string]any) (domain.Property, error) {
	p := domain.Property{
		ID:     firstStr(m, listingAliases, "id"),
		HostID: firstStr(m, listingAliases, "host"),
	}
	if p.ID == "" || p.HostID == "" {
		return domain.Property{}, fmt.Errorf("%w: listing without id or host", domain.ErrInvalidRequest)
	}

	guests, ok := firstInt64(m, listingAliases, "max_guests")
	if !ok || guests < 1 {
		return domain.Property{}, fmt.Errorf("%w: listing %s has no guest capacity", domain.ErrInvalidRequest, p.ID)
	}
	p.MaxGuests = int(guests)

	if v, ok := firstBool(m, listingAliases, "available"); ok {
		p.Available = v
	} else {
		switch strings.ToLower(firstStr(m, listingAliases, "status")) {
		case "", "active", "listed", "published":
			p.Available = true
		}
	}

	if cents, ok := firstInt64(m, listingAliases, "price_minor"); ok {
		p.NightlyPrice = cents
	} else if s := firstStr(m, listingAliases, "price_major"); s != "" {
		cents, err := minorUnits(s)
		if err != nil {
			return domain.Property{}, fmt.Errorf("%w: listing %s: %v", domain.ErrInvalidRequest, p.ID, err)
		}
		p.NightlyPrice = cents
	}
	return p, nil
}

/********** promotion mapper **********/

func mapPromotion(m map[string]any) (domain.Coupon, error) {
	c := domain.Coupon{Code: strings.ToUpper(firstStr(m, promotionAliases, "code"))}
	if c.Code == "" {
		return domain.Coupon{}, fmt.Errorf("%w: promotion without code", domain.ErrInvalidRequest)
	}

	switch strings.ToLower(firstStr(m, promotionAliases, "type")) {
	case "percentage", "percent", "pct":
		c.Type = domain.DiscountPercentage
	case "fixed", "amount", "flat":
		c.Type = domain.DiscountFixed
	default:
		return domain.Coupon{}, fmt.Errorf("%w: promotion %s has unknown discount type", domain.ErrInvalidRequest, c.Code)
	}

	if c.Type == domain.DiscountFixed {
		if cents, ok := firstInt64(m, promotionAliases, "value_minor"); ok {
			c.Value = cents
		} else {
			s := firstStr(m, promotionAliases, "value")
			if s == "" {
				return domain.Coupon{}, fmt.Errorf("%w: promotion %s has no amount", domain.ErrInvalidRequest, c.Code)
			}
			cents, err := minorUnits(s)
			if err != nil {
				return domain.Coupon{}, fmt.Errorf("%w: promotion %s: %v", domain.ErrInvalidRequest, c.Code, err)
			}
			c.Value = cents
		}
	} else {
		pct, ok := firstInt64(m, promotionAliases, "value")
		if !ok || pct < 0 || pct > 100 {
			return domain.Coupon{}, fmt.Errorf("%w: promotion %s percentage out of range", domain.ErrInvalidRequest, c.Code)
		}
		c.Value = pct
	}

	exp := firstStr(m, promotionAliases, "expires")
	if exp == "" {
		return domain.Coupon{}, fmt.Errorf("%w: promotion %s has no expiry", domain.ErrInvalidRequest, c.Code)
	}
	at, err := parseWhen(exp)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("%w: promotion %s: %v", domain.ErrInvalidRequest, c.Code, err)
	}
	c.ExpiresAt = at

	c.Scope = domain.CouponGlobal
	if perUser, _ := firstBool(m, promotionAliases, "per_user"); perUser ||
		strings.EqualFold(firstStr(m, promotionAliases, "scope"), string(domain.CouponPerUser)) {
		c.Scope = domain.CouponPerUser
	}
	return c, nil
}
