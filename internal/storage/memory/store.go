// Package memory is a process-local implementation of the persistence ports.
// Reservation units are serialized per property with a mutex per property id.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rently/internal/domain"
)

var (
	_ domain.BookingStore         = (*Store)(nil)
	_ domain.TicketRepository     = (*Store)(nil)
	_ domain.RoleChangeRepository = (*Store)(nil)
	_ domain.NotificationSink     = (*Store)(nil)
	_ domain.Catalog              = (*Store)(nil)
)

type redemption struct{ code, userID string }

type Store struct {
	mu            sync.Mutex
	properties    map[string]domain.Property
	bookings      map[string]domain.Booking
	codes         map[string]string // confirmation code -> booking id
	coupons       map[string]domain.Coupon
	redemptions   map[redemption]time.Time
	tickets       map[string]domain.Ticket
	requests      map[string]domain.ChangeRoleRequest
	notifications []domain.Notification
	propertyLocks map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		properties:    make(map[string]domain.Property),
		bookings:      make(map[string]domain.Booking),
		codes:         make(map[string]string),
		coupons:       make(map[string]domain.Coupon),
		redemptions:   make(map[redemption]time.Time),
		tickets:       make(map[string]domain.Ticket),
		requests:      make(map[string]domain.ChangeRoleRequest),
		propertyLocks: make(map[string]*sync.Mutex),
	}
}

// PutProperty and PutCoupon seed reference data owned outside the core.
func (s *Store) PutProperty(p domain.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = p
}

func (s *Store) PutCoupon(c domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.Code] = c
}

func (s *Store) UpsertProperty(ctx context.Context, p domain.Property) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.PutProperty(p)
	return nil
}

// UpsertCoupon replaces the coupon definition but keeps its redemption state.
func (s *Store) UpsertCoupon(ctx context.Context, c domain.Coupon) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.coupons[c.Code]; ok {
		c.UsedAt = cur.UsedAt
	}
	s.coupons[c.Code] = c
	return nil
}

// Coupon returns the stored coupon, for inspection.
func (s *Store) Coupon(code string) (domain.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	return c, ok
}

// Notifications returns every notification created so far, oldest first.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.notifications...)
}

// ---- bookings ----

func (s *Store) GetProperty(ctx context.Context, id string) (domain.Property, error) {
	if err := ctx.Err(); err != nil {
		return domain.Property{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.properties[id]
	if !ok {
		return domain.Property{}, fmt.Errorf("property %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (s *Store) FindOverlappingBookings(ctx context.Context, propertyID string, stay domain.Stay) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlappingLocked(propertyID, stay), nil
}

func (s *Store) overlappingLocked(propertyID string, stay domain.Stay) []domain.Booking {
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.PropertyID == propertyID && b.Status == domain.BookingConfirmed && b.Stay().Overlaps(stay) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out
}

func (s *Store) GetBookingByCode(ctx context.Context, code string) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[s.codes[code]]
	if !ok {
		return domain.Booking{}, fmt.Errorf("booking %s: %w", code, domain.ErrNotFound)
	}
	return b, nil
}

// ListBookings returns every booking for a property, for inspection.
func (s *Store) ListBookings(propertyID string) []domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.PropertyID == propertyID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckIn.Before(out[j].CheckIn) })
	return out
}

func (s *Store) CancelBooking(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != domain.BookingConfirmed {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	b.Status = domain.BookingCanceled
	b.CanceledAt = &at
	s.bookings[id] = b
	return nil
}

func (s *Store) propertyLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.propertyLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.propertyLocks[id] = l
	}
	return l
}

func (s *Store) WithinPropertyTx(ctx context.Context, propertyID string, fn func(ctx context.Context, tx domain.ReservationTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.propertyLock(propertyID)
	l.Lock()
	defer l.Unlock()

	t := &tx{s: s, propertyID: propertyID}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	t.commit()
	return nil
}

// tx buffers bookings until commit. Coupon redemptions and confirmation
// codes are claimed immediately, because units for other properties may
// race for them, and released on rollback.
type tx struct {
	s          *Store
	propertyID string
	pending    []domain.Booking
	undo       []func()
}

func (t *tx) LockProperty(ctx context.Context) (domain.Property, error) {
	return t.s.GetProperty(ctx, t.propertyID)
}

func (t *tx) FindOverlappingBookings(ctx context.Context, propertyID string, stay domain.Stay) ([]domain.Booking, error) {
	out, err := t.s.FindOverlappingBookings(ctx, propertyID, stay)
	if err != nil {
		return nil, err
	}
	for _, b := range t.pending {
		if b.PropertyID == propertyID && b.Stay().Overlaps(stay) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) FindCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	if err := ctx.Err(); err != nil {
		return domain.Coupon{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	c, ok := t.s.coupons[code]
	if !ok {
		return domain.Coupon{}, fmt.Errorf("coupon %s: %w", code, domain.ErrCouponNotFound)
	}
	if c.Scope == domain.CouponPerUser {
		c.UsedAt = nil
	}
	return c, nil
}

func (t *tx) MarkCouponUsed(ctx context.Context, c domain.Coupon, userID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.coupons[c.Code]
	if !ok {
		return fmt.Errorf("coupon %s: %w", c.Code, domain.ErrCouponNotFound)
	}
	if stored.Scope == domain.CouponPerUser {
		k := redemption{code: c.Code, userID: userID}
		if _, used := s.redemptions[k]; used {
			return fmt.Errorf("coupon %s for user %s: %w", c.Code, userID, domain.ErrCouponAlreadyUsed)
		}
		s.redemptions[k] = at
		t.undo = append(t.undo, func() { delete(s.redemptions, k) })
		return nil
	}

	if stored.UsedAt != nil {
		return fmt.Errorf("coupon %s: %w", c.Code, domain.ErrCouponAlreadyUsed)
	}
	stored.UsedAt = &at
	s.coupons[c.Code] = stored
	t.undo = append(t.undo, func() {
		cur := s.coupons[c.Code]
		cur.UsedAt = nil
		s.coupons[c.Code] = cur
	})
	return nil
}

func (t *tx) SaveBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, err
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[b.ConfirmationCode]; taken {
		return domain.Booking{}, domain.ErrDuplicateConfirmationCode
	}
	s.codes[b.ConfirmationCode] = b.ID
	code := b.ConfirmationCode
	t.undo = append(t.undo, func() { delete(s.codes, code) })
	t.pending = append(t.pending, b)
	return b, nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.pending {
		t.s.bookings[b.ID] = b
	}
}

func (t *tx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

// ---- tickets ----

func (s *Store) CreateTicket(ctx context.Context, tk domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[tk.ID] = tk
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticket{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tk, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	return tk, nil
}

func (s *Store) UpdateTicket(ctx context.Context, tk domain.Ticket) (domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticket{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tickets[tk.ID]
	if !ok {
		return domain.Ticket{}, fmt.Errorf("ticket %s: %w", tk.ID, domain.ErrNotFound)
	}
	if cur.Version != tk.Version {
		return domain.Ticket{}, domain.ErrVersionConflict
	}
	tk.Version++
	s.tickets[tk.ID] = tk
	return tk, nil
}

// ---- change role requests ----

func (s *Store) CreateChangeRoleRequest(ctx context.Context, r domain.ChangeRoleRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
	return nil
}

func (s *Store) GetChangeRoleRequest(ctx context.Context, id string) (domain.ChangeRoleRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChangeRoleRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return domain.ChangeRoleRequest{}, fmt.Errorf("change role request %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

func (s *Store) UpdateChangeRoleRequest(ctx context.Context, r domain.ChangeRoleRequest) (domain.ChangeRoleRequest, error) {
	if err := ctx.Err(); err != nil {
		return domain.ChangeRoleRequest{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[r.ID]
	if !ok {
		return domain.ChangeRoleRequest{}, fmt.Errorf("change role request %s: %w", r.ID, domain.ErrNotFound)
	}
	if cur.Version != r.Version {
		return domain.ChangeRoleRequest{}, domain.ErrVersionConflict
	}
	r.Version++
	s.requests[r.ID] = r
	return r, nil
}

// ---- notifications ----

func (s *Store) CreateNotification(ctx context.Context, recipientID, message string, severity domain.Severity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Message:     message,
		Severity:    severity,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}
