package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"rently/internal/domain"
)

const errDuplicateEntry = 1062

var (
	_ domain.BookingStore         = (*Repo)(nil)
	_ domain.TicketRepository     = (*Repo)(nil)
	_ domain.RoleChangeRepository = (*Repo)(nil)
	_ domain.NotificationSink     = (*Repo)(nil)
	_ domain.Catalog              = (*Repo)(nil)
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// isDuplicate reports a unique-key violation, optionally on a named key.
func isDuplicate(err error, key string) bool {
	var me *mysqldrv.MySQLError
	if !errors.As(err, &me) || me.Number != errDuplicateEntry {
		return false
	}
	return key == "" || strings.Contains(me.Message, key)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- reference data ----

func (r *Repo) UpsertProperty(ctx context.Context, p domain.Property) error {
	_, err := r.db.ExecContext(ctx, upsertPropertySQL, p.ID, p.HostID, p.MaxGuests, p.Available, p.NightlyPrice)
	return err
}

func (r *Repo) UpsertCoupon(ctx context.Context, c domain.Coupon) error {
	scope := c.Scope
	if scope == "" {
		scope = domain.CouponGlobal
	}
	_, err := r.db.ExecContext(ctx, upsertCouponSQL, c.Code, string(c.Type), c.Value, c.ExpiresAt.UTC(), string(scope))
	return err
}

// ---- bookings ----

func (r *Repo) GetProperty(ctx context.Context, id string) (domain.Property, error) {
	return getProperty(ctx, r.db, getPropertySQL, id)
}

func getProperty(ctx context.Context, q queryer, query, id string) (domain.Property, error) {
	var p domain.Property
	err := q.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.HostID, &p.MaxGuests, &p.Available, &p.NightlyPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Property{}, fmt.Errorf("property %s: %w", id, domain.ErrNotFound)
		}
		return domain.Property{}, err
	}
	return p, nil
}

func (r *Repo) FindOverlappingBookings(ctx context.Context, propertyID string, stay domain.Stay) ([]domain.Booking, error) {
	return findOverlapping(ctx, r.db, propertyID, stay)
}

func findOverlapping(ctx context.Context, q queryer, propertyID string, stay domain.Stay) ([]domain.Booking, error) {
	rows, err := q.QueryContext(ctx, overlappingBookingsSQL,
		propertyID, stay.CheckOut.Format(time.DateOnly), stay.CheckIn.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanBooking(s scanner) (domain.Booking, error) {
	var (
		b          domain.Booking
		coupon     sql.NullString
		status     string
		canceledAt sql.NullTime
	)
	if err := s.Scan(
		&b.ID, &b.PropertyID, &b.HostID, &b.UserID,
		&b.CheckIn, &b.CheckOut,
		&b.NumAdults, &b.NumChildren,
		&b.ConfirmationCode,
		&b.TotalAmount, &b.DiscountAmount,
		&coupon, &status,
		&b.CreatedAt, &canceledAt,
	); err != nil {
		return domain.Booking{}, err
	}
	b.CheckIn = domain.Day(b.CheckIn)
	b.CheckOut = domain.Day(b.CheckOut)
	b.CreatedAt = b.CreatedAt.UTC()
	b.Status = domain.BookingStatus(status)
	b.CanceledAt = nullTime(canceledAt)
	if coupon.Valid {
		c := coupon.String
		b.AppliedCouponCode = &c
	}
	return b, nil
}

func (r *Repo) GetBookingByCode(ctx context.Context, code string) (domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, getBookingByCodeSQL, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, fmt.Errorf("booking %s: %w", code, domain.ErrNotFound)
		}
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *Repo) CancelBooking(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, cancelBookingSQL, at.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// WithinPropertyTx runs fn in one transaction. The property row lock taken by
// LockProperty is held until commit or rollback.
func (r *Repo) WithinPropertyTx(ctx context.Context, propertyID string, fn func(ctx context.Context, tx domain.ReservationTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &reservationTx{tx: tx, propertyID: propertyID}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type reservationTx struct {
	tx         *sql.Tx
	propertyID string
}

func (t *reservationTx) LockProperty(ctx context.Context) (domain.Property, error) {
	return getProperty(ctx, t.tx, lockPropertySQL, t.propertyID)
}

func (t *reservationTx) FindOverlappingBookings(ctx context.Context, propertyID string, stay domain.Stay) ([]domain.Booking, error) {
	return findOverlapping(ctx, t.tx, propertyID, stay)
}

func (t *reservationTx) FindCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	var (
		c      domain.Coupon
		typ    string
		scope  string
		usedAt sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, getCouponSQL, code).Scan(&c.Code, &typ, &c.Value, &c.ExpiresAt, &scope, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, fmt.Errorf("coupon %s: %w", code, domain.ErrCouponNotFound)
		}
		return domain.Coupon{}, err
	}
	c.Type = domain.DiscountType(typ)
	c.Scope = domain.CouponScope(scope)
	c.ExpiresAt = c.ExpiresAt.UTC()
	if c.Scope != domain.CouponPerUser {
		c.UsedAt = nullTime(usedAt)
	}
	return c, nil
}

func (t *reservationTx) MarkCouponUsed(ctx context.Context, c domain.Coupon, userID string, at time.Time) error {
	if c.Scope == domain.CouponPerUser {
		_, err := t.tx.ExecContext(ctx, insertRedemptionSQL, c.Code, userID, at.UTC())
		if isDuplicate(err, "") {
			return fmt.Errorf("coupon %s for user %s: %w", c.Code, userID, domain.ErrCouponAlreadyUsed)
		}
		return err
	}

	res, err := t.tx.ExecContext(ctx, markCouponUsedSQL, at.UTC(), c.Code)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("coupon %s: %w", c.Code, domain.ErrCouponAlreadyUsed)
	}
	return nil
}

// SaveBooking relies on InnoDB rolling back only the failed statement on a
// duplicate key, so the transaction is still usable for a retry.
func (t *reservationTx) SaveBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	_, err := t.tx.ExecContext(ctx, insertBookingSQL,
		b.ID,
		b.PropertyID,
		b.HostID,
		b.UserID,
		b.CheckIn.Format(time.DateOnly),
		b.CheckOut.Format(time.DateOnly),
		b.NumAdults,
		b.NumChildren,
		b.ConfirmationCode,
		b.TotalAmount,
		b.DiscountAmount,
		valStr(b.AppliedCouponCode),
		string(b.Status),
		b.CreatedAt.UTC(),
	)
	if isDuplicate(err, "confirmation_code") {
		return domain.Booking{}, domain.ErrDuplicateConfirmationCode
	}
	if err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

// ---- tickets ----

func (r *Repo) CreateTicket(ctx context.Context, t domain.Ticket) error {
	_, err := r.db.ExecContext(ctx, insertTicketSQL,
		t.ID, t.CreatorID, t.Title, t.Description, string(t.State), t.CreatedAt.UTC(), valTime(t.ClosingDate), t.Version)
	return err
}

func (r *Repo) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	var (
		t       domain.Ticket
		state   string
		closing sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, getTicketSQL, id).
		Scan(&t.ID, &t.CreatorID, &t.Title, &t.Description, &state, &t.CreatedAt, &closing, &t.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ticket{}, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
		}
		return domain.Ticket{}, err
	}
	t.State = domain.TicketState(state)
	t.CreatedAt = t.CreatedAt.UTC()
	t.ClosingDate = nullTime(closing)
	return t, nil
}

func (r *Repo) UpdateTicket(ctx context.Context, t domain.Ticket) (domain.Ticket, error) {
	res, err := r.db.ExecContext(ctx, updateTicketSQL, string(t.State), valTime(t.ClosingDate), t.ID, t.Version)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := r.checkVersioned(ctx, res, getTicketSQL, "ticket", t.ID); err != nil {
		return domain.Ticket{}, err
	}
	t.Version++
	return t, nil
}

// ---- change role requests ----

func (r *Repo) CreateChangeRoleRequest(ctx context.Context, c domain.ChangeRoleRequest) error {
	_, err := r.db.ExecContext(ctx, insertChangeRoleSQL,
		c.ID, c.UserID, c.Motivation, string(c.State), c.CreatedAt.UTC(), c.Version)
	return err
}

func (r *Repo) GetChangeRoleRequest(ctx context.Context, id string) (domain.ChangeRoleRequest, error) {
	var (
		c     domain.ChangeRoleRequest
		state string
	)
	err := r.db.QueryRowContext(ctx, getChangeRoleSQL, id).
		Scan(&c.ID, &c.UserID, &c.Motivation, &state, &c.CreatedAt, &c.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ChangeRoleRequest{}, fmt.Errorf("change role request %s: %w", id, domain.ErrNotFound)
		}
		return domain.ChangeRoleRequest{}, err
	}
	c.State = domain.RoleChangeState(state)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (r *Repo) UpdateChangeRoleRequest(ctx context.Context, c domain.ChangeRoleRequest) (domain.ChangeRoleRequest, error) {
	res, err := r.db.ExecContext(ctx, updateChangeRoleSQL, string(c.State), c.ID, c.Version)
	if err != nil {
		return domain.ChangeRoleRequest{}, err
	}
	if err := r.checkVersioned(ctx, res, getChangeRoleSQL, "change role request", c.ID); err != nil {
		return domain.ChangeRoleRequest{}, err
	}
	c.Version++
	return c, nil
}

// checkVersioned turns a zero-row versioned update into ErrNotFound or
// ErrVersionConflict.
func (r *Repo) checkVersioned(ctx context.Context, res sql.Result, getSQL, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM ("+getSQL+") AS cur", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return domain.ErrVersionConflict
}

// ---- notifications ----

func (r *Repo) CreateNotification(ctx context.Context, recipientID, message string, severity domain.Severity) error {
	_, err := r.db.ExecContext(ctx, insertNotificationSQL,
		uuid.NewString(), recipientID, message, string(severity), time.Now().UTC())
	return err
}

func (r *Repo) ListNotifications(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, listNotificationsSQL, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n   domain.Notification
			sev string
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Message, &sev, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Severity = domain.Severity(sev)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}
