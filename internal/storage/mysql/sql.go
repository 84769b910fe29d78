package mysql

const upsertPropertySQL = `
INSERT INTO properties
  (id, host_id, max_guests, available, nightly_price)
VALUES
  (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  host_id       = VALUES(host_id),
  max_guests    = VALUES(max_guests),
  available     = VALUES(available),
  nightly_price = VALUES(nightly_price),
  updated_at    = CURRENT_TIMESTAMP
`

const upsertCouponSQL = `
INSERT INTO coupons
  (code, discount_type, value, expires_at, scope)
VALUES
  (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  discount_type = VALUES(discount_type),
  value         = VALUES(value),
  expires_at    = VALUES(expires_at),
  scope         = VALUES(scope)
`

const insertBookingSQL = `
INSERT INTO bookings
  (id, property_id, host_id, user_id, check_in, check_out, num_adults, num_children,
   confirmation_code, total_amount, discount_amount, coupon_code, status, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Only the GLOBAL scope is tracked on the coupon row; the IS NULL guard makes
// the first committed redemption win across properties.
const markCouponUsedSQL = `
UPDATE coupons SET used_at = ? WHERE code = ? AND used_at IS NULL
`

const insertRedemptionSQL = `
INSERT INTO coupon_redemptions (code, user_id, used_at) VALUES (?, ?, ?)
`

const cancelBookingSQL = `
UPDATE bookings SET status = 'CANCELED', canceled_at = ?
WHERE id = ? AND status = 'CONFIRMED'
`

const insertTicketSQL = `
INSERT INTO tickets (id, creator_id, title, description, state, created_at, closing_date, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const updateTicketSQL = `
UPDATE tickets SET state = ?, closing_date = ?, version = version + 1
WHERE id = ? AND version = ?
`

const insertChangeRoleSQL = `
INSERT INTO change_role_requests (id, user_id, motivation, state, created_at, version)
VALUES (?, ?, ?, ?, ?, ?)
`

const updateChangeRoleSQL = `
UPDATE change_role_requests SET state = ?, version = version + 1
WHERE id = ? AND version = ?
`

const insertNotificationSQL = `
INSERT INTO notifications (id, recipient_id, message, severity, created_at)
VALUES (?, ?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getPropertySQL = `
SELECT id, host_id, max_guests, available, nightly_price
FROM properties
WHERE id = ?
`

// Locks the property row for the rest of the transaction. Every reservation
// unit for the same property queues here.
const lockPropertySQL = getPropertySQL + ` FOR UPDATE`

const bookingColumns = `
  id, property_id, host_id, user_id, check_in, check_out, num_adults, num_children,
  confirmation_code, total_amount, discount_amount, coupon_code, status, created_at, canceled_at
`

// Half-open overlap: existing.check_in < new.check_out AND new.check_in < existing.check_out.
const overlappingBookingsSQL = `
SELECT` + bookingColumns + `
FROM bookings
WHERE property_id = ? AND status = 'CONFIRMED' AND check_in < ? AND ? < check_out
ORDER BY check_in
`

const getBookingByCodeSQL = `
SELECT` + bookingColumns + `
FROM bookings
WHERE confirmation_code = ?
`

const getCouponSQL = `
SELECT code, discount_type, value, expires_at, scope, used_at
FROM coupons
WHERE code = ?
`

const getTicketSQL = `
SELECT id, creator_id, title, description, state, created_at, closing_date, version
FROM tickets
WHERE id = ?
`

const getChangeRoleSQL = `
SELECT id, user_id, motivation, state, created_at, version
FROM change_role_requests
WHERE id = ?
`

const listNotificationsSQL = `
SELECT id, recipient_id, message, severity, created_at
FROM notifications
WHERE recipient_id = ?
ORDER BY created_at, id
`
