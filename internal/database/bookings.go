package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/models"
)

const bookingColumns = `id, provider_id, client_id, client_name, client_email, client_phone,
	start_at, duration_minutes, status, price, notes, external_ref, created_at, updated_at`

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func (tx *Tx) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, tx.tx, id)
}

// ListActiveBookings returns the provider's non-cancelled bookings overlapping [from, to).
func (db *DB) ListActiveBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error) {
	return listActiveBookings(ctx, db, providerID, from, to)
}

func (tx *Tx) ListActiveBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error) {
	return listActiveBookings(ctx, tx.tx, providerID, from, to)
}

// ListBookings returns every booking of the provider starting in [from, to), in start order.
func (db *DB) ListBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE provider_id = ? AND start_at >= ? AND start_at < ?
              ORDER BY start_at, id`
	return queryBookings(ctx, db, query, providerID, unix(from), unix(to))
}

func (tx *Tx) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				provider_id, client_id, client_name, client_email, client_phone,
				start_at, end_at, duration_minutes, status, price, notes, external_ref,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC().Truncate(time.Second)
	if booking.Status == "" {
		booking.Status = models.StatusBooked
	}
	booking.StartAt = fromUnix(unix(booking.StartAt))

	result, err := tx.tx.ExecContext(ctx, query,
		booking.ProviderID,
		booking.ClientID,
		booking.ClientName,
		booking.ClientEmail,
		booking.ClientPhone,
		unix(booking.StartAt),
		unix(booking.EndAt()),
		booking.Duration,
		booking.Status,
		booking.Price,
		booking.Notes,
		booking.ExternalRef,
		unix(now),
		unix(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (tx *Tx) SetBookingStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error) {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := tx.tx.ExecContext(ctx, query, to, unix(at), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// ListDueBookings returns booked sessions whose end is at or before now.
// providerID 0 selects every provider.
func (tx *Tx) ListDueBookings(ctx context.Context, providerID int64, now time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = ? AND end_at <= ?`
	args := []interface{}{models.StatusBooked, unix(now)}
	if providerID > 0 {
		query += ` AND provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY end_at, id`
	return queryBookings(ctx, tx.tx, query, args...)
}

// SetBookingExternalRef records the calendar event mirrored for a booking.
func (db *DB) SetBookingExternalRef(ctx context.Context, id int64, ref string) error {
	query := `UPDATE bookings SET external_ref = ?, updated_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, ref, unix(time.Now()), id); err != nil {
		return fmt.Errorf("failed to set booking external ref: %w", err)
	}
	return nil
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	return b, err
}

func listActiveBookings(ctx context.Context, q querier, providerID int64, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE provider_id = ? AND status != ? AND start_at < ? AND end_at > ?
              ORDER BY start_at, id`
	return queryBookings(ctx, q, query, providerID, models.StatusCancelled, unix(to), unix(from))
}

func queryBookings(ctx context.Context, q querier, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b         models.Booking
		clientID  sql.NullInt64
		startAt   int64
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&b.ID, &b.ProviderID, &clientID, &b.ClientName, &b.ClientEmail, &b.ClientPhone,
		&startAt, &b.Duration, &b.Status, &b.Price, &b.Notes, &b.ExternalRef, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	if clientID.Valid {
		id := clientID.Int64
		b.ClientID = &id
	}
	b.StartAt = fromUnix(startAt)
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)
	return &b, nil
}
