package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking represents a stay request for a listing over a date range.
// Status moves out of pending only through payment verification or an
// explicit cancellation.
type Booking struct {
	ID              int64         `json:"id"`
	ListingID       int64         `json:"listing_id"`
	UserID          int64         `json:"user_id"`
	StartDate       time.Time     `json:"start_date"`
	EndDate         time.Time     `json:"end_date"`
	TotalPriceCents int64         `json:"total_price_cents"`
	Currency        string        `json:"currency"`
	Status          BookingStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// BookingDetail is the joined view the payment flow needs: the guest
// identity for the gateway payload plus the listing for email content.
type BookingDetail struct {
	Booking
	GuestEmail      string `json:"guest_email"`
	GuestFirstName  string `json:"guest_first_name"`
	GuestLastName   string `json:"guest_last_name"`
	ListingTitle    string `json:"listing_title"`
	ListingLocation string `json:"listing_location"`
}

type BookingsStore struct {
	db *pgxpool.Pool
}

func (s *BookingsStore) Create(ctx context.Context, booking *Booking) error {
	const query = `
		INSERT INTO bookings (listing_id, user_id, start_date, end_date, total_price_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	return s.db.QueryRow(ctx, query,
		booking.ListingID,
		booking.UserID,
		booking.StartDate,
		booking.EndDate,
		booking.TotalPriceCents,
		booking.Currency,
		booking.Status,
	).Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
}

func (s *BookingsStore) GetByID(ctx context.Context, bookingID int64) (*Booking, error) {
	const query = `
		SELECT id, listing_id, user_id, start_date, end_date, total_price_cents, currency, status, created_at, updated_at
		FROM bookings
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var b Booking
	err := s.db.QueryRow(ctx, query, bookingID).Scan(
		&b.ID,
		&b.ListingID,
		&b.UserID,
		&b.StartDate,
		&b.EndDate,
		&b.TotalPriceCents,
		&b.Currency,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &b, nil
}

func (s *BookingsStore) GetDetail(ctx context.Context, bookingID int64) (*BookingDetail, error) {
	const query = `
		SELECT b.id, b.listing_id, b.user_id, b.start_date, b.end_date, b.total_price_cents, b.currency, b.status,
		       b.created_at, b.updated_at,
		       u.email, u.first_name, u.last_name,
		       l.title, l.location
		FROM bookings b
		JOIN users u ON u.id = b.user_id
		JOIN listings l ON l.id = b.listing_id
		WHERE b.id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var d BookingDetail
	err := s.db.QueryRow(ctx, query, bookingID).Scan(
		&d.ID,
		&d.ListingID,
		&d.UserID,
		&d.StartDate,
		&d.EndDate,
		&d.TotalPriceCents,
		&d.Currency,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.GuestEmail,
		&d.GuestFirstName,
		&d.GuestLastName,
		&d.ListingTitle,
		&d.ListingLocation,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (s *BookingsStore) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Booking, int, error) {
	const query = `
		SELECT id, listing_id, user_id, start_date, end_date, total_price_cents, currency, status, created_at, updated_at,
		       COUNT(*) OVER() AS total_count
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []Booking
		total int
	)
	for rows.Next() {
		var b Booking
		if err := rows.Scan(
			&b.ID,
			&b.ListingID,
			&b.UserID,
			&b.StartDate,
			&b.EndDate,
			&b.TotalPriceCents,
			&b.Currency,
			&b.Status,
			&b.CreatedAt,
			&b.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}

	return out, total, rows.Err()
}

// UpdateDates moves a booking that is still pending. Confirmed and
// cancelled bookings are frozen.
func (s *BookingsStore) UpdateDates(ctx context.Context, booking *Booking) error {
	const query = `
		UPDATE bookings
		SET start_date = $1, end_date = $2, total_price_cents = $3, updated_at = now()
		WHERE id = $4 AND status = 'pending'
		RETURNING updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := s.db.QueryRow(ctx, query,
		booking.StartDate,
		booking.EndDate,
		booking.TotalPriceCents,
		booking.ID,
	).Scan(&booking.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return err
	}

	return nil
}

func (s *BookingsStore) Cancel(ctx context.Context, bookingID int64) error {
	const query = `
		UPDATE bookings
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	res, err := s.db.Exec(ctx, query, bookingID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *BookingsStore) Delete(ctx context.Context, bookingID int64) error {
	const query = `DELETE FROM bookings WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	res, err := s.db.Exec(ctx, query, bookingID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
