package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// Payment is the single payment attempt attached to a booking. TxRef is
// the idempotency key shared with the gateway and never changes once
// assigned; the outcome fields (GatewayRef, PaymentMethod, PaidAt) are
// written exactly once, on the transition into a terminal status.
type Payment struct {
	ID            int64         `json:"id"`
	BookingID     int64         `json:"booking_id"`
	TransactionID string        `json:"transaction_id"`
	TxRef         string        `json:"tx_ref"`
	AmountCents   int64         `json:"amount_cents"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	PaymentMethod *string       `json:"payment_method,omitempty"`
	GatewayRef    *string       `json:"gateway_ref,omitempty"`
	CheckoutURL   *string       `json:"checkout_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

// Amount renders the amount the way the gateway wire format expects.
func (p *Payment) Amount() string {
	return FormatAmount(p.AmountCents)
}

// FormatAmount renders integer cents as a decimal string ("150.00").
// Gateways reject float drift, so amounts never go through float64.
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

type PaymentsStore struct {
	db *pgxpool.Pool
}

const paymentColumns = `id, booking_id, transaction_id, tx_ref, amount_cents, currency, status,
	payment_method, gateway_ref, checkout_url, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row, p *Payment) error {
	return row.Scan(
		&p.ID,
		&p.BookingID,
		&p.TransactionID,
		&p.TxRef,
		&p.AmountCents,
		&p.Currency,
		&p.Status,
		&p.PaymentMethod,
		&p.GatewayRef,
		&p.CheckoutURL,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.PaidAt,
	)
}

// CreateOrReuse inserts a pending payment for the booking. The unique
// constraint on booking_id is the authority for "at most one payment per
// booking": when a payment already exists and is still pending, the
// statement refreshes only its checkout URL and returns the stored row
// (same tx_ref, same transaction id) so concurrent initiations converge
// on one record. When the existing payment is terminal the conditional
// update matches nothing and ErrConflict is returned; the caller decides
// between AlreadyPaid and reuse after loading the stored record.
func (s *PaymentsStore) CreateOrReuse(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (booking_id, transaction_id, tx_ref, amount_cents, currency, status, checkout_url)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		ON CONFLICT (booking_id) DO UPDATE
			SET checkout_url = EXCLUDED.checkout_url,
			    updated_at   = now()
			WHERE payments.status = 'pending'
		RETURNING ` + paymentColumns

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	row := s.db.QueryRow(ctx, query,
		p.BookingID,
		p.TransactionID,
		p.TxRef,
		p.AmountCents,
		p.Currency,
		p.CheckoutURL,
	)
	if err := scanPayment(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// tx_ref collision; overwhelmingly unlikely but the
			// constraint is the last line of defense
			return ErrConflict
		}
		return err
	}

	return nil
}

func (s *PaymentsStore) GetByID(ctx context.Context, paymentID int64) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var p Payment
	if err := scanPayment(s.db.QueryRow(ctx, query, paymentID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (s *PaymentsStore) GetByBookingID(ctx context.Context, bookingID int64) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var p Payment
	if err := scanPayment(s.db.QueryRow(ctx, query, bookingID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (s *PaymentsStore) GetByTxRef(ctx context.Context, txRef string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_ref = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var p Payment
	if err := scanPayment(s.db.QueryRow(ctx, query, txRef), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &p, nil
}

// List returns payments, optionally filtered by status (empty string =
// all), newest first, with the total count for pagination metadata.
func (s *PaymentsStore) List(ctx context.Context, status string, limit, offset int) ([]Payment, int, error) {
	query := `
		SELECT ` + paymentColumns + `, COUNT(*) OVER() AS total_count
		FROM payments
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []Payment
		total int
	)
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID,
			&p.BookingID,
			&p.TransactionID,
			&p.TxRef,
			&p.AmountCents,
			&p.Currency,
			&p.Status,
			&p.PaymentMethod,
			&p.GatewayRef,
			&p.CheckoutURL,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.PaidAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}

	return out, total, rows.Err()
}

// MarkCompleted moves a pending payment to completed and the linked
// booking to confirmed in one transaction. The status guard makes the
// transition write-once: a payment that is already terminal matches no
// row and the call reports applied=false without touching anything.
func (s *PaymentsStore) MarkCompleted(ctx context.Context, paymentID, bookingID int64, gatewayRef, method *string, paidAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var applied bool

	err := withTx(s.db, ctx, func(tx pgx.Tx) error {
		res, err := tx.Exec(ctx, `
			UPDATE payments
			SET status = 'completed',
			    gateway_ref = $2,
			    payment_method = $3,
			    paid_at = $4,
			    updated_at = now()
			WHERE id = $1 AND status = 'pending'
		`, paymentID, gatewayRef, method, paidAt)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return nil
		}
		applied = true

		res, err = tx.Exec(ctx, `
			UPDATE bookings
			SET status = 'confirmed', updated_at = now()
			WHERE id = $1
		`, bookingID)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("booking %d vanished while completing payment %d", bookingID, paymentID)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// MarkFailed moves a pending payment to failed or cancelled and cascades
// the booking to cancelled, atomically, with the same write-once guard.
func (s *PaymentsStore) MarkFailed(ctx context.Context, paymentID, bookingID int64, status PaymentStatus) (bool, error) {
	if status != PaymentFailed && status != PaymentCancelled {
		return false, fmt.Errorf("invalid terminal status %q", status)
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var applied bool

	err := withTx(s.db, ctx, func(tx pgx.Tx) error {
		res, err := tx.Exec(ctx, `
			UPDATE payments
			SET status = $2, updated_at = now()
			WHERE id = $1 AND status = 'pending'
		`, paymentID, status)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return nil
		}
		applied = true

		res, err = tx.Exec(ctx, `
			UPDATE bookings
			SET status = 'cancelled', updated_at = now()
			WHERE id = $1
		`, bookingID)
		if err != nil {
			return err
		}
		if res.RowsAffected() == 0 {
			return fmt.Errorf("booking %d vanished while failing payment %d", bookingID, paymentID)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}
