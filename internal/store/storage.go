package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("resource already exists")
	QueryTimeoutDuration = time.Second * 5
)

type Storage struct {
	Users interface {
		Create(context.Context, *User) error
		GetByID(context.Context, int64) (*User, error)
		GetByEmail(context.Context, string) (*User, error)
	}
	Listings interface {
		Create(context.Context, *Listing) error
		GetByID(context.Context, int64) (*Listing, error)
		List(context.Context, int, int) ([]Listing, int, error)
		Update(context.Context, *Listing) error
		Delete(context.Context, int64) error
	}
	Bookings interface {
		Create(context.Context, *Booking) error
		GetByID(context.Context, int64) (*Booking, error)
		GetDetail(context.Context, int64) (*BookingDetail, error)
		ListByUser(context.Context, int64, int, int) ([]Booking, int, error)
		UpdateDates(context.Context, *Booking) error
		Cancel(context.Context, int64) error
		Delete(context.Context, int64) error
	}
	Payments interface {
		CreateOrReuse(context.Context, *Payment) error
		GetByID(context.Context, int64) (*Payment, error)
		GetByBookingID(context.Context, int64) (*Payment, error)
		GetByTxRef(context.Context, string) (*Payment, error)
		List(context.Context, string, int, int) ([]Payment, int, error)
		MarkCompleted(ctx context.Context, paymentID, bookingID int64, gatewayRef, method *string, paidAt time.Time) (bool, error)
		MarkFailed(ctx context.Context, paymentID, bookingID int64, status PaymentStatus) (bool, error)
	}
}

func NewStorage(db *pgxpool.Pool) Storage {
	return Storage{
		Users:    &UsersStore{db},
		Listings: &ListingsStore{db},
		Bookings: &BookingsStore{db},
		Payments: &PaymentsStore{db},
	}
}

// withTx runs fn inside a transaction. The transaction is rolled back
// whenever fn returns an error, so partial writes never survive.
func withTx(db *pgxpool.Pool, ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
