package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safar/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyPaid means the booking already carries a completed
	// payment; nothing was written.
	ErrAlreadyPaid = errors.New("payment already completed for this booking")
	// ErrInitiationFailed wraps a gateway failure during initiation. No
	// payment record exists when it is returned.
	ErrInitiationFailed = errors.New("payment initiation failed")
	// ErrVerificationFailed wraps a gateway failure during verification.
	// The payment is left untouched.
	ErrVerificationFailed = errors.New("payment verification failed")
)

// Service owns the payment lifecycle: it generates references, drives the
// gateway, and applies results as state transitions on the Payment and
// its booking. It holds no locks across gateway calls; the storage
// layer's constraints and conditional updates arbitrate races.
type Service struct {
	store   store.Storage
	gateway Gateway
	logger  *zap.SugaredLogger
}

func NewService(st store.Storage, gateway Gateway, logger *zap.SugaredLogger) *Service {
	return &Service{store: st, gateway: gateway, logger: logger}
}

// Initiate starts (or idempotently re-returns) the payment for a booking.
// The reported bool is true only when a new payment record was created.
func (s *Service) Initiate(ctx context.Context, bookingID int64, returnURL, callbackURL string) (*store.Payment, bool, error) {
	detail, err := s.store.Bookings.GetDetail(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.store.Payments.GetByBookingID(ctx, bookingID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		if existing.Status == store.PaymentCompleted {
			return nil, false, ErrAlreadyPaid
		}
		// pending, failed or cancelled: a booking has at most one
		// payment, so the stored record is the answer either way
		return existing, false, nil
	}

	txRef := NewTxRef(bookingID)

	res, err := s.gateway.Initiate(ctx, InitiateRequest{
		Amount:      store.FormatAmount(detail.TotalPriceCents),
		Currency:    detail.Currency,
		Email:       detail.GuestEmail,
		FirstName:   detail.GuestFirstName,
		LastName:    detail.GuestLastName,
		TxRef:       txRef,
		CallbackURL: callbackURL,
		ReturnURL:   returnURL,
	})
	if err != nil {
		s.logger.Errorw("gateway initiate failed",
			"booking_id", bookingID,
			"tx_ref", txRef,
			"error", err,
		)
		return nil, false, fmt.Errorf("%w: %v", ErrInitiationFailed, err)
	}
	if res.ProviderStatus != "success" {
		s.logger.Errorw("gateway rejected initiation",
			"booking_id", bookingID,
			"tx_ref", txRef,
			"provider_status", res.ProviderStatus,
		)
		return nil, false, fmt.Errorf("%w: provider status %q", ErrInitiationFailed, res.ProviderStatus)
	}

	payment := &store.Payment{
		BookingID:     bookingID,
		TransactionID: uuid.NewString(),
		TxRef:         txRef,
		AmountCents:   detail.TotalPriceCents,
		Currency:      detail.Currency,
		Status:        store.PaymentPending,
	}
	if res.CheckoutURL != "" {
		payment.CheckoutURL = &res.CheckoutURL
	}

	if err := s.store.Payments.CreateOrReuse(ctx, payment); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// lost a race against a concurrent initiation or a
			// verification that just went terminal; the stored row wins
			stored, gerr := s.store.Payments.GetByBookingID(ctx, bookingID)
			if gerr != nil {
				return nil, false, gerr
			}
			if stored.Status == store.PaymentCompleted {
				return nil, false, ErrAlreadyPaid
			}
			return stored, false, nil
		}
		return nil, false, err
	}

	return payment, true, nil
}

// Verify reconciles a payment with the gateway's settlement result. A
// recognized terminal provider status transitions the payment (and the
// booking, atomically); anything unrecognized is inconclusive and leaves
// the payment pending for a later retry. Re-verifying a terminal payment
// is a no-op that returns the stored state.
func (s *Service) Verify(ctx context.Context, txRef string) (*store.Payment, error) {
	payment, err := s.store.Payments.GetByTxRef(ctx, txRef)
	if err != nil {
		return nil, err
	}

	res, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		s.logger.Errorw("gateway verify failed",
			"tx_ref", txRef,
			"booking_id", payment.BookingID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	var applied bool
	switch res.ProviderStatus {
	case "success":
		gatewayRef := optional(res.GatewayRef)
		method := optional(res.Method)
		applied, err = s.store.Payments.MarkCompleted(ctx, payment.ID, payment.BookingID, gatewayRef, method, time.Now().UTC())
	case "failed":
		applied, err = s.store.Payments.MarkFailed(ctx, payment.ID, payment.BookingID, store.PaymentFailed)
	case "cancelled", "canceled":
		applied, err = s.store.Payments.MarkFailed(ctx, payment.ID, payment.BookingID, store.PaymentCancelled)
	default:
		// inconclusive: not an error and not a transition, the caller
		// may verify again later
		s.logger.Infow("inconclusive verification",
			"tx_ref", txRef,
			"booking_id", payment.BookingID,
			"provider_status", res.ProviderStatus,
		)
		return payment, nil
	}
	if err != nil {
		return nil, err
	}

	if !applied && payment.Status.Terminal() {
		s.logger.Infow("re-verification of settled payment",
			"tx_ref", txRef,
			"status", payment.Status,
		)
	}

	return s.store.Payments.GetByTxRef(ctx, txRef)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
