package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"safar/internal/params"
	"safar/internal/payments"
	"safar/internal/store"

	"github.com/go-chi/chi/v5"
)

// gateway round trips can be slow; give them room without holding the
// request open forever
const paymentRequestTimeout = 15 * time.Second

type InitiatePaymentPayload struct {
	BookingID   int64  `json:"booking_id" validate:"required,gt=0"`
	ReturnURL   string `json:"return_url" validate:"required,url"`
	CallbackURL string `json:"callback_url" validate:"omitempty,url"`
}

// initiatePaymentHandler godoc
//
//	@Summary	Initiates payment for a booking via the gateway
//	@Tags		payments
//	@Router		/payments/initiate [post]
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload InitiatePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	user := getUserFromContext(r)

	booking, err := app.store.Bookings.GetByID(r.Context(), payload.BookingID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}
	if booking.UserID != user.ID {
		app.notFoundResponse(w, r, errors.New("booking belongs to another user"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentRequestTimeout)
	defer cancel()

	payment, created, err := app.payments.Initiate(ctx, payload.BookingID, payload.ReturnURL, payload.CallbackURL)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		case errors.Is(err, payments.ErrAlreadyPaid):
			app.badRequestResponse(w, r, err)
		case errors.Is(err, payments.ErrInitiationFailed):
			app.internalServerError(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	if err := app.jsonResponse(w, status, payment); err != nil {
		app.internalServerError(w, r, err)
	}
}

// verifyPaymentHandler godoc
//
//	@Summary	Reconciles a payment with the gateway's settlement result
//	@Tags		payments
//	@Router		/payments/verify/{txRef} [post]
func (app *application) verifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	txRef := chi.URLParam(r, "txRef")
	if txRef == "" {
		app.badRequestResponse(w, r, errors.New("missing transaction reference"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), paymentRequestTimeout)
	defer cancel()

	payment, err := app.payments.Verify(ctx, txRef)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		case errors.Is(err, payments.ErrVerificationFailed):
			app.internalServerError(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, payment); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	p := params.ParsePagination(r.URL.Query())

	status := r.URL.Query().Get("status")
	if status != "" {
		switch store.PaymentStatus(status) {
		case store.PaymentPending, store.PaymentCompleted, store.PaymentFailed, store.PaymentCancelled:
		default:
			app.badRequestResponse(w, r, fmt.Errorf("unknown payment status %q", status))
			return
		}
	}

	list, total, err := app.store.Payments.List(r.Context(), status, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	resp := map[string]any{
		"payments":   list,
		"pagination": p,
	}

	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getPaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid payment id"))
		return
	}

	payment, err := app.store.Payments.GetByID(r.Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, payment); err != nil {
		app.internalServerError(w, r, err)
	}
}
