package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"safar/internal/notifications"
	"safar/internal/params"
	"safar/internal/store"

	"github.com/go-chi/chi/v5"
)

type CreateBookingPayload struct {
	ListingID int64  `json:"listing_id" validate:"required,gt=0"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// createBookingHandler godoc
//
//	@Summary	Creates a pending booking and queues a confirmation email
//	@Tags		bookings
//	@Router		/bookings [post]
func (app *application) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateBookingPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	startDate, endDate, nights, err := parseStayDates(payload.StartDate, payload.EndDate)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	listing, err := app.store.Listings.GetByID(r.Context(), payload.ListingID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}
	if !listing.IsAvailable {
		app.badRequestResponse(w, r, errors.New("listing is not available"))
		return
	}

	user := getUserFromContext(r)

	booking := &store.Booking{
		ListingID:       listing.ID,
		UserID:          user.ID,
		StartDate:       startDate,
		EndDate:         endDate,
		TotalPriceCents: nights * listing.PricePerNightCents,
		Currency:        app.config.payment.currency,
		Status:          store.BookingPending,
	}

	if err := app.store.Bookings.Create(r.Context(), booking); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.notifier.Enqueue(notifications.Confirmation{
		BookingID:    booking.ID,
		Recipient:    user.Email,
		GuestName:    user.FirstName + " " + user.LastName,
		ListingTitle: listing.Title,
		StartDate:    booking.StartDate.Format("2006-01-02"),
		EndDate:      booking.EndDate.Format("2006-01-02"),
		TotalPrice:   store.FormatAmount(booking.TotalPriceCents),
		Currency:     booking.Currency,
	})

	if err := app.jsonResponse(w, http.StatusCreated, booking); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) getBookingHandler(w http.ResponseWriter, r *http.Request) {
	booking, ok := app.bookingFromRequest(w, r)
	if !ok {
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, booking); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	p := params.ParsePagination(r.URL.Query())

	bookings, total, err := app.store.Bookings.ListByUser(r.Context(), user.ID, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	resp := map[string]any{
		"bookings":   bookings,
		"pagination": p,
	}

	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

type UpdateBookingPayload struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// updateBookingHandler moves the stay dates of a booking that is still
// pending. The total is recomputed from the listing's current rate.
func (app *application) updateBookingHandler(w http.ResponseWriter, r *http.Request) {
	booking, ok := app.bookingFromRequest(w, r)
	if !ok {
		return
	}

	var payload UpdateBookingPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	startDate, endDate, nights, err := parseStayDates(payload.StartDate, payload.EndDate)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	listing, err := app.store.Listings.GetByID(r.Context(), booking.ListingID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	booking.StartDate = startDate
	booking.EndDate = endDate
	booking.TotalPriceCents = nights * listing.PricePerNightCents

	if err := app.store.Bookings.UpdateDates(r.Context(), booking); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			app.conflictResponse(w, r, errors.New("only pending bookings can be rescheduled"))
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, booking); err != nil {
		app.internalServerError(w, r, err)
	}
}

// cancelBookingHandler cancels a booking. Once a payment record exists
// the booking row must survive for reconciliation, so it is marked
// cancelled instead of deleted.
func (app *application) cancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	booking, ok := app.bookingFromRequest(w, r)
	if !ok {
		return
	}

	if booking.Status == store.BookingConfirmed {
		app.conflictResponse(w, r, errors.New("confirmed bookings cannot be cancelled"))
		return
	}

	_, err := app.store.Payments.GetByBookingID(r.Context(), booking.ID)
	switch {
	case err == nil:
		err = app.store.Bookings.Cancel(r.Context(), booking.ID)
	case errors.Is(err, store.ErrNotFound):
		err = app.store.Bookings.Delete(r.Context(), booking.ID)
	}
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// bookingFromRequest loads the booking in the URL and enforces that it
// belongs to the authenticated user. It writes the error response itself
// when the second return value is false.
func (app *application) bookingFromRequest(w http.ResponseWriter, r *http.Request) (*store.Booking, bool) {
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, errors.New("invalid booking id"))
		return nil, false
	}

	booking, err := app.store.Bookings.GetByID(r.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return nil, false
	}

	user := getUserFromContext(r)
	if booking.UserID != user.ID {
		app.notFoundResponse(w, r, errors.New("booking belongs to another user"))
		return nil, false
	}

	return booking, true
}

func parseStayDates(start, end string) (time.Time, time.Time, int64, error) {
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return time.Time{}, time.Time{}, 0, errors.New("invalid start date")
	}
	endDate, err := time.Parse("2006-01-02", end)
	if err != nil {
		return time.Time{}, time.Time{}, 0, errors.New("invalid end date")
	}
	if !endDate.After(startDate) {
		return time.Time{}, time.Time{}, 0, errors.New("end date must be after start date")
	}

	nights := int64(endDate.Sub(startDate).Hours() / 24)
	return startDate, endDate, nights, nil
}
