package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"safar/internal/store"

	"go.uber.org/zap"
)

type fakeBookings struct {
	details map[int64]*store.BookingDetail
}

func (f *fakeBookings) Create(_ context.Context, b *store.Booking) error {
	b.ID = int64(len(f.details) + 1)
	f.details[b.ID] = &store.BookingDetail{Booking: *b}
	return nil
}

func (f *fakeBookings) GetByID(_ context.Context, id int64) (*store.Booking, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	b := d.Booking
	return &b, nil
}

func (f *fakeBookings) GetDetail(_ context.Context, id int64) (*store.BookingDetail, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeBookings) ListByUser(_ context.Context, _ int64, _, _ int) ([]store.Booking, int, error) {
	return nil, 0, nil
}

func (f *fakeBookings) UpdateDates(_ context.Context, _ *store.Booking) error { return nil }
func (f *fakeBookings) Cancel(_ context.Context, _ int64) error               { return nil }
func (f *fakeBookings) Delete(_ context.Context, _ int64) error               { return nil }

type fakePayments struct {
	bookings *fakeBookings
	payments map[int64]*store.Payment
	nextID   int64

	// when set, the rival record is invisible to reads until CreateOrReuse
	// runs, which then installs it and reports a conflict, mimicking a
	// concurrent request winning the insert between our check and insert
	racePayment *store.Payment
}

func (f *fakePayments) CreateOrReuse(_ context.Context, p *store.Payment) error {
	if f.racePayment != nil {
		rival := f.racePayment
		f.racePayment = nil
		f.nextID++
		rival.ID = f.nextID
		f.payments[rival.ID] = rival
		if rival.Status != store.PaymentPending {
			return store.ErrConflict
		}
		rival.CheckoutURL = p.CheckoutURL
		*p = *rival
		return nil
	}

	for _, existing := range f.payments {
		if existing.BookingID != p.BookingID {
			continue
		}
		if existing.Status != store.PaymentPending {
			return store.ErrConflict
		}
		existing.CheckoutURL = p.CheckoutURL
		*p = *existing
		return nil
	}

	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	f.payments[p.ID] = &cp
	return nil
}

func (f *fakePayments) GetByID(_ context.Context, id int64) (*store.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) GetByBookingID(_ context.Context, bookingID int64) (*store.Payment, error) {
	for _, p := range f.payments {
		if p.BookingID == bookingID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakePayments) GetByTxRef(_ context.Context, txRef string) (*store.Payment, error) {
	for _, p := range f.payments {
		if p.TxRef == txRef {
			cp := *p
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakePayments) List(_ context.Context, _ string, _, _ int) ([]store.Payment, int, error) {
	return nil, 0, nil
}

func (f *fakePayments) MarkCompleted(_ context.Context, paymentID, bookingID int64, gatewayRef, method *string, paidAt time.Time) (bool, error) {
	p, ok := f.payments[paymentID]
	if !ok || p.Status != store.PaymentPending {
		return false, nil
	}
	p.Status = store.PaymentCompleted
	p.GatewayRef = gatewayRef
	p.PaymentMethod = method
	p.PaidAt = &paidAt
	f.bookings.details[bookingID].Status = store.BookingConfirmed
	return true, nil
}

func (f *fakePayments) MarkFailed(_ context.Context, paymentID, bookingID int64, status store.PaymentStatus) (bool, error) {
	p, ok := f.payments[paymentID]
	if !ok || p.Status != store.PaymentPending {
		return false, nil
	}
	p.Status = status
	f.bookings.details[bookingID].Status = store.BookingCancelled
	return true, nil
}

type fakeGateway struct {
	initRes   *InitiateResult
	initErr   error
	verifyRes *VerifyResult
	verifyErr error

	initCalls   []InitiateRequest
	verifyCalls []string
}

func (g *fakeGateway) Initiate(_ context.Context, req InitiateRequest) (*InitiateResult, error) {
	g.initCalls = append(g.initCalls, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return g.initRes, nil
}

func (g *fakeGateway) Verify(_ context.Context, txRef string) (*VerifyResult, error) {
	g.verifyCalls = append(g.verifyCalls, txRef)
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyRes, nil
}

func newTestService(gw Gateway) (*Service, *fakeBookings, *fakePayments) {
	fb := &fakeBookings{details: map[int64]*store.BookingDetail{}}
	fp := &fakePayments{bookings: fb, payments: map[int64]*store.Payment{}}
	st := store.Storage{Bookings: fb, Payments: fp}
	return NewService(st, gw, zap.NewNop().Sugar()), fb, fp
}

func seedBooking(fb *fakeBookings, id int64, status store.BookingStatus) {
	fb.details[id] = &store.BookingDetail{
		Booking: store.Booking{
			ID:              id,
			ListingID:       7,
			UserID:          3,
			TotalPriceCents: 150_00,
			Currency:        "ETB",
			Status:          status,
		},
		GuestEmail:     "guest@example.com",
		GuestFirstName: "Abel",
		GuestLastName:  "Bekele",
		ListingTitle:   "Lakeside Cottage",
	}
}

func TestInitiateCreatesPendingPayment(t *testing.T) {
	gw := &fakeGateway{initRes: &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"}}
	svc, fb, _ := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	payment, created, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new payment record")
	}
	if payment.Status != store.PaymentPending {
		t.Fatalf("status = %s, want pending", payment.Status)
	}
	if payment.AmountCents != 150_00 {
		t.Fatalf("amount = %d, want 15000", payment.AmountCents)
	}
	if !strings.HasPrefix(payment.TxRef, "SAFAR-1-") {
		t.Fatalf("tx_ref = %q, want SAFAR-1- prefix", payment.TxRef)
	}
	if payment.CheckoutURL == nil || *payment.CheckoutURL != "https://checkout.example/abc" {
		t.Fatalf("checkout url not stored: %v", payment.CheckoutURL)
	}
	if payment.TransactionID == "" {
		t.Fatal("transaction id not assigned")
	}

	if len(gw.initCalls) != 1 {
		t.Fatalf("gateway called %d times, want 1", len(gw.initCalls))
	}
	req := gw.initCalls[0]
	if req.Amount != "150.00" {
		t.Fatalf("gateway amount = %q, want 150.00", req.Amount)
	}
	if req.Email != "guest@example.com" || req.FirstName != "Abel" {
		t.Fatalf("guest identity not forwarded: %+v", req)
	}
}

func TestInitiateUnknownBooking(t *testing.T) {
	gw := &fakeGateway{}
	svc, _, _ := newTestService(gw)

	_, _, err := svc.Initiate(context.Background(), 42, "https://app.example/return", "")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(gw.initCalls) != 0 {
		t.Fatal("gateway must not be called for an unknown booking")
	}
}

func TestInitiateIsIdempotentWhilePending(t *testing.T) {
	gw := &fakeGateway{initRes: &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"}}
	svc, fb, _ := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	first, created, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil || !created {
		t.Fatalf("first initiation: created=%v err=%v", created, err)
	}

	second, created, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatalf("second initiation: %v", err)
	}
	if created {
		t.Fatal("second initiation must not create a new record")
	}
	if second.TxRef != first.TxRef || second.ID != first.ID {
		t.Fatalf("second initiation returned a different payment: %+v vs %+v", second, first)
	}
	if len(gw.initCalls) != 1 {
		t.Fatalf("gateway called %d times, want 1 (no call when a payment exists)", len(gw.initCalls))
	}
}

func TestInitiateAlreadyCompleted(t *testing.T) {
	gw := &fakeGateway{
		initRes:   &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"},
		verifyRes: &VerifyResult{ProviderStatus: "success", GatewayRef: "ch-1", Method: "telebirr"},
	}
	svc, fb, _ := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	payment, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(context.Background(), payment.TxRef); err != nil {
		t.Fatal(err)
	}

	_, _, err = svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("err = %v, want ErrAlreadyPaid", err)
	}
}

func TestInitiateGatewayFailure(t *testing.T) {
	gw := &fakeGateway{initErr: &GatewayError{Op: "initiate", StatusCode: 502, Body: "bad gateway"}}
	svc, fb, fp := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	_, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if !errors.Is(err, ErrInitiationFailed) {
		t.Fatalf("err = %v, want ErrInitiationFailed", err)
	}
	if len(fp.payments) != 0 {
		t.Fatal("no payment record may exist after a failed initiation")
	}
}

func TestInitiateProviderRejection(t *testing.T) {
	gw := &fakeGateway{initRes: &InitiateResult{ProviderStatus: "failed"}}
	svc, fb, fp := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	_, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if !errors.Is(err, ErrInitiationFailed) {
		t.Fatalf("err = %v, want ErrInitiationFailed", err)
	}
	if len(fp.payments) != 0 {
		t.Fatal("no payment record may exist after a rejected initiation")
	}
}

func TestInitiateLosesRaceToTerminalPayment(t *testing.T) {
	gw := &fakeGateway{initRes: &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"}}
	svc, fb, fp := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	// a rival request settles its payment between our existence check and
	// our insert
	fp.racePayment = &store.Payment{
		BookingID:     1,
		TransactionID: "rival-txn",
		TxRef:         "SAFAR-1-AAAA1111",
		AmountCents:   150_00,
		Currency:      "ETB",
		Status:        store.PaymentFailed,
	}

	payment, created, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("losing the race must not report a created payment")
	}
	if payment.TxRef != "SAFAR-1-AAAA1111" {
		t.Fatalf("tx_ref = %q, want the rival's", payment.TxRef)
	}
}

func TestInitiateLosesRaceToCompletedPayment(t *testing.T) {
	gw := &fakeGateway{initRes: &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"}}
	svc, fb, fp := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	fp.racePayment = &store.Payment{
		BookingID:     1,
		TransactionID: "rival-txn",
		TxRef:         "SAFAR-1-BBBB2222",
		AmountCents:   150_00,
		Currency:      "ETB",
		Status:        store.PaymentCompleted,
	}

	_, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("err = %v, want ErrAlreadyPaid", err)
	}
}

func TestVerifySuccessConfirmsBooking(t *testing.T) {
	gw := &fakeGateway{
		initRes:   &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"},
		verifyRes: &VerifyResult{ProviderStatus: "success", GatewayRef: "ch-901", Method: "telebirr"},
	}
	svc, fb, _ := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	payment, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatal(err)
	}

	verified, err := svc.Verify(context.Background(), payment.TxRef)
	if err != nil {
		t.Fatal(err)
	}
	if verified.Status != store.PaymentCompleted {
		t.Fatalf("status = %s, want completed", verified.Status)
	}
	if verified.GatewayRef == nil || *verified.GatewayRef != "ch-901" {
		t.Fatalf("gateway ref not recorded: %v", verified.GatewayRef)
	}
	if verified.PaymentMethod == nil || *verified.PaymentMethod != "telebirr" {
		t.Fatalf("payment method not recorded: %v", verified.PaymentMethod)
	}
	if verified.PaidAt == nil {
		t.Fatal("paid_at not recorded")
	}
	if fb.details[1].Status != store.BookingConfirmed {
		t.Fatalf("booking status = %s, want confirmed", fb.details[1].Status)
	}
}

func TestVerifyFailureCancelsBooking(t *testing.T) {
	gw := &fakeGateway{
		initRes:   &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"},
		verifyRes: &VerifyResult{ProviderStatus: "failed"},
	}
	svc, fb, _ := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	payment, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatal(err)
	}

	verified, err := svc.Verify(context.Background(), payment.TxRef)
	if err != nil {
		t.Fatal(err)
	}
	if verified.Status != store.PaymentFailed {
		t.Fatalf("status = %s, want failed", verified.Status)
	}
	if fb.details[1].Status != store.BookingCancelled {
		t.Fatalf("booking status = %s, want cancelled", fb.details[1].Status)
	}
}

func TestVerifyCancelledVariants(t *testing.T) {
	for _, provider := range []string{"cancelled", "canceled"} {
		t.Run(provider, func(t *testing.T) {
			gw := &fakeGateway{
				initRes:   &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"},
				verifyRes: &VerifyResult{ProviderStatus: provider},
			}
			svc, fb, _ := newTestService(gw)
			seedBooking(fb, 1, store.BookingPending)

			payment, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
			if err != nil {
				t.Fatal(err)
			}

			verified, err := svc.Verify(context.Background(), payment.TxRef)
			if err != nil {
				t.Fatal(err)
			}
			if verified.Status != store.PaymentCancelled {
				t.Fatalf("status = %s, want cancelled", verified.Status)
			}
		})
	}
}

func TestVerifyInconclusiveLeavesPending(t *testing.T) {
	gw := &fakeGateway{
		initRes:   &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"},
		verifyRes: &VerifyResult{ProviderStatus: "processing"},
	}
	svc, fb, _ := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	payment, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatal(err)
	}

	verified, err := svc.Verify(context.Background(), payment.TxRef)
	if err != nil {
		t.Fatalf("inconclusive verification must not error: %v", err)
	}
	if verified.Status != store.PaymentPending {
		t.Fatalf("status = %s, want pending", verified.Status)
	}
	if fb.details[1].Status != store.BookingPending {
		t.Fatalf("booking status = %s, want pending", fb.details[1].Status)
	}
}

func TestVerifyGatewayFailureLeavesPending(t *testing.T) {
	gw := &fakeGateway{
		initRes:   &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"},
		verifyErr: &GatewayError{Op: "verify", StatusCode: 503, Body: "unavailable"},
	}
	svc, fb, fp := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	payment, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Verify(context.Background(), payment.TxRef)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}
	stored, err := fp.GetByTxRef(context.Background(), payment.TxRef)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != store.PaymentPending {
		t.Fatalf("status = %s, a gateway failure must not transition the payment", stored.Status)
	}
}

func TestVerifyTerminalPaymentIsNoOp(t *testing.T) {
	gw := &fakeGateway{
		initRes:   &InitiateResult{ProviderStatus: "success", CheckoutURL: "https://checkout.example/abc"},
		verifyRes: &VerifyResult{ProviderStatus: "success", GatewayRef: "ch-1", Method: "telebirr"},
	}
	svc, fb, _ := newTestService(gw)
	seedBooking(fb, 1, store.BookingPending)

	payment, _, err := svc.Initiate(context.Background(), 1, "https://app.example/return", "")
	if err != nil {
		t.Fatal(err)
	}
	first, err := svc.Verify(context.Background(), payment.TxRef)
	if err != nil {
		t.Fatal(err)
	}

	// the provider now claims failed; the stored outcome must not move
	gw.verifyRes = &VerifyResult{ProviderStatus: "failed"}

	second, err := svc.Verify(context.Background(), payment.TxRef)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != store.PaymentCompleted {
		t.Fatalf("status = %s, terminal payments are write-once", second.Status)
	}
	if second.PaidAt == nil || !second.PaidAt.Equal(*first.PaidAt) {
		t.Fatal("paid_at changed on re-verification")
	}
	if fb.details[1].Status != store.BookingConfirmed {
		t.Fatalf("booking status = %s, want confirmed", fb.details[1].Status)
	}
}

func TestVerifyUnknownTxRef(t *testing.T) {
	gw := &fakeGateway{}
	svc, _, _ := newTestService(gw)

	_, err := svc.Verify(context.Background(), "SAFAR-9-DEADBEEF")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(gw.verifyCalls) != 0 {
		t.Fatal("gateway must not be called for an unknown reference")
	}
}
