package notifications

import (
	"sync"
	"time"

	"safar/internal/mailer"

	"go.uber.org/zap"
)

const (
	maxAttempts       = 3
	defaultRetryDelay = 30 * time.Second
	queueSize         = 64
)

// Confirmation is one booking confirmation email waiting to be sent.
type Confirmation struct {
	BookingID    int64
	Recipient    string
	GuestName    string
	ListingTitle string
	StartDate    string
	EndDate      string
	TotalPrice   string
	Currency     string
}

// Dispatcher delivers booking confirmations off the request path: an
// in-process queue drained by one worker, at-least-once with bounded
// retry. Delivery failure never reaches the request that enqueued it.
type Dispatcher struct {
	mailer     mailer.Client
	logger     *zap.SugaredLogger
	queue      chan Confirmation
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func NewDispatcher(client mailer.Client, logger *zap.SugaredLogger) *Dispatcher {
	d := &Dispatcher{
		mailer:     client,
		logger:     logger,
		queue:      make(chan Confirmation, queueSize),
		retryDelay: defaultRetryDelay,
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Enqueue never blocks: a full queue drops the confirmation and logs it,
// because booking creation must not wait on email capacity.
func (d *Dispatcher) Enqueue(c Confirmation) {
	select {
	case d.queue <- c:
	default:
		d.logger.Errorw("confirmation queue full, dropping email", "booking_id", c.BookingID)
	}
}

// Stop drains the queue and waits for the worker to finish. Enqueue must
// not be called afterwards.
func (d *Dispatcher) Stop() {
	close(d.queue)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for c := range d.queue {
		d.deliver(c)
	}
}

func (d *Dispatcher) deliver(c Confirmation) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := d.mailer.Send(mailer.BookingConfirmationTemplate, c.GuestName, c.Recipient, c)
		if err == nil {
			d.logger.Infow("booking confirmation sent",
				"booking_id", c.BookingID,
				"recipient", c.Recipient,
				"status", status,
			)
			return
		}

		d.logger.Errorw("booking confirmation attempt failed",
			"booking_id", c.BookingID,
			"attempt", attempt,
			"error", err,
		)

		if attempt < maxAttempts {
			time.Sleep(d.retryDelay)
		}
	}

	d.logger.Errorw("booking confirmation dropped after retries", "booking_id", c.BookingID)
}
