package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/court-booking/internal/ledger"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/notify"
	"github.com/Eursukkul/court-booking/internal/payment"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/timegrid"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidInterval       = errors.New("invalid booking interval")
	ErrInvalidDate           = errors.New("date must be YYYY-MM-DD")
	ErrInvalidRequest        = errors.New("invalid booking request")
	ErrFacilityNotFound      = errors.New("facility not found")
	ErrOutsideOperatingHours = errors.New("requested time is outside operating hours")
	ErrSlotInPast            = errors.New("requested slot has already started")
	ErrStoreUnavailable      = errors.New("booking store temporarily unavailable, please retry")
	ErrPaymentDeclined       = errors.New("payment was declined")
	ErrPaymentUnavailable    = errors.New("payment service unavailable, please retry")
	ErrReservationExpired    = errors.New("reservation expired before payment completed, the charge was refunded")

	ErrSlotConflict           = ledger.ErrSlotConflict
	ErrReservationNotFound    = ledger.ErrReservationNotFound
	ErrInvalidStateTransition = ledger.ErrInvalidStateTransition
)

const tracerName = "github.com/Eursukkul/court-booking/internal/service"

type BookRequest struct {
	FacilityID    string
	UserID        string
	Date          string
	StartTime     string
	EndTime       string
	PaymentMethod string
}

type BookingService interface {
	Book(ctx context.Context, req BookRequest) (*models.Reservation, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	ListReservations(ctx context.Context, facilityID, date string, status *models.ReservationStatus) ([]models.Reservation, error)
}

type BookingOptions struct {
	// ReservePolicy retries serialization failures of the ledger.
	ReservePolicy RetryPolicy
	// PaymentPolicy retries transient gateway failures.
	PaymentPolicy RetryPolicy
	// Location is the venue timezone slot times are expressed in.
	Location *time.Location
}

type bookingService struct {
	ledger  *ledger.Ledger
	hours   HoursProvider
	gateway payment.Gateway
	refunds repository.RefundTaskRepository
	sink    notify.Sink
	clock   Clock
	opts    BookingOptions
	log     logrus.FieldLogger
	tracer  trace.Tracer
}

func NewBookingService(
	l *ledger.Ledger,
	hours HoursProvider,
	gateway payment.Gateway,
	refunds repository.RefundTaskRepository,
	sink notify.Sink,
	clock Clock,
	opts BookingOptions,
	log logrus.FieldLogger,
) BookingService {
	return &bookingService{
		ledger:  l,
		hours:   hours,
		gateway: gateway,
		refunds: refunds,
		sink:    sink,
		clock:   clock,
		opts:    opts,
		log:     log.WithField("component", "booking"),
		tracer:  otel.Tracer(tracerName),
	}
}

// Book reserves the interval, charges for it and confirms it. Every path out
// of Book leaves the reservation Confirmed or released.
func (s *bookingService) Book(ctx context.Context, req BookRequest) (*models.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("facility.id", req.FacilityID),
		attribute.String("booking.date", req.Date),
		attribute.String("booking.start", req.StartTime),
		attribute.String("booking.end", req.EndTime),
	))
	defer span.End()

	r, err := s.book(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation.id", r.ID))
	return r, nil
}

func (s *bookingService) book(ctx context.Context, req BookRequest) (*models.Reservation, error) {
	if req.FacilityID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: facility and user are required", ErrInvalidRequest)
	}
	if v := timegrid.ValidateInterval(req.StartTime, req.EndTime); !v.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInterval, v.Err())
	}
	if _, err := timegrid.ParseDate(req.Date); err != nil {
		return nil, ErrInvalidDate
	}
	start, _ := timegrid.ParseClock(req.StartTime)
	end, _ := timegrid.ParseClock(req.EndTime)

	sched, err := s.hours.OperatingHours(ctx, req.FacilityID, req.Date)
	if err != nil {
		return nil, err
	}
	if !sched.Hours.Contains(start, end) {
		return nil, ErrOutsideOperatingHours
	}
	slots, err := timegrid.EnumerateSlots(start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInterval, err)
	}

	r, err := s.reserve(ctx, ledger.ReserveRequest{
		FacilityID:    req.FacilityID,
		UserID:        req.UserID,
		Date:          req.Date,
		Start:         start,
		End:           end,
		PaymentMethod: req.PaymentMethod,
		AmountCents:   int64(len(slots)) * sched.PricePerSlotCents,
		Currency:      sched.Currency,
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{"reservation_id": r.ID, "facility_id": r.FacilityID, "date": r.Date})

	// From here on the slot is held; compensation must not be cut short by
	// the caller going away.
	ctx = context.WithoutCancel(ctx)

	res, err := s.charge(ctx, r)
	if err != nil {
		return nil, s.compensate(ctx, r, err)
	}

	if _, err := s.ledger.RecordPayment(ctx, r.ID, res.TransactionID); err != nil {
		return s.afterLostReservation(ctx, r, res.TransactionID, err)
	}

	confirmed, err := s.ledger.Confirm(ctx, r.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidStateTransition) {
			return s.afterLostReservation(ctx, r, res.TransactionID, err)
		}
		// The paid breadcrumb is in place; the reconciler will confirm it.
		log.WithError(err).Error("confirm failed after successful charge")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	log.WithField("transaction_id", res.TransactionID).Info("booking confirmed")
	emit(ctx, s.sink, s.log, notify.NewEvent(notify.BookingConfirmed, confirmed, ""))
	return confirmed, nil
}

func (s *bookingService) reserve(ctx context.Context, req ledger.ReserveRequest) (*models.Reservation, error) {
	now := s.clock.Now()
	if at, err := timegrid.At(req.Date, req.Start, s.opts.Location); err == nil && at.Before(now) {
		return nil, ErrSlotInPast
	}

	var r *models.Reservation
	err := s.opts.ReservePolicy.Do(ctx, isTransientStore, func(attempt int) error {
		var err error
		r, err = s.ledger.Reserve(ctx, req)
		if err != nil && isTransientStore(err) {
			s.log.WithError(err).WithField("attempt", attempt).Warn("reserve hit a transient store error")
		}
		return err
	})
	if err != nil {
		if isTransientStore(err) {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return nil, err
	}
	return r, nil
}

func (s *bookingService) charge(ctx context.Context, r *models.Reservation) (*payment.ChargeResult, error) {
	var res *payment.ChargeResult
	err := s.opts.PaymentPolicy.Do(ctx, isTransientPayment, func(attempt int) error {
		var err error
		res, err = s.gateway.Charge(ctx, payment.ChargeRequest{
			ReservationID: r.ID,
			UserID:        r.UserID,
			AmountCents:   r.AmountCents,
			Currency:      r.Currency,
			Method:        r.PaymentMethod,
		})
		if err != nil && isTransientPayment(err) {
			s.log.WithError(err).WithFields(logrus.Fields{
				"reservation_id": r.ID,
				"attempt":        attempt,
			}).Warn("charge failed, will retry")
		}
		return err
	})
	return res, err
}

// compensate releases the slot of a reservation whose payment failed.
func (s *bookingService) compensate(ctx context.Context, r *models.Reservation, cause error) error {
	log := s.log.WithError(cause).WithField("reservation_id", r.ID)

	released, err := s.ledger.Release(ctx, r.ID, models.StatusFailed, cause.Error())
	if err != nil {
		log.WithField("release_error", err).Error("failed to release reservation after payment failure")
		released = r
	}
	if updated, err := s.ledger.SetPaymentStatus(ctx, r.ID, models.PaymentFailed); err != nil {
		log.WithField("payment_status_error", err).Warn("could not mark payment failed")
	} else {
		released = updated
	}

	log.Info("booking failed, slot released")
	emit(ctx, s.sink, s.log, notify.NewEvent(notify.BookingFailed, released, cause.Error()))

	if errors.Is(cause, payment.ErrDeclined) {
		return fmt.Errorf("%w: %w", ErrPaymentDeclined, cause)
	}
	return fmt.Errorf("%w: %w", ErrPaymentUnavailable, cause)
}

// afterLostReservation handles a charge that succeeded for a reservation
// that is no longer Pending. When the reconciler already confirmed it with
// this charge the booking stands; otherwise the money goes back to the user.
func (s *bookingService) afterLostReservation(ctx context.Context, r *models.Reservation, transactionID string, cause error) (*models.Reservation, error) {
	log := s.log.WithError(cause).WithFields(logrus.Fields{"reservation_id": r.ID, "transaction_id": transactionID})

	if cur, err := s.ledger.Get(ctx, r.ID); err == nil && cur.Status == models.StatusConfirmed && cur.TransactionID == transactionID {
		log.Info("booking already confirmed by reconciler")
		return cur, nil
	}

	log.Warn("reservation no longer pending after charge, refunding")
	if _, err := s.ledger.Release(ctx, r.ID, models.StatusFailed, "reservation lost before confirmation"); err != nil {
		log.WithField("release_error", err).Error("failed to release reservation")
		// A held slot carrying this charge is confirmed by the reconciler;
		// refunding it would leave a paid-for booking with no payment.
		if cur, gerr := s.ledger.Get(ctx, r.ID); gerr == nil && cur.Status.Active() && cur.TransactionID == transactionID {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
	}

	refundErr := s.opts.PaymentPolicy.Do(ctx, isTransientPayment, func(int) error {
		return s.gateway.Refund(ctx, transactionID, r.AmountCents)
	})
	if refundErr != nil {
		queueRefund(ctx, s.refunds, s.sink, s.log, r, transactionID, refundErr)
	}

	if errors.Is(cause, ledger.ErrInvalidStateTransition) {
		return nil, ErrReservationExpired
	}
	return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, cause)
}

func (s *bookingService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return s.ledger.Get(ctx, id)
}

func (s *bookingService) ListReservations(ctx context.Context, facilityID, date string, status *models.ReservationStatus) ([]models.Reservation, error) {
	if _, err := timegrid.ParseDate(date); err != nil {
		return nil, ErrInvalidDate
	}
	return s.ledger.ListByFacilityDate(ctx, facilityID, date, status)
}

// emit delivers ev without letting a sink failure reach the caller.
func emit(ctx context.Context, sink notify.Sink, log logrus.FieldLogger, ev notify.Event) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, ev); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event":          ev.Type,
			"reservation_id": ev.ReservationID,
		}).Warn("notification not delivered")
	}
}

func isTransientStore(err error) bool   { return errors.Is(err, repository.ErrTransient) }
func isTransientPayment(err error) bool { return errors.Is(err, payment.ErrTransient) }

// queueRefund records a refund the gateway would not take and raises the
// staff alert. Shared by the coordinator and cancellation paths.
func queueRefund(ctx context.Context, repo repository.RefundTaskRepository, sink notify.Sink, log logrus.FieldLogger, r *models.Reservation, transactionID string, cause error) {
	log = log.WithError(cause).WithFields(logrus.Fields{"reservation_id": r.ID, "transaction_id": transactionID})
	if repo != nil {
		task := &models.RefundTask{
			ID:            uuid.NewString(),
			ReservationID: r.ID,
			TransactionID: transactionID,
			AmountCents:   r.AmountCents,
			Status:        models.RefundQueued,
			Attempts:      1,
			LastError:     truncate(cause.Error(), 255),
		}
		if err := repo.Create(ctx, task); err != nil {
			log.WithField("queue_error", err).Error("refund could not be queued, manual action needed")
		}
	}
	log.Error("refund failed, queued for reconciliation")
	emit(ctx, sink, log, notify.NewEvent(notify.RefundFailed, r, cause.Error()))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
