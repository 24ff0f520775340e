package service

import (
	"context"
	"errors"
	"time"

	"github.com/Eursukkul/court-booking/internal/ledger"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/notify"
	"github.com/Eursukkul/court-booking/internal/payment"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/timegrid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrCancellationWindowClosed = errors.New("cancellation window has closed for this reservation")
	ErrForbidden                = errors.New("not allowed to cancel this reservation")
)

const DefaultCancelCutoff = 24 * time.Hour

// Actor is whoever asks for a cancellation.
type Actor struct {
	UserID string
	Role   string
}

// Privileged reports whether the actor may act on other users' reservations.
func (a Actor) Privileged() bool {
	return a.Role == "admin" || a.Role == "owner"
}

type CancellationService interface {
	Cancel(ctx context.Context, reservationID string, actor Actor) (*models.Reservation, error)
}

type CancellationOptions struct {
	Cutoff       time.Duration
	Location     *time.Location
	RefundPolicy RetryPolicy
}

type cancellationService struct {
	ledger  *ledger.Ledger
	gateway payment.Gateway
	refunds repository.RefundTaskRepository
	sink    notify.Sink
	clock   Clock
	opts    CancellationOptions
	log     logrus.FieldLogger
	tracer  trace.Tracer
}

func NewCancellationService(
	l *ledger.Ledger,
	gateway payment.Gateway,
	refunds repository.RefundTaskRepository,
	sink notify.Sink,
	clock Clock,
	opts CancellationOptions,
	log logrus.FieldLogger,
) CancellationService {
	if opts.Cutoff <= 0 {
		opts.Cutoff = DefaultCancelCutoff
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &cancellationService{
		ledger:  l,
		gateway: gateway,
		refunds: refunds,
		sink:    sink,
		clock:   clock,
		opts:    opts,
		log:     log.WithField("component", "cancellation"),
		tracer:  otel.Tracer(tracerName),
	}
}

// Cancel frees a confirmed reservation and refunds it. A refund the gateway
// refuses is queued; the cancellation itself stands.
func (s *cancellationService) Cancel(ctx context.Context, reservationID string, actor Actor) (*models.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.String("actor.id", actor.UserID),
	))
	defer span.End()

	r, err := s.cancel(ctx, reservationID, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation.status", string(r.Status)))
	return r, nil
}

func (s *cancellationService) cancel(ctx context.Context, reservationID string, actor Actor) (*models.Reservation, error) {
	now := s.clock.Now()
	cancelled, err := s.ledger.Cancel(ctx, reservationID, actor.UserID, func(r *models.Reservation) error {
		if r.UserID != actor.UserID && !actor.Privileged() {
			return ErrForbidden
		}
		start, err := timegrid.At(r.Date, r.Start(), s.opts.Location)
		if err != nil {
			return err
		}
		if start.Sub(now) < s.opts.Cutoff {
			return ErrCancellationWindowClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	log := s.log.WithFields(logrus.Fields{"reservation_id": cancelled.ID, "actor": actor.UserID})
	log.Info("reservation cancelled")
	emit(ctx, s.sink, s.log, notify.NewEvent(notify.BookingCancelled, cancelled, ""))

	if cancelled.TransactionID == "" || cancelled.PaymentStatus != models.PaymentPaid {
		return cancelled, nil
	}

	err = s.opts.RefundPolicy.Do(ctx, isTransientPayment, func(int) error {
		return s.gateway.Refund(ctx, cancelled.TransactionID, cancelled.AmountCents)
	})
	if err != nil {
		queueRefund(ctx, s.refunds, s.sink, s.log, cancelled, cancelled.TransactionID, err)
		return cancelled, nil
	}

	refunded, err := s.ledger.SetPaymentStatus(ctx, cancelled.ID, models.PaymentRefunded)
	if err != nil {
		log.WithError(err).Error("refund succeeded but payment status was not updated")
		return cancelled, nil
	}
	log.Info("refund completed")
	emit(ctx, s.sink, s.log, notify.NewEvent(notify.RefundCompleted, refunded, ""))
	return refunded, nil
}
