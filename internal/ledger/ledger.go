// Package ledger is the only writer of reservation rows. Every mutation runs
// inside the store's facility-day unit of work, so no two active
// reservations of the same facility and date can ever overlap.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/timegrid"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrSlotConflict           = errors.New("this slot was just taken")
	ErrInvalidStateTransition = errors.New("invalid reservation state transition")
	ErrReservationNotFound    = errors.New("reservation not found")
)

type ReserveRequest struct {
	FacilityID    string
	UserID        string
	Date          string
	Start         timegrid.Minute
	End           timegrid.Minute
	PaymentMethod string
	AmountCents   int64
	Currency      string
}

// Guard is evaluated under the facility-day lock before a cancellation is
// applied. A non-nil error aborts the cancellation unchanged.
type Guard func(r *models.Reservation) error

type Ledger struct {
	store repository.ReservationStore
	log   logrus.FieldLogger
	now   func() time.Time
}

func New(store repository.ReservationStore, log logrus.FieldLogger) *Ledger {
	return &Ledger{
		store: store,
		log:   log.WithField("component", "ledger"),
		now:   time.Now,
	}
}

// WithClock replaces the time source used for created/updated stamps.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Reserve inserts a Pending reservation for [Start, End) unless an active
// reservation of the same facility-day overlaps it.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (*models.Reservation, error) {
	if err := timegrid.ValidateMinutes(req.Start, req.End).Err(); err != nil {
		return nil, err
	}
	if _, err := timegrid.ParseDate(req.Date); err != nil {
		return nil, err
	}

	now := l.now()
	r := &models.Reservation{
		ID:            uuid.NewString(),
		FacilityID:    req.FacilityID,
		UserID:        req.UserID,
		Date:          req.Date,
		StartMinute:   int(req.Start),
		EndMinute:     int(req.End),
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentInitiated,
		PaymentMethod: req.PaymentMethod,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := l.store.WithinFacilityDay(ctx, req.FacilityID, req.Date, func(tx repository.DayTx) error {
		active, err := tx.ActiveReservations(ctx)
		if err != nil {
			return err
		}
		for _, a := range active {
			if timegrid.Overlaps(a.Start(), a.End(), req.Start, req.End) {
				return ErrSlotConflict
			}
		}
		return tx.Insert(ctx, r)
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			l.log.WithFields(logrus.Fields{
				"facility_id": req.FacilityID,
				"date":        req.Date,
				"start":       req.Start.String(),
				"end":         req.End.String(),
			}).Debug("slot conflict")
		}
		return nil, err
	}
	return r, nil
}

func (l *Ledger) Confirm(ctx context.Context, id string) (*models.Reservation, error) {
	return l.mutate(ctx, id, func(r *models.Reservation) (bool, error) {
		if r.Status != models.StatusPending || !r.Status.CanTransitionTo(models.StatusConfirmed) {
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, r.Status, models.StatusConfirmed)
		}
		r.Status = models.StatusConfirmed
		return true, nil
	})
}

// RecordPayment stamps a successful charge on a Pending reservation, so a
// crash before Confirm still leaves evidence for the reconciler.
func (l *Ledger) RecordPayment(ctx context.Context, id, transactionID string) (*models.Reservation, error) {
	return l.mutate(ctx, id, func(r *models.Reservation) (bool, error) {
		if r.Status != models.StatusPending {
			return false, fmt.Errorf("%w: cannot record payment on %s reservation", ErrInvalidStateTransition, r.Status)
		}
		if r.PaymentStatus == models.PaymentPaid && r.TransactionID == transactionID {
			return false, nil
		}
		if !r.PaymentStatus.CanTransitionTo(models.PaymentPaid) {
			return false, fmt.Errorf("%w: payment %s -> %s", ErrInvalidStateTransition, r.PaymentStatus, models.PaymentPaid)
		}
		r.PaymentStatus = models.PaymentPaid
		r.TransactionID = transactionID
		return true, nil
	})
}

// Release frees the interval by moving the reservation to Cancelled or
// Failed. Releasing a reservation that no longer holds its interval is a
// successful no-op.
func (l *Ledger) Release(ctx context.Context, id string, to models.ReservationStatus, reason string) (*models.Reservation, error) {
	switch to {
	case models.StatusCancelled, models.StatusFailed:
	case models.StatusPending, models.StatusConfirmed, models.StatusRefunded:
		return nil, fmt.Errorf("%w: release target %s", ErrInvalidStateTransition, to)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, to)
	}

	return l.mutate(ctx, id, func(r *models.Reservation) (bool, error) {
		if !r.Status.Active() {
			return false, nil
		}
		if !r.Status.CanTransitionTo(to) {
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, r.Status, to)
		}
		r.Status = to
		r.FailureReason = reason
		if to == models.StatusCancelled {
			at := l.now()
			r.CancelledAt = &at
		}
		return true, nil
	})
}

// Cancel moves a Confirmed reservation to Cancelled once guard accepts it.
func (l *Ledger) Cancel(ctx context.Context, id, actor string, guard Guard) (*models.Reservation, error) {
	return l.mutate(ctx, id, func(r *models.Reservation) (bool, error) {
		if r.Status != models.StatusConfirmed {
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, r.Status, models.StatusCancelled)
		}
		if guard != nil {
			if err := guard(r); err != nil {
				return false, err
			}
		}
		at := l.now()
		r.Status = models.StatusCancelled
		r.CancelledBy = actor
		r.CancelledAt = &at
		return true, nil
	})
}

// SetPaymentStatus advances the payment axis. A completed refund on a
// cancelled reservation also closes its lifecycle as Refunded.
func (l *Ledger) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (*models.Reservation, error) {
	return l.mutate(ctx, id, func(r *models.Reservation) (bool, error) {
		if r.PaymentStatus == status {
			return false, nil
		}
		if !r.PaymentStatus.CanTransitionTo(status) {
			return false, fmt.Errorf("%w: payment %s -> %s", ErrInvalidStateTransition, r.PaymentStatus, status)
		}
		r.PaymentStatus = status
		if status == models.PaymentRefunded && r.Status.CanTransitionTo(models.StatusRefunded) {
			r.Status = models.StatusRefunded
		}
		return true, nil
	})
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := l.store.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrReservationNotFound
	}
	return r, err
}

func (l *Ledger) ListActive(ctx context.Context, facilityID, date string) ([]models.Reservation, error) {
	return l.store.ListActive(ctx, facilityID, date)
}

func (l *Ledger) ListByFacilityDate(ctx context.Context, facilityID, date string, status *models.ReservationStatus) ([]models.Reservation, error) {
	return l.store.ListByFacilityDate(ctx, facilityID, date, status)
}

func (l *Ledger) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	return l.store.ListStalePending(ctx, cutoff, limit)
}

// mutate re-reads the reservation under its facility-day lock and saves it
// when fn reports a change.
func (l *Ledger) mutate(ctx context.Context, id string, fn func(r *models.Reservation) (bool, error)) (*models.Reservation, error) {
	cur, err := l.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var out *models.Reservation
	err = l.store.WithinFacilityDay(ctx, cur.FacilityID, cur.Date, func(tx repository.DayTx) error {
		r, err := tx.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		changed, err := fn(r)
		if err != nil {
			return err
		}
		out = r
		if !changed {
			return nil
		}
		r.UpdatedAt = l.now()
		return tx.Save(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
