package service

import (
	"context"
	"time"

	"github.com/Eursukkul/court-booking/internal/ledger"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/notify"
	"github.com/Eursukkul/court-booking/internal/payment"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/sirupsen/logrus"
)

// SweepResult counts what one reconciliation pass did.
type SweepResult struct {
	Confirmed       int
	Expired         int
	RefundsDone     int
	RefundsRetrying int
}

// Reconciler finishes the work a crashed or slow booking attempt left
// behind. Pending reservations past the lock TTL are confirmed when the
// charge went through and released otherwise; queued refunds are retried.
type Reconciler struct {
	ledger  *ledger.Ledger
	refunds repository.RefundTaskRepository
	gateway payment.Gateway
	sink    notify.Sink
	clock   Clock
	lockTTL time.Duration
	batch   int
	log     logrus.FieldLogger
}

func NewReconciler(
	l *ledger.Ledger,
	refunds repository.RefundTaskRepository,
	gateway payment.Gateway,
	sink notify.Sink,
	clock Clock,
	lockTTL time.Duration,
	log logrus.FieldLogger,
) *Reconciler {
	return &Reconciler{
		ledger:  l,
		refunds: refunds,
		gateway: gateway,
		sink:    sink,
		clock:   clock,
		lockTTL: lockTTL,
		batch:   100,
		log:     log.WithField("component", "reconciler"),
	}
}

// Run sweeps every interval until ctx is done.
func (rc *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rc.log.WithField("interval", interval.String()).Info("reconciler started")
	for {
		select {
		case <-ctx.Done():
			rc.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			res, err := rc.Sweep(ctx)
			if err != nil {
				rc.log.WithError(err).Error("sweep failed")
				continue
			}
			if res != (SweepResult{}) {
				rc.log.WithFields(logrus.Fields{
					"confirmed":        res.Confirmed,
					"expired":          res.Expired,
					"refunds_done":     res.RefundsDone,
					"refunds_retrying": res.RefundsRetrying,
				}).Info("sweep finished")
			}
		}
	}
}

func (rc *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	stale, err := rc.ledger.ListStalePending(ctx, rc.clock.Now().Add(-rc.lockTTL), rc.batch)
	if err != nil {
		return res, err
	}
	for i := range stale {
		r := &stale[i]
		log := rc.log.WithField("reservation_id", r.ID)

		if r.PaymentStatus == models.PaymentPaid {
			confirmed, err := rc.ledger.Confirm(ctx, r.ID)
			if err != nil {
				log.WithError(err).Warn("could not confirm paid reservation")
				continue
			}
			res.Confirmed++
			log.Info("confirmed paid reservation left pending")
			emit(ctx, rc.sink, rc.log, notify.NewEvent(notify.BookingConfirmed, confirmed, ""))
			continue
		}

		released, err := rc.ledger.Release(ctx, r.ID, models.StatusFailed, "lock expired before payment")
		if err != nil {
			log.WithError(err).Warn("could not release expired reservation")
			continue
		}
		if released.Status != models.StatusFailed {
			continue
		}
		res.Expired++
		log.Info("released expired reservation")
		emit(ctx, rc.sink, rc.log, notify.NewEvent(notify.BookingExpired, released, "lock expired before payment"))
	}

	if rc.refunds == nil {
		return res, nil
	}
	tasks, err := rc.refunds.ListQueued(ctx, rc.batch)
	if err != nil {
		return res, err
	}
	for i := range tasks {
		if rc.retryRefund(ctx, &tasks[i]) {
			res.RefundsDone++
		} else {
			res.RefundsRetrying++
		}
	}
	return res, nil
}

func (rc *Reconciler) retryRefund(ctx context.Context, task *models.RefundTask) bool {
	log := rc.log.WithFields(logrus.Fields{"refund_task": task.ID, "reservation_id": task.ReservationID})

	task.Attempts++
	if err := rc.gateway.Refund(ctx, task.TransactionID, task.AmountCents); err != nil {
		task.LastError = truncate(err.Error(), 255)
		if serr := rc.refunds.Save(ctx, task); serr != nil {
			log.WithError(serr).Error("could not save refund task")
		}
		log.WithError(err).Warn("refund retry failed")
		return false
	}

	task.Status = models.RefundDone
	task.LastError = ""
	if err := rc.refunds.Save(ctx, task); err != nil {
		log.WithError(err).Error("refund done but task not updated")
	}

	r, err := rc.ledger.SetPaymentStatus(ctx, task.ReservationID, models.PaymentRefunded)
	if err != nil {
		// e.g. a lost reservation whose payment was never recorded
		log.WithError(err).Debug("payment status left unchanged")
		r, err = rc.ledger.Get(ctx, task.ReservationID)
	}
	if err == nil {
		emit(ctx, rc.sink, rc.log, notify.NewEvent(notify.RefundCompleted, r, ""))
	}
	log.Info("queued refund completed")
	return true
}
