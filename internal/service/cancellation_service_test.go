package service

import (
	"context"
	"testing"
	"time"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/notify"
	"github.com/Eursukkul/court-booking/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = Actor{UserID: "user-1", Role: "user"}

func TestCancel_InsideCutoffIsRejected(t *testing.T) {
	f := newFixture(t)
	r, err := f.book("09:00", "10:00")
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC))
	_, err = f.cancellation.Cancel(context.Background(), r.ID, owner)
	assert.ErrorIs(t, err, ErrCancellationWindowClosed)

	got, err := f.booking.GetReservation(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Zero(t, f.gateway.refundCalls)
}

func TestCancel_RefundsAndFreesSlot(t *testing.T) {
	f := newFixture(t)
	r, err := f.book("09:00", "10:00")
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC))
	got, err := f.cancellation.Cancel(context.Background(), r.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, got.Status)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, "user-1", got.CancelledBy)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, []string{r.TransactionID}, f.gateway.refunded)

	assert.Equal(t, []notify.EventType{
		notify.BookingConfirmed,
		notify.BookingCancelled,
		notify.RefundCompleted,
	}, f.sink.types())

	// the interval is free again
	_, err = f.book("09:00", "10:00")
	assert.NoError(t, err)
}

func TestCancel_ExactlyAtCutoffIsAllowed(t *testing.T) {
	f := newFixture(t)
	r, err := f.book("09:00", "10:00")
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC))
	_, err = f.cancellation.Cancel(context.Background(), r.ID, owner)
	assert.NoError(t, err)
}

func TestCancel_OtherUserForbidden(t *testing.T) {
	f := newFixture(t)
	r, err := f.book("09:00", "10:00")
	require.NoError(t, err)

	_, err = f.cancellation.Cancel(context.Background(), r.ID, Actor{UserID: "user-2", Role: "user"})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.cancellation.Cancel(context.Background(), r.ID, Actor{UserID: "staff-1", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "staff-1", got.CancelledBy)
}

func TestCancel_NotConfirmed(t *testing.T) {
	f := newFixture(t)
	r, err := f.book("09:00", "10:00")
	require.NoError(t, err)

	_, err = f.cancellation.Cancel(context.Background(), r.ID, owner)
	require.NoError(t, err)

	_, err = f.cancellation.Cancel(context.Background(), r.ID, owner)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = f.cancellation.Cancel(context.Background(), "missing", owner)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCancel_RefundFailureIsQueued(t *testing.T) {
	f := newFixture(t)
	r, err := f.book("09:00", "10:00")
	require.NoError(t, err)

	f.gateway.refundFn = func(ctx context.Context, transactionID string, amountCents int64) error {
		return payment.Declined("failed_refund", "charge already reversed")
	}

	got, err := f.cancellation.Cancel(context.Background(), r.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	tasks, err := f.refunds.ListQueued(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, r.ID, tasks[0].ReservationID)
	assert.Equal(t, r.TransactionID, tasks[0].TransactionID)
	assert.Equal(t, int64(30000), tasks[0].AmountCents)
	assert.Contains(t, f.sink.types(), notify.RefundFailed)

	active, err := f.ledger.ListActive(context.Background(), testFacility, testDate)
	require.NoError(t, err)
	assert.Empty(t, active)
}
