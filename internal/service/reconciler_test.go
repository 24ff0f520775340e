package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Eursukkul/court-booking/internal/availability"
	"github.com/Eursukkul/court-booking/internal/ledger"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/notify"
	"github.com/Eursukkul/court-booking/internal/timegrid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) reserveOnly(t *testing.T, start, end timegrid.Minute) *models.Reservation {
	t.Helper()
	r, err := f.ledger.Reserve(context.Background(), ledger.ReserveRequest{
		FacilityID:  testFacility,
		UserID:      "user-9",
		Date:        testDate,
		Start:       start,
		End:         end,
		AmountCents: 15000,
		Currency:    "THB",
	})
	require.NoError(t, err)
	return r
}

func TestSweep_ExpiresUnpaidLocks(t *testing.T) {
	f := newFixture(t)
	r := f.reserveOnly(t, 600, 630)

	view, err := f.availability.Availability(context.Background(), testFacility, testDate)
	require.NoError(t, err)
	assert.Equal(t, availability.Locked, slotLabel(t, view, 600))

	res, err := f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res, "fresh locks are left alone")

	f.clock.Advance(11 * time.Minute)
	res, err = f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "lock expired before payment", got.FailureReason)
	assert.Equal(t, []notify.EventType{notify.BookingExpired}, f.sink.types())

	view, err = f.availability.Availability(context.Background(), testFacility, testDate)
	require.NoError(t, err)
	assert.Equal(t, availability.Available, slotLabel(t, view, 600))
}

func TestSweep_ConfirmsPaidPending(t *testing.T) {
	f := newFixture(t)
	r := f.reserveOnly(t, 600, 660)
	_, err := f.ledger.RecordPayment(context.Background(), r.ID, "chrg_crashed")
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	res, err := f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Confirmed)

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, []notify.EventType{notify.BookingConfirmed}, f.sink.types())
}

func TestSweep_RetriesQueuedRefunds(t *testing.T) {
	f := newFixture(t)
	r, err := f.book("09:00", "10:00")
	require.NoError(t, err)

	failing := true
	f.gateway.refundFn = func(ctx context.Context, transactionID string, amountCents int64) error {
		if failing {
			return errors.New("gateway down")
		}
		return nil
	}
	_, err = f.cancellation.Cancel(context.Background(), r.ID, owner)
	require.NoError(t, err)

	res, err := f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefundsRetrying)

	tasks, err := f.refunds.ListQueued(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].Attempts)
	assert.Equal(t, "gateway down", tasks[0].LastError)

	failing = false
	res, err = f.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefundsDone)

	tasks, err = f.refunds.ListQueued(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	got, err := f.ledger.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, got.Status)
	assert.Equal(t, models.PaymentRefunded, got.PaymentStatus)
	types := f.sink.types()
	assert.Equal(t, notify.RefundCompleted, types[len(types)-1])
}

func TestReconcilerRun_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.reconciler.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
