package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Eursukkul/court-booking/internal/availability"
	"github.com/Eursukkul/court-booking/internal/ledger"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/notify"
	"github.com/Eursukkul/court-booking/internal/payment"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/sirupsen/logrus"
)

const (
	testFacility = "court-1"
	testDate     = "2026-03-10"
)

// --- Clock ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- Mock payment.Gateway ---

type mockGateway struct {
	mu       sync.Mutex
	chargeFn func(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error)
	refundFn func(ctx context.Context, transactionID string, amountCents int64) error

	chargeCalls int
	charged     []string
	refundCalls int
	refunded    []string
}

func (m *mockGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.ChargeResult, error) {
	m.mu.Lock()
	m.chargeCalls++
	n := m.chargeCalls
	m.mu.Unlock()

	var (
		res *payment.ChargeResult
		err error
	)
	if m.chargeFn != nil {
		res, err = m.chargeFn(ctx, req)
	} else {
		res = &payment.ChargeResult{TransactionID: fmt.Sprintf("chrg_%d", n)}
	}
	if err == nil {
		m.mu.Lock()
		m.charged = append(m.charged, res.TransactionID)
		m.mu.Unlock()
	}
	return res, err
}

func (m *mockGateway) Refund(ctx context.Context, transactionID string, amountCents int64) error {
	m.mu.Lock()
	m.refundCalls++
	m.mu.Unlock()
	if m.refundFn != nil {
		if err := m.refundFn(ctx, transactionID, amountCents); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.refunded = append(m.refunded, transactionID)
	m.mu.Unlock()
	return nil
}

// --- Recording notify.Sink ---

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Notify(_ context.Context, ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []notify.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// --- Store that fails transiently a set number of times ---

type flakyStore struct {
	*repository.MemoryReservationStore
	mu       sync.Mutex
	failures int
	commits  int

	// afterCommit runs outside the day lock after the n-th committed unit of work.
	afterCommit func(n int)
}

func (f *flakyStore) WithinFacilityDay(ctx context.Context, facilityID, date string, fn func(tx repository.DayTx) error) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return fmt.Errorf("%w: could not serialize access (40001)", repository.ErrTransient)
	}
	f.mu.Unlock()
	if err := f.MemoryReservationStore.WithinFacilityDay(ctx, facilityID, date, fn); err != nil {
		return err
	}

	f.mu.Lock()
	f.commits++
	n, hook := f.commits, f.afterCommit
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

// --- Fixture ---

type fixture struct {
	clock      *testClock
	store      *flakyStore
	ledger     *ledger.Ledger
	gateway    *mockGateway
	sink       *recordingSink
	refunds    *repository.MemoryRefundTaskRepository
	facilities *repository.MemoryFacilityRepository

	booking      BookingService
	cancellation CancellationService
	availability AvailabilityService
	reconciler   *Reconciler
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := quietLogger()

	f := &fixture{
		clock:   &testClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		store:   &flakyStore{MemoryReservationStore: repository.NewMemoryReservationStore()},
		gateway: &mockGateway{},
		sink:    &recordingSink{},
		refunds: repository.NewMemoryRefundTaskRepository(),
		facilities: repository.NewMemoryFacilityRepository(models.Facility{
			ID:                testFacility,
			Name:              "Court 1",
			Sport:             "badminton",
			OpenMinute:        480,
			CloseMinute:       1320,
			PricePerSlotCents: 15000,
			Currency:          "THB",
			Active:            true,
		}),
	}
	f.ledger = ledger.New(f.store, log).WithClock(f.clock.Now)

	hours := NewFacilityHoursProvider(f.facilities)
	policy := RetryPolicy{MaxAttempts: 3}

	f.booking = NewBookingService(f.ledger, hours, f.gateway, f.refunds, f.sink, f.clock,
		BookingOptions{ReservePolicy: policy, PaymentPolicy: policy, Location: time.UTC}, log)
	f.cancellation = NewCancellationService(f.ledger, f.gateway, f.refunds, f.sink, f.clock,
		CancellationOptions{Cutoff: 24 * time.Hour, Location: time.UTC, RefundPolicy: policy}, log)
	f.availability = NewAvailabilityService(
		availability.NewIndex(availability.Config{LockTTL: 10 * time.Minute, FillingFastThreshold: 0.2, Location: time.UTC}),
		f.ledger, hours, f.clock)
	f.reconciler = NewReconciler(f.ledger, f.refunds, f.gateway, f.sink, f.clock, 10*time.Minute, log)
	return f
}

func (f *fixture) book(start, end string) (*models.Reservation, error) {
	return f.booking.Book(context.Background(), BookRequest{
		FacilityID:    testFacility,
		UserID:        "user-1",
		Date:          testDate,
		StartTime:     start,
		EndTime:       end,
		PaymentMethod: "tokn_test_visa",
	})
}
