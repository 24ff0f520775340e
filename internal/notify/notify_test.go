package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Eursukkul/court-booking/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	notifyFn func(ctx context.Context, ev Event) error
	got      []Event
}

func (m *mockSink) Notify(ctx context.Context, ev Event) error {
	m.got = append(m.got, ev)
	if m.notifyFn != nil {
		return m.notifyFn(ctx, ev)
	}
	return nil
}

type mockPublisher struct {
	keys []string
}

func (m *mockPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	m.keys = append(m.keys, routingKey)
	return nil
}

type mockSender struct {
	texts []string
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.texts = append(m.texts, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleReservation() *models.Reservation {
	return &models.Reservation{
		ID:            "r-1",
		FacilityID:    "court-1",
		UserID:        "user-1",
		Date:          "2026-03-10",
		StartMinute:   540,
		EndMinute:     600,
		Status:        models.StatusConfirmed,
		PaymentStatus: models.PaymentPaid,
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(BookingConfirmed, sampleReservation(), "")
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "09:00", ev.StartTime)
	assert.Equal(t, "10:00", ev.EndTime)
	assert.Equal(t, "confirmed", ev.Status)
	assert.Equal(t, "paid", ev.PaymentStatus)
}

func TestFanout_ContinuesPastFailingSink(t *testing.T) {
	boom := errors.New("broker down")
	bad := &mockSink{notifyFn: func(context.Context, Event) error { return boom }}
	good := &mockSink{}

	f := NewFanout(quietLogger(), time.Second, bad, good)
	err := f.Notify(context.Background(), NewEvent(BookingFailed, sampleReservation(), "declined"))

	assert.ErrorIs(t, err, boom)
	require.Len(t, good.got, 1)
	assert.Equal(t, BookingFailed, good.got[0].Type)
}

func TestFanout_SinksOutliveCallerCancellation(t *testing.T) {
	var sinkErr error
	s := &mockSink{notifyFn: func(ctx context.Context, _ Event) error {
		sinkErr = ctx.Err()
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, NewFanout(quietLogger(), time.Second, s).Notify(ctx, Event{}))
	assert.NoError(t, sinkErr)
}

func TestRabbitSink_RoutesByType(t *testing.T) {
	pub := &mockPublisher{}
	s := NewRabbitSink(pub)
	require.NoError(t, s.Notify(context.Background(), NewEvent(RefundFailed, sampleReservation(), "gateway down")))
	assert.Equal(t, []string{"refund.failed"}, pub.keys)
}

func TestTelegramSink_Filter(t *testing.T) {
	sender := &mockSender{}
	s := NewTelegramSink(sender, 42, RefundFailed)

	require.NoError(t, s.Notify(context.Background(), NewEvent(BookingConfirmed, sampleReservation(), "")))
	assert.Empty(t, sender.texts)

	require.NoError(t, s.Notify(context.Background(), NewEvent(RefundFailed, sampleReservation(), "gateway down")))
	require.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "Refund failed")
	assert.Contains(t, sender.texts[0], "gateway down")
	assert.Contains(t, sender.texts[0], "09:00-10:00")
}

func TestAsync_DoesNotWaitForSlowSink(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan Event, 4)
	slow := &mockSink{notifyFn: func(_ context.Context, ev Event) error {
		<-release
		delivered <- ev
		return nil
	}}
	a := NewAsync(slow, 4, quietLogger())

	start := time.Now()
	require.NoError(t, a.Notify(context.Background(), NewEvent(BookingConfirmed, sampleReservation(), "")))
	require.NoError(t, a.Notify(context.Background(), NewEvent(BookingCancelled, sampleReservation(), "")))
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, delivered)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))

	require.Len(t, delivered, 2)
	assert.Equal(t, BookingConfirmed, (<-delivered).Type)
	assert.Equal(t, BookingCancelled, (<-delivered).Type)
	assert.ErrorIs(t, a.Notify(context.Background(), Event{}), ErrClosed)
}

func TestAsync_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocked := &mockSink{notifyFn: func(context.Context, Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}}
	a := NewAsync(blocked, 1, quietLogger())

	require.NoError(t, a.Notify(context.Background(), Event{Type: BookingConfirmed}))
	<-started // worker holds the first event
	require.NoError(t, a.Notify(context.Background(), Event{Type: BookingFailed}))
	assert.ErrorIs(t, a.Notify(context.Background(), Event{Type: BookingExpired}), ErrQueueFull)

	close(release)
	require.NoError(t, a.Close(context.Background()))
}
