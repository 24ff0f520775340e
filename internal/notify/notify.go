// Package notify delivers booking lifecycle events to whoever listens:
// downstream services over RabbitMQ and venue staff over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type EventType string

const (
	BookingConfirmed EventType = "booking.confirmed"
	BookingFailed    EventType = "booking.failed"
	BookingCancelled EventType = "booking.cancelled"
	BookingExpired   EventType = "booking.expired"
	RefundCompleted  EventType = "refund.completed"
	RefundFailed     EventType = "refund.failed"
)

type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	ReservationID string    `json:"reservation_id"`
	FacilityID    string    `json:"facility_id"`
	UserID        string    `json:"user_id"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent snapshots r for delivery.
func NewEvent(t EventType, r *models.Reservation, reason string) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          t,
		ReservationID: r.ID,
		FacilityID:    r.FacilityID,
		UserID:        r.UserID,
		Date:          r.Date,
		StartTime:     r.Start().String(),
		EndTime:       r.End().String(),
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		AmountCents:   r.AmountCents,
		Currency:      r.Currency,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	}
}

type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// Fanout hands each event to every sink. A failing sink does not stop the
// others; failures are logged and joined into the returned error.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewFanout(log logrus.FieldLogger, timeout time.Duration, sinks ...Sink) *Fanout {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fanout{sinks: sinks, timeout: timeout, log: log.WithField("component", "notify")}
}

func (f *Fanout) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f.sinks {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		err := s.Notify(sctx, ev)
		cancel()
		if err != nil {
			f.log.WithError(err).WithFields(logrus.Fields{
				"event":          ev.Type,
				"reservation_id": ev.ReservationID,
				"sink":           fmt.Sprintf("%T", s),
			}).Warn("notification failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }
