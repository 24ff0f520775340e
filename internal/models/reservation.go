package models

import (
	"fmt"
	"time"

	"github.com/Eursukkul/court-booking/internal/timegrid"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusRefunded  ReservationStatus = "refunded"
	StatusFailed    ReservationStatus = "failed"
)

// validStatusTransitions is the reservation lifecycle. A status missing from
// the map is not a status.
var validStatusTransitions = map[ReservationStatus][]ReservationStatus{
	StatusPending:   {StatusConfirmed, StatusFailed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
	StatusCancelled: {StatusRefunded},
	StatusRefunded:  {},
	StatusFailed:    {},
}

func (s ReservationStatus) IsValid() bool {
	_, ok := validStatusTransitions[s]
	return ok
}

func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
	for _, t := range validStatusTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Active reports whether the reservation still holds its interval.
func (s ReservationStatus) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed:
		return true
	case StatusCancelled, StatusRefunded, StatusFailed:
		return false
	default:
		return false
	}
}

func ParseReservationStatus(s string) (ReservationStatus, error) {
	status := ReservationStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid reservation status: %s", s)
	}
	return status, nil
}

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "initiated"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

var validPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentInitiated: {PaymentPaid, PaymentFailed},
	PaymentPaid:      {PaymentRefunded},
	PaymentFailed:    {},
	PaymentRefunded:  {},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := validPaymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range validPaymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

type Reservation struct {
	ID            string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	FacilityID    string            `gorm:"type:varchar(64);not null;index:idx_reservation_slot,priority:1" json:"facility_id"`
	UserID        string            `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Date          string            `gorm:"type:char(10);not null;index:idx_reservation_slot,priority:2" json:"date"`
	StartMinute   int               `gorm:"not null;index:idx_reservation_slot,priority:3" json:"start_minute"`
	EndMinute     int               `gorm:"not null;index:idx_reservation_slot,priority:4" json:"end_minute"`
	Status        ReservationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentStatus PaymentStatus     `gorm:"type:varchar(20);not null;default:'initiated'" json:"payment_status"`
	PaymentMethod string            `gorm:"type:varchar(64)" json:"payment_method"`
	AmountCents   int64             `gorm:"not null" json:"amount_cents"`
	Currency      string            `gorm:"type:varchar(3);not null" json:"currency"`
	TransactionID string            `gorm:"type:varchar(128)" json:"transaction_id,omitempty"`
	FailureReason string            `gorm:"type:varchar(255)" json:"failure_reason,omitempty"`
	CancelledBy   string            `gorm:"type:varchar(64)" json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (r *Reservation) Start() timegrid.Minute { return timegrid.Minute(r.StartMinute) }
func (r *Reservation) End() timegrid.Minute   { return timegrid.Minute(r.EndMinute) }

func (r *Reservation) Slot() timegrid.Slot {
	return timegrid.Slot{FacilityID: r.FacilityID, Date: r.Date, Start: r.Start(), End: r.End()}
}

// Covers reports whether the slot starting at m lies inside the reservation.
func (r *Reservation) Covers(m timegrid.Minute) bool {
	return timegrid.Overlaps(r.Start(), r.End(), m, m+timegrid.SlotMinutes)
}
