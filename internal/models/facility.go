package models

import "time"

// Facility is a bookable court. booking-service keeps a read copy synced
// from facility-service events.
type Facility struct {
	ID                string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name              string    `gorm:"type:varchar(255);not null" json:"name"`
	Sport             string    `gorm:"type:varchar(64)" json:"sport"`
	OpenMinute        int       `gorm:"not null" json:"open_minute"`
	CloseMinute       int       `gorm:"not null" json:"close_minute"`
	PricePerSlotCents int64     `gorm:"not null" json:"price_per_slot_cents"`
	Currency          string    `gorm:"type:varchar(3);not null;default:'THB'" json:"currency"`
	Active            bool      `gorm:"not null" json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FacilityDay is the lock row for one facility calendar day. Every write to
// that calendar takes it FOR UPDATE first.
type FacilityDay struct {
	FacilityID string    `gorm:"type:varchar(64);primaryKey"`
	Date       string    `gorm:"type:char(10);primaryKey"`
	CreatedAt  time.Time
}

type RefundTaskStatus string

const (
	RefundQueued RefundTaskStatus = "queued"
	RefundDone   RefundTaskStatus = "done"
)

// RefundTask records a refund that failed at cancellation time and must be
// retried by the reconciler.
type RefundTask struct {
	ID            string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReservationID string           `gorm:"type:varchar(36);not null;index" json:"reservation_id"`
	TransactionID string           `gorm:"type:varchar(128);not null" json:"transaction_id"`
	AmountCents   int64            `gorm:"not null" json:"amount_cents"`
	Status        RefundTaskStatus `gorm:"type:varchar(20);not null;default:'queued';index" json:"status"`
	Attempts      int              `gorm:"not null;default:0" json:"attempts"`
	LastError     string           `gorm:"type:varchar(255)" json:"last_error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
