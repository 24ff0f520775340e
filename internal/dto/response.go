package dto

import (
	"time"

	"github.com/Eursukkul/court-booking/internal/availability"
	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/timegrid"
)

type ReservationResponse struct {
	ID            string                   `json:"id"`
	FacilityID    string                   `json:"facility_id"`
	UserID        string                   `json:"user_id"`
	Date          string                   `json:"date"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Status        models.ReservationStatus `json:"status"`
	PaymentStatus models.PaymentStatus     `json:"payment_status"`
	AmountCents   int64                    `json:"amount_cents"`
	Currency      string                   `json:"currency"`
	TransactionID string                   `json:"transaction_id,omitempty"`
	FailureReason string                   `json:"failure_reason,omitempty"`
	CancelledBy   string                   `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time               `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

type SlotResponse struct {
	StartTime string             `json:"start_time"`
	EndTime   string             `json:"end_time"`
	Label     availability.Label `json:"label"`
}

type AvailabilityResponse struct {
	FacilityID string         `json:"facility_id"`
	Date       string         `json:"date"`
	FreeSlots  int            `json:"free_slots"`
	TotalSlots int            `json:"total_slots"`
	Slots      []SlotResponse `json:"slots"`
}

type FacilityResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Sport             string    `json:"sport"`
	OpensAt           string    `json:"opens_at"`
	ClosesAt          string    `json:"closes_at"`
	PricePerSlotCents int64     `json:"price_per_slot_cents"`
	Currency          string    `json:"currency"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func ToReservationResponse(r *models.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:            r.ID,
		FacilityID:    r.FacilityID,
		UserID:        r.UserID,
		Date:          r.Date,
		StartTime:     r.Start().String(),
		EndTime:       r.End().String(),
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
		AmountCents:   r.AmountCents,
		Currency:      r.Currency,
		TransactionID: r.TransactionID,
		FailureReason: r.FailureReason,
		CancelledBy:   r.CancelledBy,
		CancelledAt:   r.CancelledAt,
		CreatedAt:     r.CreatedAt,
	}
}

func ToAvailabilityResponse(v *availability.View) AvailabilityResponse {
	slots := make([]SlotResponse, len(v.Slots))
	for i, s := range v.Slots {
		slots[i] = SlotResponse{StartTime: s.Start.String(), EndTime: s.End.String(), Label: s.Label}
	}
	return AvailabilityResponse{
		FacilityID: v.FacilityID,
		Date:       v.Date,
		FreeSlots:  v.FreeSlots,
		TotalSlots: v.TotalSlots,
		Slots:      slots,
	}
}

func ToFacilityResponse(f *models.Facility) FacilityResponse {
	return FacilityResponse{
		ID:                f.ID,
		Name:              f.Name,
		Sport:             f.Sport,
		OpensAt:           timegrid.Minute(f.OpenMinute).String(),
		ClosesAt:          timegrid.Minute(f.CloseMinute).String(),
		PricePerSlotCents: f.PricePerSlotCents,
		Currency:          f.Currency,
		Active:            f.Active,
		CreatedAt:         f.CreatedAt,
	}
}
