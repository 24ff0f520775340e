package dto

type CreateBookingRequest struct {
	// UserID is only read when the identity middleware runs without a secret.
	UserID        string `json:"user_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	PaymentMethod string `json:"payment_method"`
}

type CreateFacilityRequest struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Sport             string `json:"sport"`
	OpensAt           string `json:"opens_at"`
	ClosesAt          string `json:"closes_at"`
	PricePerSlotCents int64  `json:"price_per_slot_cents"`
	Currency          string `json:"currency"`
}

type UpdateHoursRequest struct {
	OpensAt  string `json:"opens_at"`
	ClosesAt string `json:"closes_at"`
}
