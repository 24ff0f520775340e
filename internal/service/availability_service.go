package service

import (
	"context"

	"github.com/Eursukkul/court-booking/internal/availability"
	"github.com/Eursukkul/court-booking/internal/ledger"
	"github.com/Eursukkul/court-booking/internal/timegrid"
)

type AvailabilityService interface {
	Availability(ctx context.Context, facilityID, date string) (*availability.View, error)
}

type availabilityService struct {
	index  *availability.Index
	ledger *ledger.Ledger
	hours  HoursProvider
	clock  Clock
}

func NewAvailabilityService(index *availability.Index, l *ledger.Ledger, hours HoursProvider, clock Clock) AvailabilityService {
	return &availabilityService{index: index, ledger: l, hours: hours, clock: clock}
}

// Availability is recomputed on every call from the live reservation set.
func (s *availabilityService) Availability(ctx context.Context, facilityID, date string) (*availability.View, error) {
	if _, err := timegrid.ParseDate(date); err != nil {
		return nil, ErrInvalidDate
	}
	sched, err := s.hours.OperatingHours(ctx, facilityID, date)
	if err != nil {
		return nil, err
	}
	active, err := s.ledger.ListActive(ctx, facilityID, date)
	if err != nil {
		return nil, err
	}
	view := s.index.Build(availability.Input{
		FacilityID:   facilityID,
		Date:         date,
		Hours:        sched.Hours,
		Reservations: active,
		Now:          s.clock.Now(),
	})
	return &view, nil
}
