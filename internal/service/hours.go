package service

import (
	"context"
	"errors"
	"time"

	"github.com/Eursukkul/court-booking/internal/availability"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/timegrid"
)

// Schedule is what the booking core needs to know about a facility on a date.
type Schedule struct {
	Hours             availability.Hours
	PricePerSlotCents int64
	Currency          string
}

type HoursProvider interface {
	OperatingHours(ctx context.Context, facilityID, date string) (*Schedule, error)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

type facilityHours struct {
	repo repository.FacilityRepository
}

// NewFacilityHoursProvider serves operating hours from the facility copy
// synced from facility-service. Hours are the same every day.
func NewFacilityHoursProvider(repo repository.FacilityRepository) HoursProvider {
	return &facilityHours{repo: repo}
}

func (p *facilityHours) OperatingHours(ctx context.Context, facilityID, _ string) (*Schedule, error) {
	f, err := p.repo.FindByID(ctx, facilityID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrFacilityNotFound
	}
	if err != nil {
		return nil, err
	}
	if !f.Active {
		return nil, ErrFacilityNotFound
	}
	return &Schedule{
		Hours:             availability.Hours{Open: timegrid.Minute(f.OpenMinute), Close: timegrid.Minute(f.CloseMinute)},
		PricePerSlotCents: f.PricePerSlotCents,
		Currency:          f.Currency,
	}, nil
}
