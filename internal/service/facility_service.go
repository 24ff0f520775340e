package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/repository"
	"github.com/Eursukkul/court-booking/internal/timegrid"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	FacilityCreatedKey = "facility.created"
	FacilityUpdatedKey = "facility.updated"
)

var ErrInvalidFacility = errors.New("invalid facility")

// EventPublisher is the messaging side of facility-service.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type FacilityService interface {
	CreateFacility(ctx context.Context, f *models.Facility) error
	GetFacility(ctx context.Context, id string) (*models.Facility, error)
	ListFacilities(ctx context.Context) ([]models.Facility, error)
	UpdateHours(ctx context.Context, id, opensAt, closesAt string) (*models.Facility, error)
}

type facilityService struct {
	repo      repository.FacilityRepository
	publisher EventPublisher
	log       logrus.FieldLogger
}

func NewFacilityService(repo repository.FacilityRepository, publisher EventPublisher, log logrus.FieldLogger) FacilityService {
	return &facilityService{repo: repo, publisher: publisher, log: log.WithField("component", "facility")}
}

func (s *facilityService) CreateFacility(ctx context.Context, f *models.Facility) error {
	if f.Name == "" || f.PricePerSlotCents <= 0 {
		return fmt.Errorf("%w: name and a positive price per slot are required", ErrInvalidFacility)
	}
	if err := validateHours(timegrid.Minute(f.OpenMinute), timegrid.Minute(f.CloseMinute)); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Currency == "" {
		f.Currency = "THB"
	}
	f.Active = true

	if err := s.repo.Create(ctx, f); err != nil {
		return fmt.Errorf("create facility: %w", err)
	}
	s.publish(ctx, FacilityCreatedKey, f)
	return nil
}

func (s *facilityService) GetFacility(ctx context.Context, id string) (*models.Facility, error) {
	f, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrFacilityNotFound
	}
	return f, err
}

func (s *facilityService) ListFacilities(ctx context.Context) ([]models.Facility, error) {
	return s.repo.FindAll(ctx)
}

func (s *facilityService) UpdateHours(ctx context.Context, id, opensAt, closesAt string) (*models.Facility, error) {
	openMin, err := timegrid.ParseClock(opensAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFacility, err)
	}
	// "24:00" closes at midnight
	closeMin := timegrid.Minute(timegrid.MinutesPerDay)
	if closesAt != "24:00" {
		if closeMin, err = timegrid.ParseClock(closesAt); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFacility, err)
		}
	}
	if err := validateHours(openMin, closeMin); err != nil {
		return nil, err
	}

	f, err := s.GetFacility(ctx, id)
	if err != nil {
		return nil, err
	}
	f.OpenMinute = int(openMin)
	f.CloseMinute = int(closeMin)
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, fmt.Errorf("update facility: %w", err)
	}
	s.publish(ctx, FacilityUpdatedKey, f)
	return f, nil
}

func (s *facilityService) publish(ctx context.Context, key string, f *models.Facility) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, f); err != nil {
		s.log.WithError(err).WithField("facility_id", f.ID).Error("facility event not published")
	}
}

func validateHours(opensAt, closesAt timegrid.Minute) error {
	if v := timegrid.ValidateMinutes(opensAt, closesAt); !v.Valid {
		return fmt.Errorf("%w: operating hours: %w", ErrInvalidFacility, v.Err())
	}
	return nil
}
