package repository

import (
	"context"

	"github.com/Eursukkul/court-booking/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FacilityRepository interface {
	Create(ctx context.Context, f *models.Facility) error
	Update(ctx context.Context, f *models.Facility) error
	// Upsert writes a facility copy received from facility-service.
	Upsert(ctx context.Context, f *models.Facility) error
	FindByID(ctx context.Context, id string) (*models.Facility, error)
	FindAll(ctx context.Context) ([]models.Facility, error)
}

type facilityRepository struct {
	db *gorm.DB
}

func NewFacilityRepository(db *gorm.DB) FacilityRepository {
	return &facilityRepository{db: db}
}

func (r *facilityRepository) Create(ctx context.Context, f *models.Facility) error {
	return translate(r.db.WithContext(ctx).Create(f).Error)
}

func (r *facilityRepository) Update(ctx context.Context, f *models.Facility) error {
	return translate(r.db.WithContext(ctx).Save(f).Error)
}

func (r *facilityRepository) Upsert(ctx context.Context, f *models.Facility) error {
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "sport", "open_minute", "close_minute",
			"price_per_slot_cents", "currency", "active", "updated_at",
		}),
	}).Create(f).Error)
}

func (r *facilityRepository) FindByID(ctx context.Context, id string) (*models.Facility, error) {
	var f models.Facility
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (r *facilityRepository) FindAll(ctx context.Context) ([]models.Facility, error) {
	var out []models.Facility
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}
