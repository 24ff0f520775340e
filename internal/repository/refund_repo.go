package repository

import (
	"context"

	"github.com/Eursukkul/court-booking/internal/models"
	"gorm.io/gorm"
)

type RefundTaskRepository interface {
	Create(ctx context.Context, task *models.RefundTask) error
	ListQueued(ctx context.Context, limit int) ([]models.RefundTask, error)
	Save(ctx context.Context, task *models.RefundTask) error
}

type refundTaskRepository struct {
	db *gorm.DB
}

func NewRefundTaskRepository(db *gorm.DB) RefundTaskRepository {
	return &refundTaskRepository{db: db}
}

func (r *refundTaskRepository) Create(ctx context.Context, task *models.RefundTask) error {
	return translate(r.db.WithContext(ctx).Create(task).Error)
}

func (r *refundTaskRepository) ListQueued(ctx context.Context, limit int) ([]models.RefundTask, error) {
	var out []models.RefundTask
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RefundQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (r *refundTaskRepository) Save(ctx context.Context, task *models.RefundTask) error {
	return translate(r.db.WithContext(ctx).Save(task).Error)
}
