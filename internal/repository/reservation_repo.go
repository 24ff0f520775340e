package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrTransient = errors.New("transient storage failure")
)

// DayTx is the unit of work for one facility-day. Everything done through it
// commits together when the enclosing callback returns nil.
type DayTx interface {
	// ActiveReservations re-reads pending and confirmed reservations of the
	// locked facility-day.
	ActiveReservations(ctx context.Context) ([]models.Reservation, error)
	Insert(ctx context.Context, r *models.Reservation) error
	Get(ctx context.Context, id string) (*models.Reservation, error)
	Save(ctx context.Context, r *models.Reservation) error
}

type ReservationStore interface {
	// WithinFacilityDay runs fn while holding the exclusive lock of
	// (facilityID, date). Calls for other facility-days are not blocked.
	WithinFacilityDay(ctx context.Context, facilityID, date string, fn func(tx DayTx) error) error
	FindByID(ctx context.Context, id string) (*models.Reservation, error)
	ListActive(ctx context.Context, facilityID, date string) ([]models.Reservation, error)
	ListByFacilityDate(ctx context.Context, facilityID, date string, status *models.ReservationStatus) ([]models.Reservation, error)
	// ListStalePending returns pending reservations created before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error)
}

var activeStatuses = []models.ReservationStatus{models.StatusPending, models.StatusConfirmed}

type reservationStore struct {
	db *gorm.DB
}

func NewReservationStore(db *gorm.DB) ReservationStore {
	return &reservationStore{db: db}
}

func (s *reservationStore) WithinFacilityDay(ctx context.Context, facilityID, date string, fn func(tx DayTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		day := models.FacilityDay{FacilityID: facilityID, Date: date}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&day).Error; err != nil {
			return err
		}
		// Lock the facility-day row: serializes every writer of this calendar
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("facility_id = ? AND date = ?", facilityID, date).
			First(&day).Error; err != nil {
			return err
		}
		return fn(&gormDayTx{tx: tx, facilityID: facilityID, date: date})
	})
	return translate(err)
}

func (s *reservationStore) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *reservationStore) ListActive(ctx context.Context, facilityID, date string) ([]models.Reservation, error) {
	return activeFor(ctx, s.db, facilityID, date)
}

func (s *reservationStore) ListByFacilityDate(ctx context.Context, facilityID, date string, status *models.ReservationStatus) ([]models.Reservation, error) {
	var out []models.Reservation
	q := s.db.WithContext(ctx).Where("facility_id = ? AND date = ?", facilityID, date)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.Order("start_minute ASC, created_at ASC").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *reservationStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	var out []models.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func activeFor(ctx context.Context, db *gorm.DB, facilityID, date string) ([]models.Reservation, error) {
	var out []models.Reservation
	err := db.WithContext(ctx).
		Where("facility_id = ? AND date = ? AND status IN ?", facilityID, date, activeStatuses).
		Order("start_minute ASC").
		Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

type gormDayTx struct {
	tx         *gorm.DB
	facilityID string
	date       string
}

func (t *gormDayTx) ActiveReservations(ctx context.Context) ([]models.Reservation, error) {
	return activeFor(ctx, t.tx, t.facilityID, t.date)
}

func (t *gormDayTx) Insert(ctx context.Context, r *models.Reservation) error {
	if r.FacilityID != t.facilityID || r.Date != t.date {
		return fmt.Errorf("reservation %s does not belong to %s/%s", r.ID, t.facilityID, t.date)
	}
	return t.tx.WithContext(ctx).Create(r).Error
}

func (t *gormDayTx) Get(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	err := t.tx.WithContext(ctx).
		Where("id = ? AND facility_id = ? AND date = ?", id, t.facilityID, t.date).
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (t *gormDayTx) Save(ctx context.Context, r *models.Reservation) error {
	return t.tx.WithContext(ctx).Save(r).Error
}

// translate maps driver errors onto the package sentinels. Errors it does not
// recognise pass through untouched so callers can still match their own.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && IsTransientCode(pgErr.Code) {
		return fmt.Errorf("%w: %s (%s)", ErrTransient, pgErr.Message, pgErr.Code)
	}
	return err
}

// IsTransientCode reports whether a SQLSTATE is safe to retry: serialization
// failure and deadlock.
func IsTransientCode(code string) bool {
	switch code {
	case "40001", "40P01":
		return true
	}
	return false
}
