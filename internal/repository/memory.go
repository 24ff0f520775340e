package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Eursukkul/court-booking/internal/models"
)

// MemoryReservationStore keeps reservations in process. It honours the same
// facility-day locking contract as the postgres store and backs the service
// and ledger unit tests.
type MemoryReservationStore struct {
	mu   sync.RWMutex
	rows map[string]models.Reservation

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryReservationStore() *MemoryReservationStore {
	return &MemoryReservationStore{
		rows:  make(map[string]models.Reservation),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryReservationStore) dayLock(facilityID, date string) *sync.Mutex {
	key := facilityID + "|" + date
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *MemoryReservationStore) WithinFacilityDay(ctx context.Context, facilityID, date string, fn func(tx DayTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := s.dayLock(facilityID, date)
	l.Lock()
	defer l.Unlock()

	tx := &memoryDayTx{store: s, facilityID: facilityID, date: date, staged: make(map[string]models.Reservation)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, r := range tx.staged {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		s.rows[id] = r
	}
	return nil
}

func (s *MemoryReservationStore) FindByID(_ context.Context, id string) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryReservationStore) ListActive(_ context.Context, facilityID, date string) ([]models.Reservation, error) {
	return s.filter(func(r models.Reservation) bool {
		return r.FacilityID == facilityID && r.Date == date && r.Status.Active()
	}), nil
}

func (s *MemoryReservationStore) ListByFacilityDate(_ context.Context, facilityID, date string, status *models.ReservationStatus) ([]models.Reservation, error) {
	return s.filter(func(r models.Reservation) bool {
		return r.FacilityID == facilityID && r.Date == date && (status == nil || r.Status == *status)
	}), nil
}

func (s *MemoryReservationStore) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Reservation, error) {
	out := s.filter(func(r models.Reservation) bool {
		return r.Status == models.StatusPending && r.CreatedAt.Before(cutoff)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryReservationStore) filter(keep func(models.Reservation) bool) []models.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Reservation
	for _, r := range s.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartMinute != out[j].StartMinute {
			return out[i].StartMinute < out[j].StartMinute
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// memoryDayTx stages writes and publishes them only when the callback
// succeeds.
type memoryDayTx struct {
	store      *MemoryReservationStore
	facilityID string
	date       string
	staged     map[string]models.Reservation
}

func (t *memoryDayTx) ActiveReservations(_ context.Context) ([]models.Reservation, error) {
	committed := t.store.filter(func(r models.Reservation) bool {
		return r.FacilityID == t.facilityID && r.Date == t.date
	})
	var out []models.Reservation
	for _, r := range committed {
		if staged, ok := t.staged[r.ID]; ok {
			r = staged
		}
		if r.Status.Active() {
			out = append(out, r)
		}
	}
	for id, r := range t.staged {
		if _, err := t.store.FindByID(context.Background(), id); err == ErrNotFound && r.Status.Active() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memoryDayTx) Insert(_ context.Context, r *models.Reservation) error {
	if r.FacilityID != t.facilityID || r.Date != t.date {
		return fmt.Errorf("reservation %s does not belong to %s/%s", r.ID, t.facilityID, t.date)
	}
	if _, err := t.store.FindByID(context.Background(), r.ID); err == nil {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	t.staged[r.ID] = *r
	return nil
}

func (t *memoryDayTx) Get(ctx context.Context, id string) (*models.Reservation, error) {
	if r, ok := t.staged[id]; ok {
		return &r, nil
	}
	r, err := t.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.FacilityID != t.facilityID || r.Date != t.date {
		return nil, ErrNotFound
	}
	return r, nil
}

func (t *memoryDayTx) Save(_ context.Context, r *models.Reservation) error {
	t.staged[r.ID] = *r
	return nil
}

// MemoryFacilityRepository is the in-process FacilityRepository.
type MemoryFacilityRepository struct {
	mu   sync.RWMutex
	rows map[string]models.Facility
}

func NewMemoryFacilityRepository(seed ...models.Facility) *MemoryFacilityRepository {
	r := &MemoryFacilityRepository{rows: make(map[string]models.Facility)}
	for _, f := range seed {
		r.rows[f.ID] = f
	}
	return r
}

func (r *MemoryFacilityRepository) Create(_ context.Context, f *models.Facility) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[f.ID]; ok {
		return fmt.Errorf("facility %s already exists", f.ID)
	}
	now := time.Now()
	f.CreatedAt, f.UpdatedAt = now, now
	r.rows[f.ID] = *f
	return nil
}

func (r *MemoryFacilityRepository) Update(_ context.Context, f *models.Facility) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[f.ID]; !ok {
		return ErrNotFound
	}
	f.UpdatedAt = time.Now()
	r.rows[f.ID] = *f
	return nil
}

func (r *MemoryFacilityRepository) Upsert(_ context.Context, f *models.Facility) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[f.ID] = *f
	return nil
}

func (r *MemoryFacilityRepository) FindByID(_ context.Context, id string) (*models.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (r *MemoryFacilityRepository) FindAll(_ context.Context) ([]models.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Facility, 0, len(r.rows))
	for _, f := range r.rows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MemoryRefundTaskRepository is the in-process RefundTaskRepository.
type MemoryRefundTaskRepository struct {
	mu    sync.Mutex
	tasks []models.RefundTask
}

func NewMemoryRefundTaskRepository() *MemoryRefundTaskRepository {
	return &MemoryRefundTaskRepository{}
}

func (r *MemoryRefundTaskRepository) Create(_ context.Context, task *models.RefundTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	r.tasks = append(r.tasks, *task)
	return nil
}

func (r *MemoryRefundTaskRepository) ListQueued(_ context.Context, limit int) ([]models.RefundTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RefundTask
	for _, t := range r.tasks {
		if t.Status == models.RefundQueued {
			out = append(out, t)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRefundTaskRepository) Save(_ context.Context, task *models.RefundTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].ID == task.ID {
			task.UpdatedAt = time.Now()
			r.tasks[i] = *task
			return nil
		}
	}
	return ErrNotFound
}

var (
	_ ReservationStore     = (*MemoryReservationStore)(nil)
	_ FacilityRepository   = (*MemoryFacilityRepository)(nil)
	_ RefundTaskRepository = (*MemoryRefundTaskRepository)(nil)
)
