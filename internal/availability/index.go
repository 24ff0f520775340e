// Package availability projects a facility's day onto labelled 30-minute
// slots. It only reads reservation snapshots and never blocks.
package availability

import (
	"time"

	"github.com/Eursukkul/court-booking/internal/models"
	"github.com/Eursukkul/court-booking/internal/timegrid"
)

type Label string

const (
	Available    Label = "available"
	Locked       Label = "locked"
	Booked       Label = "booked"
	FillingFast  Label = "filling_fast"
	NotAvailable Label = "not_available"
)

const (
	DefaultLockTTL              = 10 * time.Minute
	DefaultFillingFastThreshold = 0.2
)

type Config struct {
	// LockTTL is how long a pending reservation keeps its slots locked.
	LockTTL time.Duration
	// FillingFastThreshold is the free/operating ratio under which the
	// remaining free slots are labelled filling_fast.
	FillingFastThreshold float64
	// Location is the venue timezone used to decide which slots are past.
	Location *time.Location
}

// Hours is a facility's operating window for one date, [Open, Close).
type Hours struct {
	Open  timegrid.Minute
	Close timegrid.Minute
}

func (h Hours) Contains(start, end timegrid.Minute) bool {
	return start >= h.Open && end <= h.Close
}

type Input struct {
	FacilityID   string
	Date         string
	Hours        Hours
	Reservations []models.Reservation
	Now          time.Time
}

type SlotView struct {
	Start timegrid.Minute
	End   timegrid.Minute
	Label Label
}

type View struct {
	FacilityID string
	Date       string
	Slots      []SlotView
	FreeSlots  int
	TotalSlots int
}

type Index struct {
	cfg Config
}

func NewIndex(cfg Config) *Index {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.FillingFastThreshold < 0 {
		cfg.FillingFastThreshold = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Index{cfg: cfg}
}

func (ix *Index) Config() Config { return ix.cfg }

// LockExpired reports whether a pending reservation created at createdAt no
// longer holds its slots at now.
func (ix *Index) LockExpired(createdAt, now time.Time) bool {
	return now.Sub(createdAt) >= ix.cfg.LockTTL
}

// Build labels every slot of the day. Operating slots whose start has already
// passed are not_available.
func (ix *Index) Build(in Input) View {
	view := View{
		FacilityID: in.FacilityID,
		Date:       in.Date,
		Slots:      make([]SlotView, 0, timegrid.SlotsPerDay),
	}

	for m := timegrid.Minute(0); m < timegrid.MinutesPerDay; m += timegrid.SlotMinutes {
		sv := SlotView{Start: m, End: m + timegrid.SlotMinutes}
		switch {
		case !in.Hours.Contains(sv.Start, sv.End):
			sv.Label = NotAvailable
		case ix.isPast(in.Date, m, in.Now):
			sv.Label = NotAvailable
		default:
			sv.Label = ix.occupancy(m, in.Reservations, in.Now)
			view.TotalSlots++
			if sv.Label == Available {
				view.FreeSlots++
			}
		}
		view.Slots = append(view.Slots, sv)
	}

	if view.TotalSlots > 0 && float64(view.FreeSlots)/float64(view.TotalSlots) < ix.cfg.FillingFastThreshold {
		for i := range view.Slots {
			if view.Slots[i].Label == Available {
				view.Slots[i].Label = FillingFast
			}
		}
	}
	return view
}

func (ix *Index) occupancy(m timegrid.Minute, reservations []models.Reservation, now time.Time) Label {
	label := Available
	for i := range reservations {
		r := &reservations[i]
		if !r.Covers(m) {
			continue
		}
		switch r.Status {
		case models.StatusConfirmed:
			return Booked
		case models.StatusPending:
			if !ix.LockExpired(r.CreatedAt, now) {
				label = Locked
			}
		case models.StatusCancelled, models.StatusRefunded, models.StatusFailed:
		}
	}
	return label
}

func (ix *Index) isPast(date string, m timegrid.Minute, now time.Time) bool {
	if now.IsZero() {
		return false
	}
	start, err := timegrid.At(date, m, ix.cfg.Location)
	if err != nil {
		return false
	}
	return start.Before(now)
}
