package arbiter

import (
	"time"

	"github.com/danmuck/tablectl/internal/observability"
	"github.com/danmuck/tablectl/internal/table"
)

// Snapshot is an immutable copy of the table as the arbiter sees it.
type Snapshot struct {
	Taken    time.Time         `json:"taken"`
	Variant  Variant           `json:"variant"`
	Fairness Fairness          `json:"fairness"`
	Strict   bool              `json:"strict"`
	Seats    []SeatState       `json:"seats"`
	Forks    []table.ForkState `json:"forks"`
	Tickets  []uint64          `json:"tickets,omitempty"`
	Stats    Stats             `json:"stats"`
}

func (a *Arbiter) Snapshot() Snapshot {
	n := a.table.Size()
	snap := Snapshot{
		Taken:    a.now(),
		Variant:  a.cfg.Variant,
		Fairness: a.cfg.Fairness,
		Strict:   a.cfg.Strict,
		Seats:    make([]SeatState, n),
		Forks:    make([]table.ForkState, n),
		Stats:    a.stats,
	}
	for i := 0; i < n; i++ {
		snap.Seats[i], _ = a.SeatState(i)
		f, _ := a.table.ForkAt(i)
		snap.Forks[i] = f.State()
	}
	if a.cfg.Fairness == FairnessTicket {
		snap.Tickets = append([]uint64(nil), a.tickets...)
	}
	return snap
}

// Latest returns the snapshot most recently published by the owner. Safe
// for concurrent use.
func (a *Arbiter) Latest() Snapshot {
	return *a.latest.Load()
}

func (a *Arbiter) publish() {
	snap := a.Snapshot()
	a.latest.Store(&snap)
	idle, waiting, eating := snap.Counts()
	observability.SetArbiterSeats(idle, waiting, eating)
}

func (s Snapshot) Counts() (idle, waiting, eating int) {
	for _, st := range s.Seats {
		switch st {
		case SeatWaiting:
			waiting++
		case SeatEating:
			eating++
		default:
			idle++
		}
	}
	return idle, waiting, eating
}

func (s Snapshot) Eating() []int {
	return s.seatsIn(SeatEating)
}

func (s Snapshot) Waiting() []int {
	return s.seatsIn(SeatWaiting)
}

func (s Snapshot) seatsIn(state SeatState) []int {
	var out []int
	for i, st := range s.Seats {
		if st == state {
			out = append(out, i)
		}
	}
	return out
}
