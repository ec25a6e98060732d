// Package table owns the fixed ring of philosophers and forks.
//
// Ownership boundary:
// - fork and philosopher state transitions
// - seat -> fork pairing (immutable after New)
// - neighbour arithmetic at the wraparound boundary
//
// Nothing in this package is safe for concurrent use; the arbiter is its
// only writer.
package table

import (
	"errors"
	"fmt"
)

// MinSeats is the smallest ring that makes sense: two philosophers sharing two forks.
const MinSeats = 2

var ErrRingTooSmall = errors.New("table: ring too small")

// PlaceSetting is the pair of forks one seat needs.
// Left is fork[i], Right is fork[(i+1) mod n].
type PlaceSetting struct {
	LeftID  int
	RightID int
	Left    *Fork
	Right   *Fork
}

// Free reports whether both forks are currently free.
func (p PlaceSetting) Free() bool {
	return p.Left.IsFree() && p.Right.IsFree()
}

// Table owns every Fork and Philosopher for one simulation run.
type Table struct {
	seats        int
	forks        []Fork
	philosophers []Philosopher
}

func New(seats int) (*Table, error) {
	if seats < MinSeats {
		return nil, fmt.Errorf("%w: seats=%d min=%d", ErrRingTooSmall, seats, MinSeats)
	}
	return &Table{
		seats:        seats,
		forks:        make([]Fork, seats),
		philosophers: make([]Philosopher, seats),
	}, nil
}

func (t *Table) Size() int {
	return t.seats
}

// Valid reports whether seat is inside 0..n-1.
func (t *Table) Valid(seat int) bool {
	return seat >= 0 && seat < t.seats
}

func (t *Table) ForkAt(id int) (*Fork, bool) {
	if !t.Valid(id) {
		return nil, false
	}
	return &t.forks[id], true
}

func (t *Table) PhilosopherAt(seat int) (*Philosopher, bool) {
	if !t.Valid(seat) {
		return nil, false
	}
	return &t.philosophers[seat], true
}

func (t *Table) ForksFor(seat int) (PlaceSetting, bool) {
	if !t.Valid(seat) {
		return PlaceSetting{}, false
	}
	right := (seat + 1) % t.seats
	return PlaceSetting{
		LeftID:  seat,
		RightID: right,
		Left:    &t.forks[seat],
		Right:   &t.forks[right],
	}, true
}

// Left returns (i-1+n) mod n.
func (t *Table) Left(seat int) int {
	return (seat - 1 + t.seats) % t.seats
}

// Right returns (i+1) mod n.
func (t *Table) Right(seat int) int {
	return (seat + 1) % t.seats
}

// Holder returns the seat currently eating with fork id, if any.
func (t *Table) Holder(id int) (int, bool) {
	if !t.Valid(id) || t.forks[id].IsFree() {
		return 0, false
	}
	for _, seat := range [2]int{id, t.Left(id)} {
		if t.philosophers[seat].IsEating() {
			return seat, true
		}
	}
	return 0, false
}
