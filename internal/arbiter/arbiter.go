package arbiter

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/danmuck/tablectl/internal/observability"
	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SeatState is the arbiter's view of one seat: the philosopher state joined
// with waiting-set membership.
type SeatState uint8

const (
	SeatIdle SeatState = iota
	SeatWaiting
	SeatEating
)

func (s SeatState) String() string {
	switch s {
	case SeatIdle:
		return "idle"
	case SeatWaiting:
		return "waiting"
	case SeatEating:
		return "eating"
	default:
		return "unknown"
	}
}

func (s SeatState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats counts arbiter outcomes. Violations counts errors returned by Handle.
type Stats struct {
	Requests   uint64 `json:"requests"`
	Releases   uint64 `json:"releases"`
	Grants     uint64 `json:"grants"`
	Deferrals  uint64 `json:"deferrals"`
	Wakeups    uint64 `json:"wakeups"`
	Denials    uint64 `json:"denials"`
	Violations uint64 `json:"violations"`
	Departures uint64 `json:"departures"`
}

type Option func(*Arbiter)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Arbiter) {
		a.log = logger
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) {
		if now != nil {
			a.now = now
		}
	}
}

type Arbiter struct {
	table *table.Table
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time

	waiting    []bool
	tickets    []uint64
	nextTicket uint64

	stats  Stats
	latest atomic.Pointer[Snapshot]
}

func New(t *table.Table, cfg Config, opts ...Option) (*Arbiter, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil table", ErrInvalidConfig)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Arbiter{
		table:   t,
		cfg:     cfg,
		log:     log.Logger.With().Str("component", "arbiter").Logger(),
		now:     time.Now,
		waiting: make([]bool, t.Size()),
		tickets: make([]uint64, t.Size()),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.publish()
	return a, nil
}

func (a *Arbiter) Config() Config {
	return a.cfg
}

func (a *Arbiter) Table() *table.Table {
	return a.table
}

func (a *Arbiter) Stats() Stats {
	return a.stats
}

// SeatState reports the arbiter's view of seat.
func (a *Arbiter) SeatState(seat int) (SeatState, bool) {
	p, ok := a.table.PhilosopherAt(seat)
	if !ok {
		return SeatIdle, false
	}
	switch {
	case p.IsEating():
		return SeatEating, true
	case a.waiting[seat]:
		return SeatWaiting, true
	default:
		return SeatIdle, true
	}
}

// Handle applies one inbound message and returns the replies to send, in
// order. On error no state has changed, with two exceptions: an audit failure
// is reported after the message was applied, and a release (or leave) whose
// wake-up grant fails has already set the releaser's forks down; the grants
// made before the failure are returned with the error.
func (a *Arbiter) Handle(env protocol.Envelope) ([]protocol.Message, error) {
	observability.RecordArbiterMessage(env.Label())
	var (
		out []protocol.Message
		err error
	)
	switch {
	case env.Leave:
		out, err = a.Leave(env.From)
	case env.Kind == protocol.KindRequest:
		out, err = a.Request(env.From)
	case env.Kind == protocol.KindRelease:
		out, err = a.Release(env.From)
	default:
		err = ProtocolError{Seat: env.From, Kind: env.Kind, Reason: "arbiter only accepts request and release"}
	}
	if err == nil && a.cfg.Audit {
		err = a.Verify()
	}
	if err != nil {
		a.stats.Violations++
		observability.RecordArbiterViolation(violationClass(err))
	}
	return out, err
}

// Request grants both forks to seat when they are free, otherwise defers or
// denies it according to the variant.
func (a *Arbiter) Request(seat int) ([]protocol.Message, error) {
	p, ok := a.table.PhilosopherAt(seat)
	if !ok {
		return nil, ProtocolError{Seat: seat, Kind: protocol.KindRequest, Reason: "seat out of range"}
	}
	if p.IsEating() {
		return nil, ConsistencyError{Seat: seat, Op: "request", Reason: "seat is already eating"}
	}
	if a.waiting[seat] {
		return nil, ConsistencyError{Seat: seat, Op: "request", Reason: "seat is already waiting"}
	}
	a.stats.Requests++

	if a.grantable(seat) {
		if err := a.seat(seat); err != nil {
			return nil, err
		}
		observability.RecordArbiterDecision("grant")
		a.log.Debug().Int("seat", seat).Msg("grant")
		return []protocol.Message{protocol.Grant(seat)}, nil
	}

	if a.cfg.Variant == VariantPolling {
		a.stats.Denials++
		observability.RecordArbiterDecision("deny")
		a.log.Debug().Int("seat", seat).Msg("deny")
		return []protocol.Message{protocol.Deny(seat)}, nil
	}

	a.waiting[seat] = true
	if a.cfg.Fairness == FairnessTicket {
		a.nextTicket++
		a.tickets[seat] = a.nextTicket
	}
	a.stats.Deferrals++
	observability.RecordArbiterDecision("defer")
	a.log.Debug().Int("seat", seat).Uint64("ticket", a.tickets[seat]).Msg("defer")
	return nil, nil
}

// Release frees seat's forks and re-checks the left then the right
// neighbour. Any grant produced is returned in that order.
func (a *Arbiter) Release(seat int) ([]protocol.Message, error) {
	p, ok := a.table.PhilosopherAt(seat)
	if !ok {
		return nil, ProtocolError{Seat: seat, Kind: protocol.KindRelease, Reason: "seat out of range"}
	}
	if !p.CanStopEating() {
		return nil, ConsistencyError{Seat: seat, Op: "release", Reason: "seat is not eating"}
	}
	ps, _ := a.table.ForksFor(seat)
	if !ps.Left.CanSetDown() || !ps.Right.CanSetDown() {
		return nil, ConsistencyError{Seat: seat, Op: "release", Reason: fmt.Sprintf("forks %d/%d not held", ps.LeftID, ps.RightID)}
	}
	p.StopEating()
	ps.Left.SetDown()
	ps.Right.SetDown()
	a.stats.Releases++
	a.log.Debug().Int("seat", seat).Msg("release")
	return a.wakeNeighbours(seat)
}

// Leave settles a seat whose philosopher is gone. An eating seat is released
// as if it had sent Release, a waiting seat drops out of the waiting set, and
// an idle seat is left alone. Neighbours are re-checked in both cases that
// change state.
func (a *Arbiter) Leave(seat int) ([]protocol.Message, error) {
	p, ok := a.table.PhilosopherAt(seat)
	if !ok {
		return nil, ProtocolError{Seat: seat, Kind: protocol.KindRelease, Reason: "seat out of range"}
	}
	switch {
	case p.IsEating():
		a.stats.Departures++
		a.log.Info().Int("seat", seat).Msg("leave while eating")
		return a.Release(seat)
	case a.waiting[seat]:
		a.waiting[seat] = false
		a.tickets[seat] = 0
		a.stats.Departures++
		a.log.Info().Int("seat", seat).Msg("leave while waiting")
		return a.wakeNeighbours(seat)
	default:
		return nil, nil
	}
}

// wakeNeighbours grants the left then the right neighbour of seat when they
// are waiting and now grantable.
func (a *Arbiter) wakeNeighbours(seat int) ([]protocol.Message, error) {
	var out []protocol.Message
	for _, n := range [2]int{a.table.Left(seat), a.table.Right(seat)} {
		if !a.waiting[n] || !a.grantable(n) {
			continue
		}
		if err := a.seat(n); err != nil {
			return out, err
		}
		a.waiting[n] = false
		a.tickets[n] = 0
		a.stats.Wakeups++
		observability.RecordArbiterDecision("wakeup")
		a.log.Debug().Int("seat", n).Int("released_by", seat).Msg("wakeup grant")
		out = append(out, protocol.Grant(n))
	}
	return out, nil
}

// grantable reports, without side effects, whether both forks are free and,
// under ticket fairness, no adjacent waiter holds an older ticket.
func (a *Arbiter) grantable(seat int) bool {
	ps, _ := a.table.ForksFor(seat)
	if !ps.Free() {
		return false
	}
	if a.cfg.Fairness != FairnessTicket {
		return true
	}
	mine := uint64(math.MaxUint64)
	if a.waiting[seat] {
		mine = a.tickets[seat]
	}
	for _, n := range [2]int{a.table.Left(seat), a.table.Right(seat)} {
		if n != seat && a.waiting[n] && a.tickets[n] < mine {
			return false
		}
	}
	return true
}

// seat performs the three-step acquire after checking all three can succeed.
func (a *Arbiter) seat(seat int) error {
	p, _ := a.table.PhilosopherAt(seat)
	ps, _ := a.table.ForksFor(seat)
	switch {
	case !p.CanStartEating():
		return ConsistencyError{Seat: seat, Op: "grant", Reason: "philosopher cannot start eating"}
	case !ps.Left.CanPickUp():
		return ConsistencyError{Seat: seat, Op: "grant", Reason: fmt.Sprintf("fork %d held", ps.LeftID)}
	case !ps.Right.CanPickUp():
		return ConsistencyError{Seat: seat, Op: "grant", Reason: fmt.Sprintf("fork %d held", ps.RightID)}
	}
	p.StartEating()
	ps.Left.PickUp()
	ps.Right.PickUp()
	a.stats.Grants++
	return nil
}

// Verify audits the global invariants: a seat is in exactly one state, eating
// seats hold both forks, each held fork has exactly one eating user, no two
// neighbours eat together, and no waiting seat is left grantable.
func (a *Arbiter) Verify() error {
	n := a.table.Size()
	for seat := 0; seat < n; seat++ {
		p, _ := a.table.PhilosopherAt(seat)
		ps, _ := a.table.ForksFor(seat)
		if p.IsEating() && a.waiting[seat] {
			return ConsistencyError{Seat: seat, Op: "audit", Reason: "seat is both eating and waiting"}
		}
		if p.IsEating() && (ps.Left.IsFree() || ps.Right.IsFree()) {
			return ConsistencyError{Seat: seat, Op: "audit", Reason: "eating seat does not hold both forks"}
		}
		right, _ := a.table.PhilosopherAt(a.table.Right(seat))
		if a.table.Right(seat) != seat && p.IsEating() && right.IsEating() {
			return ConsistencyError{Seat: seat, Op: "audit", Reason: fmt.Sprintf("neighbours %d and %d both eating", seat, a.table.Right(seat))}
		}
		if a.waiting[seat] && a.grantable(seat) {
			return ConsistencyError{Seat: seat, Op: "audit", Reason: "waiting seat is grantable"}
		}
		if (a.tickets[seat] != 0) != (a.waiting[seat] && a.cfg.Fairness == FairnessTicket) {
			return ConsistencyError{Seat: seat, Op: "audit", Reason: "ticket does not match waiting state"}
		}
	}
	for id := 0; id < n; id++ {
		f, _ := a.table.ForkAt(id)
		_, held := a.table.Holder(id)
		if f.IsFree() == held {
			return ConsistencyError{Seat: id, Op: "audit", Reason: fmt.Sprintf("fork %d state %s disagrees with eaters", id, f.State())}
		}
	}
	return nil
}
