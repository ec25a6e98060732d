// Package mailbox is the in-process messaging collaborator: one
// multi-producer inbox for the arbiter and one FIFO inbox per seat.
// The sender of an inbound message is stamped by the endpoint, never
// supplied by the caller.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/tablectl/internal/protocol"
)

var (
	ErrUnknownSeat = errors.New("mailbox: unknown seat")
	ErrClosed      = errors.New("mailbox: closed")
)

type Hub struct {
	inbox  chan protocol.Envelope
	seats  []chan protocol.Kind
	closed chan struct{}
	once   sync.Once
}

// New builds a hub for seats participants. The arbiter inbox holds one
// message per seat; a philosopher has at most one outstanding message.
func New(seats int) *Hub {
	h := &Hub{
		inbox:  make(chan protocol.Envelope, seats),
		seats:  make([]chan protocol.Kind, seats),
		closed: make(chan struct{}),
	}
	for i := range h.seats {
		h.seats[i] = make(chan protocol.Kind, 2)
	}
	return h
}

func (h *Hub) Size() int {
	return len(h.seats)
}

// Inbox is the arbiter's receive side.
func (h *Hub) Inbox() <-chan protocol.Envelope {
	return h.inbox
}

// Deliver routes one reply to its seat. It satisfies arbiter.Outbox.
func (h *Hub) Deliver(ctx context.Context, msg protocol.Message) error {
	if msg.Seat < 0 || msg.Seat >= len(h.seats) {
		return fmt.Errorf("%w: %d", ErrUnknownSeat, msg.Seat)
	}
	select {
	case h.seats[msg.Seat] <- msg.Kind:
		return nil
	case <-h.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unblocks pending senders and receivers. The arbiter inbox is left
// open; the arbiter stops on its own context.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.closed) })
}

// Seat returns the endpoint bound to seat.
func (h *Hub) Seat(seat int) (*Endpoint, error) {
	if seat < 0 || seat >= len(h.seats) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeat, seat)
	}
	return &Endpoint{hub: h, seat: seat}, nil
}

// Endpoint is one philosopher's view of the hub.
type Endpoint struct {
	hub  *Hub
	seat int
}

func (e *Endpoint) SeatIndex() int {
	return e.seat
}

func (e *Endpoint) Send(ctx context.Context, kind protocol.Kind) error {
	select {
	case e.hub.inbox <- protocol.Envelope{From: e.seat, Kind: kind}:
		return nil
	case <-e.hub.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Endpoint) Receive(ctx context.Context) (protocol.Kind, error) {
	select {
	case kind := <-e.hub.seats[e.seat]:
		return kind, nil
	case <-e.hub.closed:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
