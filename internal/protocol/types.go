package protocol

import "fmt"

// Kind is the discriminated message tag. Values match the wire message_type.
type Kind uint32

const (
	KindRequest Kind = 1
	KindRelease Kind = 2
	KindGrant   Kind = 3
	KindDeny    Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindRelease:
		return "release"
	case KindGrant:
		return "grant"
	case KindDeny:
		return "deny"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Valid reports whether k is one of the four protocol kinds.
func (k Kind) Valid() bool {
	return k >= KindRequest && k <= KindDeny
}

// Inbound reports whether k flows philosopher -> arbiter.
func (k Kind) Inbound() bool {
	return k == KindRequest || k == KindRelease
}

// Outbound reports whether k flows arbiter -> philosopher.
func (k Kind) Outbound() bool {
	return k == KindGrant || k == KindDeny
}

// Envelope is one inbound message. From is supplied by the transport, never
// by the payload.
type Envelope struct {
	From int
	Kind Kind
	// Leave is set only by the transport when From's connection is gone.
	// Kind is ignored for a leave.
	Leave bool
	// Done, when non-nil, is closed once the envelope has been applied and
	// its replies delivered.
	Done chan<- struct{}
}

// Departure builds the transport-generated leave envelope for seat.
func Departure(seat int, done chan<- struct{}) Envelope {
	return Envelope{From: seat, Leave: true, Done: done}
}

// Label names the envelope for logs and metrics.
func (e Envelope) Label() string {
	if e.Leave {
		return "leave"
	}
	return e.Kind.String()
}

// Message is one outbound reply addressed to a seat.
type Message struct {
	Seat int
	Kind Kind
}

func Grant(seat int) Message {
	return Message{Seat: seat, Kind: KindGrant}
}

func Deny(seat int) Message {
	return Message{Seat: seat, Kind: KindDeny}
}
