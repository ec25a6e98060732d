package table

// PhilosopherState records whether a seat is inside its critical section.
type PhilosopherState uint8

const (
	Idle PhilosopherState = iota
	Eating
)

func (s PhilosopherState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Eating:
		return "eating"
	default:
		return "unknown"
	}
}

// Philosopher is the broker-side record of one seat. The remote process never
// sees it; only broker replies.
type Philosopher struct {
	state PhilosopherState
}

// StartEating moves idle->eating.
func (p *Philosopher) StartEating() bool {
	if p.state != Idle {
		return false
	}
	p.state = Eating
	return true
}

// StopEating moves eating->idle.
func (p *Philosopher) StopEating() bool {
	if p.state != Eating {
		return false
	}
	p.state = Idle
	return true
}

func (p *Philosopher) IsEating() bool {
	return p.state == Eating
}

func (p *Philosopher) CanStartEating() bool {
	return p.state == Idle
}

func (p *Philosopher) CanStopEating() bool {
	return p.state == Eating
}

func (p *Philosopher) State() PhilosopherState {
	return p.state
}

func (s PhilosopherState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
