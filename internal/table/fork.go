package table

// ForkState is the binary state of one fork.
type ForkState uint8

const (
	ForkFree ForkState = iota
	ForkHeld
)

func (s ForkState) String() string {
	switch s {
	case ForkFree:
		return "free"
	case ForkHeld:
		return "held"
	default:
		return "unknown"
	}
}

// Fork is a lockable resource shared by two adjacent philosophers.
// Illegal transitions report false and leave the state unchanged.
type Fork struct {
	state ForkState
}

// PickUp moves the fork free->held.
func (f *Fork) PickUp() bool {
	if f.state != ForkFree {
		return false
	}
	f.state = ForkHeld
	return true
}

// SetDown moves the fork held->free.
func (f *Fork) SetDown() bool {
	if f.state != ForkHeld {
		return false
	}
	f.state = ForkFree
	return true
}

func (f *Fork) IsFree() bool {
	return f.state == ForkFree
}

// CanPickUp reports whether PickUp would currently succeed.
func (f *Fork) CanPickUp() bool {
	return f.state == ForkFree
}

// CanSetDown reports whether SetDown would currently succeed.
func (f *Fork) CanSetDown() bool {
	return f.state == ForkHeld
}

func (f *Fork) State() ForkState {
	return f.state
}

func (s ForkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
