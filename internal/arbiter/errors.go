package arbiter

import (
	"errors"
	"fmt"

	"github.com/danmuck/tablectl/internal/protocol"
)

var (
	// ErrProtocolViolation marks a message the arbiter cannot interpret.
	// Always fatal.
	ErrProtocolViolation = errors.New("arbiter: protocol violation")
	// ErrConsistency marks a transition the bookkeeping should have
	// guaranteed but could not. Fatal only in strict mode.
	ErrConsistency = errors.New("arbiter: internal consistency violation")
)

type ProtocolError struct {
	Seat   int
	Kind   protocol.Kind
	Reason string
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("arbiter: protocol violation seat=%d kind=%s: %s", e.Seat, e.Kind, e.Reason)
}

func (e ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}

type ConsistencyError struct {
	Seat   int
	Op     string
	Reason string
}

func (e ConsistencyError) Error() string {
	return fmt.Sprintf("arbiter: consistency violation seat=%d op=%s: %s", e.Seat, e.Op, e.Reason)
}

func (e ConsistencyError) Unwrap() error {
	return ErrConsistency
}

// IsFatal applies the violation policy: protocol violations always stop the
// arbiter, consistency violations only when strict is set.
func IsFatal(err error, strict bool) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConsistency) {
		return strict
	}
	return true
}

func violationClass(err error) string {
	switch {
	case errors.Is(err, ErrProtocolViolation):
		return "protocol"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	default:
		return "other"
	}
}
