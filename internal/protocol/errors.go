package protocol

import (
	"errors"
	"fmt"
)

var ErrUnexpectedKind = errors.New("protocol: unexpected message kind")

// UnexpectedKindError names the participant that received a kind it cannot handle.
type UnexpectedKindError struct {
	Seat int
	Kind Kind
}

func (e UnexpectedKindError) Error() string {
	return fmt.Sprintf("protocol: seat=%d unexpected kind=%s", e.Seat, e.Kind)
}

func (e UnexpectedKindError) Unwrap() error {
	return ErrUnexpectedKind
}
