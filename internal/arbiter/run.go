package arbiter

import (
	"context"

	"github.com/danmuck/tablectl/internal/protocol"
)

// Outbox delivers one reply to its seat. Implementations must preserve order
// per seat.
type Outbox interface {
	Deliver(ctx context.Context, msg protocol.Message) error
}

// OutboxFunc adapts a function to Outbox.
type OutboxFunc func(ctx context.Context, msg protocol.Message) error

func (f OutboxFunc) Deliver(ctx context.Context, msg protocol.Message) error {
	return f(ctx, msg)
}

// Run serves inbox until ctx is cancelled, inbox is closed, or a fatal
// violation occurs. It is the only goroutine that may touch the arbiter while
// running. Replies are delivered before the next message is read; a failed
// delivery is logged and the decision stands.
func (a *Arbiter) Run(ctx context.Context, inbox <-chan protocol.Envelope, out Outbox) error {
	a.log.Info().
		Int("seats", a.table.Size()).
		Str("variant", string(a.cfg.Variant)).
		Str("fairness", string(a.cfg.Fairness)).
		Bool("strict", a.cfg.Strict).
		Msg("arbiter.Run start")
	defer a.publish()
	for {
		var (
			env protocol.Envelope
			ok  bool
		)
		select {
		case <-ctx.Done():
			a.log.Info().Msg("arbiter.Run stop: context done")
			return nil
		case env, ok = <-inbox:
		}
		if !ok {
			a.log.Info().Msg("arbiter.Run stop: inbox closed")
			return nil
		}

		replies, err := a.Handle(env)
		for _, msg := range replies {
			if derr := out.Deliver(ctx, msg); derr != nil {
				a.log.Warn().Err(derr).Int("seat", msg.Seat).Str("kind", msg.Kind.String()).Msg("arbiter.Run deliver failed")
			}
		}
		a.publish()
		if env.Done != nil {
			close(env.Done)
		}
		if err == nil {
			continue
		}
		if IsFatal(err, a.cfg.Strict) {
			a.log.Error().Err(err).Int("seat", env.From).Str("kind", env.Label()).Msg("arbiter.Run fatal violation")
			return err
		}
		a.log.Warn().Err(err).Int("seat", env.From).Str("kind", env.Label()).Msg("arbiter.Run skipped violation")
	}
}
