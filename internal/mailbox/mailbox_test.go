package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func TestEndpointStampsSender(t *testing.T) {
	testlog.Start(t)
	h := New(3)
	ep, err := h.Seat(2)
	if err != nil {
		t.Fatalf("seat: %v", err)
	}
	if err := ep.Send(context.Background(), protocol.KindRequest); err != nil {
		t.Fatalf("send: %v", err)
	}
	env := <-h.Inbox()
	if env.From != 2 || env.Kind != protocol.KindRequest {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDeliverIsFIFOPerSeat(t *testing.T) {
	testlog.Start(t)
	h := New(2)
	ctx := context.Background()
	if err := h.Deliver(ctx, protocol.Deny(1)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := h.Deliver(ctx, protocol.Grant(1)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	ep, _ := h.Seat(1)
	for _, want := range []protocol.Kind{protocol.KindDeny, protocol.KindGrant} {
		got, err := ep.Receive(ctx)
		if err != nil || got != want {
			t.Fatalf("receive: got %s,%v want %s", got, err, want)
		}
	}
}

func TestUnknownSeat(t *testing.T) {
	testlog.Start(t)
	h := New(2)
	if _, err := h.Seat(2); !errors.Is(err, ErrUnknownSeat) {
		t.Fatalf("expected ErrUnknownSeat, got %v", err)
	}
	if err := h.Deliver(context.Background(), protocol.Grant(-1)); !errors.Is(err, ErrUnknownSeat) {
		t.Fatalf("expected ErrUnknownSeat, got %v", err)
	}
}

func TestReceiveHonoursContextAndClose(t *testing.T) {
	testlog.Start(t)
	h := New(2)
	ep, _ := h.Seat(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ep.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	h.Close()
	h.Close()
	if _, err := ep.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
