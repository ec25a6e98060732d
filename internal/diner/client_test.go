package diner

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

// fakeBroker accepts one connection, answers the registration with ack, and
// then hands the raw connection to serve.
func fakeBroker(t *testing.T, ack session.RegistrationAck, serve func(net.Conn, *bufio.Reader)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		if _, err := session.ReadRegistration(reader); err != nil {
			return
		}
		if err := session.WriteRegistrationAck(conn, ack); err != nil {
			return
		}
		if serve != nil {
			serve(conn, reader)
		}
	}()
	return ln.Addr().String()
}

func TestNewClientValidatesConfig(t *testing.T) {
	testlog.Start(t)
	if _, err := NewClient(ClientConfig{PhilosopherID: "p"}); !errors.Is(err, ErrBrokerAddressRequired) {
		t.Fatalf("expected ErrBrokerAddressRequired, got %v", err)
	}
	if _, err := NewClient(ClientConfig{Address: "127.0.0.1:1"}); !errors.Is(err, ErrPhilosopherIDRequired) {
		t.Fatalf("expected ErrPhilosopherIDRequired, got %v", err)
	}
}

func TestClientRegistrationRejected(t *testing.T) {
	testlog.Start(t)
	addr := fakeBroker(t, session.RegistrationAck{
		Status:      session.AckStatusRejected,
		Code:        session.CodeSeatTaken,
		Message:     "seat 1 already connected",
		TimestampMS: uint64(time.Now().UnixMilli()),
	}, nil)
	c, err := NewClient(ClientConfig{Address: addr, PhilosopherID: "phil.1", Seat: 1})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrRegistrationRejected) {
		t.Fatalf("expected ErrRegistrationRejected, got %v", err)
	}
}

func TestSessionExchangesFrames(t *testing.T) {
	testlog.Start(t)
	received := make(chan session.WireMessage, 1)
	addr := fakeBroker(t, session.RegistrationAck{
		Status:      session.AckStatusAccepted,
		Seat:        2,
		Seats:       5,
		Variant:     "wakeup",
		State:       "idle",
		TimestampMS: uint64(time.Now().UnixMilli()),
	}, func(conn net.Conn, reader *bufio.Reader) {
		msg, err := session.ReadMessage(reader)
		if err != nil {
			return
		}
		received <- msg
		raw, _ := session.EncodeMessageFrame(session.WireMessage{Kind: protocol.KindGrant})
		_, _ = conn.Write(raw)
		time.Sleep(200 * time.Millisecond)
	})

	c, _ := NewClient(ClientConfig{Address: addr, PhilosopherID: "phil.2", Seat: 2, MaxConnectAttempts: 1})
	s, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	if s.Seat() != 2 || s.Seats() != 5 || s.Variant() != "wakeup" || s.State() != "idle" {
		t.Fatalf("unexpected session metadata: seat=%d seats=%d variant=%q state=%q", s.Seat(), s.Seats(), s.Variant(), s.State())
	}
	if err := s.Send(context.Background(), protocol.KindRequest); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := <-received
	if msg.Kind != protocol.KindRequest || msg.Sequence != 1 || msg.TimestampMS == 0 {
		t.Fatalf("unexpected wire message: %+v", msg)
	}
	kind, err := s.Receive(context.Background())
	if err != nil || kind != protocol.KindGrant {
		t.Fatalf("receive: %s %v", kind, err)
	}
}

func TestSessionReceiveHonoursCancel(t *testing.T) {
	testlog.Start(t)
	addr := fakeBroker(t, session.RegistrationAck{
		Status:      session.AckStatusAccepted,
		Seat:        0,
		Seats:       3,
		TimestampMS: uint64(time.Now().UnixMilli()),
	}, func(net.Conn, *bufio.Reader) {
		time.Sleep(time.Second)
	})
	c, _ := NewClient(ClientConfig{Address: addr, PhilosopherID: "phil.0"})
	s, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := s.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	_ = s.Close()
	if err := s.Send(context.Background(), protocol.KindRelease); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
