package session

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/frame"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
	if got := NextBackoffDelay(BackoffConfig{}, 4, nil); got != 0 {
		t.Fatalf("zero config must not delay, got=%v", got)
	}
}

func TestRegistrationRoundTrip(t *testing.T) {
	testlog.Start(t)
	reg := Registration{PhilosopherID: "phil.2", Seat: 2}
	var buf bytes.Buffer
	if err := WriteRegistration(&buf, reg); err != nil {
		t.Fatalf("write registration: %v", err)
	}
	got, err := ReadRegistration(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read registration: %v", err)
	}
	if got != reg {
		t.Fatalf("registration mismatch: got=%+v want=%+v", got, reg)
	}
}

func TestRegistrationValidation(t *testing.T) {
	testlog.Start(t)
	if err := (Registration{Seat: 1}).Validate(); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("expected missing id rejection, got %v", err)
	}
	if err := (Registration{PhilosopherID: "p", Seat: -1}).Validate(); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("expected negative seat rejection, got %v", err)
	}
}

func TestRegistrationAckRoundTrip(t *testing.T) {
	testlog.Start(t)
	ack := RegistrationAck{
		Status:      AckStatusAccepted,
		Message:     "seated",
		Seat:        1,
		Seats:       5,
		Variant:     "wakeup",
		TimestampMS: 1700000000000,
	}
	var buf bytes.Buffer
	if err := WriteRegistrationAck(&buf, ack); err != nil {
		t.Fatalf("write ack: %v", err)
	}
	got, err := ReadRegistrationAck(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if got != ack {
		t.Fatalf("ack mismatch: got=%+v want=%+v", got, ack)
	}
}

func TestReadRegistrationRejectsAckEnvelope(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	_ = WriteRegistrationAck(&buf, RegistrationAck{Status: AckStatusRejected, Code: CodeSeatTaken, TimestampMS: 1})
	if _, err := ReadRegistration(bufio.NewReader(&buf)); !errors.Is(err, ErrInvalidRegistration) {
		t.Fatalf("expected ErrInvalidRegistration, got %v", err)
	}
}

func TestControlLineTooLarge(t *testing.T) {
	testlog.Start(t)
	line := strings.Repeat("x", 8*1024) + "\n"
	r := bufio.NewReaderSize(strings.NewReader(line), 4096)
	if _, err := ReadRegistration(r); !errors.Is(err, ErrControlMessageTooLarge) {
		t.Fatalf("expected ErrControlMessageTooLarge, got %v", err)
	}
}

func TestMessageFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in := WireMessage{MessageID: 7, Kind: protocol.KindDeny, Sequence: 3, TimestampMS: 99, Reason: "fork 1 held"}
	raw, err := EncodeMessageFrame(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	fr, err := frame.ReadFrame(bytes.NewReader(raw), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if fr.Header.Flags&frame.FlagIsResponse == 0 {
		t.Fatalf("deny must be flagged as response")
	}
	out, err := DecodeMessageFrame(fr)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("message mismatch: got=%+v want=%+v", out, in)
	}
}

func TestBareRequestFrameHasNoPayload(t *testing.T) {
	testlog.Start(t)
	raw, err := EncodeMessageFrame(WireMessage{Kind: protocol.KindRequest})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(raw) != int(frame.FixedHeaderLen) {
		t.Fatalf("bare request should be header only, got %d bytes", len(raw))
	}
	msg, err := ReadMessage(bytes.NewReader(raw))
	if err != nil || msg.Kind != protocol.KindRequest {
		t.Fatalf("read message: %+v %v", msg, err)
	}
}

func TestUnknownKindIsReported(t *testing.T) {
	testlog.Start(t)
	if _, err := EncodeMessageFrame(WireMessage{Kind: protocol.Kind(12)}); !IsUnknownKind(err) {
		t.Fatalf("expected unknown kind on encode, got %v", err)
	}
	raw, _ := frame.Marshal(frame.Frame{Header: frame.Header{MessageType: 12}}, frame.DefaultLimits())
	msg, err := ReadMessage(bytes.NewReader(raw))
	if !IsUnknownKind(err) {
		t.Fatalf("expected unknown kind on decode, got %v", err)
	}
	if msg.Kind != protocol.Kind(12) {
		t.Fatalf("raw kind must survive decode errors, got %v", msg.Kind)
	}
}

func TestConfigWithDefaultsKeepsZeroReadTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := Config{ReadTimeout: 0}.WithDefaults()
	if cfg.ReadTimeout != 0 {
		t.Fatalf("read timeout must stay disabled")
	}
	if cfg.WriteTimeout != DefaultConfig().WriteTimeout || cfg.Backoff != DefaultConfig().Backoff {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.SecurityMode != SecurityModeDevelopment {
		t.Fatalf("unexpected mode: %q", cfg.SecurityMode)
	}
}

func TestTransportPolicy(t *testing.T) {
	testlog.Start(t)
	prod := Config{SecurityMode: "PRODUCTION"}
	if err := prod.ValidateServerTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}
	prod.TLS = TLSConfig{Enabled: true, CertFile: "c", KeyFile: "k"}
	if err := prod.ValidateServerTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
	dev := Config{TLS: TLSConfig{Enabled: true}}
	if err := dev.ValidateClientTransport(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}
	if err := (Config{SecurityMode: "lax"}).ValidateClientTransport(); !errors.Is(err, ErrInvalidSecurityMode) {
		t.Fatalf("expected ErrInvalidSecurityMode, got %v", err)
	}
	if err := (Config{}).ValidateServerTransport(); err != nil {
		t.Fatalf("plain development transport must validate: %v", err)
	}
}
