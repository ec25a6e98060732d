package diner

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrBrokerAddressRequired = errors.New("diner: broker address required")
	ErrPhilosopherIDRequired = errors.New("diner: philosopher_id required")
	ErrRegistrationRejected  = errors.New("diner: registration rejected")
	ErrSessionClosed         = errors.New("diner: broker session closed")
)

type ClientConfig struct {
	Address            string
	PhilosopherID      string
	Seat               int
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Session: session.DefaultConfig(),
	}
}

type Client struct {
	cfg ClientConfig
	rng *rand.Rand
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrBrokerAddressRequired
	}
	if strings.TrimSpace(cfg.PhilosopherID) == "" {
		return nil, ErrPhilosopherIDRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Client{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Connect dials the broker, claims the configured seat, and returns a live
// session. Rejected registrations are not retried.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	var attempt int
	for {
		attempt++
		conn, err := c.dial(ctx)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Str("addr", c.cfg.Address).Msg("diner.Client dial failed")
			if !c.shouldRetry(attempt) {
				return nil, err
			}
			if err := session.Sleep(ctx, session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)); err != nil {
				return nil, err
			}
			continue
		}

		s, err := c.register(conn)
		if err == nil {
			log.Info().
				Str("philosopher_id", c.cfg.PhilosopherID).
				Int("seat", s.seat).
				Int("seats", s.seats).
				Str("variant", s.variant).
				Msg("diner.Client registered")
			return s, nil
		}
		_ = conn.Close()
		if errors.Is(err, ErrRegistrationRejected) || !c.shouldRetry(attempt) {
			return nil, err
		}
		if err := session.Sleep(ctx, session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, c.rng)); err != nil {
			return nil, err
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if err := c.cfg.Session.ValidateClientTransport(); err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, err
	}
	if !c.cfg.Session.TLS.Enabled {
		return rawConn, nil
	}
	tlsCfg, err := c.cfg.Session.ClientTLSConfig(c.cfg.Address)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, c.cfg.Session.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) register(conn net.Conn) (*Session, error) {
	_ = conn.SetDeadline(time.Now().Add(c.cfg.Session.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	reg := session.Registration{
		PhilosopherID: c.cfg.PhilosopherID,
		Seat:          c.cfg.Seat,
	}
	if err := session.WriteRegistration(conn, reg); err != nil {
		return nil, err
	}
	ack, err := session.ReadRegistrationAck(reader)
	if err != nil {
		return nil, err
	}
	if ack.Status != session.AckStatusAccepted {
		return nil, fmt.Errorf("%w: code=%d message=%q", ErrRegistrationRejected, ack.Code, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})
	s := &Session{
		conn:    conn,
		reader:  reader,
		cfg:     c.cfg.Session,
		seat:    ack.Seat,
		seats:   ack.Seats,
		variant: ack.Variant,
		state:   ack.State,
	}
	s.nextMessageID.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Session is a registered broker connection. It implements Conn.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	cfg    session.Config

	seat    int
	seats   int
	variant string
	state   string

	nextMessageID atomic.Uint64
	sequence      atomic.Uint64
	writeMu       sync.Mutex
	readMu        sync.Mutex
	closed        atomic.Bool
}

func (s *Session) Seat() int {
	return s.seat
}

// Seats is the ring size reported by the broker.
func (s *Session) Seats() int {
	return s.seats
}

// Variant is the arbiter variant reported by the broker.
func (s *Session) Variant() string {
	return s.variant
}

// State is the broker's view of the seat when it was bound; "idle" unless
// a departed philosopher's seat could not be settled.
func (s *Session) State() string {
	return s.state
}

func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

func (s *Session) Send(ctx context.Context, kind protocol.Kind) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	raw, err := session.EncodeMessageFrame(session.WireMessage{
		MessageID:   s.nextMessageID.Add(1),
		Kind:        kind,
		Sequence:    s.sequence.Add(1),
		TimestampMS: uint64(time.Now().UnixMilli()),
	})
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.setWriteDeadline(ctx); err != nil {
		return err
	}
	_, err = s.conn.Write(raw)
	return err
}

// Receive blocks for the next reply. Cancelling ctx interrupts the read.
// A frame of an unknown kind is returned as that kind with no error so the
// loop can apply its strictness policy.
func (s *Session) Receive(ctx context.Context) (protocol.Kind, error) {
	if s.closed.Load() {
		return 0, ErrSessionClosed
	}
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if err := s.setReadDeadline(); err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	msg, err := session.ReadMessage(s.reader)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if session.IsUnknownKind(err) {
			return msg.Kind, nil
		}
		return 0, err
	}
	if msg.Reason != "" {
		log.Debug().Int("seat", s.seat).Str("kind", msg.Kind.String()).Str("reason", msg.Reason).Msg("diner.Session reply")
	}
	return msg.Kind, nil
}

func (s *Session) setWriteDeadline(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return s.conn.SetWriteDeadline(deadline)
}

func (s *Session) setReadDeadline() error {
	if s.cfg.ReadTimeout <= 0 {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
}
