package broker

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/tablectl/internal/arbiter"
	"github.com/danmuck/tablectl/internal/observability"
	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/session"
	"github.com/danmuck/tablectl/internal/table"
	"github.com/rs/zerolog/log"
)

var (
	ErrSeatDisconnected = errors.New("broker: seat not connected")
	ErrAlreadyServing   = errors.New("broker: service already serving")
)

// Broker session endpoint configuration.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	Seats           int
	// RequireIdentityBinding rejects registrations whose philosopher id does
	// not match the mTLS peer certificate.
	RequireIdentityBinding bool
	CORSOrigins            []string
	// AdminToken, when set, gates /table and /metrics behind a bearer token.
	AdminToken string
	Arbiter                arbiter.Config
	Session                session.Config
}

// Broker defaults for one five-seat table.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      ":9400",
		AdminListenAddr: "",
		Seats:           5,
		Arbiter:         arbiter.DefaultConfig(),
		Session:         session.DefaultConfig(),
	}
}

// SeatInfo is the observed state of one bound seat.
type SeatInfo struct {
	Seat          int       `json:"seat"`
	PhilosopherID string    `json:"philosopher_id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
}

type seatConn struct {
	info    SeatInfo
	conn    net.Conn
	writeMu sync.Mutex
	seq     uint64
}

type peerAuth struct {
	PeerIdentity  string
	Authenticated bool
}

// Broker runtime service for the registration handshake and the arbiter.
type Service struct {
	cfg   ServiceConfig
	arb   *arbiter.Arbiter
	inbox chan protocol.Envelope

	seatsMu sync.Mutex
	seats   []*seatConn

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	sessionClientCount atomic.Int64
	nextMessageID      atomic.Uint64
	serving            atomic.Bool
	ready              atomic.Bool
	started            time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	tbl, err := table.New(cfg.Seats)
	if err != nil {
		return nil, err
	}
	arb, err := arbiter.New(tbl, cfg.Arbiter, arbiter.WithLogger(log.Logger.With().Str("component", "broker.arbiter").Logger()))
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:     cfg,
		arb:     arb,
		inbox:   make(chan protocol.Envelope, cfg.Seats),
		seats:   make([]*seatConn, cfg.Seats),
		conns:   make(map[net.Conn]struct{}),
		started: time.Now(),
	}
	s.nextMessageID.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Snapshot returns the last table state published by the arbiter.
func (s *Service) Snapshot() arbiter.Snapshot {
	return s.arb.Latest()
}

// Ready reports whether Serve is accepting philosophers.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Connected lists bound seats in seat order.
func (s *Service) Connected() []SeatInfo {
	s.seatsMu.Lock()
	defer s.seatsMu.Unlock()
	out := make([]SeatInfo, 0, len(s.seats))
	for _, sc := range s.seats {
		if sc != nil {
			out = append(out, sc.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Broker runtime entrypoint that blocks until signal shutdown or a fatal
// arbiter violation.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.cfg.Session.ValidateServerTransport(); err != nil {
		return err
	}
	ln, err := s.listen()
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Int("seats", s.cfg.Seats).Msg("broker.Service.Run listening")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	adminErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		go func() {
			adminErr <- s.ServeAdmin(ctx, addr)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			cancel()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// Broker listener builder for TCP or TLS based on transport policy.
func (s *Service) listen() (net.Listener, error) {
	if !s.cfg.Session.TLS.Enabled {
		return net.Listen("tcp", s.cfg.ListenAddr)
	}
	tlsCfg, err := s.cfg.Session.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
}

// Serve runs the arbiter and the accept loop on ln until ctx is done or the
// arbiter stops on a fatal violation, which is returned. A Service serves
// at most once.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.cfg.Session.ValidateServerTransport(); err != nil {
		return err
	}
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer ln.Close()

	arbDone := make(chan error, 1)
	go func() {
		err := s.arb.Run(ctx, s.inbox, s)
		cancel()
		arbDone <- err
	}()
	go func() {
		<-ctx.Done()
		s.ready.Store(false)
		s.closeAllConns()
		_ = ln.Close()
	}()

	s.ready.Store(true)
	acceptErr := s.accept(ctx, ln)
	cancel()
	if err := <-arbDone; err != nil {
		log.Error().Err(err).Msg("broker.Serve arbiter stopped")
		return err
	}
	return acceptErr
}

func (s *Service) accept(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

// Deliver writes one reply to the connection bound to msg.Seat. It is called
// only from the arbiter goroutine.
func (s *Service) Deliver(ctx context.Context, msg protocol.Message) error {
	s.seatsMu.Lock()
	var sc *seatConn
	if msg.Seat >= 0 && msg.Seat < len(s.seats) {
		sc = s.seats[msg.Seat]
	}
	s.seatsMu.Unlock()
	if sc == nil {
		return fmt.Errorf("%w: seat=%d", ErrSeatDisconnected, msg.Seat)
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	sc.seq++
	wire := session.WireMessage{
		MessageID:   s.nextMessageID.Add(1),
		Kind:        msg.Kind,
		Sequence:    sc.seq,
		TimestampMS: uint64(time.Now().UnixMilli()),
	}
	if msg.Kind == protocol.KindDeny {
		wire.Reason = "forks busy"
	}
	raw, err := session.EncodeMessageFrame(wire)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(s.cfg.Session.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = sc.conn.SetWriteDeadline(deadline)
	_, err = sc.conn.Write(raw)
	return err
}

// Broker connection handler for registration and message ingestion.
func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	remote := conn.RemoteAddr().String()
	active := s.sessionClientCount.Add(1)
	observability.AddBrokerSessions(1)
	log.Info().Str("remote", remote).Int64("active_clients", active).Msg("broker.session client connected")
	defer func() {
		remaining := s.sessionClientCount.Add(-1)
		observability.AddBrokerSessions(-1)
		log.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("broker.session client disconnected")
	}()
	reader := bufio.NewReader(conn)

	auth, err := s.authenticateConn(conn)
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("broker.handleConn transport auth failed")
		return
	}

	sc, ack := s.handleRegistration(conn, reader, auth)
	if ack.Status != session.AckStatusAccepted {
		_ = session.WriteRegistrationAck(conn, ack)
		return
	}
	ack, err = s.bindSeat(sc, ack)
	if ack.Status != session.AckStatusAccepted {
		return
	}
	defer s.unbindSeat(ctx, sc)
	if err != nil {
		log.Error().Err(err).Int("seat", sc.info.Seat).Msg("broker.handleConn write registration ack")
		return
	}
	log.Info().Str("philosopher_id", sc.info.PhilosopherID).Int("seat", sc.info.Seat).Str("remote", remote).Msg("broker.handleConn registered")
	if err := conn.SetDeadline(time.Time{}); err != nil {
		log.Warn().Err(err).Msg("broker.handleConn clear deadline")
	}

	seat := sc.info.Seat
	for {
		if s.cfg.Session.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
		}
		msg, err := session.ReadMessage(reader)
		if err != nil && !session.IsUnknownKind(err) {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn().Err(err).Int("seat", seat).Msg("broker.handleConn read")
			}
			return
		}
		select {
		case s.inbox <- protocol.Envelope{From: seat, Kind: msg.Kind}:
		case <-ctx.Done():
			return
		}
	}
}

// Broker registration handler for one seat.register handshake.
func (s *Service) handleRegistration(conn net.Conn, reader *bufio.Reader, auth peerAuth) (*seatConn, session.RegistrationAck) {
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Session.HandshakeTimeout))
	now := uint64(time.Now().UnixMilli())
	reject := func(seat int, code uint32, message string) session.RegistrationAck {
		return session.RegistrationAck{
			Status:      session.AckStatusRejected,
			Code:        code,
			Message:     message,
			Seat:        seat,
			TimestampMS: now,
		}
	}

	reg, err := session.ReadRegistration(reader)
	if err != nil {
		log.Warn().Err(err).Msg("broker.handleRegistration read")
		return nil, reject(-1, session.CodeMalformedRegistration, "invalid registration payload")
	}
	if reg.Seat >= s.cfg.Seats {
		return nil, reject(reg.Seat, session.CodeSeatOutOfRange, fmt.Sprintf("seat %d outside 0..%d", reg.Seat, s.cfg.Seats-1))
	}
	if s.cfg.RequireIdentityBinding && auth.Authenticated && auth.PeerIdentity != reg.PhilosopherID {
		log.Warn().Str("philosopher_id", reg.PhilosopherID).Str("peer_identity", auth.PeerIdentity).Msg("broker.handleRegistration identity mismatch")
		return nil, reject(reg.Seat, session.CodeIdentityMismatch, "identity binding failure")
	}

	sc := &seatConn{
		conn: conn,
		info: SeatInfo{
			Seat:          reg.Seat,
			PhilosopherID: reg.PhilosopherID,
			RemoteAddr:    conn.RemoteAddr().String(),
			ConnectedAt:   time.Now(),
		},
	}
	return sc, session.RegistrationAck{
		Status:      session.AckStatusAccepted,
		Message:     "seated",
		Seat:        reg.Seat,
		Seats:       s.cfg.Seats,
		Variant:     string(s.arb.Config().Variant),
		TimestampMS: now,
	}
}

// bindSeat claims the seat for sc and writes the registration ack. sc.writeMu
// is held from the claim until the ack is on the wire, so no reply frame can
// reach the connection ahead of the ack. A seat still held by another
// connection is rejected with CodeSeatTaken. The returned error is the ack
// write failure.
func (s *Service) bindSeat(sc *seatConn, ack session.RegistrationAck) (session.RegistrationAck, error) {
	seat := sc.info.Seat
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	s.seatsMu.Lock()
	holder := s.seats[seat]
	if holder == nil {
		s.seats[seat] = sc
	}
	s.seatsMu.Unlock()
	if holder != nil {
		ack = session.RegistrationAck{
			Status:      session.AckStatusRejected,
			Code:        session.CodeSeatTaken,
			Message:     fmt.Sprintf("seat %d already held by %s", seat, holder.info.PhilosopherID),
			Seat:        seat,
			TimestampMS: ack.TimestampMS,
		}
		_ = session.WriteRegistrationAck(sc.conn, ack)
		return ack, nil
	}
	ack.State = s.arb.Latest().Seats[seat].String()
	return ack, session.WriteRegistrationAck(sc.conn, ack)
}

// unbindSeat settles the seat through the arbiter and then frees it for a new
// connection. A departed eater's forks are released and a departed waiter's
// request is dropped, so the next philosopher on the seat starts idle.
func (s *Service) unbindSeat(ctx context.Context, sc *seatConn) {
	seat := sc.info.Seat
	if st := s.arb.Latest().Seats[seat]; st != arbiter.SeatIdle {
		log.Warn().Int("seat", seat).Str("state", st.String()).Msg("broker.session philosopher left the table mid-protocol")
	}
	done := make(chan struct{})
	select {
	case s.inbox <- protocol.Departure(seat, done):
		select {
		case <-done:
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}

	s.seatsMu.Lock()
	if s.seats[seat] == sc {
		s.seats[seat] = nil
	}
	s.seatsMu.Unlock()
	log.Debug().Int("seat", seat).Str("state", s.arb.Latest().Seats[seat].String()).Msg("broker.session seat settled")
}

// Broker transport-auth helper enforcing TLS/mTLS and extracting peer identity.
func (s *Service) authenticateConn(conn net.Conn) (peerAuth, error) {
	mode := session.NormalizeSecurityMode(s.cfg.Session.SecurityMode)
	if !s.cfg.Session.TLS.Enabled {
		if mode == session.SecurityModeProduction {
			return peerAuth{}, session.ErrTLSRequired
		}
		return peerAuth{}, nil
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return peerAuth{}, fmt.Errorf("broker: expected tls connection")
	}
	_ = tlsConn.SetDeadline(time.Now().Add(s.cfg.Session.HandshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		return peerAuth{}, err
	}
	state := tlsConn.ConnectionState()
	needPeer := s.cfg.Session.TLS.Mutual || mode == session.SecurityModeProduction
	if !needPeer && len(state.PeerCertificates) == 0 {
		return peerAuth{}, nil
	}
	if len(state.PeerCertificates) == 0 {
		return peerAuth{}, session.ErrMTLSRequired
	}
	peerID := peerIdentityFromCert(state.PeerCertificates[0])
	if peerID == "" {
		return peerAuth{}, fmt.Errorf("broker: empty peer identity from certificate")
	}
	return peerAuth{PeerIdentity: peerID, Authenticated: true}, nil
}

// Certificate identity extractor using CN/URI/DNS preference order.
func peerIdentityFromCert(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	if v := strings.TrimSpace(cert.Subject.CommonName); v != "" {
		return v
	}
	if len(cert.URIs) > 0 {
		if v := strings.TrimSpace(cert.URIs[0].String()); v != "" {
			return v
		}
	}
	if len(cert.DNSNames) > 0 {
		return strings.TrimSpace(cert.DNSNames[0])
	}
	return ""
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
