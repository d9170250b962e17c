// Package session implements the per-connection runtime the dispatcher
// hands authenticated players off to: the read loop, the retrying writer,
// the broadcast subscriber, and reconnection's atomic transport swap.
package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"duelserver/internal/apperr"
	"duelserver/internal/domain"
	"duelserver/internal/wire"
)

const (
	defaultMaxWriteRetries = 3
	defaultRetryDelay      = 500 * time.Millisecond

	// outboxCapacity bounds the per-session broadcast channel; a subscriber
	// that falls this far behind is treated as desynchronized rather than
	// stalling delivery to every other session, per SPEC_FULL.md §5.
	outboxCapacity = 30
)

// Handler receives packets parsed off a session's read loop. The
// dispatcher implements this; Session depends only on the interface, never
// on the dispatcher package, so the two never import each other.
type Handler interface {
	HandleIncoming(s *Session, pkt *wire.Packet)
}

// Session is the authenticated runtime pairing of a Player with a live TCP
// transport. Its read half is owned exclusively by ReadLoop; its write
// half is shared between ReadLoop's synchronous replies and the broadcast
// subscriber, guarded by writeMu.
type Session struct {
	Player *domain.Player

	MaxWriteRetries int
	RetryDelay      time.Duration

	mu        sync.RWMutex
	addr      net.Addr
	conn      net.Conn
	connected bool

	writeMu sync.Mutex

	outbox  chan *wire.Packet
	missed  *MissedQueue
	handler Handler
	logger  *zap.Logger
}

// New builds a Session bound to conn, wired to handler for every parsed
// inbound packet. The caller is expected to start RunBroadcastSubscriber in
// its own goroutine alongside ReadLoop so broadcast delivery to this session
// never blocks delivery to any other.
func New(conn net.Conn, player *domain.Player, handler Handler, logger *zap.Logger) *Session {
	return &Session{
		Player:          player,
		MaxWriteRetries: defaultMaxWriteRetries,
		RetryDelay:      defaultRetryDelay,
		addr:            conn.RemoteAddr(),
		conn:            conn,
		connected:       true,
		outbox:          make(chan *wire.Packet, outboxCapacity),
		missed:          NewMissedQueue(),
		handler:         handler,
		logger:          logger,
	}
}

// Addr returns the session's current remote address as text.
func (s *Session) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Connected reports whether the session currently has a live transport.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ReadLoop blocks reading framed packets off the session's transport,
// handing each one to the handler, until the transport reports EOF or an
// error, at which point it marks the session disconnected and returns.
// A caller reconnecting the session is expected to spawn a fresh ReadLoop.
func (s *Session) ReadLoop() {
	addr := s.Addr()
	s.logger.Info("listening to client", zap.String("addr", addr))

	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		pkt, err := wire.ReadFrom(conn)
		if err != nil {
			s.logger.Info("client read loop exiting", zap.String("addr", addr), zap.Error(err))
			s.Disconnect()
			return
		}

		s.logger.Info("client sent packet",
			zap.String("addr", addr), zap.String("type", pkt.Header.Type.String()))
		s.handler.HandleIncoming(s, pkt)
	}
}

// Send serializes pkt and writes it to the session's current transport,
// making up to MaxWriteRetries attempts in total with RetryDelay spacing
// on transient failure. It returns apperr.ErrPackageWriteError once the
// attempts are exhausted.
func (s *Session) Send(pkt *wire.Packet) error {
	data := pkt.Wrap()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < s.MaxWriteRetries; attempt++ {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		_, err := conn.Write(data)
		if err == nil {
			s.logger.Info("packet sent",
				zap.String("addr", s.Addr()),
				zap.String("type", pkt.Header.Type.String()),
				zap.Int("bytes", len(data)))
			return nil
		}

		lastErr = err
		s.logger.Error("failed to send packet, retrying",
			zap.String("addr", s.Addr()), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(s.RetryDelay)
	}

	return errors.Join(apperr.ErrPackageWriteError, lastErr)
}

// Disconnect marks the session as transport-disconnected without evicting
// it from the registry. Reconnection remains possible afterward.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.logger.Info("session disconnected", zap.Stringer("addr", addrStringer{s.addr}))
}

// Close marks the session disconnected and closes its current transport.
// Unlike Disconnect, which a read-loop exit calls on an already-broken
// connection, Close is for callers that still hold a live connection they
// want torn down immediately, e.g. a client-initiated Disconnect request.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.connected = false
	s.mu.Unlock()
	conn.Close()
	s.logger.Info("session closed", zap.String("addr", s.Addr()))
}

// Reconnect atomically swaps the session's transport, preserving player
// identity and the missed-packet queue. The caller is responsible for
// starting a fresh ReadLoop once the prior one has exited.
func (s *Session) Reconnect(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.addr = conn.RemoteAddr()
	s.connected = true
}

// Publish hands pkt to this session's outbox for its subscriber goroutine
// to deliver, without blocking the caller (the broadcast pump, fanning out
// to every session in the match). If the outbox is full, the session is
// considered desynchronized: per SPEC_FULL.md §5's lag handling, this is
// treated as a transport disconnect and pkt is buffered directly onto the
// missed-packet queue instead.
func (s *Session) Publish(pkt *wire.Packet) {
	select {
	case s.outbox <- pkt:
	default:
		s.logger.Warn("broadcast subscriber desynchronized, treating as disconnect",
			zap.String("addr", s.Addr()))
		s.Disconnect()
		s.missed.Push(pkt)
	}
}

// RunBroadcastSubscriber is the session's broadcast-subscriber task: it
// drains this session's outbox, delivering each packet via DeliverBroadcast,
// until ctx is canceled. One instance runs per authenticated session, per
// SPEC_FULL.md §5's task topology, so one session's backpressure can never
// block another's.
func (s *Session) RunBroadcastSubscriber(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-s.outbox:
			s.DeliverBroadcast(pkt)
		}
	}
}

// DeliverBroadcast is invoked once per packet published to the match's
// fan-out. A connected session drains any buffered missed packets first
// (FIFO), then sends the new one; a disconnected session buffers it
// instead, dropping the oldest entry at capacity.
func (s *Session) DeliverBroadcast(pkt *wire.Packet) {
	if !s.Connected() {
		s.missed.Push(pkt)
		s.logger.Warn("session has packets queued while disconnected",
			zap.String("addr", s.Addr()), zap.Int("queued", s.missed.Len()))
		return
	}

	drained := s.missed.DrainAll()
	for i, queued := range drained {
		if err := s.Send(queued); err != nil {
			s.Disconnect()
			for _, unsent := range drained[i:] {
				s.missed.Push(unsent)
			}
			s.missed.Push(pkt)
			return
		}
	}
	if err := s.Send(pkt); err != nil {
		s.Disconnect()
	}
}

type addrStringer struct{ a net.Addr }

func (a addrStringer) String() string {
	if a.a == nil {
		return ""
	}
	return a.a.String()
}
