package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"duelserver/internal/apperr"
	"duelserver/internal/game"
	"duelserver/internal/ports"
	"duelserver/internal/script"
	"duelserver/internal/session"
	"duelserver/internal/wire"
)

// ExitCode and ExitStatus are the process-level shutdown contract; see
// apperr.ExitCode for the full set and which ones the spec names directly.
type ExitCode = apperr.ExitCode

type ExitStatus = apperr.ExitStatus

const (
	ExitOK            = apperr.ExitMatchEnded
	ExitListenerError = apperr.ExitListenerError
	ExitInitFailed    = apperr.ExitInitNeverCompleted
)

// UninitializedServer is the pre-init phase: it has bound its listening
// socket but has no game.Instance yet. Its only job is to accept the
// single InitServer packet that supplies the match roster, at which point
// it is consumed and replaced by a ServerInstance. It never accepts
// player Connect/Reconnect traffic.
type UninitializedServer struct {
	listener          net.Listener
	auth              ports.AuthPort
	deck              ports.DeckPort
	card              ports.CardPort
	scripts           *script.Host
	broadcastInterval time.Duration
	logger            *zap.Logger
}

// NewUninitializedServer binds a listener on addr and returns the pre-init
// server. broadcastInterval configures the cadence of the post-init
// ServerInstance's broadcast pump (SPEC_FULL.md §6 BROADCAST_INTERVAL_MS);
// a zero value falls back to defaultBroadcastInterval.
func NewUninitializedServer(addr string, auth ports.AuthPort, deck ports.DeckPort, card ports.CardPort, scripts *script.Host, broadcastInterval time.Duration, logger *zap.Logger) (*UninitializedServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding listener on %s: %w", addr, err)
	}
	if broadcastInterval <= 0 {
		broadcastInterval = defaultBroadcastInterval
	}
	logger.Info("listening for init request", zap.String("addr", addr))
	return &UninitializedServer{
		listener:          listener,
		auth:              auth,
		deck:              deck,
		card:              card,
		scripts:           scripts,
		broadcastInterval: broadcastInterval,
		logger:            logger,
	}, nil
}

// AwaitInitialization blocks accepting connections until one of them sends
// a valid InitServer packet, then builds and returns the ServerInstance
// that takes over the same listener. Every other connection, and every
// other packet type, is rejected and closed.
func (u *UninitializedServer) AwaitInitialization(ctx context.Context) (*ServerInstance, error) {
	type result struct {
		inst *ServerInstance
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		for {
			conn, err := u.listener.Accept()
			if err != nil {
				resultCh <- result{err: err}
				return
			}

			req, ok := u.tryReadInitRequest(conn)
			if !ok {
				conn.Close()
				continue
			}

			inst, err := u.initialize(ctx, req)
			if err != nil {
				u.logger.Warn("initialization failed, remaining in pre-init phase", zap.Error(err))
				conn.Write(wire.New(wire.Error, []byte(err.Error())).Wrap())
				conn.Close()
				continue
			}
			conn.Close()
			resultCh <- result{inst: inst}
			return
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.inst, res.err
	}
}

func (u *UninitializedServer) tryReadInitRequest(conn net.Conn) (wire.InitServerRequest, bool) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	pkt, err := wire.ReadFrom(conn)
	if err != nil {
		u.logger.Info("init connection read failed", zap.Error(err))
		return wire.InitServerRequest{}, false
	}
	if pkt.Header.Type != wire.InitServer {
		u.logger.Warn("non-init packet before initialization", zap.String("type", pkt.Header.Type.String()))
		return wire.InitServerRequest{}, false
	}
	if !wire.CheckSum(pkt.Header.Checksum, pkt.Payload) {
		u.logger.Warn("init packet failed checksum")
		return wire.InitServerRequest{}, false
	}
	var req wire.InitServerRequest
	if err := pkt.Decode(&req); err != nil {
		u.logger.Warn("malformed init_server payload", zap.Error(err))
		return wire.InitServerRequest{}, false
	}
	return req, true
}

func (u *UninitializedServer) initialize(ctx context.Context, req wire.InitServerRequest) (*ServerInstance, error) {
	inst, err := initializeFromRequest(ctx, req, u.auth, u.deck, u.card, u.scripts, u.logger)
	if err != nil {
		return nil, fmt.Errorf("initializing match %s: %w", req.MatchID, err)
	}
	u.logger.Info("match initialized", zap.String("match_id", req.MatchID), zap.Int("players", len(req.Players)))

	registry := session.NewRegistry()
	return &ServerInstance{
		listener:          u.listener,
		instance:          inst,
		registry:          registry,
		dispatcher:        newDispatcher(inst, registry, u.logger),
		auth:              u.auth,
		deck:              u.deck,
		broadcastInterval: u.broadcastInterval,
		logger:            u.logger,
	}, nil
}

const defaultBroadcastInterval = time.Second

// ServerInstance is the post-init phase: a live game.Instance, an empty
// session registry, and the listener handed down from UninitializedServer.
// It accepts player Connect/Reconnect traffic and runs the broadcast pump
// until the match ends.
type ServerInstance struct {
	listener          net.Listener
	instance          *game.Instance
	registry          *session.Registry
	dispatcher        *dispatcher
	auth              ports.AuthPort
	deck              ports.DeckPort
	broadcastInterval time.Duration
	logger            *zap.Logger

	closeOnce sync.Once
	exit      atomic.Value // ExitStatus
}

// Listen accepts player connections and runs the broadcast pump until ctx
// is canceled, the listener fails, or the match ends, supervising all
// three goroutines with an errgroup so any one of them tears the others
// down: the broadcast pump's own exit (match over) cancels gctx same as
// the caller canceling ctx would, and a canceled gctx closes the listener
// so the accept loop returns.
func (s *ServerInstance) Listen(ctx context.Context) error {
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()
	grp, gctx := errgroup.WithContext(gctx)

	grp.Go(func() error {
		runBroadcastPump(gctx, s.instance, s.registry, s.broadcastInterval, s.logger)
		cancel()
		return nil
	})

	grp.Go(func() error {
		return s.acceptLoop(gctx)
	})

	grp.Go(func() error {
		<-gctx.Done()
		s.listener.Close()
		return nil
	})

	err := grp.Wait()
	if err != nil {
		s.Close(ExitListenerError, err.Error())
	} else {
		s.Close(ExitOK, "match ended")
	}
	return err
}

func (s *ServerInstance) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.logger.Info("accepted connection", zap.String("addr", conn.RemoteAddr().String()))
		tc := newTemporaryClient(ctx, conn, s, s.logger)
		go tc.handle()
	}
}

// Close stops accepting new connections and records the exit status. It
// does not forcibly evict already-connected sessions; their read loops
// exit on their own once the transport drops.
func (s *ServerInstance) Close(code ExitCode, reason string) {
	s.closeOnce.Do(func() {
		s.exit.Store(ExitStatus{Code: code, Reason: reason})
		s.instance.State.End()
		s.listener.Close()
		s.logger.Info("server instance closed", zap.Int("code", int(code)), zap.String("reason", reason))
	})
}

// Exit reports the recorded exit status, or the zero value if the server
// has not yet closed.
func (s *ServerInstance) Exit() ExitStatus {
	if v := s.exit.Load(); v != nil {
		return v.(ExitStatus)
	}
	return ExitStatus{}
}
