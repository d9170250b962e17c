// Package server wires the rest of the module into a runnable TCP match
// server: the two-phase listener, the pre-session handshake, the
// established-session packet dispatcher, and the game state broadcast
// pump, following SPEC_FULL.md §§4, 9.
package server

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"duelserver/internal/apperr"
	"duelserver/internal/domain"
	"duelserver/internal/game"
	"duelserver/internal/ports"
	"duelserver/internal/script"
	"duelserver/internal/session"
	"duelserver/internal/wire"
)

const handshakeTimeout = 10 * time.Second

// temporaryClient owns a freshly accepted connection until it resolves to
// either an authenticated Session (Connect/Reconnect) or is dropped. It
// never enters the session registry itself.
type temporaryClient struct {
	ctx    context.Context
	conn   net.Conn
	addr   string
	server *ServerInstance
	logger *zap.Logger
}

func newTemporaryClient(ctx context.Context, conn net.Conn, srv *ServerInstance, logger *zap.Logger) *temporaryClient {
	addr := conn.RemoteAddr().String()
	return &temporaryClient{
		ctx:    ctx,
		conn:   conn,
		addr:   addr,
		server: srv,
		logger: logger.With(zap.String("addr", addr), zap.String("conn_id", uuid.NewString())),
	}
}

// handle reads exactly one packet from the connection and resolves it as
// a Connect or Reconnect handshake. Any other packet type, or a framing
// failure, ends the connection.
func (tc *temporaryClient) handle() {
	tc.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	pkt, err := wire.ReadFrom(tc.conn)
	if err != nil {
		tc.logger.Info("handshake read failed", zap.Error(err))
		tc.conn.Close()
		return
	}
	tc.conn.SetReadDeadline(time.Time{})

	if !wire.CheckSum(pkt.Header.Checksum, pkt.Payload) {
		tc.logger.Warn("handshake packet failed checksum")
		tc.reject(wire.InvalidChecksum)
		return
	}

	switch pkt.Header.Type {
	case wire.Connect:
		tc.handleConnect(pkt)
	case wire.Reconnect:
		tc.handleReconnect(pkt)
	case wire.Disconnect:
		tc.logger.Info("client disconnected before handshake")
		tc.conn.Close()
	default:
		tc.logger.Warn("unexpected packet type during handshake", zap.String("type", pkt.Header.Type.String()))
		tc.reject(wire.InvalidHeader)
	}
}

func (tc *temporaryClient) reject(t wire.HeaderType) {
	_, _ = tc.conn.Write(wire.New(t, nil).Wrap())
	tc.conn.Close()
}

// handleConnect authenticates a brand-new player against the auth
// service, verifies it is part of this match's preregistered roster, and
// promotes the connection into a full Session.
func (tc *temporaryClient) handleConnect(pkt *wire.Packet) {
	var req wire.ConnectionRequest
	if err := pkt.Decode(&req); err != nil {
		tc.logger.Warn("malformed connect payload", zap.Error(err))
		tc.reject(wire.InvalidPlayerData)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	account, err := tc.server.auth.Account(ctx, req.AuthToken)
	if err != nil {
		tc.logger.Warn("auth rejected connect", zap.String("player_id", req.PlayerID), zap.Error(err))
		tc.reject(wire.FailedToConnectPlayer)
		return
	}
	if account.IsBanned {
		tc.logger.Warn("banned player attempted connect", zap.String("player_id", account.ID), zap.Error(apperr.ErrPlayerBanned))
		tc.reject(apperrHeaderFor(apperr.ErrPlayerBanned))
		return
	}

	if _, err := tc.server.deck.FetchDeckWithToken(ctx, req.CurrentDeckID, req.AuthToken); err != nil {
		tc.logger.Warn("deck service rejected connect",
			zap.String("player_id", account.ID), zap.String("deck_id", req.CurrentDeckID), zap.Error(err))
		tc.reject(wire.FailedToConnectPlayer)
		return
	}

	player := tc.server.instance.Player(account.ID)
	if player == nil {
		tc.logger.Warn("player not part of match roster", zap.String("player_id", account.ID))
		tc.reject(wire.FailedToConnectPlayer)
		return
	}

	if existing := tc.server.registry.Get(account.ID); existing != nil && existing.Connected() {
		tc.logger.Warn("player already connected", zap.String("player_id", account.ID), zap.Error(apperr.ErrAlreadyConnected))
		tc.reject(apperrHeaderFor(apperr.ErrAlreadyConnected))
		return
	}

	s := session.New(tc.conn, player, tc.server.dispatcher, tc.logger)
	if !tc.server.registry.Store(account.ID, s) {
		tc.logger.Warn("registry refused new session for already-connected player",
			zap.String("player_id", account.ID), zap.Error(apperr.ErrAlreadyConnected))
		tc.reject(apperrHeaderFor(apperr.ErrAlreadyConnected))
		return
	}

	tc.logger.Info("player connected", zap.String("player_id", account.ID))
	go s.RunBroadcastSubscriber(tc.ctx)
	s.ReadLoop()
}

// handleReconnect verifies the claimed identity against the auth service
// and, if a session already exists for that player, swaps its transport
// in place rather than minting a new Session. Apart from rejecting a
// banned identity, the only check performed is that the verified
// player_id matches the one the request claims.
func (tc *temporaryClient) handleReconnect(pkt *wire.Packet) {
	var req wire.ReconnectionRequest
	if err := pkt.Decode(&req); err != nil {
		tc.logger.Warn("malformed reconnect payload", zap.Error(err))
		tc.reject(wire.InvalidPlayerData)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()

	identity, err := tc.server.auth.Verify(ctx, req.AuthToken)
	if err != nil {
		tc.logger.Warn("auth rejected reconnect", zap.Error(err))
		tc.reject(wire.FailedToConnectPlayer)
		return
	}
	if identity.IsBanned {
		tc.logger.Warn("banned player attempted reconnect", zap.String("player_id", identity.PlayerID), zap.Error(apperr.ErrPlayerBanned))
		tc.reject(apperrHeaderFor(apperr.ErrPlayerBanned))
		return
	}
	if identity.PlayerID != req.PlayerID {
		tc.logger.Warn("reconnect identity mismatch",
			zap.String("claimed", req.PlayerID), zap.String("verified", identity.PlayerID))
		tc.reject(apperrHeaderFor(apperr.ErrPlayerIDMismatch))
		return
	}

	existing := tc.server.registry.Get(identity.PlayerID)
	if existing == nil {
		tc.logger.Warn("reconnect for unknown session", zap.String("player_id", identity.PlayerID), zap.Error(apperr.ErrSessionNotFound))
		tc.reject(apperrHeaderFor(apperr.ErrSessionNotFound))
		return
	}

	existing.Reconnect(tc.conn)
	tc.logger.Info("player reconnected", zap.String("player_id", identity.PlayerID))
	// The broadcast subscriber spawned at the original Connect is still
	// running against the same Session and outbox; it picks up the new
	// transport transparently via Reconnect's swap, so it is not restarted
	// here.
	existing.ReadLoop()
}

// apperrHeaderFor maps the apperr identity-error sentinels the handshake
// path can produce onto a wire error header type, per SPEC_FULL.md §7's
// identity taxonomy (all of which surface as FailedToConnectPlayer except
// AlreadyConnected and the malformed-payload/mismatch cases).
func apperrHeaderFor(err error) wire.HeaderType {
	switch err {
	case apperr.ErrAlreadyConnected:
		return wire.AlreadyConnected
	case apperr.ErrPlayerIDMismatch:
		return wire.InvalidPlayerData
	case apperr.ErrPlayerBanned, apperr.ErrSessionNotFound, apperr.ErrPlayerNotInMatch:
		return wire.FailedToConnectPlayer
	default:
		return wire.Error
	}
}

// initializeFromRequest builds the match Instance from an InitServerRequest:
// resolving each roster entry's account, deck, and the full card catalog
// referenced by those decks, before the server starts accepting players.
func initializeFromRequest(
	ctx context.Context,
	req wire.InitServerRequest,
	authPort ports.AuthPort,
	deckPort ports.DeckPort,
	cardPort ports.CardPort,
	scripts *script.Host,
	logger *zap.Logger,
) (*game.Instance, error) {
	state := domain.NewGameState(rand.Intn(2) == 0)

	inst := game.New(state, scripts, cardPort, logger)

	allRefs := make([]domain.CardRef, 0)
	for _, entry := range req.Players {
		profile, err := authPort.PreloadProfile(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		deck, err := deckPort.FetchDeck(ctx, entry.DeckID)
		if err != nil {
			return nil, err
		}

		player := &domain.Player{
			ID:            profile.ID,
			Level:         profile.Level,
			Username:      profile.Username,
			CurrentDeckID: entry.DeckID,
			CurrentDeck:   deck,
		}
		inst.AddPlayer(player)
		allRefs = append(allRefs, deck.Cards...)
	}

	if len(allRefs) > 0 {
		selected, err := cardPort.FetchCards(ctx, allRefs)
		if err != nil {
			return nil, err
		}
		inst.AddCards(selected.Cards)
	}

	return inst, nil
}
