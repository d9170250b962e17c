package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"duelserver/internal/apperr"
	"duelserver/internal/game"
	"duelserver/internal/session"
	"duelserver/internal/wire"
)

const dispatchTimeout = 5 * time.Second

// dispatcher routes packets from already-authenticated sessions into the
// match Instance. It implements session.Handler; Session depends only on
// that interface, so session and server never import each other.
type dispatcher struct {
	instance *game.Instance
	registry *session.Registry
	logger   *zap.Logger
}

func newDispatcher(instance *game.Instance, registry *session.Registry, logger *zap.Logger) *dispatcher {
	return &dispatcher{instance: instance, registry: registry, logger: logger}
}

// HandleIncoming implements session.Handler.
func (d *dispatcher) HandleIncoming(s *session.Session, pkt *wire.Packet) {
	if !wire.CheckSum(pkt.Header.Checksum, pkt.Payload) {
		d.logger.Warn("invalid checksum", zap.String("player_id", s.Player.ID))
		d.sendOrDisconnect(s, wire.New(wire.InvalidChecksum, nil))
		s.Close()
		return
	}

	switch pkt.Header.Type {
	case wire.PlayCard:
		d.handlePlayCard(s, pkt)
	case wire.Disconnect:
		d.handleDisconnect(s)
	case wire.Ping:
		d.sendOrDisconnect(s, wire.New(wire.Ping, nil))
	case wire.Connect, wire.Reconnect:
		d.logger.Warn("handshake packet from already-connected session",
			zap.String("player_id", s.Player.ID), zap.String("type", pkt.Header.Type.String()),
			zap.Error(apperr.ErrAlreadyConnected))
		d.sendOrDisconnect(s, wire.New(wire.AlreadyConnected, nil))
	default:
		d.logger.Warn("unexpected packet type from session",
			zap.String("player_id", s.Player.ID), zap.String("type", pkt.Header.Type.String()))
		d.sendOrDisconnect(s, wire.New(wire.InvalidHeader, nil))
	}
}

func (d *dispatcher) handlePlayCard(s *session.Session, pkt *wire.Packet) {
	var req wire.PlayCardRequest
	if err := pkt.Decode(&req); err != nil {
		d.logger.Warn("malformed play_card payload", zap.String("player_id", s.Player.ID), zap.Error(err))
		d.sendOrDisconnect(s, wire.New(wire.InvalidPlayerData, nil))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	if err := d.instance.PlayCard(ctx, s.Player.ID, req); err != nil {
		d.logger.Warn("play_card rejected",
			zap.String("player_id", s.Player.ID), zap.String("card_id", req.CardID), zap.Error(err))
		d.sendOrDisconnect(s, wire.New(wire.PlayCard, []byte(err.Error())))
		return
	}
}

func (d *dispatcher) handleDisconnect(s *session.Session) {
	d.logger.Info("client requested disconnect", zap.String("player_id", s.Player.ID))
	_ = s.Send(wire.New(wire.Disconnect, nil))
	s.Close()
}

// sendOrDisconnect sends pkt, disconnecting the session on write failure —
// the retry budget inside Session.Send is already exhausted by the time
// this returns an error.
func (d *dispatcher) sendOrDisconnect(s *session.Session, pkt *wire.Packet) {
	if err := s.Send(pkt); err != nil {
		d.logger.Warn("send failed, disconnecting", zap.String("player_id", s.Player.ID), zap.Error(err))
		s.Disconnect()
	}
}

var _ session.Handler = (*dispatcher)(nil)
