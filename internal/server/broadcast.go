package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"duelserver/internal/game"
	"duelserver/internal/session"
	"duelserver/internal/wire"
)

// runBroadcastPump publishes a GameState packet to every registered
// session once per interval, for as long as the match is ongoing and ctx
// is not canceled. Each recipient gets its own MatchView so a client
// never observes its opponent's hand. Fan-out to each session goes
// through that session's own bounded outbox (Session.Publish), so one
// slow or desynchronized subscriber can never delay delivery to the rest
// of the match, per SPEC_FULL.md §5's task topology and lag handling.
func runBroadcastPump(ctx context.Context, instance *game.Instance, registry *session.Registry, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !instance.State.IsOngoing() {
			logger.Info("broadcast pump exiting, match no longer ongoing")
			return
		}

		subscribers, bytes := 0, 0
		registry.Each(func(playerID string, s *session.Session) {
			view := instance.State.ViewFor(playerID)
			pkt, err := wire.NewCBOR(wire.GameState, view)
			if err != nil {
				logger.Error("failed to encode game state broadcast", zap.String("player_id", playerID), zap.Error(err))
				return
			}
			s.Publish(pkt)
			subscribers++
			bytes += len(pkt.Payload)
		})
		logger.Info("broadcast tick", zap.Int("subscribers", subscribers), zap.Int("bytes", bytes))
	}
}
