// Package game composes a match's GameState, card catalog cache and script
// host into the PlayCard pipeline: the gate-then-invoke-then-mutate
// sequence SPEC_FULL.md §4.4 specifies as the dispatcher's nontrivial
// interior.
package game

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"duelserver/internal/apperr"
	"duelserver/internal/domain"
	"duelserver/internal/ports"
	"duelserver/internal/script"
	"duelserver/internal/wire"
)

// Instance is the per-match composition of shared game state, the card
// catalog cache, the script host, and the roster of preregistered players.
// The server hands the same *Instance to every session and to the
// dispatcher.
type Instance struct {
	State   *domain.GameState
	Scripts *script.Host
	cards   ports.CardPort
	logger  *zap.Logger

	cardsMu   sync.RWMutex
	fullCards map[string]domain.Card

	playersMu sync.RWMutex
	players   map[string]*domain.Player
}

// New builds an Instance around an already-initialized GameState and
// script Host. cardPort is used to lazily resolve catalog misses during
// PlayCard.
func New(state *domain.GameState, scripts *script.Host, cardPort ports.CardPort, logger *zap.Logger) *Instance {
	return &Instance{
		State:     state,
		Scripts:   scripts,
		cards:     cardPort,
		logger:    logger,
		fullCards: make(map[string]domain.Card),
		players:   make(map[string]*domain.Player),
	}
}

// AddCards seeds the catalog cache, typically from InitServer's batch
// fetch before any player has connected.
func (in *Instance) AddCards(cards []domain.Card) {
	in.cardsMu.Lock()
	defer in.cardsMu.Unlock()
	for _, c := range cards {
		in.fullCards[c.ID] = c
	}
}

// AddPlayer registers a preregistered player's authenticated identity and
// seeds their GameState PlayerView. Called once per roster entry during
// InitServer, before any transport exists.
func (in *Instance) AddPlayer(player *domain.Player) {
	in.playersMu.Lock()
	in.players[player.ID] = player
	in.playersMu.Unlock()

	in.State.AddPlayer(player.ID, len(player.CurrentDeck.Cards))
}

// Player returns the preregistered Player record for id, or nil if id is
// not part of this match's roster.
func (in *Instance) Player(id string) *domain.Player {
	in.playersMu.RLock()
	defer in.playersMu.RUnlock()
	return in.players[id]
}

// resolveCard returns the full Card record for cardID, fetching from the
// card service and caching on a miss.
func (in *Instance) resolveCard(ctx context.Context, cardID string) (domain.Card, error) {
	in.cardsMu.RLock()
	card, ok := in.fullCards[cardID]
	in.cardsMu.RUnlock()
	if ok {
		return card, nil
	}

	fetched, err := in.cards.FetchCard(ctx, cardID)
	if err != nil {
		return domain.Card{}, fmt.Errorf("%w: %v", apperr.ErrUnableToGetCardDetails, err)
	}

	in.cardsMu.Lock()
	in.fullCards[fetched.ID] = fetched
	in.cardsMu.Unlock()
	return fetched, nil
}

// PlayCard runs the full gate sequence of SPEC_FULL.md §4.4 step by step,
// aborting at the first failing gate. sessionPlayerID is the identity
// bound to the session making the request; req.PlayerID is the actor the
// request claims to act as — they must match.
func (in *Instance) PlayCard(ctx context.Context, sessionPlayerID string, req wire.PlayCardRequest) error {
	playerView := in.State.PlayerView(req.PlayerID)
	if playerView == nil {
		return apperr.ErrPlayerNotFound
	}

	if sessionPlayerID != playerView.ID {
		return apperr.ErrPlayerIDMismatch
	}

	if in.State.CurrentTurnPlayerID() != req.PlayerID {
		return apperr.ErrPlayerNotTurn
	}

	cardView := playerView.FindInHand(req.CardID)
	if cardView == nil {
		return apperr.ErrCardNotInHand
	}

	fullCard, err := in.resolveCard(ctx, cardView.ID)
	if err != nil {
		return err
	}

	for _, actionName := range fullCard.OnPlay {
		sctx := script.Context{
			Event:      "on_play",
			ActionName: actionName,
			ActorID:    req.PlayerID,
			ActorView:  *cardView,
			PlayerTurn: string(in.State.CurrentTurnColor()),
			GameState:  in.State.PrivateView(),
		}
		if req.TargetID != nil {
			sctx.TargetID = *req.TargetID
		}

		actions, err := in.Scripts.CallFunctionCtx(actionName, sctx)
		if err != nil {
			return err
		}

		if errs := in.State.ApplyActions(actions, req.PlayerID); len(errs) > 0 {
			for _, e := range errs {
				in.logger.Warn("game action failed to apply",
					zap.String("action", actionName), zap.Error(e))
			}
		}
	}

	return nil
}
