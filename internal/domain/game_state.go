package domain

import "sync"

// TurnColor is one of the two match sides.
type TurnColor string

const (
	Red  TurnColor = "Red"
	Blue TurnColor = "Blue"
)

// GameState is the authoritative, shared state of one match: the round
// counter, both players' identities, and their private views. It is
// guarded by its own mutex since the broadcast pump, the dispatcher, and
// script-triggered mutations all touch it concurrently.
type GameState struct {
	mu sync.RWMutex

	Rounds       uint32
	RedFirst     bool
	RedPlayerID  string
	BluePlayerID string
	Ongoing      bool

	playerViews map[string]*PlayerView
}

// NewGameState builds an empty, not-yet-started game state. RedFirst is
// decided by the caller (typically at InitServer time) and fixes which
// color owns the opening turn.
func NewGameState(redFirst bool) *GameState {
	return &GameState{
		RedFirst:    redFirst,
		Ongoing:     true,
		playerViews: make(map[string]*PlayerView),
	}
}

// AddPlayer assigns the next free color slot to playerID and registers
// its initial PlayerView. The first call becomes Blue, matching the
// original client-visible assignment order; the second becomes Red.
func (gs *GameState) AddPlayer(playerID string, deckSize int) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	switch {
	case gs.BluePlayerID == "":
		gs.BluePlayerID = playerID
	case gs.RedPlayerID == "":
		gs.RedPlayerID = playerID
	}
	gs.playerViews[playerID] = NewPlayerView(playerID, deckSize)
}

// PlayerView returns the private view for playerID, or nil if unknown.
func (gs *GameState) PlayerView(playerID string) *PlayerView {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.playerViews[playerID]
}

// PlayerViews returns a snapshot of every registered private view, keyed
// by player id.
func (gs *GameState) PlayerViews() map[string]*PlayerView {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	out := make(map[string]*PlayerView, len(gs.playerViews))
	for id, pv := range gs.playerViews {
		out[id] = pv
	}
	return out
}

// CurrentTurnColor reports which color owns the turn at the current
// round count: red holds the turn when (rounds % 2 == 0) == red_first,
// blue otherwise.
func (gs *GameState) CurrentTurnColor() TurnColor {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	if (gs.Rounds%2 == 0) == gs.RedFirst {
		return Red
	}
	return Blue
}

// CurrentTurnPlayerID returns the player id that owns the current turn.
func (gs *GameState) CurrentTurnPlayerID() string {
	gs.mu.RLock()
	red, blue := gs.RedPlayerID, gs.BluePlayerID
	rounds, redFirst := gs.Rounds, gs.RedFirst
	gs.mu.RUnlock()

	turnIsRed := (rounds%2 == 0) == redFirst
	if turnIsRed {
		return red
	}
	return blue
}

// PrivateView builds the PrivateGameStateView snapshot passed into every
// script invocation: the round counter plus both players' full views.
func (gs *GameState) PrivateView() PrivateGameStateView {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	view := PrivateGameStateView{Turn: gs.Rounds}
	if pv := gs.playerViews[gs.RedPlayerID]; pv != nil {
		view.RedPlayer = *pv
	}
	if pv := gs.playerViews[gs.BluePlayerID]; pv != nil {
		view.BluePlayer = *pv
	}
	return view
}

// ViewFor builds the per-recipient MatchView broadcast to playerID: its
// own full private view, and the opponent's public-only projection. It
// returns the zero MatchView if playerID is not part of this match.
func (gs *GameState) ViewFor(playerID string) MatchView {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	own, ok := gs.playerViews[playerID]
	if !ok {
		return MatchView{}
	}

	opponentID := gs.RedPlayerID
	if playerID == gs.RedPlayerID {
		opponentID = gs.BluePlayerID
	}

	view := MatchView{Turn: gs.Rounds, You: *own}
	if opp := gs.playerViews[opponentID]; opp != nil {
		view.Opponent = opp.Public()
	}
	return view
}

// AdvanceRound increments the round counter, flipping turn ownership.
func (gs *GameState) AdvanceRound() {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.Rounds++
}

// IsOngoing reports whether the match is still active.
func (gs *GameState) IsOngoing() bool {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.Ongoing
}

// End marks the match as finished; the broadcast pump exits once it
// observes this.
func (gs *GameState) End() {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.Ongoing = false
}
