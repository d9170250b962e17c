package domain

import "testing"

func TestTurnOwnershipFollowsRedFirstParity(t *testing.T) {
	gs := NewGameState(true)
	gs.AddPlayer("blue-1", 30)
	gs.AddPlayer("red-1", 30)

	if got := gs.CurrentTurnColor(); got != Red {
		t.Fatalf("round 0, red_first=true: got %v, want Red", got)
	}
	gs.AdvanceRound()
	if got := gs.CurrentTurnColor(); got != Blue {
		t.Fatalf("round 1, red_first=true: got %v, want Blue", got)
	}
	gs.AdvanceRound()
	if got := gs.CurrentTurnColor(); got != Red {
		t.Fatalf("round 2, red_first=true: got %v, want Red", got)
	}
}

func TestTurnOwnershipWhenBlueFirst(t *testing.T) {
	gs := NewGameState(false)
	if got := gs.CurrentTurnColor(); got != Blue {
		t.Fatalf("round 0, red_first=false: got %v, want Blue", got)
	}
	gs.AdvanceRound()
	if got := gs.CurrentTurnColor(); got != Red {
		t.Fatalf("round 1, red_first=false: got %v, want Red", got)
	}
}

func TestAddPlayerAssignsBlueThenRed(t *testing.T) {
	gs := NewGameState(true)
	gs.AddPlayer("p1", 30)
	gs.AddPlayer("p2", 30)

	if gs.BluePlayerID != "p1" {
		t.Fatalf("BluePlayerID = %q, want p1", gs.BluePlayerID)
	}
	if gs.RedPlayerID != "p2" {
		t.Fatalf("RedPlayerID = %q, want p2", gs.RedPlayerID)
	}
	if gs.PlayerView("p1") == nil || gs.PlayerView("p2") == nil {
		t.Fatalf("expected player views for both players")
	}
}

func TestPublicViewHidesHand(t *testing.T) {
	pv := NewPlayerView("p1", 30)
	pv.CurrentHand[0] = &CardView{ID: "c1"}
	pv.recomputeHandSize()

	pub := pv.Public()
	if pub.HandSize != 1 {
		t.Fatalf("HandSize = %d, want 1", pub.HandSize)
	}
}

func TestViewForHidesOpponentHand(t *testing.T) {
	gs := NewGameState(true)
	gs.AddPlayer("blue-1", 30)
	gs.AddPlayer("red-1", 30)
	gs.PlayerView("red-1").CurrentHand[0] = &CardView{ID: "c1"}
	gs.PlayerView("red-1").recomputeHandSize()

	view := gs.ViewFor("blue-1")
	if view.You.ID != "blue-1" {
		t.Fatalf("You.ID = %q, want blue-1", view.You.ID)
	}
	if view.Opponent.ID != "red-1" {
		t.Fatalf("Opponent.ID = %q, want red-1", view.Opponent.ID)
	}
	if view.Opponent.HandSize != 1 {
		t.Fatalf("Opponent.HandSize = %d, want 1", view.Opponent.HandSize)
	}
}

func TestViewForUnknownPlayerReturnsZeroValue(t *testing.T) {
	gs := NewGameState(true)
	if got := gs.ViewFor("ghost"); got.You.ID != "" {
		t.Fatalf("expected zero-value MatchView for unknown player, got %+v", got)
	}
}

func TestEndStopsOngoing(t *testing.T) {
	gs := NewGameState(true)
	if !gs.IsOngoing() {
		t.Fatalf("expected new game state to be ongoing")
	}
	gs.End()
	if gs.IsOngoing() {
		t.Fatalf("expected End() to stop the match")
	}
}
