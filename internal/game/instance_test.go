package game

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"duelserver/internal/apperr"
	"duelserver/internal/domain"
	"duelserver/internal/ports"
	"duelserver/internal/script"
	"duelserver/internal/wire"
)

type fakeCardPort struct {
	cards map[string]domain.Card
}

func (f *fakeCardPort) FetchCard(ctx context.Context, cardID string) (domain.Card, error) {
	c, ok := f.cards[cardID]
	if !ok {
		return domain.Card{}, apperr.ErrCardNotFound
	}
	return c, nil
}

func (f *fakeCardPort) FetchCards(ctx context.Context, refs []domain.CardRef) (ports.SelectedCards, error) {
	return ports.SelectedCards{}, nil
}

// writeTestScripts lays out a scripts/ tree under dir with one core and one
// effects function, plus the manifests that index them, mirroring the
// on-disk layout SPEC_FULL.md §6 names.
func writeTestScripts(t *testing.T, dir string) {
	t.Helper()
	mustMkdir(t, filepath.Join(dir, "core"))
	mustMkdir(t, filepath.Join(dir, "effects"))

	mustWriteFile(t, filepath.Join(dir, "core", "log.lua"), `
		function logtrigger(ctx) return {} end
	`)
	mustWriteFile(t, filepath.Join(dir, "effects", "draw.lua"), `
		function draw1(ctx)
			return { { type = "Summon", id = "c99", position = "hand:4" } }
		end
	`)
	mustWriteFile(t, filepath.Join(dir, "core_manifest.txt"), "logtrigger\n")
	mustWriteFile(t, filepath.Join(dir, "effects_manifest.txt"), "draw1\n")
}

func newTestInstance(t *testing.T, redFirst bool, cards map[string]domain.Card) *Instance {
	t.Helper()
	host := script.NewHost(zap.NewNop())
	t.Cleanup(host.Close)

	scriptsDir := t.TempDir()
	writeTestScripts(t, scriptsDir)
	if err := host.LoadScripts(scriptsDir); err != nil {
		t.Fatalf("LoadScripts: %v", err)
	}
	if err := host.SetGlobals(scriptsDir); err != nil {
		t.Fatalf("SetGlobals: %v", err)
	}

	state := domain.NewGameState(redFirst)
	return New(state, host, &fakeCardPort{cards: cards}, zap.NewNop())
}

func TestPlayCardFullSweep(t *testing.T) {
	// p1 is registered blue (first AddPlayer call); blue holds the turn
	// when red_first=false.
	in := newTestInstance(t, false, map[string]domain.Card{
		"c42": {ID: "c42", OnPlay: []string{"core:logtrigger", "effects:draw1"}},
	})
	in.AddPlayer(&domain.Player{ID: "p1"})
	in.AddPlayer(&domain.Player{ID: "p2"})
	in.State.PlayerView("p1").CurrentHand[3] = &domain.CardView{ID: "c42", OwnerID: "p1"}

	err := in.PlayCard(context.Background(), "p1", wire.PlayCardRequest{PlayerID: "p1", CardID: "c42"})
	if err != nil {
		t.Fatalf("PlayCard: %v", err)
	}

	pv := in.State.PlayerView("p1")
	if pv.CurrentHand[4] == nil || pv.CurrentHand[4].ID != "c99" {
		t.Fatalf("expected c99 summoned into hand slot 4, got %+v", pv.CurrentHand[4])
	}
}

func TestPlayCardPlayerNotFound(t *testing.T) {
	in := newTestInstance(t, true, nil)
	err := in.PlayCard(context.Background(), "p1", wire.PlayCardRequest{PlayerID: "ghost", CardID: "c1"})
	if err != apperr.ErrPlayerNotFound {
		t.Fatalf("got %v, want ErrPlayerNotFound", err)
	}
}

func TestPlayCardPlayerIDMismatch(t *testing.T) {
	in := newTestInstance(t, true, nil)
	in.AddPlayer(&domain.Player{ID: "p1"})

	err := in.PlayCard(context.Background(), "impostor", wire.PlayCardRequest{PlayerID: "p1", CardID: "c1"})
	if err != apperr.ErrPlayerIDMismatch {
		t.Fatalf("got %v, want ErrPlayerIDMismatch", err)
	}
}

func TestPlayCardNotPlayerTurn(t *testing.T) {
	in := newTestInstance(t, true, nil)
	in.AddPlayer(&domain.Player{ID: "blue-1"})
	in.AddPlayer(&domain.Player{ID: "red-1"})
	// red_first=true, round 0 => Red's turn; blue-1 acting out of turn.
	err := in.PlayCard(context.Background(), "blue-1", wire.PlayCardRequest{PlayerID: "blue-1", CardID: "c1"})
	if err != apperr.ErrPlayerNotTurn {
		t.Fatalf("got %v, want ErrPlayerNotTurn", err)
	}
}

func TestPlayCardNotInHand(t *testing.T) {
	in := newTestInstance(t, true, nil)
	in.AddPlayer(&domain.Player{ID: "blue-1"})
	in.AddPlayer(&domain.Player{ID: "red-1"})
	err := in.PlayCard(context.Background(), "red-1", wire.PlayCardRequest{PlayerID: "red-1", CardID: "UNKNOWN"})
	if err != apperr.ErrCardNotInHand {
		t.Fatalf("got %v, want ErrCardNotInHand", err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", path, err)
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}
