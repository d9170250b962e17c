package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"duelserver/internal/domain"
	"duelserver/internal/game"
	"duelserver/internal/ports"
	"duelserver/internal/script"
	"duelserver/internal/session"
	"duelserver/internal/wire"
)

type fakeAuth struct {
	accounts  map[string]ports.Account // keyed by token
	verified  map[string]ports.VerifiedIdentity
	preloaded map[string]ports.PreloadedProfile
}

func (f *fakeAuth) PreloadProfile(ctx context.Context, playerID string) (ports.PreloadedProfile, error) {
	return f.preloaded[playerID], nil
}

func (f *fakeAuth) Account(ctx context.Context, token string) (ports.Account, error) {
	return f.accounts[token], nil
}

func (f *fakeAuth) Verify(ctx context.Context, token string) (ports.VerifiedIdentity, error) {
	return f.verified[token], nil
}

type fakeDeck struct {
	decks       map[string]domain.Deck
	failDeckIDs map[string]bool
}

func (f *fakeDeck) FetchDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	if f.failDeckIDs[deckID] {
		return domain.Deck{}, errors.New("deck not found")
	}
	return f.decks[deckID], nil
}

func (f *fakeDeck) FetchDeckWithToken(ctx context.Context, deckID, token string) (domain.Deck, error) {
	if f.failDeckIDs[deckID] {
		return domain.Deck{}, errors.New("deck not found")
	}
	return f.decks[deckID], nil
}

type fakeCards struct {
	cards map[string]domain.Card
}

func (f *fakeCards) FetchCard(ctx context.Context, cardID string) (domain.Card, error) {
	return f.cards[cardID], nil
}

func (f *fakeCards) FetchCards(ctx context.Context, refs []domain.CardRef) (ports.SelectedCards, error) {
	out := ports.SelectedCards{}
	for _, ref := range refs {
		if c, ok := f.cards[ref.ID]; ok {
			out.Cards = append(out.Cards, c)
		} else {
			out.CardsNotFound = append(out.CardsNotFound, ref.ID)
		}
	}
	return out, nil
}

func newTestScriptHost(t *testing.T) *script.Host {
	t.Helper()
	h := script.NewHost(zap.NewNop())
	t.Cleanup(h.Close)
	return h
}

func TestUninitializedServerAwaitInitializationBuildsInstance(t *testing.T) {
	auth := &fakeAuth{
		preloaded: map[string]ports.PreloadedProfile{
			"p1": {ID: "p1", Username: "alice"},
			"p2": {ID: "p2", Username: "bob"},
		},
	}
	deck := &fakeDeck{decks: map[string]domain.Deck{
		"d1": {ID: "d1", Cards: []domain.CardRef{{ID: "c1", Amount: 1}}},
		"d2": {ID: "d2", Cards: []domain.CardRef{{ID: "c1", Amount: 1}}},
	}}
	cards := &fakeCards{cards: map[string]domain.Card{"c1": {ID: "c1", Name: "Spark"}}}

	u, err := NewUninitializedServer("127.0.0.1:0", auth, deck, cards, newTestScriptHost(t), 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewUninitializedServer: %v", err)
	}
	t.Cleanup(func() { u.listener.Close() })
	addr := u.listener.Addr().String()

	resultCh := make(chan *ServerInstance, 1)
	errCh := make(chan error, 1)
	go func() {
		inst, err := u.AwaitInitialization(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- inst
	}()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.InitServerRequest{
		MatchID:   "m1",
		MatchType: "standard",
		Players: []wire.InitServerPlayer{
			{ID: "p1", DeckID: "d1"},
			{ID: "p2", DeckID: "d2"},
		},
	}
	pkt, err := wire.NewCBOR(wire.InitServer, req)
	if err != nil {
		t.Fatalf("NewCBOR: %v", err)
	}
	if _, err := conn.Write(pkt.Wrap()); err != nil {
		t.Fatalf("write init request: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("AwaitInitialization returned error: %v", err)
	case inst := <-resultCh:
		if inst.instance.Player("p1") == nil || inst.instance.Player("p2") == nil {
			t.Fatal("expected both roster players registered")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for initialization")
	}
}

// newTestServerInstance builds a ServerInstance directly, bypassing
// UninitializedServer, with a roster of one already-registered player.
func newTestServerInstance(t *testing.T, auth ports.AuthPort) (*ServerInstance, string) {
	t.Helper()
	return newTestServerInstanceWithDeck(t, auth, &fakeDeck{decks: map[string]domain.Deck{}})
}

func newTestServerInstanceWithDeck(t *testing.T, auth ports.AuthPort, deck ports.DeckPort) (*ServerInstance, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	host := newTestScriptHost(t)
	state := domain.NewGameState(true)
	inst := game.New(state, host, &fakeCards{cards: map[string]domain.Card{}}, zap.NewNop())
	inst.AddPlayer(&domain.Player{ID: "p1", Username: "alice"})

	registry := session.NewRegistry()
	srv := &ServerInstance{
		listener:          listener,
		instance:          inst,
		registry:          registry,
		dispatcher:        newDispatcher(inst, registry, zap.NewNop()),
		auth:              auth,
		deck:              deck,
		broadcastInterval: 50 * time.Millisecond,
		logger:            zap.NewNop(),
	}
	return srv, listener.Addr().String()
}

func TestServerInstanceRejectsConnectForUnknownPlayer(t *testing.T) {
	auth := &fakeAuth{accounts: map[string]ports.Account{
		"tok-ghost": {ID: "ghost", Username: "ghost"},
	}}
	srv, addr := newTestServerInstance(t, auth)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Listen(ctx)
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.ConnectionRequest{PlayerID: "ghost", AuthToken: "tok-ghost"}
	pkt, _ := wire.NewCBOR(wire.Connect, req)
	if _, err := conn.Write(pkt.Wrap()); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadFrom(conn)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if resp.Header.Type != wire.FailedToConnectPlayer {
		t.Fatalf("got type %v, want FailedToConnectPlayer", resp.Header.Type)
	}
}

func TestServerInstanceConnectSucceedsForRosterPlayer(t *testing.T) {
	auth := &fakeAuth{accounts: map[string]ports.Account{
		"tok-p1": {ID: "p1", Username: "alice"},
	}}
	srv, addr := newTestServerInstance(t, auth)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Listen(ctx)
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.ConnectionRequest{PlayerID: "p1", AuthToken: "tok-p1"}
	pkt, _ := wire.NewCBOR(wire.Connect, req)
	if _, err := conn.Write(pkt.Wrap()); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadFrom(conn)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if resp.Header.Type != wire.GameState {
		t.Fatalf("got type %v, want GameState broadcast", resp.Header.Type)
	}
}

func TestServerInstanceRejectsConnectWhenDeckFetchFails(t *testing.T) {
	auth := &fakeAuth{accounts: map[string]ports.Account{
		"tok-p1": {ID: "p1", Username: "alice"},
	}}
	deck := &fakeDeck{
		decks:       map[string]domain.Deck{},
		failDeckIDs: map[string]bool{"d1": true},
	}
	srv, addr := newTestServerInstanceWithDeck(t, auth, deck)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Listen(ctx)
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := wire.ConnectionRequest{PlayerID: "p1", AuthToken: "tok-p1", CurrentDeckID: "d1"}
	pkt, _ := wire.NewCBOR(wire.Connect, req)
	if _, err := conn.Write(pkt.Wrap()); err != nil {
		t.Fatalf("write connect: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadFrom(conn)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if resp.Header.Type != wire.FailedToConnectPlayer {
		t.Fatalf("got type %v, want FailedToConnectPlayer", resp.Header.Type)
	}
}
