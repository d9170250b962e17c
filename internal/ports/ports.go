// Package ports declares the interfaces the game server uses to reach
// its three external services (auth, deck, card) without depending on
// any particular HTTP client implementation.
package ports

import (
	"context"

	"duelserver/internal/domain"
)

// PreloadedProfile is the profile the auth service's unauthenticated
// preload endpoint hands back for a roster entry during InitServer.
type PreloadedProfile struct {
	ID       string
	Username string
	Level    uint32
}

// Account is the bearer-token-authenticated profile returned by the
// account endpoint during the Connect handshake.
type Account struct {
	ID       string
	Level    uint32
	Username string
	IsBanned bool
}

// VerifiedIdentity is what the auth service's token-verification endpoint
// reports back during reconnection.
type VerifiedIdentity struct {
	PlayerID string
	Username string
	IsBanned bool
}

// AuthPort authenticates players and resolves their profiles.
type AuthPort interface {
	// PreloadProfile fetches the public profile for playerID. Called once
	// per roster entry during InitServer, unauthenticated.
	PreloadProfile(ctx context.Context, playerID string) (PreloadedProfile, error)

	// Account fetches the bearer-token-authenticated profile during
	// Connect.
	Account(ctx context.Context, token string) (Account, error)

	// Verify resolves the authenticated identity behind token during
	// Reconnect.
	Verify(ctx context.Context, token string) (VerifiedIdentity, error)
}

// DeckPort resolves a player's configured deck.
type DeckPort interface {
	// FetchDeck retrieves the deck identified by deckID, unauthenticated.
	// Used during InitServer, before any player has a live connection.
	FetchDeck(ctx context.Context, deckID string) (domain.Deck, error)

	// FetchDeckWithToken retrieves the deck identified by deckID using the
	// bearer token supplied by a connecting client. Used during the
	// Connect handshake, per SPEC_FULL.md §4.4.
	FetchDeckWithToken(ctx context.Context, deckID, token string) (domain.Deck, error)
}

// SelectedCards is the card service's response to a batch lookup: the
// cards that were found, plus any ids that could not be resolved.
type SelectedCards struct {
	Cards          []domain.Card
	CardsNotFound  []string
	InvalidCardIDs []string
}

// CardPort resolves full Card catalog records.
type CardPort interface {
	// FetchCard retrieves a single card by id.
	FetchCard(ctx context.Context, cardID string) (domain.Card, error)

	// FetchCards retrieves a batch of cards by CardRef. The card service
	// reports back any ids it could not resolve rather than failing
	// outright, so callers must inspect SelectedCards.CardsNotFound.
	FetchCards(ctx context.Context, refs []domain.CardRef) (SelectedCards, error)
}
