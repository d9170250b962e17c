package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"duelserver/internal/apperr"
	"duelserver/internal/domain"
	"duelserver/internal/ports"
)

// DeckClient implements ports.DeckPort against the deck service described
// in SPEC_FULL.md §6.
type DeckClient struct {
	baseURL string
	client  *http.Client
}

// NewDeckClient builds a DeckClient talking to baseURL.
func NewDeckClient(baseURL string, client *http.Client) *DeckClient {
	return &DeckClient{baseURL: baseURL, client: client}
}

type deckResponse struct {
	ID       string          `json:"id"`
	PlayerID string          `json:"playerId"`
	Name     string          `json:"name"`
	Cards    []cardRefPayload `json:"cards"`
}

type cardRefPayload struct {
	ID     string `json:"id"`
	Amount uint32 `json:"amount"`
}

// FetchDeck calls GET /api/deck/{id} without a bearer token. Used during
// InitServer, before any client has connected.
func (d *DeckClient) FetchDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	return d.fetchDeck(ctx, deckID, "")
}

// FetchDeckWithToken is the authenticated variant used during Connect,
// where the deck service expects the same bearer token as the auth call.
func (d *DeckClient) FetchDeckWithToken(ctx context.Context, deckID, token string) (domain.Deck, error) {
	return d.fetchDeck(ctx, deckID, token)
}

func (d *DeckClient) fetchDeck(ctx context.Context, deckID, token string) (domain.Deck, error) {
	req, err := newGet(ctx, fmt.Sprintf("%s/api/deck/%s", d.baseURL, deckID), token)
	if err != nil {
		return domain.Deck{}, err
	}

	var resp deckResponse
	err = doJSON(ctx, d.client, req, &resp, func(status int) error {
		if status == http.StatusNotFound {
			return apperr.ErrDeckNotFound
		}
		return apperr.ErrDeckInvalidFormat
	})
	if err != nil {
		return domain.Deck{}, err
	}

	refs := make([]domain.CardRef, 0, len(resp.Cards))
	for _, c := range resp.Cards {
		if c.ID == "" || c.Amount == 0 {
			return domain.Deck{}, apperr.ErrDeckInvalidFormat
		}
		refs = append(refs, domain.CardRef{ID: c.ID, Amount: c.Amount})
	}

	return domain.Deck{ID: resp.ID, PlayerID: resp.PlayerID, Name: resp.Name, Cards: refs}, nil
}

var _ ports.DeckPort = (*DeckClient)(nil)
