package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"duelserver/internal/apperr"
	"duelserver/internal/domain"
	"duelserver/internal/ports"
)

// CardClient implements ports.CardPort against the card catalog service
// described in SPEC_FULL.md §6.
type CardClient struct {
	baseURL string
	client  *http.Client
}

// NewCardClient builds a CardClient talking to baseURL.
func NewCardClient(baseURL string, client *http.Client) *CardClient {
	return &CardClient{baseURL: baseURL, client: client}
}

type cardPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PlayCost    uint32 `json:"play_cost"`
	Attack      uint32 `json:"attack"`
	Health      uint32 `json:"health"`
	Rarity      uint16 `json:"rarity"`

	OnPlay       []string `json:"on_play"`
	OnDraw       []string `json:"on_draw"`
	OnAttack     []string `json:"on_attack"`
	OnHit        []string `json:"on_hit"`
	OnTurnStart  []string `json:"on_turn_start"`
	OnTurnEnd    []string `json:"on_turn_end"`
	OnDeath      []string `json:"on_death"`
	OnAllyDeath  []string `json:"on_ally_death"`
	OnEnemyDeath []string `json:"on_enemy_death"`
}

func (p cardPayload) toDomain() domain.Card {
	return domain.Card{
		ID: p.ID, Name: p.Name, Description: p.Description,
		PlayCost: p.PlayCost, Attack: p.Attack, Health: p.Health, Rarity: p.Rarity,
		OnPlay: p.OnPlay, OnDraw: p.OnDraw, OnAttack: p.OnAttack, OnHit: p.OnHit,
		OnTurnStart: p.OnTurnStart, OnTurnEnd: p.OnTurnEnd, OnDeath: p.OnDeath,
		OnAllyDeath: p.OnAllyDeath, OnEnemyDeath: p.OnEnemyDeath,
	}
}

// FetchCard calls GET /api/card/{id}, unauthenticated.
func (c *CardClient) FetchCard(ctx context.Context, cardID string) (domain.Card, error) {
	req, err := newGet(ctx, fmt.Sprintf("%s/api/card/%s", c.baseURL, cardID), "")
	if err != nil {
		return domain.Card{}, err
	}

	var payload cardPayload
	err = doJSON(ctx, c.client, req, &payload, func(status int) error {
		if status == http.StatusNotFound {
			return apperr.ErrCardNotFound
		}
		return apperr.ErrCardFetchUnexpected
	})
	if err != nil {
		return domain.Card{}, err
	}
	return payload.toDomain(), nil
}

type selectedCardsRequest struct {
	CardIDs []string `json:"cardIds"`
}

type selectedCardsResponse struct {
	Cards            []cardPayload `json:"cards"`
	InvalidCardGUID  []string      `json:"invalidCardGuid"`
	CardsNotFound    []string      `json:"cardsNotFound"`
}

// FetchCards calls POST /api/card/selected with the batch of card ids
// referenced by refs. Unresolved ids come back in the response rather than
// failing the whole call, per SPEC_FULL.md §6.
func (c *CardClient) FetchCards(ctx context.Context, refs []domain.CardRef) (ports.SelectedCards, error) {
	ids := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if !seen[ref.ID] {
			seen[ref.ID] = true
			ids = append(ids, ref.ID)
		}
	}

	body, err := json.Marshal(selectedCardsRequest{CardIDs: ids})
	if err != nil {
		return ports.SelectedCards{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/card/selected", bytes.NewReader(body))
	if err != nil {
		return ports.SelectedCards{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp selectedCardsResponse
	err = doJSON(ctx, c.client, req, &resp, func(status int) error {
		return apperr.ErrCardFetchUnexpected
	})
	if err != nil {
		return ports.SelectedCards{}, err
	}

	cards := make([]domain.Card, 0, len(resp.Cards))
	for _, p := range resp.Cards {
		cards = append(cards, p.toDomain())
	}
	return ports.SelectedCards{
		Cards:          cards,
		CardsNotFound:  resp.CardsNotFound,
		InvalidCardIDs: resp.InvalidCardGUID,
	}, nil
}

var _ ports.CardPort = (*CardClient)(nil)
