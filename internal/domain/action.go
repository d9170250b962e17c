package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionType names a GameAction variant, matching the "type" tag used on
// the wire and in script return values.
type ActionType string

const (
	ActionDealDamage ActionType = "DealDamage"
	ActionHeal       ActionType = "Heal"
	ActionSummon     ActionType = "Summon"
)

// GameAction is the tagged union of mutations a script trigger can ask
// the game state to apply. Exactly one of the field groups is populated,
// selected by Type.
type GameAction struct {
	Type ActionType `cbor:"type"`

	// DealDamage / Heal
	Target string `cbor:"target,omitempty"`
	Amount uint32 `cbor:"amount,omitempty"`

	// Summon
	ID       string `cbor:"id,omitempty"`
	Position string `cbor:"position,omitempty"`
}

// ApplyActions applies each action in list, in order, against gs. actorID
// identifies the player whose card triggered this batch; Summon targets
// that player's own board. Application is not transactional: a later
// action observes the effects of earlier ones, and a failure on one
// action does not prevent the rest from applying.
func (gs *GameState) ApplyActions(list []GameAction, actorID string) []error {
	var errs []error
	for _, action := range list {
		if err := gs.applyOne(action, actorID); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (gs *GameState) applyOne(action GameAction, actorID string) error {
	switch action.Type {
	case ActionDealDamage:
		return gs.dealDamage(action.Target, int32(action.Amount))
	case ActionHeal:
		return gs.heal(action.Target, int32(action.Amount))
	case ActionSummon:
		return gs.summon(actorID, action.ID, action.Position)
	default:
		return fmt.Errorf("domain: unknown action type %q", action.Type)
	}
}

// findTarget resolves target as either a player id or a card id present
// in some player's hand, board, or graveyard view.
func (gs *GameState) findTarget(target string) (player *PlayerView, card *CardView) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	if pv, ok := gs.playerViews[target]; ok {
		return pv, nil
	}
	for _, pv := range gs.playerViews {
		for _, cv := range pv.CurrentHand {
			if cv != nil && cv.ID == target {
				return nil, cv
			}
		}
	}
	return nil, nil
}

func (gs *GameState) dealDamage(target string, amount int32) error {
	pv, cv := gs.findTarget(target)
	switch {
	case pv != nil:
		gs.mu.Lock()
		pv.Health -= amount
		if pv.Health < 0 {
			pv.Health = 0
		}
		gs.mu.Unlock()
		return nil
	case cv != nil:
		gs.mu.Lock()
		cv.Health -= amount
		if cv.Health < 0 {
			cv.Health = 0
		}
		gs.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("domain: DealDamage target %q not found", target)
	}
}

func (gs *GameState) heal(target string, amount int32) error {
	pv, cv := gs.findTarget(target)
	switch {
	case pv != nil:
		gs.mu.Lock()
		pv.Health += amount
		if pv.Health > maxPlayerHealth {
			pv.Health = maxPlayerHealth
		}
		gs.mu.Unlock()
		return nil
	case cv != nil:
		gs.mu.Lock()
		cv.Health += amount
		gs.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("domain: Heal target %q not found", target)
	}
}

// summon places a new CardView, derived from catalog id, into actorID's
// board at position ("creatures:2", "artifacts:0", "enchantments:1") or
// into their hand ("hand:4"), the latter decrementing deck size the way a
// draw would. An occupied slot is a silent no-op, matching the original
// default.
func (gs *GameState) summon(actorID, cardID, position string) error {
	lane, idx, err := parsePosition(position)
	if err != nil {
		return err
	}

	gs.mu.Lock()
	defer gs.mu.Unlock()

	pv, ok := gs.playerViews[actorID]
	if !ok {
		return fmt.Errorf("domain: summon actor %q not found", actorID)
	}

	if lane == "hand" {
		if idx < 0 || idx >= len(pv.CurrentHand) {
			return fmt.Errorf("domain: summon position %q out of range", position)
		}
		if pv.CurrentHand[idx] != nil {
			return nil
		}
		pv.CurrentHand[idx] = &CardView{ID: cardID, OwnerID: actorID, InHand: true}
		if pv.DeckSize > 0 {
			pv.DeckSize--
		}
		pv.recomputeHandSize()
		return nil
	}

	ref := &CardRef{ID: cardID, Amount: 1}
	switch lane {
	case "creatures":
		if idx < 0 || idx >= len(pv.Board.Creatures) {
			return fmt.Errorf("domain: summon position %q out of range", position)
		}
		if pv.Board.Creatures[idx] != nil {
			return nil
		}
		pv.Board.Creatures[idx] = ref
	case "artifacts":
		if idx < 0 || idx >= len(pv.Board.Artifacts) {
			return fmt.Errorf("domain: summon position %q out of range", position)
		}
		if pv.Board.Artifacts[idx] != nil {
			return nil
		}
		pv.Board.Artifacts[idx] = ref
	case "enchantments":
		if idx < 0 || idx >= len(pv.Board.Enchantments) {
			return fmt.Errorf("domain: summon position %q out of range", position)
		}
		if pv.Board.Enchantments[idx] != nil {
			return nil
		}
		pv.Board.Enchantments[idx] = ref
	default:
		return fmt.Errorf("domain: unknown board lane %q", lane)
	}
	return nil
}

func parsePosition(position string) (lane string, idx int, err error) {
	parts := strings.SplitN(position, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("domain: malformed position %q", position)
	}
	idx, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("domain: malformed position index in %q", position)
	}
	return parts[0], idx, nil
}
