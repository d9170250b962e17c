package script

import (
	lua "github.com/yuin/gopher-lua"

	"duelserver/internal/domain"
)

// Context is the snapshot handed into a single script invocation. It is
// built fresh for each call rather than sharing live game-state references,
// so the VM never observes a partially-applied mutation from a concurrent
// caller. Field names mirror SPEC_FULL.md §4.6's LuaContext.
type Context struct {
	Event      string
	ActionName string

	ActorID   string
	ActorView domain.CardView

	TargetID   string
	TargetView *domain.CardView

	// PlayerTurn carries the turn owner as the simple "Red"/"Blue" colour
	// string alongside the structured GameState.Turn counter, preserved
	// from the original's LuaContext::player_turn for scripts that want
	// the colour directly rather than re-deriving it from the round count.
	PlayerTurn string

	GameState domain.PrivateGameStateView
}

// toTable marshals c into the native Lua table the VM receives as its sole
// argument, in place of the "pass a reference and hope nothing races" shape
// the embedding host explicitly rejects.
func (c Context) toTable(L *lua.LState) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("event", lua.LString(c.Event))
	t.RawSetString("action_name", lua.LString(c.ActionName))
	t.RawSetString("actor_id", lua.LString(c.ActorID))
	t.RawSetString("actor_view", cardViewTable(L, c.ActorView))
	if c.TargetID != "" {
		t.RawSetString("target_id", lua.LString(c.TargetID))
	}
	if c.TargetView != nil {
		t.RawSetString("target_view", cardViewTable(L, *c.TargetView))
	}
	t.RawSetString("player_turn", lua.LString(c.PlayerTurn))
	t.RawSetString("game_state", gameStateTable(L, c.GameState))
	return t
}

func cardViewTable(L *lua.LState, cv domain.CardView) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(cv.ID))
	t.RawSetString("name", lua.LString(cv.Name))
	t.RawSetString("attack", lua.LNumber(cv.Attack))
	t.RawSetString("health", lua.LNumber(cv.Health))
	t.RawSetString("play_cost", lua.LNumber(cv.PlayCost))
	t.RawSetString("owner_id", lua.LString(cv.OwnerID))
	t.RawSetString("position", lua.LString(cv.Position))
	t.RawSetString("in_deck", lua.LBool(cv.InDeck))
	t.RawSetString("in_hand", lua.LBool(cv.InHand))
	t.RawSetString("in_board", lua.LBool(cv.InBoard))
	t.RawSetString("in_graveyard", lua.LBool(cv.InGraveyard))
	t.RawSetString("is_exhausted", lua.LBool(cv.IsExhausted))

	effects := L.NewTable()
	for _, e := range cv.Effects {
		effects.Append(lua.LString(e))
	}
	t.RawSetString("effects", effects)
	return t
}

func playerViewTable(L *lua.LState, pv domain.PlayerView) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(pv.ID))
	t.RawSetString("health", lua.LNumber(pv.Health))
	t.RawSetString("mana", lua.LNumber(pv.Mana))
	t.RawSetString("hand_size", lua.LNumber(pv.HandSize))
	t.RawSetString("deck_size", lua.LNumber(pv.DeckSize))
	t.RawSetString("graveyard_size", lua.LNumber(pv.GraveyardSize))

	hand := L.NewTable()
	for i, cv := range pv.CurrentHand {
		if cv != nil {
			hand.RawSetInt(i+1, cardViewTable(L, *cv))
		}
	}
	t.RawSetString("current_hand", hand)
	return t
}

func gameStateTable(L *lua.LState, gs domain.PrivateGameStateView) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("turn", lua.LNumber(gs.Turn))
	t.RawSetString("red_player", playerViewTable(L, gs.RedPlayer))
	t.RawSetString("blue_player", playerViewTable(L, gs.BluePlayer))
	return t
}

// parseGameActions decodes a script's return value as an ordered sequence
// of domain.GameAction. A nil return (a function that returns nothing)
// decodes as an empty list; any other shape than a table-of-tables is
// rejected rather than loosely coerced, matching the "reject unknowns"
// guidance in SPEC_FULL.md's scripting re-architecture notes.
func parseGameActions(v lua.LValue) ([]domain.GameAction, error) {
	if v == lua.LNil {
		return nil, nil
	}
	table, ok := v.(*lua.LTable)
	if !ok {
		return nil, errInvalidGameActions("return value is not a table")
	}

	var actions []domain.GameAction
	var outerErr error
	table.ForEach(func(_, entry lua.LValue) {
		if outerErr != nil {
			return
		}
		actionTable, ok := entry.(*lua.LTable)
		if !ok {
			outerErr = errInvalidGameActions("action entry is not a table")
			return
		}
		action, err := parseGameAction(actionTable)
		if err != nil {
			outerErr = err
			return
		}
		actions = append(actions, action)
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return actions, nil
}

func parseGameAction(t *lua.LTable) (domain.GameAction, error) {
	typeField, ok := t.RawGetString("type").(lua.LString)
	if !ok {
		return domain.GameAction{}, errInvalidGameActions("action missing string \"type\" field")
	}

	action := domain.GameAction{Type: domain.ActionType(typeField)}
	switch action.Type {
	case domain.ActionDealDamage, domain.ActionHeal:
		action.Target = luaString(t, "target")
		action.Amount = luaUint32(t, "amount")
	case domain.ActionSummon:
		action.ID = luaString(t, "id")
		action.Position = luaString(t, "position")
	default:
		return domain.GameAction{}, errInvalidGameActions("unknown action type " + string(typeField))
	}
	return action, nil
}

func luaString(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func luaUint32(t *lua.LTable, key string) uint32 {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return uint32(n)
	}
	return 0
}
