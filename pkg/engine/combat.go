package engine

import (
	"context"
	"fmt"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/combat"
	"github.com/jwebster45206/campaign-engine/pkg/rules"
	"github.com/jwebster45206/campaign-engine/pkg/simulation"
)

// roundHook fires effect expiry and on_round_advance at each rollover.
type roundHook struct{ e *Engine }

func (h roundHook) RoundAdvanced(ctx context.Context, campaignID int64, round int, expired []simulation.ExpiredEffect) []campaign.Event {
	out := outcomeFrom(ctx)
	if out == nil {
		out = newOutcome()
	}
	mark := len(out.Events)
	for _, x := range expired {
		h.e.fire(ctx, campaignID, rules.EffectChange(x.CharacterID, x.EffectName, rules.ChangeExpired), 0, out)
	}
	h.e.fire(ctx, campaignID, rules.Trigger{
		Type:    campaign.TriggerRoundAdvance,
		Context: map[string]any{rules.KeyRound: round},
	}, 0, out)
	events := append([]campaign.Event(nil), out.Events[mark:]...)
	out.Events = out.Events[:mark]
	return events
}

type CombatOutcome struct {
	Outcome
	Combat        *campaign.CombatState `json:"combat"`
	RoundAdvanced bool                  `json:"round_advanced,omitempty"`
	Rounds        int                   `json:"rounds,omitempty"`
}

// StartCombat begins combat with an explicit combatant list. Names are
// filled from the characters when missing.
func (e *Engine) StartCombat(ctx context.Context, campaignID int64, req combat.StartRequest) (*CombatOutcome, error) {
	if len(req.Combatants) == 0 {
		return nil, invalid("combat needs at least one combatant")
	}
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	for i, cb := range req.Combatants {
		ch, err := e.store.GetCharacter(ctx, campaignID, cb.CharacterID)
		if err != nil {
			return nil, fmt.Errorf("failed to load character: %w", err)
		}
		if ch == nil {
			return nil, notFound("character %d", cb.CharacterID)
		}
		if cb.Name == "" {
			req.Combatants[i].Name = ch.Name
		}
	}

	cs, err := e.tracker.Start(ctx, campaignID, req)
	if err != nil {
		return nil, translate(err)
	}
	out := &CombatOutcome{Outcome: *newOutcome(), Combat: cs}
	out.Events = append(out.Events, campaign.Event{
		Type:    campaign.EventCombatStarted,
		Message: fmt.Sprintf("Combat started with %d combatants", len(cs.Combatants)),
	})
	if _, err := e.finish(ctx, c, &out.Outcome); err != nil {
		return nil, err
	}
	return out, nil
}

// NextTurn advances the active combat by one turn.
func (e *Engine) NextTurn(ctx context.Context, campaignID int64) (*CombatOutcome, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out := &CombatOutcome{Outcome: *newOutcome()}
	ctx = withOutcome(ctx, &out.Outcome)

	turn, err := e.tracker.NextTurn(ctx, campaignID)
	if err != nil {
		return nil, translate(err)
	}
	out.Combat = turn.Combat
	out.RoundAdvanced = turn.RoundAdvanced
	out.Events = append(out.Events, turn.Events...)
	if _, err := e.finish(ctx, c, &out.Outcome); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) PatchCombat(ctx context.Context, campaignID int64, req combat.PatchRequest) (*CombatOutcome, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	cs, err := e.tracker.Patch(ctx, campaignID, req)
	if err != nil {
		return nil, translate(err)
	}
	out := &CombatOutcome{Outcome: *newOutcome(), Combat: cs}
	if _, err := e.finish(ctx, c, &out.Outcome); err != nil {
		return nil, err
	}
	return out, nil
}

// EndCombat discards the combat state.
func (e *Engine) EndCombat(ctx context.Context, campaignID int64) (*CombatOutcome, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	res, err := e.tracker.End(ctx, campaignID)
	if err != nil {
		return nil, translate(err)
	}
	out := &CombatOutcome{Outcome: *newOutcome(), Rounds: res.Rounds}
	out.Events = append(out.Events, res.Events...)
	if _, err := e.finish(ctx, c, &out.Outcome); err != nil {
		return nil, err
	}
	return out, nil
}
