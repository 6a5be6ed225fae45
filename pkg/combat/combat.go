// Package combat runs the initiative turn order stored on the campaign
// environment.
package combat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/simulation"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

var (
	ErrNoActiveCombat = errors.New("no active combat")
	ErrCombatActive   = errors.New("combat already active")
	ErrNoCombatants   = errors.New("combat needs at least one combatant")
)

const (
	LogCombat = "combat"

	// DefaultSecondsPerRound is used when a combat starts without one.
	DefaultSecondsPerRound = 6
)

// RoundHook is called once per round rollover, after round-based effects
// have ticked. Expired lists the effects removed by this rollover.
type RoundHook interface {
	RoundAdvanced(ctx context.Context, campaignID int64, round int, expired []simulation.ExpiredEffect) []campaign.Event
}

// TimeAdvancer moves the campaign clock for combat time.
type TimeAdvancer interface {
	AdvanceCombatTime(ctx context.Context, campaignID int64, minutes int) ([]campaign.Event, error)
}

type StartRequest struct {
	Combatants      []campaign.Combatant `json:"combatants"`
	AdvanceTime     bool                 `json:"advance_time"`
	SecondsPerRound int                  `json:"seconds_per_round,omitempty"`
}

// PatchRequest replaces the fields that are set.
type PatchRequest struct {
	Combatants      []campaign.Combatant `json:"combatants,omitempty"`
	AdvanceTime     *bool                `json:"advance_time,omitempty"`
	SecondsPerRound *int                 `json:"seconds_per_round,omitempty"`
}

type TurnResult struct {
	Combat        *campaign.CombatState `json:"combat"`
	RoundAdvanced bool                  `json:"round_advanced"`
	Events        []campaign.Event      `json:"events"`
}

type EndResult struct {
	Rounds int              `json:"rounds"`
	Events []campaign.Event `json:"events"`
}

type Tracker struct {
	store  storage.Storage
	log    storage.SessionLog
	hook   RoundHook
	clock  TimeAdvancer
	logger *slog.Logger
}

func NewTracker(store storage.Storage, log storage.SessionLog, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, log: log, logger: logger}
}

// SetHooks wires the rules engine and clock. Either may be nil.
func (t *Tracker) SetHooks(hook RoundHook, clock TimeAdvancer) {
	t.hook = hook
	t.clock = clock
}

// Sort orders combatants by initiative, highest first. Ties keep their
// input order.
func Sort(combatants []campaign.Combatant) []campaign.Combatant {
	out := slices.Clone(combatants)
	slices.SortStableFunc(out, func(a, b campaign.Combatant) int {
		return b.Initiative - a.Initiative
	})
	return out
}

// Step moves to the next turn and reports whether a new round began.
func Step(cs *campaign.CombatState) bool {
	cs.TurnIndex++
	if cs.TurnIndex < len(cs.Combatants) {
		return false
	}
	cs.TurnIndex = 0
	cs.Round++
	return true
}

// Carry adds one round of seconds to the carry buffer and returns the
// whole minutes it now holds.
func Carry(cs *campaign.CombatState) int {
	cs.AccumulatedSeconds += cs.SecondsPerRound
	minutes := cs.AccumulatedSeconds / 60
	cs.AccumulatedSeconds %= 60
	return minutes
}

func (t *Tracker) environment(ctx context.Context, campaignID int64) (*campaign.EnvironmentState, error) {
	env, err := t.store.GetEnvironment(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if env != nil {
		return env, nil
	}
	c, err := t.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, simulation.ErrCampaignNotFound
	}
	return campaign.NewEnvironment(campaignID, c.Config), nil
}

func active(env *campaign.EnvironmentState) bool {
	return env.Combat != nil && env.Combat.Active
}

func (t *Tracker) Start(ctx context.Context, campaignID int64, req StartRequest) (*campaign.CombatState, error) {
	if len(req.Combatants) == 0 {
		return nil, ErrNoCombatants
	}
	env, err := t.environment(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if active(env) {
		return nil, ErrCombatActive
	}
	spr := req.SecondsPerRound
	if spr <= 0 {
		spr = DefaultSecondsPerRound
	}
	env.Combat = &campaign.CombatState{
		Active:          true,
		Round:           1,
		TurnIndex:       0,
		Combatants:      Sort(req.Combatants),
		AdvanceTime:     req.AdvanceTime,
		SecondsPerRound: spr,
	}
	if err := t.store.SaveEnvironment(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}
	t.append(ctx, campaignID, fmt.Sprintf("Combat started with %d combatants", len(req.Combatants)))
	return env.Combat, nil
}

// NextTurn advances the turn pointer. On round rollover it ticks
// round-based effects, calls the round hook and converts combat seconds
// into game minutes. Hook and clock failures never undo the turn.
func (t *Tracker) NextTurn(ctx context.Context, campaignID int64) (*TurnResult, error) {
	env, err := t.environment(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !active(env) {
		return nil, ErrNoActiveCombat
	}
	cs := env.Combat
	rolled := Step(cs)
	minutes := 0
	if rolled && cs.AdvanceTime {
		minutes = Carry(cs)
	}
	if err := t.store.SaveEnvironment(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}

	res := &TurnResult{Combat: cs, RoundAdvanced: rolled, Events: []campaign.Event{}}
	if !rolled {
		return res, nil
	}

	msg := fmt.Sprintf("Round %d begins", cs.Round)
	res.Events = append(res.Events, campaign.Event{Type: campaign.EventRoundAdvanced, Message: msg})
	t.append(ctx, campaignID, msg)

	expired, events, err := t.tickRounds(ctx, campaignID)
	if err != nil {
		t.logger.Warn("Failed to tick round effects", "campaign_id", campaignID, "error", err)
	}
	res.Events = append(res.Events, events...)

	if t.hook != nil {
		res.Events = append(res.Events, t.hook.RoundAdvanced(ctx, campaignID, cs.Round, expired)...)
	}

	if minutes > 0 && t.clock != nil {
		evs, err := t.clock.AdvanceCombatTime(ctx, campaignID, minutes)
		if err != nil {
			t.logger.Warn("Failed to advance combat time", "campaign_id", campaignID, "minutes", minutes, "error", err)
		} else {
			res.Events = append(res.Events, evs...)
		}
	}

	// hooks may have changed the environment
	if latest, err := t.store.GetEnvironment(ctx, campaignID); err == nil && latest != nil && latest.Combat != nil {
		res.Combat = latest.Combat
	}
	return res, nil
}

func (t *Tracker) tickRounds(ctx context.Context, campaignID int64) ([]simulation.ExpiredEffect, []campaign.Event, error) {
	applied, err := t.store.ListAppliedEffects(ctx, campaignID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list applied effects: %w", err)
	}
	var expired []simulation.ExpiredEffect
	var events []campaign.Event
	for _, ae := range applied {
		if ae.RemainingRounds == nil {
			continue
		}
		remaining := *ae.RemainingRounds - 1
		if remaining > 0 {
			ae.RemainingRounds = &remaining
			if err := t.store.SaveAppliedEffect(ctx, ae); err != nil {
				return expired, events, fmt.Errorf("failed to save applied effect %d: %w", ae.ID, err)
			}
			continue
		}
		name := fmt.Sprintf("effect %d", ae.EffectID)
		if def, err := t.store.GetEffectDefinition(ctx, campaignID, ae.EffectID); err == nil && def != nil {
			name = def.Name
		}
		if err := t.store.DeleteAppliedEffect(ctx, campaignID, ae.ID); err != nil {
			return expired, events, fmt.Errorf("failed to delete applied effect %d: %w", ae.ID, err)
		}
		ev := simulation.ExpiredEvent(ae.CharacterID, name)
		events = append(events, ev)
		expired = append(expired, simulation.ExpiredEffect{CharacterID: ae.CharacterID, EffectName: name})
		if t.log != nil {
			if err := t.log.Append(ctx, campaignID, simulation.LogEffect, ev.Message); err != nil {
				t.logger.Warn("Failed to append session log", "campaign_id", campaignID, "error", err)
			}
		}
	}
	return expired, events, nil
}

// Patch replaces the combatant list and settings without moving the
// round or turn, unless the list shrank past the current turn.
func (t *Tracker) Patch(ctx context.Context, campaignID int64, req PatchRequest) (*campaign.CombatState, error) {
	env, err := t.environment(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !active(env) {
		return nil, ErrNoActiveCombat
	}
	if req.Combatants != nil && len(req.Combatants) == 0 {
		return nil, ErrNoCombatants
	}
	cs := env.Combat
	if req.Combatants != nil {
		cs.Combatants = Sort(req.Combatants)
		if cs.TurnIndex >= len(cs.Combatants) {
			cs.TurnIndex = 0
		}
	}
	if req.AdvanceTime != nil {
		cs.AdvanceTime = *req.AdvanceTime
	}
	if req.SecondsPerRound != nil && *req.SecondsPerRound > 0 {
		cs.SecondsPerRound = *req.SecondsPerRound
	}
	if err := t.store.SaveEnvironment(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}
	return cs, nil
}

// End discards the combat state. Only the final round count is logged.
func (t *Tracker) End(ctx context.Context, campaignID int64) (*EndResult, error) {
	env, err := t.environment(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !active(env) {
		return nil, ErrNoActiveCombat
	}
	rounds := env.Combat.Round
	env.Combat = nil
	if err := t.store.SaveEnvironment(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}
	msg := fmt.Sprintf("Combat ended after %d rounds", rounds)
	t.append(ctx, campaignID, msg)
	return &EndResult{
		Rounds: rounds,
		Events: []campaign.Event{{Type: campaign.EventCombatEnded, Message: msg}},
	}, nil
}

func (t *Tracker) append(ctx context.Context, campaignID int64, message string) {
	if t.log == nil {
		return
	}
	if err := t.log.Append(ctx, campaignID, LogCombat, message); err != nil {
		t.logger.Warn("Failed to append session log", "campaign_id", campaignID, "error", err)
	}
}
