package engine

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/jwebster45206/campaign-engine/pkg/attributes"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/combat"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/rules"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

const (
	LogEncounter = "encounter"

	PhaseStart = "start"
	PhaseEnd   = "end"
)

var initiativeDie = rules.Dice{Count: 1, Sides: 20}

type LootDrop struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

type EncounterOutcome struct {
	Outcome
	Loot    *LootDrop             `json:"loot,omitempty"`
	Spawned []*campaign.Character `json:"spawned,omitempty"`
	Removed []int64               `json:"removed,omitempty"`
	Combat  *campaign.CombatState `json:"combat,omitempty"`
}

func (e *Engine) encounter(ctx context.Context, campaignID, encounterID int64) (*campaign.EncounterDefinition, error) {
	enc, err := e.store.GetEncounter(ctx, campaignID, encounterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load encounter: %w", err)
	}
	if enc == nil {
		return nil, notFound("encounter %d", encounterID)
	}
	return enc, nil
}

// StartEncounter applies the encounter's environment overrides, rolls its
// loot and, when it starts combat, spawns its NPCs and rolls initiative
// for everyone. on_encounter fires with phase start.
func (e *Engine) StartEncounter(ctx context.Context, campaignID, encounterID int64) (*EncounterOutcome, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	enc, err := e.encounter(ctx, campaignID, encounterID)
	if err != nil {
		return nil, err
	}
	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, err
	}

	out := &EncounterOutcome{Outcome: *newOutcome()}
	ctx = withOutcome(ctx, &out.Outcome)
	out.Encounter = enc

	if o := enc.Overrides; o != nil {
		if o.Weather != "" && o.Weather != env.Weather {
			out.Events = append(out.Events, campaign.Event{
				Type: campaign.EventWeatherChanged, Message: fmt.Sprintf("Weather changed from %s to %s", env.Weather, o.Weather),
				From: env.Weather, To: o.Weather,
			})
			env.Weather = o.Weather
		}
		if o.Notes != "" {
			env.Notes = o.Notes
		}
	}
	id := enc.ID
	env.ActiveEncounterID = &id
	if err := e.store.SaveEnvironment(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}

	out.Loot = rollLoot(e.rng, enc.Loot)

	msg := "Encounter started: " + enc.Name
	out.Events = append(out.Events, campaign.Event{Type: campaign.EventEncounterStarted, Message: msg, EncounterID: &id})
	e.append(ctx, campaignID, LogEncounter, msg)

	if enc.StartsCombat {
		if env.Combat != nil && env.Combat.Active {
			e.logger.Info("Combat already active, encounter joins without new initiative", "encounter_id", enc.ID)
		} else if err := e.startEncounterCombat(ctx, campaignID, enc, out); err != nil {
			return nil, err
		}
	}

	e.fire(ctx, campaignID, rules.Trigger{
		Type:    campaign.TriggerEncounter,
		Context: map[string]any{rules.KeyEncounterID: enc.ID, rules.KeyPhase: PhaseStart},
	}, 0, &out.Outcome)

	if _, err := e.finish(ctx, c, &out.Outcome); err != nil {
		return nil, err
	}
	return out, nil
}

func rollLoot(src random.Source, table []campaign.LootEntry) *LootDrop {
	if len(table) == 0 {
		return nil
	}
	weights := make([]float64, len(table))
	for i, l := range table {
		weights[i] = l.Weight
	}
	idx := random.Weighted(src, weights)
	if idx < 0 {
		return nil
	}
	qty := table[idx].Quantity
	if qty <= 0 {
		qty = 1
	}
	return &LootDrop{Item: table[idx].Item, Quantity: qty}
}

func (e *Engine) startEncounterCombat(ctx context.Context, campaignID int64, enc *campaign.EncounterDefinition, out *EncounterOutcome) error {
	var fighters []*campaign.Character
	for _, spawn := range enc.NPCs {
		chars, err := e.spawn(ctx, campaignID, enc.ID, spawn)
		if err != nil {
			return err
		}
		for _, ch := range chars {
			fighters = append(fighters, ch)
			if ch.SpawnedByEncounterID != nil {
				out.Spawned = append(out.Spawned, ch)
			}
		}
	}
	pcs, err := e.store.ListCharacters(ctx, campaignID, storage.CharacterFilter{Type: campaign.CharacterPC})
	if err != nil {
		return fmt.Errorf("failed to list characters: %w", err)
	}
	fighters = append(fighters, pcs...)
	fighters = uniqueCharacters(fighters)
	if len(fighters) == 0 {
		return nil
	}

	combatants := make([]campaign.Combatant, 0, len(fighters))
	for _, ch := range fighters {
		init, err := e.rollInitiative(ctx, campaignID, ch)
		if err != nil {
			return err
		}
		combatants = append(combatants, campaign.Combatant{CharacterID: ch.ID, Initiative: init, Name: ch.Name})
	}

	cs, err := e.tracker.Start(ctx, campaignID, combat.StartRequest{
		Combatants:      combatants,
		AdvanceTime:     true,
		SecondsPerRound: combat.DefaultSecondsPerRound,
	})
	if err != nil {
		return translate(err)
	}
	out.Combat = cs
	out.Events = append(out.Events, campaign.Event{
		Type:    campaign.EventCombatStarted,
		Message: fmt.Sprintf("Combat started with %d combatants", len(cs.Combatants)),
	})
	return nil
}

// spawn resolves one spawn entry into characters. A referenced character
// fights itself and extra copies are spawned beside it; ad-hoc entries
// create new NPCs.
func (e *Engine) spawn(ctx context.Context, campaignID, encounterID int64, s campaign.EncounterSpawn) ([]*campaign.Character, error) {
	count := max(1, s.Count)
	var out []*campaign.Character

	template := &campaign.Character{CampaignID: campaignID, Name: s.Name, Type: campaign.CharacterNPC, Attributes: s.Attributes}
	first := 0
	if s.CharacterID != nil {
		ref, err := e.store.GetCharacter(ctx, campaignID, *s.CharacterID)
		if err != nil {
			return nil, fmt.Errorf("failed to load character: %w", err)
		}
		if ref == nil {
			return nil, notFound("character %d", *s.CharacterID)
		}
		out = append(out, ref)
		template = ref
		first = 1
	}
	baseName := template.Name
	if baseName == "" {
		baseName = "Unknown"
	}

	for i := first; i < count; i++ {
		name := baseName
		if count > 1 {
			name = fmt.Sprintf("%s %d", baseName, i+1)
		}
		encID := encounterID
		npc := &campaign.Character{
			CampaignID:           campaignID,
			Name:                 name,
			Type:                 campaign.CharacterNPC,
			Attributes:           maps.Clone(template.Attributes),
			MaxAttributes:        maps.Clone(template.MaxAttributes),
			SpawnedByEncounterID: &encID,
		}
		if err := e.store.SaveCharacter(ctx, npc); err != nil {
			return nil, fmt.Errorf("failed to spawn character: %w", err)
		}
		out = append(out, npc)
	}
	return out, nil
}

// uniqueCharacters drops repeated character ids, keeping the first.
func uniqueCharacters(chars []*campaign.Character) []*campaign.Character {
	seen := make(map[int64]bool, len(chars))
	out := chars[:0]
	for _, ch := range chars {
		if seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		out = append(out, ch)
	}
	return out
}

// rollInitiative rolls d20 plus the character's effective initiative.
func (e *Engine) rollInitiative(ctx context.Context, campaignID int64, ch *campaign.Character) (int, error) {
	roll, _ := initiativeDie.Roll(e.rng)
	sheet, err := e.resolver.Resolve(ctx, campaignID, ch.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve initiative: %w", err)
	}
	if sheet != nil {
		if bonus, ok := sheet.Value(attributes.KeyInitiative); ok {
			roll += int(math.Round(bonus))
		}
	}
	return roll, nil
}

// EndEncounter force-ends any active combat, deletes the characters the
// encounter spawned and fires on_encounter with phase end.
func (e *Engine) EndEncounter(ctx context.Context, campaignID, encounterID int64) (*EncounterOutcome, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	enc, err := e.encounter(ctx, campaignID, encounterID)
	if err != nil {
		return nil, err
	}
	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, err
	}

	out := &EncounterOutcome{Outcome: *newOutcome(), Removed: []int64{}}
	ctx = withOutcome(ctx, &out.Outcome)
	out.Encounter = enc

	if env.Combat != nil && env.Combat.Active {
		ended, err := e.tracker.End(ctx, campaignID)
		if err != nil {
			return nil, translate(err)
		}
		out.Events = append(out.Events, ended.Events...)
	}

	id := enc.ID
	spawned, err := e.store.ListCharacters(ctx, campaignID, storage.CharacterFilter{IncludeArchived: true, SpawnedByEncounterID: &id})
	if err != nil {
		return nil, fmt.Errorf("failed to list spawned characters: %w", err)
	}
	for _, ch := range spawned {
		if err := e.deleteCharacter(ctx, campaignID, ch.ID); err != nil {
			return nil, err
		}
		out.Removed = append(out.Removed, ch.ID)
	}

	// reload: ending combat saved the environment
	env, err = e.environment(ctx, c)
	if err != nil {
		return nil, err
	}
	if env.ActiveEncounterID != nil && *env.ActiveEncounterID == enc.ID {
		env.ActiveEncounterID = nil
		if err := e.store.SaveEnvironment(ctx, env); err != nil {
			return nil, fmt.Errorf("failed to save environment: %w", err)
		}
	}

	msg := "Encounter ended: " + enc.Name
	out.Events = append(out.Events, campaign.Event{Type: campaign.EventEncounterEnded, Message: msg, EncounterID: &id})
	e.append(ctx, campaignID, LogEncounter, msg)

	e.fire(ctx, campaignID, rules.Trigger{
		Type:    campaign.TriggerEncounter,
		Context: map[string]any{rules.KeyEncounterID: enc.ID, rules.KeyPhase: PhaseEnd},
	}, 0, &out.Outcome)

	if _, err := e.finish(ctx, c, &out.Outcome); err != nil {
		return nil, err
	}
	return out, nil
}

// deleteCharacter removes a character with its applied effects and items.
func (e *Engine) deleteCharacter(ctx context.Context, campaignID, characterID int64) error {
	effects, err := e.store.ListCharacterEffects(ctx, campaignID, characterID)
	if err != nil {
		return fmt.Errorf("failed to list effects: %w", err)
	}
	for _, ae := range effects {
		if err := e.store.DeleteAppliedEffect(ctx, campaignID, ae.ID); err != nil {
			return fmt.Errorf("failed to delete effect: %w", err)
		}
	}
	items, err := e.store.ListCharacterItems(ctx, campaignID, characterID)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}
	for _, it := range items {
		if err := e.store.DeleteCharacterItem(ctx, campaignID, it.ID); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
	}
	if err := e.store.DeleteCharacter(ctx, campaignID, characterID); err != nil {
		return fmt.Errorf("failed to delete character: %w", err)
	}
	return nil
}
