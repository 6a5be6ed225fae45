// Package attributes computes effective character attributes: base values
// plus every applied-effect modifier, then every owned-item modifier.
package attributes

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

// Store is the read surface the resolver needs.
type Store interface {
	GetCharacter(ctx context.Context, campaignID, id int64) (*campaign.Character, error)
	ListCharacterEffects(ctx context.Context, campaignID, characterID int64) ([]*campaign.AppliedEffect, error)
	GetEffectDefinition(ctx context.Context, campaignID, id int64) (*campaign.StatusEffectDefinition, error)
	ListCharacterItems(ctx context.Context, campaignID, characterID int64) ([]*campaign.CharacterItem, error)
	GetItemDefinition(ctx context.Context, campaignID, id int64) (*campaign.ItemDefinition, error)
}

// Sheet is the resolved attribute view of one character.
type Sheet struct {
	Character *campaign.Character `json:"character"`
	Base      map[string]float64  `json:"base"`
	Effective map[string]float64  `json:"effective"`
	Effects   []ActiveEffect      `json:"effects"`
	Items     []HeldItem          `json:"items"`
}

type ActiveEffect struct {
	AppliedID       int64                 `json:"applied_id"`
	EffectID        int64                 `json:"effect_id"`
	Name            string                `json:"name"`
	Tags            []string              `json:"tags,omitempty"`
	Modifiers       []campaign.Modifier   `json:"modifiers,omitempty"`
	DurationType    campaign.DurationType `json:"duration_type"`
	DurationValue   float64               `json:"duration_value,omitempty"`
	RemainingRounds *int                  `json:"remaining_rounds,omitempty"`
	RemainingHours  *float64              `json:"remaining_hours,omitempty"`
}

type HeldItem struct {
	CharacterItemID int64               `json:"character_item_id"`
	ItemID          int64               `json:"item_id"`
	Name            string              `json:"name"`
	Quantity        int                 `json:"quantity"`
	Stackable       bool                `json:"stackable"`
	Modifiers       []campaign.Modifier `json:"modifiers,omitempty"`
}

// Resolver reads current store state on every call; nothing is cached.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the sheet of a character, or nil when it does not exist.
// Effects and items whose definitions are missing contribute nothing.
func (r *Resolver) Resolve(ctx context.Context, campaignID, characterID int64) (*Sheet, error) {
	char, err := r.store.GetCharacter(ctx, campaignID, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load character %d: %w", characterID, err)
	}
	if char == nil {
		return nil, nil
	}

	sheet := &Sheet{
		Character: char,
		Base:      make(map[string]float64),
		Effects:   []ActiveEffect{},
		Items:     []HeldItem{},
	}
	for k, v := range char.Attributes {
		if _, isString := v.(string); isString {
			continue
		}
		if f, ok := campaign.ToFloat(v); ok {
			sheet.Base[k] = f
		}
	}
	sheet.Effective = maps.Clone(sheet.Base)

	applied, err := r.store.ListCharacterEffects(ctx, campaignID, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list effects: %w", err)
	}
	for _, ae := range applied {
		def, err := r.store.GetEffectDefinition(ctx, campaignID, ae.EffectID)
		if err != nil {
			return nil, fmt.Errorf("failed to load effect definition %d: %w", ae.EffectID, err)
		}
		if def == nil {
			continue
		}
		sheet.Effects = append(sheet.Effects, ActiveEffect{
			AppliedID:       ae.ID,
			EffectID:        def.ID,
			Name:            def.Name,
			Tags:            def.Tags,
			Modifiers:       def.Modifiers,
			DurationType:    def.DurationType,
			DurationValue:   def.DurationValue,
			RemainingRounds: ae.RemainingRounds,
			RemainingHours:  ae.RemainingHours,
		})
		apply(sheet.Effective, def.Modifiers)
	}

	owned, err := r.store.ListCharacterItems(ctx, campaignID, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	for _, ci := range owned {
		def, err := r.store.GetItemDefinition(ctx, campaignID, ci.ItemID)
		if err != nil {
			return nil, fmt.Errorf("failed to load item definition %d: %w", ci.ItemID, err)
		}
		if def == nil {
			continue
		}
		sheet.Items = append(sheet.Items, HeldItem{
			CharacterItemID: ci.ID,
			ItemID:          def.ID,
			Name:            def.Name,
			Quantity:        ci.Quantity,
			Stackable:       def.Stackable,
			Modifiers:       def.Modifiers,
		})
		apply(sheet.Effective, def.Modifiers)
	}

	return sheet, nil
}

// apply adds modifier deltas; attributes absent from the base start at 0.
func apply(effective map[string]float64, mods []campaign.Modifier) {
	for _, m := range mods {
		effective[m.Attribute] += m.Delta
	}
}

// Value returns an effective attribute.
func (s *Sheet) Value(attr string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Effective[attr]
	return v, ok
}

// Effect finds an active effect by name.
func (s *Sheet) Effect(name string) (ActiveEffect, bool) {
	if s == nil {
		return ActiveEffect{}, false
	}
	for _, e := range s.Effects {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return ActiveEffect{}, false
}

// ItemQuantity totals the quantity held of an item by name.
func (s *Sheet) ItemQuantity(name string) int {
	if s == nil {
		return 0
	}
	total := 0
	for _, it := range s.Items {
		if strings.EqualFold(it.Name, name) {
			total += it.Quantity
		}
	}
	return total
}
