package attributes

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jwebster45206/d20"
)

// Attribute keys that map onto the d20 stat block.
const (
	KeyHP         = "hp"
	KeyAC         = "ac"
	KeyInitiative = "initiative"
)

// StatBlock is the serializable view of a d20 actor built from a sheet.
type StatBlock struct {
	HP         int            `json:"hp"`
	MaxHP      int            `json:"max_hp"`
	AC         int            `json:"ac"`
	Attributes map[string]int `json:"attributes,omitempty"`
	Modifiers  map[string]int `json:"combat_modifiers,omitempty"`
}

// Actor builds a d20 actor from effective values. Every effect and item
// modifier becomes a named combat modifier.
func (s *Sheet) Actor() (*d20.Actor, error) {
	if s == nil || s.Character == nil {
		return nil, fmt.Errorf("sheet cannot be nil")
	}

	hp := roundInt(s.Effective[KeyHP])
	maxHP := hp
	if v, ok := s.Character.MaxAttributes[KeyHP]; ok {
		if f, ok := toNumber(v); ok {
			maxHP = roundInt(f)
		}
	}
	if maxHP < hp {
		maxHP = hp
	}
	if maxHP <= 0 {
		maxHP = 1
	}

	attrs := make(map[string]int, len(s.Effective))
	for k, v := range s.Effective {
		if k == KeyHP || k == KeyAC {
			continue
		}
		attrs[k] = roundInt(v)
	}

	mods := make(map[string]int)
	for _, e := range s.Effects {
		for _, m := range e.Modifiers {
			mods[modifierReason(e.Name, m.Attribute)] += roundInt(m.Delta)
		}
	}
	for _, it := range s.Items {
		for _, m := range it.Modifiers {
			mods[modifierReason(it.Name, m.Attribute)] += roundInt(m.Delta)
		}
	}

	actor, err := d20.NewActor(s.Character.Name).
		WithHP(maxHP).
		WithAC(roundInt(s.Effective[KeyAC])).
		WithAttributes(attrs).
		WithCombatModifiers(mods).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}

	if hp != maxHP && hp > 0 {
		if err := actor.SetHP(hp); err != nil {
			return nil, fmt.Errorf("failed to set HP: %w", err)
		}
	}
	return actor, nil
}

// NewStatBlock reads an actor back into its serializable form.
func NewStatBlock(actor *d20.Actor, keys []string) StatBlock {
	sb := StatBlock{
		HP:         actor.HP(),
		MaxHP:      actor.MaxHP(),
		AC:         actor.AC(),
		Attributes: make(map[string]int),
		Modifiers:  make(map[string]int),
	}
	for _, k := range keys {
		if v, ok := actor.Attribute(k); ok {
			sb.Attributes[k] = v
		}
	}
	for _, mod := range actor.GetCombatModifiers() {
		sb.Modifiers[mod.Reason] = mod.Value
	}
	return sb
}

// StatBlock builds the sheet's actor and returns its stat block.
func (s *Sheet) StatBlock() (StatBlock, error) {
	actor, err := s.Actor()
	if err != nil {
		return StatBlock{}, err
	}
	keys := make([]string, 0, len(s.Effective))
	for k := range s.Effective {
		if k != KeyHP && k != KeyAC {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return NewStatBlock(actor, keys), nil
}

// modifierReason names a combat modifier. d20 stores reasons lowercased,
// so keys are built that way to stay stable across a round trip.
func modifierReason(source, attribute string) string {
	return strings.ToLower(fmt.Sprintf("%s (%s)", source, attribute))
}

func roundInt(f float64) int {
	return int(math.Round(f))
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
