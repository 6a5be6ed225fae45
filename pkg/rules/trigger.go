package rules

import (
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/calendar"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

// Trigger context keys.
const (
	KeyRestType    = "rest_type"
	KeyEffectName  = "effect_name"
	KeyChange      = "change"
	KeyLocationID  = "location_id"
	KeyEncounterID = "encounter_id"
	KeyPhase       = "phase"
	KeyAttribute   = "attribute"
	KeyBefore      = "before"
	KeyAfter       = "after"
	KeyCharacterID = "character_id"
	KeyRound       = "round"
)

// Effect change kinds carried under KeyChange.
const (
	ChangeApplied = "applied"
	ChangeRemoved = "removed"
	ChangeExpired = "expired"
)

const (
	DirectionFalling = "falling"
	DirectionRising  = "rising"
)

// Trigger is one event entering the engine.
type Trigger struct {
	Type    campaign.TriggerType `json:"trigger_type"`
	Context map[string]any       `json:"context,omitempty"`

	// Before and After bound the clock movement checked by on_schedule.
	Before *campaign.GameTime `json:"-"`
	After  *campaign.GameTime `json:"-"`

	// CharacterID narrows character targets to a single character.
	CharacterID *int64 `json:"-"`
}

func (t Trigger) str(key string) string {
	if v, ok := t.Context[key].(string); ok {
		return v
	}
	return ""
}

func (t Trigger) num(key string) (float64, bool) {
	v, ok := t.Context[key]
	if !ok {
		return 0, false
	}
	return campaign.ToFloat(v)
}

// EffectChange builds the on_effect_change trigger for one character.
func EffectChange(characterID int64, effectName, change string) Trigger {
	id := characterID
	return Trigger{
		Type: campaign.TriggerEffectChange,
		Context: map[string]any{
			KeyEffectName:  effectName,
			KeyChange:      change,
			KeyCharacterID: characterID,
		},
		CharacterID: &id,
	}
}

// Threshold builds the on_threshold trigger for an attribute change.
func Threshold(characterID int64, attribute string, before, after float64) Trigger {
	id := characterID
	return Trigger{
		Type: campaign.TriggerThreshold,
		Context: map[string]any{
			KeyAttribute:   attribute,
			KeyBefore:      before,
			KeyAfter:       after,
			KeyCharacterID: characterID,
		},
		CharacterID: &id,
	}
}

// Crosses reports whether before→after crosses threshold in direction.
// An empty direction accepts either.
func Crosses(before, after, threshold float64, direction string) bool {
	falling := before > threshold && after <= threshold
	rising := before < threshold && after >= threshold
	switch strings.ToLower(direction) {
	case DirectionFalling:
		return falling
	case DirectionRising:
		return rising
	}
	return falling || rising
}

// Matches applies a rule's trigger_config filters to a trigger of the
// same type.
func Matches(rule *campaign.Rule, t Trigger, cal campaign.Calendar) bool {
	tc := rule.TriggerConfig
	switch t.Type {
	case campaign.TriggerRest:
		return tc.RestType == "" || strings.EqualFold(tc.RestType, t.str(KeyRestType))

	case campaign.TriggerEffectChange:
		if tc.EffectName != "" && !strings.EqualFold(tc.EffectName, t.str(KeyEffectName)) {
			return false
		}
		return tc.Change == "" || strings.EqualFold(tc.Change, t.str(KeyChange))

	case campaign.TriggerLocationChange:
		if tc.LocationID == nil {
			return true
		}
		id, ok := t.num(KeyLocationID)
		return ok && int64(id) == *tc.LocationID

	case campaign.TriggerEncounter:
		if tc.EncounterID != nil {
			id, ok := t.num(KeyEncounterID)
			if !ok || int64(id) != *tc.EncounterID {
				return false
			}
		}
		return tc.Phase == "" || strings.EqualFold(tc.Phase, t.str(KeyPhase))

	case campaign.TriggerThreshold:
		if tc.Threshold == nil {
			return false
		}
		if tc.Attribute != "" && !strings.EqualFold(tc.Attribute, t.str(KeyAttribute)) {
			return false
		}
		before, ok1 := t.num(KeyBefore)
		after, ok2 := t.num(KeyAfter)
		return ok1 && ok2 && Crosses(before, after, *tc.Threshold, tc.Direction)

	case campaign.TriggerSchedule:
		if t.Before == nil || t.After == nil {
			return false
		}
		return calendar.Crossed(calendar.ScheduleFrom(tc), *t.Before, *t.After, cal)
	}
	return true
}
