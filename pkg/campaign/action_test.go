package campaign

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionList_Unmarshal(t *testing.T) {
	raw := `[
		{"type": "apply_effect", "effect_name": "Poisoned", "duration": 3},
		{"type": "modify_attribute", "attribute": "hp", "delta": -2},
		{"type": "advance_time", "hours": 1, "minutes": 30},
		{"type": "summon_dragon"}
	]`

	var list ActionList
	require.NoError(t, json.Unmarshal([]byte(raw), &list))
	require.Len(t, list, 4)

	apply, ok := list[0].(ApplyEffect)
	require.True(t, ok)
	assert.Equal(t, "Poisoned", apply.EffectName)
	require.NotNil(t, apply.Duration)
	assert.Equal(t, 3.0, *apply.Duration)

	assert.Equal(t, ModifyAttribute{Attribute: "hp", Delta: -2}, list[1])
	assert.Equal(t, AdvanceTime{Hours: 1, Minutes: 30}, list[2])
	assert.Equal(t, UnknownAction{Type: "summon_dragon"}, list[3])
}

func TestActionList_RoundTrip(t *testing.T) {
	list := ActionList{
		Notify{Title: "Cold", Message: "{character.name} shivers"},
		RandomFromList{Options: []WeightedOption{{Value: "a", Weight: 2}, {Value: "b"}}, StoreAs: "pick"},
		RollDice{Formula: "2d6+1", StoreAs: "dmg"},
	}

	data, err := json.Marshal(list)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"notify"`)

	var decoded ActionList
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, list, decoded)
}

func TestParseAction_MissingType(t *testing.T) {
	_, err := ParseAction([]byte(`{"effect_name": "x"}`))
	assert.Error(t, err)
}

func TestNewAction_CoversEveryKind(t *testing.T) {
	for _, kind := range AllActionKinds {
		a, ok := NewAction(kind)
		if assert.True(t, ok, "no action for %s", kind) {
			assert.Equal(t, kind, a.Kind())
		}
	}
}
