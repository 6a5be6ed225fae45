package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

func TestRender(t *testing.T) {
	ec := &ExecContext{
		Character: &campaign.Character{ID: 7, Name: "Ilse", Type: campaign.CharacterPC,
			Attributes: map[string]any{"hp": 8.0, "class": "cleric"}},
		Environment: &campaign.EnvironmentState{Year: 2, Month: 3, Day: 14, Hour: 6, Minute: 5, Weather: "Fog"},
		TimeOfDay:   "Dawn",
		Vars:        map[string]any{"loot": "a silver ring", "roll": 17},
	}

	tests := []struct {
		in, want string
	}{
		{"{character.name} wakes", "Ilse wakes"},
		{"{character.name} has {character.hp} hp", "Ilse has 8 hp"},
		{"{character.class}/{character.type}/{character.id}", "cleric/PC/7"},
		{"{environment.weather} at {environment.time}", "Fog at 06:05"},
		{"{environment.time_of_day} of {environment.day}/{environment.month}/{environment.year}", "Dawn of 14/3/2"},
		{"Found {var.loot} (rolled {var.roll})", "Found a silver ring (rolled 17)"},
		{"{character.missing} and {var.none}", "{character.missing} and {var.none}"},
		{"{unknown.scope}", "{unknown.scope}"},
		{"no tokens", "no tokens"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.in, ec))
		})
	}
}

func TestRender_NoCharacter(t *testing.T) {
	ec := &ExecContext{Environment: &campaign.EnvironmentState{Weather: "Rain"}}
	assert.Equal(t, "{character.name} in Rain", Render("{character.name} in {environment.weather}", ec))
	assert.Equal(t, "{character.name}", Render("{character.name}", nil))
}
