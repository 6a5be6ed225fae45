package campaign

// Location is a node of the travel graph.
type Location struct {
	ID                int64            `json:"id"`
	CampaignID        int64            `json:"campaign_id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Properties        map[string]any   `json:"properties,omitempty"`
	EncounterModifier *float64         `json:"encounter_modifier,omitempty"` // nil means 1.0
	WeatherOverride   *WeatherOverride `json:"weather_override,omitempty"`
}

type WeatherOverrideMode string

const (
	WeatherFixed    WeatherOverrideMode = "fixed"
	WeatherWeighted WeatherOverrideMode = "weighted"
)

// WeatherOverride either pins a location's weather (fixed) or biases the
// roll towards Weights (weighted).
type WeatherOverride struct {
	Mode    WeatherOverrideMode `json:"mode"`
	Weather string              `json:"weather,omitempty"`
	Weights map[string]float64  `json:"weights,omitempty"`
}

// Edge is a travel route between two locations.
type Edge struct {
	ID                int64    `json:"id"`
	CampaignID        int64    `json:"campaign_id"`
	Name              string   `json:"name,omitempty"`
	FromLocationID    int64    `json:"from_location_id"`
	ToLocationID      int64    `json:"to_location_id"`
	TravelHours       float64  `json:"travel_hours"`
	EncounterModifier *float64 `json:"encounter_modifier,omitempty"`
}

// EncounterDefinition describes a random or scripted encounter.
type EncounterDefinition struct {
	ID           int64                `json:"id"`
	CampaignID   int64                `json:"campaign_id"`
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	NPCs         []EncounterSpawn     `json:"npcs,omitempty"`
	Overrides    *EnvironmentOverride `json:"environment_overrides,omitempty"`
	Loot         []LootEntry          `json:"loot,omitempty"`
	Conditions   *EncounterConditions `json:"conditions,omitempty"`
	StartsCombat bool                 `json:"starts_combat"`
}

// EncounterSpawn references an existing character or names an ad-hoc NPC.
type EncounterSpawn struct {
	CharacterID *int64         `json:"character_id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Count       int            `json:"count,omitempty"` // 0 means 1
	Attributes  map[string]any `json:"attributes,omitempty"`
}

type EnvironmentOverride struct {
	Weather string `json:"weather,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type LootEntry struct {
	Item     string  `json:"item"`
	Weight   float64 `json:"weight"`
	Quantity int     `json:"quantity,omitempty"`
}

// EncounterConditions restrict when a random encounter is eligible. Empty
// lists do not restrict.
type EncounterConditions struct {
	LocationIDs []int64  `json:"location_ids,omitempty"`
	EdgeIDs     []int64  `json:"edge_ids,omitempty"`
	TimeOfDay   []string `json:"time_of_day,omitempty"`
	Weather     []string `json:"weather,omitempty"`
	Weight      *float64 `json:"weight,omitempty"` // nil means 1.0
}

// Weight returns the selection weight of an encounter.
func (e *EncounterDefinition) Weight() float64 {
	if e.Conditions == nil || e.Conditions.Weight == nil {
		return 1.0
	}
	return *e.Conditions.Weight
}
