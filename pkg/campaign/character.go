package campaign

import "maps"

type CharacterType string

const (
	CharacterPC  CharacterType = "PC"
	CharacterNPC CharacterType = "NPC"
)

// Character is a PC or NPC. Attributes holds numbers and free-form traits
// (strings, booleans) side by side; only numeric entries take part in
// effective attribute computation.
type Character struct {
	ID            int64          `json:"id"`
	CampaignID    int64          `json:"campaign_id"`
	Name          string         `json:"name"`
	Type          CharacterType  `json:"type"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	MaxAttributes map[string]any `json:"max_attributes,omitempty"` // informational

	SpawnedByEncounterID *int64    `json:"spawned_by_encounter_id,omitempty"` // ephemeral encounter NPCs only
	Archived             bool      `json:"archived,omitempty"`
	LastRestAt           *GameTime `json:"last_rest_at,omitempty"`
}

// NumericAttribute returns the attribute as a number when it is one.
func (c *Character) NumericAttribute(key string) (float64, bool) {
	if c == nil || c.Attributes == nil {
		return 0, false
	}
	v, ok := c.Attributes[key]
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// Clone returns a copy with its own attribute maps.
func (c *Character) Clone() *Character {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Attributes = maps.Clone(c.Attributes)
	cp.MaxAttributes = maps.Clone(c.MaxAttributes)
	if c.SpawnedByEncounterID != nil {
		id := *c.SpawnedByEncounterID
		cp.SpawnedByEncounterID = &id
	}
	if c.LastRestAt != nil {
		t := *c.LastRestAt
		cp.LastRestAt = &t
	}
	return &cp
}

// Modifier is an additive change to one attribute.
type Modifier struct {
	Attribute string  `json:"attribute"`
	Delta     float64 `json:"delta"`
}

type DurationType string

const (
	DurationRounds     DurationType = "rounds"
	DurationHours      DurationType = "hours"
	DurationIndefinite DurationType = "indefinite"
)

type StatusEffectDefinition struct {
	ID            int64        `json:"id"`
	CampaignID    int64        `json:"campaign_id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	Modifiers     []Modifier   `json:"modifiers,omitempty"`
	DurationType  DurationType `json:"duration_type"`
	DurationValue float64      `json:"duration_value,omitempty"` // rounds or hours
}

// AppliedEffect links a character to an effect definition. At most one of
// RemainingRounds and RemainingHours is set, matching the definition's
// duration type; neither is set for indefinite effects.
type AppliedEffect struct {
	ID              int64    `json:"id"`
	CampaignID      int64    `json:"campaign_id"`
	CharacterID     int64    `json:"character_id"`
	EffectID        int64    `json:"effect_id"`
	RemainingRounds *int     `json:"remaining_rounds,omitempty"`
	RemainingHours  *float64 `json:"remaining_hours,omitempty"`
}

type ItemDefinition struct {
	ID          int64      `json:"id"`
	CampaignID  int64      `json:"campaign_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Stackable   bool       `json:"stackable"`
	Modifiers   []Modifier `json:"modifiers,omitempty"`
}

type CharacterItem struct {
	ID          int64 `json:"id"`
	CampaignID  int64 `json:"campaign_id"`
	CharacterID int64 `json:"character_id"`
	ItemID      int64 `json:"item_id"`
	Quantity    int   `json:"quantity"`
}
