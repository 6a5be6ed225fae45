package campaign

import "fmt"

// GameTime is a point on the campaign calendar. Month and Day are 1-based.
type GameTime struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (t GameTime) String() string {
	return fmt.Sprintf("%d-%02d-%02d %02d:%02d", t.Year, t.Month, t.Day, t.Hour, t.Minute)
}

// MinuteOfDay returns minutes elapsed since midnight.
func (t GameTime) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// EnvironmentState is the single mutable world-state record of a campaign.
// CurrentLocationID and CurrentEdgeID are mutually exclusive.
type EnvironmentState struct {
	CampaignID int64  `json:"campaign_id"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Day        int    `json:"day"`
	Hour       int    `json:"hour"`
	Minute     int    `json:"minute"`
	Weather    string `json:"weather"`
	Notes      string `json:"notes,omitempty"`

	CurrentLocationID *int64  `json:"current_location_id,omitempty"`
	CurrentEdgeID     *int64  `json:"current_edge_id,omitempty"`
	EdgeProgress      float64 `json:"edge_progress"`

	LastEncounterAt   *GameTime `json:"last_encounter_at,omitempty"`
	ActiveEncounterID *int64    `json:"active_encounter_id,omitempty"`

	Combat *CombatState `json:"combat,omitempty"` // nil when no combat is active
}

// NewEnvironment returns the starting environment of a campaign: first day
// of the first month of year 1 at 08:00 under the first weather option.
func NewEnvironment(campaignID int64, cfg Config) *EnvironmentState {
	env := &EnvironmentState{
		CampaignID: campaignID,
		Year:       1,
		Month:      1,
		Day:        1,
		Hour:       8,
	}
	if len(cfg.Weather.Options) > 0 {
		env.Weather = cfg.Weather.Options[0]
	}
	return env
}

func (e *EnvironmentState) Time() GameTime {
	return GameTime{Year: e.Year, Month: e.Month, Day: e.Day, Hour: e.Hour, Minute: e.Minute}
}

func (e *EnvironmentState) SetTime(t GameTime) {
	e.Year, e.Month, e.Day, e.Hour, e.Minute = t.Year, t.Month, t.Day, t.Hour, t.Minute
}

// AtLocation places the party at a location, clearing any edge.
func (e *EnvironmentState) AtLocation(id int64) {
	e.CurrentLocationID = &id
	e.CurrentEdgeID = nil
	e.EdgeProgress = 0
}

// OnEdge places the party on a travel edge, clearing the location.
func (e *EnvironmentState) OnEdge(id int64) {
	e.CurrentEdgeID = &id
	e.CurrentLocationID = nil
	e.EdgeProgress = 0
}

// Clone returns a deep copy.
func (e *EnvironmentState) Clone() *EnvironmentState {
	if e == nil {
		return nil
	}
	c := *e
	if e.CurrentLocationID != nil {
		id := *e.CurrentLocationID
		c.CurrentLocationID = &id
	}
	if e.CurrentEdgeID != nil {
		id := *e.CurrentEdgeID
		c.CurrentEdgeID = &id
	}
	if e.LastEncounterAt != nil {
		t := *e.LastEncounterAt
		c.LastEncounterAt = &t
	}
	if e.ActiveEncounterID != nil {
		id := *e.ActiveEncounterID
		c.ActiveEncounterID = &id
	}
	if e.Combat != nil {
		cs := *e.Combat
		cs.Combatants = append([]Combatant(nil), e.Combat.Combatants...)
		c.Combat = &cs
	}
	return &c
}

// CombatState tracks an active combat. Round starts at 1 and TurnIndex is
// 0-based into Combatants.
type CombatState struct {
	Active             bool        `json:"active"`
	Round              int         `json:"round"`
	TurnIndex          int         `json:"turn_index"`
	Combatants         []Combatant `json:"combatants"`
	AdvanceTime        bool        `json:"advance_time"`
	SecondsPerRound    int         `json:"seconds_per_round"`
	AccumulatedSeconds int         `json:"accumulated_seconds"` // carry below one minute
}

type Combatant struct {
	CharacterID int64  `json:"character_id"`
	Initiative  int    `json:"initiative"`
	Name        string `json:"name,omitempty"`
}

// Current returns the combatant whose turn it is.
func (c *CombatState) Current() (Combatant, bool) {
	if c == nil || c.TurnIndex < 0 || c.TurnIndex >= len(c.Combatants) {
		return Combatant{}, false
	}
	return c.Combatants[c.TurnIndex], true
}
