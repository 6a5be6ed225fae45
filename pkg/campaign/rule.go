package campaign

import (
	"encoding/json"
	"time"
)

type TriggerType string

const (
	TriggerTimeAdvance    TriggerType = "on_time_advance"
	TriggerRest           TriggerType = "on_rest"
	TriggerEffectChange   TriggerType = "on_effect_change"
	TriggerThreshold      TriggerType = "on_threshold"
	TriggerRoundAdvance   TriggerType = "on_round_advance"
	TriggerLocationChange TriggerType = "on_location_change"
	TriggerEncounter      TriggerType = "on_encounter"
	TriggerSchedule       TriggerType = "on_schedule"
)

// AllTriggerTypes lists every trigger the engine dispatches.
var AllTriggerTypes = []TriggerType{
	TriggerTimeAdvance, TriggerRest, TriggerEffectChange, TriggerThreshold,
	TriggerRoundAdvance, TriggerLocationChange, TriggerEncounter, TriggerSchedule,
}

func (t TriggerType) Valid() bool {
	for _, v := range AllTriggerTypes {
		if v == t {
			return true
		}
	}
	return false
}

type ActionMode string

const (
	ModeAuto    ActionMode = "auto"
	ModeSuggest ActionMode = "suggest"
)

type TargetMode string

const (
	TargetEnvironment   TargetMode = "environment"
	TargetAllPCs        TargetMode = "all_pcs"
	TargetAllNPCs       TargetMode = "all_npcs"
	TargetAllCharacters TargetMode = "all_characters"
	TargetSpecific      TargetMode = "specific"
)

// TriggerConfig narrows which trigger events a rule responds to. Unset
// fields match anything.
type TriggerConfig struct {
	RestType    string   `json:"rest_type,omitempty"`    // on_rest: short|long
	EffectName  string   `json:"effect_name,omitempty"`  // on_effect_change
	Change      string   `json:"change,omitempty"`       // on_effect_change: applied|removed|expired
	LocationID  *int64   `json:"location_id,omitempty"`  // on_location_change
	EncounterID *int64   `json:"encounter_id,omitempty"` // on_encounter
	Phase       string   `json:"phase,omitempty"`        // on_encounter: start|end
	Attribute   string   `json:"attribute,omitempty"`    // on_threshold
	Threshold   *float64 `json:"threshold,omitempty"`    // on_threshold
	Direction   string   `json:"direction,omitempty"`    // on_threshold: falling|rising
	Month       *int     `json:"month,omitempty"`        // on_schedule
	Day         *int     `json:"day,omitempty"`          // on_schedule
	Hour        *int     `json:"hour,omitempty"`         // on_schedule
	Minute      *int     `json:"minute,omitempty"`       // on_schedule
}

type TargetConfig struct {
	CharacterIDs []int64 `json:"character_ids,omitempty"`
}

// Rule is a user-authored trigger/condition/action record.
type Rule struct {
	ID              int64         `json:"id"`
	CampaignID      int64         `json:"campaign_id"`
	Name            string        `json:"name"`
	Enabled         bool          `json:"enabled"`
	TriggerType     TriggerType   `json:"trigger_type"`
	TriggerConfig   TriggerConfig `json:"trigger_config"`
	Conditions      ConditionTree `json:"conditions"`
	Actions         ActionList    `json:"actions"`
	ActionMode      ActionMode    `json:"action_mode"`
	Priority        int           `json:"priority"` // lower runs first
	Tags            []string      `json:"tags,omitempty"`
	TargetMode      TargetMode    `json:"target_mode"`
	TargetConfig    TargetConfig  `json:"target_config"`
	LastTriggeredAt *time.Time    `json:"last_triggered_at,omitempty"`
}

// RuleActionLog is one successfully executed action; the unit of undo.
type RuleActionLog struct {
	ID          int64           `json:"id"`
	CampaignID  int64           `json:"campaign_id"`
	BatchID     string          `json:"batch_id"`
	RuleID      int64           `json:"rule_id"`
	CharacterID *int64          `json:"character_id,omitempty"`
	ActionIndex int             `json:"action_index"` // position within the batch
	ActionType  ActionKind      `json:"action_type"`
	Description string          `json:"description"`
	UndoData    json.RawMessage `json:"undo_data,omitempty"`
	Undone      bool            `json:"undone"`
	CreatedAt   time.Time       `json:"created_at"`
}

type NotificationType string

const (
	NotificationSuggestion  NotificationType = "suggestion"
	NotificationAutoApplied NotificationType = "auto_applied"
	NotificationSystem      NotificationType = "system"
)

type Notification struct {
	ID             int64            `json:"id"`
	CampaignID     int64            `json:"campaign_id"`
	Type           NotificationType `json:"notification_type"`
	BatchID        string           `json:"batch_id,omitempty"`
	RuleID         *int64           `json:"rule_id,omitempty"`
	CharacterID    *int64           `json:"character_id,omitempty"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Details        []string         `json:"details,omitempty"`
	PendingActions ActionList       `json:"pending_actions,omitempty"` // suggestions only
	Read           bool             `json:"read"`
	Dismissed      bool             `json:"dismissed"`
	CreatedAt      time.Time        `json:"created_at"`
}

type EventType string

const (
	EventTimeAdvanced       EventType = "time_advanced"
	EventWeatherChanged     EventType = "weather_changed"
	EventEncounterTriggered EventType = "encounter_triggered"
	EventEffectExpired      EventType = "effect_expired"
	EventRoundAdvanced      EventType = "round_advanced"
	EventLocationChanged    EventType = "location_changed"
	EventCombatStarted      EventType = "combat_started"
	EventCombatEnded        EventType = "combat_ended"
	EventEncounterStarted   EventType = "encounter_started"
	EventEncounterEnded     EventType = "encounter_ended"
)

// Event describes one discrete outcome of a simulation step.
type Event struct {
	Type        EventType `json:"type"`
	Message     string    `json:"message"`
	CharacterID *int64    `json:"character_id,omitempty"`
	EffectName  string    `json:"effect_name,omitempty"`
	EncounterID *int64    `json:"encounter_id,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
}

// LogEntry is a row of the append-only session log.
type LogEntry struct {
	ID         int64     `json:"id"`
	CampaignID int64     `json:"campaign_id"`
	EntryType  string    `json:"entry_type"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
