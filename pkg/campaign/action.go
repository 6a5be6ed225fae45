package campaign

import (
	"encoding/json"
	"fmt"
)

type ActionKind string

const (
	ActApplyEffect        ActionKind = "apply_effect"
	ActRemoveEffect       ActionKind = "remove_effect"
	ActModifyAttribute    ActionKind = "modify_attribute"
	ActConsumeItem        ActionKind = "consume_item"
	ActGrantItem          ActionKind = "grant_item"
	ActSetWeather         ActionKind = "set_weather"
	ActSetEnvironmentNote ActionKind = "set_environment_note"
	ActAdvanceTime        ActionKind = "advance_time"
	ActNotify             ActionKind = "notify"
	ActLog                ActionKind = "log"
	ActRandomFromList     ActionKind = "random_from_list"
	ActRollDice           ActionKind = "roll_dice"
)

// AllActionKinds lists every action kind the executor supports.
var AllActionKinds = []ActionKind{
	ActApplyEffect, ActRemoveEffect, ActModifyAttribute,
	ActConsumeItem, ActGrantItem,
	ActSetWeather, ActSetEnvironmentNote, ActAdvanceTime,
	ActNotify, ActLog, ActRandomFromList, ActRollDice,
}

// Action is one step of a rule. The set of implementations is closed; see
// NewAction.
type Action interface {
	Kind() ActionKind
	isAction()
}

// ApplyEffect applies a status effect to the target character. Duration,
// when set, replaces the definition's rounds or hours.
type ApplyEffect struct {
	EffectName string   `json:"effect_name"`
	AllowStack bool     `json:"allow_stack,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
}

type RemoveEffect struct {
	EffectName string `json:"effect_name"`
}

type ModifyAttribute struct {
	Attribute string  `json:"attribute"`
	Delta     float64 `json:"delta"`
}

type ConsumeItem struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity,omitempty"` // 0 means 1
}

type GrantItem struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity,omitempty"` // 0 means 1
}

type SetWeather struct {
	Weather string `json:"weather"`
}

type SetEnvironmentNote struct {
	Note string `json:"note"`
}

// AdvanceTime requests a time advance that is applied once after the
// whole trigger evaluation.
type AdvanceTime struct {
	Hours   int `json:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty"`
}

type Notify struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

type Log struct {
	EntryType string `json:"entry_type,omitempty"`
	Message   string `json:"message"`
}

type WeightedOption struct {
	Value  string  `json:"value"`
	Weight float64 `json:"weight,omitempty"` // 0 means 1
}

type RandomFromList struct {
	Options []WeightedOption `json:"options"`
	StoreAs string           `json:"store_as,omitempty"`
}

// RollDice rolls an NdM+K formula.
type RollDice struct {
	Formula string `json:"formula"`
	StoreAs string `json:"store_as,omitempty"`
}

// UnknownAction keeps an unrecognised action so execution can fail it
// without aborting the rule.
type UnknownAction struct {
	Type string
}

func (ApplyEffect) Kind() ActionKind        { return ActApplyEffect }
func (RemoveEffect) Kind() ActionKind       { return ActRemoveEffect }
func (ModifyAttribute) Kind() ActionKind    { return ActModifyAttribute }
func (ConsumeItem) Kind() ActionKind        { return ActConsumeItem }
func (GrantItem) Kind() ActionKind          { return ActGrantItem }
func (SetWeather) Kind() ActionKind         { return ActSetWeather }
func (SetEnvironmentNote) Kind() ActionKind { return ActSetEnvironmentNote }
func (AdvanceTime) Kind() ActionKind        { return ActAdvanceTime }
func (Notify) Kind() ActionKind             { return ActNotify }
func (Log) Kind() ActionKind                { return ActLog }
func (RandomFromList) Kind() ActionKind     { return ActRandomFromList }
func (RollDice) Kind() ActionKind           { return ActRollDice }
func (u UnknownAction) Kind() ActionKind    { return ActionKind(u.Type) }

func (ApplyEffect) isAction()        {}
func (RemoveEffect) isAction()       {}
func (ModifyAttribute) isAction()    {}
func (ConsumeItem) isAction()        {}
func (GrantItem) isAction()          {}
func (SetWeather) isAction()         {}
func (SetEnvironmentNote) isAction() {}
func (AdvanceTime) isAction()        {}
func (Notify) isAction()             {}
func (Log) isAction()                {}
func (RandomFromList) isAction()     {}
func (RollDice) isAction()           {}
func (UnknownAction) isAction()      {}

// NewAction returns a pointer to a zero action of kind.
func NewAction(kind ActionKind) (Action, bool) {
	switch kind {
	case ActApplyEffect:
		return &ApplyEffect{}, true
	case ActRemoveEffect:
		return &RemoveEffect{}, true
	case ActModifyAttribute:
		return &ModifyAttribute{}, true
	case ActConsumeItem:
		return &ConsumeItem{}, true
	case ActGrantItem:
		return &GrantItem{}, true
	case ActSetWeather:
		return &SetWeather{}, true
	case ActSetEnvironmentNote:
		return &SetEnvironmentNote{}, true
	case ActAdvanceTime:
		return &AdvanceTime{}, true
	case ActNotify:
		return &Notify{}, true
	case ActLog:
		return &Log{}, true
	case ActRandomFromList:
		return &RandomFromList{}, true
	case ActRollDice:
		return &RollDice{}, true
	}
	return nil, false
}

// ParseAction decodes one {"type": ..., ...} action record.
func ParseAction(data []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("action has no type")
	}
	a, ok := NewAction(ActionKind(head.Type))
	if !ok {
		return UnknownAction{Type: head.Type}, nil
	}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("failed to decode %s action: %w", head.Type, err)
	}
	return derefAction(a), nil
}

// MarshalAction encodes an action with its "type" field.
func MarshalAction(a Action) ([]byte, error) {
	if u, ok := a.(UnknownAction); ok {
		return json.Marshal(map[string]string{"type": u.Type})
	}
	return marshalTagged(string(a.Kind()), a)
}

// ActionList is an ordered list of actions with tagged JSON encoding.
type ActionList []Action

func (l ActionList) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(l))
	for _, a := range l {
		b, err := MarshalAction(a)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return json.Marshal(items)
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to decode actions: %w", err)
	}
	out := make(ActionList, 0, len(items))
	for i, item := range items {
		a, err := ParseAction(item)
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	*l = out
	return nil
}

func derefAction(a Action) Action {
	switch p := a.(type) {
	case *ApplyEffect:
		return *p
	case *RemoveEffect:
		return *p
	case *ModifyAttribute:
		return *p
	case *ConsumeItem:
		return *p
	case *GrantItem:
		return *p
	case *SetWeather:
		return *p
	case *SetEnvironmentNote:
		return *p
	case *AdvanceTime:
		return *p
	case *Notify:
		return *p
	case *Log:
		return *p
	case *RandomFromList:
		return *p
	case *RollDice:
		return *p
	}
	return a
}
