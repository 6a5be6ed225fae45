package campaign

import (
	"encoding/json"
	"fmt"
)

type ConditionKind string

const (
	CondAll                ConditionKind = "all"
	CondAny                ConditionKind = "any"
	CondNot                ConditionKind = "not"
	CondAttributeGTE       ConditionKind = "attribute_gte"
	CondAttributeLTE       ConditionKind = "attribute_lte"
	CondAttributeEQ        ConditionKind = "attribute_eq"
	CondTraitEquals        ConditionKind = "trait_equals"
	CondTraitIn            ConditionKind = "trait_in"
	CondCharacterType      ConditionKind = "character_type"
	CondHasEffect          ConditionKind = "has_effect"
	CondLacksEffect        ConditionKind = "lacks_effect"
	CondHasItem            ConditionKind = "has_item"
	CondLacksItem          ConditionKind = "lacks_item"
	CondItemQuantityLTE    ConditionKind = "item_quantity_lte"
	CondWeatherIs          ConditionKind = "weather_is"
	CondWeatherIn          ConditionKind = "weather_in"
	CondTimeOfDayIs        ConditionKind = "time_of_day_is"
	CondTimeBetween        ConditionKind = "time_between"
	CondCalendarDay        ConditionKind = "calendar_day"
	CondSeasonIs           ConditionKind = "season_is"
	CondLocationIs         ConditionKind = "location_is"
	CondLocationIn         ConditionKind = "location_in"
	CondLocationProperty   ConditionKind = "location_property"
	CondRandomChance       ConditionKind = "random_chance"
	CondHoursSinceEffect   ConditionKind = "hours_since_effect"
	CondHoursSinceLastRest ConditionKind = "hours_since_last_rest"
)

// AllConditionKinds lists every leaf and combinator kind.
var AllConditionKinds = []ConditionKind{
	CondAll, CondAny, CondNot,
	CondAttributeGTE, CondAttributeLTE, CondAttributeEQ,
	CondTraitEquals, CondTraitIn, CondCharacterType,
	CondHasEffect, CondLacksEffect, CondHasItem, CondLacksItem, CondItemQuantityLTE,
	CondWeatherIs, CondWeatherIn, CondTimeOfDayIs, CondTimeBetween,
	CondCalendarDay, CondSeasonIs,
	CondLocationIs, CondLocationIn, CondLocationProperty,
	CondRandomChance, CondHoursSinceEffect, CondHoursSinceLastRest,
}

// Condition is a node of a rule's condition tree. The set of
// implementations is closed; see NewCondition.
type Condition interface {
	Kind() ConditionKind
	isCondition()
}

type All struct{ Children []Condition }
type Any struct{ Children []Condition }
type Not struct{ Child Condition }

type AttributeGTE struct {
	Attribute string  `json:"attribute"`
	Value     float64 `json:"value"`
}

type AttributeLTE struct {
	Attribute string  `json:"attribute"`
	Value     float64 `json:"value"`
}

type AttributeEQ struct {
	Attribute string  `json:"attribute"`
	Value     float64 `json:"value"`
}

type TraitEquals struct {
	Trait string `json:"trait"`
	Value any    `json:"value"`
}

type TraitIn struct {
	Trait  string `json:"trait"`
	Values []any  `json:"values"`
}

type CharacterTypeIs struct {
	Value CharacterType `json:"value"`
}

type HasEffect struct {
	EffectName string `json:"effect_name"`
}

type LacksEffect struct {
	EffectName string `json:"effect_name"`
}

type HasItem struct {
	ItemName string `json:"item_name"`
}

type LacksItem struct {
	ItemName string `json:"item_name"`
}

type ItemQuantityLTE struct {
	ItemName string `json:"item_name"`
	Value    int    `json:"value"`
}

type WeatherIs struct {
	Value string `json:"value"`
}

type WeatherIn struct {
	Values []string `json:"values"`
}

type TimeOfDayIs struct {
	Value string `json:"value"`
}

// TimeBetween matches an HH:MM window; From > To wraps past midnight.
type TimeBetween struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type CalendarDay struct {
	Day   int  `json:"day"`
	Month *int `json:"month,omitempty"`
}

type SeasonIs struct {
	Value string `json:"value"` // spring|summer|autumn|winter
}

type LocationIs struct {
	LocationID int64 `json:"location_id"`
}

type LocationIn struct {
	LocationIDs []int64 `json:"location_ids"`
}

// LocationProperty checks a custom property of the current location. With
// no Value the property must be truthy; otherwise it must equal Value.
type LocationProperty struct {
	Property string `json:"property"`
	Value    any    `json:"value,omitempty"`
}

type RandomChance struct {
	Probability float64 `json:"probability"`
}

type HoursSinceEffect struct {
	EffectName string  `json:"effect_name"`
	Operator   string  `json:"operator"` // gte|lte
	Value      float64 `json:"value"`
}

type HoursSinceLastRest struct {
	Operator string  `json:"operator"` // gte|lte
	Value    float64 `json:"value"`
}

// UnknownCondition preserves a leaf whose type is not recognised so the
// evaluator can report it as a failing detail.
type UnknownCondition struct {
	Type string
}

func (All) Kind() ConditionKind                { return CondAll }
func (Any) Kind() ConditionKind                { return CondAny }
func (Not) Kind() ConditionKind                { return CondNot }
func (AttributeGTE) Kind() ConditionKind       { return CondAttributeGTE }
func (AttributeLTE) Kind() ConditionKind       { return CondAttributeLTE }
func (AttributeEQ) Kind() ConditionKind        { return CondAttributeEQ }
func (TraitEquals) Kind() ConditionKind        { return CondTraitEquals }
func (TraitIn) Kind() ConditionKind            { return CondTraitIn }
func (CharacterTypeIs) Kind() ConditionKind    { return CondCharacterType }
func (HasEffect) Kind() ConditionKind          { return CondHasEffect }
func (LacksEffect) Kind() ConditionKind        { return CondLacksEffect }
func (HasItem) Kind() ConditionKind            { return CondHasItem }
func (LacksItem) Kind() ConditionKind          { return CondLacksItem }
func (ItemQuantityLTE) Kind() ConditionKind    { return CondItemQuantityLTE }
func (WeatherIs) Kind() ConditionKind          { return CondWeatherIs }
func (WeatherIn) Kind() ConditionKind          { return CondWeatherIn }
func (TimeOfDayIs) Kind() ConditionKind        { return CondTimeOfDayIs }
func (TimeBetween) Kind() ConditionKind        { return CondTimeBetween }
func (CalendarDay) Kind() ConditionKind        { return CondCalendarDay }
func (SeasonIs) Kind() ConditionKind           { return CondSeasonIs }
func (LocationIs) Kind() ConditionKind         { return CondLocationIs }
func (LocationIn) Kind() ConditionKind         { return CondLocationIn }
func (LocationProperty) Kind() ConditionKind   { return CondLocationProperty }
func (RandomChance) Kind() ConditionKind       { return CondRandomChance }
func (HoursSinceEffect) Kind() ConditionKind   { return CondHoursSinceEffect }
func (HoursSinceLastRest) Kind() ConditionKind { return CondHoursSinceLastRest }
func (u UnknownCondition) Kind() ConditionKind { return ConditionKind(u.Type) }

func (All) isCondition()                {}
func (Any) isCondition()                {}
func (Not) isCondition()                {}
func (AttributeGTE) isCondition()       {}
func (AttributeLTE) isCondition()       {}
func (AttributeEQ) isCondition()        {}
func (TraitEquals) isCondition()        {}
func (TraitIn) isCondition()            {}
func (CharacterTypeIs) isCondition()    {}
func (HasEffect) isCondition()          {}
func (LacksEffect) isCondition()        {}
func (HasItem) isCondition()            {}
func (LacksItem) isCondition()          {}
func (ItemQuantityLTE) isCondition()    {}
func (WeatherIs) isCondition()          {}
func (WeatherIn) isCondition()          {}
func (TimeOfDayIs) isCondition()        {}
func (TimeBetween) isCondition()        {}
func (CalendarDay) isCondition()        {}
func (SeasonIs) isCondition()           {}
func (LocationIs) isCondition()         {}
func (LocationIn) isCondition()         {}
func (LocationProperty) isCondition()   {}
func (RandomChance) isCondition()       {}
func (HoursSinceEffect) isCondition()   {}
func (HoursSinceLastRest) isCondition() {}
func (UnknownCondition) isCondition()   {}

// NewCondition returns a zero value of the leaf for kind, or false for
// combinators and unknown kinds.
func NewCondition(kind ConditionKind) (Condition, bool) {
	switch kind {
	case CondAttributeGTE:
		return &AttributeGTE{}, true
	case CondAttributeLTE:
		return &AttributeLTE{}, true
	case CondAttributeEQ:
		return &AttributeEQ{}, true
	case CondTraitEquals:
		return &TraitEquals{}, true
	case CondTraitIn:
		return &TraitIn{}, true
	case CondCharacterType:
		return &CharacterTypeIs{}, true
	case CondHasEffect:
		return &HasEffect{}, true
	case CondLacksEffect:
		return &LacksEffect{}, true
	case CondHasItem:
		return &HasItem{}, true
	case CondLacksItem:
		return &LacksItem{}, true
	case CondItemQuantityLTE:
		return &ItemQuantityLTE{}, true
	case CondWeatherIs:
		return &WeatherIs{}, true
	case CondWeatherIn:
		return &WeatherIn{}, true
	case CondTimeOfDayIs:
		return &TimeOfDayIs{}, true
	case CondTimeBetween:
		return &TimeBetween{}, true
	case CondCalendarDay:
		return &CalendarDay{}, true
	case CondSeasonIs:
		return &SeasonIs{}, true
	case CondLocationIs:
		return &LocationIs{}, true
	case CondLocationIn:
		return &LocationIn{}, true
	case CondLocationProperty:
		return &LocationProperty{}, true
	case CondRandomChance:
		return &RandomChance{}, true
	case CondHoursSinceEffect:
		return &HoursSinceEffect{}, true
	case CondHoursSinceLastRest:
		return &HoursSinceLastRest{}, true
	}
	return nil, false
}

// ConditionTree wraps an optional root condition for JSON transport.
// A nil Root always passes.
type ConditionTree struct {
	Root Condition
}

func (t ConditionTree) MarshalJSON() ([]byte, error) {
	if t.Root == nil {
		return []byte("null"), nil
	}
	return MarshalCondition(t.Root)
}

func (t *ConditionTree) UnmarshalJSON(data []byte) error {
	c, err := ParseCondition(data)
	if err != nil {
		return err
	}
	t.Root = c
	return nil
}

// ParseCondition decodes a condition tree. Combinators are written as
// {"all": [...]}, {"any": [...]} or {"not": {...}}; leaves carry a "type"
// field. null and {} decode to a nil tree.
func ParseCondition(data []byte) (Condition, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode condition: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	if raw, ok := fields["all"]; ok {
		children, err := parseConditionList(raw)
		if err != nil {
			return nil, fmt.Errorf("all: %w", err)
		}
		return All{Children: children}, nil
	}
	if raw, ok := fields["any"]; ok {
		children, err := parseConditionList(raw)
		if err != nil {
			return nil, fmt.Errorf("any: %w", err)
		}
		return Any{Children: children}, nil
	}
	if raw, ok := fields["not"]; ok {
		child, err := ParseCondition(raw)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Child: child}, nil
	}

	var kind string
	if raw, ok := fields["type"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			return nil, fmt.Errorf("failed to decode condition type: %w", err)
		}
	}
	if kind == "" {
		return nil, fmt.Errorf("condition has no type")
	}

	leaf, ok := NewCondition(ConditionKind(kind))
	if !ok {
		return UnknownCondition{Type: kind}, nil
	}
	if err := json.Unmarshal(data, leaf); err != nil {
		return nil, fmt.Errorf("failed to decode %s condition: %w", kind, err)
	}
	return deref(leaf), nil
}

func parseConditionList(raw json.RawMessage) ([]Condition, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]Condition, 0, len(items))
	for i, item := range items {
		c, err := ParseCondition(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// MarshalCondition encodes a condition in the form ParseCondition reads.
func MarshalCondition(c Condition) ([]byte, error) {
	switch n := c.(type) {
	case nil:
		return []byte("null"), nil
	case All:
		return marshalCombinator("all", n.Children)
	case Any:
		return marshalCombinator("any", n.Children)
	case Not:
		child, err := MarshalCondition(n.Child)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"not": child})
	case UnknownCondition:
		return json.Marshal(map[string]string{"type": n.Type})
	default:
		return marshalTagged(string(c.Kind()), c)
	}
}

func marshalCombinator(key string, children []Condition) ([]byte, error) {
	items := make([]json.RawMessage, 0, len(children))
	for _, child := range children {
		b, err := MarshalCondition(child)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return json.Marshal(map[string][]json.RawMessage{key: items})
}

// marshalTagged encodes v as an object with an extra "type" field.
func marshalTagged(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(kind)
	fields["type"] = typ
	return json.Marshal(fields)
}

// deref turns the pointer returned by NewCondition into the value form
// used everywhere else.
func deref(c Condition) Condition {
	switch p := c.(type) {
	case *AttributeGTE:
		return *p
	case *AttributeLTE:
		return *p
	case *AttributeEQ:
		return *p
	case *TraitEquals:
		return *p
	case *TraitIn:
		return *p
	case *CharacterTypeIs:
		return *p
	case *HasEffect:
		return *p
	case *LacksEffect:
		return *p
	case *HasItem:
		return *p
	case *LacksItem:
		return *p
	case *ItemQuantityLTE:
		return *p
	case *WeatherIs:
		return *p
	case *WeatherIn:
		return *p
	case *TimeOfDayIs:
		return *p
	case *TimeBetween:
		return *p
	case *CalendarDay:
		return *p
	case *SeasonIs:
		return *p
	case *LocationIs:
		return *p
	case *LocationIn:
		return *p
	case *LocationProperty:
		return *p
	case *RandomChance:
		return *p
	case *HoursSinceEffect:
		return *p
	case *HoursSinceLastRest:
		return *p
	}
	return c
}
