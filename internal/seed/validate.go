package seed

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("seed has %d validation errors:\n%s", len(e.Problems), strings.Join(e.Problems, "\n"))
}

type validator struct {
	errors []string
}

func (v *validator) addf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

// ids records ids of one collection, flagging zero and duplicate ids.
func (v *validator) ids(kind string, list []int64) map[int64]bool {
	seen := make(map[int64]bool, len(list))
	for _, id := range list {
		if id <= 0 {
			v.addf("%s has missing or non-positive id %d", kind, id)
			continue
		}
		if seen[id] {
			v.addf("duplicate %s id %d", kind, id)
		}
		seen[id] = true
	}
	return seen
}

// Validate returns every semantic problem found in s.
func Validate(s *Seed) []string {
	v := &validator{}
	v.validateCampaign(&s.Campaign)

	chars := v.ids("character", collect(s.Characters, func(c campaign.Character) int64 { return c.ID }))
	effects := v.ids("effect definition", collect(s.EffectDefinitions, func(d campaign.StatusEffectDefinition) int64 { return d.ID }))
	v.ids("applied effect", collect(s.AppliedEffects, func(a campaign.AppliedEffect) int64 { return a.ID }))
	items := v.ids("item definition", collect(s.ItemDefinitions, func(d campaign.ItemDefinition) int64 { return d.ID }))
	v.ids("character item", collect(s.CharacterItems, func(c campaign.CharacterItem) int64 { return c.ID }))
	locations := v.ids("location", collect(s.Locations, func(l campaign.Location) int64 { return l.ID }))
	edges := v.ids("edge", collect(s.Edges, func(e campaign.Edge) int64 { return e.ID }))
	v.ids("encounter", collect(s.Encounters, func(e campaign.EncounterDefinition) int64 { return e.ID }))
	v.ids("rule", collect(s.Rules, func(r campaign.Rule) int64 { return r.ID }))

	for _, c := range s.Characters {
		if strings.TrimSpace(c.Name) == "" {
			v.addf("character %d has no name", c.ID)
		}
		if c.Type != campaign.CharacterPC && c.Type != campaign.CharacterNPC {
			v.addf("character %d has invalid type %q", c.ID, c.Type)
		}
	}
	for _, d := range s.EffectDefinitions {
		switch d.DurationType {
		case campaign.DurationRounds, campaign.DurationHours:
			if d.DurationValue <= 0 {
				v.addf("effect definition %q needs a positive duration_value", d.Name)
			}
		case campaign.DurationIndefinite:
		default:
			v.addf("effect definition %q has invalid duration_type %q", d.Name, d.DurationType)
		}
	}
	for _, a := range s.AppliedEffects {
		if !chars[a.CharacterID] {
			v.addf("applied effect %d references unknown character %d", a.ID, a.CharacterID)
		}
		if !effects[a.EffectID] {
			v.addf("applied effect %d references unknown effect definition %d", a.ID, a.EffectID)
		}
	}
	for _, ci := range s.CharacterItems {
		if !chars[ci.CharacterID] {
			v.addf("character item %d references unknown character %d", ci.ID, ci.CharacterID)
		}
		if !items[ci.ItemID] {
			v.addf("character item %d references unknown item definition %d", ci.ID, ci.ItemID)
		}
		if ci.Quantity <= 0 {
			v.addf("character item %d needs a positive quantity", ci.ID)
		}
	}
	for _, l := range s.Locations {
		if l.WeatherOverride != nil {
			switch l.WeatherOverride.Mode {
			case campaign.WeatherFixed:
				if l.WeatherOverride.Weather == "" {
					v.addf("location %d fixed weather override needs a weather", l.ID)
				}
			case campaign.WeatherWeighted:
				if len(l.WeatherOverride.Weights) == 0 {
					v.addf("location %d weighted weather override needs weights", l.ID)
				}
			default:
				v.addf("location %d has invalid weather override mode %q", l.ID, l.WeatherOverride.Mode)
			}
		}
	}
	for _, e := range s.Edges {
		if !locations[e.FromLocationID] {
			v.addf("edge %d starts at unknown location %d", e.ID, e.FromLocationID)
		}
		if !locations[e.ToLocationID] {
			v.addf("edge %d ends at unknown location %d", e.ID, e.ToLocationID)
		}
		if e.TravelHours <= 0 {
			v.addf("edge %d needs positive travel_hours", e.ID)
		}
	}
	for _, enc := range s.Encounters {
		v.validateEncounter(&enc, chars, locations, edges)
	}
	for _, r := range s.Rules {
		v.validateRule(&r, chars)
	}
	if env := s.Environment; env != nil {
		if env.CurrentLocationID != nil && !locations[*env.CurrentLocationID] {
			v.addf("environment references unknown location %d", *env.CurrentLocationID)
		}
		if env.CurrentEdgeID != nil && !edges[*env.CurrentEdgeID] {
			v.addf("environment references unknown edge %d", *env.CurrentEdgeID)
		}
		if env.CurrentLocationID != nil && env.CurrentEdgeID != nil {
			v.addf("environment cannot be at a location and on an edge at once")
		}
	}
	return v.errors
}

func (v *validator) validateCampaign(c *campaign.Campaign) {
	if c.ID <= 0 {
		v.addf("campaign needs a positive id")
	}
	if strings.TrimSpace(c.Name) == "" {
		v.addf("campaign needs a name")
	}
	cfg := c.Config
	if len(cfg.Calendar.Months) == 0 {
		v.addf("calendar needs at least one month")
	}
	for _, m := range cfg.Calendar.Months {
		if m.Days <= 0 {
			v.addf("month %q needs a positive day count", m.Name)
		}
	}
	if len(cfg.Weather.Options) == 0 {
		v.addf("weather needs at least one option")
	}
	if cfg.Weather.Volatility < 0 || cfg.Weather.Volatility > 1 {
		v.addf("weather volatility %.2f is outside [0,1]", cfg.Weather.Volatility)
	}
	if cfg.Encounters.BaseRate < 0 || cfg.Encounters.BaseRate > 1 {
		v.addf("encounter base_rate %.2f is outside [0,1]", cfg.Encounters.BaseRate)
	}
	if cfg.Rules.CascadeDepthLimit < 0 {
		v.addf("cascade_depth_limit cannot be negative")
	}
	for _, t := range cfg.TimeOfDay {
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			v.addf("time of day %q starts at an invalid time %02d:%02d", t.Label, t.Hour, t.Minute)
		}
	}
}

func (v *validator) validateEncounter(enc *campaign.EncounterDefinition, chars, locations, edges map[int64]bool) {
	for _, spawn := range enc.NPCs {
		if spawn.CharacterID != nil {
			if !chars[*spawn.CharacterID] {
				v.addf("encounter %q spawns unknown character %d", enc.Name, *spawn.CharacterID)
			}
		} else if strings.TrimSpace(spawn.Name) == "" {
			v.addf("encounter %q has a spawn with neither character_id nor name", enc.Name)
		}
		if spawn.Count < 0 {
			v.addf("encounter %q has a negative spawn count", enc.Name)
		}
	}
	for _, l := range enc.Loot {
		if l.Weight < 0 {
			v.addf("encounter %q loot %q has a negative weight", enc.Name, l.Item)
		}
	}
	if enc.Conditions != nil {
		for _, id := range enc.Conditions.LocationIDs {
			if !locations[id] {
				v.addf("encounter %q is restricted to unknown location %d", enc.Name, id)
			}
		}
		for _, id := range enc.Conditions.EdgeIDs {
			if !edges[id] {
				v.addf("encounter %q is restricted to unknown edge %d", enc.Name, id)
			}
		}
	}
}

func (v *validator) validateRule(r *campaign.Rule, chars map[int64]bool) {
	if !r.TriggerType.Valid() {
		v.addf("rule %q has invalid trigger_type %q", r.Name, r.TriggerType)
	}
	switch r.ActionMode {
	case campaign.ModeAuto, campaign.ModeSuggest:
	default:
		v.addf("rule %q has invalid action_mode %q", r.Name, r.ActionMode)
	}
	switch r.TargetMode {
	case campaign.TargetEnvironment, campaign.TargetAllPCs, campaign.TargetAllNPCs, campaign.TargetAllCharacters:
	case campaign.TargetSpecific:
		if len(r.TargetConfig.CharacterIDs) == 0 {
			v.addf("rule %q targets specific characters but lists none", r.Name)
		}
		for _, id := range r.TargetConfig.CharacterIDs {
			if !chars[id] {
				v.addf("rule %q targets unknown character %d", r.Name, id)
			}
		}
	default:
		v.addf("rule %q has invalid target_mode %q", r.Name, r.TargetMode)
	}
	for i, a := range r.Actions {
		if u, ok := a.(campaign.UnknownAction); ok {
			v.addf("rule %q action %d has unknown type %q", r.Name, i, u.Type)
		}
	}
	v.walkCondition(r.Name, r.Conditions.Root)
}

func (v *validator) walkCondition(rule string, c campaign.Condition) {
	switch n := c.(type) {
	case nil:
	case campaign.All:
		for _, child := range n.Children {
			v.walkCondition(rule, child)
		}
	case campaign.Any:
		for _, child := range n.Children {
			v.walkCondition(rule, child)
		}
	case campaign.Not:
		v.walkCondition(rule, n.Child)
	case campaign.UnknownCondition:
		v.addf("rule %q has unknown condition type %q", rule, n.Type)
	}
}

func collect[T any](list []T, id func(T) int64) []int64 {
	out := make([]int64, len(list))
	for i, item := range list {
		out[i] = id(item)
	}
	return out
}
