// Package conditions evaluates rule condition trees against character and
// environment state, reporting an explainable pass/fail per leaf.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/attributes"
	"github.com/jwebster45206/campaign-engine/pkg/calendar"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/random"
)

// Detail is the outcome of one leaf.
type Detail struct {
	Type   string `json:"type"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason"`
}

type Result struct {
	Pass    bool     `json:"pass"`
	Details []Detail `json:"details"`
}

// Context is everything a condition can look at.
type Context struct {
	CampaignID  int64
	Config      campaign.Config
	Character   *campaign.Character // nil for environment-only evaluation
	Environment *campaign.EnvironmentState
	TimeOfDay   string
	Trigger     map[string]any
	Vars        map[string]any
}

// SheetResolver resolves effective attributes.
type SheetResolver interface {
	Resolve(ctx context.Context, campaignID, characterID int64) (*attributes.Sheet, error)
}

// LocationStore looks up locations for location_property.
type LocationStore interface {
	GetLocation(ctx context.Context, campaignID, id int64) (*campaign.Location, error)
}

type Evaluator struct {
	sheets    SheetResolver
	locations LocationStore
	rng       random.Source
}

func NewEvaluator(sheets SheetResolver, locations LocationStore, rng random.Source) *Evaluator {
	return &Evaluator{sheets: sheets, locations: locations, rng: rng}
}

// Evaluate walks the tree. A nil tree passes with no details. Every child
// of a combinator is evaluated so the details are complete. Leaf errors
// and panics become failing details; Evaluate itself never panics.
func (e *Evaluator) Evaluate(ctx context.Context, c campaign.Condition, ec *Context) Result {
	switch n := c.(type) {
	case nil:
		return Result{Pass: true, Details: []Detail{}}
	case campaign.All:
		res := Result{Pass: true, Details: []Detail{}}
		for _, child := range n.Children {
			r := e.Evaluate(ctx, child, ec)
			res.Details = append(res.Details, r.Details...)
			if !r.Pass {
				res.Pass = false
			}
		}
		return res
	case campaign.Any:
		res := Result{Pass: false, Details: []Detail{}}
		for _, child := range n.Children {
			r := e.Evaluate(ctx, child, ec)
			res.Details = append(res.Details, r.Details...)
			if r.Pass {
				res.Pass = true
			}
		}
		return res
	case campaign.Not:
		r := e.Evaluate(ctx, n.Child, ec)
		details := make([]Detail, len(r.Details))
		for i, d := range r.Details {
			d.Reason = "NOT: " + d.Reason
			details[i] = d
		}
		return Result{Pass: !r.Pass, Details: details}
	default:
		d := e.leaf(ctx, c, ec)
		return Result{Pass: d.Pass, Details: []Detail{d}}
	}
}

func (e *Evaluator) leaf(ctx context.Context, c campaign.Condition, ec *Context) (d Detail) {
	d.Type = string(c.Kind())
	defer func() {
		if r := recover(); r != nil {
			d.Pass = false
			d.Reason = fmt.Sprintf("error: %v", r)
		}
	}()

	pass, reason, err := e.check(ctx, c, ec)
	if err != nil {
		d.Pass = false
		d.Reason = err.Error()
		return d
	}
	d.Pass = pass
	d.Reason = reason
	return d
}

var errNoCharacter = errors.New("no character in context")

func (e *Evaluator) sheet(ctx context.Context, ec *Context) (*attributes.Sheet, error) {
	if ec.Character == nil {
		return nil, errNoCharacter
	}
	s, err := e.sheets.Resolve(ctx, ec.CampaignID, ec.Character.ID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("character %d not found", ec.Character.ID)
	}
	return s, nil
}

func (e *Evaluator) check(ctx context.Context, c campaign.Condition, ec *Context) (bool, string, error) {
	env := ec.Environment
	if env == nil {
		env = &campaign.EnvironmentState{}
	}

	switch n := c.(type) {
	case campaign.AttributeGTE:
		v, err := e.attribute(ctx, ec, n.Attribute)
		if err != nil {
			return false, "", err
		}
		return v >= n.Value, fmt.Sprintf("%s %g >= %g", n.Attribute, v, n.Value), nil

	case campaign.AttributeLTE:
		v, err := e.attribute(ctx, ec, n.Attribute)
		if err != nil {
			return false, "", err
		}
		return v <= n.Value, fmt.Sprintf("%s %g <= %g", n.Attribute, v, n.Value), nil

	case campaign.AttributeEQ:
		v, err := e.attribute(ctx, ec, n.Attribute)
		if err != nil {
			return false, "", err
		}
		return v == n.Value, fmt.Sprintf("%s %g == %g", n.Attribute, v, n.Value), nil

	case campaign.TraitEquals:
		if ec.Character == nil {
			return false, "", errNoCharacter
		}
		actual := ec.Character.Attributes[n.Trait]
		return campaign.ValuesEqual(actual, n.Value), fmt.Sprintf("%s is %v, want %v", n.Trait, actual, n.Value), nil

	case campaign.TraitIn:
		if ec.Character == nil {
			return false, "", errNoCharacter
		}
		actual := ec.Character.Attributes[n.Trait]
		for _, v := range n.Values {
			if campaign.ValuesEqual(actual, v) {
				return true, fmt.Sprintf("%s is %v", n.Trait, actual), nil
			}
		}
		return false, fmt.Sprintf("%s is %v, not in %v", n.Trait, actual, n.Values), nil

	case campaign.CharacterTypeIs:
		if ec.Character == nil {
			return false, "", errNoCharacter
		}
		pass := strings.EqualFold(string(ec.Character.Type), string(n.Value))
		return pass, fmt.Sprintf("character type is %s", ec.Character.Type), nil

	case campaign.HasEffect:
		s, err := e.sheet(ctx, ec)
		if err != nil {
			return false, "", err
		}
		_, ok := s.Effect(n.EffectName)
		return ok, presence("effect", n.EffectName, ok), nil

	case campaign.LacksEffect:
		s, err := e.sheet(ctx, ec)
		if err != nil {
			return false, "", err
		}
		_, ok := s.Effect(n.EffectName)
		return !ok, presence("effect", n.EffectName, ok), nil

	case campaign.HasItem:
		s, err := e.sheet(ctx, ec)
		if err != nil {
			return false, "", err
		}
		ok := s.ItemQuantity(n.ItemName) > 0
		return ok, presence("item", n.ItemName, ok), nil

	case campaign.LacksItem:
		s, err := e.sheet(ctx, ec)
		if err != nil {
			return false, "", err
		}
		ok := s.ItemQuantity(n.ItemName) > 0
		return !ok, presence("item", n.ItemName, ok), nil

	case campaign.ItemQuantityLTE:
		s, err := e.sheet(ctx, ec)
		if err != nil {
			return false, "", err
		}
		q := s.ItemQuantity(n.ItemName)
		return q <= n.Value, fmt.Sprintf("%s quantity %d <= %d", n.ItemName, q, n.Value), nil

	case campaign.WeatherIs:
		return strings.EqualFold(env.Weather, n.Value), fmt.Sprintf("weather is %s", env.Weather), nil

	case campaign.WeatherIn:
		for _, w := range n.Values {
			if strings.EqualFold(env.Weather, w) {
				return true, fmt.Sprintf("weather is %s", env.Weather), nil
			}
		}
		return false, fmt.Sprintf("weather %s not in %v", env.Weather, n.Values), nil

	case campaign.TimeOfDayIs:
		tod := ec.TimeOfDay
		if tod == "" {
			tod = calendar.TimeOfDay(ec.Config.TimeOfDay, env.Time().MinuteOfDay())
		}
		return strings.EqualFold(tod, n.Value), fmt.Sprintf("time of day is %s", tod), nil

	case campaign.TimeBetween:
		from, err := calendar.ParseClock(n.From)
		if err != nil {
			return false, "", err
		}
		to, err := calendar.ParseClock(n.To)
		if err != nil {
			return false, "", err
		}
		now := env.Time()
		pass := calendar.InWindow(now.MinuteOfDay(), from, to)
		return pass, fmt.Sprintf("time %02d:%02d in %s-%s", now.Hour, now.Minute, n.From, n.To), nil

	case campaign.CalendarDay:
		pass := env.Day == n.Day && (n.Month == nil || env.Month == *n.Month)
		return pass, fmt.Sprintf("date is day %d of month %d", env.Day, env.Month), nil

	case campaign.SeasonIs:
		season := calendar.Season(env.Month)
		return strings.EqualFold(season, n.Value), fmt.Sprintf("season is %s", season), nil

	case campaign.LocationIs:
		pass := env.CurrentLocationID != nil && *env.CurrentLocationID == n.LocationID
		return pass, locationReason(env), nil

	case campaign.LocationIn:
		if env.CurrentLocationID != nil {
			for _, id := range n.LocationIDs {
				if id == *env.CurrentLocationID {
					return true, locationReason(env), nil
				}
			}
		}
		return false, locationReason(env), nil

	case campaign.LocationProperty:
		if env.CurrentLocationID == nil {
			return false, "not at a location", nil
		}
		loc, err := e.locations.GetLocation(ctx, ec.CampaignID, *env.CurrentLocationID)
		if err != nil {
			return false, "", err
		}
		if loc == nil {
			return false, fmt.Sprintf("location %d not found", *env.CurrentLocationID), nil
		}
		actual, ok := loc.Properties[n.Property]
		if !ok {
			return false, fmt.Sprintf("%s has no property %s", loc.Name, n.Property), nil
		}
		if n.Value == nil {
			return campaign.Truthy(actual), fmt.Sprintf("%s.%s is %v", loc.Name, n.Property, actual), nil
		}
		return campaign.ValuesEqual(actual, n.Value), fmt.Sprintf("%s.%s is %v, want %v", loc.Name, n.Property, actual, n.Value), nil

	case campaign.RandomChance:
		roll := e.rng.Float64()
		return roll < n.Probability, fmt.Sprintf("rolled %.3f against %.3f", roll, n.Probability), nil

	case campaign.HoursSinceEffect:
		s, err := e.sheet(ctx, ec)
		if err != nil {
			return false, "", err
		}
		eff, ok := s.Effect(n.EffectName)
		if !ok {
			return false, fmt.Sprintf("no effect %s", n.EffectName), nil
		}
		if eff.DurationType != campaign.DurationHours || eff.RemainingHours == nil {
			return false, fmt.Sprintf("effect %s is not timed in hours", n.EffectName), nil
		}
		elapsed := eff.DurationValue - *eff.RemainingHours
		return compare(n.Operator, elapsed, n.Value), fmt.Sprintf("%s applied %g hours ago", n.EffectName, elapsed), nil

	case campaign.HoursSinceLastRest:
		if ec.Character == nil {
			return false, "", errNoCharacter
		}
		if ec.Character.LastRestAt == nil {
			return compare(n.Operator, math.Inf(1), n.Value), "never rested", nil
		}
		hours := float64(calendar.MinutesBetween(*ec.Character.LastRestAt, env.Time(), ec.Config.Calendar)) / 60
		return compare(n.Operator, hours, n.Value), fmt.Sprintf("last rest %.1f hours ago", hours), nil

	case campaign.UnknownCondition:
		return false, "", fmt.Errorf("unknown condition type %q", n.Type)
	}

	return false, "", fmt.Errorf("unsupported condition %T", c)
}

func (e *Evaluator) attribute(ctx context.Context, ec *Context, attr string) (float64, error) {
	s, err := e.sheet(ctx, ec)
	if err != nil {
		return 0, err
	}
	v, ok := s.Value(attr)
	if !ok {
		return 0, fmt.Errorf("attribute %s not set", attr)
	}
	return v, nil
}

// compare applies gte (default) or lte.
func compare(op string, actual, want float64) bool {
	if strings.EqualFold(op, "lte") {
		return actual <= want
	}
	return actual >= want
}

func presence(kind, name string, ok bool) string {
	if ok {
		return fmt.Sprintf("has %s %s", kind, name)
	}
	return fmt.Sprintf("does not have %s %s", kind, name)
}

func locationReason(env *campaign.EnvironmentState) string {
	switch {
	case env.CurrentLocationID != nil:
		return fmt.Sprintf("at location %d", *env.CurrentLocationID)
	case env.CurrentEdgeID != nil:
		return fmt.Sprintf("traveling edge %d", *env.CurrentEdgeID)
	}
	return "no current location"
}
