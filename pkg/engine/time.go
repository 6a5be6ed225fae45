package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/rules"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

// Rest types and their fixed durations in hours.
const (
	RestShort = "short"
	RestLong  = "long"
)

var restHours = map[string]int{RestShort: 1, RestLong: 8}

// AdvanceTime moves the clock, then fires on_time_advance, on_schedule
// and on_effect_change for effects that expired.
func (e *Engine) AdvanceTime(ctx context.Context, campaignID int64, hours, minutes int) (*Outcome, error) {
	if hours < 0 || minutes < 0 || hours+minutes == 0 {
		return nil, invalid("advance needs a positive duration")
	}
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out := newOutcome()
	ctx = withOutcome(ctx, out)
	if err := e.advanceTime(ctx, campaignID, hours, minutes, 0, out); err != nil {
		return nil, err
	}
	return e.finish(ctx, c, out)
}

// advanceTime is the unlocked advance shared by every flow that moves the
// clock. Depth is the cascade depth its triggers run at.
func (e *Engine) advanceTime(ctx context.Context, campaignID int64, hours, minutes, depth int, out *Outcome) error {
	res, err := e.sim.Advance(ctx, campaignID, hours, minutes)
	if err != nil {
		return translate(err)
	}
	out.Events = append(out.Events, res.Events...)
	if res.Encounter != nil {
		out.Encounter = res.Encounter
	}

	after := res.Environment.Time()
	before := res.Before
	advCtx := map[string]any{"hours": hours, "minutes": minutes}
	if res.Encounter != nil {
		advCtx[rules.KeyEncounterID] = res.Encounter.ID
	}
	e.fire(ctx, campaignID, rules.Trigger{Type: campaign.TriggerTimeAdvance, Context: advCtx}, depth, out)
	e.fire(ctx, campaignID, rules.Trigger{Type: campaign.TriggerSchedule, Context: map[string]any{}, Before: &before, After: &after}, depth, out)
	for _, x := range res.Expired {
		e.fire(ctx, campaignID, rules.EffectChange(x.CharacterID, x.EffectName, rules.ChangeExpired), depth, out)
	}
	return nil
}

// ruleClock applies rule-requested time advances.
type ruleClock struct{ e *Engine }

func (c ruleClock) AdvanceTime(ctx context.Context, campaignID int64, hours, minutes, depth int) ([]campaign.Event, error) {
	out := newOutcome()
	if err := c.e.advanceTime(ctx, campaignID, hours, minutes, depth, out); err != nil {
		return nil, err
	}
	if parent := outcomeFrom(ctx); parent != nil {
		parent.Fired = append(parent.Fired, out.Fired...)
		parent.Notifications = append(parent.Notifications, out.Notifications...)
		parent.BatchIDs = append(parent.BatchIDs, out.BatchIDs...)
		if out.Encounter != nil {
			parent.Encounter = out.Encounter
		}
	}
	return out.Events, nil
}

// combatClock converts combat rounds into game minutes.
type combatClock struct{ e *Engine }

func (c combatClock) AdvanceCombatTime(ctx context.Context, campaignID int64, minutes int) ([]campaign.Event, error) {
	out := outcomeFrom(ctx)
	if out == nil {
		out = newOutcome()
	}
	mark := len(out.Events)
	if err := c.e.advanceTime(ctx, campaignID, 0, minutes, 0, out); err != nil {
		return nil, err
	}
	events := append([]campaign.Event(nil), out.Events[mark:]...)
	out.Events = out.Events[:mark]
	return events, nil
}

// TakeRest advances one or eight hours, stamps every PC's last rest and
// fires on_rest.
func (e *Engine) TakeRest(ctx context.Context, campaignID int64, restType string) (*Outcome, error) {
	restType = strings.ToLower(strings.TrimSpace(restType))
	hours, ok := restHours[restType]
	if !ok {
		return nil, invalid("rest_type must be short or long, got %q", restType)
	}
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out := newOutcome()
	ctx = withOutcome(ctx, out)
	if err := e.advanceTime(ctx, campaignID, hours, 0, 0, out); err != nil {
		return nil, err
	}

	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, err
	}
	now := env.Time()
	pcs, err := e.store.ListCharacters(ctx, campaignID, storage.CharacterFilter{Type: campaign.CharacterPC})
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	for _, pc := range pcs {
		t := now
		pc.LastRestAt = &t
		if err := e.store.SaveCharacter(ctx, pc); err != nil {
			return nil, fmt.Errorf("failed to save character: %w", err)
		}
	}
	e.append(ctx, campaignID, LogRest, fmt.Sprintf("The party took a %s rest (%dh)", restType, hours))

	e.fire(ctx, campaignID, rules.Trigger{
		Type:    campaign.TriggerRest,
		Context: map[string]any{rules.KeyRestType: restType},
	}, 0, out)
	return e.finish(ctx, c, out)
}

// Travel moves the party along an edge: it sets out on the edge, spends
// the edge's travel time there and arrives at the far end.
func (e *Engine) Travel(ctx context.Context, campaignID, edgeID int64) (*Outcome, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	edge, err := e.store.GetEdge(ctx, campaignID, edgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edge: %w", err)
	}
	if edge == nil {
		return nil, notFound("edge %d", edgeID)
	}
	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, err
	}
	dest := edge.ToLocationID
	if env.CurrentLocationID != nil && *env.CurrentLocationID == edge.ToLocationID {
		dest = edge.FromLocationID
	}
	loc, err := e.store.GetLocation(ctx, campaignID, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	if loc == nil {
		return nil, notFound("location %d", dest)
	}

	env.OnEdge(edge.ID)
	if err := e.store.SaveEnvironment(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}

	out := newOutcome()
	ctx = withOutcome(ctx, out)
	total := int(math.Round(edge.TravelHours * 60))
	if total > 0 {
		if err := e.advanceTime(ctx, campaignID, total/60, total%60, 0, out); err != nil {
			return nil, err
		}
	}

	if err := e.arrive(ctx, c, loc, &edge.ID, out); err != nil {
		return nil, err
	}
	e.append(ctx, campaignID, LogTravel, fmt.Sprintf("Travelled %s to %s", travelName(edge), loc.Name))
	return e.finish(ctx, c, out)
}

func travelName(edge *campaign.Edge) string {
	if edge.Name != "" {
		return edge.Name
	}
	return fmt.Sprintf("edge %d", edge.ID)
}

// SetLocation moves the party directly to a location.
func (e *Engine) SetLocation(ctx context.Context, campaignID, locationID int64) (*Outcome, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	loc, err := e.store.GetLocation(ctx, campaignID, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	if loc == nil {
		return nil, notFound("location %d", locationID)
	}
	out := newOutcome()
	ctx = withOutcome(ctx, out)
	if err := e.arrive(ctx, c, loc, nil, out); err != nil {
		return nil, err
	}
	return e.finish(ctx, c, out)
}

// arrive places the party at loc and fires on_location_change.
func (e *Engine) arrive(ctx context.Context, c *campaign.Campaign, loc *campaign.Location, edgeID *int64, out *Outcome) error {
	env, err := e.environment(ctx, c)
	if err != nil {
		return err
	}
	env.AtLocation(loc.ID)
	if err := e.store.SaveEnvironment(ctx, env); err != nil {
		return fmt.Errorf("failed to save environment: %w", err)
	}

	msg := "Arrived at " + loc.Name
	out.Events = append(out.Events, campaign.Event{Type: campaign.EventLocationChanged, Message: msg, To: loc.Name})
	e.append(ctx, c.ID, LogLocation, msg)

	trigCtx := map[string]any{rules.KeyLocationID: loc.ID}
	if edgeID != nil {
		trigCtx["edge_id"] = *edgeID
	}
	e.fire(ctx, c.ID, rules.Trigger{Type: campaign.TriggerLocationChange, Context: trigCtx}, 0, out)
	return nil
}

// RollEncounter rolls for an encounter over hours without moving the
// clock.
func (e *Engine) RollEncounter(ctx context.Context, campaignID int64, hours float64) (*Outcome, error) {
	if hours <= 0 {
		return nil, invalid("hours must be positive")
	}
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	res, err := e.sim.RollEncounter(ctx, campaignID, hours)
	if err != nil {
		return nil, translate(err)
	}
	out := newOutcome()
	out.Events = append(out.Events, res.Events...)
	out.Encounter = res.Encounter
	return e.finish(ctx, c, out)
}
