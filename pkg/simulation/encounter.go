package simulation

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/calendar"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/random"
)

// EncounterProbability is the chance of at least one encounter over hours
// at a per-hour base rate, scaled by modifier and clamped to [0, 1].
func EncounterProbability(baseRate, hours, modifier float64) float64 {
	if hours <= 0 {
		return 0
	}
	base := clamp01(baseRate)
	p := 1 - math.Pow(1-base, hours)
	return clamp01(p * modifier)
}

// RollEncounter rolls for an encounter over hours without moving the
// clock.
func (s *Simulator) RollEncounter(ctx context.Context, campaignID int64, hours float64) (*Result, error) {
	c, env, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	res := &Result{Before: env.Time(), Events: []campaign.Event{}, Environment: env}

	enc, err := s.rollEncounter(ctx, c.Config, env, hours)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		ev := encounterEvent(enc)
		res.Encounter = enc
		res.Events = append(res.Events, ev)
		s.append(ctx, campaignID, LogEncounter, ev.Message)
		if err := s.store.SaveEnvironment(ctx, env); err != nil {
			return nil, fmt.Errorf("failed to save environment: %w", err)
		}
	}
	return res, nil
}

func (s *Simulator) rollEncounter(ctx context.Context, cfg campaign.Config, env *campaign.EnvironmentState, hours float64) (*campaign.EncounterDefinition, error) {
	settings := cfg.Encounters
	if !settings.Enabled {
		return nil, nil
	}

	now := env.Time()
	if env.LastEncounterAt != nil {
		since := calendar.MinutesBetween(*env.LastEncounterAt, now, cfg.Calendar)
		if float64(since) < settings.MinIntervalHours*60 {
			s.logger.Debug("Encounter roll skipped by minimum interval",
				"campaign_id", env.CampaignID, "minutes_since", since)
			return nil, nil
		}
	}

	modifier, err := s.encounterModifier(ctx, env)
	if err != nil {
		return nil, err
	}
	p := EncounterProbability(settings.BaseRate, hours, modifier)
	if s.rng.Float64() >= p {
		return nil, nil
	}

	all, err := s.store.ListEncounters(ctx, env.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list encounters: %w", err)
	}
	tod := calendar.TimeOfDay(cfg.TimeOfDay, now.MinuteOfDay())
	var eligible []*campaign.EncounterDefinition
	var weights []float64
	for _, enc := range all {
		if Eligible(enc, env, tod) {
			eligible = append(eligible, enc)
			weights = append(weights, enc.Weight())
		}
	}
	idx := random.Weighted(s.rng, weights)
	if idx < 0 {
		return nil, nil
	}

	env.LastEncounterAt = &now
	return eligible[idx], nil
}

// encounterModifier prefers the current edge's modifier over the
// location's; missing modifiers count as 1.
func (s *Simulator) encounterModifier(ctx context.Context, env *campaign.EnvironmentState) (float64, error) {
	if env.CurrentEdgeID != nil {
		edge, err := s.store.GetEdge(ctx, env.CampaignID, *env.CurrentEdgeID)
		if err != nil {
			return 0, fmt.Errorf("failed to load edge: %w", err)
		}
		if edge != nil && edge.EncounterModifier != nil {
			return *edge.EncounterModifier, nil
		}
		return 1, nil
	}
	if env.CurrentLocationID != nil {
		loc, err := s.store.GetLocation(ctx, env.CampaignID, *env.CurrentLocationID)
		if err != nil {
			return 0, fmt.Errorf("failed to load location: %w", err)
		}
		if loc != nil && loc.EncounterModifier != nil {
			return *loc.EncounterModifier, nil
		}
	}
	return 1, nil
}

// Eligible reports whether an encounter's conditions hold. Unset
// conditions always hold; location and edge lists are alternatives.
func Eligible(enc *campaign.EncounterDefinition, env *campaign.EnvironmentState, timeOfDay string) bool {
	c := enc.Conditions
	if c == nil {
		return true
	}
	if len(c.LocationIDs) > 0 || len(c.EdgeIDs) > 0 {
		atLocation := env.CurrentLocationID != nil && slices.Contains(c.LocationIDs, *env.CurrentLocationID)
		onEdge := env.CurrentEdgeID != nil && slices.Contains(c.EdgeIDs, *env.CurrentEdgeID)
		if !atLocation && !onEdge {
			return false
		}
	}
	if len(c.TimeOfDay) > 0 && !containsFold(c.TimeOfDay, timeOfDay) {
		return false
	}
	if len(c.Weather) > 0 && !containsFold(c.Weather, env.Weather) {
		return false
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func encounterEvent(enc *campaign.EncounterDefinition) campaign.Event {
	id := enc.ID
	return campaign.Event{
		Type:        campaign.EventEncounterTriggered,
		Message:     fmt.Sprintf("Encounter: %s", enc.Name),
		EncounterID: &id,
	}
}
