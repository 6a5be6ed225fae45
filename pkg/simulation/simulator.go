// Package simulation advances the campaign clock: date rollover, hourly
// weather rolls, hour-based effect timers and random encounter rolls.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jwebster45206/campaign-engine/pkg/calendar"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
	"github.com/jwebster45206/campaign-engine/pkg/weather"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrInvalidAdvance   = errors.New("time advance must not be negative")
)

// Session log entry types written by the simulator.
const (
	LogTimeAdvance = "time_advance"
	LogWeather     = "weather"
	LogEncounter   = "encounter"
	LogEffect      = "effect"
)

// Result of one Advance call.
type Result struct {
	Environment *campaign.EnvironmentState    `json:"environment"`
	Events      []campaign.Event              `json:"events"`
	Encounter   *campaign.EncounterDefinition `json:"encounter,omitempty"`
	Expired     []ExpiredEffect               `json:"-"`
	Before      campaign.GameTime             `json:"-"`
}

// ExpiredEffect identifies an hour-based effect removed by the advance.
type ExpiredEffect struct {
	CharacterID int64
	EffectName  string
}

type Simulator struct {
	store  storage.Storage
	log    storage.SessionLog
	rng    random.Source
	logger *slog.Logger
}

func NewSimulator(store storage.Storage, log storage.SessionLog, rng random.Source, logger *slog.Logger) *Simulator {
	return &Simulator{store: store, log: log, rng: rng, logger: logger}
}

func (s *Simulator) load(ctx context.Context, campaignID int64) (*campaign.Campaign, *campaign.EnvironmentState, error) {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, ErrCampaignNotFound
	}
	env, err := s.store.GetEnvironment(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if env == nil {
		env = campaign.NewEnvironment(campaignID, c.Config)
	}
	return c, env, nil
}

// Advance moves the clock forward, rolls weather once per whole hour (at
// least once), ticks hour-based effects and rolls for an encounter. Every
// discrete outcome is written to the session log as its own row.
func (s *Simulator) Advance(ctx context.Context, campaignID int64, hours, minutes int) (*Result, error) {
	total := hours*60 + minutes
	if hours < 0 || minutes < 0 || total < 0 {
		return nil, ErrInvalidAdvance
	}

	c, env, err := s.load(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	cfg := c.Config

	res := &Result{Before: env.Time(), Events: []campaign.Event{}}
	post := calendar.Advance(env.Time(), cfg.Calendar, total)
	env.SetTime(post)

	msg := fmt.Sprintf("Time advanced %s to %s", formatDuration(total), describeTime(post, cfg.Calendar))
	res.Events = append(res.Events, campaign.Event{Type: campaign.EventTimeAdvanced, Message: msg})
	s.append(ctx, campaignID, LogTimeAdvance, msg)

	if err := s.rollWeather(ctx, cfg, env, total, res); err != nil {
		return nil, err
	}

	if err := s.tickHourEffects(ctx, campaignID, float64(total)/60, res); err != nil {
		return nil, err
	}

	enc, err := s.rollEncounter(ctx, cfg, env, float64(total)/60)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		res.Encounter = enc
		res.Events = append(res.Events, encounterEvent(enc))
		s.append(ctx, campaignID, LogEncounter, encounterEvent(enc).Message)
	}

	if err := s.store.SaveEnvironment(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to save environment: %w", err)
	}
	res.Environment = env
	return res, nil
}

func (s *Simulator) rollWeather(ctx context.Context, cfg campaign.Config, env *campaign.EnvironmentState, totalMinutes int, res *Result) error {
	rolls := max(1, totalMinutes/60)

	var override *campaign.WeatherOverride
	if env.CurrentLocationID != nil {
		loc, err := s.store.GetLocation(ctx, env.CampaignID, *env.CurrentLocationID)
		if err != nil {
			return fmt.Errorf("failed to load location: %w", err)
		}
		if loc != nil {
			override = loc.WeatherOverride
		}
	}

	for range rolls {
		next := weather.Next(cfg.Weather, env.Weather, override, s.rng)
		if next == env.Weather {
			continue
		}
		msg := fmt.Sprintf("Weather changed from %s to %s", env.Weather, next)
		res.Events = append(res.Events, campaign.Event{
			Type:    campaign.EventWeatherChanged,
			Message: msg,
			From:    env.Weather,
			To:      next,
		})
		s.append(ctx, env.CampaignID, LogWeather, msg)
		env.Weather = next
	}
	return nil
}

func (s *Simulator) tickHourEffects(ctx context.Context, campaignID int64, hours float64, res *Result) error {
	if hours <= 0 {
		return nil
	}
	applied, err := s.store.ListAppliedEffects(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("failed to list applied effects: %w", err)
	}
	for _, ae := range applied {
		if ae.RemainingHours == nil {
			continue
		}
		remaining := *ae.RemainingHours - hours
		if remaining > 0 {
			ae.RemainingHours = &remaining
			if err := s.store.SaveAppliedEffect(ctx, ae); err != nil {
				return fmt.Errorf("failed to save applied effect %d: %w", ae.ID, err)
			}
			continue
		}

		name := s.effectName(ctx, campaignID, ae.EffectID)
		if err := s.store.DeleteAppliedEffect(ctx, campaignID, ae.ID); err != nil {
			return fmt.Errorf("failed to delete applied effect %d: %w", ae.ID, err)
		}
		ev := ExpiredEvent(ae.CharacterID, name)
		res.Events = append(res.Events, ev)
		res.Expired = append(res.Expired, ExpiredEffect{CharacterID: ae.CharacterID, EffectName: name})
		s.append(ctx, campaignID, LogEffect, ev.Message)
	}
	return nil
}

func (s *Simulator) effectName(ctx context.Context, campaignID, effectID int64) string {
	def, err := s.store.GetEffectDefinition(ctx, campaignID, effectID)
	if err != nil || def == nil {
		return fmt.Sprintf("effect %d", effectID)
	}
	return def.Name
}

// ExpiredEvent builds the effect_expired event for a character.
func ExpiredEvent(characterID int64, effectName string) campaign.Event {
	id := characterID
	return campaign.Event{
		Type:        campaign.EventEffectExpired,
		Message:     fmt.Sprintf("%s expired on character %d", effectName, characterID),
		CharacterID: &id,
		EffectName:  effectName,
	}
}

// append writes a session log row; failures are logged and swallowed.
func (s *Simulator) append(ctx context.Context, campaignID int64, entryType, message string) {
	if s.log == nil {
		return
	}
	if err := s.log.Append(ctx, campaignID, entryType, message); err != nil {
		s.logger.Warn("Failed to append session log", "campaign_id", campaignID, "entry_type", entryType, "error", err)
	}
}

func formatDuration(minutes int) string {
	h, m := minutes/60, minutes%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dm", m)
}

func describeTime(t campaign.GameTime, cal campaign.Calendar) string {
	return fmt.Sprintf("%s %d, year %d, %02d:%02d", calendar.MonthName(cal, t.Month), t.Day, t.Year, t.Hour, t.Minute)
}

// clamp01 limits p to [0, 1]; NaN becomes 0.
func clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(1, p))
}
