package simulation

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

type harness struct {
	store *storage.Store
	log   *storage.MemorySessionLog
	rng   *random.Fixed
	sim   *Simulator
}

func newHarness(t *testing.T, cfg campaign.Config, draws ...float64) *harness {
	t.Helper()
	store := storage.NewMemoryStorage(nil)
	require.NoError(t, store.SaveCampaign(context.Background(), &campaign.Campaign{ID: 1, Name: "Test", Config: cfg}))
	log := storage.NewMemorySessionLog()
	if len(draws) == 0 {
		draws = []float64{0.5}
	}
	rng := random.NewFixed(draws...)
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return &harness{store: store, log: log, rng: rng, sim: NewSimulator(store, log, rng, logger)}
}

func (h *harness) setEnv(t *testing.T, mutate func(env *campaign.EnvironmentState)) {
	t.Helper()
	c, _ := h.store.GetCampaign(context.Background(), 1)
	env := campaign.NewEnvironment(1, c.Config)
	mutate(env)
	require.NoError(t, h.store.SaveEnvironment(context.Background(), env))
}

func rainyConfig() campaign.Config {
	cfg := campaign.DefaultConfig()
	cfg.Weather = campaign.WeatherConfig{
		Options:    []string{"Clear", "Rain"},
		Volatility: 0,
		Transitions: map[string]map[string]float64{
			"Clear": {"Rain": 1},
			"Rain":  {"Rain": 1},
		},
	}
	return cfg
}

func countEvents(events []campaign.Event, typ campaign.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestAdvance_DateRollover(t *testing.T) {
	cfg := campaign.DefaultConfig()
	cfg.Calendar.Months = []campaign.Month{{Name: "Short", Days: 28}, {Name: "Long", Days: 30}}
	h := newHarness(t, cfg)
	h.setEnv(t, func(env *campaign.EnvironmentState) {
		env.Month, env.Day, env.Hour, env.Minute = 1, 25, 8, 0
	})

	res, err := h.sim.Advance(context.Background(), 1, 240, 0)
	require.NoError(t, err)
	env := res.Environment
	assert.Equal(t, 2, env.Month)
	assert.Equal(t, 7, env.Day)
	assert.Equal(t, 8, env.Hour)

	res, err = h.sim.Advance(context.Background(), 1, 25, 90)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Environment.Day)
	assert.Equal(t, 10, res.Environment.Hour)
	assert.Equal(t, 30, res.Environment.Minute)
}

func TestAdvance_WeatherRollsPerWholeHour(t *testing.T) {
	tests := []struct {
		name           string
		hours, minutes int
		wantRolls      int
	}{
		{"sub-hour still rolls once", 0, 20, 1},
		{"whole hours", 3, 0, 3},
		{"minutes do not add a roll", 2, 59, 2},
		{"minutes spill into hours", 25, 90, 26},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, campaign.DefaultConfig())
			_, err := h.sim.Advance(context.Background(), 1, tt.hours, tt.minutes)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRolls, h.rng.Calls())
		})
	}
}

func TestAdvance_WeatherChangeEventsAndLogRows(t *testing.T) {
	h := newHarness(t, rainyConfig())

	res, err := h.sim.Advance(context.Background(), 1, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, "Rain", res.Environment.Weather)
	assert.Equal(t, 1, countEvents(res.Events, campaign.EventWeatherChanged))
	assert.Equal(t, 1, countEvents(res.Events, campaign.EventTimeAdvanced))

	entries := h.log.Entries(1)
	require.Len(t, entries, 2, "one row per discrete event")
	assert.Equal(t, LogTimeAdvance, entries[0].EntryType)
	assert.Equal(t, LogWeather, entries[1].EntryType)
	assert.Equal(t, "Weather changed from Clear to Rain", entries[1].Message)
}

func TestAdvance_FixedLocationWeather(t *testing.T) {
	h := newHarness(t, campaign.DefaultConfig())
	ctx := context.Background()
	loc := &campaign.Location{CampaignID: 1, Name: "Underdark",
		WeatherOverride: &campaign.WeatherOverride{Mode: campaign.WeatherFixed, Weather: "Fog"}}
	require.NoError(t, h.store.SaveLocation(ctx, loc))
	h.setEnv(t, func(env *campaign.EnvironmentState) { env.AtLocation(loc.ID) })

	res, err := h.sim.Advance(ctx, 1, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, "Fog", res.Environment.Weather)
	assert.Equal(t, 1, countEvents(res.Events, campaign.EventWeatherChanged))
	assert.Equal(t, 0, h.rng.Calls(), "fixed weather never draws")
}

func TestAdvance_HourEffects(t *testing.T) {
	h := newHarness(t, campaign.DefaultConfig())
	ctx := context.Background()
	def := &campaign.StatusEffectDefinition{CampaignID: 1, Name: "Exhausted", DurationType: campaign.DurationHours, DurationValue: 8}
	require.NoError(t, h.store.SaveEffectDefinition(ctx, def))
	short, long := 2.0, 5.0
	ending := &campaign.AppliedEffect{CampaignID: 1, CharacterID: 7, EffectID: def.ID, RemainingHours: &short}
	lasting := &campaign.AppliedEffect{CampaignID: 1, CharacterID: 8, EffectID: def.ID, RemainingHours: &long}
	indefinite := &campaign.AppliedEffect{CampaignID: 1, CharacterID: 9, EffectID: def.ID}
	for _, ae := range []*campaign.AppliedEffect{ending, lasting, indefinite} {
		require.NoError(t, h.store.SaveAppliedEffect(ctx, ae))
	}

	res, err := h.sim.Advance(ctx, 1, 2, 30)
	require.NoError(t, err)

	gone, _ := h.store.GetAppliedEffect(ctx, 1, ending.ID)
	assert.Nil(t, gone)
	kept, _ := h.store.GetAppliedEffect(ctx, 1, lasting.ID)
	require.NotNil(t, kept)
	assert.InDelta(t, 2.5, *kept.RemainingHours, 1e-9)
	still, _ := h.store.GetAppliedEffect(ctx, 1, indefinite.ID)
	assert.NotNil(t, still)

	assert.Equal(t, []ExpiredEffect{{CharacterID: 7, EffectName: "Exhausted"}}, res.Expired)
	assert.Equal(t, 1, countEvents(res.Events, campaign.EventEffectExpired))
}

func encounterConfig() campaign.Config {
	cfg := campaign.DefaultConfig()
	cfg.Encounters = campaign.EncounterSettings{Enabled: true, BaseRate: 0.5, MinIntervalHours: 4}
	return cfg
}

func TestAdvance_EncounterTriggerAndInterval(t *testing.T) {
	h := newHarness(t, encounterConfig(), 0.1)
	ctx := context.Background()

	loc := &campaign.Location{CampaignID: 1, Name: "Road",
		WeatherOverride: &campaign.WeatherOverride{Mode: campaign.WeatherFixed, Weather: "Clear"}}
	require.NoError(t, h.store.SaveLocation(ctx, loc))
	h.setEnv(t, func(env *campaign.EnvironmentState) { env.AtLocation(loc.ID) })

	wolves := &campaign.EncounterDefinition{CampaignID: 1, Name: "Wolves",
		Conditions: &campaign.EncounterConditions{LocationIDs: []int64{loc.ID}}}
	ghosts := &campaign.EncounterDefinition{CampaignID: 1, Name: "Ghosts",
		Conditions: &campaign.EncounterConditions{Weather: []string{"Fog"}}}
	require.NoError(t, h.store.SaveEncounter(ctx, wolves))
	require.NoError(t, h.store.SaveEncounter(ctx, ghosts))

	res, err := h.sim.Advance(ctx, 1, 1, 0)
	require.NoError(t, err)
	require.NotNil(t, res.Encounter)
	assert.Equal(t, "Wolves", res.Encounter.Name)
	require.NotNil(t, res.Environment.LastEncounterAt)
	assert.Equal(t, 9, res.Environment.LastEncounterAt.Hour)
	assert.Equal(t, 1, countEvents(res.Events, campaign.EventEncounterTriggered))

	// inside the minimum interval nothing is drawn
	calls := h.rng.Calls()
	res, err = h.sim.Advance(ctx, 1, 1, 0)
	require.NoError(t, err)
	assert.Nil(t, res.Encounter)
	assert.Equal(t, calls, h.rng.Calls())
}

func TestAdvance_EncounterDisabled(t *testing.T) {
	cfg := encounterConfig()
	cfg.Encounters.Enabled = false
	cfg.Weather.Options = nil
	h := newHarness(t, cfg, 0)
	require.NoError(t, h.store.SaveEncounter(context.Background(), &campaign.EncounterDefinition{CampaignID: 1, Name: "Bandits"}))

	res, err := h.sim.Advance(context.Background(), 1, 8, 0)
	require.NoError(t, err)
	assert.Nil(t, res.Encounter)
	assert.Equal(t, 0, h.rng.Calls())
}

func TestRollEncounter_NoEligibleKeepsTimestamp(t *testing.T) {
	h := newHarness(t, encounterConfig(), 0.1)
	ctx := context.Background()
	require.NoError(t, h.store.SaveEncounter(ctx, &campaign.EncounterDefinition{CampaignID: 1, Name: "Sea Serpent",
		Conditions: &campaign.EncounterConditions{EdgeIDs: []int64{99}}}))

	res, err := h.sim.RollEncounter(ctx, 1, 2)
	require.NoError(t, err)
	assert.Nil(t, res.Encounter)
	assert.Nil(t, res.Environment.LastEncounterAt)
}

func TestEncounterProbability(t *testing.T) {
	prev := 0.0
	for _, hours := range []float64{0, 0.5, 1, 2, 8, 24, 100} {
		p := EncounterProbability(0.1, hours, 1)
		assert.GreaterOrEqual(t, p, prev, "non-decreasing in hours")
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		prev = p
	}
	assert.InDelta(t, 0.19, EncounterProbability(0.1, 2, 1), 1e-9)
	assert.Equal(t, 1.0, EncounterProbability(0.5, 10, 5), "clamped after modifier")
	assert.Equal(t, 0.0, EncounterProbability(0.5, 10, -1))
}

func TestEligible(t *testing.T) {
	loc, edge := int64(3), int64(4)
	atLoc := &campaign.EnvironmentState{CurrentLocationID: &loc, Weather: "Rain"}
	onEdge := &campaign.EnvironmentState{CurrentEdgeID: &edge, Weather: "Clear"}

	tests := []struct {
		name string
		cond *campaign.EncounterConditions
		env  *campaign.EnvironmentState
		tod  string
		want bool
	}{
		{"no conditions", nil, atLoc, "Night", true},
		{"location match", &campaign.EncounterConditions{LocationIDs: []int64{3}}, atLoc, "Night", true},
		{"location miss", &campaign.EncounterConditions{LocationIDs: []int64{5}}, atLoc, "Night", false},
		{"edge match", &campaign.EncounterConditions{LocationIDs: []int64{5}, EdgeIDs: []int64{4}}, onEdge, "Night", true},
		{"time of day", &campaign.EncounterConditions{TimeOfDay: []string{"night"}}, atLoc, "Night", true},
		{"time of day miss", &campaign.EncounterConditions{TimeOfDay: []string{"Dawn"}}, atLoc, "Night", false},
		{"weather", &campaign.EncounterConditions{Weather: []string{"Rain", "Storm"}}, atLoc, "Night", true},
		{"weather miss", &campaign.EncounterConditions{Weather: []string{"Rain"}}, onEdge, "Night", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &campaign.EncounterDefinition{Conditions: tt.cond}
			assert.Equal(t, tt.want, Eligible(enc, tt.env, tt.tod))
		})
	}
}

func TestAdvance_Errors(t *testing.T) {
	h := newHarness(t, campaign.DefaultConfig())
	_, err := h.sim.Advance(context.Background(), 42, 1, 0)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
	_, err = h.sim.Advance(context.Background(), 1, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidAdvance)
}
