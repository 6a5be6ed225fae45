package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/combat"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/rules"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

type countingLocker struct {
	locks, unlocks int
	err            error
}

func (l *countingLocker) Lock(ctx context.Context, campaignID int64) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locks++
	return func() { l.unlocks++ }, nil
}

type harness struct {
	store  *storage.Store
	log    *storage.MemorySessionLog
	locker *countingLocker
	engine *Engine

	hero, ally, goblin *campaign.Character
}

// newHarness builds a campaign with steady weather, two PCs and an NPC.
// Every draw is 0.5, so a d20 always rolls 11.
func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStorage(nil)
	cfg := campaign.DefaultConfig()
	cfg.Weather = campaign.WeatherConfig{Options: []string{"Clear"}}
	require.NoError(t, store.SaveCampaign(ctx, &campaign.Campaign{ID: 1, Name: "Greyhawk", Config: cfg}))

	h := &harness{
		store:  store,
		log:    storage.NewMemorySessionLog(),
		locker: &countingLocker{},
		hero:   &campaign.Character{ID: 1, CampaignID: 1, Name: "Ilse", Type: campaign.CharacterPC, Attributes: map[string]any{"hp": 10, "initiative": 2}},
		ally:   &campaign.Character{ID: 2, CampaignID: 1, Name: "Brom", Type: campaign.CharacterPC, Attributes: map[string]any{"hp": 6}},
		goblin: &campaign.Character{ID: 3, CampaignID: 1, Name: "Snik", Type: campaign.CharacterNPC, Attributes: map[string]any{"hp": 4}},
	}
	for _, c := range []*campaign.Character{h.hero, h.ally, h.goblin} {
		require.NoError(t, store.SaveCharacter(ctx, c))
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	h.engine = New(store, h.log, random.NewFixed(0.5), h.locker, logger)
	return h
}

func (h *harness) addRule(t *testing.T, r *campaign.Rule) *campaign.Rule {
	t.Helper()
	r.CampaignID = 1
	r.Enabled = true
	if r.TargetMode == "" {
		r.TargetMode = campaign.TargetAllPCs
	}
	if r.ActionMode == "" {
		r.ActionMode = campaign.ModeAuto
	}
	require.NoError(t, h.store.SaveRule(context.Background(), r))
	return r
}

func (h *harness) hp(t *testing.T, id int64) float64 {
	t.Helper()
	c, err := h.store.GetCharacter(context.Background(), 1, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	v, _ := c.NumericAttribute("hp")
	return v
}

func hasEvent(events []campaign.Event, typ campaign.EventType) bool {
	for _, ev := range events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func ruleNames(fired []rules.FiredRule) []string {
	out := make([]string, len(fired))
	for i, f := range fired {
		out[i] = f.RuleName
	}
	return out
}

func TestAdvanceTime(t *testing.T) {
	h := newHarness(t)
	h.addRule(t, &campaign.Rule{
		Name:        "Clock Tower",
		TriggerType: campaign.TriggerTimeAdvance,
		TargetMode:  campaign.TargetEnvironment,
		Actions:     campaign.ActionList{campaign.SetEnvironmentNote{Note: "The bell tolls"}},
	})

	out, err := h.engine.AdvanceTime(context.Background(), 1, 2, 30)
	require.NoError(t, err)

	env := out.Environment
	assert.Equal(t, 10, env.Hour)
	assert.Equal(t, 30, env.Minute)
	assert.Equal(t, "Morning", env.TimeOfDay)
	assert.Equal(t, "Deepwinter", env.MonthName)
	assert.Equal(t, "The bell tolls", env.Notes)
	assert.True(t, hasEvent(out.Events, campaign.EventTimeAdvanced))
	assert.Equal(t, []string{"Clock Tower"}, ruleNames(out.Fired))
	assert.Len(t, out.BatchIDs, 1)
	assert.Equal(t, 1, h.locker.locks)
	assert.Equal(t, 1, h.locker.unlocks)
}

func TestAdvanceTime_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.AdvanceTime(context.Background(), 1, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.engine.AdvanceTime(context.Background(), 1, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.engine.AdvanceTime(context.Background(), 99, 1, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	h.locker.err = errors.New("lock held")
	_, err = h.engine.AdvanceTime(context.Background(), 1, 1, 0)
	assert.ErrorContains(t, err, "lock held")
}

func TestAdvanceTime_RulesDisabledStillAdvances(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c, _ := h.store.GetCampaign(ctx, 1)
	c.Config.Rules.EngineEnabled = false
	require.NoError(t, h.store.SaveCampaign(ctx, c))
	h.addRule(t, &campaign.Rule{
		Name:        "Clock Tower",
		TriggerType: campaign.TriggerTimeAdvance,
		TargetMode:  campaign.TargetEnvironment,
		Actions:     campaign.ActionList{campaign.SetEnvironmentNote{Note: "The bell tolls"}},
	})

	out, err := h.engine.AdvanceTime(ctx, 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, out.Environment.Hour)
	assert.Empty(t, out.Fired)
	assert.Empty(t, out.Environment.Notes)
}

func TestAdvanceTime_ExpiredEffectFiresRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bless := &campaign.StatusEffectDefinition{CampaignID: 1, Name: "Blessed", DurationType: campaign.DurationHours, DurationValue: 1}
	require.NoError(t, h.store.SaveEffectDefinition(ctx, bless))
	one := 1.0
	require.NoError(t, h.store.SaveAppliedEffect(ctx, &campaign.AppliedEffect{CampaignID: 1, CharacterID: h.hero.ID, EffectID: bless.ID, RemainingHours: &one}))
	h.addRule(t, &campaign.Rule{
		Name:          "Blessing Fades",
		TriggerType:   campaign.TriggerEffectChange,
		TriggerConfig: campaign.TriggerConfig{EffectName: "Blessed", Change: rules.ChangeExpired},
		Actions:       campaign.ActionList{campaign.ModifyAttribute{Attribute: "hp", Delta: -1}},
	})

	out, err := h.engine.AdvanceTime(ctx, 1, 1, 0)
	require.NoError(t, err)

	assert.True(t, hasEvent(out.Events, campaign.EventEffectExpired))
	require.Len(t, out.Fired, 1)
	require.NotNil(t, out.Fired[0].CharacterID)
	assert.Equal(t, h.hero.ID, *out.Fired[0].CharacterID)
	assert.Equal(t, 9.0, h.hp(t, h.hero.ID))
	assert.Equal(t, 6.0, h.hp(t, h.ally.ID), "only the character whose effect expired")
}

func TestTakeRest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRule(t, &campaign.Rule{
		Name:          "Long Rest Healing",
		TriggerType:   campaign.TriggerRest,
		TriggerConfig: campaign.TriggerConfig{RestType: RestLong},
		Actions:       campaign.ActionList{campaign.ModifyAttribute{Attribute: "hp", Delta: 1}},
	})

	out, err := h.engine.TakeRest(ctx, 1, "Long")
	require.NoError(t, err)

	assert.Equal(t, 16, out.Environment.Hour)
	assert.Len(t, out.Fired, 2)
	assert.Equal(t, 11.0, h.hp(t, h.hero.ID))
	assert.Equal(t, 7.0, h.hp(t, h.ally.ID))
	assert.Equal(t, 4.0, h.hp(t, h.goblin.ID))

	hero, _ := h.store.GetCharacter(ctx, 1, h.hero.ID)
	require.NotNil(t, hero.LastRestAt)
	assert.Equal(t, 16, hero.LastRestAt.Hour)
	goblin, _ := h.store.GetCharacter(ctx, 1, h.goblin.ID)
	assert.Nil(t, goblin.LastRestAt)

	found := false
	for _, e := range h.log.Entries(1) {
		if e.EntryType == LogRest && e.Message == "The party took a long rest (8h)" {
			found = true
		}
	}
	assert.True(t, found)

	out, err = h.engine.TakeRest(ctx, 1, RestShort)
	require.NoError(t, err)
	assert.Equal(t, 17, out.Environment.Hour)
	assert.Empty(t, out.Fired, "rest_type filter")
}

func TestTakeRest_InvalidType(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.TakeRest(context.Background(), 1, "nap")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, h.locker.locks)
}

func (h *harness) addMap(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.SaveLocation(ctx, &campaign.Location{ID: 1, CampaignID: 1, Name: "Hommlet"}))
	require.NoError(t, h.store.SaveLocation(ctx, &campaign.Location{ID: 2, CampaignID: 1, Name: "Moathouse"}))
	require.NoError(t, h.store.SaveEdge(ctx, &campaign.Edge{ID: 1, CampaignID: 1, Name: "the forest road", FromLocationID: 1, ToLocationID: 2, TravelHours: 1.5}))
	env := campaign.NewEnvironment(1, campaign.DefaultConfig())
	env.Weather = "Clear"
	env.AtLocation(1)
	require.NoError(t, h.store.SaveEnvironment(ctx, env))
}

func TestTravel(t *testing.T) {
	h := newHarness(t)
	h.addMap(t)
	ctx := context.Background()
	loc := int64(2)
	h.addRule(t, &campaign.Rule{
		Name:          "Moathouse Dread",
		TriggerType:   campaign.TriggerLocationChange,
		TriggerConfig: campaign.TriggerConfig{LocationID: &loc},
		TargetMode:    campaign.TargetEnvironment,
		Actions:       campaign.ActionList{campaign.SetEnvironmentNote{Note: "Crows circle the ruins"}},
	})

	out, err := h.engine.Travel(ctx, 1, 1)
	require.NoError(t, err)
	env := out.Environment
	require.NotNil(t, env.CurrentLocationID)
	assert.Equal(t, int64(2), *env.CurrentLocationID)
	assert.Nil(t, env.CurrentEdgeID)
	assert.Equal(t, 9, env.Hour)
	assert.Equal(t, 30, env.Minute)
	assert.True(t, hasEvent(out.Events, campaign.EventLocationChanged))
	assert.Equal(t, []string{"Moathouse Dread"}, ruleNames(out.Fired))
	assert.Equal(t, "Crows circle the ruins", env.Notes)

	out, err = h.engine.Travel(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), *out.Environment.CurrentLocationID, "travelling an edge from its far end returns")
	assert.Empty(t, out.Fired)

	_, err = h.engine.Travel(ctx, 1, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetLocation(t *testing.T) {
	h := newHarness(t)
	h.addMap(t)

	out, err := h.engine.SetLocation(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *out.Environment.CurrentLocationID)
	assert.Equal(t, 8, out.Environment.Hour, "direct moves take no time")

	_, err = h.engine.SetLocation(context.Background(), 1, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRollEncounter_InvalidHours(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.RollEncounter(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCombatFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRule(t, &campaign.Rule{
		Name:        "Battle Fatigue",
		TriggerType: campaign.TriggerRoundAdvance,
		TargetMode:  campaign.TargetEnvironment,
		Actions:     campaign.ActionList{campaign.Log{Message: "Round {var.round} grinds on"}},
	})

	started, err := h.engine.StartCombat(ctx, 1, combat.StartRequest{
		Combatants: []campaign.Combatant{
			{CharacterID: h.goblin.ID, Initiative: 10},
			{CharacterID: h.hero.ID, Initiative: 15},
		},
		AdvanceTime:     true,
		SecondsPerRound: 60,
	})
	require.NoError(t, err)
	require.Len(t, started.Combat.Combatants, 2)
	assert.Equal(t, "Ilse", started.Combat.Combatants[0].Name)
	assert.Equal(t, "Snik", started.Combat.Combatants[1].Name)
	assert.True(t, hasEvent(started.Events, campaign.EventCombatStarted))

	_, err = h.engine.StartCombat(ctx, 1, combat.StartRequest{Combatants: []campaign.Combatant{{CharacterID: h.ally.ID}}})
	assert.ErrorIs(t, err, ErrCombatActive)

	turn, err := h.engine.NextTurn(ctx, 1)
	require.NoError(t, err)
	assert.False(t, turn.RoundAdvanced)
	assert.Empty(t, turn.Fired)

	turn, err = h.engine.NextTurn(ctx, 1)
	require.NoError(t, err)
	assert.True(t, turn.RoundAdvanced)
	assert.Equal(t, 2, turn.Combat.Round)
	assert.Equal(t, []string{"Battle Fatigue"}, ruleNames(turn.Fired))
	assert.True(t, hasEvent(turn.Events, campaign.EventRoundAdvanced))
	assert.True(t, hasEvent(turn.Events, campaign.EventTimeAdvanced))
	assert.Equal(t, 1, turn.Environment.Minute, "60 seconds per round")

	spr := 6
	patched, err := h.engine.PatchCombat(ctx, 1, combat.PatchRequest{SecondsPerRound: &spr})
	require.NoError(t, err)
	assert.Equal(t, 6, patched.Combat.SecondsPerRound)

	ended, err := h.engine.EndCombat(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, ended.Rounds)
	assert.Nil(t, ended.Environment.Combat)

	_, err = h.engine.NextTurn(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveCombat)
	_, err = h.engine.EndCombat(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveCombat)
}

func TestStartCombat_Validation(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.StartCombat(context.Background(), 1, combat.StartRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.engine.StartCombat(context.Background(), 1, combat.StartRequest{Combatants: []campaign.Combatant{{CharacterID: 77}}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextTurn_RuleTimeAdvance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRule(t, &campaign.Rule{
		Name:        "Slow Siege",
		TriggerType: campaign.TriggerRoundAdvance,
		TargetMode:  campaign.TargetEnvironment,
		Actions:     campaign.ActionList{campaign.AdvanceTime{Minutes: 10}},
	})
	_, err := h.engine.StartCombat(ctx, 1, combat.StartRequest{Combatants: []campaign.Combatant{{CharacterID: h.hero.ID}}})
	require.NoError(t, err)

	turn, err := h.engine.NextTurn(ctx, 1)
	require.NoError(t, err)
	assert.True(t, turn.RoundAdvanced)
	assert.Equal(t, 10, turn.Environment.Minute)
	assert.True(t, hasEvent(turn.Events, campaign.EventTimeAdvanced))
}

func ambush() *campaign.EncounterDefinition {
	return &campaign.EncounterDefinition{
		ID:         1,
		CampaignID: 1,
		Name:       "Bandit Ambush",
		NPCs:       []campaign.EncounterSpawn{{Name: "Bandit", Count: 2, Attributes: map[string]any{"hp": 5}}},
		Overrides:  &campaign.EnvironmentOverride{Weather: "Fog", Notes: "Shapes in the mist"},
		Loot: []campaign.LootEntry{
			{Item: "Gold", Weight: 1, Quantity: 10},
		},
		StartsCombat: true,
	}
}

func TestEncounterLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SaveEncounter(ctx, ambush()))
	encID := int64(1)
	h.addRule(t, &campaign.Rule{
		Name:          "Aftermath",
		TriggerType:   campaign.TriggerEncounter,
		TriggerConfig: campaign.TriggerConfig{EncounterID: &encID, Phase: PhaseEnd},
		TargetMode:    campaign.TargetEnvironment,
		Actions:       campaign.ActionList{campaign.SetEnvironmentNote{Note: "Quiet again"}},
	})

	out, err := h.engine.StartEncounter(ctx, 1, 1)
	require.NoError(t, err)

	env := out.Environment
	assert.Equal(t, "Fog", env.Weather)
	assert.Equal(t, "Shapes in the mist", env.Notes)
	require.NotNil(t, env.ActiveEncounterID)
	assert.Equal(t, int64(1), *env.ActiveEncounterID)
	assert.Equal(t, &LootDrop{Item: "Gold", Quantity: 10}, out.Loot)
	assert.True(t, hasEvent(out.Events, campaign.EventEncounterStarted))
	assert.True(t, hasEvent(out.Events, campaign.EventCombatStarted))
	assert.Empty(t, out.Fired, "phase filter")

	require.Len(t, out.Spawned, 2)
	assert.Equal(t, "Bandit 1", out.Spawned[0].Name)
	assert.Equal(t, "Bandit 2", out.Spawned[1].Name)
	for _, s := range out.Spawned {
		require.NotNil(t, s.SpawnedByEncounterID)
		assert.Equal(t, int64(1), *s.SpawnedByEncounterID)
	}

	require.NotNil(t, out.Combat)
	cs := out.Combat.Combatants
	require.Len(t, cs, 4, "two bandits and both PCs")
	assert.Equal(t, h.hero.ID, cs[0].CharacterID)
	assert.Equal(t, 13, cs[0].Initiative, "d20 of 11 plus initiative 2")
	for _, c := range cs[1:] {
		assert.Equal(t, 11, c.Initiative)
	}

	end, err := h.engine.EndEncounter(ctx, 1, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{out.Spawned[0].ID, out.Spawned[1].ID}, end.Removed)
	assert.Nil(t, end.Environment.Combat)
	assert.Nil(t, end.Environment.ActiveEncounterID)
	assert.Equal(t, "Quiet again", end.Environment.Notes)
	assert.True(t, hasEvent(end.Events, campaign.EventCombatEnded))
	assert.True(t, hasEvent(end.Events, campaign.EventEncounterEnded))
	assert.Equal(t, []string{"Aftermath"}, ruleNames(end.Fired))

	for _, s := range out.Spawned {
		c, err := h.store.GetCharacter(ctx, 1, s.ID)
		require.NoError(t, err)
		assert.Nil(t, c)
	}
	hero, _ := h.store.GetCharacter(ctx, 1, h.hero.ID)
	assert.NotNil(t, hero, "PCs are never removed")
}

func TestStartEncounter_ReferencedCharacter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := h.goblin.ID
	require.NoError(t, h.store.SaveEncounter(ctx, &campaign.EncounterDefinition{
		ID: 2, CampaignID: 1, Name: "Goblin Pack",
		NPCs:         []campaign.EncounterSpawn{{CharacterID: &ref, Count: 3}},
		StartsCombat: true,
	}))

	out, err := h.engine.StartEncounter(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, out.Spawned, 2, "the referenced goblin fights itself")
	assert.Equal(t, "Snik 2", out.Spawned[0].Name)
	assert.Equal(t, "Snik 3", out.Spawned[1].Name)
	assert.Len(t, out.Combat.Combatants, 5)
	assert.Nil(t, out.Loot)

	end, err := h.engine.EndEncounter(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, end.Removed, 2)
	goblin, _ := h.store.GetCharacter(ctx, 1, h.goblin.ID)
	assert.NotNil(t, goblin)
}

func TestStartEncounter_ReferencedPCTakesOneTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ref := h.hero.ID
	require.NoError(t, h.store.SaveEncounter(ctx, &campaign.EncounterDefinition{
		ID: 2, CampaignID: 1, Name: "Doppelganger",
		NPCs:         []campaign.EncounterSpawn{{CharacterID: &ref}},
		StartsCombat: true,
	}))

	out, err := h.engine.StartEncounter(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, out.Combat)
	assert.Empty(t, out.Spawned)

	seen := make(map[int64]int)
	for _, c := range out.Combat.Combatants {
		seen[c.CharacterID]++
	}
	assert.Equal(t, map[int64]int{h.hero.ID: 1, h.ally.ID: 1}, seen)
}

func TestStartEncounter_UnnamedReferenceKeepsItsName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	shade := &campaign.Character{CampaignID: 1, Type: campaign.CharacterNPC, Attributes: map[string]any{"hp": 3}}
	require.NoError(t, h.store.SaveCharacter(ctx, shade))
	ref := shade.ID
	require.NoError(t, h.store.SaveEncounter(ctx, &campaign.EncounterDefinition{
		ID: 2, CampaignID: 1, Name: "Shades",
		NPCs:         []campaign.EncounterSpawn{{CharacterID: &ref, Count: 2}},
		StartsCombat: true,
	}))

	out, err := h.engine.StartEncounter(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, out.Spawned, 1)
	assert.Equal(t, "Unknown 2", out.Spawned[0].Name)
	for _, c := range out.Combat.Combatants {
		if c.CharacterID == shade.ID {
			assert.Empty(t, c.Name)
		}
	}
}

func TestStartEncounter_UnknownEncounter(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.StartEncounter(context.Background(), 1, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFireTrigger_NarrowsToCharacter(t *testing.T) {
	h := newHarness(t)
	h.addRule(t, &campaign.Rule{
		Name:          "Venom",
		TriggerType:   campaign.TriggerEffectChange,
		TriggerConfig: campaign.TriggerConfig{EffectName: "Poisoned", Change: rules.ChangeApplied},
		Actions:       campaign.ActionList{campaign.ModifyAttribute{Attribute: "hp", Delta: -2}},
	})

	out, err := h.engine.FireTrigger(context.Background(), 1, campaign.TriggerEffectChange, map[string]any{
		"effect_name":  "Poisoned",
		"change":       "applied",
		"character_id": float64(h.ally.ID),
	})
	require.NoError(t, err)
	assert.Len(t, out.Fired, 1)
	assert.Equal(t, 4.0, h.hp(t, h.ally.ID))
	assert.Equal(t, 10.0, h.hp(t, h.hero.ID))

	_, err = h.engine.FireTrigger(context.Background(), 1, "on_sneeze", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.engine.FireTrigger(context.Background(), 1, campaign.TriggerRest, map[string]any{"character_id": "brom"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCheckThreshold(t *testing.T) {
	h := newHarness(t)
	threshold := 5.0
	h.addRule(t, &campaign.Rule{
		Name:          "Bloodied",
		TriggerType:   campaign.TriggerThreshold,
		TriggerConfig: campaign.TriggerConfig{Attribute: "hp", Threshold: &threshold, Direction: rules.DirectionFalling},
		TargetMode:    campaign.TargetAllCharacters,
		Actions:       campaign.ActionList{campaign.Log{Message: "{character.name} is bloodied"}},
	})

	out, err := h.engine.CheckThreshold(context.Background(), 1, h.hero.ID, "hp", 6, 4)
	require.NoError(t, err)
	require.Len(t, out.Fired, 1)
	assert.Equal(t, h.hero.ID, *out.Fired[0].CharacterID)

	out, err = h.engine.CheckThreshold(context.Background(), 1, h.hero.ID, "hp", 4, 3)
	require.NoError(t, err)
	assert.Empty(t, out.Fired, "already below")

	_, err = h.engine.CheckThreshold(context.Background(), 1, h.hero.ID, "", 4, 3)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunRuleAndUndo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rule := h.addRule(t, &campaign.Rule{
		Name:        "Curse",
		TriggerType: campaign.TriggerRest,
		Actions:     campaign.ActionList{campaign.ModifyAttribute{Attribute: "hp", Delta: -3}},
	})

	out, err := h.engine.RunRule(ctx, 1, rule.ID)
	require.NoError(t, err)
	require.Len(t, out.BatchIDs, 1)
	assert.Equal(t, 7.0, h.hp(t, h.hero.ID))
	assert.Equal(t, 3.0, h.hp(t, h.ally.ID))

	res, err := h.engine.UndoBatch(ctx, 1, out.BatchIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 2, res.Undone)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 10.0, h.hp(t, h.hero.ID))
	assert.Equal(t, 6.0, h.hp(t, h.ally.ID))

	res, err = h.engine.UndoBatch(ctx, 1, out.BatchIDs[0])
	require.NoError(t, err)
	assert.Zero(t, res.Undone)
	assert.Equal(t, 2, res.Skipped)

	_, err = h.engine.UndoBatch(ctx, 1, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.RunRule(ctx, 1, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluateRule(t *testing.T) {
	h := newHarness(t)
	rule := h.addRule(t, &campaign.Rule{
		Name:        "Wounded",
		TriggerType: campaign.TriggerRest,
		Conditions:  campaign.ConditionTree{Root: campaign.AttributeLTE{Attribute: "hp", Value: 8}},
		Actions:     campaign.ActionList{campaign.ModifyAttribute{Attribute: "hp", Delta: 1}},
	})

	exp, err := h.engine.EvaluateRule(context.Background(), 1, rule.ID, nil)
	require.NoError(t, err)
	require.Len(t, exp.Targets, 2)
	assert.False(t, exp.Targets[0].Pass)
	assert.True(t, exp.Targets[1].Pass)
	assert.Equal(t, 6.0, h.hp(t, h.ally.ID), "dry runs never mutate")

	_, err = h.engine.EvaluateRule(context.Background(), 1, 404, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRule(t, &campaign.Rule{
		Name:        "Healer's Kit",
		TriggerType: campaign.TriggerRest,
		TargetMode:  campaign.TargetSpecific,
		TargetConfig: campaign.TargetConfig{
			CharacterIDs: []int64{h.ally.ID},
		},
		ActionMode: campaign.ModeSuggest,
		Actions:    campaign.ActionList{campaign.ModifyAttribute{Attribute: "hp", Delta: 4}},
	})

	out, err := h.engine.TakeRest(ctx, 1, RestShort)
	require.NoError(t, err)
	require.Len(t, out.Notifications, 1)
	suggestion := out.Notifications[0]
	assert.Equal(t, campaign.NotificationSuggestion, suggestion.Type)
	assert.Equal(t, 6.0, h.hp(t, h.ally.ID))

	list, err := h.engine.ListNotifications(ctx, 1, NotificationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	applied, err := h.engine.ApplySuggestion(ctx, 1, suggestion.ID)
	require.NoError(t, err)
	assert.Len(t, applied.BatchIDs, 1)
	assert.Equal(t, 10.0, h.hp(t, h.ally.ID))

	_, err = h.engine.ApplySuggestion(ctx, 1, suggestion.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest, "a suggestion applies once")

	list, err = h.engine.ListNotifications(ctx, 1, NotificationFilter{})
	require.NoError(t, err)
	for _, n := range list {
		assert.NotEqual(t, suggestion.ID, n.ID)
	}
	all, err := h.engine.ListNotifications(ctx, 1, NotificationFilter{IncludeDismissed: true})
	require.NoError(t, err)
	assert.Greater(t, len(all), len(list))

	require.NotEmpty(t, list)
	n, err := h.engine.MarkRead(ctx, 1, list[0].ID)
	require.NoError(t, err)
	assert.True(t, n.Read)
	unread, err := h.engine.ListNotifications(ctx, 1, NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, len(list)-1)

	n, err = h.engine.Dismiss(ctx, 1, list[0].ID)
	require.NoError(t, err)
	assert.True(t, n.Dismissed)

	_, err = h.engine.MarkRead(ctx, 1, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.ApplySuggestion(ctx, 1, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionLogAndAttributes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.TakeRest(ctx, 1, RestShort)
	require.NoError(t, err)

	entries, err := h.engine.SessionLog(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.Contains(entries[0].Message, "short rest"))

	attrs, err := h.engine.Attributes(ctx, 1, h.hero.ID)
	require.NoError(t, err)
	v, ok := attrs.Value("hp")
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	_, err = h.engine.Attributes(ctx, 1, 404)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.Environment(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}
