package rules

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/campaign-engine/pkg/attributes"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/conditions"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

// recordingClock captures aggregated time advances.
type recordingClock struct {
	calls []clockCall
	err   error
}

type clockCall struct {
	hours, minutes, depth int
}

func (c *recordingClock) AdvanceTime(ctx context.Context, campaignID int64, hours, minutes, depth int) ([]campaign.Event, error) {
	c.calls = append(c.calls, clockCall{hours, minutes, depth})
	if c.err != nil {
		return nil, c.err
	}
	return []campaign.Event{{Type: campaign.EventTimeAdvanced, Message: "advanced"}}, nil
}

type fixture struct {
	store  *storage.Store
	log    *storage.MemorySessionLog
	rng    *random.Fixed
	exec   *Executor
	engine *Engine
	clock  *recordingClock

	hero   *campaign.Character
	goblin *campaign.Character
	poison *campaign.StatusEffectDefinition
	bless  *campaign.StatusEffectDefinition
	torch  *campaign.ItemDefinition
	rope   *campaign.ItemDefinition
}

func newFixture(t *testing.T, draws ...float64) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStorage(nil)
	require.NoError(t, store.SaveCampaign(ctx, &campaign.Campaign{ID: 1, Name: "Test", Config: campaign.DefaultConfig()}))

	f := &fixture{store: store, log: storage.NewMemorySessionLog(), clock: &recordingClock{}}

	f.hero = &campaign.Character{CampaignID: 1, Name: "Ilse", Type: campaign.CharacterPC,
		Attributes: map[string]any{"hp": 8.0, "class": "cleric"}}
	require.NoError(t, store.SaveCharacter(ctx, f.hero))
	f.goblin = &campaign.Character{CampaignID: 1, Name: "Snik", Type: campaign.CharacterNPC,
		Attributes: map[string]any{"hp": 4.0}}
	require.NoError(t, store.SaveCharacter(ctx, f.goblin))

	f.poison = &campaign.StatusEffectDefinition{CampaignID: 1, Name: "Poisoned",
		DurationType: campaign.DurationHours, DurationValue: 6,
		Modifiers: []campaign.Modifier{{Attribute: "hp", Delta: -2}}}
	require.NoError(t, store.SaveEffectDefinition(ctx, f.poison))
	f.bless = &campaign.StatusEffectDefinition{CampaignID: 1, Name: "Blessed",
		DurationType: campaign.DurationRounds, DurationValue: 3}
	require.NoError(t, store.SaveEffectDefinition(ctx, f.bless))

	f.torch = &campaign.ItemDefinition{CampaignID: 1, Name: "Torch", Stackable: true}
	require.NoError(t, store.SaveItemDefinition(ctx, f.torch))
	f.rope = &campaign.ItemDefinition{CampaignID: 1, Name: "Rope"}
	require.NoError(t, store.SaveItemDefinition(ctx, f.rope))

	if len(draws) == 0 {
		draws = []float64{0.5}
	}
	f.rng = random.NewFixed(draws...)
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	f.exec = NewExecutor(store, f.log, f.rng, logger)
	f.engine = NewEngine(store, conditions.NewEvaluator(attributes.NewResolver(store), store, f.rng), f.exec, logger)
	f.engine.SetClock(f.clock)
	n := 0
	f.engine.newID = func() string {
		n++
		return fmt.Sprintf("batch-%d", n)
	}
	return f
}

func (f *fixture) ec(char *campaign.Character) *ExecContext {
	env := campaign.NewEnvironment(1, campaign.DefaultConfig())
	return &ExecContext{
		CampaignID:  1,
		Config:      campaign.DefaultConfig(),
		Character:   char,
		Environment: env,
		TimeOfDay:   "Morning",
		Vars:        map[string]any{},
	}
}

func (f *fixture) character(t *testing.T, id int64) *campaign.Character {
	t.Helper()
	c, err := f.store.GetCharacter(context.Background(), 1, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (f *fixture) effects(t *testing.T, charID int64) []*campaign.AppliedEffect {
	t.Helper()
	effects, err := f.store.ListCharacterEffects(context.Background(), 1, charID)
	require.NoError(t, err)
	return effects
}

func (f *fixture) items(t *testing.T, charID int64) []*campaign.CharacterItem {
	t.Helper()
	items, err := f.store.ListCharacterItems(context.Background(), 1, charID)
	require.NoError(t, err)
	return items
}

func (f *fixture) undo(t *testing.T, res ActionResult) bool {
	t.Helper()
	ok, err := f.exec.Undo(context.Background(), 1, res.Type, res.UndoData)
	require.NoError(t, err)
	return ok
}

func TestExecute_ApplyEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.exec.Execute(ctx, campaign.ApplyEffect{EffectName: "Poisoned"}, f.ec(f.hero))
	require.True(t, res.Success, res.Description)
	assert.Equal(t, campaign.ActApplyEffect, res.Type)
	assert.Equal(t, "Applied Poisoned to Ilse", res.Description)
	require.Len(t, res.Cascades, 1)
	assert.Equal(t, campaign.TriggerEffectChange, res.Cascades[0].Type)
	assert.Equal(t, ChangeApplied, res.Cascades[0].Context[KeyChange])

	effects := f.effects(t, f.hero.ID)
	require.Len(t, effects, 1)
	require.NotNil(t, effects[0].RemainingHours)
	assert.Equal(t, 6.0, *effects[0].RemainingHours)
	assert.Nil(t, effects[0].RemainingRounds)

	again := f.exec.Execute(ctx, campaign.ApplyEffect{EffectName: "Poisoned"}, f.ec(f.hero))
	assert.False(t, again.Success)
	assert.Contains(t, again.Description, "already has Poisoned")

	two := 2.0
	stacked := f.exec.Execute(ctx, campaign.ApplyEffect{EffectName: "Poisoned", AllowStack: true, Duration: &two}, f.ec(f.hero))
	require.True(t, stacked.Success)
	effects = f.effects(t, f.hero.ID)
	require.Len(t, effects, 2)
	assert.Equal(t, 2.0, *effects[1].RemainingHours)

	assert.True(t, f.undo(t, stacked))
	assert.Len(t, f.effects(t, f.hero.ID), 1)
	assert.False(t, f.undo(t, stacked), "second undo finds nothing")
}

func TestExecute_ApplyEffect_Rounds(t *testing.T) {
	f := newFixture(t)
	res := f.exec.Execute(context.Background(), campaign.ApplyEffect{EffectName: "blessed"}, f.ec(f.goblin))
	require.True(t, res.Success, res.Description)

	effects := f.effects(t, f.goblin.ID)
	require.Len(t, effects, 1)
	require.NotNil(t, effects[0].RemainingRounds)
	assert.Equal(t, 3, *effects[0].RemainingRounds)
}

func TestExecute_ApplyEffect_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.exec.Execute(ctx, campaign.ApplyEffect{EffectName: "Cursed"}, f.ec(f.hero))
	assert.False(t, res.Success)
	assert.Contains(t, res.Description, `effect "Cursed" not found`)

	res = f.exec.Execute(ctx, campaign.ApplyEffect{EffectName: "Poisoned"}, f.ec(nil))
	assert.False(t, res.Success)
	assert.Equal(t, errNoCharacter.Error(), res.Description)
}

func TestExecute_RemoveEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range 2 {
		require.True(t, f.exec.Execute(ctx, campaign.ApplyEffect{EffectName: "Poisoned", AllowStack: true}, f.ec(f.hero)).Success)
	}
	before := f.effects(t, f.hero.ID)
	require.Len(t, before, 2)

	res := f.exec.Execute(ctx, campaign.RemoveEffect{EffectName: "Poisoned"}, f.ec(f.hero))
	require.True(t, res.Success, res.Description)
	assert.Equal(t, "Removed Poisoned from Ilse", res.Description)
	assert.Empty(t, f.effects(t, f.hero.ID))
	require.Len(t, res.Cascades, 1)
	assert.Equal(t, ChangeRemoved, res.Cascades[0].Context[KeyChange])

	missing := f.exec.Execute(ctx, campaign.RemoveEffect{EffectName: "Poisoned"}, f.ec(f.hero))
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Description, "does not have Poisoned")

	assert.True(t, f.undo(t, res))
	assert.Equal(t, before, f.effects(t, f.hero.ID), "rows restored with their ids")
}

func TestExecute_ModifyAttribute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.exec.Execute(ctx, campaign.ModifyAttribute{Attribute: "hp", Delta: -3}, f.ec(f.hero))
	require.True(t, res.Success, res.Description)
	assert.Equal(t, "Changed Ilse's hp by -3 (8 to 5)", res.Description)
	hp, _ := f.character(t, f.hero.ID).NumericAttribute("hp")
	assert.Equal(t, 5.0, hp)

	require.Len(t, res.Cascades, 1)
	assert.Equal(t, campaign.TriggerThreshold, res.Cascades[0].Type)
	assert.Equal(t, 8.0, res.Cascades[0].Context[KeyBefore])
	assert.Equal(t, 5.0, res.Cascades[0].Context[KeyAfter])

	assert.True(t, f.undo(t, res))
	hp, _ = f.character(t, f.hero.ID).NumericAttribute("hp")
	assert.Equal(t, 8.0, hp)
}

func TestExecute_ModifyAttribute_Missing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.exec.Execute(ctx, campaign.ModifyAttribute{Attribute: "gold", Delta: 10}, f.ec(f.hero))
	require.True(t, res.Success, res.Description)
	assert.Equal(t, "Changed Ilse's gold by +10 (0 to 10)", res.Description)

	assert.True(t, f.undo(t, res))
	_, ok := f.character(t, f.hero.ID).Attributes["gold"]
	assert.False(t, ok, "created attribute removed again")
}

func TestExecute_ModifyAttribute_NotNumeric(t *testing.T) {
	f := newFixture(t)
	res := f.exec.Execute(context.Background(), campaign.ModifyAttribute{Attribute: "class", Delta: 1}, f.ec(f.hero))
	assert.False(t, res.Success)
	assert.Contains(t, res.Description, "not numeric")
	assert.Equal(t, "cleric", f.character(t, f.hero.ID).Attributes["class"])
}

func TestExecute_ConsumeItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCharacterItem(ctx, &campaign.CharacterItem{CampaignID: 1, CharacterID: f.hero.ID, ItemID: f.torch.ID, Quantity: 1}))
	require.NoError(t, f.store.SaveCharacterItem(ctx, &campaign.CharacterItem{CampaignID: 1, CharacterID: f.hero.ID, ItemID: f.torch.ID, Quantity: 2}))
	before := f.items(t, f.hero.ID)

	tooMany := f.exec.Execute(ctx, campaign.ConsumeItem{ItemName: "Torch", Quantity: 5}, f.ec(f.hero))
	assert.False(t, tooMany.Success)
	assert.Contains(t, tooMany.Description, "has 3 Torch, needs 5")

	res := f.exec.Execute(ctx, campaign.ConsumeItem{ItemName: "Torch", Quantity: 2}, f.ec(f.hero))
	require.True(t, res.Success, res.Description)
	assert.Equal(t, "Ilse used 2 Torch", res.Description)
	after := f.items(t, f.hero.ID)
	require.Len(t, after, 1)
	assert.Equal(t, 1, after[0].Quantity)

	assert.True(t, f.undo(t, res))
	assert.Equal(t, before, f.items(t, f.hero.ID))
}

func TestExecute_GrantItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveCharacterItem(ctx, &campaign.CharacterItem{CampaignID: 1, CharacterID: f.hero.ID, ItemID: f.torch.ID, Quantity: 2}))

	merged := f.exec.Execute(ctx, campaign.GrantItem{ItemName: "Torch", Quantity: 3}, f.ec(f.hero))
	require.True(t, merged.Success, merged.Description)
	assert.Equal(t, "Gave Ilse 3 Torch", merged.Description)
	items := f.items(t, f.hero.ID)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	rope := f.exec.Execute(ctx, campaign.GrantItem{ItemName: "Rope"}, f.ec(f.hero))
	require.True(t, rope.Success)
	assert.Len(t, f.items(t, f.hero.ID), 2)

	assert.True(t, f.undo(t, rope))
	assert.True(t, f.undo(t, merged))
	items = f.items(t, f.hero.ID)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestExecute_Environment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ec := f.ec(f.hero)

	weather := f.exec.Execute(ctx, campaign.SetWeather{Weather: "Storm"}, ec)
	require.True(t, weather.Success)
	assert.Equal(t, "Weather set to Storm", weather.Description)
	assert.Equal(t, "Storm", ec.Environment.Weather)

	note := f.exec.Execute(ctx, campaign.SetEnvironmentNote{Note: "{character.name} hears thunder"}, ec)
	require.True(t, note.Success)
	env, err := f.store.GetEnvironment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Storm", env.Weather)
	assert.Equal(t, "Ilse hears thunder", env.Notes)

	assert.False(t, f.exec.Execute(ctx, campaign.SetWeather{}, ec).Success)

	assert.True(t, f.undo(t, note))
	assert.True(t, f.undo(t, weather))
	env, err = f.store.GetEnvironment(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Clear", env.Weather)
	assert.Empty(t, env.Notes)
}

func TestExecute_NonMutating(t *testing.T) {
	f := newFixture(t, 0.5)
	ctx := context.Background()
	ec := f.ec(f.hero)

	adv := f.exec.Execute(ctx, campaign.AdvanceTime{Hours: 1, Minutes: 30}, ec)
	require.True(t, adv.Success)
	require.NotNil(t, adv.PendingAdvance)
	assert.Equal(t, campaign.AdvanceTime{Hours: 1, Minutes: 30}, *adv.PendingAdvance)
	assert.False(t, f.exec.Execute(ctx, campaign.AdvanceTime{}, ec).Success)

	notify := f.exec.Execute(ctx, campaign.Notify{Title: "{character.name} is hungry", Message: "Eat something"}, ec)
	require.True(t, notify.Success)
	assert.Equal(t, "Notify: Ilse is hungry", notify.Description)
	require.NotNil(t, notify.Notification)
	assert.Equal(t, "Eat something", notify.Notification.Message)

	logged := f.exec.Execute(ctx, campaign.Log{Message: "{character.name} rests"}, ec)
	require.True(t, logged.Success)
	entries := f.log.Entries(1)
	require.Len(t, entries, 1)
	assert.Equal(t, LogRule, entries[0].EntryType)
	assert.Equal(t, "Ilse rests", entries[0].Message)

	pick := f.exec.Execute(ctx, campaign.RandomFromList{
		Options: []campaign.WeightedOption{{Value: "copper"}, {Value: "silver"}},
		StoreAs: "coin",
	}, ec)
	require.True(t, pick.Success)
	assert.Equal(t, "Picked silver", pick.Description)
	assert.Equal(t, "silver", ec.Vars["coin"])

	roll := f.exec.Execute(ctx, campaign.RollDice{Formula: "2d6+3", StoreAs: "dmg"}, ec)
	require.True(t, roll.Success)
	assert.Equal(t, "Rolled 2d6+3: [4, 4] = 11", roll.Description)
	assert.Equal(t, 11, ec.Vars["dmg"])

	bad := f.exec.Execute(ctx, campaign.RollDice{Formula: "lots"}, ec)
	assert.False(t, bad.Success)
	assert.Contains(t, bad.Description, "invalid dice formula")

	for _, res := range []ActionResult{adv, notify, logged, pick, roll} {
		assert.False(t, f.undo(t, res), res.Type)
	}
}

func TestExecute_Unknown(t *testing.T) {
	f := newFixture(t)
	res := f.exec.Execute(context.Background(), campaign.UnknownAction{Type: "teleport"}, f.ec(f.hero))
	assert.False(t, res.Success)
	assert.Equal(t, `unknown action type "teleport"`, res.Description)

	res = f.exec.Execute(context.Background(), nil, f.ec(f.hero))
	assert.False(t, res.Success)
}

func TestExecute_EveryKind(t *testing.T) {
	f := newFixture(t)
	for _, kind := range campaign.AllActionKinds {
		t.Run(string(kind), func(t *testing.T) {
			a, err := campaign.ParseAction([]byte(fmt.Sprintf(`{"type":%q}`, kind)))
			require.NoError(t, err)
			res := f.exec.Execute(context.Background(), a, f.ec(f.hero))
			assert.Equal(t, kind, res.Type)
			assert.NotEmpty(t, res.Description)
		})
	}
}

func TestUndo_MissingData(t *testing.T) {
	f := newFixture(t)
	_, err := f.exec.Undo(context.Background(), 1, campaign.ActModifyAttribute, nil)
	assert.Error(t, err)

	ok, err := f.exec.Undo(context.Background(), 1, campaign.ActLog, nil)
	assert.NoError(t, err)
	assert.False(t, ok)
}
