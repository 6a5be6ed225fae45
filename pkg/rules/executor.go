package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

// LogRule is the default session log entry type of the log action.
const LogRule = "rule"

var errNoCharacter = errors.New("action requires a character target")

// ExecContext is the state shared by the actions of one (rule, target)
// pair. Vars carries values stored by earlier actions to later ones.
type ExecContext struct {
	CampaignID  int64
	Config      campaign.Config
	Character   *campaign.Character
	Environment *campaign.EnvironmentState
	TimeOfDay   string
	Vars        map[string]any
}

// ActionResult is the outcome of one action. Failures are values; the
// executor never returns an error or panics.
type ActionResult struct {
	Type           campaign.ActionKind   `json:"type"`
	Success        bool                  `json:"success"`
	Description    string                `json:"description"`
	UndoData       json.RawMessage       `json:"undo_data,omitempty"`
	PendingAdvance *campaign.AdvanceTime `json:"pending_advance,omitempty"`
	Notification   *campaign.Notify      `json:"notification,omitempty"`

	// Cascades are trigger evaluations caused by this action.
	Cascades []Trigger `json:"-"`
}

func failed(kind campaign.ActionKind, format string, args ...any) ActionResult {
	return ActionResult{Type: kind, Description: fmt.Sprintf(format, args...)}
}

type Executor struct {
	store  storage.Storage
	log    storage.SessionLog
	rng    random.Source
	logger *slog.Logger
}

func NewExecutor(store storage.Storage, log storage.SessionLog, rng random.Source, logger *slog.Logger) *Executor {
	return &Executor{store: store, log: log, rng: rng, logger: logger}
}

// Undo payloads, one per mutating action kind.
type (
	appliedEffectUndo struct {
		AppliedEffectID int64 `json:"applied_effect_id"`
	}
	removedEffectsUndo struct {
		Effects []campaign.AppliedEffect `json:"effects"`
	}
	attributeUndo struct {
		CharacterID int64   `json:"character_id"`
		Attribute   string  `json:"attribute"`
		Delta       float64 `json:"delta"`
		Created     bool    `json:"created,omitempty"`
	}
	consumeUndo struct {
		Previous []campaign.CharacterItem `json:"previous"`
	}
	grantUndo struct {
		CharacterItemID int64 `json:"character_item_id"`
		Quantity        int   `json:"quantity"`
		Created         bool  `json:"created"`
	}
	// previousUndo restores a replaced environment string.
	previousUndo struct {
		Previous string `json:"previous"`
	}
)

func undoPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Execute runs one action against ec.
func (x *Executor) Execute(ctx context.Context, action campaign.Action, ec *ExecContext) (res ActionResult) {
	if action == nil {
		return failed("", "missing action")
	}
	kind := action.Kind()
	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("Action panicked", "type", kind, "panic", r)
			res = failed(kind, "action failed: %v", r)
		}
	}()

	var err error
	switch a := action.(type) {
	case campaign.ApplyEffect:
		res, err = x.applyEffect(ctx, a, ec)
	case campaign.RemoveEffect:
		res, err = x.removeEffect(ctx, a, ec)
	case campaign.ModifyAttribute:
		res, err = x.modifyAttribute(ctx, a, ec)
	case campaign.ConsumeItem:
		res, err = x.consumeItem(ctx, a, ec)
	case campaign.GrantItem:
		res, err = x.grantItem(ctx, a, ec)
	case campaign.SetWeather:
		res, err = x.setWeather(ctx, a, ec)
	case campaign.SetEnvironmentNote:
		res, err = x.setNote(ctx, a, ec)
	case campaign.AdvanceTime:
		res, err = advanceTime(a)
	case campaign.Notify:
		n := &campaign.Notify{Title: Render(a.Title, ec), Message: Render(a.Message, ec)}
		res = ActionResult{Success: true, Description: "Notify: " + notifyText(n), Notification: n}
	case campaign.Log:
		res, err = x.writeLog(ctx, a, ec)
	case campaign.RandomFromList:
		res, err = x.randomFromList(a, ec)
	case campaign.RollDice:
		res, err = x.rollDice(a, ec)
	case campaign.UnknownAction:
		err = fmt.Errorf("unknown action type %q", a.Type)
	default:
		err = fmt.Errorf("unsupported action %T", action)
	}
	if err != nil {
		x.logger.Debug("Action failed", "type", kind, "error", err)
		return failed(kind, "%s", err.Error())
	}
	res.Type = kind
	res.Success = true
	return res
}

func notifyText(n *campaign.Notify) string {
	if n.Title == "" {
		return n.Message
	}
	return n.Title
}

// character reloads the target so mutations apply to the latest row.
func (x *Executor) character(ctx context.Context, ec *ExecContext) (*campaign.Character, error) {
	if ec.Character == nil {
		return nil, errNoCharacter
	}
	c, err := x.store.GetCharacter(ctx, ec.CampaignID, ec.Character.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load character: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("character %d not found", ec.Character.ID)
	}
	ec.Character = c
	return c, nil
}

func (x *Executor) effectDefinition(ctx context.Context, campaignID int64, name string) (*campaign.StatusEffectDefinition, error) {
	def, err := x.store.FindEffectDefinition(ctx, campaignID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find effect: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("effect %q not found", name)
	}
	return def, nil
}

func (x *Executor) applyEffect(ctx context.Context, a campaign.ApplyEffect, ec *ExecContext) (ActionResult, error) {
	char, err := x.character(ctx, ec)
	if err != nil {
		return ActionResult{}, err
	}
	def, err := x.effectDefinition(ctx, ec.CampaignID, Render(a.EffectName, ec))
	if err != nil {
		return ActionResult{}, err
	}

	if !a.AllowStack {
		existing, err := x.store.ListCharacterEffects(ctx, ec.CampaignID, char.ID)
		if err != nil {
			return ActionResult{}, fmt.Errorf("failed to list effects: %w", err)
		}
		for _, ae := range existing {
			if ae.EffectID == def.ID {
				return ActionResult{}, fmt.Errorf("%s already has %s", char.Name, def.Name)
			}
		}
	}

	duration := def.DurationValue
	if a.Duration != nil {
		duration = *a.Duration
	}
	ae := &campaign.AppliedEffect{CampaignID: ec.CampaignID, CharacterID: char.ID, EffectID: def.ID}
	switch def.DurationType {
	case campaign.DurationRounds:
		rounds := int(duration)
		ae.RemainingRounds = &rounds
	case campaign.DurationHours:
		hours := duration
		ae.RemainingHours = &hours
	}
	if err := x.store.SaveAppliedEffect(ctx, ae); err != nil {
		return ActionResult{}, fmt.Errorf("failed to apply effect: %w", err)
	}

	return ActionResult{
		Description: fmt.Sprintf("Applied %s to %s", def.Name, char.Name),
		UndoData:    undoPayload(appliedEffectUndo{AppliedEffectID: ae.ID}),
		Cascades:    []Trigger{EffectChange(char.ID, def.Name, ChangeApplied)},
	}, nil
}

func (x *Executor) removeEffect(ctx context.Context, a campaign.RemoveEffect, ec *ExecContext) (ActionResult, error) {
	char, err := x.character(ctx, ec)
	if err != nil {
		return ActionResult{}, err
	}
	def, err := x.effectDefinition(ctx, ec.CampaignID, Render(a.EffectName, ec))
	if err != nil {
		return ActionResult{}, err
	}
	existing, err := x.store.ListCharacterEffects(ctx, ec.CampaignID, char.ID)
	if err != nil {
		return ActionResult{}, fmt.Errorf("failed to list effects: %w", err)
	}

	var removed []campaign.AppliedEffect
	for _, ae := range existing {
		if ae.EffectID != def.ID {
			continue
		}
		if err := x.store.DeleteAppliedEffect(ctx, ec.CampaignID, ae.ID); err != nil {
			return ActionResult{}, fmt.Errorf("failed to remove effect: %w", err)
		}
		removed = append(removed, *ae)
	}
	if len(removed) == 0 {
		return ActionResult{}, fmt.Errorf("%s does not have %s", char.Name, def.Name)
	}

	return ActionResult{
		Description: fmt.Sprintf("Removed %s from %s", def.Name, char.Name),
		UndoData:    undoPayload(removedEffectsUndo{Effects: removed}),
		Cascades:    []Trigger{EffectChange(char.ID, def.Name, ChangeRemoved)},
	}, nil
}

func (x *Executor) modifyAttribute(ctx context.Context, a campaign.ModifyAttribute, ec *ExecContext) (ActionResult, error) {
	if a.Attribute == "" {
		return ActionResult{}, errors.New("attribute is required")
	}
	char, err := x.character(ctx, ec)
	if err != nil {
		return ActionResult{}, err
	}

	before := 0.0
	raw, exists := char.Attributes[a.Attribute]
	if exists {
		v, ok := campaign.ToFloat(raw)
		if _, isString := raw.(string); !ok || isString {
			return ActionResult{}, fmt.Errorf("attribute %q is not numeric", a.Attribute)
		}
		before = v
	}
	after := before + a.Delta
	if char.Attributes == nil {
		char.Attributes = map[string]any{}
	}
	char.Attributes[a.Attribute] = after
	if err := x.store.SaveCharacter(ctx, char); err != nil {
		return ActionResult{}, fmt.Errorf("failed to save character: %w", err)
	}

	return ActionResult{
		Description: fmt.Sprintf("Changed %s's %s by %s (%s to %s)", char.Name, a.Attribute,
			signed(a.Delta), format(before), format(after)),
		UndoData: undoPayload(attributeUndo{
			CharacterID: char.ID,
			Attribute:   a.Attribute,
			Delta:       a.Delta,
			Created:     !exists,
		}),
		Cascades: []Trigger{Threshold(char.ID, a.Attribute, before, after)},
	}, nil
}

func signed(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v >= 0 {
		return "+" + s
	}
	return s
}

func (x *Executor) itemDefinition(ctx context.Context, campaignID int64, name string) (*campaign.ItemDefinition, error) {
	def, err := x.store.FindItemDefinition(ctx, campaignID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("item %q not found", name)
	}
	return def, nil
}

func quantity(q int) int {
	if q <= 0 {
		return 1
	}
	return q
}

func (x *Executor) consumeItem(ctx context.Context, a campaign.ConsumeItem, ec *ExecContext) (ActionResult, error) {
	char, err := x.character(ctx, ec)
	if err != nil {
		return ActionResult{}, err
	}
	def, err := x.itemDefinition(ctx, ec.CampaignID, Render(a.ItemName, ec))
	if err != nil {
		return ActionResult{}, err
	}
	held, err := x.store.ListCharacterItems(ctx, ec.CampaignID, char.ID)
	if err != nil {
		return ActionResult{}, fmt.Errorf("failed to list items: %w", err)
	}

	want := quantity(a.Quantity)
	var stacks []*campaign.CharacterItem
	total := 0
	for _, it := range held {
		if it.ItemID == def.ID {
			stacks = append(stacks, it)
			total += it.Quantity
		}
	}
	if total < want {
		return ActionResult{}, fmt.Errorf("%s has %d %s, needs %d", char.Name, total, def.Name, want)
	}

	var previous []campaign.CharacterItem
	remaining := want
	for _, it := range stacks {
		if remaining == 0 {
			break
		}
		previous = append(previous, *it)
		take := min(remaining, it.Quantity)
		it.Quantity -= take
		remaining -= take
		if it.Quantity <= 0 {
			err = x.store.DeleteCharacterItem(ctx, ec.CampaignID, it.ID)
		} else {
			err = x.store.SaveCharacterItem(ctx, it)
		}
		if err != nil {
			return ActionResult{}, fmt.Errorf("failed to update item: %w", err)
		}
	}

	return ActionResult{
		Description: fmt.Sprintf("%s used %d %s", char.Name, want, def.Name),
		UndoData:    undoPayload(consumeUndo{Previous: previous}),
	}, nil
}

func (x *Executor) grantItem(ctx context.Context, a campaign.GrantItem, ec *ExecContext) (ActionResult, error) {
	char, err := x.character(ctx, ec)
	if err != nil {
		return ActionResult{}, err
	}
	def, err := x.itemDefinition(ctx, ec.CampaignID, Render(a.ItemName, ec))
	if err != nil {
		return ActionResult{}, err
	}
	qty := quantity(a.Quantity)

	if def.Stackable {
		held, err := x.store.ListCharacterItems(ctx, ec.CampaignID, char.ID)
		if err != nil {
			return ActionResult{}, fmt.Errorf("failed to list items: %w", err)
		}
		for _, it := range held {
			if it.ItemID != def.ID {
				continue
			}
			it.Quantity += qty
			if err := x.store.SaveCharacterItem(ctx, it); err != nil {
				return ActionResult{}, fmt.Errorf("failed to update item: %w", err)
			}
			return ActionResult{
				Description: fmt.Sprintf("Gave %s %d %s", char.Name, qty, def.Name),
				UndoData:    undoPayload(grantUndo{CharacterItemID: it.ID, Quantity: qty}),
			}, nil
		}
	}

	item := &campaign.CharacterItem{CampaignID: ec.CampaignID, CharacterID: char.ID, ItemID: def.ID, Quantity: qty}
	if err := x.store.SaveCharacterItem(ctx, item); err != nil {
		return ActionResult{}, fmt.Errorf("failed to grant item: %w", err)
	}
	return ActionResult{
		Description: fmt.Sprintf("Gave %s %d %s", char.Name, qty, def.Name),
		UndoData:    undoPayload(grantUndo{CharacterItemID: item.ID, Quantity: qty, Created: true}),
	}, nil
}

func (x *Executor) environment(ctx context.Context, ec *ExecContext) (*campaign.EnvironmentState, error) {
	env, err := x.store.GetEnvironment(ctx, ec.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if env == nil {
		env = campaign.NewEnvironment(ec.CampaignID, ec.Config)
	}
	return env, nil
}

func (x *Executor) setWeather(ctx context.Context, a campaign.SetWeather, ec *ExecContext) (ActionResult, error) {
	weather := Render(a.Weather, ec)
	if weather == "" {
		return ActionResult{}, errors.New("weather is required")
	}
	env, err := x.environment(ctx, ec)
	if err != nil {
		return ActionResult{}, err
	}
	previous := env.Weather
	env.Weather = weather
	if err := x.store.SaveEnvironment(ctx, env); err != nil {
		return ActionResult{}, fmt.Errorf("failed to save environment: %w", err)
	}
	ec.Environment = env
	return ActionResult{
		Description: fmt.Sprintf("Weather set to %s", weather),
		UndoData:    undoPayload(previousUndo{Previous: previous}),
	}, nil
}

func (x *Executor) setNote(ctx context.Context, a campaign.SetEnvironmentNote, ec *ExecContext) (ActionResult, error) {
	env, err := x.environment(ctx, ec)
	if err != nil {
		return ActionResult{}, err
	}
	previous := env.Notes
	env.Notes = Render(a.Note, ec)
	if err := x.store.SaveEnvironment(ctx, env); err != nil {
		return ActionResult{}, fmt.Errorf("failed to save environment: %w", err)
	}
	ec.Environment = env
	return ActionResult{
		Description: "Environment note updated",
		UndoData:    undoPayload(previousUndo{Previous: previous}),
	}, nil
}

// advanceTime never moves the clock; the request is applied once after
// the whole evaluation.
func advanceTime(a campaign.AdvanceTime) (ActionResult, error) {
	if a.Hours < 0 || a.Minutes < 0 || a.Hours+a.Minutes == 0 {
		return ActionResult{}, errors.New("advance_time needs a positive duration")
	}
	req := a
	return ActionResult{
		Description:    fmt.Sprintf("Requested time advance of %dh%02dm", a.Hours, a.Minutes),
		PendingAdvance: &req,
	}, nil
}

func (x *Executor) writeLog(ctx context.Context, a campaign.Log, ec *ExecContext) (ActionResult, error) {
	if x.log == nil {
		return ActionResult{}, errors.New("session log unavailable")
	}
	entryType := a.EntryType
	if entryType == "" {
		entryType = LogRule
	}
	msg := Render(a.Message, ec)
	if err := x.log.Append(ctx, ec.CampaignID, entryType, msg); err != nil {
		return ActionResult{}, fmt.Errorf("failed to write log: %w", err)
	}
	return ActionResult{Description: "Logged: " + msg}, nil
}

func (x *Executor) randomFromList(a campaign.RandomFromList, ec *ExecContext) (ActionResult, error) {
	if len(a.Options) == 0 {
		return ActionResult{}, errors.New("random_from_list needs options")
	}
	weights := make([]float64, len(a.Options))
	for i, opt := range a.Options {
		weights[i] = opt.Weight
		if opt.Weight == 0 {
			weights[i] = 1
		}
	}
	idx := random.Weighted(x.rng, weights)
	if idx < 0 {
		return ActionResult{}, errors.New("random_from_list has no positive weights")
	}
	value := Render(a.Options[idx].Value, ec)
	setVar(ec, a.StoreAs, value)
	return ActionResult{Description: "Picked " + value}, nil
}

func (x *Executor) rollDice(a campaign.RollDice, ec *ExecContext) (ActionResult, error) {
	d, err := ParseDice(Render(a.Formula, ec))
	if err != nil {
		return ActionResult{}, err
	}
	total, rolls := d.Roll(x.rng)
	setVar(ec, a.StoreAs, total)
	parts := make([]string, len(rolls))
	for i, r := range rolls {
		parts[i] = strconv.Itoa(r)
	}
	return ActionResult{Description: fmt.Sprintf("Rolled %s: [%s] = %d", d, strings.Join(parts, ", "), total)}, nil
}

func setVar(ec *ExecContext, key string, v any) {
	if key == "" {
		return
	}
	if ec.Vars == nil {
		ec.Vars = map[string]any{}
	}
	ec.Vars[key] = v
}
