// Package rules evaluates user-authored rules for trigger events and
// executes, suggests and undoes their actions.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/campaign-engine/pkg/calendar"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/conditions"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

var (
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrRuleNotFound         = errors.New("rule not found")
	ErrBatchNotFound        = errors.New("batch not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotSuggestion        = errors.New("notification is not a pending suggestion")
)

// Clock applies the aggregated time advance requested by one evaluation.
// Depth is the cascade depth the advance's own triggers run at.
type Clock interface {
	AdvanceTime(ctx context.Context, campaignID int64, hours, minutes, depth int) ([]campaign.Event, error)
}

// FiredRule records one (rule, target) pair whose conditions passed.
type FiredRule struct {
	RuleID      int64               `json:"rule_id"`
	RuleName    string              `json:"rule_name"`
	BatchID     string              `json:"batch_id,omitempty"`
	CharacterID *int64              `json:"character_id,omitempty"`
	Mode        campaign.ActionMode `json:"mode"`
	Details     []conditions.Detail `json:"details,omitempty"`
	Actions     []ActionResult      `json:"actions,omitempty"`
}

// Result of one trigger evaluation, including any cascades it caused.
type Result struct {
	BatchID       string                   `json:"batch_id,omitempty"`
	Fired         []FiredRule              `json:"fired"`
	Notifications []*campaign.Notification `json:"notifications"`
	Events        []campaign.Event         `json:"events"`
}

func newResult() *Result {
	return &Result{
		Fired:         []FiredRule{},
		Notifications: []*campaign.Notification{},
		Events:        []campaign.Event{},
	}
}

func (r *Result) merge(o *Result) {
	if o == nil {
		return
	}
	r.Fired = append(r.Fired, o.Fired...)
	r.Notifications = append(r.Notifications, o.Notifications...)
	r.Events = append(r.Events, o.Events...)
}

// pendingAdvance sums advance_time requests until the outermost
// evaluation applies them.
type pendingAdvance struct {
	hours, minutes int
}

// batch numbers the action log rows of one evaluation.
type batch struct {
	id   string
	next int
}

type Engine struct {
	store     storage.Storage
	evaluator *conditions.Evaluator
	executor  *Executor
	clock     Clock
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewEngine(store storage.Storage, evaluator *conditions.Evaluator, executor *Executor, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		evaluator: evaluator,
		executor:  executor,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// SetClock wires the time advancer used for aggregated advances.
func (e *Engine) SetClock(c Clock) {
	e.clock = c
}

// Executor exposes the action executor.
func (e *Engine) Executor() *Executor {
	return e.executor
}

// Evaluate runs every enabled rule matching the trigger, lowest priority
// first. Pending time advances from the whole pass, cascades included,
// are applied as one advance at the end.
func (e *Engine) Evaluate(ctx context.Context, campaignID int64, trig Trigger, depth int) (*Result, error) {
	pending := &pendingAdvance{}
	res, err := e.evaluate(ctx, campaignID, trig, depth, pending)
	if err != nil {
		return nil, err
	}
	e.flush(ctx, campaignID, pending, depth, res)
	return res, nil
}

// EvaluateSafe is Evaluate for flows that must complete even when the
// rules layer fails. Errors and panics degrade to an empty result.
func (e *Engine) EvaluateSafe(ctx context.Context, campaignID int64, trig Trigger, depth int) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Rule evaluation panicked", "campaign_id", campaignID, "trigger", trig.Type, "panic", r)
			res = newResult()
		}
	}()
	res, err := e.Evaluate(ctx, campaignID, trig, depth)
	if err != nil {
		e.logger.Warn("Rule evaluation failed", "campaign_id", campaignID, "trigger", trig.Type, "error", err)
		return newResult()
	}
	return res
}

// EvaluateThreshold fires on_threshold rules at cascade depth 1 when an
// attribute changed from before to after.
func (e *Engine) EvaluateThreshold(ctx context.Context, campaignID, characterID int64, attribute string, before, after float64) (*Result, error) {
	if before == after {
		return newResult(), nil
	}
	return e.Evaluate(ctx, campaignID, Threshold(characterID, attribute, before, after), 1)
}

func (e *Engine) campaign(ctx context.Context, campaignID int64) (*campaign.Campaign, error) {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

func (e *Engine) evaluate(ctx context.Context, campaignID int64, trig Trigger, depth int, pending *pendingAdvance) (*Result, error) {
	res := newResult()
	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Config.Rules.EngineEnabled {
		return res, nil
	}

	all, err := e.store.ListRules(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	var matched []*campaign.Rule
	for _, r := range all {
		if r.Enabled && r.TriggerType == trig.Type && Matches(r, trig, c.Config.Calendar) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return res, nil
	}
	slices.SortStableFunc(matched, func(a, b *campaign.Rule) int { return a.Priority - b.Priority })

	e.logger.Debug("Evaluating rules", "campaign_id", campaignID, "trigger", trig.Type,
		"depth", depth, "rules", len(matched))

	b := &batch{id: e.newID()}
	res.BatchID = b.id
	var fired []*campaign.Rule
	for _, rule := range matched {
		mode := rule.ActionMode
		if depth >= c.Config.Rules.CascadeDepthLimit {
			mode = campaign.ModeSuggest
		}
		if e.runRule(ctx, c, rule, trig, mode, depth, b, pending, res) {
			fired = append(fired, rule)
		}
	}
	e.stamp(ctx, fired)
	return res, nil
}

// runRule evaluates and applies a rule for each of its targets. It
// reports whether any target passed.
func (e *Engine) runRule(ctx context.Context, c *campaign.Campaign, rule *campaign.Rule, trig Trigger,
	mode campaign.ActionMode, depth int, b *batch, pending *pendingAdvance, res *Result) bool {

	targets, err := e.targets(ctx, c.ID, rule, trig)
	if err != nil {
		e.logger.Error("Failed to resolve rule targets", "rule_id", rule.ID, "error", err)
		return false
	}

	fired := false
	for _, target := range targets {
		env, err := e.environment(ctx, c)
		if err != nil {
			e.logger.Error("Failed to load environment", "campaign_id", c.ID, "error", err)
			return fired
		}
		tod := calendar.TimeOfDay(c.Config.TimeOfDay, env.Time().MinuteOfDay())
		vars := map[string]any{}
		check := e.evaluator.Evaluate(ctx, rule.Conditions.Root, &conditions.Context{
			CampaignID:  c.ID,
			Config:      c.Config,
			Character:   target,
			Environment: env,
			TimeOfDay:   tod,
			Trigger:     trig.Context,
			Vars:        vars,
		})
		if !check.Pass {
			continue
		}
		fired = true

		f := FiredRule{RuleID: rule.ID, RuleName: rule.Name, Mode: mode, Details: check.Details}
		if mode != campaign.ModeSuggest {
			f.BatchID = b.id
		}
		if target != nil {
			id := target.ID
			f.CharacterID = &id
		}

		if mode == campaign.ModeSuggest {
			e.suggest(ctx, c.ID, rule, trig, f.CharacterID, res)
			res.Fired = append(res.Fired, f)
			continue
		}

		ec := &ExecContext{
			CampaignID:  c.ID,
			Config:      c.Config,
			Character:   target,
			Environment: env,
			TimeOfDay:   tod,
			Vars:        vars,
		}
		idx := len(res.Fired)
		res.Fired = append(res.Fired, f)
		actions := e.apply(ctx, c.ID, rule, rule.Actions, trig, ec, depth, b, pending, res)
		res.Fired[idx].Actions = actions
	}
	return fired
}

// apply executes actions in order, logging each success under the batch
// and running the cascades it causes at depth+1.
func (e *Engine) apply(ctx context.Context, campaignID int64, rule *campaign.Rule, actions campaign.ActionList,
	trig Trigger, ec *ExecContext, depth int, b *batch, pending *pendingAdvance, res *Result) []ActionResult {

	var characterID *int64
	if ec.Character != nil {
		id := ec.Character.ID
		characterID = &id
	}

	results := make([]ActionResult, 0, len(actions))
	var details []string
	for _, action := range actions {
		ar := e.executor.Execute(ctx, action, ec)
		results = append(results, ar)
		if !ar.Success {
			details = append(details, "Failed: "+ar.Description)
			continue
		}
		details = append(details, ar.Description)

		entry := &campaign.RuleActionLog{
			CampaignID:  campaignID,
			BatchID:     b.id,
			RuleID:      rule.ID,
			CharacterID: characterID,
			ActionIndex: b.next,
			ActionType:  ar.Type,
			Description: ar.Description,
			UndoData:    ar.UndoData,
			CreatedAt:   e.now(),
		}
		b.next++
		if err := e.store.SaveActionLog(ctx, entry); err != nil {
			e.logger.Error("Failed to save action log", "rule_id", rule.ID, "error", err)
		}

		if ar.PendingAdvance != nil {
			pending.hours += ar.PendingAdvance.Hours
			pending.minutes += ar.PendingAdvance.Minutes
		}
		if ar.Notification != nil {
			e.notify(ctx, campaignID, rule.ID, characterID, b.id, ar.Notification, res)
		}
		for _, cascade := range ar.Cascades {
			res.merge(e.cascade(ctx, campaignID, cascade, depth+1, pending))
		}
	}

	summary := &campaign.Notification{
		CampaignID:  campaignID,
		Type:        campaign.NotificationAutoApplied,
		BatchID:     b.id,
		RuleID:      &rule.ID,
		CharacterID: characterID,
		Title:       "Rule fired: " + rule.Name,
		Message:     summaryMessage(trig.Type, results, ec.Character),
		Details:     details,
		CreatedAt:   e.now(),
	}
	e.saveNotification(ctx, summary, res)
	return results
}

// cascade runs a nested trigger evaluation. Its pending advances join the
// outer pass and its failures stay inside it.
func (e *Engine) cascade(ctx context.Context, campaignID int64, trig Trigger, depth int, pending *pendingAdvance) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Cascade panicked", "trigger", trig.Type, "panic", r)
			res = nil
		}
	}()
	res, err := e.evaluate(ctx, campaignID, trig, depth, pending)
	if err != nil {
		e.logger.Warn("Cascade failed", "trigger", trig.Type, "depth", depth, "error", err)
		return nil
	}
	return res
}

func (e *Engine) flush(ctx context.Context, campaignID int64, pending *pendingAdvance, depth int, res *Result) {
	if pending.hours == 0 && pending.minutes == 0 {
		return
	}
	if e.clock == nil {
		e.logger.Warn("Dropping time advance without a clock", "campaign_id", campaignID)
		return
	}
	events, err := e.clock.AdvanceTime(ctx, campaignID, pending.hours, pending.minutes, depth+1)
	if err != nil {
		e.logger.Warn("Failed to apply requested time advance", "campaign_id", campaignID, "error", err)
		return
	}
	res.Events = append(res.Events, events...)
}

func (e *Engine) suggest(ctx context.Context, campaignID int64, rule *campaign.Rule, trig Trigger, characterID *int64, res *Result) {
	details := make([]string, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		details = append(details, string(a.Kind()))
	}
	n := &campaign.Notification{
		CampaignID:     campaignID,
		Type:           campaign.NotificationSuggestion,
		RuleID:         &rule.ID,
		CharacterID:    characterID,
		Title:          "Suggested: " + rule.Name,
		Message:        fmt.Sprintf("%s: %d action(s) awaiting approval", TriggerTitle(trig.Type), len(rule.Actions)),
		Details:        details,
		PendingActions: rule.Actions,
		CreatedAt:      e.now(),
	}
	e.saveNotification(ctx, n, res)
}

func (e *Engine) notify(ctx context.Context, campaignID, ruleID int64, characterID *int64, batchID string, payload *campaign.Notify, res *Result) {
	title := payload.Title
	if title == "" {
		title = "Notice"
	}
	id := ruleID
	e.saveNotification(ctx, &campaign.Notification{
		CampaignID:  campaignID,
		Type:        campaign.NotificationSystem,
		BatchID:     batchID,
		RuleID:      &id,
		CharacterID: characterID,
		Title:       title,
		Message:     payload.Message,
		CreatedAt:   e.now(),
	}, res)
}

func (e *Engine) saveNotification(ctx context.Context, n *campaign.Notification, res *Result) {
	if err := e.store.SaveNotification(ctx, n); err != nil {
		e.logger.Error("Failed to save notification", "campaign_id", n.CampaignID, "error", err)
		return
	}
	res.Notifications = append(res.Notifications, n)
}

func (e *Engine) stamp(ctx context.Context, fired []*campaign.Rule) {
	now := e.now()
	for _, r := range fired {
		r.LastTriggeredAt = &now
		if err := e.store.SaveRule(ctx, r); err != nil {
			e.logger.Warn("Failed to stamp rule", "rule_id", r.ID, "error", err)
		}
	}
}

func (e *Engine) environment(ctx context.Context, c *campaign.Campaign) (*campaign.EnvironmentState, error) {
	env, err := e.store.GetEnvironment(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = campaign.NewEnvironment(c.ID, c.Config)
	}
	return env, nil
}

// targets resolves a rule's characters in id order. A nil entry is the
// environment-only target.
func (e *Engine) targets(ctx context.Context, campaignID int64, rule *campaign.Rule, trig Trigger) ([]*campaign.Character, error) {
	var chars []*campaign.Character
	var err error
	switch rule.TargetMode {
	case campaign.TargetAllPCs:
		chars, err = e.store.ListCharacters(ctx, campaignID, storage.CharacterFilter{Type: campaign.CharacterPC})
	case campaign.TargetAllNPCs:
		chars, err = e.store.ListCharacters(ctx, campaignID, storage.CharacterFilter{Type: campaign.CharacterNPC})
	case campaign.TargetAllCharacters:
		chars, err = e.store.ListCharacters(ctx, campaignID, storage.CharacterFilter{})
	case campaign.TargetSpecific:
		for _, id := range rule.TargetConfig.CharacterIDs {
			c, gerr := e.store.GetCharacter(ctx, campaignID, id)
			if gerr != nil {
				return nil, gerr
			}
			if c != nil {
				chars = append(chars, c)
			}
		}
	default:
		return []*campaign.Character{nil}, nil
	}
	if err != nil {
		return nil, err
	}
	if trig.CharacterID != nil {
		chars = slices.DeleteFunc(chars, func(c *campaign.Character) bool { return c.ID != *trig.CharacterID })
	}
	return chars, nil
}

// TriggerTitle renders a trigger type for people, e.g. "On Time Advance".
func TriggerTitle(t campaign.TriggerType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

func summaryMessage(t campaign.TriggerType, results []ActionResult, target *campaign.Character) string {
	applied := 0
	for _, r := range results {
		if r.Success {
			applied++
		}
	}
	msg := fmt.Sprintf("%d of %d action(s) applied", applied, len(results))
	if t != "" {
		msg = TriggerTitle(t) + ": " + msg
	}
	if target != nil {
		msg += " to " + target.Name
	}
	return msg
}
