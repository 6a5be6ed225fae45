package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jwebster45206/campaign-engine/pkg/calendar"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/conditions"
)

var ErrCharacterNotFound = errors.New("character not found")

// TargetExplanation is the dry-run outcome for one target.
type TargetExplanation struct {
	CharacterID   *int64              `json:"character_id,omitempty"`
	CharacterName string              `json:"character_name,omitempty"`
	Pass          bool                `json:"pass"`
	Details       []conditions.Detail `json:"details"`
	WouldRun      []string            `json:"would_run"`
}

type Explanation struct {
	RuleID   int64               `json:"rule_id"`
	RuleName string              `json:"rule_name"`
	Enabled  bool                `json:"enabled"`
	Pass     bool                `json:"pass"`
	Targets  []TargetExplanation `json:"targets"`
}

// Explain evaluates a rule's conditions without executing anything. When
// characterID is set only that character is checked.
func (e *Engine) Explain(ctx context.Context, campaignID, ruleID int64, characterID *int64) (*Explanation, error) {
	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	rule, err := e.rule(ctx, campaignID, ruleID)
	if err != nil {
		return nil, err
	}

	var targets []*campaign.Character
	if characterID != nil {
		char, err := e.store.GetCharacter(ctx, campaignID, *characterID)
		if err != nil {
			return nil, fmt.Errorf("failed to load character: %w", err)
		}
		if char == nil {
			return nil, ErrCharacterNotFound
		}
		targets = []*campaign.Character{char}
	} else {
		targets, err = e.targets(ctx, campaignID, rule, Trigger{Type: rule.TriggerType})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve targets: %w", err)
		}
	}

	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	tod := calendar.TimeOfDay(c.Config.TimeOfDay, env.Time().MinuteOfDay())

	wouldRun := make([]string, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		wouldRun = append(wouldRun, string(a.Kind()))
	}

	out := &Explanation{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Enabled:  rule.Enabled,
		Targets:  make([]TargetExplanation, 0, len(targets)),
	}
	for _, target := range targets {
		check := e.evaluator.Evaluate(ctx, rule.Conditions.Root, &conditions.Context{
			CampaignID:  campaignID,
			Config:      c.Config,
			Character:   target,
			Environment: env,
			TimeOfDay:   tod,
			Trigger:     map[string]any{},
			Vars:        map[string]any{},
		})
		te := TargetExplanation{Pass: check.Pass, Details: check.Details, WouldRun: []string{}}
		if target != nil {
			id := target.ID
			te.CharacterID = &id
			te.CharacterName = target.Name
		}
		if check.Pass {
			te.WouldRun = wouldRun
			out.Pass = true
		}
		out.Targets = append(out.Targets, te)
	}
	return out, nil
}

// RunRule executes a rule in auto mode now, ignoring its enabled flag
// and trigger. Conditions are still checked per target.
func (e *Engine) RunRule(ctx context.Context, campaignID, ruleID int64) (*Result, error) {
	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	rule, err := e.rule(ctx, campaignID, ruleID)
	if err != nil {
		return nil, err
	}

	res := newResult()
	b := &batch{id: e.newID()}
	res.BatchID = b.id
	pending := &pendingAdvance{}
	trig := Trigger{Type: rule.TriggerType, Context: map[string]any{}}
	if e.runRule(ctx, c, rule, trig, campaign.ModeAuto, 0, b, pending, res) {
		e.stamp(ctx, []*campaign.Rule{rule})
	}
	e.flush(ctx, campaignID, pending, 0, res)
	return res, nil
}

// ApplySuggestion executes a suggestion's pending actions in auto mode as
// a new batch and dismisses the notification.
func (e *Engine) ApplySuggestion(ctx context.Context, campaignID, notificationID int64) (*Result, error) {
	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	n, err := e.store.GetNotification(ctx, campaignID, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	if n.Type != campaign.NotificationSuggestion || n.Dismissed {
		return nil, ErrNotSuggestion
	}

	rule := &campaign.Rule{Name: n.Title}
	if n.RuleID != nil {
		r, err := e.store.GetRule(ctx, campaignID, *n.RuleID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rule: %w", err)
		}
		if r != nil {
			rule = r
		}
	}

	var target *campaign.Character
	if n.CharacterID != nil {
		target, err = e.store.GetCharacter(ctx, campaignID, *n.CharacterID)
		if err != nil {
			return nil, fmt.Errorf("failed to load character: %w", err)
		}
		if target == nil {
			return nil, ErrCharacterNotFound
		}
	}
	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	res := newResult()
	b := &batch{id: e.newID()}
	res.BatchID = b.id
	pending := &pendingAdvance{}
	ec := &ExecContext{
		CampaignID:  campaignID,
		Config:      c.Config,
		Character:   target,
		Environment: env,
		TimeOfDay:   calendar.TimeOfDay(c.Config.TimeOfDay, env.Time().MinuteOfDay()),
		Vars:        map[string]any{},
	}
	actions := e.apply(ctx, campaignID, rule, n.PendingActions, Trigger{Type: rule.TriggerType}, ec, 0, b, pending, res)
	res.Fired = append(res.Fired, FiredRule{
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		BatchID:     b.id,
		CharacterID: n.CharacterID,
		Mode:        campaign.ModeAuto,
		Actions:     actions,
	})

	n.Dismissed = true
	n.Read = true
	if err := e.store.SaveNotification(ctx, n); err != nil {
		e.logger.Error("Failed to dismiss suggestion", "notification_id", n.ID, "error", err)
	}
	e.flush(ctx, campaignID, pending, 0, res)
	return res, nil
}

// UndoFailure names a log row whose undo returned an error.
type UndoFailure struct {
	ActionIndex int                 `json:"action_index"`
	ActionType  campaign.ActionKind `json:"action_type"`
	Error       string              `json:"error"`
}

type UndoResult struct {
	BatchID string        `json:"batch_id"`
	Undone  int           `json:"undone"`
	Skipped int           `json:"skipped"`
	Failed  []UndoFailure `json:"failed"`
}

// UndoBatch reverses a batch's actions newest first. Rows already undone
// are skipped, so undoing twice is a no-op.
func (e *Engine) UndoBatch(ctx context.Context, campaignID int64, batchID string) (*UndoResult, error) {
	entries, err := e.store.ListActionLogs(ctx, campaignID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrBatchNotFound
	}
	slices.SortFunc(entries, func(a, b *campaign.RuleActionLog) int { return b.ActionIndex - a.ActionIndex })

	res := &UndoResult{BatchID: batchID, Failed: []UndoFailure{}}
	for _, entry := range entries {
		if entry.Undone {
			res.Skipped++
			continue
		}
		reverted, err := e.executor.Undo(ctx, campaignID, entry.ActionType, entry.UndoData)
		if err != nil {
			e.logger.Warn("Failed to undo action", "batch_id", batchID, "action_index", entry.ActionIndex, "error", err)
			res.Failed = append(res.Failed, UndoFailure{
				ActionIndex: entry.ActionIndex,
				ActionType:  entry.ActionType,
				Error:       err.Error(),
			})
			continue
		}
		entry.Undone = true
		if err := e.store.SaveActionLog(ctx, entry); err != nil {
			return res, fmt.Errorf("failed to mark action undone: %w", err)
		}
		if reverted {
			res.Undone++
		} else {
			res.Skipped++
		}
	}
	e.logger.Info("Undid rule batch", "campaign_id", campaignID, "batch_id", batchID,
		"undone", res.Undone, "skipped", res.Skipped, "failed", len(res.Failed))
	return res, nil
}

func (e *Engine) rule(ctx context.Context, campaignID, ruleID int64) (*campaign.Rule, error) {
	r, err := e.store.GetRule(ctx, campaignID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	if r == nil {
		return nil, ErrRuleNotFound
	}
	return r, nil
}
