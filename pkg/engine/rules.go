package engine

import (
	"context"
	"fmt"
	"maps"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/rules"
)

// EvaluateRule dry-runs a rule's conditions against its targets without
// executing anything.
func (e *Engine) EvaluateRule(ctx context.Context, campaignID, ruleID int64, characterID *int64) (*rules.Explanation, error) {
	if _, err := e.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	exp, err := e.rules.Explain(ctx, campaignID, ruleID, characterID)
	if err != nil {
		return nil, translate(err)
	}
	return exp, nil
}

// RunRule executes a rule in auto mode regardless of its trigger.
func (e *Engine) RunRule(ctx context.Context, campaignID, ruleID int64) (*Outcome, error) {
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
	res, err := e.rules.RunRule(ctx, campaignID, ruleID)
	if err != nil {
		return nil, translate(err)
	}
	out.addRules(res)
	return e.finish(ctx, c, out)
}

// FireTrigger evaluates a trigger entered from outside the engine, such as
// an effect change made through the CRUD layer. A character_id in the
// context narrows character targets to that character.
func (e *Engine) FireTrigger(ctx context.Context, campaignID int64, triggerType campaign.TriggerType, triggerCtx map[string]any) (*Outcome, error) {
	if !triggerType.Valid() {
		return nil, invalid("unknown trigger_type %q", triggerType)
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
	trig := rules.Trigger{Type: triggerType, Context: maps.Clone(triggerCtx)}
	if trig.Context == nil {
		trig.Context = map[string]any{}
	}
	if v, ok := trig.Context[rules.KeyCharacterID]; ok {
		f, ok := campaign.ToFloat(v)
		if !ok {
			return nil, invalid("character_id must be a number")
		}
		id := int64(f)
		trig.CharacterID = &id
	}

	out := newOutcome()
	ctx = withOutcome(ctx, out)
	res, err := e.rules.Evaluate(ctx, campaignID, trig, 0)
	if err != nil {
		return nil, translate(err)
	}
	out.addRules(res)
	return e.finish(ctx, c, out)
}

// CheckThreshold fires on_threshold rules for an attribute change made
// outside the engine.
func (e *Engine) CheckThreshold(ctx context.Context, campaignID, characterID int64, attribute string, before, after float64) (*Outcome, error) {
	if attribute == "" {
		return nil, invalid("attribute is required")
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
	res, err := e.rules.EvaluateThreshold(ctx, campaignID, characterID, attribute, before, after)
	if err != nil {
		return nil, translate(err)
	}
	out.addRules(res)
	return e.finish(ctx, c, out)
}

// UndoBatch reverts every action of a batch.
func (e *Engine) UndoBatch(ctx context.Context, campaignID int64, batchID string) (*rules.UndoResult, error) {
	if batchID == "" {
		return nil, invalid("batch id is required")
	}
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := e.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	res, err := e.rules.UndoBatch(ctx, campaignID, batchID)
	if err != nil {
		return nil, translate(err)
	}
	e.append(ctx, campaignID, rules.LogRule, fmt.Sprintf("Undid batch %s: %d undone, %d skipped", batchID, res.Undone, res.Skipped))
	return res, nil
}

// ApplySuggestion approves a suggestion notification.
func (e *Engine) ApplySuggestion(ctx context.Context, campaignID, notificationID int64) (*Outcome, error) {
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
	res, err := e.rules.ApplySuggestion(ctx, campaignID, notificationID)
	if err != nil {
		return nil, translate(err)
	}
	out.addRules(res)
	return e.finish(ctx, c, out)
}

type NotificationFilter struct {
	UnreadOnly       bool
	IncludeDismissed bool
}

// ListNotifications returns notifications oldest first. Dismissed ones are
// left out unless asked for.
func (e *Engine) ListNotifications(ctx context.Context, campaignID int64, filter NotificationFilter) ([]*campaign.Notification, error) {
	if _, err := e.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	all, err := e.store.ListNotifications(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	out := make([]*campaign.Notification, 0, len(all))
	for _, n := range all {
		if n.Dismissed && !filter.IncludeDismissed {
			continue
		}
		if n.Read && filter.UnreadOnly {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (e *Engine) MarkRead(ctx context.Context, campaignID, notificationID int64) (*campaign.Notification, error) {
	return e.updateNotification(ctx, campaignID, notificationID, func(n *campaign.Notification) { n.Read = true })
}

// Dismiss hides a notification. A dismissed suggestion can no longer be
// applied.
func (e *Engine) Dismiss(ctx context.Context, campaignID, notificationID int64) (*campaign.Notification, error) {
	return e.updateNotification(ctx, campaignID, notificationID, func(n *campaign.Notification) { n.Dismissed = true })
}

func (e *Engine) updateNotification(ctx context.Context, campaignID, notificationID int64, update func(*campaign.Notification)) (*campaign.Notification, error) {
	unlock, err := e.lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := e.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	n, err := e.store.GetNotification(ctx, campaignID, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}
	if n == nil {
		return nil, notFound("notification %d", notificationID)
	}
	update(n)
	if err := e.store.SaveNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}
	return n, nil
}
