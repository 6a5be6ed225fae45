// Package tools exposes the campaign host operations as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/combat"
	"github.com/jwebster45206/campaign-engine/pkg/engine"
)

type CampaignArgs struct {
	CampaignID int64 `json:"campaign_id" jsonschema:"required,description=Campaign id"`
}

type AdvanceTimeArgs struct {
	CampaignID int64 `json:"campaign_id" jsonschema:"required,description=Campaign id"`
	Hours      int   `json:"hours" jsonschema:"description=Hours to advance"`
	Minutes    int   `json:"minutes" jsonschema:"description=Minutes to advance"`
}

type RestArgs struct {
	CampaignID int64  `json:"campaign_id" jsonschema:"required,description=Campaign id"`
	RestType   string `json:"rest_type" jsonschema:"required,enum=short,enum=long,description=Short (1h) or long (8h) rest"`
}

type CombatArgs struct {
	CampaignID      int64                `json:"campaign_id" jsonschema:"required,description=Campaign id"`
	Mode            string               `json:"mode" jsonschema:"required,enum=start,enum=next_turn,enum=patch,enum=end,description=Combat operation"`
	Combatants      []campaign.Combatant `json:"combatants,omitempty" jsonschema:"description=Combatants with character_id and initiative (start/patch)"`
	AdvanceTime     *bool                `json:"advance_time,omitempty" jsonschema:"description=Advance game time as rounds pass"`
	SecondsPerRound *int                 `json:"seconds_per_round,omitempty" jsonschema:"description=Game seconds per round"`
}

type EncounterArgs struct {
	CampaignID  int64   `json:"campaign_id" jsonschema:"required,description=Campaign id"`
	Mode        string  `json:"mode" jsonschema:"required,enum=roll,enum=start,enum=end,description=Encounter operation"`
	EncounterID int64   `json:"encounter_id,omitempty" jsonschema:"description=Encounter id (start/end)"`
	Hours       float64 `json:"hours,omitempty" jsonschema:"description=Hours covered by the roll (roll)"`
}

type RuleArgs struct {
	CampaignID  int64  `json:"campaign_id" jsonschema:"required,description=Campaign id"`
	RuleID      int64  `json:"rule_id" jsonschema:"required,description=Rule id"`
	CharacterID *int64 `json:"character_id,omitempty" jsonschema:"description=Only check this character (evaluate_rule)"`
}

type UndoArgs struct {
	CampaignID int64  `json:"campaign_id" jsonschema:"required,description=Campaign id"`
	BatchID    string `json:"batch_id" jsonschema:"required,description=Batch id returned by a rule run"`
}

type NotificationArgs struct {
	CampaignID       int64 `json:"campaign_id" jsonschema:"required,description=Campaign id"`
	UnreadOnly       bool  `json:"unread_only,omitempty" jsonschema:"description=Only unread notifications"`
	IncludeDismissed bool  `json:"include_dismissed,omitempty" jsonschema:"description=Include dismissed notifications"`
}

// Tools binds MCP tool handlers to an engine.
type Tools struct {
	engine *engine.Engine
	logger *slog.Logger
}

func New(eng *engine.Engine, logger *slog.Logger) *Tools {
	return &Tools{engine: eng, logger: logger}
}

// Register adds every campaign tool to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("get_environment",
		mcp.WithDescription("Current date, time of day, weather, location and combat state of a campaign."),
		mcp.WithInputSchema[CampaignArgs](),
	), t.getEnvironment)

	s.AddTool(mcp.NewTool("advance_time",
		mcp.WithDescription("Advance game time. Rolls weather and random encounters and fires time rules."),
		mcp.WithInputSchema[AdvanceTimeArgs](),
	), t.advanceTime)

	s.AddTool(mcp.NewTool("take_rest",
		mcp.WithDescription("The party takes a short or long rest."),
		mcp.WithInputSchema[RestArgs](),
	), t.takeRest)

	s.AddTool(mcp.NewTool("combat",
		mcp.WithDescription("Start, step, patch or end combat."),
		mcp.WithInputSchema[CombatArgs](),
	), t.combat)

	s.AddTool(mcp.NewTool("encounter",
		mcp.WithDescription("Roll for a random encounter, or start/end a defined encounter."),
		mcp.WithInputSchema[EncounterArgs](),
	), t.encounter)

	s.AddTool(mcp.NewTool("evaluate_rule",
		mcp.WithDescription("Dry run: explain which targets pass a rule's conditions. Changes nothing."),
		mcp.WithInputSchema[RuleArgs](),
	), t.evaluateRule)

	s.AddTool(mcp.NewTool("run_rule",
		mcp.WithDescription("Execute a rule's actions now in auto mode."),
		mcp.WithInputSchema[RuleArgs](),
	), t.runRule)

	s.AddTool(mcp.NewTool("undo_batch",
		mcp.WithDescription("Undo every action of a rule batch, newest first."),
		mcp.WithInputSchema[UndoArgs](),
	), t.undoBatch)

	s.AddTool(mcp.NewTool("list_notifications",
		mcp.WithDescription("List rule notifications and pending suggestions."),
		mcp.WithInputSchema[NotificationArgs](),
	), t.listNotifications)
}

// result renders v as indented JSON, or err as a tool error.
func (t *Tools) result(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		t.logger.Warn("Tool call failed", "tool", tool, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s result: %w", tool, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func bindError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err))
}

func (t *Tools) getEnvironment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CampaignArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	snap, err := t.engine.Environment(ctx, args.CampaignID)
	return t.result("get_environment", snap, err)
}

func (t *Tools) advanceTime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args AdvanceTimeArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	out, err := t.engine.AdvanceTime(ctx, args.CampaignID, args.Hours, args.Minutes)
	return t.result("advance_time", out, err)
}

func (t *Tools) takeRest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args RestArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	out, err := t.engine.TakeRest(ctx, args.CampaignID, args.RestType)
	return t.result("take_rest", out, err)
}

func (t *Tools) combat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CombatArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	switch args.Mode {
	case "start":
		req := combat.StartRequest{Combatants: args.Combatants}
		if args.AdvanceTime != nil {
			req.AdvanceTime = *args.AdvanceTime
		}
		if args.SecondsPerRound != nil {
			req.SecondsPerRound = *args.SecondsPerRound
		}
		out, err := t.engine.StartCombat(ctx, args.CampaignID, req)
		return t.result("combat", out, err)
	case "next_turn":
		out, err := t.engine.NextTurn(ctx, args.CampaignID)
		return t.result("combat", out, err)
	case "patch":
		out, err := t.engine.PatchCombat(ctx, args.CampaignID, combat.PatchRequest{
			Combatants:      args.Combatants,
			AdvanceTime:     args.AdvanceTime,
			SecondsPerRound: args.SecondsPerRound,
		})
		return t.result("combat", out, err)
	case "end":
		out, err := t.engine.EndCombat(ctx, args.CampaignID)
		return t.result("combat", out, err)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown combat mode %q", args.Mode)), nil
	}
}

func (t *Tools) encounter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args EncounterArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	switch args.Mode {
	case "roll":
		out, err := t.engine.RollEncounter(ctx, args.CampaignID, args.Hours)
		return t.result("encounter", out, err)
	case "start":
		out, err := t.engine.StartEncounter(ctx, args.CampaignID, args.EncounterID)
		return t.result("encounter", out, err)
	case "end":
		out, err := t.engine.EndEncounter(ctx, args.CampaignID, args.EncounterID)
		return t.result("encounter", out, err)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown encounter mode %q", args.Mode)), nil
	}
}

func (t *Tools) evaluateRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args RuleArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	exp, err := t.engine.EvaluateRule(ctx, args.CampaignID, args.RuleID, args.CharacterID)
	return t.result("evaluate_rule", exp, err)
}

func (t *Tools) runRule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args RuleArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	out, err := t.engine.RunRule(ctx, args.CampaignID, args.RuleID)
	return t.result("run_rule", out, err)
}

func (t *Tools) undoBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args UndoArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	out, err := t.engine.UndoBatch(ctx, args.CampaignID, args.BatchID)
	return t.result("undo_batch", out, err)
}

func (t *Tools) listNotifications(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args NotificationArgs
	if err := request.BindArguments(&args); err != nil {
		return bindError(err), nil
	}
	out, err := t.engine.ListNotifications(ctx, args.CampaignID, engine.NotificationFilter{
		UnreadOnly:       args.UnreadOnly,
		IncludeDismissed: args.IncludeDismissed,
	})
	return t.result("list_notifications", out, err)
}
