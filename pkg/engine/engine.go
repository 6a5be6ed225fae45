// Package engine exposes the campaign host operations: time, rest, travel,
// encounters, combat and rules. Every public operation runs under the
// campaign's lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/campaign-engine/pkg/attributes"
	"github.com/jwebster45206/campaign-engine/pkg/calendar"
	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/combat"
	"github.com/jwebster45206/campaign-engine/pkg/conditions"
	"github.com/jwebster45206/campaign-engine/pkg/random"
	"github.com/jwebster45206/campaign-engine/pkg/rules"
	"github.com/jwebster45206/campaign-engine/pkg/simulation"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoActiveCombat = combat.ErrNoActiveCombat
	ErrCombatActive   = combat.ErrCombatActive
)

// Session log entry types written by the engine itself.
const (
	LogRest     = "rest"
	LogTravel   = "travel"
	LogLocation = "location"
)

// Locker serializes operations on one campaign.
type Locker interface {
	Lock(ctx context.Context, campaignID int64) (unlock func(), err error)
}

type Engine struct {
	store    storage.Storage
	log      storage.SessionLog
	rng      random.Source
	resolver *attributes.Resolver
	sim      *simulation.Simulator
	tracker  *combat.Tracker
	rules    *rules.Engine
	locker   Locker
	logger   *slog.Logger
}

// New wires the simulation core against store. A nil locker runs
// operations unserialized.
func New(store storage.Storage, log storage.SessionLog, rng random.Source, locker Locker, logger *slog.Logger) *Engine {
	resolver := attributes.NewResolver(store)
	evaluator := conditions.NewEvaluator(resolver, store, rng)
	executor := rules.NewExecutor(store, log, rng, logger)

	e := &Engine{
		store:    store,
		log:      log,
		rng:      rng,
		resolver: resolver,
		sim:      simulation.NewSimulator(store, log, rng, logger),
		tracker:  combat.NewTracker(store, log, logger),
		rules:    rules.NewEngine(store, evaluator, executor, logger),
		locker:   locker,
		logger:   logger,
	}
	e.rules.SetClock(ruleClock{e})
	e.tracker.SetHooks(roundHook{e}, combatClock{e})
	return e
}

// Rules exposes the rule engine.
func (e *Engine) Rules() *rules.Engine {
	return e.rules
}

func (e *Engine) lock(ctx context.Context, campaignID int64) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	unlock, err := e.locker.Lock(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock campaign %d: %w", campaignID, err)
	}
	return unlock, nil
}

// translate maps package errors onto the engine sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidRequest):
		return err
	case errors.Is(err, simulation.ErrCampaignNotFound),
		errors.Is(err, rules.ErrCampaignNotFound),
		errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, rules.ErrBatchNotFound),
		errors.Is(err, rules.ErrNotificationNotFound),
		errors.Is(err, rules.ErrCharacterNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	case errors.Is(err, simulation.ErrInvalidAdvance),
		errors.Is(err, rules.ErrNotSuggestion),
		errors.Is(err, combat.ErrNoCombatants):
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	return err
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Snapshot is the environment with its derived calendar fields.
type Snapshot struct {
	*campaign.EnvironmentState
	TimeOfDay string `json:"time_of_day"`
	Weekday   string `json:"weekday,omitempty"`
	MonthName string `json:"month_name,omitempty"`
	Season    string `json:"season"`
}

func snapshot(cfg campaign.Config, env *campaign.EnvironmentState) *Snapshot {
	t := env.Time()
	return &Snapshot{
		EnvironmentState: env,
		TimeOfDay:        calendar.TimeOfDay(cfg.TimeOfDay, t.MinuteOfDay()),
		Weekday:          calendar.Weekday(t, cfg.Calendar),
		MonthName:        calendar.MonthName(cfg.Calendar, t.Month),
		Season:           calendar.Season(t.Month),
	}
}

// Outcome is what every state-changing operation returns.
type Outcome struct {
	Environment   *Snapshot                     `json:"environment"`
	Events        []campaign.Event              `json:"events"`
	Encounter     *campaign.EncounterDefinition `json:"encounter,omitempty"`
	Fired         []rules.FiredRule             `json:"fired_rules"`
	Notifications []*campaign.Notification      `json:"notifications"`
	BatchIDs      []string                      `json:"batch_ids,omitempty"`
}

func newOutcome() *Outcome {
	return &Outcome{
		Events:        []campaign.Event{},
		Fired:         []rules.FiredRule{},
		Notifications: []*campaign.Notification{},
	}
}

func (o *Outcome) addRules(res *rules.Result) {
	if res == nil {
		return
	}
	o.Events = append(o.Events, res.Events...)
	o.Fired = append(o.Fired, res.Fired...)
	o.Notifications = append(o.Notifications, res.Notifications...)
	if res.BatchID != "" && len(res.Fired) > 0 {
		o.BatchIDs = append(o.BatchIDs, res.BatchID)
	}
}

type outcomeKey struct{}

// withOutcome lets hooks called deep inside an operation report rule
// results to it.
func withOutcome(ctx context.Context, o *Outcome) context.Context {
	return context.WithValue(ctx, outcomeKey{}, o)
}

func outcomeFrom(ctx context.Context) *Outcome {
	o, _ := ctx.Value(outcomeKey{}).(*Outcome)
	return o
}

// fire runs a trigger from a non-rule flow. Rule failures never fail the
// calling operation.
func (e *Engine) fire(ctx context.Context, campaignID int64, trig rules.Trigger, depth int, out *Outcome) {
	res := e.rules.EvaluateSafe(ctx, campaignID, trig, depth)
	if out != nil {
		out.addRules(res)
	}
}

func (e *Engine) campaign(ctx context.Context, campaignID int64) (*campaign.Campaign, error) {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c == nil {
		return nil, notFound("campaign %d", campaignID)
	}
	return c, nil
}

func (e *Engine) environment(ctx context.Context, c *campaign.Campaign) (*campaign.EnvironmentState, error) {
	env, err := e.store.GetEnvironment(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	if env == nil {
		env = campaign.NewEnvironment(c.ID, c.Config)
	}
	return env, nil
}

// finish attaches the latest environment to out.
func (e *Engine) finish(ctx context.Context, c *campaign.Campaign, out *Outcome) (*Outcome, error) {
	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, err
	}
	out.Environment = snapshot(c.Config, env)
	return out, nil
}

func (e *Engine) append(ctx context.Context, campaignID int64, entryType, message string) {
	if e.log == nil {
		return
	}
	if err := e.log.Append(ctx, campaignID, entryType, message); err != nil {
		e.logger.Warn("Failed to append session log", "campaign_id", campaignID, "error", err)
	}
}

// Environment returns the current environment snapshot.
func (e *Engine) Environment(ctx context.Context, campaignID int64) (*Snapshot, error) {
	c, err := e.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	env, err := e.environment(ctx, c)
	if err != nil {
		return nil, err
	}
	return snapshot(c.Config, env), nil
}

// SessionLog returns up to limit recent log entries.
func (e *Engine) SessionLog(ctx context.Context, campaignID int64, limit int) ([]campaign.LogEntry, error) {
	if _, err := e.campaign(ctx, campaignID); err != nil {
		return nil, err
	}
	if e.log == nil {
		return []campaign.LogEntry{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := e.log.Tail(ctx, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read session log: %w", err)
	}
	return entries, nil
}

// Attributes is a character's resolved sheet with its d20 stat block.
type Attributes struct {
	*attributes.Sheet
	StatBlock *attributes.StatBlock `json:"stat_block,omitempty"`
}

func (e *Engine) Attributes(ctx context.Context, campaignID, characterID int64) (*Attributes, error) {
	sheet, err := e.resolver.Resolve(ctx, campaignID, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve attributes: %w", err)
	}
	if sheet == nil {
		return nil, notFound("character %d", characterID)
	}
	out := &Attributes{Sheet: sheet}
	if sb, err := sheet.StatBlock(); err == nil {
		out.StatBlock = &sb
	} else {
		e.logger.Debug("No stat block for character", "character_id", characterID, "error", err)
	}
	return out, nil
}
