package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

// Collection names used as document namespaces.
const (
	collCampaigns     = "campaigns"
	collEnvironments  = "environments"
	collCharacters    = "characters"
	collEffectDefs    = "effect_definitions"
	collAppliedEffect = "applied_effects"
	collItemDefs      = "item_definitions"
	collCharItems     = "character_items"
	collLocations     = "locations"
	collEdges         = "edges"
	collEncounters    = "encounters"
	collRules         = "rules"
	collActionLogs    = "rule_action_logs"
	collNotifications = "notifications"
)

// Documents is a keyed JSON document backend. Collections are scoped to a
// campaign; campaign id 0 holds global collections.
type Documents interface {
	Get(ctx context.Context, coll string, campaignID, id int64) ([]byte, error) // nil when missing
	Put(ctx context.Context, coll string, campaignID, id int64, data []byte) error
	Delete(ctx context.Context, coll string, campaignID, id int64) error
	All(ctx context.Context, coll string, campaignID int64) (map[int64][]byte, error)
	// NextID allocates a new id for coll.
	NextID(ctx context.Context, coll string) (int64, error)
	// Reserve ensures NextID never returns id or anything below it.
	Reserve(ctx context.Context, coll string, id int64) error
	Ping(ctx context.Context) error
	Close() error
}

// Store implements Storage on top of a Documents backend.
type Store struct {
	docs   Documents
	logger *slog.Logger
}

// Ensure Store implements Storage interface
var _ Storage = (*Store)(nil)

func NewStore(docs Documents, logger *slog.Logger) *Store {
	return &Store{docs: docs, logger: logger}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.docs.Ping(ctx)
}

func (s *Store) Close() error {
	return s.docs.Close()
}

func load[T any](ctx context.Context, d Documents, coll string, campaignID, id int64) (*T, error) {
	data, err := d.Get(ctx, coll, campaignID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", coll, id, err)
	}
	if data == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s %d: %w", coll, id, err)
	}
	return &v, nil
}

func save(ctx context.Context, d Documents, coll string, campaignID int64, id *int64, v any) error {
	if *id == 0 {
		next, err := d.NextID(ctx, coll)
		if err != nil {
			return fmt.Errorf("failed to allocate %s id: %w", coll, err)
		}
		*id = next
	} else if err := d.Reserve(ctx, coll, *id); err != nil {
		return fmt.Errorf("failed to reserve %s id %d: %w", coll, *id, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %d: %w", coll, *id, err)
	}
	if err := d.Put(ctx, coll, campaignID, *id, data); err != nil {
		return fmt.Errorf("failed to save %s %d: %w", coll, *id, err)
	}
	return nil
}

// list decodes every document of coll in ascending id order.
func list[T any](ctx context.Context, d Documents, coll string, campaignID int64) ([]*T, error) {
	docs, err := d.All(ctx, coll, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", coll, err)
	}
	ids := make([]int64, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		var v T
		if err := json.Unmarshal(docs[id], &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s %d: %w", coll, id, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func remove(ctx context.Context, d Documents, coll string, campaignID, id int64) error {
	if err := d.Delete(ctx, coll, campaignID, id); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", coll, id, err)
	}
	return nil
}

func requireCampaign(campaignID int64) error {
	if campaignID == 0 {
		return errors.New("campaign id is required")
	}
	return nil
}

// Campaigns

func (s *Store) SaveCampaign(ctx context.Context, c *campaign.Campaign) error {
	return save(ctx, s.docs, collCampaigns, 0, &c.ID, c)
}

func (s *Store) GetCampaign(ctx context.Context, id int64) (*campaign.Campaign, error) {
	return load[campaign.Campaign](ctx, s.docs, collCampaigns, 0, id)
}

// Environment

func (s *Store) SaveEnvironment(ctx context.Context, env *campaign.EnvironmentState) error {
	if err := requireCampaign(env.CampaignID); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal environment: %w", err)
	}
	if err := s.docs.Put(ctx, collEnvironments, 0, env.CampaignID, data); err != nil {
		s.logger.Error("Failed to save environment", "campaign_id", env.CampaignID, "error", err)
		return fmt.Errorf("failed to save environment: %w", err)
	}
	return nil
}

func (s *Store) GetEnvironment(ctx context.Context, campaignID int64) (*campaign.EnvironmentState, error) {
	return load[campaign.EnvironmentState](ctx, s.docs, collEnvironments, 0, campaignID)
}

// Characters

func (s *Store) SaveCharacter(ctx context.Context, c *campaign.Character) error {
	if err := requireCampaign(c.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collCharacters, c.CampaignID, &c.ID, c)
}

func (s *Store) GetCharacter(ctx context.Context, campaignID, id int64) (*campaign.Character, error) {
	return load[campaign.Character](ctx, s.docs, collCharacters, campaignID, id)
}

func (s *Store) ListCharacters(ctx context.Context, campaignID int64, filter CharacterFilter) ([]*campaign.Character, error) {
	all, err := list[campaign.Character](ctx, s.docs, collCharacters, campaignID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) DeleteCharacter(ctx context.Context, campaignID, id int64) error {
	return remove(ctx, s.docs, collCharacters, campaignID, id)
}

// Status effects

func (s *Store) SaveEffectDefinition(ctx context.Context, def *campaign.StatusEffectDefinition) error {
	if err := requireCampaign(def.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collEffectDefs, def.CampaignID, &def.ID, def)
}

func (s *Store) GetEffectDefinition(ctx context.Context, campaignID, id int64) (*campaign.StatusEffectDefinition, error) {
	return load[campaign.StatusEffectDefinition](ctx, s.docs, collEffectDefs, campaignID, id)
}

// FindEffectDefinition matches names case-insensitively; the lowest id wins.
func (s *Store) FindEffectDefinition(ctx context.Context, campaignID int64, name string) (*campaign.StatusEffectDefinition, error) {
	defs, err := list[campaign.StatusEffectDefinition](ctx, s.docs, collEffectDefs, campaignID)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, nil
}

func (s *Store) SaveAppliedEffect(ctx context.Context, e *campaign.AppliedEffect) error {
	if err := requireCampaign(e.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collAppliedEffect, e.CampaignID, &e.ID, e)
}

func (s *Store) GetAppliedEffect(ctx context.Context, campaignID, id int64) (*campaign.AppliedEffect, error) {
	return load[campaign.AppliedEffect](ctx, s.docs, collAppliedEffect, campaignID, id)
}

func (s *Store) ListAppliedEffects(ctx context.Context, campaignID int64) ([]*campaign.AppliedEffect, error) {
	return list[campaign.AppliedEffect](ctx, s.docs, collAppliedEffect, campaignID)
}

func (s *Store) ListCharacterEffects(ctx context.Context, campaignID, characterID int64) ([]*campaign.AppliedEffect, error) {
	all, err := s.ListAppliedEffects(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.CharacterID == characterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) DeleteAppliedEffect(ctx context.Context, campaignID, id int64) error {
	return remove(ctx, s.docs, collAppliedEffect, campaignID, id)
}

// Items

func (s *Store) SaveItemDefinition(ctx context.Context, def *campaign.ItemDefinition) error {
	if err := requireCampaign(def.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collItemDefs, def.CampaignID, &def.ID, def)
}

func (s *Store) GetItemDefinition(ctx context.Context, campaignID, id int64) (*campaign.ItemDefinition, error) {
	return load[campaign.ItemDefinition](ctx, s.docs, collItemDefs, campaignID, id)
}

func (s *Store) FindItemDefinition(ctx context.Context, campaignID int64, name string) (*campaign.ItemDefinition, error) {
	defs, err := list[campaign.ItemDefinition](ctx, s.docs, collItemDefs, campaignID)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, nil
}

func (s *Store) SaveCharacterItem(ctx context.Context, item *campaign.CharacterItem) error {
	if err := requireCampaign(item.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collCharItems, item.CampaignID, &item.ID, item)
}

func (s *Store) GetCharacterItem(ctx context.Context, campaignID, id int64) (*campaign.CharacterItem, error) {
	return load[campaign.CharacterItem](ctx, s.docs, collCharItems, campaignID, id)
}

func (s *Store) ListCharacterItems(ctx context.Context, campaignID, characterID int64) ([]*campaign.CharacterItem, error) {
	all, err := list[campaign.CharacterItem](ctx, s.docs, collCharItems, campaignID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, it := range all {
		if it.CharacterID == characterID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) DeleteCharacterItem(ctx context.Context, campaignID, id int64) error {
	return remove(ctx, s.docs, collCharItems, campaignID, id)
}

// World

func (s *Store) SaveLocation(ctx context.Context, loc *campaign.Location) error {
	if err := requireCampaign(loc.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collLocations, loc.CampaignID, &loc.ID, loc)
}

func (s *Store) GetLocation(ctx context.Context, campaignID, id int64) (*campaign.Location, error) {
	return load[campaign.Location](ctx, s.docs, collLocations, campaignID, id)
}

func (s *Store) SaveEdge(ctx context.Context, edge *campaign.Edge) error {
	if err := requireCampaign(edge.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collEdges, edge.CampaignID, &edge.ID, edge)
}

func (s *Store) GetEdge(ctx context.Context, campaignID, id int64) (*campaign.Edge, error) {
	return load[campaign.Edge](ctx, s.docs, collEdges, campaignID, id)
}

func (s *Store) SaveEncounter(ctx context.Context, enc *campaign.EncounterDefinition) error {
	if err := requireCampaign(enc.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collEncounters, enc.CampaignID, &enc.ID, enc)
}

func (s *Store) GetEncounter(ctx context.Context, campaignID, id int64) (*campaign.EncounterDefinition, error) {
	return load[campaign.EncounterDefinition](ctx, s.docs, collEncounters, campaignID, id)
}

func (s *Store) ListEncounters(ctx context.Context, campaignID int64) ([]*campaign.EncounterDefinition, error) {
	return list[campaign.EncounterDefinition](ctx, s.docs, collEncounters, campaignID)
}

// Rules

func (s *Store) SaveRule(ctx context.Context, rule *campaign.Rule) error {
	if err := requireCampaign(rule.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collRules, rule.CampaignID, &rule.ID, rule)
}

func (s *Store) GetRule(ctx context.Context, campaignID, id int64) (*campaign.Rule, error) {
	return load[campaign.Rule](ctx, s.docs, collRules, campaignID, id)
}

func (s *Store) ListRules(ctx context.Context, campaignID int64) ([]*campaign.Rule, error) {
	return list[campaign.Rule](ctx, s.docs, collRules, campaignID)
}

func (s *Store) SaveActionLog(ctx context.Context, entry *campaign.RuleActionLog) error {
	if err := requireCampaign(entry.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collActionLogs, entry.CampaignID, &entry.ID, entry)
}

func (s *Store) ListActionLogs(ctx context.Context, campaignID int64, batchID string) ([]*campaign.RuleActionLog, error) {
	all, err := list[campaign.RuleActionLog](ctx, s.docs, collActionLogs, campaignID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Notifications

func (s *Store) SaveNotification(ctx context.Context, n *campaign.Notification) error {
	if err := requireCampaign(n.CampaignID); err != nil {
		return err
	}
	return save(ctx, s.docs, collNotifications, n.CampaignID, &n.ID, n)
}

func (s *Store) GetNotification(ctx context.Context, campaignID, id int64) (*campaign.Notification, error) {
	return load[campaign.Notification](ctx, s.docs, collNotifications, campaignID, id)
}

func (s *Store) ListNotifications(ctx context.Context, campaignID int64) ([]*campaign.Notification, error) {
	return list[campaign.Notification](ctx, s.docs, collNotifications, campaignID)
}
