package storage

import (
	"context"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

// Storage is the read/write interface the simulation core needs from the
// campaign store. Records are addressed by integer ids scoped to a
// campaign. Get methods return (nil, nil) when the record does not exist.
// Save methods assign an id when the record's id is zero and upsert
// otherwise.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	SaveCampaign(ctx context.Context, c *campaign.Campaign) error
	GetCampaign(ctx context.Context, id int64) (*campaign.Campaign, error)

	SaveEnvironment(ctx context.Context, env *campaign.EnvironmentState) error
	GetEnvironment(ctx context.Context, campaignID int64) (*campaign.EnvironmentState, error)

	SaveCharacter(ctx context.Context, c *campaign.Character) error
	GetCharacter(ctx context.Context, campaignID, id int64) (*campaign.Character, error)
	// ListCharacters returns matching characters ordered by id.
	ListCharacters(ctx context.Context, campaignID int64, filter CharacterFilter) ([]*campaign.Character, error)
	DeleteCharacter(ctx context.Context, campaignID, id int64) error

	SaveEffectDefinition(ctx context.Context, def *campaign.StatusEffectDefinition) error
	GetEffectDefinition(ctx context.Context, campaignID, id int64) (*campaign.StatusEffectDefinition, error)
	FindEffectDefinition(ctx context.Context, campaignID int64, name string) (*campaign.StatusEffectDefinition, error)

	SaveAppliedEffect(ctx context.Context, e *campaign.AppliedEffect) error
	GetAppliedEffect(ctx context.Context, campaignID, id int64) (*campaign.AppliedEffect, error)
	ListAppliedEffects(ctx context.Context, campaignID int64) ([]*campaign.AppliedEffect, error)
	ListCharacterEffects(ctx context.Context, campaignID, characterID int64) ([]*campaign.AppliedEffect, error)
	DeleteAppliedEffect(ctx context.Context, campaignID, id int64) error

	SaveItemDefinition(ctx context.Context, def *campaign.ItemDefinition) error
	GetItemDefinition(ctx context.Context, campaignID, id int64) (*campaign.ItemDefinition, error)
	FindItemDefinition(ctx context.Context, campaignID int64, name string) (*campaign.ItemDefinition, error)

	SaveCharacterItem(ctx context.Context, item *campaign.CharacterItem) error
	GetCharacterItem(ctx context.Context, campaignID, id int64) (*campaign.CharacterItem, error)
	ListCharacterItems(ctx context.Context, campaignID, characterID int64) ([]*campaign.CharacterItem, error)
	DeleteCharacterItem(ctx context.Context, campaignID, id int64) error

	SaveLocation(ctx context.Context, loc *campaign.Location) error
	GetLocation(ctx context.Context, campaignID, id int64) (*campaign.Location, error)

	SaveEdge(ctx context.Context, edge *campaign.Edge) error
	GetEdge(ctx context.Context, campaignID, id int64) (*campaign.Edge, error)

	SaveEncounter(ctx context.Context, enc *campaign.EncounterDefinition) error
	GetEncounter(ctx context.Context, campaignID, id int64) (*campaign.EncounterDefinition, error)
	ListEncounters(ctx context.Context, campaignID int64) ([]*campaign.EncounterDefinition, error)

	SaveRule(ctx context.Context, rule *campaign.Rule) error
	GetRule(ctx context.Context, campaignID, id int64) (*campaign.Rule, error)
	ListRules(ctx context.Context, campaignID int64) ([]*campaign.Rule, error)

	SaveActionLog(ctx context.Context, entry *campaign.RuleActionLog) error
	ListActionLogs(ctx context.Context, campaignID int64, batchID string) ([]*campaign.RuleActionLog, error)

	SaveNotification(ctx context.Context, n *campaign.Notification) error
	GetNotification(ctx context.Context, campaignID, id int64) (*campaign.Notification, error)
	ListNotifications(ctx context.Context, campaignID int64) ([]*campaign.Notification, error)
}

// CharacterFilter narrows ListCharacters. Zero values match everything
// except archived characters.
type CharacterFilter struct {
	Type                 campaign.CharacterType
	IncludeArchived      bool
	SpawnedByEncounterID *int64
}

func (f CharacterFilter) Match(c *campaign.Character) bool {
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if c.Archived && !f.IncludeArchived {
		return false
	}
	if f.SpawnedByEncounterID != nil {
		if c.SpawnedByEncounterID == nil || *c.SpawnedByEncounterID != *f.SpawnedByEncounterID {
			return false
		}
	}
	return true
}

// SessionLog is the append-only session log sink.
type SessionLog interface {
	Append(ctx context.Context, campaignID int64, entryType, message string) error
	// Tail returns up to limit most recent entries, oldest first.
	Tail(ctx context.Context, campaignID int64, limit int) ([]campaign.LogEntry, error)
	Close() error
}
