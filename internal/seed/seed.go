// Package seed loads campaign fixtures from YAML or JSON files into a store.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/storage"
)

// Seed is a complete campaign fixture. Every record carries an explicit id
// so records can reference each other; campaign ids are filled in on load.
type Seed struct {
	Campaign          campaign.Campaign                 `json:"campaign"`
	Environment       *campaign.EnvironmentState        `json:"environment,omitempty"`
	Characters        []campaign.Character              `json:"characters,omitempty"`
	EffectDefinitions []campaign.StatusEffectDefinition `json:"effect_definitions,omitempty"`
	AppliedEffects    []campaign.AppliedEffect          `json:"applied_effects,omitempty"`
	ItemDefinitions   []campaign.ItemDefinition         `json:"item_definitions,omitempty"`
	CharacterItems    []campaign.CharacterItem          `json:"character_items,omitempty"`
	Locations         []campaign.Location               `json:"locations,omitempty"`
	Edges             []campaign.Edge                   `json:"edges,omitempty"`
	Encounters        []campaign.EncounterDefinition    `json:"encounters,omitempty"`
	Rules             []campaign.Rule                   `json:"rules,omitempty"`
}

// ReadFile reads and strictly decodes a seed file. The format follows the
// extension: .yaml/.yml or .json.
func ReadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("seed file %s must be .yaml, .yml or .json", filepath.Base(path))
	}
}

// ParseJSON decodes a seed, rejecting unknown fields.
func ParseJSON(data []byte) (*Seed, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("seed contains invalid JSON")
	}
	var s Seed
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("seed failed strict unmarshaling: %w", err)
	}
	return &s, nil
}

// ParseYAML converts YAML to JSON first so condition trees and action lists
// go through the same parsers as the API.
func ParseYAML(data []byte) (*Seed, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("seed contains invalid YAML: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("seed is empty")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("seed cannot be represented as JSON: %w", err)
	}
	return ParseJSON(raw)
}

// Load validates s and writes every record to store.
func Load(ctx context.Context, store storage.Storage, s *Seed) error {
	if errs := Validate(s); len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	cid := s.Campaign.ID

	if err := store.SaveCampaign(ctx, &s.Campaign); err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}
	env := s.Environment
	if env == nil {
		env = campaign.NewEnvironment(cid, s.Campaign.Config)
	}
	env.CampaignID = cid
	if err := store.SaveEnvironment(ctx, env); err != nil {
		return fmt.Errorf("failed to save environment: %w", err)
	}

	for i := range s.Characters {
		s.Characters[i].CampaignID = cid
		if err := store.SaveCharacter(ctx, &s.Characters[i]); err != nil {
			return fmt.Errorf("failed to save character %d: %w", s.Characters[i].ID, err)
		}
	}
	for i := range s.EffectDefinitions {
		s.EffectDefinitions[i].CampaignID = cid
		if err := store.SaveEffectDefinition(ctx, &s.EffectDefinitions[i]); err != nil {
			return fmt.Errorf("failed to save effect definition %d: %w", s.EffectDefinitions[i].ID, err)
		}
	}
	for i := range s.AppliedEffects {
		s.AppliedEffects[i].CampaignID = cid
		if err := store.SaveAppliedEffect(ctx, &s.AppliedEffects[i]); err != nil {
			return fmt.Errorf("failed to save applied effect %d: %w", s.AppliedEffects[i].ID, err)
		}
	}
	for i := range s.ItemDefinitions {
		s.ItemDefinitions[i].CampaignID = cid
		if err := store.SaveItemDefinition(ctx, &s.ItemDefinitions[i]); err != nil {
			return fmt.Errorf("failed to save item definition %d: %w", s.ItemDefinitions[i].ID, err)
		}
	}
	for i := range s.CharacterItems {
		s.CharacterItems[i].CampaignID = cid
		if err := store.SaveCharacterItem(ctx, &s.CharacterItems[i]); err != nil {
			return fmt.Errorf("failed to save character item %d: %w", s.CharacterItems[i].ID, err)
		}
	}
	for i := range s.Locations {
		s.Locations[i].CampaignID = cid
		if err := store.SaveLocation(ctx, &s.Locations[i]); err != nil {
			return fmt.Errorf("failed to save location %d: %w", s.Locations[i].ID, err)
		}
	}
	for i := range s.Edges {
		s.Edges[i].CampaignID = cid
		if err := store.SaveEdge(ctx, &s.Edges[i]); err != nil {
			return fmt.Errorf("failed to save edge %d: %w", s.Edges[i].ID, err)
		}
	}
	for i := range s.Encounters {
		s.Encounters[i].CampaignID = cid
		if err := store.SaveEncounter(ctx, &s.Encounters[i]); err != nil {
			return fmt.Errorf("failed to save encounter %d: %w", s.Encounters[i].ID, err)
		}
	}
	for i := range s.Rules {
		s.Rules[i].CampaignID = cid
		if err := store.SaveRule(ctx, &s.Rules[i]); err != nil {
			return fmt.Errorf("failed to save rule %d: %w", s.Rules[i].ID, err)
		}
	}
	return nil
}

// LoadFile reads, validates and loads a seed file. It returns the campaign id.
func LoadFile(ctx context.Context, store storage.Storage, path string) (int64, error) {
	s, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	if err := Load(ctx, store, s); err != nil {
		return 0, err
	}
	return s.Campaign.ID, nil
}
