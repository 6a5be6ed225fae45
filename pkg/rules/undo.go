package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

// Undo reverses one action from its own undo payload. It reports false
// when there was nothing left to reverse or the kind does not mutate
// state.
func (x *Executor) Undo(ctx context.Context, campaignID int64, kind campaign.ActionKind, data json.RawMessage) (bool, error) {
	switch kind {
	case campaign.ActApplyEffect:
		var u appliedEffectUndo
		if err := decodeUndo(data, &u); err != nil {
			return false, err
		}
		existing, err := x.store.GetAppliedEffect(ctx, campaignID, u.AppliedEffectID)
		if err != nil || existing == nil {
			return false, err
		}
		if err := x.store.DeleteAppliedEffect(ctx, campaignID, u.AppliedEffectID); err != nil {
			return false, fmt.Errorf("failed to delete applied effect: %w", err)
		}
		return true, nil

	case campaign.ActRemoveEffect:
		var u removedEffectsUndo
		if err := decodeUndo(data, &u); err != nil {
			return false, err
		}
		for i := range u.Effects {
			ae := u.Effects[i]
			if err := x.store.SaveAppliedEffect(ctx, &ae); err != nil {
				return false, fmt.Errorf("failed to restore applied effect: %w", err)
			}
		}
		return len(u.Effects) > 0, nil

	case campaign.ActModifyAttribute:
		var u attributeUndo
		if err := decodeUndo(data, &u); err != nil {
			return false, err
		}
		char, err := x.store.GetCharacter(ctx, campaignID, u.CharacterID)
		if err != nil || char == nil {
			return false, err
		}
		current, _ := char.NumericAttribute(u.Attribute)
		restored := current - u.Delta
		if u.Created && restored == 0 {
			delete(char.Attributes, u.Attribute)
		} else {
			if char.Attributes == nil {
				char.Attributes = map[string]any{}
			}
			char.Attributes[u.Attribute] = restored
		}
		if err := x.store.SaveCharacter(ctx, char); err != nil {
			return false, fmt.Errorf("failed to save character: %w", err)
		}
		return true, nil

	case campaign.ActConsumeItem:
		var u consumeUndo
		if err := decodeUndo(data, &u); err != nil {
			return false, err
		}
		for i := range u.Previous {
			it := u.Previous[i]
			if err := x.store.SaveCharacterItem(ctx, &it); err != nil {
				return false, fmt.Errorf("failed to restore item: %w", err)
			}
		}
		return len(u.Previous) > 0, nil

	case campaign.ActGrantItem:
		var u grantUndo
		if err := decodeUndo(data, &u); err != nil {
			return false, err
		}
		it, err := x.store.GetCharacterItem(ctx, campaignID, u.CharacterItemID)
		if err != nil || it == nil {
			return false, err
		}
		it.Quantity -= u.Quantity
		if u.Created || it.Quantity <= 0 {
			err = x.store.DeleteCharacterItem(ctx, campaignID, it.ID)
		} else {
			err = x.store.SaveCharacterItem(ctx, it)
		}
		if err != nil {
			return false, fmt.Errorf("failed to revert item: %w", err)
		}
		return true, nil

	case campaign.ActSetWeather, campaign.ActSetEnvironmentNote:
		var u previousUndo
		if err := decodeUndo(data, &u); err != nil {
			return false, err
		}
		env, err := x.store.GetEnvironment(ctx, campaignID)
		if err != nil || env == nil {
			return false, err
		}
		if kind == campaign.ActSetWeather {
			env.Weather = u.Previous
		} else {
			env.Notes = u.Previous
		}
		if err := x.store.SaveEnvironment(ctx, env); err != nil {
			return false, fmt.Errorf("failed to save environment: %w", err)
		}
		return true, nil

	case campaign.ActAdvanceTime, campaign.ActNotify, campaign.ActLog,
		campaign.ActRandomFromList, campaign.ActRollDice:
		return false, nil
	}
	return false, nil
}

func decodeUndo(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing undo data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode undo data: %w", err)
	}
	return nil
}
