package engine

import (
	"context"
	"fmt"

	"github.com/jwebster45206/quantum-engine/pkg/branch"
	"github.com/jwebster45206/quantum-engine/pkg/gm"
	"github.com/jwebster45206/quantum-engine/pkg/prediction"
)

// GenerationRequest is the narrow contract with the narrative
// generation collaborator: the action, the twist directive, and the
// grounding manifest rendered as text.
type GenerationRequest struct {
	Location     string                      `json:"location"`
	Prediction   prediction.ActionPrediction `json:"prediction"`
	Decision     gm.GMDecision               `json:"decision"`
	ManifestText string                      `json:"manifest_text"`
}

// GenerationService produces the outcome variants for one branch.
// Implementations live in internal/services; tests inject a
// deterministic stub.
type GenerationService interface {
	GenerateVariants(ctx context.Context, req GenerationRequest) (map[branch.VariantType]*branch.OutcomeVariant, error)
}

// actionPhrase renders a prediction as a short player-relative phrase
// for fallback narratives.
func actionPhrase(pred prediction.ActionPrediction) string {
	target := pred.DisplayName
	if target == "" {
		target = pred.TargetKey
	}

	switch pred.ActionType {
	case prediction.ActionInteractNPC, prediction.ActionDialogue:
		if target != "" {
			return fmt.Sprintf("speak with %s", target)
		}
		return "speak"
	case prediction.ActionManipulateItem:
		if target != "" {
			return fmt.Sprintf("use %s", target)
		}
		return "act"
	case prediction.ActionMove:
		if target != "" {
			return fmt.Sprintf("head toward %s", target)
		}
		return "move on"
	case prediction.ActionObserve:
		return "take in your surroundings"
	case prediction.ActionSkillUse:
		if target != "" {
			return fmt.Sprintf("attempt %s", target)
		}
		return "attempt it"
	case prediction.ActionCombat:
		if target != "" {
			return fmt.Sprintf("fight %s", target)
		}
		return "fight"
	case prediction.ActionWait:
		return "wait"
	default:
		return "proceed"
	}
}

// fallbackVariants synthesizes the minimal variant set used when
// generation fails or returns nothing usable. Skill, combat, and item
// actions also get a generic failure variant.
func fallbackVariants(pred prediction.ActionPrediction) map[branch.VariantType]*branch.OutcomeVariant {
	phrase := actionPhrase(pred)
	variants := map[branch.VariantType]*branch.OutcomeVariant{
		branch.VariantSuccess: {
			VariantType:       branch.VariantSuccess,
			Narrative:         fmt.Sprintf("You %s.", phrase),
			TimePassedMinutes: 1,
		},
	}

	switch pred.ActionType {
	case prediction.ActionSkillUse, prediction.ActionCombat, prediction.ActionManipulateItem:
		variants[branch.VariantFailure] = &branch.OutcomeVariant{
			VariantType:       branch.VariantFailure,
			Narrative:         fmt.Sprintf("You try to %s, but it doesn't go as planned.", phrase),
			TimePassedMinutes: 1,
		}
	}
	return variants
}
