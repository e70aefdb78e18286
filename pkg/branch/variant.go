package branch

import (
	"github.com/jwebster45206/quantum-engine/pkg/delta"
)

// VariantType identifies one resolved outcome of an action.
type VariantType string

const (
	VariantSuccess         VariantType = "success"
	VariantFailure         VariantType = "failure"
	VariantCriticalSuccess VariantType = "critical_success"
	VariantCriticalFailure VariantType = "critical_failure"
	VariantPartialSuccess  VariantType = "partial_success"
)

// OutcomeVariant is one resolved branch of an action: the narrative
// (with [key:display-text] entity references) and the state deltas that
// commit it.
type OutcomeVariant struct {
	VariantType       VariantType        `json:"variant_type"`
	RequiresDice      bool               `json:"requires_dice"`
	Skill             string             `json:"skill,omitempty"`
	DifficultyClass   int                `json:"difficulty_class,omitempty"`
	Narrative         string             `json:"narrative"`
	Deltas            []delta.StateDelta `json:"deltas,omitempty"`
	TimePassedMinutes int                `json:"time_passed_minutes,omitempty"`
}
