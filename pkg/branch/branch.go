package branch

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwebster45206/quantum-engine/pkg/gm"
	"github.com/jwebster45206/quantum-engine/pkg/prediction"
)

// DefaultExpirySeconds is the default per-branch TTL.
const DefaultExpirySeconds = 180

// NoTarget is the key segment used when an action has no target.
const NoTarget = "none"

// Key is the composite branch key:
// location::action_type::target::gm_decision. The string form is
// stable and reproducible.
type Key struct {
	Location     string
	ActionType   prediction.ActionType
	Target       string
	DecisionType string
}

// NewKey builds a key from its parts, substituting NoTarget for an
// empty target.
func NewKey(location string, actionType prediction.ActionType, target, decisionType string) Key {
	if target == "" {
		target = NoTarget
	}
	return Key{
		Location:     location,
		ActionType:   actionType,
		Target:       target,
		DecisionType: decisionType,
	}
}

// String renders the stable wire form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s::%s::%s::%s", k.Location, k.ActionType, k.Target, k.DecisionType)
}

// ActionPrefix is the location::action_type::target prefix shared by
// all GM-decision variants of one action.
func (k Key) ActionPrefix() string {
	return fmt.Sprintf("%s::%s::%s", k.Location, k.ActionType, k.Target)
}

// ParseKey parses the wire form of a branch key.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "::")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("invalid branch key %q: want 4 segments, got %d", s, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("invalid branch key %q: empty segment %d", s, i)
		}
	}
	return Key{
		Location:     parts[0],
		ActionType:   prediction.ActionType(parts[1]),
		Target:       parts[2],
		DecisionType: parts[3],
	}, nil
}

// QuantumBranch is a fully precomputed, uncommitted unit of work: every
// outcome variant for one (location, action, GM decision) combination.
// A branch is immutable after creation except for collapse bookkeeping.
type QuantumBranch struct {
	Key              Key                             `json:"key"`
	Prediction       prediction.ActionPrediction     `json:"prediction"`
	Decision         gm.GMDecision                   `json:"decision"`
	Variants         map[VariantType]*OutcomeVariant `json:"variants"`
	GeneratedAt      time.Time                       `json:"generated_at"`
	ExpirySeconds    int                             `json:"expiry_seconds"`
	IsCollapsed      bool                            `json:"is_collapsed"`
	CollapsedVariant VariantType                     `json:"collapsed_variant,omitempty"`
}

// NewQuantumBranch assembles a branch for a prediction/decision pair.
func NewQuantumBranch(location string, pred prediction.ActionPrediction, decision gm.GMDecision, variants map[VariantType]*OutcomeVariant) *QuantumBranch {
	return &QuantumBranch{
		Key:           NewKey(location, pred.ActionType, pred.TargetKey, decision.DecisionType),
		Prediction:    pred,
		Decision:      decision,
		Variants:      variants,
		GeneratedAt:   time.Now(),
		ExpirySeconds: DefaultExpirySeconds,
	}
}

// Expired reports whether the branch's own TTL has elapsed at now.
// ExpirySeconds of zero means the branch is never trusted.
func (b *QuantumBranch) Expired(now time.Time) bool {
	if b.ExpirySeconds <= 0 {
		return true
	}
	return now.Sub(b.GeneratedAt) >= time.Duration(b.ExpirySeconds)*time.Second
}

// Variant returns the variant of the given type, or ok=false.
func (b *QuantumBranch) Variant(vt VariantType) (*OutcomeVariant, bool) {
	v, ok := b.Variants[vt]
	return v, ok
}
