package prediction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jwebster45206/quantum-engine/pkg/grounding"
)

const (
	// DefaultMaxPredictions bounds the ranked candidate list.
	DefaultMaxPredictions = 12

	recentMentionBoost  = 0.15
	questRelevanceBoost = 0.20
	probabilityCap      = 0.95
)

// basePriors is the fixed prior probability per action type.
var basePriors = map[ActionType]float64{
	ActionInteractNPC:    0.55,
	ActionManipulateItem: 0.45,
	ActionMove:           0.40,
	ActionObserve:        0.30,
	ActionDialogue:       0.35,
	ActionSkillUse:       0.25,
	ActionCombat:         0.15,
	ActionWait:           0.10,
	ActionCustom:         0.05,
}

// Predictor produces a ranked list of candidate next actions from the
// current scene manifest and recent-turn context. It is a pure function
// of its inputs: no mutation, no I/O.
type Predictor struct {
	MaxPredictions int
}

// NewPredictor creates a predictor with the default candidate bound.
func NewPredictor() *Predictor {
	return &Predictor{MaxPredictions: DefaultMaxPredictions}
}

// Predict ranks plausible next actions for the scene. NPC, item, and
// move candidates carry synthesized input-matching patterns; observe
// and wait are always present as low-cost defaults.
func (p *Predictor) Predict(m *grounding.Manifest, rc RecentContext) []ActionPrediction {
	var out []ActionPrediction

	for _, npc := range m.Entities(grounding.CategoryNPCs) {
		out = append(out, p.entityCandidate(ActionInteractNPC, npc, rc, "npc present at location"))
	}
	for _, item := range m.Entities(grounding.CategoryLocationItems) {
		out = append(out, p.entityCandidate(ActionManipulateItem, item, rc, "item at location"))
	}
	for _, item := range m.Entities(grounding.CategoryInventory) {
		out = append(out, p.entityCandidate(ActionManipulateItem, item, rc, "item in inventory"))
	}
	for _, exit := range m.Entities(grounding.CategoryExits) {
		out = append(out, p.entityCandidate(ActionMove, exit, rc, "exit from location"))
	}

	// Low-cost defaults, always available.
	out = append(out,
		ActionPrediction{
			ActionType:  ActionObserve,
			Patterns:    []string{`\b(look|examine|inspect|observe|survey)\b`},
			Probability: basePriors[ActionObserve],
			Reason:      "default observation",
			DisplayName: "Look around",
		},
		ActionPrediction{
			ActionType:  ActionWait,
			Patterns:    []string{`\b(wait|rest|pause|linger)\b`},
			Probability: basePriors[ActionWait],
			Reason:      "default wait",
			DisplayName: "Wait",
		},
	)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })

	limit := p.MaxPredictions
	if limit <= 0 {
		limit = DefaultMaxPredictions
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// entityCandidate builds one targeted prediction with its boosts and
// input patterns.
func (p *Predictor) entityCandidate(at ActionType, e grounding.Entity, rc RecentContext, reason string) ActionPrediction {
	prob := basePriors[at]
	if rc.Mentioned(e.Key) {
		prob += recentMentionBoost
		reason += "; recently mentioned"
	}
	if rc.QuestRelevant(e.Key) {
		prob += questRelevanceBoost
		reason += "; quest relevant"
	}
	if prob > probabilityCap {
		prob = probabilityCap
	}

	return ActionPrediction{
		ActionType:  at,
		TargetKey:   e.Key,
		Patterns:    synthesizePatterns(e),
		Probability: prob,
		Reason:      reason,
		DisplayName: e.DisplayName,
	}
}

// roleStopwords are dropped when mining role keywords from an entity
// description.
var roleStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "and": true,
	"with": true, "who": true, "that": true, "this": true, "is": true,
	"was": true, "in": true, "at": true, "on": true, "to": true,
	"his": true, "her": true, "their": true, "its": true, "from": true,
	"for": true, "by": true, "old": true, "young": true, "very": true,
}

// synthesizePatterns builds regex input patterns for an entity: the
// full display name, the first name alone, and role keywords mined from
// the short description.
func synthesizePatterns(e grounding.Entity) []string {
	seen := make(map[string]bool)
	var patterns []string

	add := func(phrase string) {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" || seen[phrase] {
			return
		}
		seen[phrase] = true
		patterns = append(patterns, `\b`+regexp.QuoteMeta(phrase)+`\b`)
	}

	add(e.DisplayName)

	words := strings.Fields(strings.ToLower(e.DisplayName))
	if len(words) > 1 {
		// First-name-only variant, skipping leading articles.
		first := words[0]
		if roleStopwords[first] && len(words) > 2 {
			first = words[1]
		}
		add(first)
		add(words[len(words)-1])
	}

	// Role keywords from the short description ("the grizzled dock
	// foreman" matches "foreman").
	for _, w := range strings.Fields(strings.ToLower(e.Description)) {
		w = strings.Trim(w, ".,;:!?\"'")
		if len(w) < 4 || roleStopwords[w] {
			continue
		}
		if len(patterns) >= 6 {
			break
		}
		add(w)
	}

	return patterns
}

// String implements fmt.Stringer for log output.
func (p ActionPrediction) String() string {
	return fmt.Sprintf("%s/%s p=%.2f", p.ActionType, p.TargetOrNone(), p.Probability)
}
