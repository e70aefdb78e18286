package gm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jwebster45206/quantum-engine/pkg/prediction"
)

const (
	// DefaultMaxDecisions bounds the decision set per action.
	DefaultMaxDecisions = 4

	noTwistPrior      = 0.70
	twistTotalCap     = 0.30
	optionalFactBoost = 0.05
)

// FactPredicate names one world fact a twist requires or is boosted by.
// SubjectPattern uses the fact store's category patterns ("player",
// "world", "location:*", "npc:*", "item:*", "rival:*").
type FactPredicate struct {
	SubjectPattern string
	Predicate      string
}

// TwistDefinition is one catalog entry: a narrative complication, the
// action types it can attach to, and the facts that ground it.
type TwistDefinition struct {
	DecisionType    string
	ActionTypes     []prediction.ActionType
	RequiredFacts   []FactPredicate // all must exist for the twist to be offered
	OptionalFacts   []FactPredicate // each existing fact adds optionalFactBoost
	BaseProbability float64
	Context         string
}

// appliesTo reports whether the twist can attach to the action type.
func (t TwistDefinition) appliesTo(at prediction.ActionType) bool {
	for _, a := range t.ActionTypes {
		if a == at {
			return true
		}
	}
	return false
}

// DefaultCatalog is the built-in twist catalog.
func DefaultCatalog() []TwistDefinition {
	return []TwistDefinition{
		{
			DecisionType: "rival_interference",
			ActionTypes: []prediction.ActionType{
				prediction.ActionInteractNPC, prediction.ActionManipulateItem, prediction.ActionSkillUse,
			},
			RequiredFacts: []FactPredicate{
				{SubjectPattern: "rival:*", Predicate: "active"},
			},
			OptionalFacts: []FactPredicate{
				{SubjectPattern: "rival:*", Predicate: "nearby"},
				{SubjectPattern: "player", Predicate: "has_bounty"},
			},
			BaseProbability: 0.12,
			Context:         "a rival moves against the player mid-action",
		},
		{
			DecisionType: "npc_mood_shift",
			ActionTypes: []prediction.ActionType{
				prediction.ActionInteractNPC, prediction.ActionDialogue,
			},
			RequiredFacts: []FactPredicate{
				{SubjectPattern: "npc:*", Predicate: "troubled"},
			},
			OptionalFacts: []FactPredicate{
				{SubjectPattern: "player", Predicate: "reputation_low"},
			},
			BaseProbability: 0.10,
			Context:         "the npc's hidden trouble surfaces during the exchange",
		},
		{
			DecisionType: "environmental_hazard",
			ActionTypes: []prediction.ActionType{
				prediction.ActionMove, prediction.ActionSkillUse, prediction.ActionObserve,
			},
			RequiredFacts: []FactPredicate{
				{SubjectPattern: "location:*", Predicate: "hazardous"},
			},
			OptionalFacts: []FactPredicate{
				{SubjectPattern: "world", Predicate: "storm_active"},
			},
			BaseProbability: 0.10,
			Context:         "the location's hazard intrudes on the action",
		},
		{
			DecisionType: "hidden_discovery",
			ActionTypes: []prediction.ActionType{
				prediction.ActionObserve, prediction.ActionManipulateItem,
			},
			RequiredFacts: []FactPredicate{
				{SubjectPattern: "location:*", Predicate: "has_secret"},
			},
			BaseProbability: 0.08,
			Context:         "something hidden at the location comes to light",
		},
		{
			DecisionType: "item_complication",
			ActionTypes: []prediction.ActionType{
				prediction.ActionManipulateItem,
			},
			RequiredFacts: []FactPredicate{
				{SubjectPattern: "item:*", Predicate: "cursed"},
			},
			BaseProbability: 0.08,
			Context:         "the item is not what it seems",
		},
	}
}

// Oracle decides which twists are grounded in current world facts and
// assigns them probabilities.
type Oracle struct {
	catalog      []TwistDefinition
	facts        FactStore
	maxDecisions int
	logger       *slog.Logger
}

// NewOracle creates an oracle over a fact store with the default
// catalog.
func NewOracle(facts FactStore, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		catalog:      DefaultCatalog(),
		facts:        facts,
		maxDecisions: DefaultMaxDecisions,
		logger:       logger,
	}
}

// WithCatalog replaces the twist catalog. Returns the oracle for
// chaining.
func (o *Oracle) WithCatalog(catalog []TwistDefinition) *Oracle {
	o.catalog = catalog
	return o
}

// WithMaxDecisions bounds the decision set. Returns the oracle for
// chaining.
func (o *Oracle) WithMaxDecisions(n int) *Oracle {
	o.maxDecisions = n
	return o
}

// Decide returns the normalized, mutually exclusive decision set for an
// action. The no_twist baseline is always present and the set sums to
// 1.0.
func (o *Oracle) Decide(ctx context.Context, action prediction.ActionPrediction) ([]GMDecision, error) {
	decisions := []GMDecision{{
		DecisionType: NoTwist,
		Probability:  noTwistPrior,
	}}

	twistTotal := 0.0
	for _, twist := range o.catalog {
		if !twist.appliesTo(action.ActionType) {
			continue
		}

		grounded, groundingFacts, err := o.requiredFactsExist(ctx, twist.RequiredFacts)
		if err != nil {
			return nil, fmt.Errorf("failed to check twist grounding: %w", err)
		}
		if !grounded {
			continue
		}

		prob := twist.BaseProbability
		for _, opt := range twist.OptionalFacts {
			exists, _, err := o.factExists(ctx, opt)
			if err != nil {
				return nil, fmt.Errorf("failed to check optional fact: %w", err)
			}
			if exists {
				prob += optionalFactBoost
			}
		}

		// The combined twist mass never exceeds the cap.
		if twistTotal+prob > twistTotalCap {
			prob = twistTotalCap - twistTotal
		}
		if prob <= 0 {
			continue
		}
		twistTotal += prob

		decisions = append(decisions, GMDecision{
			DecisionType:   twist.DecisionType,
			Probability:    prob,
			GroundingFacts: groundingFacts,
			Context:        twist.Context,
		})
	}

	normalize(decisions)
	sort.SliceStable(decisions, func(i, j int) bool { return decisions[i].Probability > decisions[j].Probability })

	if o.maxDecisions > 0 && len(decisions) > o.maxDecisions {
		decisions = decisions[:o.maxDecisions]
		normalize(decisions)
		sort.SliceStable(decisions, func(i, j int) bool { return decisions[i].Probability > decisions[j].Probability })
	}
	return decisions, nil
}

// RecordTwistUsage writes a usage fact so future catalogs can apply
// cooldowns.
func (o *Oracle) RecordTwistUsage(ctx context.Context, decisionType string) error {
	if decisionType == NoTwist {
		return nil
	}
	fact := Fact{
		SubjectKey: "world",
		Predicate:  "twist_used:" + decisionType,
		Value:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := o.facts.RecordFact(ctx, fact); err != nil {
		return fmt.Errorf("failed to record twist usage: %w", err)
	}
	return nil
}

// requiredFactsExist checks that every required predicate has a fact,
// returning the grounding fact ids when all exist.
func (o *Oracle) requiredFactsExist(ctx context.Context, required []FactPredicate) (bool, []string, error) {
	var ids []string
	for _, req := range required {
		exists, id, err := o.factExists(ctx, req)
		if err != nil {
			return false, nil, err
		}
		if !exists {
			return false, nil, nil
		}
		ids = append(ids, id)
	}
	return true, ids, nil
}

// factExists resolves one predicate, handling wildcard subject
// patterns via subject enumeration.
func (o *Oracle) factExists(ctx context.Context, fp FactPredicate) (bool, string, error) {
	if !isWildcard(fp.SubjectPattern) {
		fact, ok, err := o.facts.GetFact(ctx, fp.SubjectPattern, fp.Predicate)
		if err != nil || !ok {
			return false, "", err
		}
		return true, fact.ID(), nil
	}

	facts, err := o.facts.FactsForSubject(ctx, fp.SubjectPattern)
	if err != nil {
		return false, "", err
	}
	for _, fact := range facts {
		if fact.Predicate == fp.Predicate {
			return true, fact.ID(), nil
		}
	}
	return false, "", nil
}

func isWildcard(pattern string) bool {
	return len(pattern) > 0 && pattern[len(pattern)-1] == '*'
}

// normalize rescales probabilities to sum to 1.0 in place.
func normalize(decisions []GMDecision) {
	total := 0.0
	for _, d := range decisions {
		total += d.Probability
	}
	if total <= 0 {
		return
	}
	for i := range decisions {
		decisions[i].Probability /= total
	}
}
