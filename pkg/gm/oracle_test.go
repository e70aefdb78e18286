package gm

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/jwebster45206/quantum-engine/pkg/prediction"
)

func seedFacts(t *testing.T, store FactStore, facts ...Fact) {
	t.Helper()
	for _, f := range facts {
		if err := store.RecordFact(context.Background(), f); err != nil {
			t.Fatalf("failed to seed fact %s: %v", f.ID(), err)
		}
	}
}

func decisionTypes(decisions []GMDecision) []string {
	out := make([]string, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, d.DecisionType)
	}
	return out
}

func assertNormalized(t *testing.T, decisions []GMDecision) {
	t.Helper()
	total := 0.0
	for _, d := range decisions {
		total += d.Probability
	}
	if math.Abs(total-1.0) > 1e-9 {
		t.Errorf("probabilities sum to %.6f, want 1.0 (%v)", total, decisionTypes(decisions))
	}
}

func TestOracle_NoFactsMeansNoTwists(t *testing.T) {
	oracle := NewOracle(NewMemoryFactStore(), nil)

	decisions, err := oracle.Decide(context.Background(), prediction.ActionPrediction{
		ActionType: prediction.ActionInteractNPC,
		TargetKey:  "old_tom",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 1 || decisions[0].DecisionType != NoTwist {
		t.Fatalf("decisions = %v, want only no_twist", decisionTypes(decisions))
	}
	if math.Abs(decisions[0].Probability-1.0) > 1e-9 {
		t.Errorf("no_twist probability = %.2f, want 1.0", decisions[0].Probability)
	}
}

func TestOracle_GroundedTwistOffered(t *testing.T) {
	store := NewMemoryFactStore()
	seedFacts(t, store, Fact{SubjectKey: "rival:scarred_jack", Predicate: "active", Value: "true"})
	oracle := NewOracle(store, nil)

	decisions, err := oracle.Decide(context.Background(), prediction.ActionPrediction{
		ActionType: prediction.ActionInteractNPC,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertNormalized(t, decisions)
	if decisions[0].DecisionType != NoTwist {
		t.Errorf("highest-probability decision = %s, want no_twist", decisions[0].DecisionType)
	}

	var rival *GMDecision
	for i := range decisions {
		if decisions[i].DecisionType == "rival_interference" {
			rival = &decisions[i]
		}
	}
	if rival == nil {
		t.Fatalf("decisions = %v, want rival_interference present", decisionTypes(decisions))
	}
	if len(rival.GroundingFacts) != 1 || rival.GroundingFacts[0] != "rival:scarred_jack/active" {
		t.Errorf("grounding facts = %v", rival.GroundingFacts)
	}
}

func TestOracle_UngroundedTwistExcluded(t *testing.T) {
	store := NewMemoryFactStore()
	// A cursed item grounds item_complication, but nothing grounds the
	// npc twists.
	seedFacts(t, store, Fact{SubjectKey: "item:black_pearl", Predicate: "cursed", Value: "true"})
	oracle := NewOracle(store, nil)

	decisions, err := oracle.Decide(context.Background(), prediction.ActionPrediction{
		ActionType: prediction.ActionManipulateItem,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	types := decisionTypes(decisions)
	if !contains(types, "item_complication") {
		t.Errorf("decisions = %v, want item_complication", types)
	}
	if contains(types, "rival_interference") || contains(types, "hidden_discovery") {
		t.Errorf("decisions = %v include ungrounded twists", types)
	}
	assertNormalized(t, decisions)
}

func TestOracle_OptionalFactBoost(t *testing.T) {
	base := NewMemoryFactStore()
	seedFacts(t, base, Fact{SubjectKey: "rival:scarred_jack", Predicate: "active", Value: "true"})

	boosted := NewMemoryFactStore()
	seedFacts(t, boosted,
		Fact{SubjectKey: "rival:scarred_jack", Predicate: "active", Value: "true"},
		Fact{SubjectKey: "rival:scarred_jack", Predicate: "nearby", Value: "true"},
	)

	action := prediction.ActionPrediction{ActionType: prediction.ActionInteractNPC}

	baseDecisions, err := NewOracle(base, nil).Decide(context.Background(), action)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boostedDecisions, err := NewOracle(boosted, nil).Decide(context.Background(), action)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	baseProb := probabilityOf(baseDecisions, "rival_interference")
	boostedProb := probabilityOf(boostedDecisions, "rival_interference")
	if boostedProb <= baseProb {
		t.Errorf("boosted probability %.4f not above base %.4f", boostedProb, baseProb)
	}
}

func TestOracle_TwistMassCapped(t *testing.T) {
	store := NewMemoryFactStore()
	seedFacts(t, store,
		Fact{SubjectKey: "rival:scarred_jack", Predicate: "active", Value: "true"},
		Fact{SubjectKey: "rival:scarred_jack", Predicate: "nearby", Value: "true"},
		Fact{SubjectKey: "player", Predicate: "has_bounty", Value: "true"},
		Fact{SubjectKey: "location:tavern", Predicate: "has_secret", Value: "true"},
		Fact{SubjectKey: "item:black_pearl", Predicate: "cursed", Value: "true"},
	)
	oracle := NewOracle(store, nil).WithMaxDecisions(10)

	decisions, err := oracle.Decide(context.Background(), prediction.ActionPrediction{
		ActionType: prediction.ActionManipulateItem,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertNormalized(t, decisions)
	// Pre-normalization the twist mass is capped at 0.30 against the
	// 0.70 no_twist prior, so normalized no_twist stays at least 0.70.
	noTwist := probabilityOf(decisions, NoTwist)
	if noTwist < 0.70-1e-9 {
		t.Errorf("no_twist probability = %.4f, want >= 0.70", noTwist)
	}
}

func TestOracle_Truncation(t *testing.T) {
	store := NewMemoryFactStore()
	seedFacts(t, store,
		Fact{SubjectKey: "rival:scarred_jack", Predicate: "active", Value: "true"},
		Fact{SubjectKey: "location:tavern", Predicate: "has_secret", Value: "true"},
		Fact{SubjectKey: "item:black_pearl", Predicate: "cursed", Value: "true"},
	)
	oracle := NewOracle(store, nil).WithMaxDecisions(2)

	decisions, err := oracle.Decide(context.Background(), prediction.ActionPrediction{
		ActionType: prediction.ActionManipulateItem,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	if decisions[0].DecisionType != NoTwist {
		t.Errorf("top decision = %s, want no_twist", decisions[0].DecisionType)
	}
	assertNormalized(t, decisions)
}

func TestOracle_RecordTwistUsage(t *testing.T) {
	store := NewMemoryFactStore()
	oracle := NewOracle(store, nil)

	if err := oracle.RecordTwistUsage(context.Background(), "rival_interference"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fact, ok, err := store.GetFact(context.Background(), "world", "twist_used:rival_interference")
	if err != nil || !ok {
		t.Fatalf("usage fact not recorded: ok=%v err=%v", ok, err)
	}
	if fact.Value == "" {
		t.Error("usage fact has no timestamp value")
	}

	// no_twist is not usage.
	if err := oracle.RecordTwistUsage(context.Background(), NoTwist); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := store.GetFact(context.Background(), "world", "twist_used:"+NoTwist); ok {
		t.Error("no_twist should not record a usage fact")
	}
}

func probabilityOf(decisions []GMDecision, decisionType string) float64 {
	for _, d := range decisions {
		if d.DecisionType == decisionType {
			return d.Probability
		}
	}
	return 0
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
