package gm

import (
	"context"
	"testing"
)

func TestMemoryFactStore(t *testing.T) {
	store := NewMemoryFactStore()
	ctx := context.Background()

	if _, ok, err := store.GetFact(ctx, "npc:old_tom", "troubled"); err != nil || ok {
		t.Fatalf("empty store returned a fact: ok=%v err=%v", ok, err)
	}

	seedFacts(t, store,
		Fact{SubjectKey: "npc:old_tom", Predicate: "troubled", Value: "debt"},
		Fact{SubjectKey: "npc:old_tom", Predicate: "knows_player", Value: "true"},
		Fact{SubjectKey: "npc:marta", Predicate: "troubled", Value: "grief"},
		Fact{SubjectKey: "world", Predicate: "storm_active", Value: "true"},
	)

	fact, ok, err := store.GetFact(ctx, "npc:old_tom", "troubled")
	if err != nil || !ok {
		t.Fatalf("GetFact failed: ok=%v err=%v", ok, err)
	}
	if fact.Value != "debt" {
		t.Errorf("fact value = %q, want debt", fact.Value)
	}
	if fact.ID() != "npc:old_tom/troubled" {
		t.Errorf("fact id = %q", fact.ID())
	}

	// Overwrite keeps one fact per subject/predicate.
	seedFacts(t, store, Fact{SubjectKey: "npc:old_tom", Predicate: "troubled", Value: "blackmail"})
	fact, _, _ = store.GetFact(ctx, "npc:old_tom", "troubled")
	if fact.Value != "blackmail" {
		t.Errorf("overwritten fact value = %q, want blackmail", fact.Value)
	}

	npcFacts, err := store.FactsForSubject(ctx, "npc:*")
	if err != nil {
		t.Fatalf("FactsForSubject failed: %v", err)
	}
	if len(npcFacts) != 3 {
		t.Errorf("got %d npc facts, want 3: %v", len(npcFacts), npcFacts)
	}

	exact, err := store.FactsForSubject(ctx, "world")
	if err != nil {
		t.Fatalf("FactsForSubject failed: %v", err)
	}
	if len(exact) != 1 || exact[0].Predicate != "storm_active" {
		t.Errorf("exact subject facts = %v", exact)
	}
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		subject string
		pattern string
		want    bool
	}{
		{"npc:old_tom", "npc:*", true},
		{"npc:old_tom", "npc:old_tom", true},
		{"npc:old_tom", "item:*", false},
		{"world", "world", true},
		{"world", "*", true},
	}
	for _, tt := range tests {
		if got := MatchSubject(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("MatchSubject(%q, %q) = %v, want %v", tt.subject, tt.pattern, got, tt.want)
		}
	}
}
