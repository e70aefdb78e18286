package gm

import (
	"context"
	"strings"
	"sync"
)

// Fact is one recorded world fact about a subject.
type Fact struct {
	SubjectKey string `json:"subject_key"` // e.g. "player", "world", "npc:old_tom"
	Predicate  string `json:"predicate"`
	Value      string `json:"value"`
}

// ID returns the stable identifier the oracle records as a grounding
// fact: subject_key/predicate.
func (f Fact) ID() string {
	return f.SubjectKey + "/" + f.Predicate
}

// FactStore is the read/write fact collaborator. The oracle reads facts
// to ground twists and writes twist-usage facts for cooldown tracking.
type FactStore interface {
	// GetFact returns the fact for a subject and predicate, or ok=false.
	GetFact(ctx context.Context, subjectKey, predicate string) (Fact, bool, error)

	// FactsForSubject returns all facts whose subject key matches the
	// pattern. A trailing "*" matches any suffix ("npc:*").
	FactsForSubject(ctx context.Context, subjectPattern string) ([]Fact, error)

	// RecordFact stores or overwrites a fact.
	RecordFact(ctx context.Context, fact Fact) error
}

// MemoryFactStore is an in-memory FactStore for tests and single
// process play.
type MemoryFactStore struct {
	mu    sync.RWMutex
	facts map[string]Fact // keyed by Fact.ID()
}

// NewMemoryFactStore creates an empty in-memory fact store.
func NewMemoryFactStore() *MemoryFactStore {
	return &MemoryFactStore{facts: make(map[string]Fact)}
}

func (s *MemoryFactStore) GetFact(ctx context.Context, subjectKey, predicate string) (Fact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[subjectKey+"/"+predicate]
	return f, ok, nil
}

func (s *MemoryFactStore) FactsForSubject(ctx context.Context, subjectPattern string) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Fact
	for _, f := range s.facts {
		if MatchSubject(subjectPattern, f.SubjectKey) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemoryFactStore) RecordFact(ctx context.Context, fact Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[fact.ID()] = fact
	return nil
}

// MatchSubject matches a subject key against a category pattern.
// Patterns are exact ("player", "world") or prefix wildcards
// ("npc:*", "location:*").
func MatchSubject(pattern, subjectKey string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(subjectKey, prefix)
	}
	return pattern == subjectKey
}
