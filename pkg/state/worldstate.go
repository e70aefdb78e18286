package state

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jwebster45206/quantum-engine/pkg/delta"
	"github.com/jwebster45206/quantum-engine/pkg/gm"
)

// World adapts a GameState (plus a fact store for record_fact deltas)
// to the collapse engine's authoritative-state contract: staleness
// reads and all-or-nothing delta application.
type World struct {
	gs    *GameState
	facts gm.FactStore
}

// NewWorld wraps a game state. The fact store may be nil when no
// record_fact deltas are expected.
func NewWorld(gs *GameState, facts gm.FactStore) *World {
	return &World{gs: gs, facts: facts}
}

// StateValue resolves a (target, field) pair against current state.
// "player" targets resolve location, time, and needs; entity targets
// resolve owner, relationship, and free-form fields.
func (w *World) StateValue(ctx context.Context, targetKey, field string) (string, bool, error) {
	gs := w.gs
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	if targetKey == OwnerPlayer {
		switch field {
		case "location":
			return gs.PlayerLocation, true, nil
		case "time_minutes":
			return strconv.Itoa(gs.TimeMinutes), true, nil
		default:
			if v, ok := gs.Needs[field]; ok {
				return strconv.Itoa(v), true, nil
			}
			return "", false, nil
		}
	}

	e, ok := gs.Entities[targetKey]
	if !ok {
		return "", false, nil
	}
	switch field {
	case "owner":
		return e.Owner, true, nil
	case "equipped":
		return strconv.FormatBool(e.Equipped), true, nil
	case "relationship":
		if v, ok := gs.Relationships[targetKey]; ok {
			return strconv.Itoa(v), true, nil
		}
		return "", false, nil
	default:
		if v, ok := e.Fields[field]; ok {
			return v, true, nil
		}
		return "", false, nil
	}
}

// ApplyDeltas commits a delta list as a single unit: every delta is
// applied to a working copy first, and the live state is swapped only
// when the whole list succeeds.
func (w *World) ApplyDeltas(ctx context.Context, deltas []delta.StateDelta) error {
	gs := w.gs
	gs.mu.Lock()
	defer gs.mu.Unlock()

	work := &workingState{
		playerLocation: gs.PlayerLocation,
		timeMinutes:    gs.TimeMinutes,
		needs:          copyIntMap(gs.Needs),
		relationships:  copyIntMap(gs.Relationships),
		entities:       copyEntities(gs.Entities),
	}

	var facts []gm.Fact
	for _, d := range deltas {
		fact, err := work.apply(d)
		if err != nil {
			return fmt.Errorf("failed to apply %s delta for %q: %w", d.Type, d.TargetKey, err)
		}
		if fact != nil {
			facts = append(facts, *fact)
		}
	}

	gs.PlayerLocation = work.playerLocation
	gs.TimeMinutes = work.timeMinutes
	gs.Needs = work.needs
	gs.Relationships = work.relationships
	gs.Entities = work.entities

	// Fact writes follow the state commit; a fact-store failure does
	// not roll back entity state.
	if w.facts != nil {
		for _, fact := range facts {
			if err := w.facts.RecordFact(ctx, fact); err != nil {
				return fmt.Errorf("failed to record fact: %w", err)
			}
		}
	}
	return nil
}

type workingState struct {
	playerLocation string
	timeMinutes    int
	needs          map[string]int
	relationships  map[string]int
	entities       map[string]*Entity
}

func (ws *workingState) apply(d delta.StateDelta) (*gm.Fact, error) {
	switch c := d.Changes.(type) {
	case *delta.CreateEntity:
		if _, exists := ws.entities[d.TargetKey]; exists {
			return nil, fmt.Errorf("entity already exists")
		}
		ws.entities[d.TargetKey] = &Entity{
			Key:         d.TargetKey,
			EntityType:  c.EntityType,
			DisplayName: c.DisplayName,
			Description: c.Description,
			Owner:       ws.playerLocation,
		}

	case *delta.DeleteEntity:
		delete(ws.entities, d.TargetKey)
		delete(ws.relationships, d.TargetKey)

	case *delta.UpdateEntity:
		e, ok := ws.entities[d.TargetKey]
		if !ok {
			return nil, fmt.Errorf("entity not found")
		}
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		for k, v := range c.Fields {
			e.Fields[k] = v
		}

	case *delta.TransferItem:
		e, ok := ws.entities[d.TargetKey]
		if !ok {
			return nil, fmt.Errorf("item not found")
		}
		e.Owner = c.To
		if c.To != OwnerPlayer {
			e.Equipped = false
		}

	case *delta.UpdateNeed:
		ws.needs[c.Need] = c.Value

	case *delta.UpdateRelationship:
		ws.relationships[d.TargetKey] = c.Value

	case *delta.RecordFact:
		return &gm.Fact{
			SubjectKey: factSubject(c.Category, d.TargetKey),
			Predicate:  c.Predicate,
			Value:      c.Value,
		}, nil

	case *delta.UpdateLocation:
		ws.playerLocation = c.Destination

	case *delta.AdvanceTime:
		ws.timeMinutes += c.Minutes

	default:
		return nil, fmt.Errorf("unsupported delta type %q", d.Type)
	}
	return nil, nil
}

// factSubject builds the category-scoped subject key the oracle
// queries: "player" and "world" stand alone, everything else is
// "category:target".
func factSubject(category, targetKey string) string {
	switch category {
	case "":
		return targetKey
	case "player", "world":
		return category
	default:
		return category + ":" + targetKey
	}
}

func copyIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyEntities(m map[string]*Entity) map[string]*Entity {
	out := make(map[string]*Entity, len(m))
	for k, e := range m {
		clone := *e
		if e.Fields != nil {
			clone.Fields = make(map[string]string, len(e.Fields))
			for fk, fv := range e.Fields {
				clone.Fields[fk] = fv
			}
		}
		out[k] = &clone
	}
	return out
}
