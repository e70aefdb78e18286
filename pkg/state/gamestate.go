package state

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jwebster45206/quantum-engine/pkg/grounding"
)

// OwnerPlayer is the possession key for the player's inventory.
const OwnerPlayer = "player"

// Entity is one world entity: an NPC, item, container, or creature.
// Owner is the possession chain: a location key, a container key, or
// OwnerPlayer.
type Entity struct {
	Key         string            `json:"key"`
	EntityType  string            `json:"entity_type"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description,omitempty"`
	Owner       string            `json:"owner,omitempty"`
	Equipped    bool              `json:"equipped,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// Location is one place in the world with its legal exits.
type Location struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Exits       []string `json:"exits,omitempty"` // location keys
}

// GameState is the authoritative state of one game session. All
// generated mutation goes through ApplyDeltas, which commits a delta
// list as a single unit.
type GameState struct {
	ID             uuid.UUID            `json:"id"`
	PlayerLocation string               `json:"player_location"`
	TimeMinutes    int                  `json:"time_minutes"`
	Needs          map[string]int       `json:"needs,omitempty"`         // hunger, rest, morale in [0,100]
	Relationships  map[string]int       `json:"relationships,omitempty"` // npc key -> standing in [0,100]
	Entities       map[string]*Entity   `json:"entities,omitempty"`
	Locations      map[string]*Location `json:"locations,omitempty"`
	QuestKeys      map[string]bool      `json:"quest_keys,omitempty"` // entities tied to active quests

	mu sync.RWMutex
}

// NewGameState creates an empty game state for a session.
func NewGameState() *GameState {
	return &GameState{
		ID:            uuid.New(),
		Needs:         make(map[string]int),
		Relationships: make(map[string]int),
		Entities:      make(map[string]*Entity),
		Locations:     make(map[string]*Location),
		QuestKeys:     make(map[string]bool),
	}
}

// AddLocation registers a location.
func (gs *GameState) AddLocation(loc *Location) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.Locations[loc.Key] = loc
}

// AddEntity registers an entity.
func (gs *GameState) AddEntity(e *Entity) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.Entities[e.Key] = e
}

// SetPlayerLocation moves the player directly (scenario setup, travel).
func (gs *GameState) SetPlayerLocation(locationKey string) error {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if _, ok := gs.Locations[locationKey]; !ok {
		return fmt.Errorf("unknown location %q", locationKey)
	}
	gs.PlayerLocation = locationKey
	return nil
}

// Location returns the player's current location key.
func (gs *GameState) Location() string {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.PlayerLocation
}

// Entity returns a copy of the entity for key.
func (gs *GameState) Entity(key string) (Entity, bool) {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	e, ok := gs.Entities[key]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Inventory returns the keys of entities the player carries.
func (gs *GameState) Inventory() []string {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	var keys []string
	for key, e := range gs.Entities {
		if e.Owner == OwnerPlayer {
			keys = append(keys, key)
		}
	}
	return keys
}

// BuildManifest assembles the grounding manifest for the player's
// current location: NPCs present, items here, inventory, equipped
// items, containers, exits, and known locations.
func (gs *GameState) BuildManifest() *grounding.Manifest {
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	m := grounding.NewManifest(gs.PlayerLocation)

	for _, e := range gs.Entities {
		ge := grounding.Entity{Key: e.Key, DisplayName: e.DisplayName, Description: e.Description}
		switch {
		case e.Owner == OwnerPlayer && e.Equipped:
			m.Add(grounding.CategoryEquipped, ge)
		case e.Owner == OwnerPlayer:
			m.Add(grounding.CategoryInventory, ge)
		case e.Owner == gs.PlayerLocation && e.EntityType == "npc":
			m.Add(grounding.CategoryNPCs, ge)
		case e.Owner == gs.PlayerLocation && e.EntityType == "container":
			m.Add(grounding.CategoryContainers, ge)
		case e.Owner == gs.PlayerLocation:
			m.Add(grounding.CategoryLocationItems, ge)
		}
	}

	if loc, ok := gs.Locations[gs.PlayerLocation]; ok {
		for _, exitKey := range loc.Exits {
			if exit, ok := gs.Locations[exitKey]; ok {
				m.Add(grounding.CategoryExits, grounding.Entity{
					Key:         exit.Key,
					DisplayName: exit.DisplayName,
					Description: exit.Description,
				})
			}
		}
	}
	for key, loc := range gs.Locations {
		if key == gs.PlayerLocation {
			continue
		}
		m.Add(grounding.CategoryKnownLocations, grounding.Entity{
			Key:         loc.Key,
			DisplayName: loc.DisplayName,
		})
	}

	return m
}
