package grounding

import (
	"sort"
	"strings"
)

// Category partitions manifest entries by where the entity sits this turn.
type Category string

const (
	CategoryNPCs           Category = "npcs_present"
	CategoryLocationItems  Category = "location_items"
	CategoryInventory      Category = "inventory"
	CategoryEquipped       Category = "equipped"
	CategoryContainers     Category = "containers"
	CategoryExits          Category = "exits"
	CategoryKnownLocations Category = "known_locations"
)

// Entity is one referenceable thing in the current scene.
type Entity struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

// Manifest is the authoritative list of entity keys the generation
// service may legally reference this turn. It is built fresh per turn
// and never mutated concurrently.
type Manifest struct {
	Location string

	entries map[Category][]Entity
	byKey   map[string]Entity
	created map[string]bool
}

// NewManifest creates an empty manifest for a location.
func NewManifest(location string) *Manifest {
	return &Manifest{
		Location: location,
		entries:  make(map[Category][]Entity),
		byKey:    make(map[string]Entity),
		created:  make(map[string]bool),
	}
}

// Add registers an entity under a category. Adding the same key twice
// keeps the first entry's category but refreshes display data.
func (m *Manifest) Add(cat Category, e Entity) {
	if e.Key == "" {
		return
	}
	if _, exists := m.byKey[e.Key]; !exists {
		m.entries[cat] = append(m.entries[cat], e)
	}
	m.byKey[e.Key] = e
}

// AddCreated marks a key as created mid-turn, making it a legal
// reference for the remainder of the turn.
func (m *Manifest) AddCreated(e Entity) {
	m.Add(CategoryLocationItems, e)
	m.created[e.Key] = true
}

// ContainsKey reports whether key is legally referenceable this turn.
func (m *Manifest) ContainsKey(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.byKey[key]
	return ok
}

// WasCreatedThisTurn reports whether key was added mid-turn.
func (m *Manifest) WasCreatedThisTurn(key string) bool {
	return m.created[key]
}

// Entity returns the entity for a key, if present.
func (m *Manifest) Entity(key string) (Entity, bool) {
	e, ok := m.byKey[key]
	return e, ok
}

// Entities returns the entities registered under a category.
func (m *Manifest) Entities(cat Category) []Entity {
	return m.entries[cat]
}

// AllKeys returns every legal key, sorted for stable output.
func (m *Manifest) AllKeys() []string {
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasExit reports whether key is a legal exit from the current location.
func (m *Manifest) HasExit(key string) bool {
	for _, e := range m.entries[CategoryExits] {
		if e.Key == key {
			return true
		}
	}
	return false
}

// naturalMention reports whether an entity is conventionally mentioned
// in plain prose (player inventory and equipped items).
func (m *Manifest) naturalMention(key string) bool {
	for _, cat := range []Category{CategoryInventory, CategoryEquipped} {
		for _, e := range m.entries[cat] {
			if e.Key == key {
				return true
			}
		}
	}
	return false
}

// categoryOrder is the render order for RenderText.
var categoryOrder = []struct {
	cat   Category
	label string
}{
	{CategoryNPCs, "NPCs present"},
	{CategoryLocationItems, "Items here"},
	{CategoryInventory, "Player inventory"},
	{CategoryEquipped, "Equipped"},
	{CategoryContainers, "Containers"},
	{CategoryExits, "Exits"},
	{CategoryKnownLocations, "Known locations"},
}

// RenderText formats the manifest for inclusion in a generation prompt.
func (m *Manifest) RenderText() string {
	var sb strings.Builder
	sb.WriteString("Entities you may reference, as [key:display text]:\n")
	for _, co := range categoryOrder {
		entities := m.entries[co.cat]
		if len(entities) == 0 {
			continue
		}
		sb.WriteString(co.label)
		sb.WriteString(": ")
		parts := make([]string, 0, len(entities))
		for _, e := range entities {
			parts = append(parts, "["+e.Key+":"+e.DisplayName+"]")
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}
