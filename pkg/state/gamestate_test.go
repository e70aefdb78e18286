package state

import (
	"testing"

	"github.com/jwebster45206/quantum-engine/pkg/grounding"
)

func TestGameState_SetPlayerLocation(t *testing.T) {
	gs := tavernState()

	if err := gs.SetPlayerLocation("cellar"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gs.Location() != "cellar" {
		t.Errorf("location = %q, want cellar", gs.Location())
	}
	if err := gs.SetPlayerLocation("moon"); err == nil {
		t.Error("expected error for unknown location")
	}
}

func TestGameState_Inventory(t *testing.T) {
	gs := tavernState()
	gs.AddEntity(&Entity{Key: "coin_purse", EntityType: "item", DisplayName: "Coin Purse", Owner: OwnerPlayer})

	inv := gs.Inventory()
	if len(inv) != 1 || inv[0] != "coin_purse" {
		t.Errorf("inventory = %v, want [coin_purse]", inv)
	}
}

func TestGameState_BuildManifest(t *testing.T) {
	gs := tavernState()
	gs.AddEntity(&Entity{Key: "ale_barrel", EntityType: "container", DisplayName: "Ale Barrel", Owner: "tavern"})
	gs.AddEntity(&Entity{Key: "coin_purse", EntityType: "item", DisplayName: "Coin Purse", Owner: OwnerPlayer})
	gs.AddEntity(&Entity{Key: "dagger", EntityType: "item", DisplayName: "Dagger", Owner: OwnerPlayer, Equipped: true})
	gs.AddEntity(&Entity{Key: "cellar_rat", EntityType: "creature", DisplayName: "Cellar Rat", Owner: "cellar"})
	gs.AddLocation(&Location{Key: "street", DisplayName: "Harrow Street"})

	m := gs.BuildManifest()

	if m.Location != "tavern" {
		t.Errorf("manifest location = %q", m.Location)
	}

	categories := map[grounding.Category]string{
		grounding.CategoryNPCs:           "old_tom",
		grounding.CategoryLocationItems:  "rusty_key",
		grounding.CategoryContainers:     "ale_barrel",
		grounding.CategoryInventory:      "coin_purse",
		grounding.CategoryEquipped:       "dagger",
		grounding.CategoryExits:          "cellar",
		grounding.CategoryKnownLocations: "street",
	}
	for cat, wantKey := range categories {
		found := false
		for _, e := range m.Entities(cat) {
			if e.Key == wantKey {
				found = true
			}
		}
		if !found {
			t.Errorf("category %s missing key %q: %v", cat, wantKey, m.Entities(cat))
		}
	}

	// Entities elsewhere are not referenceable.
	if m.ContainsKey("cellar_rat") {
		t.Error("entity in another location should not appear in the manifest")
	}
	if !m.HasExit("cellar") {
		t.Error("cellar should be a legal exit")
	}
	if m.HasExit("street") {
		t.Error("street is known but not an exit from the tavern")
	}
}
