package delta

import (
	"encoding/json"
	"fmt"
)

// DeltaType identifies the kind of state change a StateDelta carries.
type DeltaType string

const (
	DeltaCreateEntity       DeltaType = "create_entity"
	DeltaDeleteEntity       DeltaType = "delete_entity"
	DeltaUpdateEntity       DeltaType = "update_entity"
	DeltaTransferItem       DeltaType = "transfer_item"
	DeltaUpdateNeed         DeltaType = "update_need"
	DeltaUpdateRelationship DeltaType = "update_relationship"
	DeltaRecordFact         DeltaType = "record_fact"
	DeltaUpdateLocation     DeltaType = "update_location"
	DeltaAdvanceTime        DeltaType = "advance_time"
)

// ValidEntityTypes are the entity types a CreateEntity payload may carry.
var ValidEntityTypes = map[string]bool{
	"npc":       true,
	"item":      true,
	"container": true,
	"creature":  true,
	"location":  true,
}

// DefaultEntityType is used when a generated entity type is not valid.
const DefaultEntityType = "item"

// ValidFactCategories are the subject categories a RecordFact payload
// may carry.
var ValidFactCategories = map[string]bool{
	"player":   true,
	"world":    true,
	"location": true,
	"npc":      true,
	"item":     true,
	"rival":    true,
}

// DefaultFactCategory is used when a generated fact category is not valid.
const DefaultFactCategory = "world"

// Changes is the typed payload of a StateDelta. Exactly one concrete
// type corresponds to each DeltaType.
type Changes interface {
	deltaType() DeltaType
}

// CreateEntity introduces a new entity into the world.
type CreateEntity struct {
	EntityType  string `json:"entity_type"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

// DeleteEntity removes an entity from the world.
type DeleteEntity struct {
	Reason string `json:"reason,omitempty"`
}

// UpdateEntity sets fields on an existing entity.
type UpdateEntity struct {
	Fields map[string]string `json:"fields"`
}

// TransferItem moves an item between owners ("player", "location", or
// an entity key).
type TransferItem struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// UpdateNeed adjusts a player need (hunger, rest, morale) to a value.
type UpdateNeed struct {
	Need  string `json:"need"`
	Value int    `json:"value"`
}

// UpdateRelationship sets the player's standing with the target NPC.
type UpdateRelationship struct {
	Value  int    `json:"value"`
	Reason string `json:"reason,omitempty"`
}

// RecordFact stores a world fact about the target subject.
type RecordFact struct {
	Category  string `json:"category"`
	Predicate string `json:"predicate"`
	Value     string `json:"value"`
}

// UpdateLocation moves the player to a destination location.
type UpdateLocation struct {
	Destination string `json:"destination"`
}

// AdvanceTime moves game time forward.
type AdvanceTime struct {
	Minutes int `json:"minutes"`
}

func (CreateEntity) deltaType() DeltaType       { return DeltaCreateEntity }
func (DeleteEntity) deltaType() DeltaType       { return DeltaDeleteEntity }
func (UpdateEntity) deltaType() DeltaType       { return DeltaUpdateEntity }
func (TransferItem) deltaType() DeltaType       { return DeltaTransferItem }
func (UpdateNeed) deltaType() DeltaType         { return DeltaUpdateNeed }
func (UpdateRelationship) deltaType() DeltaType { return DeltaUpdateRelationship }
func (RecordFact) deltaType() DeltaType         { return DeltaRecordFact }
func (UpdateLocation) deltaType() DeltaType     { return DeltaUpdateLocation }
func (AdvanceTime) deltaType() DeltaType        { return DeltaAdvanceTime }

// StateDelta is one atomic state change proposed by the generation
// service. ExpectedState, when present, snapshots the authoritative
// values the delta assumed at generation time; a mismatch at collapse
// time marks the owning branch stale.
type StateDelta struct {
	Type          DeltaType         `json:"delta_type"`
	TargetKey     string            `json:"target_key"`
	Changes       Changes           `json:"changes"`
	ExpectedState map[string]string `json:"expected_state,omitempty"`
}

// rawDelta is the wire form of a StateDelta before the payload is
// decoded into its concrete type.
type rawDelta struct {
	Type          DeltaType         `json:"delta_type"`
	TargetKey     string            `json:"target_key"`
	Changes       json.RawMessage   `json:"changes"`
	ExpectedState map[string]string `json:"expected_state,omitempty"`
}

// UnmarshalJSON decodes the payload into the concrete Changes type for
// the delta's type tag.
func (d *StateDelta) UnmarshalJSON(data []byte) error {
	var raw rawDelta
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal state delta: %w", err)
	}

	d.Type = raw.Type
	d.TargetKey = raw.TargetKey
	d.ExpectedState = raw.ExpectedState

	if len(raw.Changes) == 0 {
		raw.Changes = []byte("{}")
	}

	var changes Changes
	switch raw.Type {
	case DeltaCreateEntity:
		changes = &CreateEntity{}
	case DeltaDeleteEntity:
		changes = &DeleteEntity{}
	case DeltaUpdateEntity:
		changes = &UpdateEntity{}
	case DeltaTransferItem:
		changes = &TransferItem{}
	case DeltaUpdateNeed:
		changes = &UpdateNeed{}
	case DeltaUpdateRelationship:
		changes = &UpdateRelationship{}
	case DeltaRecordFact:
		changes = &RecordFact{}
	case DeltaUpdateLocation:
		changes = &UpdateLocation{}
	case DeltaAdvanceTime:
		changes = &AdvanceTime{}
	default:
		return fmt.Errorf("unknown delta type: %q", raw.Type)
	}

	if err := json.Unmarshal(raw.Changes, changes); err != nil {
		return fmt.Errorf("failed to unmarshal %s changes: %w", raw.Type, err)
	}
	d.Changes = changes
	return nil
}

// MarshalJSON emits the wire form with the payload inlined.
func (d StateDelta) MarshalJSON() ([]byte, error) {
	changes, err := json.Marshal(d.Changes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s changes: %w", d.Type, err)
	}
	return json.Marshal(rawDelta{
		Type:          d.Type,
		TargetKey:     d.TargetKey,
		Changes:       changes,
		ExpectedState: d.ExpectedState,
	})
}
