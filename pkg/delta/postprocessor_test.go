package delta

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jwebster45206/quantum-engine/pkg/grounding"
)

// stubResolver is a deterministic KeyResolver for tests.
type stubResolver struct {
	resolution Resolution
	err        error
	calls      []string
}

func (r *stubResolver) ResolveKey(ctx context.Context, unknownKey string, candidates []string) (Resolution, error) {
	r.calls = append(r.calls, unknownKey)
	if r.err != nil {
		return Resolution{}, r.err
	}
	return r.resolution, nil
}

func processorManifest() *grounding.Manifest {
	m := grounding.NewManifest("tavern")
	m.Add(grounding.CategoryNPCs, grounding.Entity{Key: "old_tom", DisplayName: "Old Tom"})
	m.Add(grounding.CategoryLocationItems, grounding.Entity{Key: "rusty_key", DisplayName: "Rusty Key"})
	m.Add(grounding.CategoryExits, grounding.Entity{Key: "cellar", DisplayName: "Tavern Cellar"})
	return m
}

func TestProcess_TransferUnknownItemInjectsCreate(t *testing.T) {
	p := NewPostProcessor(nil, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{
			Type:      DeltaTransferItem,
			TargetKey: "silver_locket",
			Changes:   &TransferItem{From: "old_tom", To: "player"},
		},
	}

	out, err := p.Process(context.Background(), deltas, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d deltas, want 2 (create + transfer): %+v", len(out), out)
	}
	if out[0].Type != DeltaCreateEntity || out[0].TargetKey != "silver_locket" {
		t.Errorf("first delta = %s %q, want CREATE silver_locket", out[0].Type, out[0].TargetKey)
	}
	create := out[0].Changes.(*CreateEntity)
	if create.EntityType != "item" {
		t.Errorf("synthetic create entity type = %q, want item", create.EntityType)
	}
	if create.DisplayName != "Silver Locket" {
		t.Errorf("synthetic create display name = %q, want Silver Locket", create.DisplayName)
	}
	if out[1].Type != DeltaTransferItem {
		t.Errorf("second delta = %s, want TRANSFER_ITEM", out[1].Type)
	}
}

func TestProcess_Contradictions(t *testing.T) {
	p := NewPostProcessor(&stubResolver{}, nil)
	m := processorManifest()

	tests := []struct {
		name   string
		deltas []StateDelta
	}{
		{
			name: "create and delete of same key",
			deltas: []StateDelta{
				{Type: DeltaCreateEntity, TargetKey: "torch", Changes: &CreateEntity{EntityType: "item", DisplayName: "Torch"}},
				{Type: DeltaDeleteEntity, TargetKey: "torch", Changes: &DeleteEntity{Reason: "burned out"}},
			},
		},
		{
			name: "duplicate create",
			deltas: []StateDelta{
				{Type: DeltaCreateEntity, TargetKey: "torch", Changes: &CreateEntity{EntityType: "item", DisplayName: "Torch"}},
				{Type: DeltaCreateEntity, TargetKey: "torch", Changes: &CreateEntity{EntityType: "item", DisplayName: "Torch"}},
			},
		},
		{
			name: "negative time advancement",
			deltas: []StateDelta{
				{Type: DeltaAdvanceTime, TargetKey: "world", Changes: &AdvanceTime{Minutes: -5}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), tt.deltas, m)
			if !errors.Is(err, ErrRegenerationNeeded) {
				t.Fatalf("err = %v, want ErrRegenerationNeeded", err)
			}
			var regen *RegenerationError
			if !errors.As(err, &regen) || len(regen.Reasons) == 0 {
				t.Errorf("expected RegenerationError with reasons, got %v", err)
			}
		})
	}
}

func TestProcess_UnknownUpdateWithoutResolver(t *testing.T) {
	p := NewPostProcessor(nil, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaUpdateRelationship, TargetKey: "ghost_pirate", Changes: &UpdateRelationship{Value: 60}},
	}
	_, err := p.Process(context.Background(), deltas, m)
	if !errors.Is(err, ErrRegenerationNeeded) {
		t.Fatalf("err = %v, want ErrRegenerationNeeded without a resolver", err)
	}
}

func TestProcess_UnknownUpdateResolvedToExisting(t *testing.T) {
	resolver := &stubResolver{resolution: Resolution{Key: "old_tom"}}
	p := NewPostProcessor(resolver, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaUpdateRelationship, TargetKey: "old_thomas", Changes: &UpdateRelationship{Value: 60, Reason: "bought a round"}},
	}
	out, err := p.Process(context.Background(), deltas, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].TargetKey != "old_tom" {
		t.Fatalf("expected single delta rewritten to old_tom, got %+v", out)
	}
	if len(resolver.calls) != 1 || resolver.calls[0] != "old_thomas" {
		t.Errorf("resolver calls = %v, want [old_thomas]", resolver.calls)
	}
}

func TestProcess_UnknownUpdateResolvedToCreate(t *testing.T) {
	resolver := &stubResolver{resolution: Resolution{CreateNew: true, EntityType: "npc", DisplayName: "The Stranger"}}
	p := NewPostProcessor(resolver, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaUpdateEntity, TargetKey: "stranger", Changes: &UpdateEntity{Fields: map[string]string{"mood": "wary"}}},
	}
	out, err := p.Process(context.Background(), deltas, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d deltas, want create + update: %+v", len(out), out)
	}
	if out[0].Type != DeltaCreateEntity {
		t.Errorf("first delta = %s, want CREATE", out[0].Type)
	}
	create := out[0].Changes.(*CreateEntity)
	if create.EntityType != "npc" || create.DisplayName != "The Stranger" {
		t.Errorf("create payload = %+v, want npc / The Stranger", create)
	}
}

func TestProcess_ResolverFailureTriggersRegeneration(t *testing.T) {
	resolver := &stubResolver{err: fmt.Errorf("model unavailable")}
	p := NewPostProcessor(resolver, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaUpdateEntity, TargetKey: "stranger", Changes: &UpdateEntity{}},
	}
	_, err := p.Process(context.Background(), deltas, m)
	if !errors.Is(err, ErrRegenerationNeeded) {
		t.Fatalf("err = %v, want ErrRegenerationNeeded", err)
	}
}

func TestProcess_DropsLocationUpdateToNonExit(t *testing.T) {
	p := NewPostProcessor(nil, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaUpdateLocation, TargetKey: "player", Changes: &UpdateLocation{Destination: "rooftop"}},
		{Type: DeltaAdvanceTime, TargetKey: "world", Changes: &AdvanceTime{Minutes: 5}},
	}
	out, err := p.Process(context.Background(), deltas, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Type != DeltaAdvanceTime {
		t.Fatalf("expected non-exit move dropped, got %+v", out)
	}
}

func TestProcess_KeepsLocationUpdateToExit(t *testing.T) {
	p := NewPostProcessor(nil, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaUpdateLocation, TargetKey: "player", Changes: &UpdateLocation{Destination: "cellar"}},
	}
	out, err := p.Process(context.Background(), deltas, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Type != DeltaUpdateLocation {
		t.Fatalf("expected exit move kept, got %+v", out)
	}
}

func TestProcess_ReordersCreateBeforeUse(t *testing.T) {
	p := NewPostProcessor(nil, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaTransferItem, TargetKey: "torch", Changes: &TransferItem{From: "tavern", To: "player"}},
		{Type: DeltaCreateEntity, TargetKey: "torch", Changes: &CreateEntity{EntityType: "item", DisplayName: "Torch"}},
	}
	out, err := p.Process(context.Background(), deltas, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d deltas, want 2: %+v", len(out), out)
	}
	if out[0].Type != DeltaCreateEntity || out[1].Type != DeltaTransferItem {
		t.Errorf("order = [%s, %s], want [CREATE, TRANSFER]", out[0].Type, out[1].Type)
	}
}

func TestProcess_NormalizesValues(t *testing.T) {
	p := NewPostProcessor(nil, nil)
	m := processorManifest()

	deltas := []StateDelta{
		{Type: DeltaUpdateNeed, TargetKey: "player", Changes: &UpdateNeed{Need: "hunger", Value: 140}},
		{Type: DeltaUpdateRelationship, TargetKey: "old_tom", Changes: &UpdateRelationship{Value: -20}},
		{Type: DeltaRecordFact, TargetKey: "old_tom", Changes: &RecordFact{Category: "nonsense", Predicate: "knows_player", Value: "true"}},
		{Type: DeltaCreateEntity, TargetKey: "mystery_chest", Changes: &CreateEntity{EntityType: "widget", DisplayName: "Mystery Chest"}},
	}
	out, err := p.Process(context.Background(), deltas, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v := out[0].Changes.(*UpdateNeed).Value; v != 100 {
		t.Errorf("need value = %d, want clamped to 100", v)
	}
	if v := out[1].Changes.(*UpdateRelationship).Value; v != 0 {
		t.Errorf("relationship value = %d, want clamped to 0", v)
	}
	if c := out[2].Changes.(*RecordFact).Category; c != DefaultFactCategory {
		t.Errorf("fact category = %q, want %q", c, DefaultFactCategory)
	}
	if et := out[3].Changes.(*CreateEntity).EntityType; et != "container" {
		t.Errorf("entity type = %q, want container (inferred from chest hint)", et)
	}
}
