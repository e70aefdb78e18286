package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwebster45206/quantum-engine/pkg/branch"
	"github.com/jwebster45206/quantum-engine/pkg/delta"
	"github.com/jwebster45206/quantum-engine/pkg/engine"
	"github.com/jwebster45206/quantum-engine/pkg/prediction"
)

// MockGenerationService is a deterministic generation collaborator for
// tests and the simulator.
type MockGenerationService struct {
	GenerateVariantsFunc func(ctx context.Context, req engine.GenerationRequest) (map[branch.VariantType]*branch.OutcomeVariant, error)
	ResolveKeyFunc       func(ctx context.Context, unknownKey string, candidates []string) (delta.Resolution, error)

	// Track calls for testing
	GenerateCalls []engine.GenerationRequest
	ResolveCalls  []string

	mu sync.Mutex // protects all fields above
}

var (
	_ engine.GenerationService = (*MockGenerationService)(nil)
	_ delta.KeyResolver        = (*MockGenerationService)(nil)
)

// NewMockGenerationService creates a mock generation service.
func NewMockGenerationService() *MockGenerationService {
	return &MockGenerationService{
		GenerateCalls: make([]engine.GenerationRequest, 0),
		ResolveCalls:  make([]string, 0),
	}
}

// GenerateVariants returns deterministic variants grounded on the
// request, or the configured hook's response.
func (m *MockGenerationService) GenerateVariants(ctx context.Context, req engine.GenerationRequest) (map[branch.VariantType]*branch.OutcomeVariant, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, req)
	fn := m.GenerateVariantsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	target := req.Prediction.TargetKey
	display := req.Prediction.DisplayName
	if display == "" {
		display = target
	}

	ref := ""
	if target != "" {
		ref = fmt.Sprintf(" [%s:%s]", target, display)
	}
	twist := ""
	if req.Decision.IsTwist() {
		twist = fmt.Sprintf(" Then %s.", req.Decision.Context)
	}

	variants := map[branch.VariantType]*branch.OutcomeVariant{
		branch.VariantSuccess: {
			VariantType:       branch.VariantSuccess,
			Narrative:         fmt.Sprintf("You %s%s.%s", req.Prediction.ActionType, ref, twist),
			TimePassedMinutes: 2,
		},
	}

	switch req.Prediction.ActionType {
	case prediction.ActionSkillUse, prediction.ActionCombat:
		success := variants[branch.VariantSuccess]
		success.RequiresDice = true
		success.Skill = "dexterity"
		success.DifficultyClass = 12
		variants[branch.VariantFailure] = &branch.OutcomeVariant{
			VariantType:       branch.VariantFailure,
			Narrative:         fmt.Sprintf("Your attempt at%s falls short.", ref),
			TimePassedMinutes: 2,
		}
	}
	return variants, nil
}

// ResolveKey returns the first candidate, or the configured hook's
// resolution.
func (m *MockGenerationService) ResolveKey(ctx context.Context, unknownKey string, candidates []string) (delta.Resolution, error) {
	m.mu.Lock()
	m.ResolveCalls = append(m.ResolveCalls, unknownKey)
	fn := m.ResolveKeyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, unknownKey, candidates)
	}
	if len(candidates) > 0 {
		return delta.Resolution{Key: candidates[0]}, nil
	}
	return delta.Resolution{CreateNew: true}, nil
}

// SetGenerateError sets up the mock to fail variant generation.
func (m *MockGenerationService) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateVariantsFunc = func(ctx context.Context, req engine.GenerationRequest) (map[branch.VariantType]*branch.OutcomeVariant, error) {
		return nil, err
	}
}

// Reset clears call tracking.
func (m *MockGenerationService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = make([]engine.GenerationRequest, 0)
	m.ResolveCalls = make([]string, 0)
}
