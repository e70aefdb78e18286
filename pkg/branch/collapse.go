package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jwebster45206/quantum-engine/pkg/delta"
	"github.com/jwebster45206/quantum-engine/pkg/grounding"
)

// ErrStaleBranch signals that authoritative state diverged from the
// state the branch assumed at generation time. The caller must discard
// the branch and regenerate synchronously; no partial effects are
// applied.
var ErrStaleBranch = errors.New("branch is stale")

// StaleBranchError wraps ErrStaleBranch with the mismatched field.
type StaleBranchError struct {
	Key      string
	Target   string
	Field    string
	Expected string
	Actual   string
}

func (e *StaleBranchError) Error() string {
	return fmt.Sprintf("branch %s is stale: %s.%s expected %q, found %q",
		e.Key, e.Target, e.Field, e.Expected, e.Actual)
}

func (e *StaleBranchError) Unwrap() error { return ErrStaleBranch }

// WorldState is the authoritative game-state collaborator. StateValue
// is consulted for staleness checks; ApplyDeltas must apply the list as
// a single all-or-nothing unit.
type WorldState interface {
	StateValue(ctx context.Context, targetKey, field string) (string, bool, error)
	ApplyDeltas(ctx context.Context, deltas []delta.StateDelta) error
}

// CollapseRequest carries the caller-side inputs of a collapse: the
// turn's manifest for narrative cleanup and the player's check
// modifiers.
type CollapseRequest struct {
	Manifest  *grounding.Manifest
	Modifiers ModifierSource
	Advantage Advantage
}

// CollapseResult is the committed, player-visible outcome of a branch.
type CollapseResult struct {
	BranchKey         string      `json:"branch_key"`
	VariantType       VariantType `json:"variant_type"`
	DecisionType      string      `json:"decision_type"`
	Narrative         string      `json:"narrative"` // player-facing, bracket references stripped
	Roll              *RollResult `json:"roll,omitempty"`
	DeltasApplied     int         `json:"deltas_applied"`
	TimePassedMinutes int         `json:"time_passed_minutes"`
}

// Manager converts one precomputed branch into a committed result:
// rolls the decisive check, selects the matching variant, verifies the
// branch is still valid, and applies its deltas exactly once.
type Manager struct {
	world  WorldState
	roller Roller
	logger *slog.Logger

	mu      sync.Mutex
	metrics CollapseMetrics
}

// NewManager creates a collapse manager.
func NewManager(world WorldState, roller Roller, logger *slog.Logger) *Manager {
	if roller == nil {
		roller = &RandRoller{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		world:  world,
		roller: roller,
		logger: logger,
		metrics: CollapseMetrics{
			VariantCounts: make(map[VariantType]int64),
		},
	}
}

// Collapse resolves and commits a branch. A branch already collapsed
// returns its recorded outcome without reapplying effects, making
// collapse idempotent per branch under retries.
func (m *Manager) Collapse(ctx context.Context, b *QuantumBranch, req CollapseRequest) (*CollapseResult, error) {
	start := time.Now()

	if b.IsCollapsed {
		variant, ok := b.Variant(b.CollapsedVariant)
		if !ok {
			return nil, fmt.Errorf("collapsed branch %s has no %s variant", b.Key, b.CollapsedVariant)
		}
		return m.result(b, variant, nil, req), nil
	}

	variant, roll, err := m.selectVariant(b, req)
	if err != nil {
		return nil, err
	}

	if err := m.checkStaleness(ctx, b, variant); err != nil {
		return nil, err
	}

	// All-or-nothing commit of the chosen variant's deltas.
	if len(variant.Deltas) > 0 {
		if err := m.world.ApplyDeltas(ctx, variant.Deltas); err != nil {
			return nil, fmt.Errorf("failed to apply branch deltas: %w", err)
		}
	}

	b.IsCollapsed = true
	b.CollapsedVariant = variant.VariantType

	m.mu.Lock()
	m.metrics.Collapses++
	m.metrics.VariantCounts[variant.VariantType]++
	if b.Decision.IsTwist() {
		m.metrics.Twists++
	}
	m.metrics.collapseDuration += time.Since(start)
	m.mu.Unlock()

	m.logger.Debug("Branch collapsed",
		"key", b.Key.String(),
		"variant", variant.VariantType,
		"decision", b.Decision.DecisionType,
		"deltas", len(variant.Deltas))

	return m.result(b, variant, roll, req), nil
}

// Metrics returns a snapshot of collapse metrics.
func (m *Manager) Metrics() CollapseMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.metrics
	snap.VariantCounts = make(map[VariantType]int64, len(m.metrics.VariantCounts))
	for k, v := range m.metrics.VariantCounts {
		snap.VariantCounts[k] = v
	}
	return snap
}

// selectVariant picks the outcome variant, rolling a skill check when
// the branch requires one. Missing specific variants fall back to
// success.
func (m *Manager) selectVariant(b *QuantumBranch, req CollapseRequest) (*OutcomeVariant, *RollResult, error) {
	success, ok := b.Variant(VariantSuccess)
	if !ok {
		return nil, nil, fmt.Errorf("branch %s has no success variant", b.Key)
	}

	if !success.RequiresDice {
		return success, nil, nil
	}

	modifier := 0
	if req.Modifiers != nil {
		modifier = req.Modifiers.Modifier(success.Skill)
	}
	roll := m.roller.Roll(success.DifficultyClass, modifier, req.Advantage)

	var want VariantType
	switch {
	case roll.Critical:
		want = VariantCriticalSuccess
	case roll.Fumble:
		want = VariantCriticalFailure
	case roll.Pass:
		want = VariantSuccess
	default:
		want = VariantFailure
	}

	variant := m.variantWithFallback(b, want)
	return variant, &roll, nil
}

// variantWithFallback degrades critical variants to their plain forms
// and ultimately to success, which always exists.
func (m *Manager) variantWithFallback(b *QuantumBranch, want VariantType) *OutcomeVariant {
	order := []VariantType{want}
	switch want {
	case VariantCriticalSuccess:
		order = append(order, VariantSuccess)
	case VariantCriticalFailure, VariantPartialSuccess:
		order = append(order, VariantFailure, VariantSuccess)
	case VariantFailure:
		order = append(order, VariantSuccess)
	}
	for _, vt := range order {
		if v, ok := b.Variant(vt); ok {
			return v
		}
	}
	v, _ := b.Variant(VariantSuccess)
	return v
}

// checkStaleness compares each delta's expected-state snapshot against
// current authoritative state. Any mismatch aborts the collapse before
// effects are applied.
func (m *Manager) checkStaleness(ctx context.Context, b *QuantumBranch, variant *OutcomeVariant) error {
	for _, d := range variant.Deltas {
		for field, expected := range d.ExpectedState {
			actual, ok, err := m.world.StateValue(ctx, d.TargetKey, field)
			if err != nil {
				return fmt.Errorf("failed to read state for staleness check: %w", err)
			}
			if !ok {
				actual = ""
			}
			if actual != expected {
				return &StaleBranchError{
					Key:      b.Key.String(),
					Target:   d.TargetKey,
					Field:    field,
					Expected: expected,
					Actual:   actual,
				}
			}
		}
	}
	return nil
}

func (m *Manager) result(b *QuantumBranch, variant *OutcomeVariant, roll *RollResult, req CollapseRequest) *CollapseResult {
	narrative := grounding.CleanNarrative(variant.Narrative, req.Manifest)
	narrative = normalizeNarrative(narrative)

	return &CollapseResult{
		BranchKey:         b.Key.String(),
		VariantType:       variant.VariantType,
		DecisionType:      b.Decision.DecisionType,
		Narrative:         narrative,
		Roll:              roll,
		DeltasApplied:     len(variant.Deltas),
		TimePassedMinutes: variant.TimePassedMinutes,
	}
}

// normalizeNarrative tidies player-facing text after bracket stripping:
// collapsed whitespace and capitalized sentence starts.
func normalizeNarrative(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return text
	}

	var sb strings.Builder
	capitalize := true
	for _, r := range text {
		if capitalize && r != ' ' {
			sb.WriteRune([]rune(strings.ToUpper(string(r)))[0])
			capitalize = false
			continue
		}
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			capitalize = true
		}
	}
	return sb.String()
}
