package delta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwebster45206/quantum-engine/pkg/grounding"
)

// ErrRegenerationNeeded signals that a generated delta list contains a
// contradiction that cannot be repaired locally. The caller should
// discard the generation and request a fresh one.
var ErrRegenerationNeeded = errors.New("delta list needs regeneration")

// RegenerationError wraps ErrRegenerationNeeded with the reasons that
// triggered it.
type RegenerationError struct {
	Reasons []string
}

func (e *RegenerationError) Error() string {
	return fmt.Sprintf("delta list needs regeneration: %s", strings.Join(e.Reasons, "; "))
}

func (e *RegenerationError) Unwrap() error { return ErrRegenerationNeeded }

// Resolution is the outcome of a key clarification request.
type Resolution struct {
	Key         string // resolved existing key, empty when CreateNew
	CreateNew   bool
	EntityType  string // entity type for CreateNew, optional
	DisplayName string // display name for CreateNew, optional
}

// KeyResolver disambiguates an unknown entity key against known
// candidates. The production implementation asks the generation
// service; tests inject a deterministic resolver.
type KeyResolver interface {
	ResolveKey(ctx context.Context, unknownKey string, candidates []string) (Resolution, error)
}

// PostProcessor repairs common defects in generated delta lists before
// they are cached or applied. Unfixable contradictions surface as a
// RegenerationError instead of being silently patched.
type PostProcessor struct {
	resolver KeyResolver // optional; nil means unknown keys are hard failures
	logger   *slog.Logger
}

// NewPostProcessor creates a post-processor. A nil resolver makes
// unknown-key updates regeneration triggers rather than clarification
// requests.
func NewPostProcessor(resolver KeyResolver, logger *slog.Logger) *PostProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostProcessor{
		resolver: resolver,
		logger:   logger,
	}
}

// Process validates and repairs a delta list against the turn's
// grounding manifest. It returns the repaired list, or a
// RegenerationError when the list contains an unfixable contradiction.
func (p *PostProcessor) Process(ctx context.Context, deltas []StateDelta, m *grounding.Manifest) ([]StateDelta, error) {
	if reasons := findContradictions(deltas); len(reasons) > 0 {
		return nil, &RegenerationError{Reasons: reasons}
	}

	pendingCreate := make(map[string]bool)
	for _, d := range deltas {
		if d.Type == DeltaCreateEntity {
			pendingCreate[d.TargetKey] = true
		}
	}

	out := make([]StateDelta, 0, len(deltas))
	for _, d := range deltas {
		repaired, keep, err := p.repairDelta(ctx, d, m, pendingCreate)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}
		out = append(out, repaired...)
	}

	out = reorderCreatesFirst(out)
	normalizeValues(out)
	return out, nil
}

// findContradictions scans for the unfixable conditions: duplicate
// CREATE of one target, CREATE and DELETE of one target, and negative
// time advancement.
func findContradictions(deltas []StateDelta) []string {
	var reasons []string

	created := make(map[string]bool)
	deleted := make(map[string]bool)
	for _, d := range deltas {
		switch d.Type {
		case DeltaCreateEntity:
			if created[d.TargetKey] {
				reasons = append(reasons, fmt.Sprintf("duplicate create for %q", d.TargetKey))
			}
			created[d.TargetKey] = true
		case DeltaDeleteEntity:
			deleted[d.TargetKey] = true
		case DeltaAdvanceTime:
			if at, ok := d.Changes.(*AdvanceTime); ok && at.Minutes < 0 {
				reasons = append(reasons, fmt.Sprintf("negative time advancement (%d minutes)", at.Minutes))
			}
		}
	}
	for key := range created {
		if deleted[key] {
			reasons = append(reasons, fmt.Sprintf("create and delete of %q in one list", key))
		}
	}
	return reasons
}

// repairDelta applies per-delta repairs. It may expand one delta into
// several (synthetic creates), drop it, or fail with a regeneration
// error for unresolvable references.
func (p *PostProcessor) repairDelta(ctx context.Context, d StateDelta, m *grounding.Manifest, pendingCreate map[string]bool) ([]StateDelta, bool, error) {
	known := func(key string) bool {
		return m.ContainsKey(key) || pendingCreate[key]
	}

	switch d.Type {
	case DeltaTransferItem:
		if known(d.TargetKey) {
			return []StateDelta{d}, true, nil
		}
		// The generation invented an item mid-transfer. Materialize it
		// ahead of the transfer so apply order stays valid.
		create := StateDelta{
			Type:      DeltaCreateEntity,
			TargetKey: d.TargetKey,
			Changes: &CreateEntity{
				EntityType:  inferEntityType(d.TargetKey),
				DisplayName: displayNameFromKey(d.TargetKey),
			},
		}
		pendingCreate[d.TargetKey] = true
		p.logger.Debug("Injected synthetic create for transfer target", "key", d.TargetKey)
		return []StateDelta{create, d}, true, nil

	case DeltaUpdateEntity, DeltaUpdateRelationship:
		if known(d.TargetKey) {
			return []StateDelta{d}, true, nil
		}
		return p.resolveUnknownTarget(ctx, d, m, pendingCreate)

	case DeltaUpdateLocation:
		ul, ok := d.Changes.(*UpdateLocation)
		if !ok {
			return []StateDelta{d}, true, nil
		}
		if !m.HasExit(ul.Destination) {
			// Not a legal exit: treat as an in-room position change,
			// not a real transition, and drop it.
			p.logger.Debug("Dropped location update to non-exit", "destination", ul.Destination)
			return nil, false, nil
		}
		return []StateDelta{d}, true, nil

	default:
		return []StateDelta{d}, true, nil
	}
}

// resolveUnknownTarget routes an update against an unknown key through
// the clarification resolver, or fails with a regeneration error when
// no resolver is configured.
func (p *PostProcessor) resolveUnknownTarget(ctx context.Context, d StateDelta, m *grounding.Manifest, pendingCreate map[string]bool) ([]StateDelta, bool, error) {
	if p.resolver == nil {
		return nil, false, &RegenerationError{
			Reasons: []string{fmt.Sprintf("%s references unknown key %q", d.Type, d.TargetKey)},
		}
	}

	candidates := grounding.RankKeys(d.TargetKey, m, 2)
	res, err := p.resolver.ResolveKey(ctx, d.TargetKey, candidates)
	if err != nil {
		return nil, false, &RegenerationError{
			Reasons: []string{fmt.Sprintf("clarification failed for %q: %v", d.TargetKey, err)},
		}
	}

	if res.CreateNew {
		entityType := res.EntityType
		if !ValidEntityTypes[entityType] {
			entityType = inferEntityType(d.TargetKey)
		}
		displayName := res.DisplayName
		if displayName == "" {
			displayName = displayNameFromKey(d.TargetKey)
		}
		create := StateDelta{
			Type:      DeltaCreateEntity,
			TargetKey: d.TargetKey,
			Changes: &CreateEntity{
				EntityType:  entityType,
				DisplayName: displayName,
			},
		}
		pendingCreate[d.TargetKey] = true
		return []StateDelta{create, d}, true, nil
	}

	if res.Key == "" || (!m.ContainsKey(res.Key) && !pendingCreate[res.Key]) {
		return nil, false, &RegenerationError{
			Reasons: []string{fmt.Sprintf("resolver returned unusable key %q for %q", res.Key, d.TargetKey)},
		}
	}

	p.logger.Debug("Rewrote unknown target via clarification", "from", d.TargetKey, "to", res.Key)
	d.TargetKey = res.Key
	return []StateDelta{d}, true, nil
}

// reorderCreatesFirst moves each CREATE ahead of any other op on the
// same target, preserving relative order otherwise.
func reorderCreatesFirst(deltas []StateDelta) []StateDelta {
	out := make([]StateDelta, 0, len(deltas))
	placed := make(map[int]bool)

	for i, d := range deltas {
		if placed[i] {
			continue
		}
		if d.Type != DeltaCreateEntity {
			// Pull forward a later CREATE for this target, if any.
			for j := i + 1; j < len(deltas); j++ {
				if !placed[j] && deltas[j].Type == DeltaCreateEntity && deltas[j].TargetKey == d.TargetKey {
					out = append(out, deltas[j])
					placed[j] = true
					break
				}
			}
		}
		out = append(out, d)
		placed[i] = true
	}
	return out
}

// normalizeValues fixes invalid enum values and clamps numeric ranges
// in place.
func normalizeValues(deltas []StateDelta) {
	for i := range deltas {
		switch c := deltas[i].Changes.(type) {
		case *CreateEntity:
			if !ValidEntityTypes[c.EntityType] {
				c.EntityType = inferEntityType(deltas[i].TargetKey)
			}
		case *RecordFact:
			if !ValidFactCategories[c.Category] {
				c.Category = DefaultFactCategory
			}
		case *UpdateNeed:
			c.Value = clamp(c.Value, 0, 100)
		case *UpdateRelationship:
			c.Value = clamp(c.Value, 0, 100)
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// entityTypeHints maps key fragments to entity types for synthetic
// creates.
var entityTypeHints = map[string]string{
	"chest":    "container",
	"crate":    "container",
	"barrel":   "container",
	"box":      "container",
	"sack":     "container",
	"guard":    "npc",
	"merchant": "npc",
	"keeper":   "npc",
	"wolf":     "creature",
	"rat":      "creature",
	"spider":   "creature",
}

// inferEntityType guesses an entity type from keyword hints in the key,
// defaulting to a generic item.
func inferEntityType(key string) string {
	lower := strings.ToLower(key)
	for hint, entityType := range entityTypeHints {
		if strings.Contains(lower, hint) {
			return entityType
		}
	}
	return DefaultEntityType
}

// displayNameFromKey turns snake_case keys into display text.
func displayNameFromKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
