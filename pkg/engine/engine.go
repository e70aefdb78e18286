package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/jwebster45206/quantum-engine/pkg/branch"
	"github.com/jwebster45206/quantum-engine/pkg/delta"
	"github.com/jwebster45206/quantum-engine/pkg/gm"
	"github.com/jwebster45206/quantum-engine/pkg/grounding"
	"github.com/jwebster45206/quantum-engine/pkg/prediction"
	"github.com/jwebster45206/quantum-engine/pkg/state"
)

// recentTurnWindow is how many turns of input and mentions the
// predictor sees.
const recentTurnWindow = 5

// TurnResult is the committed outcome of one player turn.
type TurnResult struct {
	Input     string                       `json:"input"`
	Matched   *prediction.ActionPrediction `json:"matched,omitempty"`
	CacheHit  bool                         `json:"cache_hit"`
	Collapse  *branch.CollapseResult       `json:"collapse"`
	Narrative string                       `json:"narrative"`
}

// Engine resolves player turns against the speculative branch cache,
// falling back to synchronous generation on a miss. It is also the
// branch factory the anticipation worker uses to pre-fill the cache.
type Engine struct {
	gs        *state.GameState
	predictor *prediction.Predictor
	matcher   *prediction.Matcher
	oracle    *gm.Oracle
	cache     *branch.Cache
	collapser *branch.Manager
	post      *delta.PostProcessor
	validator *grounding.Validator
	gen       GenerationService
	logger    *slog.Logger

	// decisionRoll picks the GM decision; injectable for tests.
	decisionRoll func() float64

	mu       sync.Mutex
	recent   prediction.RecentContext
	inputs   []string
	mentions [][]string // per-turn mentioned keys, trimmed to the window
}

// New wires a turn engine.
func New(gs *state.GameState, oracle *gm.Oracle, cache *branch.Cache, collapser *branch.Manager, post *delta.PostProcessor, gen GenerationService, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		gs:           gs,
		predictor:    prediction.NewPredictor(),
		matcher:      prediction.NewMatcher(),
		oracle:       oracle,
		cache:        cache,
		collapser:    collapser,
		post:         post,
		validator:    grounding.NewValidator(),
		gen:          gen,
		logger:       logger,
		decisionRoll: rand.Float64,
		recent: prediction.RecentContext{
			MentionedKeys: make(map[string]bool),
			QuestKeys:     gs.QuestKeys,
		},
	}
}

// WithDecisionRoll overrides the GM-decision selection roll. Test hook;
// returns the engine for chaining.
func (e *Engine) WithDecisionRoll(roll func() float64) *Engine {
	e.decisionRoll = roll
	return e
}

// ResolveTurn resolves free-text player input: match to a predicted
// action, look up the precomputed branch, and collapse it. A cache miss
// generates synchronously inline; the turn never waits on the
// anticipation loop.
func (e *Engine) ResolveTurn(ctx context.Context, input string, mods branch.ModifierSource, adv branch.Advantage) (*TurnResult, error) {
	location := e.gs.Location()
	manifest := e.gs.BuildManifest()

	pred := e.matchInput(input, manifest)

	decisions, err := e.oracle.Decide(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("failed to decide twists: %w", err)
	}
	decision := pickDecision(decisions, e.decisionRoll())

	key := branch.NewKey(location, pred.ActionType, pred.TargetKey, decision.DecisionType)
	b := e.cache.GetBranchByKey(key.String())
	cacheHit := b != nil

	if b == nil {
		b, err = e.GenerateBranch(ctx, location, pred, decision, manifest)
		if err != nil {
			return nil, err
		}
	}

	result, err := e.collapser.Collapse(ctx, b, branch.CollapseRequest{
		Manifest:  manifest,
		Modifiers: mods,
		Advantage: adv,
	})
	if errors.Is(err, branch.ErrStaleBranch) {
		// The cached branch assumed state that has since changed.
		// Regenerate synchronously and collapse the fresh branch.
		e.logger.Info("Stale branch, regenerating", "key", key.String())
		e.cache.InvalidateBranch(key.String())
		b, err = e.GenerateBranch(ctx, location, pred, decision, manifest)
		if err != nil {
			return nil, err
		}
		result, err = e.collapser.Collapse(ctx, b, branch.CollapseRequest{
			Manifest:  manifest,
			Modifiers: mods,
			Advantage: adv,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collapse branch: %w", err)
	}

	if err := e.oracle.RecordTwistUsage(ctx, decision.DecisionType); err != nil {
		e.logger.Warn("Failed to record twist usage", "error", err)
	}

	// Authoritative state changed; speculative branches for the
	// affected locations are no longer trustworthy.
	if result.DeltasApplied > 0 {
		e.cache.InvalidateLocation(location)
		if newLoc := e.gs.Location(); newLoc != location {
			e.cache.InvalidateLocation(newLoc)
		}
	}

	e.noteTurn(input, pred)

	return &TurnResult{
		Input:     input,
		Matched:   &pred,
		CacheHit:  cacheHit,
		Collapse:  result,
		Narrative: result.Narrative,
	}, nil
}

// matchInput resolves input to a prediction, degrading to a custom
// action when nothing clears the matcher threshold.
func (e *Engine) matchInput(input string, manifest *grounding.Manifest) prediction.ActionPrediction {
	e.mu.Lock()
	recent := e.recent
	e.mu.Unlock()

	candidates := e.predictor.Predict(manifest, recent)
	if m := e.matcher.Match(input, candidates); m != nil {
		e.logger.Debug("Matched input", "input", input, "prediction", m.Prediction.String(), "confidence", m.Confidence)
		return m.Prediction
	}

	e.logger.Debug("No prediction matched input", "input", input)
	return prediction.ActionPrediction{
		ActionType:  prediction.ActionCustom,
		Probability: 0,
		Reason:      "unmatched input",
		Context:     input,
	}
}

// GenerateBranch runs the synchronous generation pipeline for one
// (action, decision) pair: generate variants, validate grounding,
// post-process deltas, assemble the branch. Generation failures degrade
// to synthesized fallback variants; they never surface to the player.
func (e *Engine) GenerateBranch(ctx context.Context, location string, pred prediction.ActionPrediction, decision gm.GMDecision, manifest *grounding.Manifest) (*branch.QuantumBranch, error) {
	variants := e.generateWithRetry(ctx, location, pred, decision, manifest)
	return branch.NewQuantumBranch(location, pred, decision, variants), nil
}

// generateWithRetry calls the generation service, repairing or
// regenerating once on delta conflicts before falling back.
func (e *Engine) generateWithRetry(ctx context.Context, location string, pred prediction.ActionPrediction, decision gm.GMDecision, manifest *grounding.Manifest) map[branch.VariantType]*branch.OutcomeVariant {
	req := GenerationRequest{
		Location:     location,
		Prediction:   pred,
		Decision:     decision,
		ManifestText: manifest.RenderText(),
	}

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := e.gen.GenerateVariants(ctx, req)
		if err != nil || len(raw) == 0 {
			e.logger.Warn("Generation failed, using fallback variants",
				"action", pred.String(), "decision", decision.DecisionType, "error", err)
			return fallbackVariants(pred)
		}

		variants, err := e.sanitizeVariants(ctx, raw, pred, manifest)
		if err == nil {
			return variants
		}
		if errors.Is(err, delta.ErrRegenerationNeeded) && attempt == 0 {
			e.logger.Info("Delta conflict, regenerating", "action", pred.String(), "error", err)
			continue
		}
		e.logger.Warn("Generation unusable, using fallback variants", "action", pred.String(), "error", err)
		break
	}
	return fallbackVariants(pred)
}

// sanitizeVariants runs grounding validation and delta post-processing
// over each generated variant.
func (e *Engine) sanitizeVariants(ctx context.Context, raw map[branch.VariantType]*branch.OutcomeVariant, pred prediction.ActionPrediction, manifest *grounding.Manifest) (map[branch.VariantType]*branch.OutcomeVariant, error) {
	if _, ok := raw[branch.VariantSuccess]; !ok {
		return nil, fmt.Errorf("generation returned no success variant")
	}

	out := make(map[branch.VariantType]*branch.OutcomeVariant, len(raw))
	for vt, variant := range raw {
		if variant == nil {
			continue
		}
		v := *variant
		v.VariantType = vt

		if res := e.validator.Validate(v.Narrative, manifest); !res.Valid {
			if hasInvalidKey(res) {
				// Hallucinated entity: block the generated narrative
				// and substitute a neutral fallback.
				e.logger.Warn("Grounding violation, neutral narrative substituted",
					"variant", vt, "issues", len(res.Issues))
				v.Narrative = fmt.Sprintf("You %s.", actionPhrase(pred))
			} else {
				e.logger.Warn("Unkeyed entity mentions in narrative", "variant", vt, "issues", len(res.Issues))
			}
		}

		processed, err := e.post.Process(ctx, v.Deltas, manifest)
		if err != nil {
			return nil, err
		}
		v.Deltas = processed
		out[vt] = &v
	}
	return out, nil
}

func hasInvalidKey(res grounding.Result) bool {
	for _, issue := range res.Issues {
		if issue.Type == grounding.IssueInvalidKey {
			return true
		}
	}
	return false
}

// PrefillLocation pre-generates branches for the most likely actions at
// the player's current location. The anticipation worker calls this off
// the turn path; generation happens outside any cache lock.
func (e *Engine) PrefillLocation(ctx context.Context, maxActions int) (int, error) {
	location := e.gs.Location()
	manifest := e.gs.BuildManifest()

	e.mu.Lock()
	recent := e.recent
	e.mu.Unlock()

	candidates := e.predictor.Predict(manifest, recent)
	if maxActions > 0 && len(candidates) > maxActions {
		candidates = candidates[:maxActions]
	}

	filled := 0
	for _, pred := range candidates {
		if ctx.Err() != nil {
			return filled, ctx.Err()
		}

		decisions, err := e.oracle.Decide(ctx, pred)
		if err != nil {
			return filled, fmt.Errorf("failed to decide twists: %w", err)
		}

		for _, decision := range decisions {
			key := branch.NewKey(location, pred.ActionType, pred.TargetKey, decision.DecisionType)
			if e.cache.GetBranchByKey(key.String()) != nil {
				continue
			}
			b, err := e.GenerateBranch(ctx, location, pred, decision, manifest)
			if err != nil {
				return filled, err
			}
			e.cache.PutBranch(b)
			filled++
		}
	}
	return filled, nil
}

// noteTurn records the turn's input and mentioned entity for the
// predictor's recent-context window.
func (e *Engine) noteTurn(input string, pred prediction.ActionPrediction) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.inputs = append(e.inputs, input)
	if len(e.inputs) > recentTurnWindow {
		e.inputs = e.inputs[len(e.inputs)-recentTurnWindow:]
	}

	var turnKeys []string
	if pred.TargetKey != "" {
		turnKeys = append(turnKeys, pred.TargetKey)
	}
	e.mentions = append(e.mentions, turnKeys)
	if len(e.mentions) > recentTurnWindow {
		e.mentions = e.mentions[len(e.mentions)-recentTurnWindow:]
	}

	mentioned := make(map[string]bool)
	for _, keys := range e.mentions {
		for _, k := range keys {
			mentioned[k] = true
		}
	}
	e.recent = prediction.RecentContext{
		Inputs:        e.inputs,
		MentionedKeys: mentioned,
		QuestKeys:     e.gs.QuestKeys,
	}
}

// pickDecision selects one decision from a normalized set using a
// [0,1) roll over the cumulative distribution.
func pickDecision(decisions []gm.GMDecision, roll float64) gm.GMDecision {
	if len(decisions) == 0 {
		return gm.GMDecision{DecisionType: gm.NoTwist, Probability: 1}
	}
	cum := 0.0
	for _, d := range decisions {
		cum += d.Probability
		if roll < cum {
			return d
		}
	}
	return decisions[len(decisions)-1]
}

// CacheMetrics exposes the cache metrics snapshot.
func (e *Engine) CacheMetrics() branch.CacheMetrics {
	return e.cache.Metrics()
}

// CollapseMetrics exposes the collapse metrics snapshot.
func (e *Engine) CollapseMetrics() branch.CollapseMetrics {
	return e.collapser.Metrics()
}
