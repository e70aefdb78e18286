package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwebster45206/quantum-engine/pkg/branch"
	"github.com/jwebster45206/quantum-engine/pkg/engine"
)

// generatedVariants is the wire shape the generation model is asked to
// return.
type generatedVariants struct {
	Variants []branch.OutcomeVariant `json:"variants"`
}

// parseVariantsResponse decodes a model response into the variant map.
// The model sometimes wraps JSON in prose or code fences; the first
// top-level JSON object is extracted before decoding.
func parseVariantsResponse(content string) (map[branch.VariantType]*branch.OutcomeVariant, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in generation response")
	}

	var decoded generatedVariants
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %w", err)
	}
	if len(decoded.Variants) == 0 {
		return nil, fmt.Errorf("generation response contains no variants")
	}

	out := make(map[branch.VariantType]*branch.OutcomeVariant, len(decoded.Variants))
	for i := range decoded.Variants {
		v := decoded.Variants[i]
		if v.VariantType == "" {
			continue
		}
		out[v.VariantType] = &v
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("generation response contains no typed variants")
	}
	return out, nil
}

// extractJSON returns the first balanced top-level JSON object in the
// text.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// buildGenerationPrompt renders the system prompt for one branch
// generation: the action, the twist directive, and the grounding
// manifest.
func buildGenerationPrompt(req engine.GenerationRequest) string {
	var sb strings.Builder

	sb.WriteString("You are the narrator of a turn-based adventure. ")
	sb.WriteString("Precompute every plausible outcome of the player's next action.\n\n")

	sb.WriteString("ACTION: ")
	sb.WriteString(string(req.Prediction.ActionType))
	if req.Prediction.TargetKey != "" {
		sb.WriteString(" targeting ")
		sb.WriteString(req.Prediction.TargetKey)
	}
	sb.WriteString("\n")

	if req.Decision.IsTwist() {
		sb.WriteString("TWIST: ")
		sb.WriteString(req.Decision.DecisionType)
		if req.Decision.Context != "" {
			sb.WriteString(": ")
			sb.WriteString(req.Decision.Context)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("TWIST: none. Resolve the action straightforwardly.\n")
	}

	sb.WriteString("\n")
	sb.WriteString(req.ManifestText)
	sb.WriteString("\n")
	sb.WriteString(`Reply with JSON only: {"variants":[{"variant_type":"success|failure|critical_success|critical_failure|partial_success","requires_dice":bool,"skill":"","difficulty_class":0,"narrative":"...","deltas":[],"time_passed_minutes":0}]}. `)
	sb.WriteString("Reference entities ONLY with [key:display text] using keys from the list above. ")
	sb.WriteString("Always include a success variant; include failure variants when the action can fail.")

	return sb.String()
}
