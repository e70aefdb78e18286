package prediction

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jwebster45206/quantum-engine/pkg/grounding"
)

const (
	// DefaultMatchThreshold is the minimum confidence for a single match.
	DefaultMatchThreshold = 0.5
	// DefaultBatchThreshold is the lower bound for top-K candidates used
	// in ambiguous-input handling.
	DefaultBatchThreshold = 0.3

	partialPatternCap = 0.7

	patternWeight = 0.4
	targetWeight  = 0.4
	verbWeight    = 0.2
)

// verbTable maps leading action verbs to action types.
var verbTable = map[string]ActionType{
	"talk":    ActionInteractNPC,
	"speak":   ActionInteractNPC,
	"ask":     ActionInteractNPC,
	"greet":   ActionInteractNPC,
	"tell":    ActionDialogue,
	"say":     ActionDialogue,
	"take":    ActionManipulateItem,
	"grab":    ActionManipulateItem,
	"pick":    ActionManipulateItem,
	"use":     ActionManipulateItem,
	"open":    ActionManipulateItem,
	"drop":    ActionManipulateItem,
	"give":    ActionManipulateItem,
	"go":      ActionMove,
	"walk":    ActionMove,
	"head":    ActionMove,
	"enter":   ActionMove,
	"leave":   ActionMove,
	"travel":  ActionMove,
	"look":    ActionObserve,
	"examine": ActionObserve,
	"inspect": ActionObserve,
	"search":  ActionObserve,
	"climb":   ActionSkillUse,
	"sneak":   ActionSkillUse,
	"attack":  ActionCombat,
	"fight":   ActionCombat,
	"strike":  ActionCombat,
	"wait":    ActionWait,
	"rest":    ActionWait,
}

// matchStopwords are stripped from the target phrase after the verb.
var matchStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "at": true,
	"with": true, "on": true, "in": true, "up": true, "my": true,
	"some": true, "that": true, "this": true, "for": true, "of": true,
}

// Match is one scored resolution of player input to a prediction.
type Match struct {
	Prediction ActionPrediction
	Confidence float64
}

// Matcher resolves free-text player input to the best candidate
// ActionPrediction.
type Matcher struct {
	Threshold      float64
	BatchThreshold float64
}

// NewMatcher creates a matcher with default thresholds.
func NewMatcher() *Matcher {
	return &Matcher{
		Threshold:      DefaultMatchThreshold,
		BatchThreshold: DefaultBatchThreshold,
	}
}

// Match returns the single best prediction for the input, or nil when
// no candidate clears the confidence threshold.
func (m *Matcher) Match(input string, candidates []ActionPrediction) *Match {
	matches := m.score(input, candidates)
	if len(matches) == 0 || matches[0].Confidence < m.Threshold {
		return nil
	}
	best := matches[0]
	return &best
}

// MatchTopK returns up to k candidates above the batch threshold,
// ranked by confidence, for ambiguous-input handling.
func (m *Matcher) MatchTopK(input string, candidates []ActionPrediction, k int) []Match {
	matches := m.score(input, candidates)
	out := make([]Match, 0, k)
	for _, match := range matches {
		if match.Confidence < m.BatchThreshold {
			break
		}
		out = append(out, match)
		if len(out) == k {
			break
		}
	}
	return out
}

func (m *Matcher) score(input string, candidates []ActionPrediction) []Match {
	normalized := NormalizeInput(input)
	if normalized == "" {
		return nil
	}
	verb, verbType := extractVerb(normalized)
	target := targetPhrase(normalized, verb)

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		score := patternWeight*patternScore(normalized, c) +
			targetWeight*targetScore(target, c) +
			verbWeight*verbScore(verbType, c)
		matches = append(matches, Match{Prediction: c, Confidence: score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	return matches
}

var (
	punctPattern = regexp.MustCompile(`[^\w\s']`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeInput lowercases, strips punctuation except apostrophes, and
// collapses whitespace.
func NormalizeInput(input string) string {
	s := strings.ToLower(input)
	s = punctPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// extractVerb returns the leading verb and its mapped action type.
// "pick up" and "pick lock" style two-word verbs resolve through the
// first word.
func extractVerb(normalized string) (string, ActionType) {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return "", ""
	}
	verb := fields[0]
	if at, ok := verbTable[verb]; ok {
		return verb, at
	}
	return verb, ""
}

// targetPhrase strips the verb and stopwords, leaving the target.
func targetPhrase(normalized, verb string) string {
	fields := strings.Fields(normalized)
	var kept []string
	for i, f := range fields {
		if i == 0 && f == verb {
			continue
		}
		if matchStopwords[f] {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// patternScore checks the candidate's synthesized patterns against the
// full normalized input. A full match scores 1.0; a partial overlap
// (pattern word prefix match) is capped at 0.7.
func patternScore(normalized string, c ActionPrediction) float64 {
	best := 0.0
	for _, pattern := range c.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(normalized) {
			return 1.0
		}
		// Partial: any input word shares a 3+ char prefix with the
		// pattern's literal core.
		core := literalCore(pattern)
		if core == "" {
			continue
		}
		for _, word := range strings.Fields(normalized) {
			if n := commonPrefix(word, core); n >= 3 {
				partial := partialPatternCap * float64(n) / float64(max(len(word), len(core)))
				if partial > best {
					best = partial
				}
			}
		}
	}
	return best
}

// literalCore strips the \b anchors a synthesized pattern carries,
// returning its literal phrase.
func literalCore(pattern string) string {
	s := strings.TrimPrefix(pattern, `\b`)
	s = strings.TrimSuffix(s, `\b`)
	if strings.ContainsAny(s, `\[](){}|*+?^$`) {
		return ""
	}
	return s
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

// targetScore compares the extracted target phrase to the candidate's
// target name: exact, substring, sequence similarity, and word overlap,
// taking the max.
func targetScore(target string, c ActionPrediction) float64 {
	if target == "" || c.TargetKey == "" {
		return 0
	}
	name := strings.ToLower(c.DisplayName)
	key := strings.ReplaceAll(c.TargetKey, "_", " ")

	best := 0.0
	for _, candidate := range []string{name, key} {
		if candidate == "" {
			continue
		}
		switch {
		case target == candidate:
			return 1.0
		case strings.Contains(candidate, target) || strings.Contains(target, candidate):
			best = max(best, 0.85)
		default:
			best = max(best, grounding.Similarity(target, candidate))
		}
	}
	return best
}

// verbScore rewards agreement between the extracted verb's action type
// and the candidate's.
func verbScore(verbType ActionType, c ActionPrediction) float64 {
	if verbType == "" {
		return 0.3 // no signal either way
	}
	if verbType == c.ActionType {
		return 1.0
	}
	// Observation verbs loosely apply to any target.
	if verbType == ActionObserve && c.ActionType == ActionManipulateItem {
		return 0.4
	}
	return 0
}
