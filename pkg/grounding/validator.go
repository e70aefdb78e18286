package grounding

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// refPattern matches inline entity references: [key:display text] or the
// degenerate [key] form missing its display text.
var refPattern = regexp.MustCompile(`\[([a-z0-9_]+)(?::([^\[\]]*))?\]`)

// IssueType classifies a grounding violation.
type IssueType string

const (
	IssueInvalidKey     IssueType = "invalid_key"
	IssueUnkeyedMention IssueType = "unkeyed_mention"
)

// Issue is one grounding violation found in generated narrative.
type Issue struct {
	Type       IssueType `json:"type"`
	Key        string    `json:"key,omitempty"`
	Text       string    `json:"text,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// Result is the outcome of validating one narrative against a manifest.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// Validator is a deterministic scanner for grounding violations. It
// makes no generation calls.
type Validator struct{}

// NewValidator creates a grounding validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks narrative text against the manifest. Bracket
// references with keys absent from the manifest are invalid key
// references. Manifest entity names mentioned as plain prose outside
// the bracket format are unkeyed mentions, except inventory and
// equipped items, which are conventionally mentioned naturally.
func (v *Validator) Validate(narrative string, m *Manifest) Result {
	result := Result{Valid: true}

	referenced := make(map[string]bool)
	for _, match := range refPattern.FindAllStringSubmatch(narrative, -1) {
		key := match[1]
		referenced[key] = true
		if !m.ContainsKey(key) {
			result.Valid = false
			result.Issues = append(result.Issues, Issue{
				Type:       IssueInvalidKey,
				Key:        key,
				Text:       match[0],
				Suggestion: v.SuggestKey(key, m),
			})
		}
	}

	// Strip bracket references so their display text does not count
	// as a plain-prose mention of the same entity.
	prose := strings.ToLower(refPattern.ReplaceAllString(narrative, ""))

	for _, key := range m.AllKeys() {
		if referenced[key] || m.naturalMention(key) {
			continue
		}
		e, _ := m.Entity(key)
		if frag := proseMention(prose, e.DisplayName); frag != "" {
			result.Valid = false
			result.Issues = append(result.Issues, Issue{
				Type: IssueUnkeyedMention,
				Key:  key,
				Text: frag,
			})
		}
	}

	return result
}

// proseMention returns the matched fragment if the display name, or a
// significant fragment of it, appears as a whole word in the prose.
func proseMention(prose, displayName string) string {
	name := strings.ToLower(strings.TrimSpace(displayName))
	if name == "" {
		return ""
	}
	if wordMatch(prose, name) {
		return name
	}
	for _, frag := range strings.Fields(name) {
		// Short fragments ("of", "the") are too noisy to flag.
		if len(frag) < 4 {
			continue
		}
		if wordMatch(prose, frag) {
			return frag
		}
	}
	return ""
}

func wordMatch(prose, word string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(prose)
}

// SuggestKey returns the closest valid key for an unknown key, or an
// empty string when nothing ranks above the suggestion floor.
func (v *Validator) SuggestKey(key string, m *Manifest) string {
	const floor = 0.5

	best := ""
	bestScore := 0.0
	for _, candidate := range m.AllKeys() {
		score := Similarity(key, candidate)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	if bestScore < floor {
		return ""
	}
	return best
}

// titleCaser capitalizes sentence-leading display text.
var titleCaser = cases.Title(language.English)

// CleanNarrative converts bracket-referenced narrative to player-facing
// text. References missing display text are first repaired from the
// manifest, then every reference is reduced to its display text.
func CleanNarrative(narrative string, m *Manifest) string {
	return refPattern.ReplaceAllStringFunc(narrative, func(ref string) string {
		match := refPattern.FindStringSubmatch(ref)
		key, display := match[1], match[2]
		if display == "" {
			if e, ok := lookupEntity(m, key); ok {
				display = e.DisplayName
			} else {
				display = titleCaser.String(strings.ReplaceAll(key, "_", " "))
			}
		}
		return display
	})
}

func lookupEntity(m *Manifest, key string) (Entity, bool) {
	if m == nil {
		return Entity{}, false
	}
	return m.Entity(key)
}

// Similarity returns a [0,1] similarity between two strings, the max of
// a longest-common-subsequence ratio and a word-overlap ratio.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	seq := float64(2*lcsLength(a, b)) / float64(len(a)+len(b))

	wordsA := strings.FieldsFunc(a, func(r rune) bool { return r == ' ' || r == '_' })
	wordsB := strings.FieldsFunc(b, func(r rune) bool { return r == ' ' || r == '_' })
	common := 0
	seen := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		seen[w] = true
	}
	for _, w := range wordsB {
		if seen[w] {
			common++
			delete(seen, w)
		}
	}
	overlap := 0.0
	if n := max(len(wordsA), len(wordsB)); n > 0 {
		overlap = float64(common) / float64(n)
	}

	return max(seq, overlap)
}

// lcsLength computes the longest common subsequence length.
func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// RankKeys returns up to n manifest keys ranked by similarity to key.
func RankKeys(key string, m *Manifest, n int) []string {
	type scored struct {
		key   string
		score float64
	}
	all := m.AllKeys()
	ranked := make([]scored, 0, len(all))
	for _, candidate := range all {
		ranked = append(ranked, scored{candidate, Similarity(key, candidate)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]string, 0, n)
	for _, s := range ranked {
		if len(out) == n {
			break
		}
		out = append(out, s.key)
	}
	return out
}
