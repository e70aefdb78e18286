package branch

import (
	"math/rand/v2"
)

// Advantage is the advantage state of a skill check.
type Advantage int

const (
	RollNormal Advantage = iota
	RollAdvantage
	RollDisadvantage
)

// RollResult is the outcome of one skill check.
type RollResult struct {
	Die      int  `json:"die"` // natural d20 result after advantage selection
	Total    int  `json:"total"`
	Pass     bool `json:"pass"`
	Critical bool `json:"critical"` // natural 20
	Fumble   bool `json:"fumble"`   // natural 1
}

// Roller is the dice collaborator: given a difficulty class, a
// modifier, and an advantage state, it produces the check result.
type Roller interface {
	Roll(dc, modifier int, adv Advantage) RollResult
}

// RandRoller rolls a d20 with advantage handling. Zero value uses the
// shared global source; use NewSeededRoller for reproducible rolls.
type RandRoller struct {
	rng *rand.Rand
}

// NewSeededRoller creates a roller with a deterministic source.
func NewSeededRoller(seed uint64) *RandRoller {
	return &RandRoller{rng: rand.New(rand.NewPCG(seed, seed))}
}

func (r *RandRoller) d20() int {
	if r.rng != nil {
		return r.rng.IntN(20) + 1
	}
	return rand.IntN(20) + 1
}

// Roll performs the skill check. Natural 20 always passes, natural 1
// always fails.
func (r *RandRoller) Roll(dc, modifier int, adv Advantage) RollResult {
	die := r.d20()
	switch adv {
	case RollAdvantage:
		die = max(die, r.d20())
	case RollDisadvantage:
		die = min(die, r.d20())
	}

	result := RollResult{
		Die:      die,
		Total:    die + modifier,
		Critical: die == 20,
		Fumble:   die == 1,
	}
	switch {
	case result.Critical:
		result.Pass = true
	case result.Fumble:
		result.Pass = false
	default:
		result.Pass = result.Total >= dc
	}
	return result
}

// FixedRoller always returns the same result. Test double.
type FixedRoller struct {
	Result RollResult
}

func (f FixedRoller) Roll(dc, modifier int, adv Advantage) RollResult {
	return f.Result
}

// ModifierSource supplies the attribute/skill modifier for a check.
// d20 actors adapt to this through actor.SkillSource.
type ModifierSource interface {
	Modifier(skill string) int
}

// NoModifiers is a ModifierSource with no bonuses.
type NoModifiers struct{}

func (NoModifiers) Modifier(string) int { return 0 }
