package actor

import (
	"fmt"
	"maps"

	"github.com/jwebster45206/d20"
)

// Stats are the six core ability scores.
type Stats struct {
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Constitution int `json:"constitution"`
	Intelligence int `json:"intelligence"`
	Wisdom       int `json:"wisdom"`
	Charisma     int `json:"charisma"`
}

// ToAttributes converts Stats to a map for d20.Actor compatibility.
func (s *Stats) ToAttributes() map[string]int {
	return map[string]int{
		"strength":     s.Strength,
		"dexterity":    s.Dexterity,
		"constitution": s.Constitution,
		"intelligence": s.Intelligence,
		"wisdom":       s.Wisdom,
		"charisma":     s.Charisma,
	}
}

// PCSpec is the serializable specification for a player character.
type PCSpec struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Pronouns    string         `json:"pronouns,omitempty"`
	Description string         `json:"description,omitempty"`
	Stats       Stats          `json:"stats,omitempty"`
	HP          int            `json:"hp,omitempty"`
	MaxHP       int            `json:"max_hp,omitempty"`
	AC          int            `json:"ac,omitempty"`
	Attributes  map[string]int `json:"attributes,omitempty"` // skills, proficiencies
}

// PC is the runtime representation of a player character.
type PC struct {
	Spec  *PCSpec
	Actor *d20.Actor // built at runtime from PCSpec
}

// NewPCFromSpec creates a PC from a PCSpec.
func NewPCFromSpec(spec *PCSpec) (*PC, error) {
	if spec == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}

	allAttrs := spec.Stats.ToAttributes()
	maps.Copy(allAttrs, spec.Attributes)

	actor, err := d20.NewActor(spec.ID).
		WithHP(spec.MaxHP).
		WithAC(spec.AC).
		WithAttributes(allAttrs).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}

	if spec.HP != spec.MaxHP && spec.HP > 0 {
		if err := actor.SetHP(spec.HP); err != nil {
			return nil, fmt.Errorf("failed to set HP: %w", err)
		}
	}

	return &PC{Spec: spec, Actor: actor}, nil
}

// SkillSource adapts a PC's d20 attributes to the collapse engine's
// modifier lookup. Unknown skills contribute no modifier.
type SkillSource struct {
	PC *PC
}

// Modifier returns the PC's modifier for a skill: the raw attribute for
// trained skills, otherwise the ability modifier derived from the named
// core stat ((score - 10) / 2).
func (s SkillSource) Modifier(skill string) int {
	if s.PC == nil || s.PC.Actor == nil || skill == "" {
		return 0
	}
	val, ok := s.PC.Actor.Attribute(skill)
	if !ok {
		return 0
	}
	if isCoreStat(skill) {
		return (val - 10) / 2
	}
	return val
}

func isCoreStat(skill string) bool {
	switch skill {
	case "strength", "dexterity", "constitution", "intelligence", "wisdom", "charisma":
		return true
	}
	return false
}
