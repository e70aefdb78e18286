package prediction

// ActionType classifies a predicted player action.
type ActionType string

const (
	ActionInteractNPC    ActionType = "interact_npc"
	ActionManipulateItem ActionType = "manipulate_item"
	ActionMove           ActionType = "move"
	ActionObserve        ActionType = "observe"
	ActionDialogue       ActionType = "dialogue"
	ActionSkillUse       ActionType = "skill_use"
	ActionCombat         ActionType = "combat"
	ActionWait           ActionType = "wait"
	ActionCustom         ActionType = "custom"
)

// ActionPrediction is one candidate next action for the current turn.
// Predictions are immutable once produced for a turn.
type ActionPrediction struct {
	ActionType  ActionType `json:"action_type"`
	TargetKey   string     `json:"target_key,omitempty"`
	Patterns    []string   `json:"patterns,omitempty"` // regex input-matching patterns
	Probability float64    `json:"probability"`
	Reason      string     `json:"reason,omitempty"` // provenance of the prediction
	Context     string     `json:"context,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
}

// TargetOrNone returns the target key, or "none" for targetless actions.
// Branch keys use this form.
func (p ActionPrediction) TargetOrNone() string {
	if p.TargetKey == "" {
		return "none"
	}
	return p.TargetKey
}

// RecentContext is the rolling window of recent turns the predictor
// consults: raw player inputs and the entity keys each turn mentioned.
type RecentContext struct {
	Inputs        []string        `json:"inputs,omitempty"`
	MentionedKeys map[string]bool `json:"mentioned_keys,omitempty"`
	QuestKeys     map[string]bool `json:"quest_keys,omitempty"` // entities relevant to active quests
}

// Mentioned reports whether key appeared in the recent-turn window.
func (rc RecentContext) Mentioned(key string) bool {
	return rc.MentionedKeys[key]
}

// QuestRelevant reports whether key is tied to an active quest.
func (rc RecentContext) QuestRelevant(key string) bool {
	return rc.QuestKeys[key]
}
