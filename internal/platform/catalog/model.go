package catalog

import "fmt"

// Question is one section of a rendered catalog: an opaque section identifier
// and the ordered actions shown there. Questions are value objects produced on
// demand; they are never persisted.
type Question struct {
	UID     string   `yaml:"uid" json:"uid"`
	Title   string   `yaml:"title,omitempty" json:"title,omitempty"`
	Actions []Action `yaml:"actions" json:"actions"`
}

// Action is a single control within a question. AnswerKey may be a compound
// pipe-delimited key; list-style actions carry groups with their own keys.
type Action struct {
	Type      ActionType `yaml:"type" json:"type"`
	AnswerKey string     `yaml:"answer_key,omitempty" json:"answer_key,omitempty"`
	Section   string     `yaml:"section,omitempty" json:"section,omitempty"`
	Label     string     `yaml:"label,omitempty" json:"label,omitempty"`
	MaxValue  int        `yaml:"max_value,omitempty" json:"max_value,omitempty"`
	Groups    []Group    `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// Group is a sub-control of a list action with its own answer key.
type Group struct {
	AnswerKey string `yaml:"answer_key" json:"answer_key"`
	Label     string `yaml:"label,omitempty" json:"label,omitempty"`
}

type ActionType string

const (
	ActionVideo         ActionType = "video"
	ActionButtons       ActionType = "buttons"
	ActionScale         ActionType = "scale"
	ActionSlider        ActionType = "slider"
	ActionText          ActionType = "text"
	ActionList          ActionType = "list"
	ActionRank          ActionType = "rank"
	ActionSectionChange ActionType = "section-change"
	ActionHomeSetup     ActionType = "home-setup"
)

// actionRule describes what an action type requires of its catalog entry.
type actionRule struct {
	RequiresAnswerKey bool // must carry an answer key or groups
	RequiresSection   bool // only valid inside a section with a uid
	HomeOnly          bool // only rendered for encounters with home-setup consent
}

// actionRules is built once at init from the action-type enum and consulted
// during catalog validation.
var actionRules = buildActionRules()

func buildActionRules() map[ActionType]actionRule {
	return map[ActionType]actionRule{
		ActionVideo:         {},
		ActionButtons:       {RequiresAnswerKey: true},
		ActionScale:         {RequiresAnswerKey: true},
		ActionSlider:        {RequiresAnswerKey: true},
		ActionText:          {RequiresAnswerKey: true},
		ActionList:          {RequiresAnswerKey: true},
		ActionRank:          {RequiresAnswerKey: true},
		ActionSectionChange: {RequiresSection: true},
		ActionHomeSetup:     {RequiresAnswerKey: true, HomeOnly: true},
	}
}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	_, ok := actionRules[t]
	return ok
}

// HomeOnly reports whether t is restricted to home-consented encounters.
func (t ActionType) HomeOnly() bool {
	return actionRules[t].HomeOnly
}

// validateQuestion checks every action of a parsed question against the
// action-type rules.
func validateQuestion(q Question) error {
	if q.UID == "" {
		return fmt.Errorf("question without uid")
	}
	for _, a := range q.Actions {
		rule, ok := actionRules[a.Type]
		if !ok {
			return fmt.Errorf("section %s: unknown action type %q", q.UID, a.Type)
		}
		if rule.RequiresAnswerKey && a.AnswerKey == "" && len(a.Groups) == 0 {
			return fmt.Errorf("section %s: action type %q requires an answer key", q.UID, a.Type)
		}
		if rule.RequiresSection && a.Section == "" {
			return fmt.Errorf("section %s: action type %q requires a target section", q.UID, a.Type)
		}
		for _, g := range a.Groups {
			if g.AnswerKey == "" {
				return fmt.Errorf("section %s: group without answer key", q.UID)
			}
		}
	}
	return nil
}
