package interview

import (
	"github.com/careflow/careflow/internal/platform/catalog"
)

// catalogVersion pins the catalog revision rendered for every module. Bump
// together with the templates.
const catalogVersion = "v1"

// Module is the contract every interview variant implements. Question
// sequences are finite and deterministic for a fixed render context; answer
// keys are derived from the rendered catalog. Only the guided interview
// computes scores.
type Module interface {
	Type() ModuleType
	Questions(ctx catalog.Context) ([]catalog.Question, error)
	AnswerKeys(ctx catalog.Context) (map[string]bool, error)
	ProgressBarLabel() string
	UpdateScores(a *Assignment)
}

type baseModule struct {
	typ      ModuleType
	label    string
	renderer *catalog.Renderer
}

func (m *baseModule) Type() ModuleType         { return m.typ }
func (m *baseModule) ProgressBarLabel() string { return m.label }

func (m *baseModule) Questions(ctx catalog.Context) ([]catalog.Question, error) {
	return m.renderer.Render(string(m.typ), catalogVersion, ctx)
}

func (m *baseModule) AnswerKeys(ctx catalog.Context) (map[string]bool, error) {
	questions, err := m.Questions(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool)
	for _, k := range catalog.AnswerKeys(questions) {
		keys[k] = true
	}
	return keys, nil
}

func (m *baseModule) UpdateScores(_ *Assignment) {}

// guidedInterviewModule layers risk scoring on top of the base contract.
type guidedInterviewModule struct {
	baseModule
}

func (m *guidedInterviewModule) UpdateScores(a *Assignment) {
	updateGuidedScores(a)
}

// newModule is the variant factory. The assignment manager never constructs
// variants directly.
func newModule(t ModuleType, renderer *catalog.Renderer) Module {
	switch t {
	case ModuleGuidedInterview:
		return &guidedInterviewModule{baseModule{typ: t, label: "Guided Interview", renderer: renderer}}
	case ModuleStabilityPlan:
		return &baseModule{typ: t, label: "Stability Plan", renderer: renderer}
	case ModuleComfortSkills:
		return &baseModule{typ: t, label: "Comfort & Skills", renderer: renderer}
	case ModuleLethalMeans:
		return &baseModule{typ: t, label: "Lethal Means", renderer: renderer}
	case ModuleOutro:
		return &baseModule{typ: ModuleOutro, renderer: renderer}
	default:
		return &baseModule{typ: ModuleIntro, renderer: renderer}
	}
}
