package catalog

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml.tmpl
var templateFS embed.FS

// Context carries the encounter-derived flags a catalog template can branch
// on. Rendering is deterministic for a fixed context.
type Context struct {
	HasGuidedInterview bool
	HasStabilityPlan   bool
	HasComfortSkills   bool
	HasSecuritySteps   bool
	HomeSetupConsented bool
}

// Renderer resolves an embedded catalog template against a context and parses
// the result into an ordered question sequence.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.yaml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse catalog templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render produces the question sequence for one module catalog. The template
// is selected by module type and version ("guided_interview" + "v1" ->
// guided_interview_v1.yaml.tmpl).
func (r *Renderer) Render(moduleType, version string, ctx Context) ([]Question, error) {
	name := fmt.Sprintf("%s_%s.yaml.tmpl", moduleType, version)

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, ctx); err != nil {
		return nil, fmt.Errorf("render catalog %s: %w", name, err)
	}

	var doc struct {
		Sections []Question `yaml:"sections"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", name, err)
	}

	questions := doc.Sections
	if !ctx.HomeSetupConsented {
		questions = stripHomeOnly(questions)
	}

	for _, q := range questions {
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", name, err)
		}
	}
	return questions, nil
}

// stripHomeOnly removes actions restricted to home-consented encounters, and
// drops sections left without actions.
func stripHomeOnly(questions []Question) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		kept := make([]Action, 0, len(q.Actions))
		for _, a := range q.Actions {
			if a.Type.HomeOnly() {
				continue
			}
			kept = append(kept, a)
		}
		if len(q.Actions) > 0 && len(kept) == 0 {
			continue
		}
		q.Actions = kept
		out = append(out, q)
	}
	return out
}
