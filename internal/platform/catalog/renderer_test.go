package catalog

import (
	"reflect"
	"testing"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

func TestRender_AllModuleCatalogs(t *testing.T) {
	r := newTestRenderer(t)
	for _, name := range []string{
		"intro", "guided_interview", "stability_plan",
		"comfort_and_skills", "lethal_means", "outro",
	} {
		questions, err := r.Render(name, "v1", Context{HasStabilityPlan: true, HasSecuritySteps: true, HomeSetupConsented: true})
		if err != nil {
			t.Fatalf("render %s: %v", name, err)
		}
		if len(questions) == 0 {
			t.Errorf("catalog %s rendered empty", name)
		}
	}
}

func TestRender_DeterministicForFixedContext(t *testing.T) {
	r := newTestRenderer(t)
	ctx := Context{HasStabilityPlan: true}

	first, err := r.Render("outro", "v1", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Render("outro", "v1", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical output for identical context")
	}
}

func TestRender_ContextFlagsChangeSections(t *testing.T) {
	r := newTestRenderer(t)

	with, err := r.Render("stability_plan", "v1", Context{HasSecuritySteps: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	without, err := r.Render("stability_plan", "v1", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(with) != len(without)+1 {
		t.Errorf("expected one extra section with security steps, got %d vs %d", len(with), len(without))
	}
	if !hasSection(with, "reviewSecuritySteps") {
		t.Error("expected reviewSecuritySteps section when flag set")
	}
	if hasSection(without, "reviewSecuritySteps") {
		t.Error("did not expect reviewSecuritySteps section without flag")
	}
}

func TestRender_HomeOnlyActionsStripped(t *testing.T) {
	r := newTestRenderer(t)

	consented, err := r.Render("lethal_means", "v1", Context{HomeSetupConsented: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasSection(consented, "homeSetup") {
		t.Error("expected homeSetup section with consent")
	}

	plain, err := r.Render("lethal_means", "v1", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasSection(plain, "homeSetup") {
		t.Error("expected homeSetup section to be stripped without consent")
	}
}

func TestRender_OutroPlanReviewRequiresStabilityPlan(t *testing.T) {
	r := newTestRenderer(t)

	with, err := r.Render("outro", "v1", Context{HasStabilityPlan: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasSection(with, "reviewPlan") {
		t.Error("expected reviewPlan section when stability plan assigned")
	}

	without, err := r.Render("outro", "v1", Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasSection(without, "reviewPlan") {
		t.Error("did not expect reviewPlan section without stability plan")
	}
}

func TestRender_UnknownCatalog(t *testing.T) {
	r := newTestRenderer(t)
	if _, err := r.Render("nonexistent", "v1", Context{}); err == nil {
		t.Error("expected error for unknown catalog")
	}
}

func TestValidateQuestion_Rules(t *testing.T) {
	ok := Question{UID: "s", Actions: []Action{{Type: ActionButtons, AnswerKey: "k"}}}
	if err := validateQuestion(ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	missingKey := Question{UID: "s", Actions: []Action{{Type: ActionButtons}}}
	if err := validateQuestion(missingKey); err == nil {
		t.Error("expected error for buttons without answer key")
	}

	missingSection := Question{UID: "s", Actions: []Action{{Type: ActionSectionChange}}}
	if err := validateQuestion(missingSection); err == nil {
		t.Error("expected error for section-change without target")
	}

	unknown := Question{UID: "s", Actions: []Action{{Type: "bogus"}}}
	if err := validateQuestion(unknown); err == nil {
		t.Error("expected error for unknown action type")
	}
}

func hasSection(questions []Question, uid string) bool {
	for _, q := range questions {
		if q.UID == uid {
			return true
		}
	}
	return false
}
