package prompt

import (
	"strings"
	"testing"

	"github.com/vimarsh/guidance/internal/domain"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render(TypeGuidance, domain.DomainSpiritual, "", map[string]string{
		"personality_name": "Krishna",
		"domain":            "spiritual",
		"query":             "What is my duty?",
		"max_chars":         "500",
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "Krishna") {
		t.Errorf("rendered prompt missing substituted personality name: %q", out)
	}
	if !strings.Contains(out, "What is my duty?") {
		t.Errorf("rendered prompt missing substituted query: %q", out)
	}
}

func TestRenderFallsBackToTemplateDefaultThenEmpty(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render(TypeGuidance, domain.DomainSpiritual, "", map[string]string{
		"query": "test",
	})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(out, "${context_block}") {
		t.Errorf("expected context_block default to be substituted, got %q", out)
	}
	if strings.Contains(out, "${personality_name}") {
		t.Errorf("expected missing var with no default to fall back to empty string, got %q", out)
	}
}

func TestRenderPrefersPersonalitySpecificTemplate(t *testing.T) {
	r := NewRenderer()
	if err := r.Load(Template{
		Type:        TypeGuidance,
		Domain:      domain.DomainSpiritual,
		Personality: "krishna",
		Version:     1,
		Body:        "Krishna speaks: ${query}",
	}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	out, err := r.Render(TypeGuidance, domain.DomainSpiritual, "krishna", map[string]string{"query": "duty"})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if out != "Krishna speaks: duty" {
		t.Errorf("got %q, want personality-specific template rendered", out)
	}

	out, err = r.Render(TypeGuidance, domain.DomainSpiritual, "einstein", map[string]string{"query": "duty"})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(out, "Krishna speaks") {
		t.Errorf("expected unrelated personality to fall back to domain default, got %q", out)
	}
}

func TestLoadRejectsEmptyBody(t *testing.T) {
	r := NewRenderer()
	err := r.Load(Template{Type: TypeGuidance, Domain: domain.DomainSpiritual, Personality: "x", Body: "   "})
	if err == nil {
		t.Error("expected empty template body to be rejected")
	}
}

func TestLoadRejectsUnbalancedPlaceholders(t *testing.T) {
	r := NewRenderer()
	err := r.Load(Template{Type: TypeGuidance, Domain: domain.DomainSpiritual, Personality: "x", Body: "${unterminated"})
	if err == nil {
		t.Error("expected unbalanced placeholder to be rejected")
	}
}

func TestLoadRejectsMissingRequiredVariable(t *testing.T) {
	r := NewRenderer()
	err := r.Load(Template{
		Type:         TypeGuidance,
		Domain:       domain.DomainSpiritual,
		Personality:  "x",
		Body:         "no vars here",
		RequiredVars: []string{"query"},
	})
	if err == nil {
		t.Error("expected template missing a required variable to be rejected")
	}
}

func TestRenderReturnsErrorForUnknownTemplate(t *testing.T) {
	r := &Renderer{templates: make(map[templateKey]Template)}
	_, err := r.Render(TypeGuidance, domain.DomainSpiritual, "", nil)
	if err == nil {
		t.Error("expected an error when no template is registered")
	}
}
