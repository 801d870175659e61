// Package prompt implements PromptRenderer: versioned templates keyed by
// template type, domain, and optional personality, rendered by substituting
// ${var} placeholders.
//
// Substitution is implemented with a hand-written scanner rather than
// text/template: text/template's delimiter syntax is {{ }}, not ${ }, and
// its missing-key behavior does not match "fall back to the template's
// default, then to empty string" without custom FuncMap/Option plumbing
// that ends up reimplementing this scanner anyway.
package prompt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vimarsh/guidance/internal/domain"
)

// TemplateType names the kind of prompt being rendered.
type TemplateType string

const (
	TypeGuidance TemplateType = "guidance"
	TypeFallback TemplateType = "fallback"
)

// Template is one versioned prompt body, keyed by (Type, Domain,
// Personality). Version is recorded but is not part of the key, so loading
// a template replaces any other version with the same key. Personality is
// empty for a domain-default template.
type Template struct {
	Type         TemplateType
	Domain       domain.Domain
	Personality  string
	Version      int
	Body         string
	Defaults     map[string]string
	RequiredVars []string
}

type templateKey struct {
	typ         TemplateType
	dom         domain.Domain
	personality string
}

// Renderer holds the loaded template set and renders them against a
// variable context.
type Renderer struct {
	mu        sync.RWMutex
	templates map[templateKey]Template
}

// NewRenderer creates a Renderer seeded with domain-default templates for
// spiritual, scientific, historical, and philosophical guidance prompts.
func NewRenderer() *Renderer {
	r := &Renderer{templates: make(map[templateKey]Template)}
	for _, t := range defaultTemplates() {
		r.mustLoad(t)
	}
	return r
}

// Load validates and registers a template, overriding any existing entry
// with the same key.
func (r *Renderer) Load(t Template) error {
	if err := validate(t); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[keyOf(t)] = t
	return nil
}

func (r *Renderer) mustLoad(t Template) {
	if err := r.Load(t); err != nil {
		panic(fmt.Sprintf("prompt: invalid default template %s/%s: %v", t.Type, t.Domain, err))
	}
}

// Render looks up the most specific template for (typ, dom, personality) —
// a personality-specific template if one is loaded, else the domain
// default — and substitutes vars into it. Missing variables fall back to
// the template's own default for that name, then to an empty string.
func (r *Renderer) Render(typ TemplateType, dom domain.Domain, personality string, vars map[string]string) (string, error) {
	t, ok := r.lookup(typ, dom, personality)
	if !ok {
		return "", fmt.Errorf("prompt: no template for type=%s domain=%s personality=%s", typ, dom, personality)
	}
	return substitute(t.Body, vars, t.Defaults), nil
}

func (r *Renderer) lookup(typ TemplateType, dom domain.Domain, personality string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if personality != "" {
		if t, ok := r.templates[templateKey{typ, dom, personality}]; ok {
			return t, true
		}
	}
	t, ok := r.templates[templateKey{typ, dom, ""}]
	return t, ok
}

func keyOf(t Template) templateKey {
	return templateKey{typ: t.Type, dom: t.Domain, personality: t.Personality}
}

func validate(t Template) error {
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("prompt: template body must not be empty")
	}
	if err := checkBalancedPlaceholders(t.Body); err != nil {
		return err
	}
	vars := extractVars(t.Body)
	for _, required := range t.RequiredVars {
		found := false
		for _, v := range vars {
			if v == required {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("prompt: template is missing required variable %q", required)
		}
	}
	return nil
}

func checkBalancedPlaceholders(body string) error {
	depth := 0
	for i := 0; i < len(body); i++ {
		if body[i] == '$' && i+1 < len(body) && body[i+1] == '{' {
			depth++
			i++
			continue
		}
		if body[i] == '}' && depth > 0 {
			depth--
		}
	}
	if depth != 0 {
		return fmt.Errorf("prompt: template has unbalanced ${...} placeholders")
	}
	return nil
}

// extractVars returns the set of distinct ${name} variables referenced in
// body, in first-occurrence order.
func extractVars(body string) []string {
	var names []string
	seen := make(map[string]struct{})
	scan(body, func(name string, _ int, _ int) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	})
	return names
}

// substitute replaces every ${name} in body with vars[name], falling back
// to defaults[name], then "".
func substitute(body string, vars, defaults map[string]string) string {
	var b strings.Builder
	last := 0
	scan(body, func(name string, start, end int) {
		b.WriteString(body[last:start])
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else if d, ok := defaults[name]; ok {
			b.WriteString(d)
		}
		last = end
	})
	b.WriteString(body[last:])
	return b.String()
}

// scan walks body calling fn(name, start, end) for every well-formed
// ${name} placeholder, where [start:end) is the full "${name}" span.
func scan(body string, fn func(name string, start, end int)) {
	i := 0
	for i < len(body) {
		if body[i] == '$' && i+1 < len(body) && body[i+1] == '{' {
			close := strings.IndexByte(body[i+2:], '}')
			if close < 0 {
				return
			}
			name := body[i+2 : i+2+close]
			end := i + 2 + close + 1
			fn(name, i, end)
			i = end
			continue
		}
		i++
	}
}

func defaultTemplates() []Template {
	const guidanceBody = `You are ${personality_name}, offering ${domain} guidance.

The seeker asks: ${query}

${context_block}

Respond in your own voice, grounded in your tradition, addressing the question directly. Keep the response under ${max_chars} characters.`

	const fallbackBody = `${greeting}

I am unable to reach deeper counsel at this moment. Please reflect on your question and return shortly: ${query}`

	defaults := map[string]string{"context_block": ""}
	domains := []domain.Domain{
		domain.DomainSpiritual,
		domain.DomainScientific,
		domain.DomainHistorical,
		domain.DomainPhilosophical,
	}

	var out []Template
	for _, d := range domains {
		out = append(out, Template{
			Type:         TypeGuidance,
			Domain:       d,
			Version:      1,
			Body:         guidanceBody,
			Defaults:     defaults,
			RequiredVars: []string{"query"},
		})
		out = append(out, Template{
			Type:         TypeFallback,
			Domain:       d,
			Version:      1,
			Body:         fallbackBody,
			RequiredVars: []string{"greeting"},
		})
	}
	return out
}
