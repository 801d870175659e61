package guidance

import (
	"regexp"

	"github.com/vimarsh/guidance/internal/domain"
)

// unsafePatterns flags generated text that strays into categories this
// system must never answer authoritatively on, per the guidance pipeline's
// safety-filter step: explicit content, medical diagnosis, financial
// prediction, and legal advice.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(explicit sexual|graphic violence)\b`),
	regexp.MustCompile(`(?i)\byou (have|are suffering from|are diagnosed with)\b.*\b(cancer|disease|disorder|condition)\b`),
	regexp.MustCompile(`(?i)\b(buy|sell|short)\b.*\b(stock|crypto|bitcoin|shares)\b.*\b(now|today|guarantee[d]?)\b`),
	regexp.MustCompile(`(?i)\byou (will|should) (win|lose) (your|the) (lawsuit|case)\b`),
}

// safetyFilter checks generated text against the unsafe-pattern set. A
// match replaces the text with the personality's greeting (its safe
// fallback line) and downgrades the quality to fallback; the character
// budget is then re-enforced exactly as the original generation path does.
func (p *Pipeline) safetyFilter(text string, persona domain.Personality, quality domain.Quality) (string, domain.Quality) {
	for _, pattern := range unsafePatterns {
		if pattern.MatchString(text) {
			return truncate(persona.Greeting, persona.MaxChars), domain.QualityFallback
		}
	}
	return truncate(text, persona.MaxChars), quality
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	if maxChars > 3 {
		return text[:maxChars-3] + "..."
	}
	return text[:maxChars]
}
