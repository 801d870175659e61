package security

import (
	"context"
)

// Validator composes the rate limiter, sanitizer, and redactor into the
// single entry point GuidancePipeline calls, mirroring
// security_validator.py's SecurityValidator composition of RateLimiter,
// InputSanitizer, and DataFilter.
type Validator struct {
	Limiter   *RateLimiter
	Sanitizer *Sanitizer
	Redactor  *Redactor
}

// NewValidator composes the three sub-validators.
func NewValidator(limiter *RateLimiter, sanitizer *Sanitizer, redactor *Redactor) *Validator {
	return &Validator{Limiter: limiter, Sanitizer: sanitizer, Redactor: redactor}
}

// CheckRate enforces the rate limit and temporary block list for
// identifier under scope.
func (v *Validator) CheckRate(ctx context.Context, identifier string, scope Scope) error {
	return v.Limiter.Check(ctx, identifier, scope)
}

// SanitizeQuery sanitizes a free-text query string.
func (v *Validator) SanitizeQuery(query string) (string, error) {
	return v.Sanitizer.Query(query)
}

// SanitizeParams sanitizes a structured parameter map.
func (v *Validator) SanitizeParams(params map[string]any) (map[string]any, error) {
	return v.Sanitizer.Params(params)
}

// Redact removes sensitive fields from an outgoing response body.
func (v *Validator) Redact(data map[string]any) map[string]any {
	return v.Redactor.Redact(data)
}
