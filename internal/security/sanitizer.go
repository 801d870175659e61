package security

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/vimarsh/guidance/internal/domain"
)

const (
	maxInputLength = 10000
	maxQueryLength = 1000
	maxEmailLength = 254
)

var (
	controlChars     = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	emailPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	uuidPattern      = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	alphanumPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Sanitizer cleans and validates untrusted input, grounded in
// security_validator.py's InputSanitizer.
type Sanitizer struct{}

// NewSanitizer creates a Sanitizer. It holds no state; its methods are pure
// functions of their arguments.
func NewSanitizer() *Sanitizer { return &Sanitizer{} }

// String HTML-escapes value, strips ASCII control characters, and enforces
// maxLen.
func (s *Sanitizer) String(value string, maxLen int) (string, error) {
	if len(value) > maxLen {
		return "", domain.ErrTooLong
	}
	sanitized := html.EscapeString(value)
	sanitized = controlChars.ReplaceAllString(sanitized, "")
	return strings.TrimSpace(sanitized), nil
}

// Query sanitizes a free-text query string against the query length cap.
func (s *Sanitizer) Query(value string) (string, error) {
	return s.String(value, maxQueryLength)
}

// Text sanitizes a general input string against the default input cap.
func (s *Sanitizer) Text(value string) (string, error) {
	return s.String(value, maxInputLength)
}

// Email validates and normalizes an email address.
func (s *Sanitizer) Email(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", domain.ErrInvalidEmail
	}
	if len(email) > maxEmailLength {
		return "", domain.ErrInvalidEmail
	}
	if !emailPattern.MatchString(email) {
		return "", domain.ErrInvalidEmail
	}
	return email, nil
}

// UUID validates canonical 8-4-4-4-12 hex UUID formatting.
func (s *Sanitizer) UUID(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if !uuidPattern.MatchString(value) {
		return "", domain.ErrInvalidUUID
	}
	return value, nil
}

// Alphanumeric validates a field restricted to [A-Za-z0-9_-].
func (s *Sanitizer) Alphanumeric(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || !alphanumPattern.MatchString(value) {
		return "", domain.ErrInvalidFormat
	}
	return value, nil
}

// Params sanitizes a structured parameter map: numeric and boolean values
// pass through, lists are truncated to 10 items of at most 100 characters
// each, strings are sanitized against the query cap, and any other type is
// string-coerced and then sanitized.
func (s *Sanitizer) Params(params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for key, value := range params {
		cleanKey, err := s.String(key, 50)
		if err != nil {
			return nil, err
		}

		switch v := value.(type) {
		case string:
			clean, err := s.Query(v)
			if err != nil {
				return nil, err
			}
			out[cleanKey] = clean
		case int, int64, float64, bool:
			out[cleanKey] = v
		case []any:
			items := v
			if len(items) > 10 {
				items = items[:10]
			}
			cleaned := make([]string, 0, len(items))
			for _, item := range items {
				clean, err := s.String(fmt.Sprint(item), 100)
				if err != nil {
					return nil, err
				}
				cleaned = append(cleaned, clean)
			}
			out[cleanKey] = cleaned
		default:
			clean, err := s.String(fmt.Sprint(v), 100)
			if err != nil {
				return nil, err
			}
			out[cleanKey] = clean
		}
	}
	return out, nil
}
