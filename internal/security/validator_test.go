package security

import "testing"

func TestValidatorSanitizeQueryDelegatesToSanitizer(t *testing.T) {
	v := NewValidator(nil, NewSanitizer(), NewRedactor())
	out, err := v.SanitizeQuery("<script>hi</script>")
	if err != nil {
		t.Fatalf("SanitizeQuery() error: %v", err)
	}
	if out == "<script>hi</script>" {
		t.Error("expected query to be HTML-escaped")
	}
}

func TestValidatorRedactDelegatesToRedactor(t *testing.T) {
	v := NewValidator(nil, NewSanitizer(), NewRedactor())
	out := v.Redact(map[string]any{"api_key": "secret", "name": "ok"})
	if out["api_key"] != redactedPlaceholder {
		t.Errorf("got %v, want redacted", out["api_key"])
	}
	if out["name"] != "ok" {
		t.Errorf("got %v, want unchanged", out["name"])
	}
}
