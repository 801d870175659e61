package security

import "testing"

func TestSanitizerStringEscapesHTMLAndStripsControlChars(t *testing.T) {
	s := NewSanitizer()
	got, err := s.Text("<script>\x01alert(1)</script>")
	if err != nil {
		t.Fatalf("Text() error: %v", err)
	}
	if got != "&lt;script&gt;alert(1)&lt;/script&gt;" {
		t.Errorf("got %q", got)
	}
}

func TestSanitizerStringRejectsOverLength(t *testing.T) {
	s := NewSanitizer()
	long := make([]byte, maxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := s.Query(string(long)); err == nil {
		t.Error("expected error for over-length query")
	}
}

func TestSanitizerEmailValidation(t *testing.T) {
	s := NewSanitizer()
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"user@example.com", false},
		{"User@Example.COM", false},
		{"not-an-email", true},
		{"", true},
	}
	for _, c := range cases {
		_, err := s.Email(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("Email(%q) error = %v, wantErr %v", c.in, err, c.wantErr)
		}
	}
}

func TestSanitizerUUIDValidation(t *testing.T) {
	s := NewSanitizer()
	if _, err := s.UUID("550e8400-e29b-41d4-a716-446655440000"); err != nil {
		t.Errorf("expected valid UUID to pass, got %v", err)
	}
	if _, err := s.UUID("not-a-uuid"); err == nil {
		t.Error("expected invalid UUID to fail")
	}
}

func TestSanitizerParamsTruncatesListsAndCoercesTypes(t *testing.T) {
	s := NewSanitizer()
	params := map[string]any{
		"count": 5,
		"items": []any{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"},
	}
	out, err := s.Params(params)
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	if out["count"] != 5 {
		t.Errorf("expected numeric passthrough, got %v", out["count"])
	}
	items, ok := out["items"].([]string)
	if !ok || len(items) != 10 {
		t.Errorf("expected list truncated to 10 items, got %v", out["items"])
	}
}
