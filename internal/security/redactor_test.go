package security

import "testing"

func TestRedactorRedactsSensitiveKeysRecursively(t *testing.T) {
	r := NewRedactor()
	data := map[string]any{
		"user_id": "u1",
		"api_key": "sk-abc123",
		"nested": map[string]any{
			"password": "hunter2",
			"name":     "ok",
		},
		"list": []any{
			map[string]any{"jwt": "eyJ..."},
		},
	}

	out := r.Redact(data)

	if out["api_key"] != redactedPlaceholder {
		t.Errorf("expected api_key redacted, got %v", out["api_key"])
	}
	nested := out["nested"].(map[string]any)
	if nested["password"] != redactedPlaceholder {
		t.Errorf("expected nested password redacted, got %v", nested["password"])
	}
	if nested["name"] != "ok" {
		t.Errorf("expected non-sensitive nested field preserved, got %v", nested["name"])
	}
	list := out["list"].([]any)
	item := list[0].(map[string]any)
	if item["jwt"] != redactedPlaceholder {
		t.Errorf("expected jwt in list item redacted, got %v", item["jwt"])
	}
}

func TestRedactUserMasksEmailAndRoundsMoney(t *testing.T) {
	r := NewRedactor()
	data := map[string]any{
		"user_id":    "u1",
		"email":      "alexandra@example.com",
		"total_cost": 12.3456,
		"secret":     "should not appear",
	}

	out := r.RedactUser(data)

	if _, ok := out["secret"]; ok {
		t.Error("expected fields outside the safe allow-list to be dropped")
	}
	if out["email"] != "al*****ra@example.com" {
		t.Errorf("got masked email %v", out["email"])
	}
	if out["total_cost"] != 12.35 {
		t.Errorf("expected rounded cost 12.35, got %v", out["total_cost"])
	}
}
