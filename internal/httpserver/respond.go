package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vimarsh/guidance/internal/security"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// RespondRedacted marshals data to its wire map shape and runs it through
// sec.Redact before writing it, per GuidancePipeline's final redaction step.
// It falls back to Respond unredacted if data doesn't round-trip through
// JSON as an object (never expected for this package's response types).
func RespondRedacted(w http.ResponseWriter, status int, sec *security.Validator, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("marshalling response for redaction", "error", err)
		Respond(w, status, data)
		return
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		Respond(w, status, data)
		return
	}

	Respond(w, status, sec.Redact(asMap))
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, err string, message string) {
	Respond(w, status, ErrorResponse{
		Error:   err,
		Message: message,
	})
}
