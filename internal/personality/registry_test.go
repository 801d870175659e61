package personality

import (
	"io"
	"log/slog"
	"testing"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetReturnsConfiguredPersonality(t *testing.T) {
	r := newTestRegistry()
	p := r.Get("einstein")
	if p.ID != "einstein" {
		t.Errorf("got ID %q, want einstein", p.ID)
	}
}

func TestGetFallsBackToDefaultForUnknownID(t *testing.T) {
	r := newTestRegistry()
	p := r.Get("not-a-real-personality")
	if p.ID != defaultID {
		t.Errorf("got ID %q, want default %q", p.ID, defaultID)
	}
}

func TestAllReturnsTwelvePersonalities(t *testing.T) {
	r := newTestRegistry()
	if got := len(r.All()); got != 12 {
		t.Errorf("got %d personalities, want 12", got)
	}
}

func TestDefaultIsKrishna(t *testing.T) {
	r := newTestRegistry()
	if r.Default().ID != "krishna" {
		t.Errorf("got default ID %q, want krishna", r.Default().ID)
	}
}
