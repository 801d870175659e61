package llm

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vimarsh/guidance/internal/domain"
)

type fakeProvider struct {
	calls   int
	failN   int // number of leading calls that fail
	text    string
	err     error
}

func (f *fakeProvider) Complete(ctx context.Context, model, prompt string) (string, int, int, error) {
	f.calls++
	if f.calls <= f.failN {
		return "", 0, 0, f.err
	}
	return f.text, 10, 20, nil
}

func testPersonality() domain.Personality {
	return domain.Personality{
		ID:         "krishna",
		Greeting:   "Beloved devotee, peace be with you.",
		MaxChars:   50,
		Timeout:    time.Second,
		MaxRetries: 2,
	}
}

func newTestDispatcher(p Provider) *Dispatcher {
	return NewDispatcher(p, "gemini-2.5-flash", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerateReturnsProviderResponseOnFirstSuccess(t *testing.T) {
	fp := &fakeProvider{text: "short reply"}
	d := newTestDispatcher(fp)

	resp := d.Generate(context.Background(), testPersonality(), "prompt")
	if resp.Text != "short reply" {
		t.Errorf("got text %q, want %q", resp.Text, "short reply")
	}
	if resp.Quality != domain.QualityHigh {
		t.Errorf("got quality %v, want high", resp.Quality)
	}
	if resp.Attempts != 1 {
		t.Errorf("got attempts %d, want 1", resp.Attempts)
	}
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	fp := &fakeProvider{text: "eventual reply", failN: 2, err: domain.ErrProviderTransport}
	d := newTestDispatcher(fp)

	resp := d.Generate(context.Background(), testPersonality(), "prompt")
	if resp.Text != "eventual reply" {
		t.Errorf("got text %q, want eventual reply", resp.Text)
	}
	if resp.Attempts != 3 {
		t.Errorf("got attempts %d, want 3", resp.Attempts)
	}
}

func TestGenerateFallsBackAfterExhaustingRetries(t *testing.T) {
	fp := &fakeProvider{failN: 99, err: domain.ErrProviderTransport}
	d := newTestDispatcher(fp)

	p := testPersonality()
	resp := d.Generate(context.Background(), p, "prompt")
	if resp.Quality != domain.QualityFallback {
		t.Errorf("got quality %v, want fallback", resp.Quality)
	}
	if fp.calls != p.MaxRetries+1 {
		t.Errorf("got %d provider calls, want %d", fp.calls, p.MaxRetries+1)
	}
	if len(resp.Text) == 0 {
		t.Error("expected non-empty fallback text")
	}
}

func TestGenerateTruncatesToCharacterBudget(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	fp := &fakeProvider{text: long}
	d := newTestDispatcher(fp)

	p := testPersonality()
	resp := d.Generate(context.Background(), p, "prompt")
	if len(resp.Text) != p.MaxChars {
		t.Errorf("got length %d, want %d", len(resp.Text), p.MaxChars)
	}
	if resp.Text[len(resp.Text)-3:] != "..." {
		t.Errorf("expected truncated text to end with ..., got %q", resp.Text)
	}
}
