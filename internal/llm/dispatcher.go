// Package llm implements LLMDispatcher: the single component that talks to
// the LLM provider, with bounded retries, per-attempt timeouts, and a
// character-budget enforcement on the returned text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/telemetry"
)

// Provider is the LLM call boundary. The concrete wire protocol is a
// deployment detail; Dispatcher only depends on this interface.
type Provider interface {
	Complete(ctx context.Context, model, prompt string) (text string, inputTokens, outputTokens int, err error)
}

// Response is what Dispatcher.Generate returns, whether from the provider
// or from the canned fallback path.
type Response struct {
	Text               string
	Model              string
	InputTokens        int
	OutputTokens       int
	Attempts           int
	Quality            domain.Quality
	CitationsExpected  bool
	ResponseTime       time.Duration
}

// Dispatcher retries a Provider call per personality.maxRetries with
// progressive backoff, and enforces the personality's character budget.
type Dispatcher struct {
	provider Provider
	model    string
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher calling provider with the configured
// model name.
func NewDispatcher(provider Provider, model string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{provider: provider, model: model, logger: logger}
}

// Model returns the configured model name, used by callers estimating
// cost at this dispatcher's rate before a request is made.
func (d *Dispatcher) Model() string {
	return d.model
}

// Generate submits prompt for personality, retrying up to
// personality.MaxRetries+1 times with 1*(attempt)-second backoff between
// attempts. On final-attempt timeout, provider error, or an empty
// response, it returns a canned fallback beginning with the personality's
// greeting, tagged quality=fallback.
func (d *Dispatcher) Generate(ctx context.Context, p domain.Personality, prompt string) Response {
	tracer := telemetry.Tracer("internal/llm")
	maxAttempts := p.MaxRetries + 1
	start := time.Now()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, span := tracer.Start(ctx, "llm.generate")
		span.SetAttributes(
			attribute.String("llm.model", d.model),
			attribute.String("llm.personality", p.ID),
			attribute.Int("llm.attempt", attempt),
		)

		attemptStart := time.Now()
		callCtx, cancel := context.WithTimeout(attemptCtx, p.Timeout)
		text, inTok, outTok, err := d.provider.Complete(callCtx, d.model, prompt)
		cancel()
		telemetry.LLMAttemptDuration.WithLabelValues(p.ID).Observe(time.Since(attemptStart).Seconds())

		if err == nil && strings.TrimSpace(text) != "" {
			telemetry.LLMAttemptsTotal.WithLabelValues(p.ID, "success").Inc()
			span.SetStatus(codes.Ok, "")
			span.End()
			return d.finalize(Response{
				Text:              text,
				Model:             d.model,
				InputTokens:       inTok,
				OutputTokens:      outTok,
				Attempts:          attempt,
				Quality:           domain.QualityHigh,
				CitationsExpected: p.CitationsRequired,
				ResponseTime:      time.Since(start),
			}, p)
		}

		if err != nil {
			telemetry.LLMAttemptsTotal.WithLabelValues(p.ID, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			telemetry.LLMAttemptsTotal.WithLabelValues(p.ID, "empty").Inc()
			span.SetStatus(codes.Error, domain.ErrProviderEmpty.Error())
		}
		span.End()

		if attempt == maxAttempts {
			d.logger.Warn("llm provider exhausted retries, returning fallback",
				"personality", p.ID, "attempts", attempt, "error", err)
			break
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	return d.finalize(d.fallback(p, maxAttempts, time.Since(start)), p)
}

// Canned returns personality's greeting as a fallback-quality Response
// without calling the provider at all, for callers that already know the
// request should prefer a canned reply (e.g. a budget fallback hint).
func (d *Dispatcher) Canned(p domain.Personality) Response {
	return d.finalize(d.fallback(p, 0, 0), p)
}

func (d *Dispatcher) fallback(p domain.Personality, attempts int, elapsed time.Duration) Response {
	return Response{
		Text:              p.Greeting,
		Model:             d.model,
		Attempts:          attempts,
		Quality:           domain.QualityFallback,
		CitationsExpected: p.CitationsRequired,
		ResponseTime:      elapsed,
	}
}

// finalize enforces the personality's character budget, truncating with a
// trailing ellipsis when the text would otherwise exceed it.
func (d *Dispatcher) finalize(r Response, p domain.Personality) Response {
	if p.MaxChars > 0 && len(r.Text) > p.MaxChars {
		if p.MaxChars > 3 {
			r.Text = r.Text[:p.MaxChars-3] + "..."
		} else {
			r.Text = r.Text[:p.MaxChars]
		}
	}
	return r
}

// HTTPProvider calls a configurable LLM HTTP endpoint over plain net/http.
// The concrete wire protocol is a non-goal of this system; this is an
// interface-compatible stand-in modeled as a JSON request/response with a
// bearer-style API key header.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// NewHTTPProvider creates an HTTPProvider calling endpoint with apiKey.
func NewHTTPProvider(endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// Complete implements Provider over net/http. The caller-supplied ctx
// carries the per-attempt deadline Dispatcher sets.
func (h *HTTPProvider) Complete(ctx context.Context, model, prompt string) (string, int, int, error) {
	body, err := json.Marshal(completionRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", 0, 0, fmt.Errorf("llm: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("llm: calling provider: %w: %w", domain.ErrProviderTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout {
		return "", 0, 0, domain.ErrProviderTimeout
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, 0, fmt.Errorf("llm: provider returned HTTP %d: %w", resp.StatusCode, domain.ErrProviderTransport)
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, 0, fmt.Errorf("llm: decoding response: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", 0, 0, domain.ErrProviderEmpty
	}
	return result.Text, result.InputTokens, result.OutputTokens, nil
}
