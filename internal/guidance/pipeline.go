// Package guidance implements GuidancePipeline: the orchestrator that
// chains sanitization, budget enforcement, retrieval, prompt rendering,
// LLM dispatch, safety filtering, and persistence for one guidance request.
// Redaction of the outgoing body happens at the HTTP edge.
package guidance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vimarsh/guidance/internal/budget"
	"github.com/vimarsh/guidance/internal/cost"
	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/llm"
	"github.com/vimarsh/guidance/internal/personality"
	"github.com/vimarsh/guidance/internal/prompt"
	"github.com/vimarsh/guidance/internal/security"
	"github.com/vimarsh/guidance/internal/store"
	"github.com/vimarsh/guidance/internal/telemetry"
	"github.com/vimarsh/guidance/internal/vector"
)

const (
	conversationCollection = "conversations"
	maxHistoryTurns        = 5
	avgCharsPerToken       = 4
	topKChunks             = 3
	minChunkScore          = 0.0
)

// Request is one user's guidance ask. UserID/Email are taken from the
// already-authenticated identity; GuidancePipeline never authenticates
// requests itself (HTTP middleware does that before this is called).
type Request struct {
	UserID      string
	Email       string
	SessionID   string
	Query       string
	Personality string
	Language    string
	History     []domain.Conversation
}

// Response is returned to the HTTP edge unredacted; the edge redacts it
// before it reaches the client.
type Response struct {
	Text         string
	Citations    []string
	Quality      domain.Quality
	Personality  string
	Model        string
	MaxChars     int
	Attempts     int
	ResponseTime time.Duration
	Denied       bool
	DenyReason   string
}

// Pipeline wires every component named in the request flow.
type Pipeline struct {
	security     *security.Validator
	budget       *budget.Enforcer
	vectorIndex  vector.Index
	embedder     vector.Embedder
	renderer     *prompt.Renderer
	personas     *personality.Registry
	dispatcher   *llm.Dispatcher
	accountant   *cost.Accountant
	store        *store.Store
	logger       *slog.Logger
}

// New wires a Pipeline from its components.
func New(
	sec *security.Validator,
	enforcer *budget.Enforcer,
	index vector.Index,
	embedder vector.Embedder,
	renderer *prompt.Renderer,
	personas *personality.Registry,
	dispatcher *llm.Dispatcher,
	accountant *cost.Accountant,
	s *store.Store,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		security:    sec,
		budget:      enforcer,
		vectorIndex: index,
		embedder:    embedder,
		renderer:    renderer,
		personas:    personas,
		dispatcher:  dispatcher,
		accountant:  accountant,
		store:       s,
		logger:      logger,
	}
}

// Handle runs the full guidance request flow: sanitize, budget-check,
// retrieve, render, fallback-hint check, generate, safety-filter, persist,
// alert. The HTTP edge redacts the returned Response before it reaches the
// client.
func (p *Pipeline) Handle(ctx context.Context, req Request) (*Response, error) {
	query, err := p.security.SanitizeQuery(req.Query)
	if err != nil {
		return nil, fmt.Errorf("guidance: sanitizing query: %w", err)
	}
	req.Query = query

	persona := p.personas.Get(req.Personality)

	estimatedCost := p.estimateCost(persona)
	if err := p.budget.Validate(ctx, req.UserID, estimatedCost); err != nil {
		return p.denial(persona, err), nil
	}

	chunks := p.retrieve(ctx, req.Query, persona)
	rendered, err := p.render(persona, req, chunks)
	if err != nil {
		return nil, fmt.Errorf("guidance: rendering prompt: %w", err)
	}

	var genResp llm.Response
	hinted, err := p.budget.FallbackHinted(ctx, req.UserID)
	if err != nil {
		p.logger.Error("failed to check budget fallback hint", "user_id", req.UserID, "error", err)
	}
	if hinted {
		genResp = p.dispatcher.Canned(persona)
	} else {
		genResp = p.dispatcher.Generate(ctx, persona, rendered)
	}

	text, quality := p.safetyFilter(genResp.Text, persona, genResp.Quality)
	telemetry.GuidanceRequestsTotal.WithLabelValues(persona.ID, string(quality)).Inc()
	citations := citationsOf(chunks)

	if err := p.persist(ctx, req, persona, genResp, text, citations, quality); err != nil {
		p.logger.Error("failed to persist guidance usage", "user_id", req.UserID, "error", err)
	}

	if alerts, err := p.budget.CheckAlerts(ctx, req.UserID); err != nil {
		p.logger.Error("failed to check budget alerts", "user_id", req.UserID, "error", err)
	} else {
		for _, a := range alerts {
			p.logger.Info("budget alert raised", "user_id", req.UserID, "level", a.Level, "period", a.Period)
		}
	}

	return &Response{
		Text:         text,
		Citations:    citations,
		Quality:      quality,
		Personality:  persona.ID,
		Model:        genResp.Model,
		MaxChars:     persona.MaxChars,
		Attempts:     genResp.Attempts,
		ResponseTime: genResp.ResponseTime,
	}, nil
}

// estimateCost computes a conservative upper bound for the request: the
// configured model's rate applied to a generous prompt-token guess plus
// the personality's maximum response length in tokens.
func (p *Pipeline) estimateCost(persona domain.Personality) float64 {
	const maxPromptTokensGuess = 1000
	responseTokens := persona.MaxChars / avgCharsPerToken
	return cost.Cost(p.dispatcher.Model(), maxPromptTokensGuess, responseTokens)
}

func (p *Pipeline) denial(persona domain.Personality, cause error) *Response {
	return &Response{
		Text:        persona.Greeting,
		Personality: persona.ID,
		Quality:     domain.QualityFallback,
		MaxChars:    persona.MaxChars,
		Denied:      true,
		DenyReason:  cause.Error(),
	}
}

// retrieve fetches the top-k chunks from the personality's corpus
// partition. Retrieval failure degrades to no context rather than
// failing the request, since grounding chunks are an enrichment, not a
// correctness requirement.
func (p *Pipeline) retrieve(ctx context.Context, query string, persona domain.Personality) []vector.Result {
	if p.vectorIndex == nil || p.embedder == nil {
		return nil
	}
	queryVec := p.embedder.Embed(query)
	results, err := p.vectorIndex.Search(ctx, queryVec, topKChunks, persona.CorpusPartition, minChunkScore)
	if err != nil {
		p.logger.Warn("vector retrieval failed, continuing without context", "partition", persona.CorpusPartition, "error", err)
		return nil
	}
	return results
}

func (p *Pipeline) render(persona domain.Personality, req Request, chunks []vector.Result) (string, error) {
	vars := map[string]string{
		"personality_name": persona.DisplayName,
		"domain":           string(persona.Domain),
		"query":            req.Query,
		"max_chars":        fmt.Sprint(persona.MaxChars),
		"context_block":    contextBlock(chunks),
	}
	return p.renderer.Render(prompt.TypeGuidance, persona.Domain, persona.ID, vars)
}

func contextBlock(chunks []vector.Result) string {
	if len(chunks) == 0 {
		return ""
	}
	block := "Relevant passages:\n"
	for _, c := range chunks {
		block += fmt.Sprintf("- %s (%s)\n", c.Chunk.Text, c.Chunk.SourceDoc)
	}
	return block
}

func citationsOf(chunks []vector.Result) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, c.Chunk.Citations...)
	}
	return out
}

func (p *Pipeline) persist(ctx context.Context, req Request, persona domain.Personality, genResp llm.Response, text string, citations []string, quality domain.Quality) error {
	usage := domain.UsageRecord{
		UserID:       req.UserID,
		Email:        req.Email,
		SessionID:    req.SessionID,
		Model:        genResp.Model,
		InputTokens:  genResp.InputTokens,
		OutputTokens: genResp.OutputTokens,
		RequestType:  "guidance",
		Quality:      quality,
		Personality:  persona.ID,
	}
	if err := p.accountant.RecordUsage(ctx, usage); err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}

	conv := domain.Conversation{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		Timestamp:   time.Now().UTC(),
		Question:    req.Query,
		Response:    text,
		Citations:   citations,
		Personality: persona.ID,
	}
	return p.store.Primary().Upsert(ctx, store.Record{
		Collection: conversationCollection,
		DocID:      conv.ID,
		Type:       "conversation",
		Body:       conversationToPayload(conv),
	})
}

func conversationToPayload(c domain.Conversation) map[string]any {
	return map[string]any{
		"type":        "conversation",
		"id":          c.ID,
		"user_id":     c.UserID,
		"session_id":  c.SessionID,
		"timestamp":   c.Timestamp.Format(time.RFC3339Nano),
		"question":    c.Question,
		"response":    c.Response,
		"citations":   c.Citations,
		"personality": c.Personality,
	}
}

// BoundedHistory trims conversation history to the last maxHistoryTurns
// entries, oldest first, matching §4.13 step 7's "bounded to last 5".
func BoundedHistory(history []domain.Conversation) []domain.Conversation {
	if len(history) <= maxHistoryTurns {
		return history
	}
	return history[len(history)-maxHistoryTurns:]
}
