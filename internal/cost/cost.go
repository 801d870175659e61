// Package cost implements CostAccountant: per-model pricing, usage
// recording, and UserStats aggregation.
package cost

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/store"
	"github.com/vimarsh/guidance/internal/txn"
)

const (
	usageCollection      = "usage"
	userStatsCollection  = "usage_stats"
	defaultModel         = "gemini-2.5-flash"
)

// Rate is the USD-per-1000-token price for one model's input and output
// tokens.
type Rate struct {
	Input  float64
	Output float64
}

// rates is grounded in token_tracker.py's cost_rates table; unlisted models
// fall back to the defaultModel row.
var rates = map[string]Rate{
	"gemini-2.5-flash": {Input: 0.00015, Output: 0.0006},
	"gemini-1.5-pro":   {Input: 0.00125, Output: 0.005},
}

// Accountant maintains the pricing table and persists usage through the
// transaction manager so each usage record and the user's recomputed stats
// land atomically.
type Accountant struct {
	store *store.Store
	txn   *txn.Manager
}

// NewAccountant creates an Accountant over s, persisting through mgr.
func NewAccountant(s *store.Store, mgr *txn.Manager) *Accountant {
	return &Accountant{store: s, txn: mgr}
}

// Cost computes the USD cost of a model call, falling back to
// defaultModel's rate for unrecognized models.
func Cost(model string, inputTokens, outputTokens int) float64 {
	rate, ok := rates[model]
	if !ok {
		rate = rates[defaultModel]
	}
	return float64(inputTokens)/1000*rate.Input + float64(outputTokens)/1000*rate.Output
}

// RecordUsage persists a new UsageRecord and atomically recomputes the
// user's UserStats from the full persisted record set, via
// TransactionManager so both writes commit or neither does.
func (a *Accountant) RecordUsage(ctx context.Context, rec domain.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	rec.Cost = math.Round(Cost(rec.Model, rec.InputTokens, rec.OutputTokens)*1e6) / 1e6

	records, err := a.userRecords(ctx, rec.UserID)
	if err != nil {
		return fmt.Errorf("loading prior usage for %s: %w", rec.UserID, err)
	}
	records = append(records, rec)
	stats := recomputeStats(rec.UserID, records)

	return a.txn.Run(ctx, func(t *txn.Txn) {
		t.Enqueue(domain.TxnOperation{
			Collection: usageCollection,
			DocID:      rec.ID,
			Intent:     domain.OpCreate,
			Payload:    usageToPayload(rec),
		})
		t.Enqueue(domain.TxnOperation{
			Collection: userStatsCollection,
			DocID:      rec.UserID,
			Intent:     domain.OpUpdate,
			Payload:    statsToPayload(stats),
		})
	})
}

// Stats recomputes UserStats from the persisted UsageRecord set, never
// from an incrementally mutated in-memory value.
func (a *Accountant) Stats(ctx context.Context, userID string) (*domain.UserStats, error) {
	records, err := a.userRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := recomputeStats(userID, records)
	return &stats, nil
}

func (a *Accountant) userRecords(ctx context.Context, userID string) ([]domain.UsageRecord, error) {
	all, err := a.store.List(ctx, usageCollection)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UsageRecord, 0, len(all))
	for _, rec := range all {
		if fmt.Sprint(rec.Body["user_id"]) == userID {
			out = append(out, usageFromBody(rec.Body))
		}
	}
	return out, nil
}

// DailyTotal sums the cost of every UsageRecord for userID timestamped on
// the current UTC calendar day, used by BudgetEnforcer's daily-cap check.
func (a *Accountant) DailyTotal(ctx context.Context, userID string) (float64, error) {
	records, err := a.userRecords(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	var total float64
	for _, r := range records {
		if sameDay(r.Timestamp, now) {
			total += r.Cost
		}
	}
	return total, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func recomputeStats(userID string, records []domain.UsageRecord) domain.UserStats {
	stats := domain.UserStats{
		UserID:         userID,
		PersonalityUse: domain.PersonalityHistogram{},
		QualityUse:     domain.QualityHistogram{},
	}
	if len(records) == 0 {
		return stats
	}

	now := time.Now().UTC()
	modelCounts := make(map[string]int)

	for _, r := range records {
		stats.TotalRequests++
		stats.TotalTokens += r.TotalTokens
		stats.TotalCost += r.Cost
		if r.Timestamp.After(stats.LastRequest) {
			stats.LastRequest = r.Timestamp
		}
		if r.Timestamp.Year() == now.Year() && r.Timestamp.Month() == now.Month() {
			stats.CurrentMonthTokens += r.TotalTokens
			stats.CurrentMonthCost += r.Cost
		}
		modelCounts[r.Model]++
		if r.Personality != "" {
			stats.PersonalityUse[r.Personality]++
		}
		stats.QualityUse[r.Quality]++
	}

	stats.AvgTokensPerReq = float64(stats.TotalTokens) / float64(stats.TotalRequests)

	var best string
	var bestCount int
	for model, count := range modelCounts {
		if count > bestCount {
			best, bestCount = model, count
		}
	}
	stats.MostUsedModel = best

	return stats
}

func usageToPayload(rec domain.UsageRecord) map[string]any {
	return map[string]any{
		"type":          "usage",
		"user_id":       rec.UserID,
		"email":         rec.Email,
		"session_id":    rec.SessionID,
		"timestamp":     rec.Timestamp.Format(time.RFC3339Nano),
		"model":         rec.Model,
		"input_tokens":  rec.InputTokens,
		"output_tokens": rec.OutputTokens,
		"total_tokens":  rec.TotalTokens,
		"cost":          rec.Cost,
		"request_type":  rec.RequestType,
		"quality":       string(rec.Quality),
		"personality":   rec.Personality,
	}
}

func usageFromBody(body map[string]any) domain.UsageRecord {
	ts, _ := time.Parse(time.RFC3339Nano, fmt.Sprint(body["timestamp"]))
	return domain.UsageRecord{
		UserID:       fmt.Sprint(body["user_id"]),
		Email:        fmt.Sprint(body["email"]),
		SessionID:    fmt.Sprint(body["session_id"]),
		Timestamp:    ts,
		Model:        fmt.Sprint(body["model"]),
		InputTokens:  toInt(body["input_tokens"]),
		OutputTokens: toInt(body["output_tokens"]),
		TotalTokens:  toInt(body["total_tokens"]),
		Cost:         toFloat(body["cost"]),
		RequestType:  fmt.Sprint(body["request_type"]),
		Quality:      domain.Quality(fmt.Sprint(body["quality"])),
		Personality:  fmt.Sprint(body["personality"]),
	}
}

func statsToPayload(s domain.UserStats) map[string]any {
	return map[string]any{
		"type":                  "user_stats",
		"user_id":               s.UserID,
		"total_requests":        s.TotalRequests,
		"total_tokens":          s.TotalTokens,
		"total_cost":            s.TotalCost,
		"current_month_tokens":  s.CurrentMonthTokens,
		"current_month_cost":    s.CurrentMonthCost,
		"last_request":          s.LastRequest.Format(time.RFC3339Nano),
		"avg_tokens_per_req":    s.AvgTokensPerReq,
		"most_used_model":       s.MostUsedModel,
		"risk_score":            s.RiskScore,
		"blocked":               s.Blocked,
		"blocked_reason":        s.BlockedReason,
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
