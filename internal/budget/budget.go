// Package budget implements BudgetEnforcer: per-user spending limits,
// threshold alerts, and admin override/unblock actions.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/vimarsh/guidance/internal/cost"
	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/notify"
	"github.com/vimarsh/guidance/internal/store"
	"github.com/vimarsh/guidance/internal/telemetry"
)

const (
	budgetCollection   = "budget_limits"
	blockCollection    = "budget_blocks"
	fallbackCollection = "budget_fallback_hints"
)

// Defaults seeds a user's budget the first time they make a request,
// grounded in budget_validator.py's get_or_create_user_budget.
type Defaults struct {
	MonthlyCap    float64
	DailyCap      float64
	PerRequestCap float64
}

// thresholds is the ordered set of (level, fraction, action) crossings
// checkAlerts walks, highest first, grounded in budget_validator.py's
// BudgetLevel enum (INFO 0.5, WARNING 0.75, CRITICAL 0.9, EMERGENCY 1.0).
var thresholds = []struct {
	level    domain.BudgetLevel
	fraction float64
	action   domain.BudgetAction
}{
	{domain.LevelEmergency, 1.0, domain.ActionBlock},
	{domain.LevelCritical, 0.9, domain.ActionFallback},
	{domain.LevelWarning, 0.75, domain.ActionNotify},
	{domain.LevelInfo, 0.5, domain.ActionNotify},
}

// Enforcer validates requests against per-user budget limits and raises
// threshold alerts, optionally fanning emergency/critical alerts out to a
// notification sink.
type Enforcer struct {
	store      *store.Store
	accountant *cost.Accountant
	sink       *notify.Sink
	defaults   Defaults
}

// NewEnforcer creates an Enforcer. sink may be nil, in which case alerts
// are only logged through telemetry counters.
func NewEnforcer(s *store.Store, accountant *cost.Accountant, sink *notify.Sink, defaults Defaults) *Enforcer {
	return &Enforcer{store: s, accountant: accountant, sink: sink, defaults: defaults}
}

// Validate runs the seven-step budget check for one request's estimated
// cost, in the exact order budget_validator.py's validate_request_budget
// enforces: blocked check, budget materialization, enabled check,
// per-request cap, monthly cap (with emergency_override bypass), daily cap
// (with the same bypass), then allow.
func (e *Enforcer) Validate(ctx context.Context, userID string, estimatedCost float64) error {
	blocked, err := e.isBlocked(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking block status for %s: %w", userID, err)
	}
	if blocked {
		return domain.ErrUserBlocked
	}

	limit, err := e.getOrCreateLimit(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading budget for %s: %w", userID, err)
	}

	if !limit.Enabled {
		return nil
	}

	if limit.PerRequestCap > 0 && estimatedCost > limit.PerRequestCap {
		return domain.ErrPerRequestExceeded
	}

	stats, err := e.accountant.Stats(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading usage stats for %s: %w", userID, err)
	}

	if !limit.EmergencyOverride && limit.MonthlyCap > 0 {
		if stats.CurrentMonthCost+estimatedCost > limit.MonthlyCap {
			return domain.ErrMonthlyExceeded
		}
	}

	if !limit.EmergencyOverride && limit.DailyCap > 0 {
		dailyTotal, err := e.accountant.DailyTotal(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading daily usage for %s: %w", userID, err)
		}
		if dailyTotal+estimatedCost > limit.DailyCap {
			return domain.ErrDailyExceeded
		}
	}

	return nil
}

// CheckAlerts evaluates userID's current spend against its limits and
// raises the highest threshold crossed for each period, persisting the
// crossing and notifying the sink for fallback/block-level actions. It
// is idempotent per call: callers are expected to invoke it once per
// completed request, not on a timer.
func (e *Enforcer) CheckAlerts(ctx context.Context, userID string) ([]domain.BudgetAlert, error) {
	limit, err := e.getOrCreateLimit(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading budget for %s: %w", userID, err)
	}
	stats, err := e.accountant.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading usage stats for %s: %w", userID, err)
	}
	dailyTotal, err := e.accountant.DailyTotal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading daily usage for %s: %w", userID, err)
	}

	var alerts []domain.BudgetAlert
	if a := e.alertFor(ctx, userID, domain.PeriodMonth, stats.CurrentMonthCost, limit.MonthlyCap); a != nil {
		alerts = append(alerts, *a)
	}
	if a := e.alertFor(ctx, userID, domain.PeriodDay, dailyTotal, limit.DailyCap); a != nil {
		alerts = append(alerts, *a)
	}

	for _, a := range alerts {
		telemetry.BudgetAlertsTotal.WithLabelValues(string(a.Level), string(a.Period)).Inc()
		if a.Action == domain.ActionBlock {
			if err := e.block(ctx, userID, fmt.Sprintf("%s budget exhausted", a.Period)); err != nil {
				return alerts, fmt.Errorf("blocking %s after emergency alert: %w", userID, err)
			}
		}
		if a.Action == domain.ActionFallback {
			if err := e.setFallbackHint(ctx, userID, fmt.Sprintf("%s budget at critical threshold", a.Period)); err != nil {
				return alerts, fmt.Errorf("setting fallback hint for %s: %w", userID, err)
			}
		}
		if (a.Action == domain.ActionBlock || a.Action == domain.ActionFallback) && e.sink != nil {
			if err := e.sink.NotifyBudgetAlert(ctx, a); err != nil {
				return alerts, fmt.Errorf("notifying budget alert for %s: %w", userID, err)
			}
		}
	}

	return alerts, nil
}

// FallbackHinted reports whether userID's budget has crossed the critical
// threshold, per CheckAlerts' ActionFallback handling; the hint stays set
// until ClearFallbackHint removes it. GuidancePipeline checks this before dispatching
// to the LLM provider and skips straight to the personality's canned
// greeting when true.
func (e *Enforcer) FallbackHinted(ctx context.Context, userID string) (bool, error) {
	_, err := e.store.Primary().Get(ctx, fallbackCollection, userID)
	if err == domain.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClearFallbackHint removes userID's fallback hint, e.g. once a new billing
// period resets their spend.
func (e *Enforcer) ClearFallbackHint(ctx context.Context, userID string) error {
	return e.store.Primary().Delete(ctx, fallbackCollection, userID)
}

func (e *Enforcer) setFallbackHint(ctx context.Context, userID, reason string) error {
	return e.store.Primary().Upsert(ctx, store.Record{
		Collection: fallbackCollection,
		DocID:      userID,
		Type:       "budget_fallback_hint",
		Body: map[string]any{
			"type":    "budget_fallback_hint",
			"user_id": userID,
			"reason":  reason,
			"set_at":  time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
}

// alertFor returns the highest threshold current/limit crosses, or nil if
// limit is zero (uncapped) or no threshold is crossed.
func (e *Enforcer) alertFor(ctx context.Context, userID string, period domain.BudgetPeriod, current, limit float64) *domain.BudgetAlert {
	if limit <= 0 {
		return nil
	}
	fraction := current / limit
	for _, th := range thresholds {
		if fraction >= th.fraction {
			return &domain.BudgetAlert{
				UserID:     userID,
				Level:      th.level,
				Period:     period,
				Current:    current,
				Limit:      limit,
				Percentage: fraction,
				Action:     th.action,
				Timestamp:  time.Now().UTC(),
			}
		}
	}
	return nil
}

// Override sets the emergency_override flag, bypassing monthly/daily caps
// until explicitly cleared, and lifts any existing block.
func (e *Enforcer) Override(ctx context.Context, userID string) error {
	limit, err := e.getOrCreateLimit(ctx, userID)
	if err != nil {
		return err
	}
	limit.EmergencyOverride = true
	limit.UpdatedAt = time.Now().UTC()
	if err := e.putLimit(ctx, limit); err != nil {
		return err
	}
	if err := e.ClearFallbackHint(ctx, userID); err != nil {
		return err
	}
	return e.unblock(ctx, userID)
}

// Unblock clears a user's block without touching their override flag.
func (e *Enforcer) Unblock(ctx context.Context, userID string) error {
	return e.unblock(ctx, userID)
}

// SetLimits updates the named caps on userID's budget, leaving any cap left
// nil untouched. Used by the admin budget-management endpoint.
func (e *Enforcer) SetLimits(ctx context.Context, userID string, monthlyCap, dailyCap, perRequestCap *float64) error {
	limit, err := e.getOrCreateLimit(ctx, userID)
	if err != nil {
		return err
	}
	if monthlyCap != nil {
		limit.MonthlyCap = *monthlyCap
	}
	if dailyCap != nil {
		limit.DailyCap = *dailyCap
	}
	if perRequestCap != nil {
		limit.PerRequestCap = *perRequestCap
	}
	limit.UpdatedAt = time.Now().UTC()
	return e.putLimit(ctx, limit)
}

func (e *Enforcer) unblock(ctx context.Context, userID string) error {
	return e.store.Primary().Delete(ctx, blockCollection, userID)
}

func (e *Enforcer) block(ctx context.Context, userID, reason string) error {
	return e.store.Primary().Upsert(ctx, store.Record{
		Collection: blockCollection,
		DocID:      userID,
		Type:       "budget_block",
		Body: map[string]any{
			"type":       "budget_block",
			"user_id":    userID,
			"reason":     reason,
			"blocked_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	})
}

func (e *Enforcer) isBlocked(ctx context.Context, userID string) (bool, error) {
	_, err := e.store.Primary().Get(ctx, blockCollection, userID)
	if err == domain.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *Enforcer) getOrCreateLimit(ctx context.Context, userID string) (domain.BudgetLimit, error) {
	rec, err := e.store.Primary().Get(ctx, budgetCollection, userID)
	if err == nil {
		return limitFromBody(rec.Body), nil
	}
	if err != domain.ErrNotFound {
		return domain.BudgetLimit{}, err
	}

	limit := domain.BudgetLimit{
		UserID:        userID,
		MonthlyCap:    e.defaults.MonthlyCap,
		DailyCap:      e.defaults.DailyCap,
		PerRequestCap: e.defaults.PerRequestCap,
		Enabled:       true,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := e.putLimit(ctx, limit); err != nil {
		return domain.BudgetLimit{}, err
	}
	return limit, nil
}

func (e *Enforcer) putLimit(ctx context.Context, limit domain.BudgetLimit) error {
	return e.store.Primary().Upsert(ctx, store.Record{
		Collection: budgetCollection,
		DocID:      limit.UserID,
		Type:       "budget_limit",
		Body:       limitToPayload(limit),
	})
}

func limitToPayload(l domain.BudgetLimit) map[string]any {
	return map[string]any{
		"type":               "budget_limit",
		"user_id":            l.UserID,
		"monthly_cap":        l.MonthlyCap,
		"daily_cap":          l.DailyCap,
		"per_request_cap":    l.PerRequestCap,
		"enabled":            l.Enabled,
		"emergency_override": l.EmergencyOverride,
		"created_at":         l.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":         l.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func limitFromBody(body map[string]any) domain.BudgetLimit {
	createdAt, _ := time.Parse(time.RFC3339Nano, fmt.Sprint(body["created_at"]))
	updatedAt, _ := time.Parse(time.RFC3339Nano, fmt.Sprint(body["updated_at"]))
	return domain.BudgetLimit{
		UserID:            fmt.Sprint(body["user_id"]),
		MonthlyCap:        toFloat(body["monthly_cap"]),
		DailyCap:          toFloat(body["daily_cap"]),
		PerRequestCap:     toFloat(body["per_request_cap"]),
		Enabled:           toBool(body["enabled"]),
		EmergencyOverride: toBool(body["emergency_override"]),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
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

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}
