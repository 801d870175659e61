// Package notify implements the optional notification sink BudgetEnforcer
// uses for emergency and critical budget alerts, following the corpus's
// IsEnabled()-gated noop pattern so an unconfigured
// deployment degrades to structured logging instead of failing.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/vimarsh/guidance/internal/domain"
)

// Sink posts budget alerts to Slack when configured.
type Sink struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSink creates a Sink. If botToken is empty, the sink is a noop.
func NewSink(botToken, channel string, logger *slog.Logger) *Sink {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Sink{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the sink has a usable Slack client.
func (s *Sink) IsEnabled() bool {
	return s.client != nil && s.channel != ""
}

// NotifyBudgetAlert posts an alert for emergency/critical budget thresholds;
// warning and info alerts are logged only and never reach Slack.
func (s *Sink) NotifyBudgetAlert(ctx context.Context, alert domain.BudgetAlert) error {
	if alert.Level != domain.LevelEmergency && alert.Level != domain.LevelCritical {
		s.logger.Info("budget alert (below critical, not posted)",
			"user_id", alert.UserID,
			"level", alert.Level,
			"period", alert.Period,
			"percentage", alert.Percentage,
		)
		return nil
	}

	if !s.IsEnabled() {
		s.logger.Warn("budget alert (notifications disabled)",
			"user_id", alert.UserID,
			"level", alert.Level,
			"period", alert.Period,
			"percentage", alert.Percentage,
		)
		return nil
	}

	text := fmt.Sprintf("Budget alert for %s: %s usage at %.0f%% of %s limit (action: %s)",
		alert.UserID, alert.Level, alert.Percentage*100, alert.Period, alert.Action)

	_, _, err := s.client.PostMessageContext(ctx, s.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting budget alert to slack: %w", err)
	}
	return nil
}
