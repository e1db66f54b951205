// Package service contains application services: the heartbeat scheduler,
// trigger evaluator, budget ledger, and mission runner, plus the background
// analyzers they drive.
package service

import (
	"context"
	"log/slog"

	"github.com/vanguard-ai/vanguard/internal/config"
	"github.com/vanguard-ai/vanguard/internal/port/notifier"
)

// NotificationService fans a notification out to every configured provider.
// Delivery is fire-and-forget: a failed send is logged and never aborts the
// operation that produced the notification.
type NotificationService struct {
	notifiers     []notifier.Notifier
	enabledEvents map[string]bool
}

// NewNotificationService creates a NotificationService with the given
// notifiers and list of enabled event sources (e.g. "budget.alert",
// "trigger.fired"). If enabledEvents is empty, all sources are enabled.
func NewNotificationService(notifiers []notifier.Notifier, enabledEvents []string) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	return &NotificationService{
		notifiers:     notifiers,
		enabledEvents: enabled,
	}
}

// BuildNotifiers instantiates every provider named in the config through the
// notifier registry. Unknown or misconfigured providers are skipped with a
// warning so one bad entry never takes down the service.
func BuildNotifiers(cfg config.Notify) []notifier.Notifier {
	opts := make(map[string]string, len(cfg.Options)+1)
	for k, v := range cfg.Options {
		opts[k] = v
	}
	if cfg.SlackWebhook != "" {
		opts["webhook_url"] = cfg.SlackWebhook
	}

	var notifiers []notifier.Notifier
	for _, name := range cfg.Providers {
		n, err := notifier.New(name, opts)
		if err != nil {
			slog.Warn("notifier setup failed", "provider", name, "error", err)
			continue
		}
		notifiers = append(notifiers, n)
	}
	return notifiers
}

// Notify sends a notification to all registered notifiers.
// Errors are logged but do not interrupt delivery to other notifiers.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	if len(s.enabledEvents) > 0 && !s.enabledEvents[n.Source] {
		return
	}

	for _, provider := range s.notifiers {
		if err := provider.Send(ctx, n); err != nil {
			slog.Warn("notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			continue
		}
		slog.Debug("notification sent", "provider", provider.Name(), "title", n.Title)
	}
}

// NotifierCount returns the number of registered notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}
