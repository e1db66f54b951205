// Package slack implements a notifier.Notifier for Slack webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vanguard-ai/vanguard/internal/port/notifier"
	"github.com/vanguard-ai/vanguard/internal/resilience"
)

const providerName = "slack"

// Notifier sends notifications to Slack via incoming webhook. A circuit
// breaker keeps a dead webhook from stalling every alerting code path.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewNotifier creates a Slack notifier with the given webhook URL.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    resilience.NewBreaker(5, 30*time.Second),
	}
}

func (n *Notifier) Name() string { return providerName }

// slackMessage is the Slack Block Kit message payload.
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send delivers the notification to the configured webhook.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	header := fmt.Sprintf("%s *%s*", levelEmoji(notification.Level), notification.Title)
	if notification.AgentID != "" {
		header += fmt.Sprintf(" (`%s`)", notification.AgentID)
	}

	msg := slackMessage{
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: header}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: notification.Message}},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	return n.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("slack request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("slack send: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return fmt.Errorf("slack send: status %d: %s", resp.StatusCode, detail)
		}
		return nil
	})
}

func levelEmoji(level string) string {
	switch level {
	case "warning":
		return ":warning:"
	case "slowdown":
		return ":hourglass_flowing_sand:"
	case "emergency":
		return ":rotating_light:"
	default:
		return ":information_source:"
	}
}
