package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// SlackNotifier posts escalations to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	username   string
	client     *http.Client
	logger     *logging.Logger
}

type slackMessage struct {
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

// NewSlackNotifier returns nil when webhookURL is empty.
func NewSlackNotifier(webhookURL string, client *http.Client, logger *logging.Logger) *SlackNotifier {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		username:   "support-intel",
		client:     client,
		logger:     logger,
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, channel string, payload Payload) Result {
	body, err := json.Marshal(slackMessage{
		Channel:  channel,
		Username: s.username,
		Text:     FormatText(payload),
	})
	if err != nil {
		return Failed(fmt.Errorf("notify: slack marshal: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return Failed(fmt.Errorf("notify: slack request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("slack webhook failed", "error", err, "channel", channel)
		return Failed(fmt.Errorf("notify: slack post: %w", err))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 300 {
		s.logger.Error("slack webhook returned error status", "status", resp.StatusCode, "body", string(respBody), "channel", channel)
		return Failed(fmt.Errorf("notify: slack returned status %d", resp.StatusCode))
	}

	s.logger.Info("escalation posted to slack", "channel", channel, "escalation_id", payload.EscalationID)
	return Delivered
}

// FormatText renders the payload as plain text for chat and email bodies.
func FormatText(p Payload) string {
	var b strings.Builder
	if p.Mention != "" && p.Priority.AtLeast(conversation.PriorityHigh) {
		fmt.Fprintf(&b, "%s\n", p.Mention)
	}
	fmt.Fprintf(&b, "Escalation %s [%s]\n", p.EscalationID, strings.ToUpper(string(p.Priority)))
	fmt.Fprintf(&b, "Category: %s\n", p.Category)
	fmt.Fprintf(&b, "Conversation: %s\n", p.ConversationRef)
	if len(p.Reasons) > 0 {
		b.WriteString("Reasons:\n")
		for _, r := range p.Reasons {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	if len(p.CollectedFields) > 0 {
		b.WriteString("Collected:\n")
		for _, k := range p.CollectedFields.Keys() {
			fmt.Fprintf(&b, "- %s: %s\n", k, p.CollectedFields[k].String())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
