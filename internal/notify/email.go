package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// EmailSender sends a single email. SendGrid, SES and the stub implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
	// Tags carry escalation metadata: SES message tags, SendGrid custom args.
	Tags map[string]string
}

const defaultFromName = "Support Assistant"

// EmailNotifier renders escalations as email and sends them to a fixed
// recipient list. The channel is included in the subject for filtering.
type EmailNotifier struct {
	sender     EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewEmailNotifier returns nil when there is no sender or no recipient.
func NewEmailNotifier(sender EmailSender, recipients []string, logger *logging.Logger) *EmailNotifier {
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	if sender == nil || len(to) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailNotifier{sender: sender, recipients: to, logger: logger}
}

func (n *EmailNotifier) Notify(ctx context.Context, channel string, payload Payload) Result {
	subject := EmailSubject(channel, payload)
	body := FormatText(payload)
	tags := emailTags(payload)

	var errs []error
	for _, to := range n.recipients {
		if err := n.sender.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body, Tags: tags}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	if len(errs) > 0 {
		n.logger.Error("escalation email failed", "escalation_id", payload.EscalationID, "failed", len(errs), "recipients", len(n.recipients))
		return Failed(fmt.Errorf("notify: email: %w", errors.Join(errs...)))
	}
	return Delivered
}

// EmailSubject builds the subject line for an escalation email.
func EmailSubject(channel string, p Payload) string {
	prefix := ""
	if p.Priority.AtLeast(conversation.PriorityHigh) {
		prefix = "[" + strings.ToUpper(string(p.Priority)) + "] "
	}
	return fmt.Sprintf("%sEscalation %s (%s) %s", prefix, p.EscalationID, p.Category, channel)
}

func emailTags(p Payload) map[string]string {
	tags := map[string]string{}
	if p.EscalationID != "" {
		tags["escalation_id"] = p.EscalationID
	}
	if p.Category != "" {
		tags["category"] = string(p.Category)
	}
	if p.Priority != "" {
		tags["priority"] = string(p.Priority)
	}
	return tags
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)

	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)
	for k, v := range msg.Tags {
		message.Personalizations[0].SetCustomArg(k, v)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("email sent via sendgrid", "to", msg.To, "subject", msg.Subject, "status", response.StatusCode)
	return nil
}

// StubEmailSender logs and keeps messages instead of sending them.
type StubEmailSender struct {
	mu       sync.Mutex
	messages []EmailMessage
	logger   *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Messages returns what Send has captured.
func (s *StubEmailSender) Messages() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailMessage(nil), s.messages...)
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
	_ Notifier    = (*EmailNotifier)(nil)
	_ Notifier    = (*SlackNotifier)(nil)
	_ Notifier    = (*RetryNotifier)(nil)
	_ Notifier    = (*MultiNotifier)(nil)
	_ Notifier    = (*StubNotifier)(nil)
)
