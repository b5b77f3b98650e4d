package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// Payload is the structured hand-off sent to humans when a conversation escalates.
type Payload struct {
	EscalationID    string                `json:"escalation_id"`
	Priority        conversation.Priority `json:"priority"`
	Category        conversation.Category `json:"category"`
	CollectedFields conversation.Fields   `json:"collected_fields"`
	Reasons         []string              `json:"reasons"`
	ConversationRef string                `json:"conversation_ref"`
	Targets         []string              `json:"targets,omitempty"`
	Mention         string                `json:"mention,omitempty"`
	Timestamp       time.Time             `json:"timestamp"`
}

// Result reports delivery of one notification.
type Result struct {
	Success bool
	Error   error
}

// Failed builds an unsuccessful result.
func Failed(err error) Result {
	return Result{Success: false, Error: err}
}

// Delivered is the successful result.
var Delivered = Result{Success: true}

// Notifier delivers an escalation payload to a channel.
// Implementations must honor ctx cancellation.
type Notifier interface {
	Notify(ctx context.Context, channel string, payload Payload) Result
}

// MultiNotifier fans a payload out to every notifier concurrently. It succeeds
// only when all deliveries succeed; errors are joined in notifier order.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier skips nil entries.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *MultiNotifier) Notify(ctx context.Context, channel string, payload Payload) Result {
	errs := make([]error, len(m.notifiers))
	var g errgroup.Group
	for i, n := range m.notifiers {
		g.Go(func() error {
			if res := n.Notify(ctx, channel, payload); !res.Success {
				errs[i] = res.Error
				if errs[i] == nil {
					errs[i] = errors.New("notify: delivery failed")
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return Failed(err)
	}
	return Delivered
}

// StubNotifier logs and records payloads without delivering them.
type StubNotifier struct {
	mu     sync.Mutex
	sent   []Sent
	logger *logging.Logger
	err    error
}

// Sent is a payload captured by StubNotifier.
type Sent struct {
	Channel string
	Payload Payload
}

func NewStubNotifier(logger *logging.Logger) *StubNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubNotifier{logger: logger}
}

// FailWith makes every later Notify call fail with err.
func (s *StubNotifier) FailWith(err error) *StubNotifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

func (s *StubNotifier) Notify(ctx context.Context, channel string, payload Payload) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Sent{Channel: channel, Payload: payload})
	if s.err != nil {
		return Failed(fmt.Errorf("notify: stub: %w", s.err))
	}
	s.logger.Info("stub notifier: would notify", "channel", channel, "escalation_id", payload.EscalationID, "priority", payload.Priority)
	return Delivered
}

// Sent returns a copy of the recorded notifications.
func (s *StubNotifier) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}
