package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/needs"
	"github.com/wolfman30/support-intel/internal/notify"
	"github.com/wolfman30/support-intel/internal/observability/metrics"
	"github.com/wolfman30/support-intel/internal/sentiment"
	"github.com/wolfman30/support-intel/internal/tracker"
	"github.com/wolfman30/support-intel/pkg/logging"
)

var arbiterTracer = otel.Tracer("support-intel/escalation")

var (
	// ErrPersistentConflict means every commit attempt lost the compare-and-set.
	// The caller may retry the whole evaluation later.
	ErrPersistentConflict = errors.New("escalation: persistent write conflict")
	// ErrAlreadyEscalated is returned when closing a conversation that was handed off.
	ErrAlreadyEscalated = errors.New("escalation: conversation already escalated")
)

// Config tunes priority derivation, routing and commit behavior.
type Config struct {
	BudgetThreshold   float64
	EscalationChannel string
	OnCallMention     string
	MaxRetries        int
	NotifyTimeout     time.Duration
}

// Deps are the collaborators injected into the arbiter. Notifier and Metrics may be nil.
type Deps struct {
	Store      conversation.Store
	Tracker    *tracker.Tracker
	Classifier *sentiment.Classifier
	Miner      *needs.Miner
	Notifier   notify.Notifier
	Metrics    *metrics.ConversationMetrics
	Logger     *logging.Logger
}

// Arbiter decides and commits escalations.
type Arbiter struct {
	store      conversation.Store
	tracker    *tracker.Tracker
	classifier *sentiment.Classifier
	miner      *needs.Miner
	notifier   notify.Notifier
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger
	cfg        Config
	now        func() time.Time
	newID      func(time.Time) string
}

func NewArbiter(deps Deps, cfg Config) *Arbiter {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = tracker.New(nil, deps.Logger)
	}
	if deps.Classifier == nil {
		deps.Classifier = sentiment.NewClassifier(deps.Logger)
	}
	if deps.Miner == nil {
		deps.Miner = needs.NewMiner(nil, deps.Logger)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return &Arbiter{
		store:      deps.Store,
		tracker:    deps.Tracker,
		classifier: deps.Classifier,
		miner:      deps.Miner,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      NewEscalationID,
	}
}

// Decide computes the decision for conv without side effects.
func (a *Arbiter) Decide(ctx context.Context, conv *conversation.Conversation) Decision {
	if conv.Terminal() {
		return AlreadyEscalatedDecision()
	}

	analysis := a.classifier.AnalyzeConversation(conv.Turns)
	d := Decision{
		Priority:  conversation.PriorityLow,
		Sentiment: &analysis,
		Needs:     a.miner.Mine(ctx, conv.Turns),
	}

	if conv.Urgency {
		d.Reasons = append(d.Reasons, ReasonUrgency)
		d.Priority = conversation.MaxPriority(d.Priority, conversation.PriorityUrgent)
	}
	if conv.TurnCount >= a.tracker.TurnCap() {
		d.Reasons = append(d.Reasons, ReasonTurnLimit)
	}
	if a.tracker.IsComplete(conv) {
		d.Reasons = append(d.Reasons, ReasonComplete)
	}
	if analysis.Signal.Required {
		d.Reasons = append(d.Reasons, analysis.Signal.Reasons...)
		d.Priority = conversation.MaxPriority(d.Priority, analysis.Signal.Priority)
	}
	if a.cfg.BudgetThreshold > 0 {
		if amount, ok := tracker.BudgetAmount(conv.CollectedFields[BudgetField].String()); ok && amount >= a.cfg.BudgetThreshold {
			d.Priority = conversation.MaxPriority(d.Priority, conversation.PriorityMedium)
		}
	}

	d.Required = len(d.Reasons) > 0
	if d.Required {
		a.route(conv.Category, &d)
	}
	return d
}

func (a *Arbiter) route(category conversation.Category, d *Decision) {
	d.Channel = a.tracker.Channel(category)
	d.Targets = []string{d.Channel}
	if d.Priority.AtLeast(conversation.PriorityHigh) {
		if extra := a.cfg.EscalationChannel; extra != "" && extra != d.Channel {
			d.Targets = append(d.Targets, extra)
		}
		d.Mention = a.cfg.OnCallMention
	}
}

// Evaluate reads the conversation, decides, and commits the escalation with a
// compare-and-set write. Lost races re-read and re-decide; a conversation that
// turns out to be terminal yields the AlreadyEscalated no-op. Notification
// happens after the commit and its failures only add warnings.
func (a *Arbiter) Evaluate(ctx context.Context, id string) (Decision, error) {
	ctx, span := arbiterTracer.Start(ctx, "escalation.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	start := time.Now()
	outcome := "error"
	defer func() {
		a.metrics.ObserveEvaluateLatency(outcome, time.Since(start).Seconds())
	}()

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		conv, err := a.store.Get(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
			return Decision{}, fmt.Errorf("escalation: read %s: %w", id, err)
		}
		if conv.Terminal() {
			outcome = "noop"
			span.SetAttributes(attribute.Bool("escalation.already", true))
			return AlreadyEscalatedDecision(), nil
		}

		d := a.Decide(ctx, conv)
		if !d.Required {
			outcome = "continue"
			return d, nil
		}

		next, err := a.commit(ctx, conv, &d)
		if errors.Is(err, conversation.ErrConflict) {
			a.metrics.ObserveConflict("evaluate")
			a.logger.Warn("escalation commit conflict, retrying", "conversation_id", id, "attempt", attempt+1)
			continue
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit failed")
			return Decision{}, fmt.Errorf("escalation: commit %s: %w", id, err)
		}

		outcome = "escalated"
		span.SetAttributes(
			attribute.String("escalation.id", d.EscalationID),
			attribute.String("escalation.priority", string(d.Priority)),
		)
		a.metrics.ObserveEscalation(string(next.Category), string(d.Priority))
		a.logger.WithConversation(id).Info("conversation escalated",
			"escalation_id", d.EscalationID,
			"priority", d.Priority,
			"reasons", d.Reasons,
			"channel", d.Channel,
		)
		d.Warnings = a.dispatch(ctx, next)
		return d, nil
	}

	outcome = "conflict"
	span.SetStatus(codes.Error, "persistent conflict")
	return Decision{}, fmt.Errorf("%w: %s after %d attempts", ErrPersistentConflict, id, a.cfg.MaxRetries+1)
}

func (a *Arbiter) commit(ctx context.Context, conv *conversation.Conversation, d *Decision) (*conversation.Conversation, error) {
	ctx, span := arbiterTracer.Start(ctx, "escalation.commit")
	defer span.End()

	now := a.now()
	next := conv.Clone()
	next.Escalation = &conversation.Escalation{
		ID:        a.newID(now),
		Timestamp: now,
		Priority:  d.Priority,
		Reasons:   append([]string(nil), d.Reasons...),
		Channel:   d.Channel,
		Targets:   append([]string(nil), d.Targets...),
		Mention:   d.Mention,
	}
	if err := a.store.Save(ctx, next); err != nil {
		return nil, err
	}
	d.EscalationID = next.Escalation.ID
	return next, nil
}

func (a *Arbiter) dispatch(ctx context.Context, conv *conversation.Conversation) []string {
	if a.notifier == nil {
		return nil
	}
	esc := conv.Escalation
	payload := notify.Payload{
		EscalationID:    esc.ID,
		Priority:        esc.Priority,
		Category:        conv.Category,
		CollectedFields: conv.CollectedFields.Clone(),
		Reasons:         esc.Reasons,
		ConversationRef: conv.ID,
		Targets:         esc.Targets,
		Mention:         esc.Mention,
		Timestamp:       esc.Timestamp,
	}

	var warnings []string
	for _, channel := range esc.Targets {
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.NotifyTimeout)
		res := a.notifier.Notify(notifyCtx, channel, payload)
		cancel()

		a.metrics.ObserveNotification(channel, res.Success)
		if res.Success {
			continue
		}
		msg := fmt.Sprintf("notification to %s failed", channel)
		if res.Error != nil {
			msg = fmt.Sprintf("%s: %v", msg, res.Error)
		}
		warnings = append(warnings, msg)
		a.logger.Warn("escalation notification failed",
			"conversation_id", conv.ID,
			"escalation_id", esc.ID,
			"channel", channel,
			"error", res.Error,
		)
	}
	return warnings
}

// Complete closes a conversation without a hand-off. Closing an already
// completed conversation is a no-op; closing an escalated one fails.
func (a *Arbiter) Complete(ctx context.Context, id string) (*conversation.Conversation, error) {
	ctx, span := arbiterTracer.Start(ctx, "escalation.complete")
	defer span.End()

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		conv, err := a.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("escalation: read %s: %w", id, err)
		}
		switch conv.State() {
		case conversation.StateEscalated:
			return conv, ErrAlreadyEscalated
		case conversation.StateCompleted:
			return conv, nil
		}

		next := conv.Clone()
		closed := a.now()
		next.ClosedAt = &closed
		err = a.store.Save(ctx, next)
		if errors.Is(err, conversation.ErrConflict) {
			a.metrics.ObserveConflict("complete")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("escalation: commit %s: %w", id, err)
		}
		a.logger.WithConversation(id).Info("conversation completed", "turn_count", next.TurnCount)
		return next, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPersistentConflict, id)
}
