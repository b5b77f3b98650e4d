package escalation

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/support-intel/internal/conversation"
	"github.com/wolfman30/support-intel/internal/notify"
	"github.com/wolfman30/support-intel/internal/tracker"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		BudgetThreshold:   1_000_000,
		EscalationChannel: "#escalations",
		OnCallMention:     "@oncall",
		MaxRetries:        3,
		NotifyTimeout:     time.Second,
	}
}

func newTestArbiter(store conversation.Store, notifier notify.Notifier) *Arbiter {
	a := NewArbiter(Deps{Store: store, Notifier: notifier}, testConfig())
	a.now = func() time.Time { return fixedNow }
	return a
}

// seed applies user turns through the tracker and stores the result.
func seed(t *testing.T, store conversation.Store, id string, texts ...string) *conversation.Conversation {
	t.Helper()
	tr := tracker.New(nil, nil)
	conv := conversation.New(id, fixedNow)
	for _, text := range texts {
		conv = tr.Update(conv, conversation.Turn{Role: conversation.RoleUser, Content: text, Timestamp: fixedNow})
	}
	require.NoError(t, store.Save(context.Background(), conv))
	return conv
}

func addTurn(t *testing.T, store conversation.Store, id, text string) {
	t.Helper()
	ctx := context.Background()
	conv, err := store.Get(ctx, id)
	require.NoError(t, err)
	conv = tracker.New(nil, nil).Update(conv, conversation.Turn{Role: conversation.RoleUser, Content: text, Timestamp: fixedNow})
	require.NoError(t, store.Save(ctx, conv))
}

func TestEvaluate_UrgencyShortCircuit(t *testing.T) {
	store := conversation.NewMemoryStore()
	stub := notify.NewStubNotifier(nil)
	a := newTestArbiter(store, stub)
	seed(t, store, "conv-urgent", "至急対応をお願いします")

	d, err := a.Evaluate(context.Background(), "conv-urgent")
	require.NoError(t, err)

	assert.True(t, d.Required)
	assert.False(t, d.AlreadyEscalated)
	require.NotEmpty(t, d.Reasons)
	assert.Equal(t, ReasonUrgency, d.Reasons[0])
	assert.Equal(t, conversation.PriorityUrgent, d.Priority)
	assert.Equal(t, "#general-support", d.Channel)
	assert.Equal(t, []string{"#general-support", "#escalations"}, d.Targets)
	assert.Equal(t, "@oncall", d.Mention)
	assert.Empty(t, d.Warnings)

	stored, err := store.Get(context.Background(), "conv-urgent")
	require.NoError(t, err)
	require.NotNil(t, stored.Escalation)
	assert.Equal(t, d.EscalationID, stored.Escalation.ID)
	assert.Equal(t, fixedNow, stored.Escalation.Timestamp)
	assert.Equal(t, conversation.StateEscalated, stored.State())

	sent := stub.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "#general-support", sent[0].Channel)
	assert.Equal(t, "#escalations", sent[1].Channel)
	assert.Equal(t, d.EscalationID, sent[0].Payload.EscalationID)
	assert.Equal(t, "conv-urgent", sent[0].Payload.ConversationRef)
}

func TestEvaluate_Idempotent(t *testing.T) {
	store := conversation.NewMemoryStore()
	stub := notify.NewStubNotifier(nil)
	a := newTestArbiter(store, stub)
	seed(t, store, "conv-1", "緊急です、システムが止まりました")

	first, err := a.Evaluate(context.Background(), "conv-1")
	require.NoError(t, err)
	require.True(t, first.Required)
	sentAfterFirst := len(stub.Sent())

	for i := 0; i < 3; i++ {
		d, err := a.Evaluate(context.Background(), "conv-1")
		require.NoError(t, err)
		assert.Equal(t, AlreadyEscalatedDecision(), d)
	}

	stored, err := store.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, first.EscalationID, stored.Escalation.ID)
	assert.Equal(t, first.Priority, stored.Escalation.Priority)
	assert.Len(t, stub.Sent(), sentAfterFirst)
}

func TestEvaluate_HardCap(t *testing.T) {
	store := conversation.NewMemoryStore()
	a := newTestArbiter(store, nil)
	seed(t, store, "conv-cap", "はい")

	for _, text := range []string{"そうですね", "なるほど", "わかりました"} {
		addTurn(t, store, "conv-cap", text)
		d, err := a.Evaluate(context.Background(), "conv-cap")
		require.NoError(t, err)
		assert.False(t, d.Required)
		assert.Empty(t, d.Reasons)
	}

	addTurn(t, store, "conv-cap", "うーん")
	d, err := a.Evaluate(context.Background(), "conv-cap")
	require.NoError(t, err)

	assert.True(t, d.Required)
	assert.Equal(t, []string{ReasonTurnLimit}, d.Reasons)
	assert.Equal(t, conversation.PriorityLow, d.Priority)
	assert.Equal(t, []string{"#general-support"}, d.Targets)
	assert.Empty(t, d.Mention)
}

func TestEvaluate_CompletionGating(t *testing.T) {
	store := conversation.NewMemoryStore()
	a := newTestArbiter(store, nil)
	seed(t, store, "conv-mkt", "カフェを経営しています。SEO対策に興味があります")

	d, err := a.Evaluate(context.Background(), "conv-mkt")
	require.NoError(t, err)
	assert.False(t, d.Required)

	addTurn(t, store, "conv-mkt", "予算は月額30万円です")
	d, err = a.Evaluate(context.Background(), "conv-mkt")
	require.NoError(t, err)

	assert.True(t, d.Required)
	assert.Equal(t, []string{ReasonComplete}, d.Reasons)
	assert.Equal(t, conversation.PriorityLow, d.Priority)
	assert.Equal(t, "#marketing", d.Channel)
}

func TestEvaluate_BudgetRaisesPriority(t *testing.T) {
	store := conversation.NewMemoryStore()
	a := newTestArbiter(store, nil)
	seed(t, store, "conv-budget", "カフェを経営しています。月額200万円の予算でSEO対策を検討しています")

	d, err := a.Evaluate(context.Background(), "conv-budget")
	require.NoError(t, err)

	assert.True(t, d.Required)
	assert.Equal(t, []string{ReasonComplete}, d.Reasons)
	assert.Equal(t, conversation.PriorityMedium, d.Priority)
	assert.Equal(t, []string{"#marketing"}, d.Targets)
}

func TestEvaluate_SentimentThreshold(t *testing.T) {
	store := conversation.NewMemoryStore()
	a := newTestArbiter(store, nil)
	seed(t, store, "conv-angry", "対応が遅いし、不具合も多い", "エラーばかりで最悪です")

	d, err := a.Evaluate(context.Background(), "conv-angry")
	require.NoError(t, err)

	assert.True(t, d.Required)
	assert.Equal(t, conversation.PriorityHigh, d.Priority)
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "sentiment threshold breached")
	assert.Equal(t, "#tech-support", d.Channel)
	assert.Equal(t, []string{"#tech-support", "#escalations"}, d.Targets)
	require.NotNil(t, d.Sentiment)
	assert.LessOrEqual(t, d.Sentiment.History[0].WeightedScore+d.Sentiment.History[1].WeightedScore, -3.0)
}

func TestEvaluate_NotifyFailureIsWarning(t *testing.T) {
	store := conversation.NewMemoryStore()
	stub := notify.NewStubNotifier(nil).FailWith(errors.New("webhook down"))
	a := newTestArbiter(store, stub)
	seed(t, store, "conv-warn", "至急お願いします")

	d, err := a.Evaluate(context.Background(), "conv-warn")
	require.NoError(t, err)

	assert.True(t, d.Required)
	require.Len(t, d.Warnings, 2)
	assert.Contains(t, d.Warnings[0], "webhook down")

	stored, err := store.Get(context.Background(), "conv-warn")
	require.NoError(t, err)
	require.NotNil(t, stored.Escalation, "escalation must stay committed")
	assert.Equal(t, d.EscalationID, stored.Escalation.ID)
}

type ctxNotifier struct {
	calls int
}

func (n *ctxNotifier) Notify(ctx context.Context, channel string, payload notify.Payload) notify.Result {
	n.calls++
	if err := ctx.Err(); err != nil {
		return notify.Failed(err)
	}
	return notify.Delivered
}

func TestEvaluate_NotifySurvivesCallerCancel(t *testing.T) {
	store := conversation.NewMemoryStore()
	n := &ctxNotifier{}
	a := newTestArbiter(store, n)
	seed(t, store, "conv-cancel", "至急対応をお願いします")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := a.Evaluate(ctx, "conv-cancel")
	require.NoError(t, err)
	assert.True(t, d.Required)
	assert.Equal(t, 2, n.calls)
	assert.Empty(t, d.Warnings)
}

func TestEvaluate_ConcurrentSingleWinner(t *testing.T) {
	store := conversation.NewMemoryStore()
	stub := notify.NewStubNotifier(nil)
	a := newTestArbiter(store, stub)
	seed(t, store, "conv-race", "緊急でお願いします")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		decisions []Decision
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := a.Evaluate(context.Background(), "conv-race")
			assert.NoError(t, err)
			mu.Lock()
			decisions = append(decisions, d)
			mu.Unlock()
		}()
	}
	wg.Wait()

	winners := 0
	for _, d := range decisions {
		if d.Required {
			winners++
			continue
		}
		assert.True(t, d.AlreadyEscalated)
	}
	assert.Equal(t, 1, winners)
	assert.Len(t, stub.Sent(), 2)
}

type conflictingStore struct {
	*conversation.MemoryStore
	saves int
}

func (s *conflictingStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	s.saves++
	return conversation.ErrConflict
}

func TestEvaluate_PersistentConflict(t *testing.T) {
	mem := conversation.NewMemoryStore()
	seed(t, mem, "conv-stuck", "至急です")
	store := &conflictingStore{MemoryStore: mem}
	a := newTestArbiter(store, nil)

	_, err := a.Evaluate(context.Background(), "conv-stuck")

	assert.ErrorIs(t, err, ErrPersistentConflict)
	assert.Equal(t, 4, store.saves)
}

func TestEvaluate_NotFound(t *testing.T) {
	a := newTestArbiter(conversation.NewMemoryStore(), nil)

	_, err := a.Evaluate(context.Background(), "missing")

	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestDecide_PriorityTakesMaximum(t *testing.T) {
	a := newTestArbiter(conversation.NewMemoryStore(), nil)
	conv := conversation.New("conv-max", fixedNow)
	conv.Category = conversation.CategoryMarketing
	conv.TurnCount = 5
	conv.Urgency = true
	conv.CollectedFields[BudgetField] = conversation.TextValue("月額500万円")

	d := a.Decide(context.Background(), conv)

	assert.Equal(t, []string{ReasonUrgency, ReasonTurnLimit}, d.Reasons)
	assert.Equal(t, conversation.PriorityUrgent, d.Priority)
}

func TestComplete(t *testing.T) {
	store := conversation.NewMemoryStore()
	a := newTestArbiter(store, nil)
	seed(t, store, "conv-done", "はい")

	conv, err := a.Complete(context.Background(), "conv-done")
	require.NoError(t, err)
	require.NotNil(t, conv.ClosedAt)
	assert.Equal(t, conversation.StateCompleted, conv.State())

	again, err := a.Complete(context.Background(), "conv-done")
	require.NoError(t, err)
	assert.Equal(t, conv.ClosedAt, again.ClosedAt)

	d, err := a.Evaluate(context.Background(), "conv-done")
	require.NoError(t, err)
	assert.True(t, d.AlreadyEscalated)
}

func TestComplete_AlreadyEscalated(t *testing.T) {
	store := conversation.NewMemoryStore()
	a := newTestArbiter(store, nil)
	seed(t, store, "conv-esc", "至急お願いします")
	_, err := a.Evaluate(context.Background(), "conv-esc")
	require.NoError(t, err)

	_, err = a.Complete(context.Background(), "conv-esc")
	assert.ErrorIs(t, err, ErrAlreadyEscalated)
}

func TestNewEscalationID(t *testing.T) {
	id := NewEscalationID(time.Date(2026, 3, 1, 18, 4, 5, 0, time.FixedZone("JST", 9*3600)))

	assert.Regexp(t, regexp.MustCompile(`^ESC-20260301T090405Z-[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewEscalationID(fixedNow))
}
