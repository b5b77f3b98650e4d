package notify

import (
	"context"
	"time"

	"github.com/wolfman30/support-intel/pkg/logging"
)

// RetryNotifier retries a failing notifier with exponential backoff. Each
// attempt runs under its own timeout.
type RetryNotifier struct {
	next           Notifier
	logger         *logging.Logger
	maxAttempts    int
	baseDelay      time.Duration
	maxDelay       time.Duration
	attemptTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

func NewRetryNotifier(next Notifier, logger *logging.Logger) *RetryNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryNotifier{
		next:           next,
		logger:         logger,
		maxAttempts:    3,
		baseDelay:      500 * time.Millisecond,
		maxDelay:       10 * time.Second,
		attemptTimeout: 5 * time.Second,
		sleep:          sleepContext,
	}
}

func (r *RetryNotifier) WithMaxAttempts(n int) *RetryNotifier {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *RetryNotifier) WithBaseDelay(d time.Duration) *RetryNotifier {
	if d > 0 {
		r.baseDelay = d
	}
	return r
}

func (r *RetryNotifier) WithAttemptTimeout(d time.Duration) *RetryNotifier {
	if d > 0 {
		r.attemptTimeout = d
	}
	return r
}

func (r *RetryNotifier) Notify(ctx context.Context, channel string, payload Payload) Result {
	var last Result
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.sleep(ctx, r.nextDelay(attempt-1)); err != nil {
				return Failed(err)
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		last = r.next.Notify(attemptCtx, channel, payload)
		cancel()
		if last.Success {
			return last
		}
		r.logger.Warn("notify attempt failed",
			"attempt", attempt+1,
			"max_attempts", r.maxAttempts,
			"channel", channel,
			"escalation_id", payload.EscalationID,
			"error", last.Error,
		)
	}
	return last
}

func (r *RetryNotifier) nextDelay(attempts int) time.Duration {
	delay := r.baseDelay * time.Duration(1<<attempts)
	if delay > r.maxDelay {
		delay = r.maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
