package worker

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/threadline-io/threadline/internal/domain"
)

// backoffDelay computes the delay before retry attempt n (zero-based):
// min(initial * multiplier^n, max), optionally jittered into the
// [50%, 100%] band to avoid retry stampedes.
func backoffDelay(policy domain.RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialDelay
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	max := policy.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	multiplier := policy.Multiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if delay > max || delay <= 0 {
		delay = max
	}
	if policy.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()/2))
	}
	return delay
}

// sleepContext waits for d or until the context ends, whichever comes
// first.
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

// classifyFailure maps an invocation failure onto the backend error
// code set used for retry decisions.
func classifyFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorCodeTimeout
	}
	var ie *domain.WorkerInvocationError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return domain.ErrorCodeInternal
}
