package broker

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines exponential backoff parameters for transient task
// failures. With BaseDelay 2s the schedule is 2s/4s/8s plus jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay added randomly, e.g. 0.25
}

// Delay returns the backoff before the given retry (1-based: Delay(1) is the
// wait after the first failed attempt), with clamping and additive jitter to
// avoid thundering herds of requeued tasks.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

// Exhausted reports whether a task at the given attempt has no retries left.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
