package supervisor

import (
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/tibber-export/internal/infrastructure/config"
)

// exponentialMultiplier doubles the delay after each failed open.
const exponentialMultiplier = 2.0

// NewRetryPolicy builds the back-off used between failed open attempts.
//
// The constant strategy waits cfg.Delay every time. The exponential
// strategy starts at cfg.Delay and grows to cfg.MaxDelay with jitter.
// The strategy name is matched case-insensitively.
// Neither policy ever returns backoff.Stop: retries are unbounded.
func NewRetryPolicy(cfg config.SupervisorRetryConfig) backoff.BackOff {
	if strings.EqualFold(strings.TrimSpace(cfg.Strategy), config.RetryExponential) {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.Delay
		b.MaxInterval = cfg.MaxDelay
		b.Multiplier = exponentialMultiplier
		b.Reset()
		return b
	}
	return backoff.NewConstantBackOff(cfg.Delay)
}
