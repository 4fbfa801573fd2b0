package dataflows

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dyike/PolyCortex/internal/errs"
	"github.com/dyike/PolyCortex/internal/logging"
)

// RetryPolicy bounds retries of a provider call. Only errors errs marks as
// retryable (network failures, 408, 429, 5xx) are tried again.
type RetryPolicy struct {
	// total tries, the first one included
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Attempts:  4,
		BaseDelay: time.Second,
		MaxDelay:  30 * time.Second,
	}
}

// delay doubles per retry up to MaxDelay, then keeps a random half of it so
// concurrent tools do not hit a rate-limited provider in lockstep.
func (p *RetryPolicy) delay(retry int) time.Duration {
	d := p.BaseDelay << (retry - 1)
	if d <= 0 || d > p.MaxDelay {
		d = p.MaxDelay
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}

func retryCall(ctx context.Context, p *RetryPolicy, fn func() error) error {
	if p == nil {
		p = DefaultRetryPolicy()
	}
	attempts := max(p.Attempts, 1)

	var err error
	for try := 1; try <= attempts; try++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errs.IsRetryable(err) || try == attempts {
			break
		}

		wait := p.delay(try)
		logging.FromContext(ctx).Debug("retrying provider call", "attempt", try, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if errs.IsRetryable(err) && attempts > 1 {
		return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
	}
	return err
}
