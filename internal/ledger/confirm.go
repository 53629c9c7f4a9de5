package ledger

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// PollPolicy bounded exponential backoff for confirmation polling
type PollPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	UseJitter       bool
}

// DefaultPollPolicy about half a minute of polling
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		MaxAttempts:     10,
		UseJitter:       true,
	}
}

// backoff delay before the given attempt, starting at 1
func (p PollPolicy) backoff(attempt int) time.Duration {
	base := p.InitialInterval
	if base <= 0 {
		base = time.Millisecond
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	for i := 1; i < attempt; i++ {
		base = time.Duration(float64(base) * multiplier)
		if p.MaxInterval > 0 && base > p.MaxInterval {
			base = p.MaxInterval
			break
		}
	}
	if p.UseJitter {
		// full jitter
		return time.Duration(rand.Int63n(int64(base) + 1)) // #nosec G404 -- non-cryptographic jitter
	}
	return base
}

// AwaitConfirmation polls until the signature is Confirmed or Failed, the
// blockhash expires, attempts run out or ctx is done. Running out of attempts
// returns Pending with no error; the transfer may still land later.
func AwaitConfirmation(ctx context.Context, c Client, signature string, lastValidBlockHeight uint64, policy PollPolicy) (ConfirmationStatus, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := c.Confirm(ctx, signature)
		if err == nil && status != StatusPending {
			return status, nil
		}
		lastErr = err
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"signature": signature,
				"attempt":   attempt,
				"error":     err.Error(),
			}).Warn("Ledger confirmation check failed")
		}

		if lastValidBlockHeight > 0 {
			if height, herr := c.BlockHeight(ctx); herr == nil && height > lastValidBlockHeight {
				// blockhash expired; one more check decides, an unreadable outcome stays Pending
				final, ferr := c.Confirm(ctx, signature)
				if ferr != nil {
					return StatusPending, ferr
				}
				if final == StatusConfirmed {
					return StatusConfirmed, nil
				}
				return StatusFailed, nil
			}
		}

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(policy.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return StatusPending, ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr != nil {
		return StatusPending, lastErr
	}
	return StatusPending, nil
}
