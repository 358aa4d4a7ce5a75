// Package retry wraps avast/retry-go with the exponential backoff and
// transient-error classification the event repository needs.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/avast/retry-go/v5"
)

// Classifier reports whether an error is worth retrying.
type Classifier func(error) bool

// Policy is an exponential backoff retry policy with a pluggable classifier.
// It is safe for concurrent use; Execute builds a fresh retry.Do call each time.
type Policy struct {
	maxAttempts  uint
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	classifier   Classifier
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the number of attempts, including the first. Defaults to 3.
func WithMaxAttempts(n uint) Option {
	return func(p *Policy) { p.maxAttempts = n }
}

// WithInitialDelay sets the delay before the second attempt. Defaults to 100ms.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) { p.initialDelay = d }
}

// WithMaxDelay caps the backoff delay. Defaults to 5s.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.maxDelay = d }
}

// WithMultiplier sets the exponential backoff multiplier. Values <= 1 are
// coerced to 2.0, since a non-growing backoff defeats the point of retrying.
func WithMultiplier(m float64) Option {
	return func(p *Policy) { p.multiplier = m }
}

// WithClassifier overrides which errors are retried. Defaults to IsTransient.
func WithClassifier(c Classifier) Option {
	return func(p *Policy) { p.classifier = c }
}

// New builds a Policy with sane defaults, overridden by opts.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     5 * time.Second,
		multiplier:   2.0,
		classifier:   IsTransient,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.multiplier <= 1 {
		p.multiplier = 2.0
	}
	if p.initialDelay < time.Millisecond {
		p.initialDelay = time.Millisecond
	}
	if p.maxDelay < time.Millisecond {
		p.maxDelay = time.Millisecond
	}
	return p
}

// Execute runs fn, retrying on transient failures per the policy's backoff
// and classifier, bailing out immediately when ctx is canceled or fn returns
// a non-transient error.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			err := fn(ctx)
			if err == nil {
				return nil
			}
			if !p.classifier(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(p.maxAttempts),
		retry.Context(ctx),
		retry.DelayType(p.backoff),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("retrying: %w", err)
	}
	return nil
}

// backoff computes delay * multiplier^attempt, capped at maxDelay. It is
// purely a function of the attempt number, so it is deterministic across
// calls: strictly increasing until it reaches maxDelay, then constant.
func (p *Policy) backoff(attempt uint, _ error, _ *retry.Config) time.Duration {
	delay := float64(p.initialDelay)
	for i := uint(0); i < attempt; i++ {
		delay *= p.multiplier
	}
	d := time.Duration(delay)
	if d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

// IsTransient reports whether err looks like a retryable infrastructure
// failure (timeouts, connection resets, bad driver connections) rather than a
// permanent one (bad data, constraint violations).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return false
}
