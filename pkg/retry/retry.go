package retry

import (
	"context"
	"math/rand"
	"time"
)

type Operation = func() error

// BackoffFunc returns the delay before the given retry attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// Linear grows the delay by step on every attempt.
func Linear(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// Exponential multiplies the initial delay by factor per attempt, capped at max.
func Exponential(initial time.Duration, factor float64, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := initial
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * factor)
			if d > max {
				return max
			}
		}
		return d
	}
}

// Config is an explicit retry policy: how often, how long between attempts,
// and which errors are worth retrying at all.
type Config struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Jitter      time.Duration
	// Retryable reports whether the error is transient. A nil predicate
	// retries everything.
	Retryable func(error) bool
}

func NewDefaultConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		Backoff:     Exponential(300*time.Millisecond, 2.15, 20*time.Second),
		Jitter:      50 * time.Millisecond,
	}
}

type Retrier struct {
	config *Config
	rnd    *rand.Rand
}

func NewRetrier(config *Config) *Retrier {
	return &Retrier{
		config: config,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func NewDefaultRetrier() *Retrier {
	return NewRetrier(NewDefaultConfig())
}

// Do runs op until it succeeds, the policy is exhausted, the error is not
// retryable, or ctx is cancelled. The last error is returned.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var err error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if r.config.Retryable != nil && !r.config.Retryable(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			return err
		}

		delay := r.config.Backoff(attempt)
		if r.config.Jitter > 0 {
			delay += time.Duration(r.rnd.Float64() * float64(r.config.Jitter))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
