// Package resilience wraps outbound provider calls with retries and circuit
// breakers.
package resilience

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// RetryConfig tunes exponential backoff.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig returns the backoff used for embedding and vector
// store calls.
func DefaultRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  2 * time.Minute,
	}
}

// Retry runs op until it succeeds, returns an error for which retryable
// reports false, the retries are exhausted, or ctx ends.
func Retry(ctx context.Context, cfg RetryConfig, retryable func(error) bool, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	b.MaxElapsedTime = cfg.MaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.Reset()

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("[RETRY] %v; retrying in %s", err, wait.Truncate(time.Millisecond))
	}
	return backoff.RetryNotify(operation, policy, notify)
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

var (
	breakers   = make(map[string]*gobreaker.CircuitBreaker)
	breakersMu sync.Mutex
)

// Breaker returns the named circuit breaker, creating it on first use.
func Breaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	breakersMu.Lock()
	defer breakersMu.Unlock()
	if cb, ok := breakers[name]; ok {
		return cb
	}

	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureRatio == 0 {
		cfg.FailureRatio = 0.6
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("[BREAKER] %s: %s -> %s", name, from, to)
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	breakers[name] = cb
	return cb
}

// Execute runs fn through the named breaker. Errors for which counts reports
// false (caller mistakes such as a 400) do not count toward tripping.
func Execute[T any](name string, cfg BreakerConfig, counts func(error) bool, fn func() (T, error)) (T, error) {
	cb := Breaker(name, cfg)
	var zero T
	var passthrough error
	res, err := cb.Execute(func() (interface{}, error) {
		v, err := fn()
		if err != nil && counts != nil && !counts(err) {
			passthrough = err
			return v, nil
		}
		return v, err
	})
	if passthrough != nil {
		return zero, passthrough
	}
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// IsOpen reports whether err was returned because a breaker rejected the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// ResetBreakers drops every breaker. Tests use it to isolate state.
func ResetBreakers() {
	breakersMu.Lock()
	defer breakersMu.Unlock()
	breakers = make(map[string]*gobreaker.CircuitBreaker)
}
