// Package resilience provides retry and circuit breaking for backend calls.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/nghyane/msgproxy/internal/config"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned when the backend breaker rejects a call.
var ErrBreakerOpen = errors.New("backend circuit breaker is open")

type RetryConfig struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterDelay time.Duration
	// ShouldRetry reports whether err is transient. Nil retries every error.
	ShouldRetry func(err error) bool
}

// RetryConfigFrom converts the file configuration.
func RetryConfigFrom(cfg config.RetryConfig, shouldRetry func(error) bool) RetryConfig {
	return RetryConfig{
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.BaseDelay.Std(),
		MaxDelay:    cfg.MaxDelay.Std(),
		JitterDelay: cfg.BaseDelay.Std() / 2,
		ShouldRetry: shouldRetry,
	}
}

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
	// IsSuccessful decides whether an error counts against the breaker.
	// Client mistakes should not trip it.
	IsSuccessful func(err error) bool
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
		OnStateChange:    logStateChange,
		IsSuccessful:     func(err error) bool { return err == nil },
	}
}

// BreakerConfigFrom converts the file configuration. It returns nil when the breaker is disabled.
func BreakerConfigFrom(name string, cfg config.BreakerConfig, isSuccessful func(error) bool) *BreakerConfig {
	if !cfg.Enabled {
		return nil
	}
	bc := DefaultBreakerConfig(name)
	bc.FailureThreshold = cfg.FailureThreshold
	if cfg.FailureThreshold < bc.MinRequests {
		bc.MinRequests = cfg.FailureThreshold
	}
	if cfg.Timeout > 0 {
		bc.Timeout = cfg.Timeout.Std()
	}
	if isSuccessful != nil {
		bc.IsSuccessful = isSuccessful
	}
	return &bc
}

func logStateChange(name string, from, to gobreaker.State) {
	log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
}

func (cfg BreakerConfig) settings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
		IsSuccessful:  cfg.IsSuccessful,
	}
}

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(cfg.settings())}
}

func (c *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return c.cb.Execute(fn)
}

func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

func (c *CircuitBreaker) Name() string {
	return c.cb.Name()
}

func NewRetryPolicy[R any](cfg RetryConfig) retrypolicy.RetryPolicy[R] {
	builder := retrypolicy.NewBuilder[R]().
		WithMaxRetries(cfg.MaxRetries)
	if cfg.BaseDelay > 0 && cfg.MaxDelay > cfg.BaseDelay {
		builder = builder.WithBackoff(cfg.BaseDelay, cfg.MaxDelay)
	} else if cfg.BaseDelay > 0 {
		builder = builder.WithDelay(cfg.BaseDelay)
	}
	if cfg.JitterDelay > 0 {
		builder = builder.WithJitter(cfg.JitterDelay)
	}
	if cfg.ShouldRetry != nil {
		shouldRetry := cfg.ShouldRetry
		builder = builder.HandleIf(func(_ R, err error) bool {
			return err != nil && shouldRetry(err)
		})
	}
	builder = builder.OnRetry(func(e failsafe.ExecutionEvent[R]) {
		log.Debugf("retrying backend call (attempt %d): %v", e.Attempts(), e.LastError())
	})
	return builder.Build()
}

// Executor runs a call under the retry policy, and the breaker when one is configured.
type Executor[R any] struct {
	executor failsafe.Executor[R]
	breaker  *CircuitBreaker
}

func NewExecutor[R any](retryConfig RetryConfig, breakerConfig *BreakerConfig) *Executor[R] {
	rp := NewRetryPolicy[R](retryConfig)

	var breaker *CircuitBreaker
	if breakerConfig != nil {
		breaker = NewCircuitBreaker(*breakerConfig)
	}

	return &Executor[R]{
		executor: failsafe.With(rp),
		breaker:  breaker,
	}
}

// Execute runs fn. Once retries are exhausted the returned error wraps the last attempt's error.
func (e *Executor[R]) Execute(ctx context.Context, fn func() (R, error)) (R, error) {
	if e.breaker == nil {
		return e.executor.WithContext(ctx).Get(fn)
	}
	result, err := e.breaker.Execute(func() (any, error) {
		return e.executor.WithContext(ctx).Get(fn)
	})
	if err != nil {
		var zero R
		return zero, breakerError(err)
	}
	return result.(R), nil
}

func (e *Executor[R]) CircuitBreaker() *CircuitBreaker {
	return e.breaker
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrBreakerOpen, err)
	}
	return err
}
