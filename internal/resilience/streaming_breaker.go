package resilience

import (
	"github.com/sony/gobreaker"
)

// StreamingCircuitBreaker wraps gobreaker's TwoStepCircuitBreaker for streaming calls,
// where success is only known once the body has been fully read.
//   - Allow() checks if the request can proceed and returns a callback
//   - the callback is called when the stream completes
type StreamingCircuitBreaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

func NewStreamingCircuitBreaker(cfg BreakerConfig) *StreamingCircuitBreaker {
	return &StreamingCircuitBreaker{
		cb: gobreaker.NewTwoStepCircuitBreaker(cfg.settings()),
	}
}

// Allow checks if the circuit breaker permits a request.
// The returned done callback MUST be called exactly once: done(true) when the
// stream completes normally, done(false) when it fails mid-stream.
// Returns an error wrapping ErrBreakerOpen when the circuit rejects the call.
func (s *StreamingCircuitBreaker) Allow() (done func(success bool), err error) {
	done, err = s.cb.Allow()
	if err != nil {
		return nil, breakerError(err)
	}
	return done, nil
}

func (s *StreamingCircuitBreaker) State() gobreaker.State {
	return s.cb.State()
}

func (s *StreamingCircuitBreaker) Counts() gobreaker.Counts {
	return s.cb.Counts()
}

func (s *StreamingCircuitBreaker) Name() string {
	return s.cb.Name()
}
