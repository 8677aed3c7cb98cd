package kafkahook

import (
	"log/slog"
	"time"
)

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for breaker state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithBreakerName names the circuit breaker in logs.
func WithBreakerName(name string) Option {
	return func(e *Extension) { e.breakerName = name }
}

// WithFailureThreshold sets how many consecutive publish failures open the
// breaker (default 5).
func WithFailureThreshold(n uint32) Option {
	return func(e *Extension) {
		if n > 0 {
			e.failureThreshold = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before letting a
// trial message through (default 30s).
func WithOpenTimeout(d time.Duration) Option {
	return func(e *Extension) { e.openTimeout = d }
}
