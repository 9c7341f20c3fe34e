package resilience

import "time"

// Backend names an outbound dependency with its own retry and breaker policy.
type Backend string

const (
	BackendASR    Backend = "asr"
	BackendLLM    Backend = "llm"
	BackendEvents Backend = "events"
)

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig is the fallback for fields a caller leaves zero.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// PolicyFor returns the default policy of a backend. Unknown backends get DefaultConfig.
func PolicyFor(backend Backend) Config {
	switch backend {
	case BackendASR:
		return Config{
			RetryMaxAttempts:    2,
			RetryInitialBackoff: 1 * time.Second,
			RetryMaxBackoff:     4 * time.Second,
			RetryMultiplier:     2.0,

			BreakerEnabled:          true,
			BreakerMinRequests:      5,
			BreakerFailureRatio:     0.5,
			BreakerOpenTimeout:      60 * time.Second,
			BreakerHalfOpenMaxCalls: 1,
		}
	case BackendLLM:
		return Config{
			RetryMaxAttempts:    3,
			RetryInitialBackoff: 500 * time.Millisecond,
			RetryMaxBackoff:     5 * time.Second,
			RetryMultiplier:     2.5,

			BreakerEnabled:          true,
			BreakerMinRequests:      5,
			BreakerFailureRatio:     0.6,
			BreakerOpenTimeout:      45 * time.Second,
			BreakerHalfOpenMaxCalls: 1,
		}
	case BackendEvents:
		return Config{
			RetryMaxAttempts:    5,
			RetryInitialBackoff: 50 * time.Millisecond,
			RetryMaxBackoff:     500 * time.Millisecond,
			RetryMultiplier:     2.0,

			BreakerEnabled:          true,
			BreakerMinRequests:      20,
			BreakerFailureRatio:     0.5,
			BreakerOpenTimeout:      10 * time.Second,
			BreakerHalfOpenMaxCalls: 3,
		}
	default:
		return DefaultConfig()
	}
}

// Override replaces retry settings with the positive values given; zero keeps the policy's own.
func (c Config) Override(maxAttempts int, initialBackoff, maxBackoff time.Duration) Config {
	out := c
	if maxAttempts > 0 {
		out.RetryMaxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		out.RetryInitialBackoff = initialBackoff
	}
	if maxBackoff > 0 {
		out.RetryMaxBackoff = maxBackoff
	}
	return out
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
