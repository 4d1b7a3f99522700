package resilience

import (
	"time"
)

// FromCircuitConfig converts config values to a CircuitBreakerConfig. Zero
// values keep the defaults. Only transient errors trip the breaker.
func FromCircuitConfig(failureThreshold int, resetTimeout time.Duration) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeout > 0 {
		cfg.ResetTimeout = resetTimeout
	}
	cfg.ShouldTrip = IsTransient
	return cfg
}
