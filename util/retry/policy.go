package retry

import (
	"time"

	"github.com/dashbridge/creditbridge/errors"
)

// transientOnly gates retries on the failure classifier, so a malformed
// request fails fast while a flapping collaborator keeps being retried.
func transientOnly(failure error) bool {
	return errors.IsRetryable(failure)
}

// PlatformPolicy is the schedule for operations against the platform layer,
// which goes through windows of consensus-node unavailability measured in
// tens of seconds: 5 attempts starting at 2s, capped at 30s.
func PlatformPolicy() []Options {
	return []Options{
		WithRetryCount(5),
		WithBackoffDurationType(2 * time.Second),
		WithMaxBackoff(30 * time.Second),
		WithExponentialBackoff(),
		WithRetryPredicate(transientOnly),
	}
}

// ConservativePolicy is the schedule for simple reads and broadcasts where
// failing fast matters more than riding out an outage: 3 attempts starting
// at 1s, capped at 10s.
func ConservativePolicy() []Options {
	return []Options{
		WithRetryCount(3),
		WithBackoffDurationType(1 * time.Second),
		WithMaxBackoff(10 * time.Second),
		WithExponentialBackoff(),
		WithRetryPredicate(transientOnly),
	}
}

// Bind appends overrides to a base policy; later options win field by field.
func Bind(base []Options, overrides ...Options) []Options {
	merged := make([]Options, 0, len(base)+len(overrides))
	merged = append(merged, base...)
	merged = append(merged, overrides...)

	return merged
}
