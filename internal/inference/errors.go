package inference

import "errors"

// Failure taxonomy for inference calls. The queue's retry policy only ever
// reschedules failures that classify as transient; everything else fails the
// task immediately regardless of remaining attempts.
var (
	// ErrRateLimited is returned when the provider rejects a call for
	// exceeding its rate limit. Transient.
	ErrRateLimited = errors.New("inference provider rate limit exceeded")

	// ErrUnavailable is returned for provider-side failures (5xx-equivalent)
	// and network timeouts. Transient.
	ErrUnavailable = errors.New("inference provider unavailable")

	// ErrInvalidRequest is returned when the provider rejects the request as
	// malformed (4xx-equivalent other than rate limiting). Permanent.
	ErrInvalidRequest = errors.New("inference provider rejected request")

	// ErrContentBlocked is returned when the provider blocks the content via
	// safety filters. Permanent.
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrInvalidResponse is returned when the provider's response cannot be
	// parsed or is empty. Permanent.
	ErrInvalidResponse = errors.New("invalid response from inference provider")
)

// IsTransient reports whether the given failure is worth retrying.
// Rate limiting and provider unavailability (which covers network timeouts)
// are transient; malformed requests, safety blocks and unparseable responses
// are permanent.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnavailable):
		return true
	default:
		return false
	}
}
