package transport

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for messaging calls.
//
// Everything that is not a rate limit or a missing target is transient: the
// caller retries next cycle with unchanged state.
var (
	ErrNotFound    = errors.New("message not found")
	ErrUnsupported = errors.New("operation not supported by this transport")
)

// RateLimitedError signals the platform asked us to back off.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
	}
	return "rate limited"
}

// IsRateLimited reports whether err carries a rate-limit signal and, if the
// platform provided one, the requested retry-after.
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
