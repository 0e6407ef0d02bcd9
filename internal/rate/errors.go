package rate

import "errors"

var (
	// ErrRateLimited is returned once a budget is exhausted for the window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
