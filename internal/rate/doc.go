// Package rate provides the Redis-backed fixed-window limiter used by the test
// and example API servers to throttle failed logins and refresh calls.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key suffixes
// under the configured prefix:
//   - :login:     failed logins per identifier
//   - :login-ip:  failed logins per IP
//   - :refresh:   refresh calls per session
//
// # What this package must NOT do
//
//   - Decide response codes or bodies; callers map ErrRateLimited.
//   - Be imported by the client packages.
package rate
