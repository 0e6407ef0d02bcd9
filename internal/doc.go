// Package internal holds helpers private to this module: random session ids
// and the opaque refresh-token codec used by the API servers under
// internal/authtest and examples/.
//
// # Sub-packages
//
//   - authtest: echo-based fake marketplace API for tests and the load tool
//   - rate: Redis-backed fixed-window limiter for logins and refreshes
//
// # What this package must NOT do
//
//   - Be imported by the client packages (authclient, credential, endpoint, refresh).
package internal
