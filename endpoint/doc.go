// Package endpoint classifies request targets as authentication-flow endpoints.
//
// # Architecture boundaries
//
// This package owns URL resolution against the configured API base and the
// membership test against the auth-flow path set (login, social logins,
// refresh). The client uses the same resolution to build outbound URLs, so a
// path that is classified is the path that is sent.
//
// # What this package must NOT do
//
//   - Perform I/O or read credentials.
//   - Return errors or panic on malformed targets; classification degrades to a
//     literal prefix comparison instead.
//   - Import authclient, credential, or refresh.
package endpoint
