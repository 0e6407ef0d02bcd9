// Package refresh implements the single-flight credential refresh coordinator.
//
// # State machine
//
// A [Coordinator] is either idle or refreshing. The first caller that needs a
// new access token while idle becomes the leader and runs the refresh function
// exactly once. Callers arriving while a refresh is running are queued as
// waiters and receive the leader's outcome in the order they queued. The
// coordinator returns to idle, with an empty queue, before the leader gets its
// own result back, on every path including a panicking refresh function.
//
// # Architecture boundaries
//
// This package owns the refreshing flag, the waiter queue and the last issued
// token. It knows nothing about HTTP, credential storage, or which failures are
// eligible for refresh; the caller supplies a [Func] that performs the network
// round-trip and persists the result.
//
// # What this package must NOT do
//
//   - Read the credential store. Waiters use the token handed to them.
//   - Start a second refresh while one is outstanding.
//   - Leave a waiter unresolved.
package refresh
