// Package authclient is an authenticated HTTP client for the marketplace REST
// API. It attaches bearer credentials, detects access-token expiry, performs a
// single de-duplicated refresh however many requests are in flight, and replays
// every affected request with the new token.
//
// Requests are safe to issue from many goroutines after [Builder.Build].
//
// # Architecture boundaries
//
// authclient is the public surface: [Client], [Builder], [Config], [Request],
// [Response] and the normalized [Error]. Credential persistence lives in
// credential, auth-path classification in endpoint, and the single-flight state
// machine in refresh. This package wires them into the request pipeline:
//
//	Do -> attach -> network -> classify failure -> refresh.Coordinator -> replay
//
// # Failure contract
//
// Every failure returned by a Client method is an [*Error]. Only a 401 whose
// body code equals Auth.ExpiredCode triggers a refresh, and each logical request
// is replayed at most once. When the refresh call itself fails the stored
// credentials are cleared and every queued request receives the same error
// (Kind == KindRefresh).
//
// # What this package must NOT do
//
//   - Attach credentials to, or refresh after, auth-flow requests.
//   - Write credentials anywhere except login, refresh and logout paths.
//   - Mutate a caller's [Request].
package authclient
