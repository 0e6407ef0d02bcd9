// Package credential holds the access/refresh credential pair behind an opaque
// key-value capability.
//
// # Architecture boundaries
//
// [Store] is the external capability: get/set/remove of string values by key.
// [MemoryStore], [RedisStore] and [FileStore] are the shipped backends. [Vault]
// is the only writer of the credential pair; the client hands it to login,
// refresh and logout paths and nowhere else.
//
// # What this package must NOT do
//
//   - Perform network calls other than the configured Redis backend.
//   - Decide when credentials are refreshed or cleared.
//   - Import authclient, endpoint, or refresh.
package credential
