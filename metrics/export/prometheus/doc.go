// Package prometheus renders authclient metrics in Prometheus text exposition
// format.
//
// Counter names are authclient_*_total; the single histogram is
// authclient_refresh_latency_seconds. A live client also gets the
// authclient_refresh_in_flight gauge.
//
// # What this package must NOT do
//
//   - Register anything in a global registry. Callers mount the Handler.
//   - Mutate client state.
package prometheus
