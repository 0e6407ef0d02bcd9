// Package otel exports authclient counters through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter per client counter and
// an Int64ObservableGauge per refresh-latency bucket, plus the
// authclient_refresh_in_flight gauge for a live client. One callback reads
// [authclient.Client.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate client state.
package otel
