package internaldefs

import (
	"github.com/MrEthical07/authclient"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authclient.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events dropped by the audit dispatcher.
const (
	AuditDroppedName = "authclient_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// RefreshInFlightName is a 0/1 gauge set while the client has a refresh
// outstanding. Exporters emit it only for sources that report refresh state.
const (
	RefreshInFlightName = "authclient_refresh_in_flight"
	RefreshInFlightHelp = "1 while a credential refresh is outstanding, 0 otherwise."
)

// RefreshState is implemented by sources that can report an outstanding
// refresh, such as *authclient.Client.
type RefreshState interface {
	Refreshing() bool
}

// RefreshingValue converts state into the gauge value; sources without
// refresh state report ok=false.
func RefreshingValue(source any) (value int64, ok bool) {
	rs, ok := source.(RefreshState)
	if !ok {
		return 0, false
	}
	if rs.Refreshing() {
		return 1, true
	}
	return 0, true
}

// CounterDefs lists every counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: authclient.MetricRequestSuccess, Name: "authclient_request_success_total", Help: "Requests that ended with a 2xx response, replayed or not."},
	{ID: authclient.MetricRequestFailure, Name: "authclient_request_failure_total", Help: "Requests surfaced to the caller as an error."},
	{ID: authclient.MetricAuthFlowFailure, Name: "authclient_auth_flow_failure_total", Help: "Failed requests to login, social login or refresh paths."},
	{ID: authclient.MetricRefreshEligible, Name: "authclient_refresh_eligible_total", Help: "Failures classified as an expired access token."},
	{ID: authclient.MetricRefreshStarted, Name: "authclient_refresh_started_total", Help: "Refresh calls sent to the server."},
	{ID: authclient.MetricRefreshSuccess, Name: "authclient_refresh_success_total", Help: "Refresh calls that produced a new access token."},
	{ID: authclient.MetricRefreshFailure, Name: "authclient_refresh_failure_total", Help: "Refresh calls that failed."},
	{ID: authclient.MetricRefreshWaiter, Name: "authclient_refresh_waiter_total", Help: "Requests queued behind an outstanding refresh."},
	{ID: authclient.MetricRefreshReused, Name: "authclient_refresh_reused_total", Help: "Late expiries answered with an already refreshed token."},
	{ID: authclient.MetricReplaySuccess, Name: "authclient_replay_success_total", Help: "Replays after refresh that succeeded."},
	{ID: authclient.MetricReplayFailure, Name: "authclient_replay_failure_total", Help: "Replays after refresh that failed."},
	{ID: authclient.MetricRetryExhausted, Name: "authclient_retry_exhausted_total", Help: "Expired-token failures surfaced because the request was already replayed."},
	{ID: authclient.MetricCredentialsCleared, Name: "authclient_credentials_cleared_total", Help: "Credential clears caused by refresh failure."},
	{ID: authclient.MetricLoginSuccess, Name: "authclient_login_success_total", Help: "Successful logins."},
	{ID: authclient.MetricLoginFailure, Name: "authclient_login_failure_total", Help: "Failed logins."},
	{ID: authclient.MetricLogout, Name: "authclient_logout_total", Help: "Logouts."},
}

// HistogramDefs lists every histogram.
var HistogramDefs = []HistogramDef{
	{ID: authclient.MetricRefreshLatency, Name: "authclient_refresh_latency_seconds", Help: "Refresh call latency histogram."},
}

// HistogramBounds are the upper bounds of the eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds made safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
