package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authclient"
)

type fakeSource struct {
	snapshot authclient.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authclient.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authclient.MetricsSnapshot{
			Counters:   map[authclient.MetricID]uint64{},
			Histograms: map[authclient.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authclient.MetricsSnapshot{
			Counters: map[authclient.MetricID]uint64{
				authclient.MetricRefreshStarted: 7,
				authclient.MetricRefreshWaiter:  21,
			},
			Histograms: map[authclient.MetricID][]uint64{
				authclient.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"authclient_refresh_started_total 7",
		"authclient_refresh_waiter_total 21",
		"authclient_login_success_total 0",
		"authclient_refresh_latency_seconds_bucket{le=\"0.005\"} 1",
		"authclient_refresh_latency_seconds_bucket{le=\"+Inf\"} 36",
		"authclient_refresh_latency_seconds_count 36",
		"authclient_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if out != exp.Render() {
		t.Fatal("render must be deterministic")
	}
}

func TestRenderFromLiveClient(t *testing.T) {
	c, err := authclient.New().WithBaseURL("http://127.0.0.1:1/api").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()
	c.Metrics().Inc(authclient.MetricLogout)

	out := NewPrometheusExporter(c).Render()
	if !strings.Contains(out, "authclient_logout_total 1") {
		t.Fatalf("expected live counter, got:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE authclient_refresh_in_flight gauge\nauthclient_refresh_in_flight 0\n") {
		t.Fatalf("expected idle refresh gauge, got:\n%s", out)
	}
}

type refreshingSource struct {
	fakeSource
	refreshing bool
}

func (r refreshingSource) Refreshing() bool { return r.refreshing }

func TestRenderRefreshInFlightGauge(t *testing.T) {
	snap := authclient.MetricsSnapshot{
		Counters:   map[authclient.MetricID]uint64{authclient.MetricRefreshStarted: 1},
		Histograms: map[authclient.MetricID][]uint64{},
	}

	plain := NewPrometheusExporterFromSource(fakeSource{snapshot: snap}).Render()
	if strings.Contains(plain, "authclient_refresh_in_flight") {
		t.Fatalf("gauge rendered for a source without refresh state:\n%s", plain)
	}

	busy := NewPrometheusExporterFromSource(refreshingSource{fakeSource: fakeSource{snapshot: snap}, refreshing: true}).Render()
	if !strings.Contains(busy, "authclient_refresh_in_flight 1\n") {
		t.Fatalf("expected in-flight gauge of 1, got:\n%s", busy)
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("a\\b\nc"); got != `a\\b\nc` {
		t.Fatalf("escapeHelp = %q", got)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authclient.MetricsSnapshot{
			Counters:   map[authclient.MetricID]uint64{authclient.MetricLoginSuccess: 1},
			Histograms: map[authclient.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authclient.MetricsSnapshot{
			Counters: map[authclient.MetricID]uint64{
				authclient.MetricRequestSuccess:  100000,
				authclient.MetricRequestFailure:  40,
				authclient.MetricRefreshEligible: 800,
				authclient.MetricRefreshStarted:  10,
				authclient.MetricRefreshWaiter:   790,
				authclient.MetricReplaySuccess:   800,
				authclient.MetricLoginSuccess:    3,
			},
			Histograms: map[authclient.MetricID][]uint64{
				authclient.MetricRefreshLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
