package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authclient"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	snap := authclient.NewMetrics(authclient.MetricsConfig{Enabled: true}).Snapshot()

	seen := make(map[authclient.MetricID]bool, len(CounterDefs))
	names := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if seen[def.ID] || names[def.Name] {
			t.Fatalf("duplicate definition %+v", def)
		}
		seen[def.ID] = true
		names[def.Name] = true
		if !strings.HasPrefix(def.Name, "authclient_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %q", def.Name)
		}
		if !strings.Contains(def.Name, def.ID.String()) {
			t.Fatalf("%q does not carry metric name %q", def.Name, def.ID.String())
		}
	}
	for id := range snap.Counters {
		if !seen[id] {
			t.Fatalf("counter %s has no exporter definition", id)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatal("bounds must match the eight buckets")
	}
}

type stubState bool

func (s stubState) Refreshing() bool { return bool(s) }

func TestRefreshingValue(t *testing.T) {
	cases := []struct {
		source any
		value  int64
		ok     bool
	}{
		{source: stubState(true), value: 1, ok: true},
		{source: stubState(false), value: 0, ok: true},
		{source: struct{}{}, value: 0, ok: false},
		{source: nil, value: 0, ok: false},
	}
	for _, tc := range cases {
		v, ok := RefreshingValue(tc.source)
		if v != tc.value || ok != tc.ok {
			t.Errorf("RefreshingValue(%T) = (%d, %v), want (%d, %v)", tc.source, v, ok, tc.value, tc.ok)
		}
	}
}
