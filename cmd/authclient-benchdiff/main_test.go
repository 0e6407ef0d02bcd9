package main

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const baselineOut = `goos: linux
goarch: amd64
pkg: github.com/MrEthical07/authclient
BenchmarkGetFreshToken-8            20000     51000 ns/op    8200 B/op      96 allocs/op
BenchmarkGetFreshToken-8            20000     49000 ns/op    8200 B/op      96 allocs/op
BenchmarkGetFreshToken-8            20000     50000 ns/op    8200 B/op      96 allocs/op
BenchmarkGetExpiredToken-8           5000    210000 ns/op
BenchmarkUntracked-8              1000000      1000 ns/op
PASS
`

func TestParseKeepsTrackedMedians(t *testing.T) {
	got, err := parse(strings.NewReader(baselineOut), tracked)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := got["BenchmarkUntracked"]; ok {
		t.Fatal("untracked benchmark kept")
	}
	want := map[string][]float64{
		"ns/op":     {51000, 49000, 50000},
		"B/op":      {8200, 8200, 8200},
		"allocs/op": {96, 96, 96},
	}
	if diff := cmp.Diff(want, got["BenchmarkGetFreshToken"]); diff != "" {
		t.Fatalf("samples mismatch (-want +got):\n%s", diff)
	}
	if m := median(got["BenchmarkGetFreshToken"]["ns/op"]); m != 50000 {
		t.Fatalf("median = %v", m)
	}
}

func TestCompare(t *testing.T) {
	gate := map[string][]string{
		"BenchmarkGetFreshToken":   {"ns/op", "allocs/op"},
		"BenchmarkGetExpiredToken": {"ns/op"},
	}
	base := samples{
		"BenchmarkGetFreshToken":   {"ns/op": {100, 100}, "allocs/op": {0}},
		"BenchmarkGetExpiredToken": {"ns/op": {1000}},
	}

	t.Run("within threshold", func(t *testing.T) {
		cand := samples{
			"BenchmarkGetFreshToken":   {"ns/op": {120, 126}, "allocs/op": {0}},
			"BenchmarkGetExpiredToken": {"ns/op": {900}},
		}
		rows, failures := compare(gate, base, cand, 0.30)
		if len(failures) != 0 {
			t.Fatalf("failures = %v", failures)
		}
		if len(rows) != 3 || rows[0].Benchmark != "BenchmarkGetExpiredToken" {
			t.Fatalf("rows = %+v", rows)
		}
	})

	t.Run("regression", func(t *testing.T) {
		cand := samples{
			"BenchmarkGetFreshToken":   {"ns/op": {200}, "allocs/op": {2}},
			"BenchmarkGetExpiredToken": {"ns/op": {1000}},
		}
		_, failures := compare(gate, base, cand, 0.30)
		if len(failures) != 2 {
			t.Fatalf("failures = %v", failures)
		}
		if !strings.Contains(failures[0], "regressed by +100.00%") || !strings.Contains(failures[1], "rose from zero") {
			t.Fatalf("failures = %v", failures)
		}
	})

	t.Run("missing samples", func(t *testing.T) {
		_, failures := compare(gate, base, samples{}, 0.30)
		if len(failures) != 3 {
			t.Fatalf("failures = %v", failures)
		}
	})
}

func TestSelectTracked(t *testing.T) {
	got := selectTracked(tracked, []string{" BenchmarkRender", "BenchmarkNope"})
	if diff := cmp.Diff(map[string][]string{"BenchmarkRender": {"allocs/op"}}, got); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestTrimProcs(t *testing.T) {
	for raw, want := range map[string]string{
		"BenchmarkRender-16":           "BenchmarkRender",
		"BenchmarkRender":              "BenchmarkRender",
		"BenchmarkGet-fresh":           "BenchmarkGet-fresh",
		"BenchmarkGetFreshToken-8-x-2": "BenchmarkGetFreshToken-8-x",
	} {
		if got := trimProcs(raw); got != want {
			t.Errorf("trimProcs(%q) = %q, want %q", raw, got, want)
		}
	}
}
