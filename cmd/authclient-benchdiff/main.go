// Command authclient-benchdiff compares two `go test -bench` outputs and fails
// when a tracked benchmark of the client hot path regresses past a threshold.
//
//	go test -run '^$' -bench . -count 5 ./... > new.txt
//	authclient-benchdiff -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

// tracked lists the benchmarks and units gated by default.
var tracked = map[string][]string{
	"BenchmarkGetFreshToken":         {"ns/op", "allocs/op"},
	"BenchmarkGetFreshTokenParallel": {"ns/op"},
	"BenchmarkGetExpiredToken":       {"ns/op"},
	"BenchmarkMetricsIncParallel":    {"ns/op", "allocs/op"},
	"BenchmarkAcquireFanOut/8":       {"ns/op"},
	"BenchmarkRender":                {"allocs/op"},
}

// samples maps benchmark name to unit to the values seen across -count runs.
type samples map[string]map[string][]float64

type row struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
	Delta     float64
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
		only          string
	)

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.StringVar(&only, "only", "", "comma-separated benchmark names to gate instead of the default set")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	gate := tracked
	if only != "" {
		gate = selectTracked(tracked, strings.Split(only, ","))
		if len(gate) == 0 {
			fmt.Fprintf(os.Stderr, "-only matched no tracked benchmark: %s\n", only)
			os.Exit(2)
		}
	}

	baseline, err := parseFile(baselinePath, gate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseFile(candidatePath, gate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	rows, failures := compare(gate, baseline, candidate, threshold)
	fmt.Println("benchmark unit baseline candidate delta")
	for _, r := range rows {
		fmt.Printf("%s %s %.3f %.3f %+0.2f%%\n", r.Benchmark, r.Unit, r.Baseline, r.Candidate, r.Delta*100)
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		os.Exit(1)
	}
}

func selectTracked(all map[string][]string, names []string) map[string][]string {
	out := make(map[string][]string)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if units, ok := all[n]; ok {
			out[n] = units
		}
	}
	return out
}

// compare returns one row per benchmark and unit, sorted by name, plus a
// failure line for every missing sample set or regression above threshold.
func compare(gate map[string][]string, baseline, candidate samples, threshold float64) ([]row, []string) {
	names := make([]string, 0, len(gate))
	for n := range gate {
		names = append(names, n)
	}
	slices.Sort(names)

	var (
		rows     []row
		failures []string
	)
	for _, name := range names {
		for _, unit := range gate[name] {
			base, cand := baseline[name][unit], candidate[name][unit]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}

			r := row{Benchmark: name, Unit: unit, Baseline: median(base), Candidate: median(cand)}
			if r.Baseline == 0 {
				rows = append(rows, r)
				if r.Candidate > 0 {
					failures = append(failures, fmt.Sprintf("%s %s rose from zero to %.3f", name, unit, r.Candidate))
				}
				continue
			}
			r.Delta = (r.Candidate - r.Baseline) / r.Baseline
			rows = append(rows, r)
			if r.Delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, r.Delta*100, threshold*100))
			}
		}
	}
	return rows, failures
}

func parseFile(path string, gate map[string][]string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f, gate)
}

// parse reads benchmark lines of the form
//
//	BenchmarkName-8   1000000   1043 ns/op   312 B/op   4 allocs/op
//
// keeping only benchmarks present in gate.
func parse(r io.Reader, gate map[string][]string) (samples, error) {
	out := samples{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := trimProcs(fields[0])
		if _, ok := gate[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}

		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, sc.Err()
}

// trimProcs drops the -GOMAXPROCS suffix go test appends to names.
func trimProcs(raw string) string {
	if i := strings.LastIndexByte(raw, '-'); i > 0 {
		if _, err := strconv.Atoi(raw[i+1:]); err == nil {
			return raw[:i]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
