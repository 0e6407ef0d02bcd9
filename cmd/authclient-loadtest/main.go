package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/internal/authtest"
	"github.com/MrEthical07/authclient/internal/rate"
	"github.com/MrEthical07/authclient/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		clients     = flag.Int("clients", 8, "number of independent logged-in clients")
		concurrency = flag.Int("concurrency", 64, "concurrent requests per client")
		waves       = flag.Int("waves", 20, "expiry waves; every wave expires all access tokens first")
		perWave     = flag.Int("per-wave", 256, "requests per client per wave")
		refreshLag  = flag.Duration("refresh-delay", 20*time.Millisecond, "artificial refresh endpoint latency")
		redisAddr   = flag.String("redis-addr", "", "redis for server-side throttling; if empty, REDIS_ADDR env or miniredis is used")
		noThrottle  = flag.Bool("no-throttle", false, "disable server-side refresh throttling")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *waves <= 0 || *perWave <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, waves, and per-wave must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	opts := authtest.Options{Users: make(map[string]string, *clients)}
	for i := 0; i < *clients; i++ {
		opts.Users[email(i)] = "load-test-password"
	}

	if !*noThrottle {
		rdb, cleanup, err := openRedis(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		opts.Redis = rdb
		// One refresh per wave per session is the expected load.
		opts.RateLimits = rate.Config{Prefix: "loadtest", MaxRefreshes: *waves + 1, RefreshWindow: time.Hour}
	}

	srv := authtest.Start(opts)
	defer srv.Close()
	srv.SetRefreshDelay(*refreshLag)
	fmt.Printf("fake api at %s\n", srv.BaseURL())

	pool := make([]*authclient.Client, *clients)
	for i := range pool {
		c, err := authclient.New().
			WithBaseURL(srv.BaseURL()).
			WithLogger(logger.Discard()).
			Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build client: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		if _, err := c.Login(ctx, map[string]string{"email": email(i), "password": "load-test-password"}); err != nil {
			fmt.Fprintf(os.Stderr, "login %s: %v\n", email(i), err)
			os.Exit(1)
		}
		pool[i] = c
	}

	var all []time.Duration
	var failures int64
	start := time.Now()
	for w := 0; w < *waves; w++ {
		srv.ExpireAll()
		lat, failed := runWave(ctx, pool, *perWave, *concurrency)
		all = append(all, lat...)
		failures += failed
	}
	stats := computeStats(time.Since(start), all, failures)

	var snap struct{ started, waiters, reused, replays uint64 }
	for _, c := range pool {
		m := c.Metrics()
		snap.started += m.Value(authclient.MetricRefreshStarted)
		snap.waiters += m.Value(authclient.MetricRefreshWaiter)
		snap.reused += m.Value(authclient.MetricRefreshReused)
		snap.replays += m.Value(authclient.MetricReplaySuccess)
	}

	fmt.Println("---- results ----")
	printStats("requests", stats)
	fmt.Printf("refresh: server_calls=%d client_started=%d expected=%d waiters=%d reused=%d replays=%d\n",
		srv.RefreshCalls(), snap.started, *clients**waves, snap.waiters, snap.reused, snap.replays)
	if srv.RefreshCalls() != *clients**waves {
		fmt.Fprintln(os.Stderr, "refresh calls differ from one per client per wave")
		os.Exit(1)
	}
}

func email(i int) string {
	return fmt.Sprintf("buyer-%d@example.com", i)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runWave fires perClient requests at every client, concurrency at a time.
func runWave(ctx context.Context, pool []*authclient.Client, perClient, concurrency int) ([]time.Duration, int64) {
	var (
		mu        sync.Mutex
		failures  int64
		latencies = make([]time.Duration, 0, perClient*len(pool))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range pool {
		var cursor int64
		for w := 0; w < concurrency; w++ {
			g.Go(func() error {
				for {
					if int(atomic.AddInt64(&cursor, 1)) > perClient {
						return nil
					}
					t0 := time.Now()
					_, err := c.Get(gctx, "/me")
					d := time.Since(t0)
					if err != nil {
						atomic.AddInt64(&failures, 1)
					}
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				}
			})
		}
	}
	_ = g.Wait()
	return latencies, failures
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
