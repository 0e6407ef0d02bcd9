package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// gatedRefresh blocks every call until release is closed and counts calls.
type gatedRefresh struct {
	calls   atomic.Int32
	release chan struct{}
	token   string
	err     error
}

func newGatedRefresh(token string, err error) *gatedRefresh {
	return &gatedRefresh{release: make(chan struct{}), token: token, err: err}
}

func (g *gatedRefresh) fn(ctx context.Context) (string, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.token, g.err
}

func TestAcquireSingleFlight(t *testing.T) {
	g := newGatedRefresh("T2", nil)
	c := New(g.fn)

	const n = 16
	tokens := make([]string, n)
	roles := make([]Role, n)

	var eg errgroup.Group
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			tok, role, err := c.Acquire(context.Background(), "T1")
			tokens[i], roles[i] = tok, role
			return err
		})
	}

	waitFor(t, "all callers to queue", func() bool { return c.Refreshing() && c.Pending() == n-1 })
	close(g.release)

	if err := eg.Wait(); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if got := g.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
	if got := c.Flights(); got != 1 {
		t.Fatalf("expected one flight, got %d", got)
	}

	leaders := 0
	for i := 0; i < n; i++ {
		if tokens[i] != "T2" {
			t.Fatalf("caller %d got token %q, want T2", i, tokens[i])
		}
		if roles[i] == RoleLeader {
			leaders++
		}
	}
	if leaders != 1 {
		t.Fatalf("expected one leader, got %d", leaders)
	}
	if c.Refreshing() || c.Pending() != 0 {
		t.Fatalf("expected idle coordinator with empty queue, refreshing=%v pending=%d", c.Refreshing(), c.Pending())
	}
}

func TestAcquireDrainsQueueBeforeLeaderReturns(t *testing.T) {
	g := newGatedRefresh("T2", nil)
	c := New(g.fn)

	leaderDone := make(chan error, 1)
	go func() {
		_, _, err := c.Acquire(context.Background(), "T1")
		leaderDone <- err
	}()
	waitFor(t, "leader to start", func() bool { return g.calls.Load() == 1 })

	queued := []chan result{make(chan result, 1), make(chan result, 1), make(chan result, 1)}
	c.mu.Lock()
	c.waiters = append(c.waiters, queued...)
	c.mu.Unlock()

	close(g.release)
	if err := <-leaderDone; err != nil {
		t.Fatalf("leader failed: %v", err)
	}

	for i, ch := range queued {
		select {
		case r := <-ch:
			if r.token != "T2" || r.err != nil {
				t.Fatalf("waiter %d resolved with (%q, %v)", i, r.token, r.err)
			}
		default:
			t.Fatalf("waiter %d unresolved when leader returned", i)
		}
	}
}

func TestAcquireResolvesWaitersInEnqueueOrder(t *testing.T) {
	g := newGatedRefresh("T2", nil)
	c := New(g.fn)

	var (
		mu        sync.Mutex
		delivered []chan result
	)
	c.delivered = func(ch chan result) {
		mu.Lock()
		delivered = append(delivered, ch)
		mu.Unlock()
	}

	var eg errgroup.Group
	eg.Go(func() error {
		_, _, err := c.Acquire(context.Background(), "T1")
		return err
	})
	waitFor(t, "leader to start", func() bool { return g.calls.Load() == 1 })

	const n = 6
	var enqueued []chan result
	for i := 1; i <= n; i++ {
		eg.Go(func() error {
			_, _, err := c.Acquire(context.Background(), "T1")
			return err
		})
		waitFor(t, "waiter to queue", func() bool { return c.Pending() == i })
		c.mu.Lock()
		enqueued = append(enqueued, c.waiters[i-1])
		c.mu.Unlock()
	}

	close(g.release)
	if err := eg.Wait(); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != n {
		t.Fatalf("expected %d deliveries, got %d", n, len(delivered))
	}
	for i := range enqueued {
		if delivered[i] != enqueued[i] {
			t.Fatalf("delivery %d went to waiter queued at a different position", i)
		}
	}
}

func TestAcquireFailureRejectsEveryWaiter(t *testing.T) {
	refreshErr := errors.New("refresh rejected")
	g := newGatedRefresh("", refreshErr)
	c := New(g.fn)

	const n = 8
	var failed atomic.Int32
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			_, _, err := c.Acquire(context.Background(), "T1")
			if errors.Is(err, refreshErr) {
				failed.Add(1)
				return nil
			}
			return err
		})
	}

	waitFor(t, "callers to queue", func() bool { return c.Pending() == n-1 })
	close(g.release)

	if err := eg.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := failed.Load(); got != n {
		t.Fatalf("expected %d rejected callers, got %d", n, got)
	}
	if g.calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", g.calls.Load())
	}

	// A failed refresh issues nothing, so the next caller leads again.
	_, role, _ := c.Acquire(context.Background(), "T1")
	if role != RoleLeader {
		t.Fatalf("expected new leader after failure, got %s", role)
	}
}

func TestAcquireReusesIssuedToken(t *testing.T) {
	var calls atomic.Int32
	c := New(func(context.Context) (string, error) {
		calls.Add(1)
		return "T2", nil
	})

	if tok, role, err := c.Acquire(context.Background(), "T1"); err != nil || tok != "T2" || role != RoleLeader {
		t.Fatalf("first acquire = (%q, %s, %v)", tok, role, err)
	}

	// Request sent with T1 failed after T2 was issued: reuse, no round-trip.
	tok, role, err := c.Acquire(context.Background(), "T1")
	if err != nil || tok != "T2" || role != RoleReuse {
		t.Fatalf("late acquire = (%q, %s, %v), want (T2, reuse, nil)", tok, role, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", calls.Load())
	}

	// Request sent with T2 itself failed: T2 is stale, refresh again.
	if _, role, _ := c.Acquire(context.Background(), "T2"); role != RoleLeader {
		t.Fatalf("expected leader when issued token is stale, got %s", role)
	}

	c.Reset()
	if _, role, _ := c.Acquire(context.Background(), "T1"); role != RoleLeader {
		t.Fatalf("expected leader after reset, got %s", role)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected three refresh calls, got %d", calls.Load())
	}
}

func TestAcquireRefreshDetachedFromLeaderCancel(t *testing.T) {
	c := New(func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "T2", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tok, _, err := c.Acquire(ctx, "T1")
	if err != nil || tok != "T2" {
		t.Fatalf("expected detached refresh to succeed, got (%q, %v)", tok, err)
	}
}

func TestAcquireTimeout(t *testing.T) {
	g := newGatedRefresh("T2", nil)
	c := New(g.fn, WithTimeout(20*time.Millisecond))

	_, _, err := c.Acquire(context.Background(), "T1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if c.Refreshing() {
		t.Fatal("coordinator stuck refreshing after timeout")
	}
}

func TestAcquireWaiterContextCancel(t *testing.T) {
	g := newGatedRefresh("T2", nil)
	c := New(g.fn)

	go func() { _, _, _ = c.Acquire(context.Background(), "T1") }()
	waitFor(t, "leader to start", func() bool { return g.calls.Load() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := c.Acquire(ctx, "T1")
		errc <- err
	}()
	waitFor(t, "waiter to queue", func() bool { return c.Pending() == 1 })
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled waiter, got %v", err)
	}

	close(g.release)
	waitFor(t, "coordinator to go idle", func() bool { return !c.Refreshing() })
	if c.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", c.Pending())
	}
}

func TestAcquireEmptyToken(t *testing.T) {
	c := New(func(context.Context) (string, error) { return "", nil })
	if _, _, err := c.Acquire(context.Background(), ""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestAcquirePanicResolvesWaiters(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	c := New(func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		panic("boom")
	})

	panicked := make(chan any, 1)
	go func() {
		defer func() { panicked <- recover() }()
		_, _, _ = c.Acquire(context.Background(), "T1")
	}()
	waitFor(t, "leader to start", func() bool { return calls.Load() == 1 })

	errc := make(chan error, 1)
	go func() {
		_, _, err := c.Acquire(context.Background(), "T1")
		errc <- err
	}()
	waitFor(t, "waiter to queue", func() bool { return c.Pending() == 1 })
	close(release)

	if p := <-panicked; p == nil {
		t.Fatal("expected leader panic to propagate")
	}
	if err := <-errc; !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if c.Refreshing() {
		t.Fatal("coordinator stuck refreshing after panic")
	}
}

func TestRoleString(t *testing.T) {
	for role, want := range map[Role]string{RoleLeader: "leader", RoleWaiter: "waiter", RoleReuse: "reuse", 0: "unknown"} {
		if got := role.String(); got != want {
			t.Fatalf("Role(%d).String() = %q, want %q", role, got, want)
		}
	}
}
