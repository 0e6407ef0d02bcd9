package refresh

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrAborted is delivered to waiters when the refresh function panics.
	ErrAborted = errors.New("refresh aborted")
	// ErrEmptyToken is returned when the refresh function reports success without a token.
	ErrEmptyToken = errors.New("refresh returned empty access token")
)

// Func performs one refresh round-trip and returns the new access token.
type Func func(ctx context.Context) (string, error)

// Role tells a caller how its token was obtained.
type Role uint8

const (
	// RoleLeader ran the refresh function.
	RoleLeader Role = iota + 1
	// RoleWaiter queued behind an outstanding refresh.
	RoleWaiter
	// RoleReuse got the token issued by a refresh that finished before it asked.
	RoleReuse
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "leader"
	case RoleWaiter:
		return "waiter"
	case RoleReuse:
		return "reuse"
	default:
		return "unknown"
	}
}

type result struct {
	token string
	err   error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds each refresh round-trip. Zero means no bound beyond the
// transport's own timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Coordinator de-duplicates concurrent refreshes.
//
// One Coordinator serves one credential pair; it is safe for concurrent use.
type Coordinator struct {
	refresh Func
	timeout time.Duration

	mu         sync.Mutex
	refreshing bool
	waiters    []chan result
	issued     string
	flights    uint64

	// delivered, when set, observes each waiter right after its result is sent.
	delivered func(chan result)
}

// New returns an idle coordinator around fn.
func New(fn Func, opts ...Option) *Coordinator {
	c := &Coordinator{refresh: fn}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire returns an access token newer than stale, the token the caller's
// failed request was sent with.
//
// If a refresh is outstanding the caller waits for it. If the last refresh
// already issued a token different from stale, that token is returned without
// a round-trip. Otherwise the caller leads a new refresh.
//
// The refresh itself is detached from ctx cancellation so a leader that goes
// away cannot fail the waiters; ctx still bounds how long this caller waits.
func (c *Coordinator) Acquire(ctx context.Context, stale string) (string, Role, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan result, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()

		select {
		case r := <-ch:
			return r.token, RoleWaiter, r.err
		case <-ctx.Done():
			return "", RoleWaiter, ctx.Err()
		}
	}
	if c.issued != "" && c.issued != stale {
		token := c.issued
		c.mu.Unlock()
		return token, RoleReuse, nil
	}
	c.refreshing = true
	c.flights++
	c.mu.Unlock()

	token, err := c.lead(ctx)
	return token, RoleLeader, err
}

func (c *Coordinator) lead(ctx context.Context) (token string, err error) {
	done := false
	defer func() {
		if !done {
			token, err = "", ErrAborted
		}
		c.finish(token, err)
	}()

	rctx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, c.timeout)
		defer cancel()
	}

	token, err = c.refresh(rctx)
	if err == nil && token == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		token = ""
	}
	done = true
	return token, err
}

// finish returns the coordinator to idle and resolves every queued waiter in
// enqueue order. Waiter channels are buffered, so delivery never blocks.
func (c *Coordinator) finish(token string, err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.issued = token
	c.mu.Unlock()

	r := result{token: token, err: err}
	for _, w := range waiters {
		w <- r
		if c.delivered != nil {
			c.delivered(w)
		}
	}
}

// Reset forgets the last issued token. Call it whenever the credential pair
// is replaced or cleared outside of a refresh (login, logout).
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.issued = ""
	c.mu.Unlock()
}

// Refreshing reports whether a refresh is outstanding.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending reports the number of queued waiters.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Flights reports how many refresh round-trips have been started.
func (c *Coordinator) Flights() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flights
}
