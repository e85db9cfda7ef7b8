package apiclient

import (
	"context"
	"fmt"
	"sync"
)

// RefreshFunc obtains a new access token.
type RefreshFunc func(ctx context.Context) (string, error)

type refreshOutcome struct {
	token string
	err   error
}

// Coordinator runs at most one refresh at a time. Callers arriving while a refresh is in
// flight wait for its outcome instead of starting their own.
//
// Invariants: the queue is non-empty only while refreshing is true, and every queued waiter
// is settled exactly once, in FIFO order, in the same critical section that resets
// refreshing to false and records the outcome against the token the refresh replaced.
type Coordinator struct {
	mu         sync.Mutex
	refreshing bool
	queue      []chan refreshOutcome

	// replacing is the token the in-flight refresh replaces; replaced and last describe the
	// most recent completed refresh.
	replacing string
	replaced  string
	last      refreshOutcome

	joined int64

	// delivered, when set, observes each queue slot as the outcome reaches it.
	delivered func(ch chan refreshOutcome)
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Do returns the token produced by the in-flight refresh, starting one with fn when idle.
// sent is the access token the rejected request carried. A caller whose token was already
// replaced by the last completed refresh gets that refresh's outcome, success or failure,
// without a new call to fn.
//
// A waiter whose ctx ends stops waiting, but its slot is still settled when the refresh
// completes.
func (c *Coordinator) Do(ctx context.Context, sent string, fn RefreshFunc) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		ch := make(chan refreshOutcome, 1)
		c.queue = append(c.queue, ch)
		c.joined++
		c.mu.Unlock()

		select {
		case out := <-ch:
			return out.token, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if sent != "" && sent == c.replaced {
		out := c.last
		c.joined++
		c.mu.Unlock()
		return out.token, out.err
	}
	c.refreshing = true
	c.replacing = sent
	c.mu.Unlock()

	return c.lead(ctx, fn)
}

// lead runs fn and settles the queue on every exit path, panics included.
func (c *Coordinator) lead(ctx context.Context, fn RefreshFunc) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			token, err = "", fmt.Errorf("%w: %v", ErrRefreshPanicked, r)
		}
		c.settle(refreshOutcome{token: token, err: err})
	}()
	return fn(ctx)
}

func (c *Coordinator) settle(out refreshOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.queue {
		ch <- out
		if c.delivered != nil {
			c.delivered(ch)
		}
	}
	c.queue = nil
	c.refreshing = false
	c.replaced = c.replacing
	c.replacing = ""
	c.last = out
}

// Refreshing reports whether a refresh is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of callers waiting on the in-flight refresh.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Joined returns how many callers have shared another caller's refresh so far.
func (c *Coordinator) Joined() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}
