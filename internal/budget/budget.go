// Package budget enforces the per-session cap on outbound provider calls.
package budget

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExhausted is returned by Reserve once every allowed call has been spent.
var ErrBudgetExhausted = errors.New("api call budget exhausted")

// Counter is a monotonic call counter shared by every gateway dispatch in a
// session. It is safe for concurrent use; the count never decreases.
type Counter struct {
	mu    sync.Mutex
	used  int
	limit int
}

// New returns a counter with the given limit that has already spent used calls.
func New(limit, used int) (*Counter, error) {
	if limit < 1 {
		return nil, fmt.Errorf("budget limit must be at least 1, got %d", limit)
	}
	if used < 0 || used > limit {
		return nil, fmt.Errorf("budget used %d out of range [0, %d]", used, limit)
	}
	return &Counter{used: used, limit: limit}, nil
}

// Reserve charges one call against the budget. It must be called immediately
// before a network call is made, and fails without charging when the budget
// is already spent.
func (c *Counter) Reserve() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.used >= c.limit {
		return ErrBudgetExhausted
	}
	c.used++
	return nil
}

// Used returns the number of calls charged so far.
func (c *Counter) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Limit returns the configured cap.
func (c *Counter) Limit() int {
	return c.limit
}

// Remaining returns how many calls may still be made.
func (c *Counter) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit - c.used
}

// Exhausted reports whether no further calls may be made.
func (c *Counter) Exhausted() bool {
	return c.Remaining() <= 0
}
