package core

import (
	"fmt"
	"sync"
)

// InferenceBudget enforces a maximum number of reasoning calls per run.
type InferenceBudget struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewInferenceBudget creates a budget allowing max calls.
// If max == 0, unlimited calls are allowed.
func NewInferenceBudget(max int) *InferenceBudget {
	return &InferenceBudget{max: max}
}

// Acquire consumes one call and returns ErrBudgetExhausted once the limit is
// exceeded.
func (b *InferenceBudget) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.count >= b.max {
		return fmt.Errorf("%w: max %d calls", ErrBudgetExhausted, b.max)
	}
	b.count++

	return nil
}

// Count returns the number of calls made.
func (b *InferenceBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

// Remaining returns how many calls are left before hitting the limit.
func (b *InferenceBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max == 0 {
		return -1 // unlimited
	}

	return b.max - b.count
}
