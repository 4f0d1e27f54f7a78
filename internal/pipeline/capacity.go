package pipeline

import (
	"context"

	"videodubber/internal/synth"
)

// Capacity is the worker budget toward external collaborators shared by all runs
type Capacity struct {
	slots chan struct{}
}

var _ synth.Limiter = (*Capacity)(nil)

// NewCapacity creates a new Capacity instance with n slots (at least one)
func NewCapacity(n int) *Capacity {
	if n < 1 {
		n = 1
	}
	return &Capacity{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx ends
func (c *Capacity) Acquire(ctx context.Context) error {
	select {
	case c.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire
func (c *Capacity) Release() {
	select {
	case <-c.slots:
	default:
	}
}

// InUse returns the number of slots currently held
func (c *Capacity) InUse() int {
	return len(c.slots)
}

// Size returns the total number of slots
func (c *Capacity) Size() int {
	return cap(c.slots)
}
