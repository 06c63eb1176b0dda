// Package broadcast provides a latest-value publication primitive. Readers
// always observe the most recently published value; intermediate values may be
// skipped by a slow reader.
package broadcast

import (
	"context"
	"sync"
)

// Value holds the current value of type T and wakes every observer on change.
// It is safe for concurrent use. A single writer is expected but not required.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	version uint64
	changed chan struct{}
}

// NewValue creates a Value holding initial at version 0.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		changed: make(chan struct{}),
	}
}

// Publish replaces the current value and wakes all observers.
func (v *Value[T]) Publish(next T) {
	v.mu.Lock()
	v.current = next
	v.version++
	ch := v.changed
	v.changed = make(chan struct{})
	v.mu.Unlock()
	close(ch)
}

// Load returns the current value, its version, and a channel that is closed
// on the next Publish.
func (v *Value[T]) Load() (T, uint64, <-chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.version, v.changed
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// WaitNewer blocks until a value newer than version is published, or ctx is
// done.
func (v *Value[T]) WaitNewer(ctx context.Context, version uint64) (T, uint64, error) {
	for {
		cur, ver, changed := v.Load()
		if ver > version {
			return cur, ver, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, version, ctx.Err()
		case <-changed:
		}
	}
}
