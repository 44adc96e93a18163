// Package idalloc hands out message identifiers that are unique for the
// lifetime of a store and survive restarts.
package idalloc

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrExhausted is returned once the counter has reached math.MaxUint64.
var ErrExhausted = errors.New("identifier space exhausted")

// CounterStore persists the allocator's counter. StoreCounter must be durable
// when it returns.
type CounterStore interface {
	LoadCounter() (uint64, error)
	StoreCounter(value uint64) error
}

// Allocator issues strictly increasing identifiers. The persisted counter holds
// the last identifier handed out, so the first call on a fresh store returns 1.
type Allocator struct {
	mutex   sync.Mutex
	store   CounterStore
	current uint64
}

// New loads the persisted counter and returns an allocator positioned after it.
func New(store CounterStore) (*Allocator, error) {
	current, err := store.LoadCounter()
	if err != nil {
		return nil, fmt.Errorf("failed to load id counter: %w", err)
	}
	return &Allocator{store: store, current: current}, nil
}

// Next persists current+1 and returns it. On a persistence failure the
// in-memory counter is left unchanged and no identifier is issued.
func (a *Allocator) Next() (uint64, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.current == math.MaxUint64 {
		return 0, ErrExhausted
	}

	next := a.current + 1
	if err := a.store.StoreCounter(next); err != nil {
		return 0, fmt.Errorf("failed to persist id counter: %w", err)
	}
	a.current = next

	return next, nil
}

// Peek returns the last issued identifier, 0 if none.
func (a *Allocator) Peek() uint64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.current
}
