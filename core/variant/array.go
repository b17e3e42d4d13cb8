package variant

import (
	"context"
	"fmt"
)

var ErrAttributeNotAllocated = fmt.Errorf("attribute storage not allocated: %w", ErrNotFound)

// Array holds one value of T per variant slot. Reads and writes go to the
// slot of the working variant resolved through the owning Manager.
//
// An Array follows clones and removals once it is reachable from a
// MultiVariantObject registered with the manager, either directly or through
// the entity owning it.
type Array[T any] struct {
	mgr     *Manager
	initial T
	values  []T
}

// NewArray returns an array whose slots start out holding initial.
func NewArray[T any](mgr *Manager, initial T) *Array[T] {
	return &Array[T]{mgr: mgr, initial: initial}
}

// Get returns the value held for the working variant of ctx.
func (a *Array[T]) Get(ctx context.Context) (T, error) {
	locked := a.mgr.readLock()
	defer a.mgr.readUnlock(locked)

	var zero T
	index, _, err := a.mgr.resolveWorking(ctx)
	if err != nil {
		return zero, opError("get", "", err)
	}
	if index >= len(a.values) {
		return zero, opError("get", "", ErrAttributeNotAllocated)
	}
	return a.values[index], nil
}

// Set stores value for the working variant of ctx. It returns the previous
// value and the id of the variant written to, for change notification.
func (a *Array[T]) Set(ctx context.Context, value T) (T, string, error) {
	locked := a.mgr.readLock()
	defer a.mgr.readUnlock(locked)

	var zero T
	index, id, err := a.mgr.resolveWorking(ctx)
	if err != nil {
		return zero, "", opError("set", "", err)
	}
	if index >= len(a.values) {
		return zero, "", opError("set", id, ErrAttributeNotAllocated)
	}

	old := a.values[index]
	a.values[index] = value
	return old, id, nil
}

// Len is the number of allocated slots.
func (a *Array[T]) Len() int {
	locked := a.mgr.readLock()
	defer a.mgr.readUnlock(locked)
	return len(a.values)
}

// AllocateVariants sizes the array to capacity slots holding the initial value.
func (a *Array[T]) AllocateVariants(capacity int) {
	a.values = make([]T, capacity)
	for i := range a.values {
		a.values[i] = a.initial
	}
}

// VariantCloned copies sourceIndex into targetIndex.
func (a *Array[T]) VariantCloned(sourceIndex, targetIndex int) {
	a.grow(targetIndex + 1)
	if sourceIndex < len(a.values) {
		a.values[targetIndex] = a.values[sourceIndex]
	}
}

// VariantRemoved zeroes index so the old value can be collected. The slot is
// not read again until a clone writes it.
func (a *Array[T]) VariantRemoved(index int) {
	if index < len(a.values) {
		var zero T
		a.values[index] = zero
	}
}

func (a *Array[T]) grow(size int) {
	if size <= len(a.values) {
		return
	}
	if size <= cap(a.values) {
		a.values = a.values[:size]
		return
	}
	grown := make([]T, size, max(size, 2*cap(a.values)))
	copy(grown, a.values)
	a.values = grown
}
