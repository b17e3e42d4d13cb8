package variant

import (
	"context"
	"sync/atomic"
)

// binding pins a slot index at the generation it had when it was taken.
// A generation mismatch means the variant was removed since.
type binding struct {
	index      int
	generation uint64
}

// workerSlot is the per-worker working variant cell used in multi-thread mode.
// A nil binding means the worker has not chosen a variant yet.
type workerSlot struct {
	current atomic.Pointer[binding]
}

type workerSlotKey struct{}

// WithWorkerSlot returns a context carrying a fresh, unset working variant
// slot. Each goroutine working on its own variant in multi-thread mode should
// derive its own context with WithWorkerSlot before calling SetWorkingVariant.
// A slot already present on parent is shadowed, not shared.
func WithWorkerSlot(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, workerSlotKey{}, &workerSlot{})
}

// HasWorkerSlot reports whether ctx carries a working variant slot.
func HasWorkerSlot(ctx context.Context) bool {
	return slotFrom(ctx) != nil
}

func slotFrom(ctx context.Context) *workerSlot {
	if ctx == nil {
		return nil
	}
	slot, _ := ctx.Value(workerSlotKey{}).(*workerSlot)
	return slot
}

func withBoundSlot(parent context.Context, b *binding) context.Context {
	ctx := WithWorkerSlot(parent)
	if b != nil {
		slotFrom(ctx).current.Store(b)
	}
	return ctx
}
