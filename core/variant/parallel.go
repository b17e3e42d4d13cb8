package variant

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunOnVariants runs fn once per variant id, concurrently, each call pinned
// to its variant through its own worker slot. At most limit calls run at a
// time; limit <= 0 means no limit. The first error cancels the context passed
// to the remaining calls and is returned.
//
// Multi-thread access must be enabled on m. Every id must be distinct: a
// repeated id fails with ErrDuplicateTarget before any worker starts.
func RunOnVariants(ctx context.Context, m *Manager, ids []string, limit int, fn func(ctx context.Context, id string) error) error {
	if !m.MultiThreadAccessEnabled() {
		return opError("run", "", ErrMultiThreadAccessDisabled)
	}

	if err := validateIDs("run", ids); err != nil {
		return err
	}
	for _, id := range ids {
		if !m.Exists(id) {
			return opError("run", id, ErrVariantNotFound)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, id := range ids {
		g.Go(func() error {
			workerCtx := WithWorkerSlot(gCtx)
			if err := m.SetWorkingVariant(workerCtx, id); err != nil {
				return err
			}
			return fn(workerCtx, id)
		})
	}

	return g.Wait()
}
