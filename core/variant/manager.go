// Package variant lets a shared object graph hold many independent states.
//
// A Manager maps variant ids to dense slot indexes. Mutable attributes are
// stored in slot-indexed arrays (see Array), so switching the working variant
// only changes which slot accessors read and write. Cloning a variant copies
// every registered array's source slot into a newly allocated slot; removing
// a variant frees its slot for reuse.
//
// By default a single working variant is shared by every caller and attribute
// access takes no lock at all. EnableMultiThreadAccess switches, once and for
// good, to per-worker working variants carried by context.Context (see
// WithWorkerSlot). In that mode attribute access takes the structural read
// lock while clone, remove and registration take the write lock.
package variant

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

// InitialVariantID is the id given to the first variant of a network.
const InitialVariantID = "InitialState"

// MultiVariantObject is implemented by anything holding per-variant storage.
// The manager calls these hooks with its structural lock held.
type MultiVariantObject interface {
	// AllocateVariants sizes storage for capacity slots, every live slot
	// holding the object's initial value.
	AllocateVariants(capacity int)
	// VariantCloned copies the state of sourceIndex into targetIndex,
	// growing storage when targetIndex is beyond the current size.
	VariantCloned(sourceIndex, targetIndex int)
	// VariantRemoved releases the state held at index.
	VariantRemoved(index int)
}

// Observer receives variant lifecycle notifications by id. Notifications
// are delivered after the structural lock is released, so an observer may
// query the manager. They are serialized: an observer sees clones and
// removals in the order they were applied. An observer must not clone or
// remove variants itself.
type Observer interface {
	VariantCreated(sourceID, targetID string)
	VariantRemoved(id string)
}

type Manager struct {
	// notifyMu is taken before mu by clone and remove and held until their
	// observers are notified.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	initialID   string
	indexes     map[string]int
	ids         []string // slot -> id, "" when the slot is free
	generations []uint64 // bumped every time a slot is freed
	free        []int    // sorted ascending

	objects   map[MultiVariantObject]struct{}
	observers []Observer

	multiThread atomic.Bool
	current     atomic.Pointer[binding]

	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager returns an uninitialized manager. Call Create before use.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		indexes: make(map[string]int),
		objects: make(map[MultiVariantObject]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create establishes the initial variant at slot 0 and makes it the working
// variant. It can only be called once.
func (m *Manager) Create(initialID string) error {
	if initialID == "" {
		return opError("create", initialID, ErrEmptyVariantID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return opError("create", initialID, ErrAlreadyInitialized)
	}

	m.initialized = true
	m.initialID = initialID
	m.indexes[initialID] = 0
	m.ids = []string{initialID}
	m.generations = []uint64{0}
	m.current.Store(&binding{index: 0, generation: 0})
	m.metrics.setLive(1)

	m.logger.Debug("variant manager created", slog.String("variant", initialID))
	return nil
}

// Register attaches obj and sizes its storage for the current capacity.
func (m *Manager) Register(obj MultiVariantObject) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj.AllocateVariants(len(m.ids))
	m.objects[obj] = struct{}{}
}

// Unregister detaches obj; it no longer follows clones and removals.
func (m *Manager) Unregister(obj MultiVariantObject) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, obj)
}

// Subscribe registers o for lifecycle notifications and returns a function
// removing it again.
func (m *Manager) Subscribe(o Observer) func() {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, existing := range m.observers {
			if existing == o {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

// CloneVariant creates every target as a copy of source. All targets are
// validated before anything is allocated: an existing target fails with
// ErrVariantAlreadyExists, an unknown source with ErrVariantNotFound.
func (m *Manager) CloneVariant(sourceID string, targetIDs ...string) error {
	return m.cloneVariant("clone", sourceID, targetIDs, false)
}

// CloneVariantOverwrite copies source into target, creating target if needed
// and overwriting its state otherwise.
func (m *Manager) CloneVariantOverwrite(sourceID, targetID string) error {
	return m.cloneVariant("clone_overwrite", sourceID, []string{targetID}, true)
}

func (m *Manager) cloneVariant(op, sourceID string, targetIDs []string, overwrite bool) error {
	if len(targetIDs) == 0 {
		return opError(op, sourceID, ErrEmptyVariantID)
	}

	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	observers, err := m.applyClone(op, sourceID, targetIDs, overwrite)
	if err != nil {
		return err
	}
	for _, targetID := range targetIDs {
		for _, o := range observers {
			o.VariantCreated(sourceID, targetID)
		}
	}
	return nil
}

// applyClone copies the source slot into every target under the structural
// lock and returns the observers to notify.
func (m *Manager) applyClone(op, sourceID string, targetIDs []string, overwrite bool) ([]Observer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, opError(op, sourceID, ErrNotInitialized)
	}

	sourceIndex, ok := m.indexes[sourceID]
	if !ok {
		return nil, opError(op, sourceID, ErrVariantNotFound)
	}

	if err := validateIDs(op, targetIDs); err != nil {
		return nil, err
	}
	if !overwrite {
		for _, targetID := range targetIDs {
			if _, exists := m.indexes[targetID]; exists {
				return nil, opError(op, targetID, ErrVariantAlreadyExists)
			}
		}
	}

	for _, targetID := range targetIDs {
		targetIndex, exists := m.indexes[targetID]
		if !exists {
			targetIndex = m.allocate(targetID)
		}

		for obj := range m.objects {
			obj.VariantCloned(sourceIndex, targetIndex)
		}

		m.metrics.recordClone(exists)
		m.logger.Info("variant cloned",
			slog.String("source", sourceID),
			slog.String("target", targetID),
			slog.Int("index", targetIndex),
			slog.Bool("overwritten", exists))
	}
	m.metrics.setLive(len(m.indexes))

	return slices.Clone(m.observers), nil
}

// validateIDs rejects empty and repeated ids.
func validateIDs(op string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return opError(op, id, ErrEmptyVariantID)
		}
		if _, dup := seen[id]; dup {
			return opError(op, id, ErrDuplicateTarget)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// allocate reuses the lowest freed slot, or extends capacity by one.
func (m *Manager) allocate(id string) int {
	var index int
	if len(m.free) > 0 {
		index = m.free[0]
		m.free = m.free[1:]
		m.ids[index] = id
	} else {
		index = len(m.ids)
		m.ids = append(m.ids, id)
		m.generations = append(m.generations, 0)
	}
	m.indexes[id] = index
	return index
}

// RemoveVariant frees the slot of id. Bindings still pointing at it fail with
// ErrStaleWorkingVariant on their next use.
func (m *Manager) RemoveVariant(id string) error {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	observers, err := m.applyRemove(id)
	if err != nil {
		return err
	}
	for _, o := range observers {
		o.VariantRemoved(id)
	}
	return nil
}

func (m *Manager) applyRemove(id string) ([]Observer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, opError("remove", id, ErrNotInitialized)
	}

	index, ok := m.indexes[id]
	if !ok {
		return nil, opError("remove", id, ErrVariantNotFound)
	}
	if id == m.initialID {
		return nil, opError("remove", id, ErrInitialVariantRemoval)
	}

	if cur := m.current.Load(); !m.multiThread.Load() && cur != nil && cur.index == index {
		m.logger.Warn("removing the working variant",
			slog.String("variant", id),
			slog.Int("index", index))
	}

	delete(m.indexes, id)
	m.ids[index] = ""
	m.generations[index]++
	m.insertFree(index)

	for obj := range m.objects {
		obj.VariantRemoved(index)
	}

	m.metrics.recordRemoval()
	m.metrics.setLive(len(m.indexes))
	m.logger.Info("variant removed", slog.String("variant", id), slog.Int("index", index))

	return slices.Clone(m.observers), nil
}

func (m *Manager) insertFree(index int) {
	pos := sort.SearchInts(m.free, index)
	m.free = append(m.free, 0)
	copy(m.free[pos+1:], m.free[pos:])
	m.free[pos] = index
}

// ResolveIndex returns the slot index of id.
func (m *Manager) ResolveIndex(id string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	index, ok := m.indexes[id]
	if !ok {
		return -1, opError("resolve", id, ErrVariantNotFound)
	}
	return index, nil
}

// Exists reports whether id names a live variant.
func (m *Manager) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.indexes[id]
	return ok
}

// VariantIDs lists live variants in slot order.
func (m *Manager) VariantIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.indexes))
	for _, id := range m.ids {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Capacity is the number of slots every attribute array must hold.
func (m *Manager) Capacity() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// InitialVariantID returns the id passed to Create.
func (m *Manager) InitialVariantID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialID
}

// SetWorkingVariant makes id the working variant. In multi-thread mode only
// the worker slot carried by ctx changes.
func (m *Manager) SetWorkingVariant(ctx context.Context, id string) error {
	m.mu.RLock()
	initialized := m.initialized
	index, ok := m.indexes[id]
	var generation uint64
	if ok {
		generation = m.generations[index]
	}
	m.mu.RUnlock()

	if !initialized {
		return opError("set_working", id, ErrNotInitialized)
	}
	if !ok {
		return opError("set_working", id, ErrVariantNotFound)
	}

	b := &binding{index: index, generation: generation}
	if m.multiThread.Load() {
		slot := slotFrom(ctx)
		if slot == nil {
			return opError("set_working", id, ErrNoWorkerSlot)
		}
		slot.current.Store(b)
		return nil
	}

	m.current.Store(b)
	return nil
}

// WorkingVariantID returns the id of the working variant seen by ctx.
func (m *Manager) WorkingVariantID(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, id, err := m.resolveWorking(ctx)
	if err != nil {
		return "", opError("working", "", err)
	}
	return id, nil
}

// EnableMultiThreadAccess switches to per-worker working variants. There is
// no way back. The returned context carries a worker slot bound to the
// working variant that was global until now, so the caller keeps its view.
func (m *Manager) EnableMultiThreadAccess(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.multiThread.Swap(true) {
		m.logger.Info("variant multi-thread access enabled")
	}
	return withBoundSlot(ctx, m.current.Load())
}

// MultiThreadAccessEnabled reports whether EnableMultiThreadAccess was called.
func (m *Manager) MultiThreadAccessEnabled() bool {
	return m.multiThread.Load()
}

// readLock takes the structural read lock when other workers may run
// concurrently. Single-thread mode pays nothing.
func (m *Manager) readLock() bool {
	if m.multiThread.Load() {
		m.mu.RLock()
		return true
	}
	return false
}

func (m *Manager) readUnlock(locked bool) {
	if locked {
		m.mu.RUnlock()
	}
}

// resolveWorking returns the working slot for ctx. The caller holds the
// structural read lock, or runs in single-thread mode.
func (m *Manager) resolveWorking(ctx context.Context) (int, string, error) {
	if !m.initialized {
		return -1, "", ErrNotInitialized
	}

	var b *binding
	if m.multiThread.Load() {
		slot := slotFrom(ctx)
		if slot == nil {
			return -1, "", ErrNoWorkingVariant
		}
		b = slot.current.Load()
	} else {
		b = m.current.Load()
	}
	if b == nil {
		return -1, "", ErrNoWorkingVariant
	}

	if b.index >= len(m.ids) || m.generations[b.index] != b.generation || m.ids[b.index] == "" {
		return -1, "", ErrStaleWorkingVariant
	}
	return b.index, m.ids[b.index], nil
}
