// Package changelog records the mutations of a network per variant.
//
// Creations, removals and updates of variant-independent attributes go to a
// base history shared by every variant. Updates of variant-dependent
// attributes go to an override history of the variant that was written.
// A variant's effective history is the base history when it has no override,
// and otherwise the union of both ordered by sequence number.
package changelog

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/adalundhe/gridvar/core/network"
)

const (
	scopeBase    = "base"
	scopeVariant = "variant"

	DefaultCacheSize = 64
)

// ChangeLog is a network.Listener. It is safe for concurrent use; sequence
// numbers are assigned under its mutex together with the append, so each
// history stays sorted.
type ChangeLog struct {
	id      uuid.UUID
	network *network.Network

	mu        sync.Mutex
	seq       uint64
	base      []Change
	overrides map[string][]Change

	ignore  *IgnorePolicy
	cache   *historyCache
	metrics *Metrics
	logger  *slog.Logger
}

type options struct {
	ignore    *IgnorePolicy
	cacheSize int
	metrics   *Metrics
	logger    *slog.Logger
}

type Option func(*options)

// WithIgnorePolicy replaces DefaultIgnorePolicy.
func WithIgnorePolicy(p *IgnorePolicy) Option {
	return func(o *options) {
		if p != nil {
			o.ignore = p
		}
	}
}

// WithCacheSize bounds the number of merged histories kept between queries.
// Zero or less disables the cache.
func WithCacheSize(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a change log and subscribes it to n.
func New(n *network.Network, opts ...Option) *ChangeLog {
	o := options{
		ignore:    DefaultIgnorePolicy(),
		cacheSize: DefaultCacheSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	c := &ChangeLog{
		id:        id,
		network:   n,
		overrides: make(map[string][]Change),
		ignore:    o.ignore,
		cache:     newHistoryCache(o.cacheSize),
		metrics:   o.metrics,
		logger:    o.logger.With(slog.String("changelog", id.String())),
	}
	if n != nil {
		n.AddListener(c)
	}
	return c
}

func (c *ChangeLog) ID() uuid.UUID { return c.id }

// Close unsubscribes the log from its network. Recorded histories stay
// readable.
func (c *ChangeLog) Close() {
	if c.network != nil {
		c.network.RemoveListener(c)
	}
}

// Sequence returns the last sequence number assigned, 0 when nothing was
// recorded.
func (c *ChangeLog) Sequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// HasOverride reports whether variantID holds an override history.
func (c *ChangeLog) HasOverride(variantID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.overrides[variantID]
	return ok
}

// BaseChanges returns a copy of the base history.
func (c *ChangeLog) BaseChanges() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.base)
}

// ChangesForVariant returns a copy of the effective history of variantID,
// ordered by sequence number. Later changes and writes to the returned slice
// do not affect the log.
func (c *ChangeLog) ChangesForVariant(variantID string) []Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	override, ok := c.overrides[variantID]
	if !ok {
		c.metrics.recordQuery(pathBase)
		return slices.Clone(c.base)
	}

	merged, path := c.cache.resolve(variantID, c.base, override)
	c.metrics.recordQuery(path)
	return slices.Clone(merged)
}

// =============================================================================
// network.Listener
// =============================================================================

func (c *ChangeLog) OnCreation(identifiable network.Identifiable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.base = append(c.base, &Creation{sequenced: sequenced{c.seq}, entity: identifiable})
	c.metrics.recordChange(KindCreation, scopeBase)
}

func (c *ChangeLog) OnRemoval(identifiable network.Identifiable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.base = append(c.base, &Removal{sequenced: sequenced{c.seq}, entity: identifiable})
	c.metrics.recordChange(KindRemoval, scopeBase)
}

func (c *ChangeLog) OnUpdate(identifiable network.Identifiable, attribute string, oldValue, newValue any) {
	if c.ignored(identifiable, attribute) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.base = append(c.base, &Update{
		sequenced: sequenced{c.seq},
		entity:    identifiable,
		attribute: attribute,
		oldValue:  oldValue,
		newValue:  newValue,
	})
	c.metrics.recordChange(KindUpdate, scopeBase)
}

func (c *ChangeLog) OnVariantUpdate(identifiable network.Identifiable, attribute, variantID string, oldValue, newValue any) {
	if c.ignored(identifiable, attribute) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	_, existed := c.overrides[variantID]
	c.overrides[variantID] = append(c.overrides[variantID], &Update{
		sequenced: sequenced{c.seq},
		entity:    identifiable,
		attribute: attribute,
		variantID: variantID,
		oldValue:  oldValue,
		newValue:  newValue,
	})
	c.metrics.recordChange(KindUpdate, scopeVariant)
	if !existed {
		c.metrics.setOverrides(len(c.overrides))
	}
}

// OnVariantCreated gives the target a copy of the source override history.
// When the source has none, the target falls back to the base history.
func (c *ChangeLog) OnVariantCreated(sourceVariantID, targetVariantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.invalidate(targetVariantID)
	if source, ok := c.overrides[sourceVariantID]; ok {
		c.overrides[targetVariantID] = append([]Change(nil), source...)
		c.logger.Debug("override history copied",
			slog.String("source", sourceVariantID),
			slog.String("target", targetVariantID),
			slog.Int("changes", len(source)))
	} else {
		delete(c.overrides, targetVariantID)
	}
	c.metrics.setOverrides(len(c.overrides))
}

// OnVariantRemoved discards the override history of the removed variant.
func (c *ChangeLog) OnVariantRemoved(variantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.invalidate(variantID)
	if _, ok := c.overrides[variantID]; ok {
		delete(c.overrides, variantID)
		c.logger.Debug("override history discarded", slog.String("variant", variantID))
	}
	c.metrics.setOverrides(len(c.overrides))
}

func (c *ChangeLog) ignored(identifiable network.Identifiable, attribute string) bool {
	if !c.ignore.Ignored(identifiable.Kind(), attribute) {
		return false
	}
	c.metrics.recordIgnored()
	return true
}

var _ network.Listener = (*ChangeLog)(nil)
