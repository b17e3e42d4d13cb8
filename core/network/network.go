// Package network is a small multi-variant network model: buses, injections
// and branches whose identity and topology are shared by every variant, and
// whose operating values live in per-variant arrays managed by a
// variant.Manager.
//
// A Network broadcasts every creation, removal and attribute update to its
// listeners synchronously. Attribute accessors take a context.Context that
// selects the working variant in multi-thread mode (see variant.WithWorkerSlot).
package network

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/adalundhe/gridvar/core/variant"
)

var (
	ErrIdentifiableNotFound = fmt.Errorf("identifiable not found: %w", variant.ErrNotFound)
	ErrDuplicateID          = fmt.Errorf("identifiable id already used: %w", variant.ErrConflict)
	ErrWrongKind            = fmt.Errorf("identifiable has another kind: %w", variant.ErrNotFound)
	ErrEmptyID              = fmt.Errorf("empty identifiable id: %w", variant.ErrIllegalOperation)
	ErrBusInUse             = fmt.Errorf("bus still has connectable equipment: %w", variant.ErrIllegalOperation)
	ErrInvalidValue         = fmt.Errorf("invalid attribute value: %w", variant.ErrIllegalOperation)
)

// Identifiable is any entity of a network.
type Identifiable interface {
	ID() string
	Name() string
	Kind() Kind
	Network() *Network
}

type Network struct {
	id         string
	instanceID uuid.UUID
	variants   *variant.Manager

	mu        sync.RWMutex
	entities  map[string]Identifiable
	listeners []Listener

	logger *slog.Logger
}

type options struct {
	initialVariantID string
	logger           *slog.Logger
	variantOptions   []variant.Option
}

// Option configures a Network.
type Option func(*options)

// WithInitialVariant overrides variant.InitialVariantID.
func WithInitialVariant(id string) Option {
	return func(o *options) {
		o.initialVariantID = id
	}
}

// WithLogger sets the logger of the network and its variant manager.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithVariantOptions passes options through to the variant manager.
func WithVariantOptions(opts ...variant.Option) Option {
	return func(o *options) {
		o.variantOptions = append(o.variantOptions, opts...)
	}
}

// New creates an empty network holding a single initial variant.
func New(id string, opts ...Option) (*Network, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	o := options{
		initialVariantID: variant.InitialVariantID,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With(slog.String("network", id))
	managerOpts := append([]variant.Option{variant.WithLogger(logger)}, o.variantOptions...)
	manager := variant.NewManager(managerOpts...)
	if err := manager.Create(o.initialVariantID); err != nil {
		return nil, err
	}

	n := &Network{
		id:         id,
		instanceID: uuid.New(),
		variants:   manager,
		entities:   make(map[string]Identifiable),
		logger:     logger,
	}
	manager.Subscribe(variantForwarder{n})
	return n, nil
}

func (n *Network) ID() string { return n.id }

// InstanceID distinguishes two networks loaded with the same id.
func (n *Network) InstanceID() uuid.UUID { return n.instanceID }

// Variants returns the variant manager of the network.
func (n *Network) Variants() *variant.Manager { return n.variants }

// AddListener subscribes l to every mutation of the network.
func (n *Network) AddListener(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// RemoveListener unsubscribes l. Unknown listeners are ignored.
func (n *Network) RemoveListener(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, existing := range n.listeners {
		if existing == l {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}

// Identifiable looks up any entity by id.
func (n *Network) Identifiable(id string) (Identifiable, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	e, ok := n.entities[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrIdentifiableNotFound)
	}
	return e, nil
}

// Identifiables returns every entity sorted by id.
func (n *Network) Identifiables() []Identifiable {
	n.mu.RLock()
	defer n.mu.RUnlock()

	result := make([]Identifiable, 0, len(n.entities))
	for _, e := range n.entities {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID() < result[j].ID()
	})
	return result
}

// Count returns the number of entities.
func (n *Network) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.entities)
}

// Remove deletes an entity. Buses still referenced by equipment cannot be
// removed.
func (n *Network) Remove(id string) error {
	n.mu.Lock()
	e, ok := n.entities[id]
	if !ok {
		n.mu.Unlock()
		return fmt.Errorf("%q: %w", id, ErrIdentifiableNotFound)
	}
	if bus, isBus := e.(*Bus); isBus && bus.attachedCount() > 0 {
		n.mu.Unlock()
		return fmt.Errorf("%q: %w", id, ErrBusInUse)
	}
	delete(n.entities, id)
	n.mu.Unlock()

	if d, ok := e.(detacher); ok {
		d.detach()
	}
	if obj, ok := e.(variant.MultiVariantObject); ok {
		n.variants.Unregister(obj)
	}

	n.logger.Debug("identifiable removed", slog.String("id", id), slog.String("kind", e.Kind().String()))
	n.notifyRemoval(e)
	return nil
}

type detacher interface {
	detach()
}

// add registers the variant storage of e, indexes it and announces it.
func (n *Network) add(e Identifiable, obj variant.MultiVariantObject) error {
	if e.ID() == "" {
		return ErrEmptyID
	}

	n.variants.Register(obj)

	n.mu.Lock()
	if _, exists := n.entities[e.ID()]; exists {
		n.mu.Unlock()
		n.variants.Unregister(obj)
		return fmt.Errorf("%q: %w", e.ID(), ErrDuplicateID)
	}
	n.entities[e.ID()] = e
	n.mu.Unlock()

	n.logger.Debug("identifiable created", slog.String("id", e.ID()), slog.String("kind", e.Kind().String()))
	n.notifyCreation(e)
	return nil
}

func lookup[T Identifiable](n *Network, id string, kind Kind) (T, error) {
	var zero T
	e, err := n.Identifiable(id)
	if err != nil {
		return zero, err
	}
	typed, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%q is a %s, not a %s: %w", id, e.Kind(), kind, ErrWrongKind)
	}
	return typed, nil
}

func listOf[T Identifiable](n *Network) []T {
	var result []T
	for _, e := range n.Identifiables() {
		if typed, ok := e.(T); ok {
			result = append(result, typed)
		}
	}
	return result
}

func (n *Network) snapshotListeners() []Listener {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.listeners) == 0 {
		return nil
	}
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	return listeners
}

func (n *Network) notifyCreation(e Identifiable) {
	for _, l := range n.snapshotListeners() {
		l.OnCreation(e)
	}
}

func (n *Network) notifyRemoval(e Identifiable) {
	for _, l := range n.snapshotListeners() {
		l.OnRemoval(e)
	}
}

func (n *Network) notifyUpdate(e Identifiable, attribute string, oldValue, newValue any) {
	for _, l := range n.snapshotListeners() {
		l.OnUpdate(e, attribute, oldValue, newValue)
	}
}

func (n *Network) notifyVariantUpdate(e Identifiable, attribute, variantID string, oldValue, newValue any) {
	for _, l := range n.snapshotListeners() {
		l.OnVariantUpdate(e, attribute, variantID, oldValue, newValue)
	}
}

// variantForwarder relays variant lifecycle events to network listeners.
type variantForwarder struct {
	n *Network
}

func (f variantForwarder) VariantCreated(sourceID, targetID string) {
	for _, l := range f.n.snapshotListeners() {
		l.OnVariantCreated(sourceID, targetID)
	}
}

func (f variantForwarder) VariantRemoved(id string) {
	for _, l := range f.n.snapshotListeners() {
		l.OnVariantRemoved(id)
	}
}
