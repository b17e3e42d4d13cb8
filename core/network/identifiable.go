package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/adalundhe/gridvar/core/variant"
)

// identifiable is the shared part of every entity: identity, static
// attributes, and the per-variant arrays the entity owns.
type identifiable struct {
	network *Network
	self    Identifiable
	id      string
	kind    Kind

	mu   sync.RWMutex
	name string

	arrays []variant.MultiVariantObject
}

func (i *identifiable) init(n *Network, self Identifiable, id, name string, kind Kind) {
	i.network = n
	i.self = self
	i.id = id
	i.name = name
	i.kind = kind
}

func (i *identifiable) ID() string        { return i.id }
func (i *identifiable) Kind() Kind        { return i.kind }
func (i *identifiable) Network() *Network { return i.network }

// Name falls back to the id when no name was given.
func (i *identifiable) Name() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.name == "" {
		return i.id
	}
	return i.name
}

// SetName changes the display name. It is not variant dependent.
func (i *identifiable) SetName(name string) {
	setStatic(i, &i.name, AttrName, name)
}

func (i *identifiable) AllocateVariants(capacity int) {
	for _, a := range i.arrays {
		a.AllocateVariants(capacity)
	}
}

func (i *identifiable) VariantCloned(sourceIndex, targetIndex int) {
	for _, a := range i.arrays {
		a.VariantCloned(sourceIndex, targetIndex)
	}
}

func (i *identifiable) VariantRemoved(index int) {
	for _, a := range i.arrays {
		a.VariantRemoved(index)
	}
}

func (i *identifiable) attributeError(attribute string, err error) error {
	return fmt.Errorf("%s %q %s: %w", i.kind, i.id, attribute, err)
}

// newVariantArray creates a per-variant attribute owned by i.
func newVariantArray[T any](i *identifiable, initial T) *variant.Array[T] {
	a := variant.NewArray(i.network.variants, initial)
	i.arrays = append(i.arrays, a)
	return a
}

func getVariant[T any](ctx context.Context, i *identifiable, a *variant.Array[T], attribute string) (T, error) {
	v, err := a.Get(ctx)
	if err != nil {
		return v, i.attributeError(attribute, err)
	}
	return v, nil
}

// setVariant writes the working variant's value and emits a variant-tagged
// update.
func setVariant[T any](ctx context.Context, i *identifiable, a *variant.Array[T], attribute string, value T) error {
	old, variantID, err := a.Set(ctx, value)
	if err != nil {
		return i.attributeError(attribute, err)
	}
	i.network.notifyVariantUpdate(i.self, attribute, variantID, old, value)
	return nil
}

func getStatic[T any](i *identifiable, field *T) T {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return *field
}

// setStatic writes a variant-independent attribute and emits an untagged
// update.
func setStatic[T any](i *identifiable, field *T, attribute string, value T) {
	i.mu.Lock()
	old := *field
	*field = value
	i.mu.Unlock()

	i.network.notifyUpdate(i.self, attribute, old, value)
}
