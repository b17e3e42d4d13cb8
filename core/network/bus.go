package network

import (
	"context"
	"sync"

	"github.com/adalundhe/gridvar/core/variant"
)

type BusSpec struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	NominalV float64 `yaml:"nominal_v"`
}

// Bus is an electrical node. Its voltage and component numbers are solver
// results and differ per variant.
type Bus struct {
	identifiable

	nominalV float64

	v                          *variant.Array[float64]
	angle                      *variant.Array[float64]
	connectedComponentNumber   *variant.Array[int]
	synchronousComponentNumber *variant.Array[int]

	termMu    sync.RWMutex
	terminals []*Terminal
}

// NewBus adds a bus to the network.
func (n *Network) NewBus(spec BusSpec) (*Bus, error) {
	b := &Bus{nominalV: spec.NominalV}
	b.init(n, b, spec.ID, spec.Name, KindBus)
	b.v = newVariantArray(&b.identifiable, spec.NominalV)
	b.angle = newVariantArray(&b.identifiable, 0.0)
	b.connectedComponentNumber = newVariantArray(&b.identifiable, 0)
	b.synchronousComponentNumber = newVariantArray(&b.identifiable, 0)

	if err := n.add(b, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Bus looks up a bus by id.
func (n *Network) Bus(id string) (*Bus, error) {
	return lookup[*Bus](n, id, KindBus)
}

// Buses lists every bus sorted by id.
func (n *Network) Buses() []*Bus {
	return listOf[*Bus](n)
}

func (b *Bus) NominalV() float64 {
	return getStatic(&b.identifiable, &b.nominalV)
}

func (b *Bus) SetNominalV(v float64) {
	setStatic(&b.identifiable, &b.nominalV, AttrNominalV, v)
}

func (b *Bus) V(ctx context.Context) (float64, error) {
	return getVariant(ctx, &b.identifiable, b.v, AttrVoltage)
}

func (b *Bus) SetV(ctx context.Context, v float64) error {
	return setVariant(ctx, &b.identifiable, b.v, AttrVoltage, v)
}

func (b *Bus) Angle(ctx context.Context) (float64, error) {
	return getVariant(ctx, &b.identifiable, b.angle, AttrAngle)
}

func (b *Bus) SetAngle(ctx context.Context, angle float64) error {
	return setVariant(ctx, &b.identifiable, b.angle, AttrAngle, angle)
}

func (b *Bus) ConnectedComponentNumber(ctx context.Context) (int, error) {
	return getVariant(ctx, &b.identifiable, b.connectedComponentNumber, AttrConnectedComponentNumber)
}

func (b *Bus) SetConnectedComponentNumber(ctx context.Context, num int) error {
	return setVariant(ctx, &b.identifiable, b.connectedComponentNumber, AttrConnectedComponentNumber, num)
}

func (b *Bus) SynchronousComponentNumber(ctx context.Context) (int, error) {
	return getVariant(ctx, &b.identifiable, b.synchronousComponentNumber, AttrSynchronousComponentNumber)
}

func (b *Bus) SetSynchronousComponentNumber(ctx context.Context, num int) error {
	return setVariant(ctx, &b.identifiable, b.synchronousComponentNumber, AttrSynchronousComponentNumber, num)
}

// Terminals lists every terminal configured on the bus, connected or not.
func (b *Bus) Terminals() []*Terminal {
	b.termMu.RLock()
	defer b.termMu.RUnlock()
	out := make([]*Terminal, len(b.terminals))
	copy(out, b.terminals)
	return out
}

// ConnectedTerminals lists the terminals connected in the working variant.
func (b *Bus) ConnectedTerminals(ctx context.Context) ([]*Terminal, error) {
	var out []*Terminal
	for _, t := range b.Terminals() {
		connected, err := t.IsConnected(ctx)
		if err != nil {
			return nil, err
		}
		if connected {
			out = append(out, t)
		}
	}
	return out, nil
}

// ConnectedLoads lists the loads connected to the bus in the working variant.
func (b *Bus) ConnectedLoads(ctx context.Context) ([]*Load, error) {
	return connectedOf[*Load](ctx, b)
}

// ConnectedGenerators lists the generators connected to the bus in the
// working variant.
func (b *Bus) ConnectedGenerators(ctx context.Context) ([]*Generator, error) {
	return connectedOf[*Generator](ctx, b)
}

func connectedOf[T Identifiable](ctx context.Context, b *Bus) ([]T, error) {
	terminals, err := b.ConnectedTerminals(ctx)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, t := range terminals {
		if typed, ok := t.Owner().(T); ok {
			out = append(out, typed)
		}
	}
	return out, nil
}

func (b *Bus) attach(t *Terminal) {
	b.termMu.Lock()
	defer b.termMu.Unlock()
	b.terminals = append(b.terminals, t)
}

func (b *Bus) release(t *Terminal) {
	b.termMu.Lock()
	defer b.termMu.Unlock()
	for i, existing := range b.terminals {
		if existing == t {
			b.terminals = append(b.terminals[:i], b.terminals[i+1:]...)
			return
		}
	}
}

func (b *Bus) attachedCount() int {
	b.termMu.RLock()
	defer b.termMu.RUnlock()
	return len(b.terminals)
}
