package network

import (
	"context"
	"fmt"

	"github.com/adalundhe/gridvar/core/variant"
)

type LoadSpec struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Bus  string  `yaml:"bus"`
	P0   float64 `yaml:"p0"`
	Q0   float64 `yaml:"q0"`
}

// Load is a consumption. Its set points and connection state are per variant.
type Load struct {
	identifiable
	terminal *Terminal

	p0 *variant.Array[float64]
	q0 *variant.Array[float64]
}

func (n *Network) NewLoad(spec LoadSpec) (*Load, error) {
	bus, err := n.Bus(spec.Bus)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", spec.ID, err)
	}

	l := &Load{}
	l.init(n, l, spec.ID, spec.Name, KindLoad)
	l.terminal = newTerminal(&l.identifiable, bus, 0)
	l.p0 = newVariantArray(&l.identifiable, spec.P0)
	l.q0 = newVariantArray(&l.identifiable, spec.Q0)

	if err := n.add(l, l); err != nil {
		return nil, err
	}
	bus.attach(l.terminal)
	return l, nil
}

func (n *Network) Load(id string) (*Load, error) {
	return lookup[*Load](n, id, KindLoad)
}

func (n *Network) Loads() []*Load {
	return listOf[*Load](n)
}

func (l *Load) Terminal() *Terminal { return l.terminal }

func (l *Load) P0(ctx context.Context) (float64, error) {
	return getVariant(ctx, &l.identifiable, l.p0, AttrP0)
}

func (l *Load) SetP0(ctx context.Context, p0 float64) error {
	return setVariant(ctx, &l.identifiable, l.p0, AttrP0, p0)
}

func (l *Load) Q0(ctx context.Context) (float64, error) {
	return getVariant(ctx, &l.identifiable, l.q0, AttrQ0)
}

func (l *Load) SetQ0(ctx context.Context, q0 float64) error {
	return setVariant(ctx, &l.identifiable, l.q0, AttrQ0, q0)
}

func (l *Load) detach() {
	l.terminal.bus.release(l.terminal)
}
