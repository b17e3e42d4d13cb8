package network

import (
	"context"

	"github.com/adalundhe/gridvar/core/variant"
)

// Terminal attaches one side of an equipment to a bus. The bus is part of the
// shared topology; whether the terminal is connected, and the flows through
// it, are variant dependent.
type Terminal struct {
	owner *identifiable
	bus   *Bus

	connected *variant.Array[bool]
	p         *variant.Array[float64]
	q         *variant.Array[float64]

	connectedAttr string
	pAttr         string
	qAttr         string
}

// newTerminal builds a terminal of owner on bus. side selects attribute
// names: 0 for injections, 1 and 2 for branch ends.
func newTerminal(owner *identifiable, bus *Bus, side int) *Terminal {
	t := &Terminal{
		owner:     owner,
		bus:       bus,
		connected: newVariantArray(owner, true),
		p:         newVariantArray(owner, 0.0),
		q:         newVariantArray(owner, 0.0),
	}
	switch side {
	case 1:
		t.connectedAttr, t.pAttr, t.qAttr = AttrConnected+"1", AttrP1, AttrQ1
	case 2:
		t.connectedAttr, t.pAttr, t.qAttr = AttrConnected+"2", AttrP2, AttrQ2
	default:
		t.connectedAttr, t.pAttr, t.qAttr = AttrConnected, AttrP, AttrQ
	}
	return t
}

// Owner returns the equipment the terminal belongs to.
func (t *Terminal) Owner() Identifiable { return t.owner.self }

// Bus returns the configured bus, connected or not.
func (t *Terminal) Bus() *Bus { return t.bus }

// ConnectedBus returns the bus when the terminal is connected in the working
// variant, nil otherwise.
func (t *Terminal) ConnectedBus(ctx context.Context) (*Bus, error) {
	connected, err := t.IsConnected(ctx)
	if err != nil || !connected {
		return nil, err
	}
	return t.bus, nil
}

func (t *Terminal) IsConnected(ctx context.Context) (bool, error) {
	return getVariant(ctx, t.owner, t.connected, t.connectedAttr)
}

func (t *Terminal) Connect(ctx context.Context) error {
	return setVariant(ctx, t.owner, t.connected, t.connectedAttr, true)
}

func (t *Terminal) Disconnect(ctx context.Context) error {
	return setVariant(ctx, t.owner, t.connected, t.connectedAttr, false)
}

// P is the active power flow, as computed by a solver.
func (t *Terminal) P(ctx context.Context) (float64, error) {
	return getVariant(ctx, t.owner, t.p, t.pAttr)
}

func (t *Terminal) SetP(ctx context.Context, p float64) error {
	return setVariant(ctx, t.owner, t.p, t.pAttr, p)
}

// Q is the reactive power flow, as computed by a solver.
func (t *Terminal) Q(ctx context.Context) (float64, error) {
	return getVariant(ctx, t.owner, t.q, t.qAttr)
}

func (t *Terminal) SetQ(ctx context.Context, q float64) error {
	return setVariant(ctx, t.owner, t.q, t.qAttr, q)
}
