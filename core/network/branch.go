package network

import (
	"context"
	"fmt"

	"github.com/adalundhe/gridvar/core/variant"
)

// branch is the two-terminal part shared by lines and transformers.
type branch struct {
	terminal1 *Terminal
	terminal2 *Terminal
}

func (b *branch) Terminal1() *Terminal { return b.terminal1 }
func (b *branch) Terminal2() *Terminal { return b.terminal2 }

func (b *branch) detach() {
	b.terminal1.bus.release(b.terminal1)
	b.terminal2.bus.release(b.terminal2)
}

func (n *Network) branchBuses(what, id, bus1, bus2 string) (*Bus, *Bus, error) {
	b1, err := n.Bus(bus1)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %q side 1: %w", what, id, err)
	}
	b2, err := n.Bus(bus2)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %q side 2: %w", what, id, err)
	}
	return b1, b2, nil
}

type LineSpec struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Bus1 string  `yaml:"bus1"`
	Bus2 string  `yaml:"bus2"`
	R    float64 `yaml:"r"`
	X    float64 `yaml:"x"`
}

// Line is an AC line between two buses.
type Line struct {
	identifiable
	branch

	r float64
	x float64
}

func (n *Network) NewLine(spec LineSpec) (*Line, error) {
	bus1, bus2, err := n.branchBuses("line", spec.ID, spec.Bus1, spec.Bus2)
	if err != nil {
		return nil, err
	}

	l := &Line{r: spec.R, x: spec.X}
	l.init(n, l, spec.ID, spec.Name, KindLine)
	l.terminal1 = newTerminal(&l.identifiable, bus1, 1)
	l.terminal2 = newTerminal(&l.identifiable, bus2, 2)

	if err := n.add(l, l); err != nil {
		return nil, err
	}
	bus1.attach(l.terminal1)
	bus2.attach(l.terminal2)
	return l, nil
}

func (n *Network) Line(id string) (*Line, error) {
	return lookup[*Line](n, id, KindLine)
}

func (n *Network) Lines() []*Line {
	return listOf[*Line](n)
}

func (l *Line) R() float64 { return getStatic(&l.identifiable, &l.r) }
func (l *Line) X() float64 { return getStatic(&l.identifiable, &l.x) }

func (l *Line) SetR(r float64) { setStatic(&l.identifiable, &l.r, AttrR, r) }
func (l *Line) SetX(x float64) { setStatic(&l.identifiable, &l.x, AttrX, x) }

type TransformerSpec struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Bus1        string  `yaml:"bus1"`
	Bus2        string  `yaml:"bus2"`
	RatedU1     float64 `yaml:"rated_u1"`
	RatedU2     float64 `yaml:"rated_u2"`
	TapPosition int     `yaml:"tap_position"`
}

// TwoWindingsTransformer links two buses of different voltage levels. Its tap
// position is chosen per variant.
type TwoWindingsTransformer struct {
	identifiable
	branch

	ratedU1 float64
	ratedU2 float64

	tapPosition *variant.Array[int]
}

func (n *Network) NewTwoWindingsTransformer(spec TransformerSpec) (*TwoWindingsTransformer, error) {
	bus1, bus2, err := n.branchBuses("transformer", spec.ID, spec.Bus1, spec.Bus2)
	if err != nil {
		return nil, err
	}
	if spec.RatedU1 <= 0 || spec.RatedU2 <= 0 {
		return nil, fmt.Errorf("transformer %q rated voltage: %w", spec.ID, ErrInvalidValue)
	}

	t := &TwoWindingsTransformer{ratedU1: spec.RatedU1, ratedU2: spec.RatedU2}
	t.init(n, t, spec.ID, spec.Name, KindTwoWindingsTransformer)
	t.terminal1 = newTerminal(&t.identifiable, bus1, 1)
	t.terminal2 = newTerminal(&t.identifiable, bus2, 2)
	t.tapPosition = newVariantArray(&t.identifiable, spec.TapPosition)

	if err := n.add(t, t); err != nil {
		return nil, err
	}
	bus1.attach(t.terminal1)
	bus2.attach(t.terminal2)
	return t, nil
}

func (n *Network) TwoWindingsTransformer(id string) (*TwoWindingsTransformer, error) {
	return lookup[*TwoWindingsTransformer](n, id, KindTwoWindingsTransformer)
}

func (n *Network) TwoWindingsTransformers() []*TwoWindingsTransformer {
	return listOf[*TwoWindingsTransformer](n)
}

func (t *TwoWindingsTransformer) RatedU1() float64 { return getStatic(&t.identifiable, &t.ratedU1) }
func (t *TwoWindingsTransformer) RatedU2() float64 { return getStatic(&t.identifiable, &t.ratedU2) }

func (t *TwoWindingsTransformer) SetRatedU1(u float64) error {
	if u <= 0 {
		return t.attributeError(AttrRatedU1, ErrInvalidValue)
	}
	setStatic(&t.identifiable, &t.ratedU1, AttrRatedU1, u)
	return nil
}

func (t *TwoWindingsTransformer) SetRatedU2(u float64) error {
	if u <= 0 {
		return t.attributeError(AttrRatedU2, ErrInvalidValue)
	}
	setStatic(&t.identifiable, &t.ratedU2, AttrRatedU2, u)
	return nil
}

func (t *TwoWindingsTransformer) TapPosition(ctx context.Context) (int, error) {
	return getVariant(ctx, &t.identifiable, t.tapPosition, AttrTapPosition)
}

func (t *TwoWindingsTransformer) SetTapPosition(ctx context.Context, position int) error {
	return setVariant(ctx, &t.identifiable, t.tapPosition, AttrTapPosition, position)
}
