package network

import (
	"context"
	"fmt"

	"github.com/adalundhe/gridvar/core/variant"
)

type RegulationMode string

const (
	RegulationVoltage RegulationMode = "VOLTAGE"
	RegulationOff     RegulationMode = "OFF"
)

func (m RegulationMode) valid() bool {
	return m == RegulationVoltage || m == RegulationOff
}

type GeneratorSpec struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	Bus            string         `yaml:"bus"`
	MinP           float64        `yaml:"min_p"`
	MaxP           float64        `yaml:"max_p"`
	TargetP        float64        `yaml:"target_p"`
	TargetQ        float64        `yaml:"target_q"`
	TargetV        float64        `yaml:"target_v"`
	RegulationMode RegulationMode `yaml:"regulation_mode"`
}

// Generator is an injection whose set points are chosen per variant.
type Generator struct {
	identifiable
	terminal *Terminal

	minP float64
	maxP float64

	targetP        *variant.Array[float64]
	targetQ        *variant.Array[float64]
	targetV        *variant.Array[float64]
	regulationMode *variant.Array[RegulationMode]
}

// NewGenerator adds a generator connected to an existing bus.
func (n *Network) NewGenerator(spec GeneratorSpec) (*Generator, error) {
	bus, err := n.Bus(spec.Bus)
	if err != nil {
		return nil, fmt.Errorf("generator %q: %w", spec.ID, err)
	}
	mode := spec.RegulationMode
	if mode == "" {
		mode = RegulationOff
	}
	if !mode.valid() {
		return nil, fmt.Errorf("generator %q regulation mode %q: %w", spec.ID, mode, ErrInvalidValue)
	}
	if spec.MinP > spec.MaxP {
		return nil, fmt.Errorf("generator %q minP %v above maxP %v: %w", spec.ID, spec.MinP, spec.MaxP, ErrInvalidValue)
	}

	g := &Generator{minP: spec.MinP, maxP: spec.MaxP}
	g.init(n, g, spec.ID, spec.Name, KindGenerator)
	g.terminal = newTerminal(&g.identifiable, bus, 0)
	g.targetP = newVariantArray(&g.identifiable, spec.TargetP)
	g.targetQ = newVariantArray(&g.identifiable, spec.TargetQ)
	g.targetV = newVariantArray(&g.identifiable, spec.TargetV)
	g.regulationMode = newVariantArray(&g.identifiable, mode)

	if err := n.add(g, g); err != nil {
		return nil, err
	}
	bus.attach(g.terminal)
	return g, nil
}

func (n *Network) Generator(id string) (*Generator, error) {
	return lookup[*Generator](n, id, KindGenerator)
}

func (n *Network) Generators() []*Generator {
	return listOf[*Generator](n)
}

func (g *Generator) Terminal() *Terminal { return g.terminal }

func (g *Generator) MinP() float64 {
	return getStatic(&g.identifiable, &g.minP)
}

func (g *Generator) MaxP() float64 {
	return getStatic(&g.identifiable, &g.maxP)
}

// SetMinP rejects values above the current maxP.
func (g *Generator) SetMinP(minP float64) error {
	if minP > g.MaxP() {
		return g.attributeError(AttrMinP, ErrInvalidValue)
	}
	setStatic(&g.identifiable, &g.minP, AttrMinP, minP)
	return nil
}

// SetMaxP rejects values below the current minP.
func (g *Generator) SetMaxP(maxP float64) error {
	if maxP < g.MinP() {
		return g.attributeError(AttrMaxP, ErrInvalidValue)
	}
	setStatic(&g.identifiable, &g.maxP, AttrMaxP, maxP)
	return nil
}

func (g *Generator) TargetP(ctx context.Context) (float64, error) {
	return getVariant(ctx, &g.identifiable, g.targetP, AttrTargetP)
}

func (g *Generator) SetTargetP(ctx context.Context, targetP float64) error {
	return setVariant(ctx, &g.identifiable, g.targetP, AttrTargetP, targetP)
}

func (g *Generator) TargetQ(ctx context.Context) (float64, error) {
	return getVariant(ctx, &g.identifiable, g.targetQ, AttrTargetQ)
}

func (g *Generator) SetTargetQ(ctx context.Context, targetQ float64) error {
	return setVariant(ctx, &g.identifiable, g.targetQ, AttrTargetQ, targetQ)
}

func (g *Generator) TargetV(ctx context.Context) (float64, error) {
	return getVariant(ctx, &g.identifiable, g.targetV, AttrTargetV)
}

func (g *Generator) SetTargetV(ctx context.Context, targetV float64) error {
	return setVariant(ctx, &g.identifiable, g.targetV, AttrTargetV, targetV)
}

func (g *Generator) RegulationMode(ctx context.Context) (RegulationMode, error) {
	return getVariant(ctx, &g.identifiable, g.regulationMode, AttrRegulationMode)
}

func (g *Generator) SetRegulationMode(ctx context.Context, mode RegulationMode) error {
	if !mode.valid() {
		return g.attributeError(AttrRegulationMode, fmt.Errorf("%q: %w", mode, ErrInvalidValue))
	}
	return setVariant(ctx, &g.identifiable, g.regulationMode, AttrRegulationMode, mode)
}

func (g *Generator) detach() {
	g.terminal.bus.release(g.terminal)
}
