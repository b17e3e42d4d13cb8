package network

import (
	"context"
	"fmt"

	"github.com/adalundhe/gridvar/core/variant"
)

type ShuntSpec struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	Bus                 string `yaml:"bus"`
	SectionCount        int    `yaml:"section_count"`
	MaximumSectionCount int    `yaml:"maximum_section_count"`
}

// ShuntCompensator is a bank of identical sections. The number of sections in
// service is chosen per variant.
type ShuntCompensator struct {
	identifiable
	terminal *Terminal

	maximumSectionCount int

	sectionCount *variant.Array[int]
}

func (n *Network) NewShuntCompensator(spec ShuntSpec) (*ShuntCompensator, error) {
	bus, err := n.Bus(spec.Bus)
	if err != nil {
		return nil, fmt.Errorf("shunt %q: %w", spec.ID, err)
	}
	if spec.MaximumSectionCount < 1 {
		return nil, fmt.Errorf("shunt %q maximum section count %d: %w", spec.ID, spec.MaximumSectionCount, ErrInvalidValue)
	}
	if spec.SectionCount < 0 || spec.SectionCount > spec.MaximumSectionCount {
		return nil, fmt.Errorf("shunt %q section count %d: %w", spec.ID, spec.SectionCount, ErrInvalidValue)
	}

	s := &ShuntCompensator{maximumSectionCount: spec.MaximumSectionCount}
	s.init(n, s, spec.ID, spec.Name, KindShuntCompensator)
	s.terminal = newTerminal(&s.identifiable, bus, 0)
	s.sectionCount = newVariantArray(&s.identifiable, spec.SectionCount)

	if err := n.add(s, s); err != nil {
		return nil, err
	}
	bus.attach(s.terminal)
	return s, nil
}

func (n *Network) ShuntCompensator(id string) (*ShuntCompensator, error) {
	return lookup[*ShuntCompensator](n, id, KindShuntCompensator)
}

func (n *Network) ShuntCompensators() []*ShuntCompensator {
	return listOf[*ShuntCompensator](n)
}

func (s *ShuntCompensator) Terminal() *Terminal { return s.terminal }

func (s *ShuntCompensator) MaximumSectionCount() int {
	return getStatic(&s.identifiable, &s.maximumSectionCount)
}

func (s *ShuntCompensator) SectionCount(ctx context.Context) (int, error) {
	return getVariant(ctx, &s.identifiable, s.sectionCount, AttrSectionCount)
}

// SetSectionCount accepts 0 through MaximumSectionCount.
func (s *ShuntCompensator) SetSectionCount(ctx context.Context, count int) error {
	if count < 0 || count > s.MaximumSectionCount() {
		return s.attributeError(AttrSectionCount, fmt.Errorf("%d: %w", count, ErrInvalidValue))
	}
	return setVariant(ctx, &s.identifiable, s.sectionCount, AttrSectionCount, count)
}

func (s *ShuntCompensator) detach() {
	s.terminal.bus.release(s.terminal)
}
