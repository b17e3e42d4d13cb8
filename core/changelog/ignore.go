package changelog

import (
	"github.com/adalundhe/gridvar/core/network"
)

// IgnorePolicy selects updates that are not worth recording: quantities a
// solver recomputes rather than user edits. It is immutable once built.
type IgnorePolicy struct {
	global map[string]struct{}
	byKind map[network.Kind]map[string]struct{}
}

// DefaultIgnorePolicy drops component numbers for every entity and solver
// results (voltage, angle and flows) per kind.
func DefaultIgnorePolicy() *IgnorePolicy {
	return NewIgnorePolicy(
		[]string{
			network.AttrConnectedComponentNumber,
			network.AttrSynchronousComponentNumber,
		},
		map[network.Kind][]string{
			network.KindLoad: {
				network.AttrVoltage, network.AttrAngle, network.AttrP, network.AttrQ,
			},
			network.KindLine: {
				network.AttrVoltage, network.AttrAngle,
				network.AttrP1, network.AttrQ1, network.AttrP2, network.AttrQ2,
			},
			network.KindGenerator: {
				network.AttrVoltage, network.AttrAngle, network.AttrP, network.AttrQ,
			},
			network.KindShuntCompensator: {
				network.AttrVoltage, network.AttrAngle, network.AttrQ,
			},
			network.KindTwoWindingsTransformer: {
				network.AttrVoltage, network.AttrAngle,
				network.AttrP1, network.AttrQ1, network.AttrP2, network.AttrQ2,
			},
		},
	)
}

func NewIgnorePolicy(global []string, byKind map[network.Kind][]string) *IgnorePolicy {
	p := &IgnorePolicy{
		global: make(map[string]struct{}, len(global)),
		byKind: make(map[network.Kind]map[string]struct{}, len(byKind)),
	}
	for _, attr := range global {
		p.global[attr] = struct{}{}
	}
	for kind, attrs := range byKind {
		set := make(map[string]struct{}, len(attrs))
		for _, attr := range attrs {
			set[attr] = struct{}{}
		}
		p.byKind[kind] = set
	}
	return p
}

// With returns a copy of p that also ignores the given attributes.
func (p *IgnorePolicy) With(global []string, byKind map[network.Kind][]string) *IgnorePolicy {
	out := NewIgnorePolicy(global, byKind)
	for attr := range p.global {
		out.global[attr] = struct{}{}
	}
	for kind, attrs := range p.byKind {
		set, ok := out.byKind[kind]
		if !ok {
			set = make(map[string]struct{}, len(attrs))
			out.byKind[kind] = set
		}
		for attr := range attrs {
			set[attr] = struct{}{}
		}
	}
	return out
}

// Ignored reports whether an update of attribute on an entity of kind is
// dropped.
func (p *IgnorePolicy) Ignored(kind network.Kind, attribute string) bool {
	if _, ok := p.global[attribute]; ok {
		return true
	}
	_, ok := p.byKind[kind][attribute]
	return ok
}
