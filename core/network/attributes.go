package network

import (
	"context"
	"fmt"
	"sort"
)

var ErrUnknownAttribute = fmt.Errorf("unknown attribute: %w", ErrIdentifiableNotFound)

// attribute binds a name to typed accessors of one entity kind. Static
// attributes ignore the context.
type attribute struct {
	get func(ctx context.Context, e Identifiable) (any, error)
	set func(ctx context.Context, e Identifiable, value any) error
}

var attributeTable = map[Kind]map[string]attribute{
	KindBus: {
		AttrNominalV:                   staticFloat(func(b *Bus) float64 { return b.NominalV() }, func(b *Bus, v float64) error { b.SetNominalV(v); return nil }),
		AttrVoltage:                    variantFloat((*Bus).V, (*Bus).SetV),
		AttrAngle:                      variantFloat((*Bus).Angle, (*Bus).SetAngle),
		AttrConnectedComponentNumber:   variantInt((*Bus).ConnectedComponentNumber, (*Bus).SetConnectedComponentNumber),
		AttrSynchronousComponentNumber: variantInt((*Bus).SynchronousComponentNumber, (*Bus).SetSynchronousComponentNumber),
	},
	KindGenerator: {
		AttrMinP:      staticFloat((*Generator).MinP, (*Generator).SetMinP),
		AttrMaxP:      staticFloat((*Generator).MaxP, (*Generator).SetMaxP),
		AttrTargetP:   variantFloat((*Generator).TargetP, (*Generator).SetTargetP),
		AttrTargetQ:   variantFloat((*Generator).TargetQ, (*Generator).SetTargetQ),
		AttrTargetV:   variantFloat((*Generator).TargetV, (*Generator).SetTargetV),
		AttrConnected: terminalBool(func(g *Generator) *Terminal { return g.terminal }),
		AttrP:         terminalFloat(func(g *Generator) *Terminal { return g.terminal }, (*Terminal).P, (*Terminal).SetP),
		AttrQ:         terminalFloat(func(g *Generator) *Terminal { return g.terminal }, (*Terminal).Q, (*Terminal).SetQ),
		AttrRegulationMode: {
			get: func(ctx context.Context, e Identifiable) (any, error) {
				return e.(*Generator).RegulationMode(ctx)
			},
			set: func(ctx context.Context, e Identifiable, value any) error {
				s, ok := value.(string)
				if !ok {
					if m, isMode := value.(RegulationMode); isMode {
						s = string(m)
					} else {
						return fmt.Errorf("%v: %w", value, ErrInvalidValue)
					}
				}
				return e.(*Generator).SetRegulationMode(ctx, RegulationMode(s))
			},
		},
	},
	KindLoad: {
		AttrP0:        variantFloat((*Load).P0, (*Load).SetP0),
		AttrQ0:        variantFloat((*Load).Q0, (*Load).SetQ0),
		AttrConnected: terminalBool(func(l *Load) *Terminal { return l.terminal }),
		AttrP:         terminalFloat(func(l *Load) *Terminal { return l.terminal }, (*Terminal).P, (*Terminal).SetP),
		AttrQ:         terminalFloat(func(l *Load) *Terminal { return l.terminal }, (*Terminal).Q, (*Terminal).SetQ),
	},
	KindLine: {
		AttrR:               staticFloat((*Line).R, func(l *Line, v float64) error { l.SetR(v); return nil }),
		AttrX:               staticFloat((*Line).X, func(l *Line, v float64) error { l.SetX(v); return nil }),
		AttrConnected + "1": terminalBool(func(l *Line) *Terminal { return l.terminal1 }),
		AttrConnected + "2": terminalBool(func(l *Line) *Terminal { return l.terminal2 }),
		AttrP1:              terminalFloat(func(l *Line) *Terminal { return l.terminal1 }, (*Terminal).P, (*Terminal).SetP),
		AttrQ1:              terminalFloat(func(l *Line) *Terminal { return l.terminal1 }, (*Terminal).Q, (*Terminal).SetQ),
		AttrP2:              terminalFloat(func(l *Line) *Terminal { return l.terminal2 }, (*Terminal).P, (*Terminal).SetP),
		AttrQ2:              terminalFloat(func(l *Line) *Terminal { return l.terminal2 }, (*Terminal).Q, (*Terminal).SetQ),
	},
	KindShuntCompensator: {
		AttrSectionCount:        variantInt((*ShuntCompensator).SectionCount, (*ShuntCompensator).SetSectionCount),
		AttrMaximumSectionCount: staticReadOnly(func(s *ShuntCompensator) any { return s.MaximumSectionCount() }),
		AttrConnected:           terminalBool(func(s *ShuntCompensator) *Terminal { return s.terminal }),
		AttrQ:                   terminalFloat(func(s *ShuntCompensator) *Terminal { return s.terminal }, (*Terminal).Q, (*Terminal).SetQ),
	},
	KindTwoWindingsTransformer: {
		AttrRatedU1:         staticFloat((*TwoWindingsTransformer).RatedU1, (*TwoWindingsTransformer).SetRatedU1),
		AttrRatedU2:         staticFloat((*TwoWindingsTransformer).RatedU2, (*TwoWindingsTransformer).SetRatedU2),
		AttrTapPosition:     variantInt((*TwoWindingsTransformer).TapPosition, (*TwoWindingsTransformer).SetTapPosition),
		AttrConnected + "1": terminalBool(func(t *TwoWindingsTransformer) *Terminal { return t.terminal1 }),
		AttrConnected + "2": terminalBool(func(t *TwoWindingsTransformer) *Terminal { return t.terminal2 }),
		AttrP1:              terminalFloat(func(t *TwoWindingsTransformer) *Terminal { return t.terminal1 }, (*Terminal).P, (*Terminal).SetP),
		AttrQ1:              terminalFloat(func(t *TwoWindingsTransformer) *Terminal { return t.terminal1 }, (*Terminal).Q, (*Terminal).SetQ),
		AttrP2:              terminalFloat(func(t *TwoWindingsTransformer) *Terminal { return t.terminal2 }, (*Terminal).P, (*Terminal).SetP),
		AttrQ2:              terminalFloat(func(t *TwoWindingsTransformer) *Terminal { return t.terminal2 }, (*Terminal).Q, (*Terminal).SetQ),
	},
}

// Attributes lists the attribute names reachable through Attribute and
// SetAttribute for kind, sorted.
func Attributes(kind Kind) []string {
	names := make([]string, 0, len(attributeTable[kind])+1)
	names = append(names, AttrName)
	for name := range attributeTable[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attribute reads a named attribute of an entity in the working variant of
// ctx.
func (n *Network) Attribute(ctx context.Context, id, name string) (any, error) {
	e, err := n.Identifiable(id)
	if err != nil {
		return nil, err
	}
	if name == AttrName {
		return e.Name(), nil
	}
	attr, ok := attributeTable[e.Kind()][name]
	if !ok {
		return nil, fmt.Errorf("%s %q %s: %w", e.Kind(), id, name, ErrUnknownAttribute)
	}
	return attr.get(ctx, e)
}

// SetAttribute writes a named attribute of an entity. Numbers are converted
// to the attribute's type; anything else fails with ErrInvalidValue.
func (n *Network) SetAttribute(ctx context.Context, id, name string, value any) error {
	e, err := n.Identifiable(id)
	if err != nil {
		return err
	}
	if name == AttrName {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s %q %s %v: %w", e.Kind(), id, name, value, ErrInvalidValue)
		}
		e.(interface{ SetName(string) }).SetName(s)
		return nil
	}
	attr, ok := attributeTable[e.Kind()][name]
	if !ok {
		return fmt.Errorf("%s %q %s: %w", e.Kind(), id, name, ErrUnknownAttribute)
	}
	if attr.set == nil {
		return fmt.Errorf("%s %q %s is read-only: %w", e.Kind(), id, name, ErrInvalidValue)
	}
	return attr.set(ctx, e, value)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%v is not a number: %w", value, ErrInvalidValue)
	}
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%v is not an integer: %w", value, ErrInvalidValue)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%v is not an integer: %w", value, ErrInvalidValue)
	}
}

func staticFloat[E Identifiable](get func(E) float64, set func(E, float64) error) attribute {
	return attribute{
		get: func(_ context.Context, e Identifiable) (any, error) {
			return get(e.(E)), nil
		},
		set: func(_ context.Context, e Identifiable, value any) error {
			f, err := toFloat(value)
			if err != nil {
				return err
			}
			return set(e.(E), f)
		},
	}
}

func staticReadOnly[E Identifiable](get func(E) any) attribute {
	return attribute{
		get: func(_ context.Context, e Identifiable) (any, error) {
			return get(e.(E)), nil
		},
	}
}

func variantFloat[E Identifiable](get func(E, context.Context) (float64, error), set func(E, context.Context, float64) error) attribute {
	return attribute{
		get: func(ctx context.Context, e Identifiable) (any, error) {
			return get(e.(E), ctx)
		},
		set: func(ctx context.Context, e Identifiable, value any) error {
			f, err := toFloat(value)
			if err != nil {
				return err
			}
			return set(e.(E), ctx, f)
		},
	}
}

func variantInt[E Identifiable](get func(E, context.Context) (int, error), set func(E, context.Context, int) error) attribute {
	return attribute{
		get: func(ctx context.Context, e Identifiable) (any, error) {
			return get(e.(E), ctx)
		},
		set: func(ctx context.Context, e Identifiable, value any) error {
			i, err := toInt(value)
			if err != nil {
				return err
			}
			return set(e.(E), ctx, i)
		},
	}
}

func terminalFloat[E Identifiable](terminal func(E) *Terminal, get func(*Terminal, context.Context) (float64, error), set func(*Terminal, context.Context, float64) error) attribute {
	return attribute{
		get: func(ctx context.Context, e Identifiable) (any, error) {
			return get(terminal(e.(E)), ctx)
		},
		set: func(ctx context.Context, e Identifiable, value any) error {
			f, err := toFloat(value)
			if err != nil {
				return err
			}
			return set(terminal(e.(E)), ctx, f)
		},
	}
}

func terminalBool[E Identifiable](terminal func(E) *Terminal) attribute {
	return attribute{
		get: func(ctx context.Context, e Identifiable) (any, error) {
			return terminal(e.(E)).IsConnected(ctx)
		},
		set: func(ctx context.Context, e Identifiable, value any) error {
			connected, ok := value.(bool)
			if !ok {
				return fmt.Errorf("%v is not a boolean: %w", value, ErrInvalidValue)
			}
			t := terminal(e.(E))
			if connected {
				return t.Connect(ctx)
			}
			return t.Disconnect(ctx)
		},
	}
}
