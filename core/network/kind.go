package network

// Kind is the fixed set of entity kinds a network can hold. It is chosen when
// an entity is built and never changes.
type Kind int

const (
	KindBus Kind = iota
	KindGenerator
	KindLoad
	KindLine
	KindShuntCompensator
	KindTwoWindingsTransformer
)

var kindNames = map[Kind]string{
	KindBus:                    "bus",
	KindGenerator:              "generator",
	KindLoad:                   "load",
	KindLine:                   "line",
	KindShuntCompensator:       "shunt_compensator",
	KindTwoWindingsTransformer: "two_windings_transformer",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind resolves a name produced by Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindBus,
		KindGenerator,
		KindLoad,
		KindLine,
		KindShuntCompensator,
		KindTwoWindingsTransformer,
	}
}

// Attribute names shared by entities and by change consumers.
const (
	AttrVoltage                    = "v"
	AttrAngle                      = "angle"
	AttrP                          = "p"
	AttrQ                          = "q"
	AttrP1                         = "p1"
	AttrQ1                         = "q1"
	AttrP2                         = "p2"
	AttrQ2                         = "q2"
	AttrP0                         = "p0"
	AttrQ0                         = "q0"
	AttrTargetP                    = "targetP"
	AttrTargetQ                    = "targetQ"
	AttrTargetV                    = "targetV"
	AttrRegulationMode             = "regulationMode"
	AttrMinP                       = "minP"
	AttrMaxP                       = "maxP"
	AttrR                          = "r"
	AttrX                          = "x"
	AttrRatedU1                    = "ratedU1"
	AttrRatedU2                    = "ratedU2"
	AttrTapPosition                = "tapPosition"
	AttrSectionCount               = "sectionCount"
	AttrMaximumSectionCount        = "maximumSectionCount"
	AttrConnected                  = "connected"
	AttrName                       = "name"
	AttrNominalV                   = "nominalV"
	AttrConnectedComponentNumber   = "connectedComponentNumber"
	AttrSynchronousComponentNumber = "synchronousComponentNumber"
)
