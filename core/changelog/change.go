package changelog

import (
	"fmt"

	"github.com/adalundhe/gridvar/core/network"
)

// ChangeKind tags the three kinds of change a log records.
type ChangeKind int

const (
	KindCreation ChangeKind = iota
	KindRemoval
	KindUpdate
)

func (k ChangeKind) String() string {
	switch k {
	case KindCreation:
		return "creation"
	case KindRemoval:
		return "removal"
	case KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Change is one recorded mutation. Sequence numbers are unique within a
// ChangeLog and strictly increase in emission order across every variant.
// Changes are immutable once recorded.
type Change interface {
	Sequence() uint64
	Kind() ChangeKind
	Identifiable() network.Identifiable
	String() string
}

type sequenced struct {
	seq uint64
}

func (s sequenced) Sequence() uint64 { return s.seq }

// Creation records an entity added to the network.
type Creation struct {
	sequenced
	entity network.Identifiable
}

func (c *Creation) Kind() ChangeKind                   { return KindCreation }
func (c *Creation) Identifiable() network.Identifiable { return c.entity }

func (c *Creation) String() string {
	return fmt.Sprintf("#%d create %s %s", c.seq, c.entity.Kind(), c.entity.ID())
}

// Removal records an entity removed from the network.
type Removal struct {
	sequenced
	entity network.Identifiable
}

func (r *Removal) Kind() ChangeKind                   { return KindRemoval }
func (r *Removal) Identifiable() network.Identifiable { return r.entity }

func (r *Removal) String() string {
	return fmt.Sprintf("#%d remove %s %s", r.seq, r.entity.Kind(), r.entity.ID())
}

// Update records an attribute write.
type Update struct {
	sequenced
	entity    network.Identifiable
	attribute string
	variantID string
	oldValue  any
	newValue  any
}

func (u *Update) Kind() ChangeKind                   { return KindUpdate }
func (u *Update) Identifiable() network.Identifiable { return u.entity }
func (u *Update) Attribute() string                  { return u.attribute }

// VariantID is empty for writes of variant-independent attributes.
func (u *Update) VariantID() string { return u.variantID }

func (u *Update) OldValue() any { return u.oldValue }
func (u *Update) NewValue() any { return u.newValue }

func (u *Update) String() string {
	if u.variantID == "" {
		return fmt.Sprintf("#%d update %s.%s %v -> %v", u.seq, u.entity.ID(), u.attribute, u.oldValue, u.newValue)
	}
	return fmt.Sprintf("#%d update %s.%s %v -> %v [%s]", u.seq, u.entity.ID(), u.attribute, u.oldValue, u.newValue, u.variantID)
}
