package network

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/gridvar/core/variant"
)

type event struct {
	kind      string
	id        string
	attribute string
	variantID string
	oldValue  any
	newValue  any
}

type recordingListener struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingListener) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingListener) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recordingListener) OnCreation(i Identifiable) {
	r.add(event{kind: "creation", id: i.ID()})
}

func (r *recordingListener) OnRemoval(i Identifiable) {
	r.add(event{kind: "removal", id: i.ID()})
}

func (r *recordingListener) OnUpdate(i Identifiable, attribute string, oldValue, newValue any) {
	r.add(event{kind: "update", id: i.ID(), attribute: attribute, oldValue: oldValue, newValue: newValue})
}

func (r *recordingListener) OnVariantUpdate(i Identifiable, attribute, variantID string, oldValue, newValue any) {
	r.add(event{kind: "variant_update", id: i.ID(), attribute: attribute, variantID: variantID, oldValue: oldValue, newValue: newValue})
}

func (r *recordingListener) OnVariantCreated(sourceID, targetID string) {
	r.add(event{kind: "variant_created", id: targetID, variantID: sourceID})
}

func (r *recordingListener) OnVariantRemoved(id string) {
	r.add(event{kind: "variant_removed", id: id})
}

// newTestNetwork builds one bus B1 carrying generator G1 and load L1.
func newTestNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := New("test")
	require.NoError(t, err)

	_, err = n.NewBus(BusSpec{ID: "B1", NominalV: 400})
	require.NoError(t, err)
	_, err = n.NewGenerator(GeneratorSpec{ID: "G1", Bus: "B1", MaxP: 500, TargetP: 100, TargetV: 400, RegulationMode: RegulationVoltage})
	require.NoError(t, err)
	_, err = n.NewLoad(LoadSpec{ID: "L1", Bus: "B1", P0: 80, Q0: 10})
	require.NoError(t, err)
	return n
}

func TestNew(t *testing.T) {
	t.Run("initial variant", func(t *testing.T) {
		n, err := New("grid")
		require.NoError(t, err)
		assert.Equal(t, "grid", n.ID())
		assert.Equal(t, []string{variant.InitialVariantID}, n.Variants().VariantIDs())
		assert.Zero(t, n.Count())
	})

	t.Run("custom initial variant", func(t *testing.T) {
		n, err := New("grid", WithInitialVariant("Base"))
		require.NoError(t, err)
		assert.Equal(t, "Base", n.Variants().InitialVariantID())
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrEmptyID)
	})

	t.Run("instance ids differ", func(t *testing.T) {
		a, err := New("grid")
		require.NoError(t, err)
		b, err := New("grid")
		require.NoError(t, err)
		assert.NotEqual(t, a.InstanceID(), b.InstanceID())
	})
}

func TestNetwork_Identifiables(t *testing.T) {
	n := newTestNetwork(t)

	assert.Equal(t, 3, n.Count())
	var ids []string
	for _, e := range n.Identifiables() {
		ids = append(ids, e.ID())
	}
	assert.Equal(t, []string{"B1", "G1", "L1"}, ids)

	g, err := n.Generator("G1")
	require.NoError(t, err)
	assert.Equal(t, KindGenerator, g.Kind())
	assert.Equal(t, "G1", g.Name())
	assert.Same(t, n, g.Network())

	_, err = n.Load("G1")
	assert.ErrorIs(t, err, ErrWrongKind)
	_, err = n.Line("missing")
	assert.ErrorIs(t, err, ErrIdentifiableNotFound)
	assert.ErrorIs(t, err, variant.ErrNotFound)

	assert.Len(t, n.Buses(), 1)
	assert.Len(t, n.Generators(), 1)
	assert.Len(t, n.Loads(), 1)
	assert.Empty(t, n.Lines())
}

func TestNetwork_Add(t *testing.T) {
	t.Run("duplicate id", func(t *testing.T) {
		n := newTestNetwork(t)
		_, err := n.NewLoad(LoadSpec{ID: "G1", Bus: "B1"})
		assert.ErrorIs(t, err, ErrDuplicateID)
		assert.ErrorIs(t, err, variant.ErrConflict)
		assert.Equal(t, 3, n.Count())
	})

	t.Run("unknown bus", func(t *testing.T) {
		n := newTestNetwork(t)
		_, err := n.NewLoad(LoadSpec{ID: "L2", Bus: "nope"})
		assert.ErrorIs(t, err, ErrIdentifiableNotFound)
	})

	t.Run("invalid values", func(t *testing.T) {
		n := newTestNetwork(t)
		_, err := n.NewGenerator(GeneratorSpec{ID: "G2", Bus: "B1", RegulationMode: "DROOP"})
		assert.ErrorIs(t, err, ErrInvalidValue)
		_, err = n.NewGenerator(GeneratorSpec{ID: "G2", Bus: "B1", MinP: 10, MaxP: 5})
		assert.ErrorIs(t, err, ErrInvalidValue)
		_, err = n.NewShuntCompensator(ShuntSpec{ID: "S1", Bus: "B1", SectionCount: 3, MaximumSectionCount: 2})
		assert.ErrorIs(t, err, ErrInvalidValue)
		_, err = n.NewTwoWindingsTransformer(TransformerSpec{ID: "T1", Bus1: "B1", Bus2: "B1"})
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("entity added after clones sees every variant", func(t *testing.T) {
		n := newTestNetwork(t)
		require.NoError(t, n.Variants().CloneVariant(variant.InitialVariantID, "V1"))

		_, err := n.NewLoad(LoadSpec{ID: "L2", Bus: "B1", P0: 5})
		require.NoError(t, err)
		l, err := n.Load("L2")
		require.NoError(t, err)

		require.NoError(t, n.Variants().SetWorkingVariant(context.Background(), "V1"))
		p0, err := l.P0(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5.0, p0)
	})
}

// Scenario: a clone starts out equal to its source and then diverges.
func TestNetwork_VariantIsolation(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	vm := n.Variants()
	l, err := n.Load("L1")
	require.NoError(t, err)

	require.NoError(t, vm.CloneVariant(variant.InitialVariantID, "V1"))
	require.NoError(t, vm.SetWorkingVariant(ctx, "V1"))

	p0, err := l.P0(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80.0, p0)

	require.NoError(t, l.SetP0(ctx, 120))

	require.NoError(t, vm.SetWorkingVariant(ctx, variant.InitialVariantID))
	p0, err = l.P0(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80.0, p0)

	require.NoError(t, vm.SetWorkingVariant(ctx, "V1"))
	p0, err = l.P0(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120.0, p0)
}

func TestNetwork_StaticAttributesShared(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	b, err := n.Bus("B1")
	require.NoError(t, err)
	require.NoError(t, n.Variants().CloneVariant(variant.InitialVariantID, "V1"))
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, "V1"))

	b.SetNominalV(225)

	require.NoError(t, n.Variants().SetWorkingVariant(ctx, variant.InitialVariantID))
	assert.Equal(t, 225.0, b.NominalV())
}

func TestNetwork_PerVariantTopology(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	vm := n.Variants()
	b, err := n.Bus("B1")
	require.NoError(t, err)
	l, err := n.Load("L1")
	require.NoError(t, err)

	require.NoError(t, vm.CloneVariant(variant.InitialVariantID, "Outage"))
	require.NoError(t, vm.SetWorkingVariant(ctx, "Outage"))
	require.NoError(t, l.Terminal().Disconnect(ctx))

	loads, err := b.ConnectedLoads(ctx)
	require.NoError(t, err)
	assert.Empty(t, loads)
	bus, err := l.Terminal().ConnectedBus(ctx)
	require.NoError(t, err)
	assert.Nil(t, bus)

	require.NoError(t, vm.SetWorkingVariant(ctx, variant.InitialVariantID))
	loads, err = b.ConnectedLoads(ctx)
	require.NoError(t, err)
	require.Len(t, loads, 1)
	assert.Same(t, l, loads[0])

	gens, err := b.ConnectedGenerators(ctx)
	require.NoError(t, err)
	assert.Len(t, gens, 1)
	assert.Len(t, b.Terminals(), 2)
}

func TestNetwork_Branches(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	_, err := n.NewBus(BusSpec{ID: "B2", NominalV: 225})
	require.NoError(t, err)

	line, err := n.NewLine(LineSpec{ID: "LN1", Bus1: "B1", Bus2: "B2", R: 0.5, X: 4})
	require.NoError(t, err)
	tr, err := n.NewTwoWindingsTransformer(TransformerSpec{ID: "T1", Bus1: "B1", Bus2: "B2", RatedU1: 400, RatedU2: 225, TapPosition: 3})
	require.NoError(t, err)

	require.NoError(t, line.Terminal1().SetP(ctx, 50))
	require.NoError(t, line.Terminal2().SetP(ctx, -49))
	p1, err := line.Terminal1().P(ctx)
	require.NoError(t, err)
	p2, err := line.Terminal2().P(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50.0, p1)
	assert.Equal(t, -49.0, p2)

	require.NoError(t, n.Variants().CloneVariant(variant.InitialVariantID, "V1"))
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, "V1"))
	require.NoError(t, tr.SetTapPosition(ctx, 5))
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, variant.InitialVariantID))
	tap, err := tr.TapPosition(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, tap)

	assert.ErrorIs(t, tr.SetRatedU1(0), ErrInvalidValue)
	assert.Equal(t, 4.0, line.X())

	b2, err := n.Bus("B2")
	require.NoError(t, err)
	assert.Len(t, b2.Terminals(), 2)
}

func TestNetwork_Validation(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	s, err := n.NewShuntCompensator(ShuntSpec{ID: "S1", Bus: "B1", SectionCount: 1, MaximumSectionCount: 3})
	require.NoError(t, err)
	g, err := n.Generator("G1")
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetSectionCount(ctx, 4), ErrInvalidValue)
	require.NoError(t, s.SetSectionCount(ctx, 3))
	count, err := s.SectionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.ErrorIs(t, g.SetRegulationMode(ctx, "DROOP"), ErrInvalidValue)
	require.NoError(t, g.SetRegulationMode(ctx, RegulationOff))
	assert.ErrorIs(t, g.SetMinP(1000), ErrInvalidValue)
	require.NoError(t, g.SetMaxP(600))
	assert.Equal(t, 600.0, g.MaxP())
}

func TestNetwork_Remove(t *testing.T) {
	t.Run("bus in use", func(t *testing.T) {
		n := newTestNetwork(t)
		err := n.Remove("B1")
		assert.ErrorIs(t, err, ErrBusInUse)
		assert.ErrorIs(t, err, variant.ErrIllegalOperation)
	})

	t.Run("detaches terminals", func(t *testing.T) {
		n := newTestNetwork(t)
		require.NoError(t, n.Remove("L1"))
		require.NoError(t, n.Remove("G1"))
		require.NoError(t, n.Remove("B1"))
		assert.Zero(t, n.Count())
	})

	t.Run("unknown id", func(t *testing.T) {
		n := newTestNetwork(t)
		assert.ErrorIs(t, n.Remove("nope"), ErrIdentifiableNotFound)
	})

	t.Run("removed entity stops following clones", func(t *testing.T) {
		n := newTestNetwork(t)
		l, err := n.Load("L1")
		require.NoError(t, err)
		require.NoError(t, n.Remove("L1"))

		require.NoError(t, n.Variants().CloneVariant(variant.InitialVariantID, "V1"))
		require.NoError(t, n.Variants().SetWorkingVariant(context.Background(), "V1"))
		_, err = l.P0(context.Background())
		assert.ErrorIs(t, err, variant.ErrAttributeNotAllocated)
	})
}

func TestNetwork_Listeners(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	rec := &recordingListener{}
	n.AddListener(rec)
	l, err := n.Load("L1")
	require.NoError(t, err)

	require.NoError(t, n.Variants().CloneVariant(variant.InitialVariantID, "V1"))
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, "V1"))
	require.NoError(t, l.SetP0(ctx, 90))
	l.SetName("load one")
	require.NoError(t, n.Variants().RemoveVariant("V1"))
	_, err = n.NewBus(BusSpec{ID: "B9"})
	require.NoError(t, err)
	require.NoError(t, n.Remove("B9"))

	assert.Equal(t, []event{
		{kind: "variant_created", id: "V1", variantID: variant.InitialVariantID},
		{kind: "variant_update", id: "L1", attribute: AttrP0, variantID: "V1", oldValue: 80.0, newValue: 90.0},
		{kind: "update", id: "L1", attribute: AttrName, oldValue: "", newValue: "load one"},
		{kind: "variant_removed", id: "V1"},
		{kind: "creation", id: "B9"},
		{kind: "removal", id: "B9"},
	}, rec.snapshot())

	n.RemoveListener(rec)
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, variant.InitialVariantID))
	require.NoError(t, l.SetP0(ctx, 1))
	assert.Len(t, rec.snapshot(), 6)
}

// variantInspector looks the variant up again when told about it.
type variantInspector struct {
	NopListener
	n    *Network
	seen []string
}

func (v *variantInspector) OnVariantCreated(_, targetID string) {
	v.seen = append(v.seen, fmt.Sprintf("created %s %t", targetID, v.n.Variants().Exists(targetID)))
}

func (v *variantInspector) OnVariantRemoved(id string) {
	v.seen = append(v.seen, fmt.Sprintf("removed %s %t %v", id, v.n.Variants().Exists(id), v.n.Variants().VariantIDs()))
}

func TestNetwork_ListenerReadsVariants(t *testing.T) {
	n := newTestNetwork(t)
	inspector := &variantInspector{n: n}
	n.AddListener(inspector)

	done := make(chan error, 1)
	go func() {
		if err := n.Variants().CloneVariant(variant.InitialVariantID, "V1"); err != nil {
			done <- err
			return
		}
		done <- n.Variants().RemoveVariant("V1")
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener blocked on the variant manager")
	}

	assert.Equal(t, []string{
		"created V1 true",
		"removed V1 false [" + variant.InitialVariantID + "]",
	}, inspector.seen)
}

func TestNetwork_SetSameValueStillNotifies(t *testing.T) {
	ctx := context.Background()
	n := newTestNetwork(t)
	rec := &recordingListener{}
	n.AddListener(rec)
	l, err := n.Load("L1")
	require.NoError(t, err)

	require.NoError(t, l.SetP0(ctx, 80))
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, 80.0, events[0].oldValue)
	assert.Equal(t, 80.0, events[0].newValue)
}

// Scenario: workers bound to different variants read and write the same
// entity without seeing each other.
func TestNetwork_ConcurrentWorkers(t *testing.T) {
	n := newTestNetwork(t)
	vm := n.Variants()
	l, err := n.Load("L1")
	require.NoError(t, err)

	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("V%d", i)
	}
	require.NoError(t, vm.CloneVariant(variant.InitialVariantID, ids...))
	vm.EnableMultiThreadAccess(context.Background())

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			ctx := variant.WithWorkerSlot(context.Background())
			if err := vm.SetWorkingVariant(ctx, id); err != nil {
				errs <- err
				return
			}
			for step := 0; step < 100; step++ {
				if err := l.SetP0(ctx, float64(i*1000+step)); err != nil {
					errs <- err
					return
				}
				got, err := l.P0(ctx)
				if err != nil {
					errs <- err
					return
				}
				if got != float64(i*1000+step) {
					errs <- fmt.Errorf("worker %s read %v", id, got)
					return
				}
			}
		}(i, id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	for i, id := range ids {
		ctx := variant.WithWorkerSlot(context.Background())
		require.NoError(t, vm.SetWorkingVariant(ctx, id))
		got, err := l.P0(ctx)
		require.NoError(t, err)
		assert.Equal(t, float64(i*1000+99), got)
	}
}
