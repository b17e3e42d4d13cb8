package scenario

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/gridvar/core/config"
	"github.com/adalundhe/gridvar/core/network"
	"github.com/adalundhe/gridvar/core/variant"
)

const baseYAML = `
network: grid
buses:
  - id: B1
    nominal_v: 400
loads:
  - id: L1
    bus: B1
    p0: 80
`

func parse(t *testing.T, steps string) *Scenario {
	t.Helper()
	s, err := Parse([]byte(baseYAML + steps))
	require.NoError(t, err)
	return s
}

func TestRunner_PeakScenario(t *testing.T) {
	s, err := Load("testdata/peak.yaml")
	require.NoError(t, err)

	result, err := NewRunner(nil).Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, "peak", result.Network)
	assert.NotEmpty(t, result.InstanceID)
	assert.Equal(t, uint64(8), result.Sequence)
	require.Len(t, result.Variants, 3)

	initial := result.Variant(variant.InitialVariantID)
	require.NotNil(t, initial)
	assert.False(t, initial.Override)
	assert.Equal(t, 80.0, initial.Values["L1"][network.AttrP0])
	assert.Equal(t, true, initial.Values["L1"][network.AttrConnected])
	assert.Equal(t, result.Base, initial.Changes)
	assert.Equal(t, []string{"G1", "L1"}, initial.EntityIDs())

	peak := result.Variant("PEAK")
	require.NotNil(t, peak)
	assert.True(t, peak.Override)
	assert.Equal(t, 120.0, peak.Values["L1"][network.AttrP0])
	assert.Equal(t, 30.0, peak.Values["G1"][network.AttrTargetQ])
	assert.Equal(t, []string{
		"#1 create bus B1",
		"#2 create bus B2",
		"#3 create generator G1",
		"#4 create load L1",
		"#5 create two_windings_transformer T1",
		"#6 update L1.p0 80 -> 120 [PEAK]",
		"#8 update T1.name  -> main",
	}, peak.Changes)

	night := result.Variant("NIGHT")
	require.NotNil(t, night)
	assert.Equal(t, false, night.Values["L1"][network.AttrConnected])
	assert.Equal(t, 80.0, night.Values["L1"][network.AttrP0])
	assert.Contains(t, night.Changes, "#7 update L1.connected true -> false [NIGHT]")
	assert.NotContains(t, night.Changes, "#6 update L1.p0 80 -> 120 [PEAK]")
}

func TestRunner_OverwriteAndRemove(t *testing.T) {
	s := parse(t, `
steps:
  - clone: {source: InitialState, targets: [V1]}
  - use: V1
  - set: {id: L1, attribute: p0, value: 90}
  - overwrite: {source: V1, target: V2}
  - overwrite: {source: InitialState, target: V1}
  - use: InitialState
  - clone: {source: V2, targets: [V3]}
  - remove_variant: V3
`)
	result, err := NewRunner(nil).Run(context.Background(), s)
	require.NoError(t, err)

	v1 := result.Variant("V1")
	require.NotNil(t, v1)
	assert.False(t, v1.Override)
	assert.Equal(t, 80.0, v1.Values["L1"][network.AttrP0])

	v2 := result.Variant("V2")
	require.NotNil(t, v2)
	assert.True(t, v2.Override)
	assert.Equal(t, 90.0, v2.Values["L1"][network.AttrP0])
	assert.Contains(t, v2.Changes, "#3 update L1.p0 80 -> 90 [V1]")

	assert.Nil(t, result.Variant("V3"))
}

func TestRunner_RemoveEntity(t *testing.T) {
	s := parse(t, `
steps:
  - remove: L1
`)
	result, err := NewRunner(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "#3 remove load L1", result.Base[2])
	assert.Equal(t, []string{"B1"}, result.Variants[0].EntityIDs())
}

func TestRunner_Parallel(t *testing.T) {
	s := parse(t, `
steps:
  - clone: {source: InitialState, targets: [A, B, C]}
  - parallel:
      variants: [A, B, C]
      set:
        - {id: L1, attribute: p0, value: 100}
        - {id: L1, attribute: q0, value: 5}
  - set: {id: L1, attribute: q0, value: 1}
report:
  attributes:
    L1: [p0, q0]
`)
	result, err := NewRunner(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), result.Sequence)

	for _, id := range []string{"A", "B", "C"} {
		v := result.Variant(id)
		require.NotNil(t, v, id)
		assert.Equal(t, 100.0, v.Values["L1"][network.AttrP0])
		assert.Equal(t, 5.0, v.Values["L1"][network.AttrQ0])
		assert.Len(t, v.Changes, 4)
		for _, c := range v.Changes[2:] {
			assert.True(t, strings.HasSuffix(c, "["+id+"]"), c)
		}
	}

	initial := result.Variant(variant.InitialVariantID)
	require.NotNil(t, initial)
	assert.Equal(t, 80.0, initial.Values["L1"][network.AttrP0])
	assert.Equal(t, 1.0, initial.Values["L1"][network.AttrQ0])
}

func TestRunner_MultiThreadFromConfig(t *testing.T) {
	s := parse(t, `
config:
  variants:
    multi_thread: true
    worker_limit: 1
steps:
  - clone: {source: InitialState, targets: [V1]}
  - use: V1
  - set: {id: L1, attribute: p0, value: 70}
`)
	result, err := NewRunner(nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 70.0, result.Variant("V1").Values["L1"][network.AttrP0])
	assert.Equal(t, 80.0, result.Variant(variant.InitialVariantID).Values["L1"][network.AttrP0])
}

func TestRunner_ConfigOverlay(t *testing.T) {
	base := config.DefaultConfig()
	base.Variants.InitialID = "BASE"

	s := parse(t, `
config:
  changelog:
    ignored_attributes: [p0]
steps:
  - set: {id: L1, attribute: p0, value: 1}
`)
	result, err := NewRunner(base).Run(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, result.Variants, 1)
	assert.Equal(t, "BASE", result.Variants[0].ID)
	assert.Equal(t, uint64(2), result.Sequence)
	assert.Empty(t, base.ChangeLog.IgnoredAttributes)
}

func TestRunner_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("failing step", func(t *testing.T) {
		s := parse(t, "steps:\n  - set: {id: L1, attribute: p0, value: 1}\n  - use: nope\n")
		_, err := NewRunner(nil).Run(ctx, s)
		assert.ErrorIs(t, err, variant.ErrVariantNotFound)
		assert.Contains(t, err.Error(), "step 2 (use)")
	})

	t.Run("bad attribute value", func(t *testing.T) {
		s := parse(t, "steps:\n  - set: {id: L1, attribute: p0, value: lots}\n")
		_, err := NewRunner(nil).Run(ctx, s)
		assert.ErrorIs(t, err, network.ErrInvalidValue)
	})

	t.Run("parallel on a missing variant", func(t *testing.T) {
		s := parse(t, "steps:\n  - parallel: {variants: [X], set: [{id: L1, attribute: p0, value: 1}]}\n")
		_, err := NewRunner(nil).Run(ctx, s)
		assert.ErrorIs(t, err, variant.ErrVariantNotFound)
	})

	t.Run("unknown kind in config", func(t *testing.T) {
		s := parse(t, "config:\n  changelog:\n    ignored_by_kind:\n      pylon: [p]\n")
		_, err := NewRunner(nil).Run(ctx, s)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("entity on unknown bus", func(t *testing.T) {
		s, err := Parse([]byte("network: n\nloads: [{id: L1, bus: B9}]\n"))
		require.NoError(t, err)
		_, err = NewRunner(nil).Run(ctx, s)
		assert.ErrorIs(t, err, network.ErrIdentifiableNotFound)
	})

	t.Run("unknown report variant", func(t *testing.T) {
		s := parse(t, "report:\n  variants: [X]\n")
		_, err := NewRunner(nil).Run(ctx, s)
		assert.ErrorIs(t, err, variant.ErrVariantNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		s := parse(t, "steps:\n  - use: InitialState\n")
		_, err := NewRunner(nil).Run(cancelled, s)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type recordingListener struct {
	network.NopListener
	mu      sync.Mutex
	created []string
}

func (r *recordingListener) OnCreation(identifiable network.Identifiable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, identifiable.ID())
}

func TestRunner_ListenersAndMetrics(t *testing.T) {
	rec := &recordingListener{}
	reg := prometheus.NewRegistry()
	runner := NewRunner(nil, WithListener(rec), WithRegisterer(reg))

	s := parse(t, "steps:\n  - clone: {source: InitialState, targets: [V1]}\n")
	_, err := runner.Run(context.Background(), s)
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, []string{"B1", "L1", "B1", "L1"}, rec.created)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["gridvar_variant_clones_total"])
	assert.True(t, names["gridvar_changelog_changes_total"])
}

func TestIgnorePolicy(t *testing.T) {
	policy, err := IgnorePolicy(config.ChangeLogConfig{
		IgnoredAttributes: []string{network.AttrName},
		IgnoredByKind:     map[string][]string{"load": {network.AttrQ0}},
	})
	require.NoError(t, err)

	assert.True(t, policy.Ignored(network.KindBus, network.AttrName))
	assert.True(t, policy.Ignored(network.KindLoad, network.AttrQ0))
	assert.False(t, policy.Ignored(network.KindGenerator, network.AttrQ0))
	assert.True(t, policy.Ignored(network.KindBus, network.AttrConnectedComponentNumber))
}
