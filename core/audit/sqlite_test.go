package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/gridvar/core/network"
	"github.com/adalundhe/gridvar/core/variant"
)

func openTestSink(t *testing.T, cacheEntries int64) *SQLiteSink {
	t.Helper()
	sink, err := OpenSQLiteSink(SinkConfig{
		Path:         filepath.Join(t.TempDir(), "audit", "events.db"),
		Network:      "test",
		CacheEntries: cacheEntries,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func buildNetwork(t *testing.T, sink *SQLiteSink) (*network.Network, *network.Load) {
	t.Helper()
	n, err := network.New("test")
	require.NoError(t, err)
	n.AddListener(sink)

	_, err = n.NewBus(network.BusSpec{ID: "B1"})
	require.NoError(t, err)
	load, err := n.NewLoad(network.LoadSpec{ID: "L1", Bus: "B1", P0: 10})
	require.NoError(t, err)
	return n, load
}

func TestSQLiteSink_RecordsEvents(t *testing.T) {
	ctx := context.Background()
	sink := openTestSink(t, 0)
	n, load := buildNetwork(t, sink)

	require.NoError(t, n.Variants().CloneVariant(variant.InitialVariantID, "V1"))
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, "V1"))
	require.NoError(t, load.SetP0(ctx, 12.5))
	load.SetName("main load")
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, variant.InitialVariantID))
	require.NoError(t, n.Variants().RemoveVariant("V1"))

	all, err := sink.All(ctx)
	require.NoError(t, err)
	kinds := make([]string, len(all))
	for i, r := range all {
		kinds[i] = r.Kind
		assert.Equal(t, sink.RunID(), r.RunID)
		assert.Equal(t, "test", r.Network)
		assert.False(t, r.At.IsZero())
	}
	assert.Equal(t, []string{
		EventCreation, EventCreation, EventVariantCreated, EventUpdate, EventUpdate, EventVariantRemoved,
	}, kinds)

	v1, err := sink.Events(ctx, "V1")
	require.NoError(t, err)
	require.Len(t, v1, 3)
	assert.Equal(t, variant.InitialVariantID, v1[0].SourceID)
	assert.Equal(t, "L1", v1[1].EntityID)
	assert.Equal(t, "load", v1[1].EntityKind)
	assert.Equal(t, network.AttrP0, v1[1].Attribute)
	assert.Equal(t, "10", v1[1].OldValue)
	assert.Equal(t, "12.5", v1[1].NewValue)

	untagged, err := sink.Events(ctx, "")
	require.NoError(t, err)
	require.Len(t, untagged, 3)
	assert.Equal(t, network.AttrName, untagged[2].Attribute)
	assert.NoError(t, sink.LastError())
}

func TestSQLiteSink_RunsAreSeparate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	first, err := OpenSQLiteSink(SinkConfig{Path: path, Network: "a"})
	require.NoError(t, err)
	buildNetwork(t, first)
	require.NoError(t, first.Close())

	second, err := OpenSQLiteSink(SinkConfig{Path: path, Network: "b"})
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.RunID(), second.RunID())

	events, err := second.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLiteSink_CacheFollowsWrites(t *testing.T) {
	ctx := context.Background()
	sink := openTestSink(t, 16)
	_, load := buildNetwork(t, sink)

	first, err := sink.Events(ctx, variant.InitialVariantID)
	require.NoError(t, err)
	assert.Empty(t, first)
	sink.cache.Wait()

	require.NoError(t, load.SetP0(ctx, 1))
	second, err := sink.Events(ctx, variant.InitialVariantID)
	require.NoError(t, err)
	assert.Len(t, second, 1)
	sink.cache.Wait()

	third, err := sink.Events(ctx, variant.InitialVariantID)
	require.NoError(t, err)
	assert.Equal(t, second, third)

	third[0].EntityID = "mutated"
	fourth, err := sink.Events(ctx, variant.InitialVariantID)
	require.NoError(t, err)
	assert.Equal(t, "L1", fourth[0].EntityID)
}

func TestSQLiteSink_Closed(t *testing.T) {
	sink := openTestSink(t, 0)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	sink.OnVariantRemoved("x")
	assert.ErrorIs(t, sink.LastError(), ErrClosed)

	_, err := sink.All(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenSQLiteSink_Memory(t *testing.T) {
	sink, err := OpenSQLiteSink(SinkConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer sink.Close()

	sink.OnVariantCreated("A", "B")
	events, err := sink.Events(context.Background(), "B")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventVariantCreated, events[0].Kind)

	_, err = OpenSQLiteSink(SinkConfig{})
	assert.Error(t, err)
}

func TestReader(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	first, err := OpenSQLiteSink(SinkConfig{Path: path, Network: "a"})
	require.NoError(t, err)
	n, load := buildNetwork(t, first)
	require.NoError(t, n.Variants().CloneVariant(variant.InitialVariantID, "V1"))
	require.NoError(t, n.Variants().SetWorkingVariant(ctx, "V1"))
	require.NoError(t, load.SetP0(ctx, 3))
	require.NoError(t, first.Close())

	second, err := OpenSQLiteSink(SinkConfig{Path: path, Network: "b"})
	require.NoError(t, err)
	second.OnVariantCreated("X", "Y")
	require.NoError(t, second.Close())

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	runs, err := reader.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.RunID(), runs[0].RunID)
	assert.Equal(t, "a", runs[0].Network)
	assert.Equal(t, 4, runs[0].Events)
	assert.Equal(t, 1, runs[1].Events)
	assert.False(t, runs[0].Last.Before(runs[0].First))

	v1, err := reader.Events(ctx, Filter{RunID: first.RunID(), VariantID: "V1"})
	require.NoError(t, err)
	assert.Len(t, v1, 2)

	untagged, err := reader.Events(ctx, Filter{Untagged: true})
	require.NoError(t, err)
	assert.Len(t, untagged, 2)

	last, err := reader.Events(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "Y", last[0].VariantID)

	_, err = OpenReader(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}
