package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{ID: 1, RunID: "r", Network: "n", Kind: EventCreation, EntityID: "L1", EntityKind: "load", At: at},
		{ID: 2, RunID: "r", Network: "n", Kind: EventVariantCreated, VariantID: "V1", SourceID: "InitialState", At: at},
		{ID: 3, RunID: "r", Network: "n", Kind: EventUpdate, VariantID: "V1", EntityID: "L1", EntityKind: "load",
			Attribute: "p0", OldValue: "80", NewValue: "90", At: at},
	}
}

func TestParseOutputFormat(t *testing.T) {
	assert.Equal(t, OutputFormatJSON, ParseOutputFormat("JSON"))
	assert.Equal(t, OutputFormatCSV, ParseOutputFormat("csv"))
	assert.Equal(t, OutputFormatTable, ParseOutputFormat("table"))
	assert.Equal(t, OutputFormatTable, ParseOutputFormat("anything"))
}

func TestFormatRecords(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, FormatRecords(sampleRecords(), OutputFormatTable, &buf))
		out := buf.String()
		assert.Contains(t, out, "load L1")
		assert.Contains(t, out, "cloned from InitialState")
		assert.Contains(t, out, "L1.p0")
		assert.Contains(t, out, "80 -> 90")
		assert.Contains(t, out, "2026-03-01 12:00:00")
	})

	t.Run("empty table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, FormatRecords(nil, OutputFormatTable, &buf))
		assert.Equal(t, "No events found.\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, FormatRecords(sampleRecords(), OutputFormatJSON, &buf))
		var decoded []Record
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 3)
		assert.Equal(t, "90", decoded[2].NewValue)
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, FormatRecords(sampleRecords(), OutputFormatCSV, &buf))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 4)
		assert.True(t, strings.HasPrefix(lines[0], "id,run_id,network,kind"))
		assert.Contains(t, lines[3], "3,r,n,update,V1,,L1,load,p0,80,90,")
	})
}

func TestFormatRuns(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []RunSummary{{RunID: "run-1", Network: "a-very-long-network-name", Events: 4, First: at, Last: at.Add(time.Second)}}

	var buf bytes.Buffer
	require.NoError(t, FormatRuns(runs, OutputFormatTable, &buf))
	assert.Contains(t, buf.String(), "run-1")
	assert.Contains(t, buf.String(), "a-very-long-n...")
	assert.Contains(t, buf.String(), "2026-03-01 12:00:01")

	buf.Reset()
	require.NoError(t, FormatRuns(nil, OutputFormatTable, &buf))
	assert.Equal(t, "No runs found.\n", buf.String())

	buf.Reset()
	require.NoError(t, FormatRuns(runs, OutputFormatJSON, &buf))
	assert.Contains(t, buf.String(), `"RunID": "run-1"`)
}
