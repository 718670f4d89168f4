package audit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestAggregateStats(t *testing.T) {
	config := testConfig(t)
	w := newTestWriter(t, config)

	runID, err := w.StartRun("1.0.0", "host")
	require.NoError(t, err)
	require.NoError(t, w.RecordPatch("/data/kars.dbf", "/data/kars.dbf", nil, PatchDetails{Field: "ADI"}))
	for _, change := range []FieldChange{
		{Record: 0, Region: "KARS", Reason: "FUZZY_MATCH"},
		{Record: 1, Region: "KARS", Reason: "EXACT_MATCH"},
		{Record: 2, Region: "ARDAHAN", Reason: "FUZZY_MATCH"},
	} {
		require.NoError(t, w.RecordFieldUpdate("/data/kars.dbf", change))
	}
	require.NoError(t, w.EndRun(runID, RunStatusCompleted, RunSummary{Tables: 1, Patched: 1, Fields: 3}))

	undoID, err := w.StartUndoRun("1.0.0", "host", runID)
	require.NoError(t, err)
	require.NoError(t, w.EndRun(undoID, RunStatusCompleted, RunSummary{}))

	stats, err := AggregateStats(config.LogDirectory, StatsOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalRuns)
	require.Equal(t, 1, stats.TotalUndos)
	require.Equal(t, 1, stats.TablesPatched)
	require.Equal(t, 3, stats.FieldsFixed)
	require.Equal(t, map[string]int{"KARS": 2, "ARDAHAN": 1}, stats.ByRegion)
	require.Equal(t, map[string]int{"FUZZY_MATCH": 2, "EXACT_MATCH": 1}, stats.ByReason)
	require.False(t, stats.FirstRun.IsZero())

	top, err := AggregateStats(config.LogDirectory, StatsOptions{TopN: 1})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"KARS": 2}, top.ByRegion)

	future := time.Now().Add(time.Hour)
	none, err := AggregateStats(config.LogDirectory, StatsOptions{Since: &future})
	require.NoError(t, err)
	require.Zero(t, none.TotalRuns)
	require.Zero(t, none.FieldsFixed)
}

// Feature: audit-trail, Property 8: Top-N Region Filter
// filterTopN keeps at most n entries, and every kept count is at least as
// large as every dropped one.
func TestFilterTopNProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("top-N keeps the largest counts", prop.ForAll(
		func(counts map[string]int, n int) bool {
			kept := filterTopN(counts, n)

			if n <= 0 || len(counts) <= n {
				return len(kept) == len(counts)
			}
			if len(kept) != n {
				return false
			}
			for k, v := range counts {
				if _, ok := kept[k]; ok {
					continue
				}
				for _, kv := range kept {
					if kv < v {
						return false
					}
				}
			}
			return true
		},
		gen.MapOf(gen.AlphaString(), gen.IntRange(1, 50)),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
