package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSampleRun(t *testing.T, w *AuditWriter) RunID {
	t.Helper()
	runID, err := w.StartRun("1.0.0", "host")
	require.NoError(t, err)
	details := PatchDetails{Field: "ADI", Encoding: "CP1254", HeaderLength: 97, RecordLength: 23, FieldOffset: 11, FieldLength: 12, Updates: 1}
	require.NoError(t, w.RecordPatch("/data/kars.dbf", "/out/kars.dbf", nil, details))
	require.NoError(t, w.RecordFieldUpdate("/out/kars.dbf", FieldChange{
		Record:  0,
		Region:  "KARS",
		OldText: "KAGIZMN",
		NewText: "KAĞIZMAN",
		OldRaw:  HexBytes([]byte("KAGIZMN     ")),
		NewRaw:  HexBytes([]byte("KA\xD0IZMAN    ")),
	}))
	require.NoError(t, w.RecordNoChanges("/data/ardahan.dbf"))
	return runID
}

func TestFilterEventsByPath(t *testing.T) {
	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := writeSampleRun(t, w)
	require.NoError(t, w.EndRun(runID, RunStatusCompleted, RunSummary{}))

	reader := NewAuditReader(config.LogDirectory)

	events, err := reader.FilterEvents(runID, EventFilter{Path: "/out/kars.dbf"})
	require.NoError(t, err)
	require.Len(t, events, 2)

	events, err = reader.FilterEvents(runID, EventFilter{Path: "/data/kars.dbf"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventPatchTable, events[0].EventType)

	events, err = reader.FilterEvents(runID, EventFilter{Status: StatusSkipped})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventNoChanges, events[0].EventType)
}

func TestRunWithoutEndIsSummarisedFromEvents(t *testing.T) {
	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := writeSampleRun(t, w)

	info, err := NewAuditReader(config.LogDirectory).GetRunByID(runID)
	require.NoError(t, err)
	require.Equal(t, RunStatusInProgress, info.Status)
	require.Nil(t, info.EndTime)
	require.Equal(t, RunSummary{Tables: 2, Patched: 1, Unchanged: 1, Fields: 1}, info.Summary)
}

func TestCorruptRunSummaryIsReported(t *testing.T) {
	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := writeSampleRun(t, w)
	require.NoError(t, w.WriteEvent(AuditEvent{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		EventType: EventRunEnd,
		Status:    StatusSuccess,
		Metadata:  map[string]string{"status": string(RunStatusCompleted), "tables": "two", "patched": "1"},
	}))

	info, err := NewAuditReader(config.LogDirectory).GetRunByID(runID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, info.Status)
	require.Contains(t, info.SummaryWarning, `tables="two"`)
	require.Equal(t, RunSummary{Tables: 2, Patched: 1, Unchanged: 1, Fields: 1}, info.Summary)
}

func TestParseSummaryFromMetadata(t *testing.T) {
	summary, err := parseSummaryFromMetadata(map[string]string{"tables": "3", "fields": "7"})
	require.NoError(t, err)
	require.Equal(t, RunSummary{Tables: 3, Fields: 7}, summary)

	_, err = parseSummaryFromMetadata(map[string]string{"errors": "-"})
	require.Error(t, err)
}

func TestGetLatestFixRunSkipsUndoRuns(t *testing.T) {
	config := testConfig(t)
	w := newTestWriter(t, config)

	fixID := writeSampleRun(t, w)
	require.NoError(t, w.EndRun(fixID, RunStatusCompleted, RunSummary{}))
	undoID, err := w.StartUndoRun("1.0.0", "host", fixID)
	require.NoError(t, err)
	require.NoError(t, w.EndRun(undoID, RunStatusCompleted, RunSummary{}))

	reader := NewAuditReader(config.LogDirectory)

	latestFix, err := reader.GetLatestFixRun()
	require.NoError(t, err)
	require.Equal(t, fixID, latestFix.RunID)

	runs, err := reader.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
}

func TestGetRunUnknown(t *testing.T) {
	config := testConfig(t)
	newTestWriter(t, config)

	_, err := NewAuditReader(config.LogDirectory).GetRun("missing")
	require.Error(t, err)
}

func TestListRunsWithoutLogDirectory(t *testing.T) {
	runs, err := NewAuditReader(filepath.Join(t.TempDir(), "none")).ListRuns()
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestCheckFileIntegrity(t *testing.T) {
	dir := t.TempDir()
	reader := NewAuditReader(dir)

	result, err := reader.CheckLogIntegrity()
	require.NoError(t, err)
	require.Equal(t, IntegrityMissing, result.Status)

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	result, err = reader.CheckFileIntegrity(empty)
	require.NoError(t, err)
	require.Equal(t, IntegrityEmpty, result.Status)

	line := `{"timestamp":"2024-05-17T10:00:00Z","runId":"r","eventType":"RUN_START","status":"SUCCESS"}`

	good := filepath.Join(dir, "good.jsonl")
	require.NoError(t, os.WriteFile(good, []byte(line+"\n"+line+"\n"), 0644))
	result, err = reader.CheckFileIntegrity(good)
	require.NoError(t, err)
	require.Equal(t, IntegrityOK, result.Status)
	require.Equal(t, 2, result.TotalLines)

	truncated := filepath.Join(dir, "truncated.jsonl")
	require.NoError(t, os.WriteFile(truncated, []byte(line+"\n"+line), 0644))
	result, err = reader.CheckFileIntegrity(truncated)
	require.NoError(t, err)
	require.Equal(t, IntegrityCorrupt, result.Status)

	garbage := filepath.Join(dir, "garbage.jsonl")
	require.NoError(t, os.WriteFile(garbage, []byte(line+"\n{\"timestamp\n"), 0644))
	result, err = reader.CheckFileIntegrity(garbage)
	require.NoError(t, err)
	require.Equal(t, IntegrityCorrupt, result.Status)
	require.Equal(t, 2, result.ErrorLine)
}

func TestGetCorruptSegments(t *testing.T) {
	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := writeSampleRun(t, w)
	require.NoError(t, w.EndRun(runID, RunStatusCompleted, RunSummary{}))

	reader := NewAuditReader(config.LogDirectory)
	corrupt, err := reader.GetCorruptSegments()
	require.NoError(t, err)
	require.Empty(t, corrupt)

	segment := filepath.Join(config.LogDirectory, segmentPrefix+"20240101-000000.000000000"+segmentSuffix)
	require.NoError(t, os.WriteFile(segment, []byte(`{"timestamp":`), 0644))

	corrupt, err = reader.GetCorruptSegments()
	require.NoError(t, err)
	require.Len(t, corrupt, 1)
	require.Equal(t, segment, corrupt[0].FilePath)
}
