package audit

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf/dbftest"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/patcher"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

// patchAndRecord patches record 0 of the table at path in place, the way a
// fix run does, and records it under a new run.
func patchAndRecord(t *testing.T, w *AuditWriter, path string, text string, withCompanion bool) RunID {
	t.Helper()

	table, err := dbf.Open(path, textenc.CP1254)
	require.NoError(t, err)
	field, ok := table.Field("ADI")
	require.True(t, ok)

	oldRaw, err := table.RawField(0, field)
	require.NoError(t, err)

	_, companionErr := os.Stat(textenc.CompanionPath(path))
	companionExisted := companionErr == nil
	companionBefore := ""
	if companionExisted {
		data, _ := os.ReadFile(textenc.CompanionPath(path))
		companionBefore = string(data)
	}

	codepage := textenc.UTF8.CodepageByte()
	plan := patcher.NewPlan(table, field, textenc.CP1254)
	plan.Codepage = &codepage
	plan.RepairOffsets = true
	plan.WriteCompanion = withCompanion
	plan.Updates = []patcher.Update{{Record: 0, Text: text}}

	runID, err := w.StartRun("test", "host")
	require.NoError(t, err)

	_, err = patcher.Apply(path, path, plan)
	require.NoError(t, err)

	identity, err := NewIdentityResolver().CaptureIdentity(path)
	require.NoError(t, err)

	require.NoError(t, w.RecordPatch(path, path, identity, PatchDetails{
		Field:              field.Name,
		Encoding:           textenc.CP1254.Name(),
		HeaderLength:       table.Header.HeaderLength,
		RecordLength:       table.Header.RecordLength,
		FieldOffset:        field.Offset,
		FieldLength:        field.Length,
		Updates:            1,
		CodepageWritten:    true,
		CodepageBefore:     table.Header.Codepage,
		CodepageAfter:      codepage,
		AddressesRewritten: true,
		AddressesBefore:    table.Addresses(),
		CompanionWritten:   withCompanion,
		CompanionExisted:   companionExisted,
		CompanionBefore:    companionBefore,
	}))
	require.NoError(t, w.RecordFieldUpdate(path, FieldChange{
		Record:  0,
		Region:  "KARS",
		OldRaw:  HexBytes(oldRaw),
		NewRaw:  HexBytes(textenc.CP1254.Fit(text, field.Length)),
		NewText: text,
	}))
	require.NoError(t, w.EndRun(runID, RunStatusCompleted, RunSummary{Tables: 1, Patched: 1, Fields: 1}))
	return runID
}

func karsTable(t *testing.T, dir string) string {
	t.Helper()
	layout := dbftest.Districts(dbftest.R("KARS", "KAGIZMN"), dbftest.R("KARS", "SARIKAMIS"))
	layout.Codepage = 0x57
	return dbftest.Write(t, dir, "kars.dbf", layout)
}

func TestUndoRunRestoresOriginalBytes(t *testing.T) {
	dir := t.TempDir()
	path := karsTable(t, dir)
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := patchAndRecord(t, w, path, "KAĞIZMAN", true)

	patched, _ := os.ReadFile(path)
	require.NotEqual(t, original, patched)
	require.FileExists(t, textenc.CompanionPath(path))

	engine := NewUndoEngine(NewAuditReader(config.LogDirectory), w, "test", "host")
	result, err := engine.UndoRun(runID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Restored)
	require.Equal(t, 1, result.FieldsRestored)
	require.Equal(t, 0, result.Skipped)

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, restored)
	require.NoFileExists(t, textenc.CompanionPath(path))

	info, err := NewAuditReader(config.LogDirectory).GetRunByID(result.UndoRunID)
	require.NoError(t, err)
	require.Equal(t, RunTypeUndo, info.RunType)
	require.NotNil(t, info.UndoTargetID)
	require.Equal(t, runID, *info.UndoTargetID)
}

func TestUndoRestoresPreviousCompanion(t *testing.T) {
	dir := t.TempDir()
	path := karsTable(t, dir)
	require.NoError(t, os.WriteFile(textenc.CompanionPath(path), []byte("1254"), 0644))

	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := patchAndRecord(t, w, path, "KAĞIZMAN", true)

	companion, _ := os.ReadFile(textenc.CompanionPath(path))
	require.Equal(t, "CP1254", string(companion))

	engine := NewUndoEngine(NewAuditReader(config.LogDirectory), w, "test", "host")
	_, err := engine.UndoRun(runID)
	require.NoError(t, err)

	companion, _ = os.ReadFile(textenc.CompanionPath(path))
	require.Equal(t, "1254", string(companion))
}

func TestUndoSkipsChangedTable(t *testing.T) {
	dir := t.TempDir()
	path := karsTable(t, dir)

	config := testConfig(t)
	w := newTestWriter(t, config)
	first := patchAndRecord(t, w, path, "KAĞIZMAN", false)
	patchAndRecord(t, w, path, "KAGIZMAN", false)

	engine := NewUndoEngine(NewAuditReader(config.LogDirectory), w, "test", "host")

	preview, err := engine.PreviewUndo(first)
	require.NoError(t, err)
	require.Len(t, preview.Tables, 1)
	require.False(t, preview.Tables[0].WillRestore)
	require.Equal(t, ReasonContentChanged, preview.Tables[0].Reason)

	before, _ := os.ReadFile(path)
	result, err := engine.UndoRun(first)
	require.NoError(t, err)
	require.Equal(t, 0, result.Restored)
	require.Equal(t, 1, result.Skipped)
	require.Equal(t, ReasonContentChanged, result.FailureDetails[0].Reason)

	after, _ := os.ReadFile(path)
	require.Equal(t, before, after)

	skips, err := NewAuditReader(config.LogDirectory).FilterEvents(result.UndoRunID, EventFilter{EventTypes: []EventType{EventUndoSkip}})
	require.NoError(t, err)
	require.Len(t, skips, 1)
}

func TestUndoLatestUndoesNewestFixRun(t *testing.T) {
	dir := t.TempDir()
	path := karsTable(t, dir)

	config := testConfig(t)
	w := newTestWriter(t, config)
	patchAndRecord(t, w, path, "KAĞIZMAN", false)
	afterFirst, _ := os.ReadFile(path)
	patchAndRecord(t, w, path, "KAGIZMAN", false)

	engine := NewUndoEngine(NewAuditReader(config.LogDirectory), w, "test", "host")
	result, err := engine.UndoLatest()
	require.NoError(t, err)
	require.Equal(t, 1, result.Restored)

	current, _ := os.ReadFile(path)
	require.Equal(t, afterFirst, current)
}

func TestUndoMissingTable(t *testing.T) {
	dir := t.TempDir()
	path := karsTable(t, dir)

	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := patchAndRecord(t, w, path, "KAĞIZMAN", false)
	require.NoError(t, os.Remove(path))

	engine := NewUndoEngine(NewAuditReader(config.LogDirectory), w, "test", "host")
	result, err := engine.UndoRun(runID)
	require.NoError(t, err)
	require.Equal(t, ReasonTableMissing, result.FailureDetails[0].Reason)
}

func TestUndoRejectsUndoRunsAndUnknownRuns(t *testing.T) {
	dir := t.TempDir()
	path := karsTable(t, dir)

	config := testConfig(t)
	w := newTestWriter(t, config)
	runID := patchAndRecord(t, w, path, "KAĞIZMAN", false)

	engine := NewUndoEngine(NewAuditReader(config.LogDirectory), w, "test", "host")
	result, err := engine.UndoRun(runID)
	require.NoError(t, err)

	_, err = engine.UndoRun(result.UndoRunID)
	require.Error(t, err)

	_, err = engine.UndoRun(RunID("00000000-0000-4000-8000-000000000000"))
	require.Error(t, err)
}

func TestUndoLatestWithoutRuns(t *testing.T) {
	config := testConfig(t)
	w := newTestWriter(t, config)
	engine := NewUndoEngine(NewAuditReader(config.LogDirectory), w, "test", "host")

	_, err := engine.UndoLatest()
	require.Error(t, err)
}
