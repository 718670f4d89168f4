package audit

import (
	"errors"
	"fmt"
	"os"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/patcher"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

// UndoResult contains the result of an undo operation.
type UndoResult struct {
	UndoRunID      RunID       // The run ID of the undo operation itself
	TargetRunID    RunID       // The run ID that was undone
	TotalTables    int         // Patched tables found in the target run
	Restored       int         // Tables restored
	FieldsRestored int         // Fields written back
	Skipped        int         // Tables left alone
	FailureDetails []UndoError // Why tables were left alone
}

// UndoError describes a table an undo left alone.
type UndoError struct {
	Path    string
	Reason  ReasonCode
	Message string
}

// UndoPreview shows what would be undone without executing.
type UndoPreview struct {
	TargetRunID RunID
	Tables      []UndoPreviewTable
}

// UndoPreviewTable describes one table of an undo preview.
type UndoPreviewTable struct {
	Path        string
	Fields      int
	WillRestore bool
	Reason      ReasonCode // Set when WillRestore is false
}

// patchGroup is one PATCH_TABLE event with the FIELD_UPDATE events that
// followed it.
type patchGroup struct {
	patch  AuditEvent
	fields []FieldChange
}

// UndoEngine reverses fix runs. Tables are restored newest first, and only
// when their content still matches what the run wrote.
type UndoEngine struct {
	reader           *AuditReader
	writer           *AuditWriter
	identityResolver *IdentityResolver
	appVersion       string
	machineID        string
}

// NewUndoEngine creates a new UndoEngine with the given reader and writer.
func NewUndoEngine(reader *AuditReader, writer *AuditWriter, appVersion, machineID string) *UndoEngine {
	return &UndoEngine{
		reader:           reader,
		writer:           writer,
		identityResolver: NewIdentityResolver(),
		appVersion:       appVersion,
		machineID:        machineID,
	}
}

// UndoLatest undoes the most recent fix run.
func (e *UndoEngine) UndoLatest() (*UndoResult, error) {
	latest, err := e.reader.GetLatestFixRun()
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return e.UndoRun(latest.RunID)
}

// UndoRun restores every table patched by runID to its previous bytes:
// field values, language driver byte, descriptor offsets and companion file.
// A table whose content changed since the run is skipped with
// CONTENT_CHANGED.
func (e *UndoEngine) UndoRun(runID RunID) (*UndoResult, error) {
	runInfo, err := e.reader.GetRunByID(runID)
	if err != nil {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	if runInfo.RunType == RunTypeUndo {
		return nil, fmt.Errorf("cannot undo an UNDO run")
	}

	events, err := e.reader.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for run %s: %w", runID, err)
	}
	groups := groupPatches(events)

	undoRunID, err := e.writer.StartUndoRun(e.appVersion, e.machineID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to start undo run: %w", err)
	}

	result := &UndoResult{
		UndoRunID:   undoRunID,
		TargetRunID: runID,
		TotalTables: len(groups),
	}

	for i := len(groups) - 1; i >= 0; i-- {
		restored, undoErr := e.undoGroup(groups[i])
		if undoErr != nil {
			e.writer.RecordUndoSkip(undoErr.Path, undoErr.Reason, undoErr.Message)
			result.Skipped++
			result.FailureDetails = append(result.FailureDetails, *undoErr)
			continue
		}
		result.Restored++
		result.FieldsRestored += restored
	}

	summary := RunSummary{
		Tables:    result.TotalTables,
		Patched:   result.Restored,
		Unchanged: result.Skipped,
		Fields:    result.FieldsRestored,
	}

	status := RunStatusCompleted
	if result.Skipped > 0 && result.Restored == 0 {
		status = RunStatusFailed
	}

	if err := e.writer.EndRun(undoRunID, status, summary); err != nil {
		return result, fmt.Errorf("failed to end undo run: %w", err)
	}

	return result, nil
}

// PreviewUndo reports which tables of runID can be restored.
func (e *UndoEngine) PreviewUndo(runID RunID) (*UndoPreview, error) {
	events, err := e.reader.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for run %s: %w", runID, err)
	}

	preview := &UndoPreview{TargetRunID: runID}
	groups := groupPatches(events)
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		table := UndoPreviewTable{
			Path:   g.patch.DestinationPath,
			Fields: len(g.fields),
		}
		if undoErr := e.verify(g); undoErr != nil {
			table.Reason = undoErr.Reason
		} else {
			table.WillRestore = true
		}
		preview.Tables = append(preview.Tables, table)
	}
	return preview, nil
}

func groupPatches(events []AuditEvent) []*patchGroup {
	var groups []*patchGroup
	last := make(map[string]*patchGroup)
	for _, event := range events {
		switch event.EventType {
		case EventPatchTable:
			if event.Patch == nil {
				continue
			}
			g := &patchGroup{patch: event}
			groups = append(groups, g)
			last[event.DestinationPath] = g
		case EventFieldUpdate:
			if g, ok := last[event.DestinationPath]; ok && event.Field != nil {
				g.fields = append(g.fields, *event.Field)
			}
		}
	}
	return groups
}

func (e *UndoEngine) verify(g *patchGroup) *UndoError {
	path := g.patch.DestinationPath
	if g.patch.FileIdentity == nil {
		return &UndoError{Path: path, Reason: ReasonContentChanged, Message: "no identity recorded for patched table"}
	}

	match, err := e.identityResolver.VerifyIdentity(path, *g.patch.FileIdentity)
	if err != nil {
		return &UndoError{Path: path, Reason: ReasonRestoreFailed, Message: err.Error()}
	}
	switch match {
	case IdentityMatches:
		return nil
	case IdentityNotFound:
		return &UndoError{Path: path, Reason: ReasonTableMissing, Message: match.Describe()}
	}
	return &UndoError{Path: path, Reason: ReasonContentChanged, Message: match.Describe()}
}

func (e *UndoEngine) undoGroup(g *patchGroup) (int, *UndoError) {
	if undoErr := e.verify(g); undoErr != nil {
		return 0, undoErr
	}

	path := g.patch.DestinationPath
	plan, err := restorePlan(g)
	if err != nil {
		return 0, &UndoError{Path: path, Reason: ReasonRestoreFailed, Message: err.Error()}
	}

	if _, err := patcher.Apply(path, path, plan); err != nil {
		return 0, &UndoError{Path: path, Reason: ReasonRestoreFailed, Message: err.Error()}
	}

	if err := restoreCompanion(path, g.patch.Patch); err != nil {
		return 0, &UndoError{Path: path, Reason: ReasonRestoreFailed, Message: err.Error()}
	}

	identity, err := e.identityResolver.CaptureIdentity(path)
	if err != nil {
		identity = nil
	}
	e.writer.RecordUndoTable(path, identity, len(plan.Updates))

	return len(plan.Updates), nil
}

// restorePlan builds the patch that writes back the recorded old state.
func restorePlan(g *patchGroup) (patcher.Plan, error) {
	d := g.patch.Patch
	enc, err := textenc.Parse(d.Encoding)
	if err != nil {
		return patcher.Plan{}, err
	}

	plan := patcher.Plan{
		HeaderLength: d.HeaderLength,
		RecordLength: d.RecordLength,
		FieldOffset:  d.FieldOffset,
		FieldLength:  d.FieldLength,
		Encoding:     enc,
	}

	if d.CodepageWritten {
		codepage := d.CodepageBefore
		plan.Codepage = &codepage
	}

	if d.AddressesRewritten && len(d.AddressesBefore) > 0 {
		plan.Fields = make([]dbf.Field, len(d.AddressesBefore))
		plan.Addresses = d.AddressesBefore
	}

	for _, f := range g.fields {
		raw, err := ParseHexBytes(f.OldRaw)
		if err != nil {
			return patcher.Plan{}, fmt.Errorf("record %d: bad stored bytes: %w", f.Record, err)
		}
		plan.Updates = append(plan.Updates, patcher.Update{Record: f.Record, Raw: raw})
	}

	return plan, nil
}

func restoreCompanion(tablePath string, d *PatchDetails) error {
	if !d.CompanionWritten {
		return nil
	}
	companion := textenc.CompanionPath(tablePath)
	if d.CompanionExisted {
		return os.WriteFile(companion, []byte(d.CompanionBefore), 0644)
	}
	if err := os.Remove(companion); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
