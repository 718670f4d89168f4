package audit

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ActiveLogName is the file name of the log currently being appended to.
const ActiveLogName = "ilcefix-audit.jsonl"

// AuditWriter handles all write operations to the audit log.
// It implements append-only semantics with fail-fast behavior.
type AuditWriter struct {
	mu              sync.Mutex
	file            *os.File
	writer          *bufio.Writer
	logPath         string
	currentRun      *RunID
	config          AuditConfig
	rotationManager *RotationManager
}

// NewAuditWriter creates the log directory if needed and opens the active
// log for appending. A new log starts with a LOG_INITIALIZED event.
func NewAuditWriter(config AuditConfig) (*AuditWriter, error) {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(config.LogDirectory, ActiveLogName)

	isNewLog := false
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		isNewLog = true
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	writer := &AuditWriter{
		file:            file,
		writer:          bufio.NewWriter(file),
		logPath:         logPath,
		config:          config,
		rotationManager: NewRotationManager(config),
	}

	if isNewLog {
		if err := writer.writeLogInitialized(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write LOG_INITIALIZED event: %w", err)
		}
	}

	return writer, nil
}

// GenerateRunID generates a new UUID v4 format Run ID.
func GenerateRunID() (RunID, error) {
	uuid := make([]byte, 16)
	_, err := rand.Read(uuid)
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %w", err)
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x40 // Version 4
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // Variant RFC 4122

	return RunID(fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4],
		uuid[4:6],
		uuid[6:8],
		uuid[8:10],
		uuid[10:16],
	)), nil
}

// StartRun begins a FIX run and writes its RUN_START event.
func (w *AuditWriter) StartRun(appVersion string, machineID string) (RunID, error) {
	return w.startRun(map[string]string{
		"appVersion": appVersion,
		"machineId":  machineID,
		"runType":    string(RunTypeFix),
	})
}

// StartUndoRun begins an UNDO run targeting targetRunID.
func (w *AuditWriter) StartUndoRun(appVersion string, machineID string, targetRunID RunID) (RunID, error) {
	return w.startRun(map[string]string{
		"appVersion":   appVersion,
		"machineId":    machineID,
		"runType":      string(RunTypeUndo),
		"undoTargetId": string(targetRunID),
	})
}

func (w *AuditWriter) startRun(metadata map[string]string) (RunID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	runID, err := GenerateRunID()
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		EventType: EventRunStart,
		Status:    StatusSuccess,
		Metadata:  metadata,
	}

	if err := w.writeEventLocked(event); err != nil {
		return "", fmt.Errorf("failed to write RUN_START event: %w", err)
	}

	w.currentRun = &runID
	return runID, nil
}

// WriteEvent writes a single audit event to the log.
// It fails fast if the write cannot be completed.
func (w *AuditWriter) WriteEvent(event AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.writeEventLocked(event)
}

func (w *AuditWriter) writeLine(event AuditEvent) error {
	data, err := event.MarshalJSONLine()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync event to disk: %w", err)
	}
	return nil
}

// writeEventLocked writes an event while holding the lock, then rotates the
// log if it has grown past its limits.
func (w *AuditWriter) writeEventLocked(event AuditEvent) error {
	if err := w.writeLine(event); err != nil {
		return err
	}

	if event.EventType != EventRotation {
		if err := w.checkAndRotate(); err != nil {
			return fmt.Errorf("failed to check/perform rotation: %w", err)
		}
	}

	return nil
}

// checkAndRotate writes a ROTATION event, moves the active log aside and
// opens a fresh one.
func (w *AuditWriter) checkAndRotate() error {
	needsRotation, err := w.rotationManager.NeedsRotation(w.logPath)
	if err != nil {
		return err
	}

	if !needsRotation {
		return nil
	}

	rotatedFilename := w.rotationManager.GenerateRotatedFilename()

	var runID RunID
	if w.currentRun != nil {
		runID = *w.currentRun
	}
	if err := w.writeLine(CreateRotationEvent(runID, filepath.Base(w.logPath), rotatedFilename)); err != nil {
		return fmt.Errorf("failed to write rotation event: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close file for rotation: %w", err)
	}

	if _, err := w.rotationManager.RotateWithFilename(w.logPath, rotatedFilename); err != nil {
		return fmt.Errorf("failed to rotate log: %w", err)
	}

	file, err := os.OpenFile(w.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open new log file after rotation: %w", err)
	}

	w.file = file
	w.writer = bufio.NewWriter(file)

	return nil
}

// EndRun records the run completion status and summary.
func (w *AuditWriter) EndRun(runID RunID, status RunStatus, summary RunSummary) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		EventType: EventRunEnd,
		Status:    runStatusToOperationStatus(status),
		Metadata: map[string]string{
			"status":    string(status),
			"tables":    fmt.Sprintf("%d", summary.Tables),
			"patched":   fmt.Sprintf("%d", summary.Patched),
			"unchanged": fmt.Sprintf("%d", summary.Unchanged),
			"fields":    fmt.Sprintf("%d", summary.Fields),
			"errors":    fmt.Sprintf("%d", summary.Errors),
		},
	}

	if err := w.writeEventLocked(event); err != nil {
		return fmt.Errorf("failed to write RUN_END event: %w", err)
	}

	w.currentRun = nil
	return nil
}

func runStatusToOperationStatus(status RunStatus) OperationStatus {
	switch status {
	case RunStatusFailed, RunStatusInterrupted:
		return StatusFailure
	default:
		return StatusSuccess
	}
}

// Close flushes any buffered data and closes the audit log file.
func (w *AuditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush on close: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}

	return nil
}

func (w *AuditWriter) activeRun() (RunID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentRun == nil {
		return "", fmt.Errorf("no active run: call StartRun first")
	}
	return *w.currentRun, nil
}

// RecordPatch records a PATCH_TABLE event for a table written from source
// to dest. identity is the state of dest after the patch.
func (w *AuditWriter) RecordPatch(source, dest string, identity *FileIdentity, details PatchDetails) error {
	runID, err := w.activeRun()
	if err != nil {
		return err
	}

	return w.WriteEvent(AuditEvent{
		Timestamp:       time.Now().UTC(),
		RunID:           runID,
		EventType:       EventPatchTable,
		Status:          StatusSuccess,
		SourcePath:      source,
		DestinationPath: dest,
		FileIdentity:    identity,
		Patch:           &details,
	})
}

// RecordFieldUpdate records a FIELD_UPDATE event for one rewritten field.
func (w *AuditWriter) RecordFieldUpdate(dest string, change FieldChange) error {
	runID, err := w.activeRun()
	if err != nil {
		return err
	}

	return w.WriteEvent(AuditEvent{
		Timestamp:       time.Now().UTC(),
		RunID:           runID,
		EventType:       EventFieldUpdate,
		Status:          StatusSuccess,
		DestinationPath: dest,
		Field:           &change,
	})
}

// RecordNoChanges records that a table needed no correction.
func (w *AuditWriter) RecordNoChanges(source string) error {
	runID, err := w.activeRun()
	if err != nil {
		return err
	}

	return w.WriteEvent(AuditEvent{
		Timestamp:  time.Now().UTC(),
		RunID:      runID,
		EventType:  EventNoChanges,
		Status:     StatusSkipped,
		SourcePath: source,
		ReasonCode: ReasonNothingToChange,
	})
}

// RecordError records an ERROR event for a table that could not be processed.
func (w *AuditWriter) RecordError(source, errType, errMsg, operation string) error {
	runID, err := w.activeRun()
	if err != nil {
		return err
	}

	return w.WriteEvent(AuditEvent{
		Timestamp:  time.Now().UTC(),
		RunID:      runID,
		EventType:  EventError,
		Status:     StatusFailure,
		SourcePath: source,
		ErrorDetails: &ErrorDetails{
			ErrorType:    errType,
			ErrorMessage: errMsg,
			Operation:    operation,
		},
	})
}

// RecordUndoTable records a table restored by an undo run.
func (w *AuditWriter) RecordUndoTable(path string, identity *FileIdentity, restored int) error {
	runID, err := w.activeRun()
	if err != nil {
		return err
	}

	return w.WriteEvent(AuditEvent{
		Timestamp:       time.Now().UTC(),
		RunID:           runID,
		EventType:       EventUndoTable,
		Status:          StatusSuccess,
		DestinationPath: path,
		FileIdentity:    identity,
		Metadata: map[string]string{
			"restoredFields": fmt.Sprintf("%d", restored),
		},
	})
}

// RecordUndoSkip records a table an undo run left alone.
func (w *AuditWriter) RecordUndoSkip(path string, reason ReasonCode, message string) error {
	runID, err := w.activeRun()
	if err != nil {
		return err
	}

	event := AuditEvent{
		Timestamp:       time.Now().UTC(),
		RunID:           runID,
		EventType:       EventUndoSkip,
		Status:          StatusSkipped,
		DestinationPath: path,
		ReasonCode:      reason,
	}
	if message != "" {
		event.Metadata = map[string]string{"message": message}
	}
	return w.WriteEvent(event)
}

func (w *AuditWriter) writeLogInitialized() error {
	return w.writeLine(AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLogInitialized,
		Status:    StatusSuccess,
		Metadata: map[string]string{
			"logPath": w.logPath,
		},
	})
}

// CheckAndPruneRetention prunes rotated segments past the retention limits.
func (w *AuditWriter) CheckAndPruneRetention() (*PruneResult, error) {
	rm := NewRetentionManager(w.config)
	return rm.Prune(w)
}

