// Package audit provides the audit trail for table corrections.
// It implements an append-only event log that records every patched field
// with enough detail to verify and reverse the change later.
package audit

import "time"

// RunID is a unique identifier for each program execution.
// It uses UUID v4 format: "xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx"
type RunID string

// EventType represents the type of audit event.
type EventType string

const (
	// Run lifecycle events
	EventRunStart EventType = "RUN_START"
	EventRunEnd   EventType = "RUN_END"

	// Table events
	EventPatchTable  EventType = "PATCH_TABLE"
	EventFieldUpdate EventType = "FIELD_UPDATE"
	EventNoChanges   EventType = "NO_CHANGES"
	EventError       EventType = "ERROR"

	// Undo events
	EventUndoTable EventType = "UNDO_TABLE"
	EventUndoSkip  EventType = "UNDO_SKIP"

	// System events
	EventRotation       EventType = "ROTATION"
	EventRetentionPrune EventType = "RETENTION_PRUNE"
	EventLogInitialized EventType = "LOG_INITIALIZED"
)

// OperationStatus represents the outcome of an operation.
type OperationStatus string

const (
	StatusSuccess OperationStatus = "SUCCESS"
	StatusFailure OperationStatus = "FAILURE"
	StatusSkipped OperationStatus = "SKIPPED"
)

// ReasonCode provides the detailed reason for a skip.
type ReasonCode string

const (
	ReasonNothingToChange ReasonCode = "NOTHING_TO_CHANGE"

	// Undo skip reasons
	ReasonContentChanged ReasonCode = "CONTENT_CHANGED"
	ReasonTableMissing   ReasonCode = "TABLE_MISSING"
	ReasonRestoreFailed  ReasonCode = "RESTORE_FAILED"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusInProgress  RunStatus = "IN_PROGRESS"
	RunStatusCompleted   RunStatus = "COMPLETED"
	RunStatusFailed      RunStatus = "FAILED"
	RunStatusInterrupted RunStatus = "INTERRUPTED"
)

// RunType represents the type of run.
type RunType string

const (
	RunTypeFix  RunType = "FIX"
	RunTypeUndo RunType = "UNDO"
)

// FileIdentity captures the attributes used to recognise a table later.
type FileIdentity struct {
	ContentHash string      `json:"contentHash"`     // SHA-256 hex string
	Size        int64       `json:"size"`            // File size in bytes
	ModTime     time.Time   `json:"modTime"`         // File modification timestamp
	Shape       *TableShape `json:"shape,omitempty"` // Nil for files too short to be a table
}

// TableShape holds the header values that fix the layout of a table.
type TableShape struct {
	Records      uint32 `json:"records"`
	HeaderLength int    `json:"headerLength"`
	RecordLength int    `json:"recordLength"`
}

// ErrorDetails contains detailed information about an error.
type ErrorDetails struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
	Operation    string `json:"operation"`
}

// PatchDetails records the table layout and the header state a patch
// replaced, so that the patch can be reversed.
type PatchDetails struct {
	Field        string `json:"field"`
	Encoding     string `json:"encoding"`
	HeaderLength int    `json:"headerLength"`
	RecordLength int    `json:"recordLength"`
	FieldOffset  int    `json:"fieldOffset"`
	FieldLength  int    `json:"fieldLength"`
	Updates      int    `json:"updates"`

	CodepageWritten bool `json:"codepageWritten"`
	CodepageBefore  byte `json:"codepageBefore"`
	CodepageAfter   byte `json:"codepageAfter"`

	AddressesRewritten bool     `json:"addressesRewritten"`
	AddressesBefore    []uint32 `json:"addressesBefore,omitempty"`

	CompanionWritten bool   `json:"companionWritten"`
	CompanionExisted bool   `json:"companionExisted"`
	CompanionBefore  string `json:"companionBefore,omitempty"` // Raw content of the replaced companion file

	IdentityBefore *FileIdentity `json:"identityBefore,omitempty"` // Source table before patching
}

// FieldChange records one rewritten field.
type FieldChange struct {
	Record  int    `json:"record"`
	Region  string `json:"region,omitempty"`
	Reason  string `json:"reason,omitempty"`
	OldText string `json:"oldText"`
	NewText string `json:"newText"`
	OldRaw  string `json:"oldRaw"` // Hex of the stored bytes before the patch
	NewRaw  string `json:"newRaw"` // Hex of the stored bytes after the patch
}

// AuditEvent represents a single audit record for a table operation or system event.
type AuditEvent struct {
	Timestamp       time.Time         `json:"timestamp"`                 // ISO 8601 format
	RunID           RunID             `json:"runId"`                     // Run identifier
	EventType       EventType         `json:"eventType"`                 // Type of event
	Status          OperationStatus   `json:"status"`                    // Operation outcome
	SourcePath      string            `json:"sourcePath,omitempty"`      // Table that was read
	DestinationPath string            `json:"destinationPath,omitempty"` // Table that was written
	ReasonCode      ReasonCode        `json:"reasonCode,omitempty"`      // Reason for skip
	FileIdentity    *FileIdentity     `json:"fileIdentity,omitempty"`    // Identity of the written table
	Patch           *PatchDetails     `json:"patch,omitempty"`           // PATCH_TABLE details
	Field           *FieldChange      `json:"field,omitempty"`           // FIELD_UPDATE details
	ErrorDetails    *ErrorDetails     `json:"errorDetails,omitempty"`    // Error information
	Metadata        map[string]string `json:"metadata,omitempty"`        // Additional metadata
}

// RunSummary contains statistics for a completed run.
type RunSummary struct {
	Tables    int `json:"tables"`
	Patched   int `json:"patched"`
	Unchanged int `json:"unchanged"`
	Fields    int `json:"fields"`
	Errors    int `json:"errors"`
}

// RunInfo contains metadata and summary for a run.
type RunInfo struct {
	RunID        RunID      `json:"runId"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Status       RunStatus  `json:"status"`
	RunType      RunType    `json:"runType"`
	AppVersion   string     `json:"appVersion"`
	MachineID    string     `json:"machineId"`
	Summary      RunSummary `json:"summary"`
	UndoTargetID *RunID     `json:"undoTargetId,omitempty"` // For UNDO runs
	// SummaryWarning is set when the RUN_END counters could not be read;
	// Summary is then counted from the run's events.
	SummaryWarning string `json:"summaryWarning,omitempty"`
}

// AuditConfig holds configuration for the audit system.
type AuditConfig struct {
	LogDirectory     string `json:"logDirectory"`
	RotationSize     int64  `json:"rotationSizeBytes"` // Rotate when file exceeds this size
	RotationPeriod   string `json:"rotationPeriod"`    // "daily", "weekly", or ""
	RetentionDays    int    `json:"retentionDays"`     // 0 = unlimited
	RetentionRuns    int    `json:"retentionRuns"`     // 0 = unlimited
	MinRetentionDays int    `json:"minRetentionDays"`  // Default: 7
}

// DefaultAuditConfig returns an AuditConfig with sensible defaults.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		LogDirectory:     ".ilcefix/audit",
		RotationSize:     10 * 1024 * 1024, // 10MB
		RotationPeriod:   "",
		RetentionDays:    30,
		RetentionRuns:    0,
		MinRetentionDays: 7,
	}
}
