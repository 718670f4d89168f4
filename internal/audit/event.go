package audit

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
)

// MarshalJSONLine encodes the event as one JSON line without the newline.
// Timestamps are written in UTC with nanoseconds.
func (e AuditEvent) MarshalJSONLine() ([]byte, error) {
	e.Timestamp = e.Timestamp.UTC()
	return json.Marshal(e)
}

// UnmarshalJSONLine decodes one line of the log.
func UnmarshalJSONLine(data []byte) (*AuditEvent, error) {
	var e AuditEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// HexBytes encodes raw field bytes for FieldChange.
func HexBytes(b []byte) string {
	return hex.EncodeToString(b)
}

// ParseHexBytes decodes a FieldChange raw value.
func ParseHexBytes(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// Check reports an event that undo could not act on: a patch without the
// layout it wrote, or a field change whose stored bytes do not decode or
// do not fill the same width before and after.
func (e *AuditEvent) Check() error {
	switch e.EventType {
	case EventRunStart, EventRunEnd:
		if e.RunID == "" {
			return fmt.Errorf("%s without a run ID", e.EventType)
		}
	case EventPatchTable:
		if e.Patch == nil {
			return errors.New("PATCH_TABLE without patch details")
		}
		if e.DestinationPath == "" {
			return errors.New("PATCH_TABLE without a destination")
		}
		if e.Patch.FieldLength <= 0 || e.Patch.RecordLength <= e.Patch.FieldOffset {
			return fmt.Errorf("PATCH_TABLE with field %d+%d outside record length %d",
				e.Patch.FieldOffset, e.Patch.FieldLength, e.Patch.RecordLength)
		}
	case EventFieldUpdate:
		if e.Field == nil {
			return errors.New("FIELD_UPDATE without field details")
		}
		oldRaw, err := ParseHexBytes(e.Field.OldRaw)
		if err != nil {
			return fmt.Errorf("record %d: old value: %w", e.Field.Record, err)
		}
		newRaw, err := ParseHexBytes(e.Field.NewRaw)
		if err != nil {
			return fmt.Errorf("record %d: new value: %w", e.Field.Record, err)
		}
		if len(oldRaw) != len(newRaw) {
			return fmt.Errorf("record %d: old value is %d bytes, new value %d", e.Field.Record, len(oldRaw), len(newRaw))
		}
	}
	return nil
}

// Describe renders the event as one line of a history listing.
func (e AuditEvent) Describe() string {
	switch e.EventType {
	case EventRunStart:
		return fmt.Sprintf("run started (%s on %s)", e.Metadata["appVersion"], e.Metadata["machineId"])
	case EventRunEnd:
		return fmt.Sprintf("run ended %s", e.Metadata["status"])
	case EventPatchTable:
		if e.Patch == nil {
			return "patched " + e.DestinationPath
		}
		target := e.DestinationPath
		if e.SourcePath != "" && e.SourcePath != e.DestinationPath {
			target = e.SourcePath + " -> " + e.DestinationPath
		}
		return fmt.Sprintf("patched %s: %d %s values as %s", target, e.Patch.Updates, e.Patch.Field, e.Patch.Encoding)
	case EventFieldUpdate:
		if e.Field == nil {
			return "field updated in " + e.DestinationPath
		}
		f := e.Field
		return fmt.Sprintf("%s record %d %-10s '%s' -> '%s' %s",
			filepath.Base(e.DestinationPath), f.Record, f.Region, f.OldText, f.NewText, f.Reason)
	case EventNoChanges:
		return "nothing to change in " + e.SourcePath
	case EventError:
		if e.ErrorDetails == nil {
			return "failed " + e.SourcePath
		}
		return fmt.Sprintf("failed %s: %s %s", e.SourcePath, e.ErrorDetails.ErrorType, e.ErrorDetails.ErrorMessage)
	case EventUndoTable:
		return fmt.Sprintf("restored %s (%s fields)", e.DestinationPath, e.Metadata["restoredFields"])
	case EventUndoSkip:
		return fmt.Sprintf("left %s alone: %s", e.DestinationPath, e.ReasonCode)
	}
	return string(e.EventType)
}
