package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventJSONLineOmitsEmptyFields(t *testing.T) {
	event := AuditEvent{
		Timestamp: time.Date(2024, 5, 17, 10, 30, 0, 123456789, time.UTC),
		RunID:     "run-1",
		EventType: EventNoChanges,
		Status:    StatusSkipped,
	}

	line, err := event.MarshalJSONLine()
	require.NoError(t, err)
	require.NotContains(t, string(line), "\n")
	require.Contains(t, string(line), `"timestamp":"2024-05-17T10:30:00.123456789Z"`)
	for _, key := range []string{"sourcePath", "destinationPath", "reasonCode", "patch", "field"} {
		require.False(t, strings.Contains(string(line), `"`+key+`"`), "unexpected key %s", key)
	}

	decoded, err := UnmarshalJSONLine(line)
	require.NoError(t, err)
	require.True(t, decoded.Timestamp.Equal(event.Timestamp))
	require.Equal(t, event.EventType, decoded.EventType)
}

func TestEventJSONLineKeepsPatchDetails(t *testing.T) {
	event := AuditEvent{
		Timestamp:       time.Now().UTC(),
		RunID:           "run-1",
		EventType:       EventPatchTable,
		Status:          StatusSuccess,
		SourcePath:      "/data/kars.dbf",
		DestinationPath: "/out/kars.dbf",
		Patch: &PatchDetails{
			Field:           "ADI",
			Encoding:        "CP1254",
			FieldOffset:     11,
			FieldLength:     12,
			CodepageWritten: true,
			CodepageBefore:  0x57,
			CodepageAfter:   0xCA,
			AddressesBefore: []uint32{0, 0},
		},
	}

	line, err := event.MarshalJSONLine()
	require.NoError(t, err)
	decoded, err := UnmarshalJSONLine(line)
	require.NoError(t, err)
	require.Equal(t, event.SourcePath, decoded.SourcePath)
	require.Equal(t, event.DestinationPath, decoded.DestinationPath)
	require.Equal(t, *event.Patch, *decoded.Patch)
}

func TestUnmarshalJSONLineRejectsBadTimestamp(t *testing.T) {
	_, err := UnmarshalJSONLine([]byte(`{"timestamp":"yesterday","runId":"r","eventType":"RUN_START","status":"SUCCESS"}`))
	require.Error(t, err)
}

func TestEventCheck(t *testing.T) {
	layout := &PatchDetails{Field: "ADI", HeaderLength: 97, RecordLength: 23, FieldOffset: 11, FieldLength: 12}

	tests := []struct {
		name  string
		event AuditEvent
		ok    bool
	}{
		{"run start", AuditEvent{EventType: EventRunStart, RunID: "r"}, true},
		{"run start without id", AuditEvent{EventType: EventRunStart}, false},
		{"patch", AuditEvent{EventType: EventPatchTable, DestinationPath: "/out/kars.dbf", Patch: layout}, true},
		{"patch without details", AuditEvent{EventType: EventPatchTable, DestinationPath: "/out/kars.dbf"}, false},
		{"patch without destination", AuditEvent{EventType: EventPatchTable, Patch: layout}, false},
		{"patch outside record", AuditEvent{EventType: EventPatchTable, DestinationPath: "/out/kars.dbf",
			Patch: &PatchDetails{RecordLength: 11, FieldOffset: 11, FieldLength: 12}}, false},
		{"field", AuditEvent{EventType: EventFieldUpdate, Field: &FieldChange{OldRaw: "4b41", NewRaw: "4bd0"}}, true},
		{"field without details", AuditEvent{EventType: EventFieldUpdate}, false},
		{"field with bad hex", AuditEvent{EventType: EventFieldUpdate, Field: &FieldChange{OldRaw: "zz", NewRaw: "4b"}}, false},
		{"field changing width", AuditEvent{EventType: EventFieldUpdate, Field: &FieldChange{OldRaw: "4b41", NewRaw: "4b41d0"}}, false},
		{"no changes", AuditEvent{EventType: EventNoChanges}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Check()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestEventDescribe(t *testing.T) {
	tests := []struct {
		event AuditEvent
		want  string
	}{
		{
			AuditEvent{EventType: EventPatchTable, SourcePath: "/data/kars.dbf", DestinationPath: "/out/kars.dbf",
				Patch: &PatchDetails{Field: "ADI", Encoding: "CP1254", Updates: 2}},
			"patched /data/kars.dbf -> /out/kars.dbf: 2 ADI values as CP1254",
		},
		{
			AuditEvent{EventType: EventPatchTable, SourcePath: "/data/kars.dbf", DestinationPath: "/data/kars.dbf",
				Patch: &PatchDetails{Field: "ADI", Encoding: "UTF-8", Updates: 1}},
			"patched /data/kars.dbf: 1 ADI values as UTF-8",
		},
		{
			AuditEvent{EventType: EventFieldUpdate, DestinationPath: "/data/kars.dbf",
				Field: &FieldChange{Record: 3, Region: "KARS", OldText: "KAGIZMN", NewText: "KAĞIZMAN", Reason: "FUZZY_MATCH"}},
			"kars.dbf record 3 KARS       'KAGIZMN' -> 'KAĞIZMAN' FUZZY_MATCH",
		},
		{
			AuditEvent{EventType: EventError, SourcePath: "/data/bad.dbf",
				ErrorDetails: &ErrorDetails{ErrorType: "TRUNCATED_HEADER", ErrorMessage: "short"}},
			"failed /data/bad.dbf: TRUNCATED_HEADER short",
		},
		{
			AuditEvent{EventType: EventUndoSkip, DestinationPath: "/data/kars.dbf", ReasonCode: ReasonContentChanged},
			"left /data/kars.dbf alone: CONTENT_CHANGED",
		},
		{AuditEvent{EventType: EventRunEnd, Metadata: map[string]string{"status": "COMPLETED"}}, "run ended COMPLETED"},
		{AuditEvent{EventType: EventRotation}, "ROTATION"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.event.Describe())
	}
}
