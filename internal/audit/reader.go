package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// IntegrityStatus represents the result of a log integrity check.
type IntegrityStatus string

const (
	// IntegrityOK indicates the log file is valid and complete.
	IntegrityOK IntegrityStatus = "OK"
	// IntegrityMissing indicates the log file does not exist.
	IntegrityMissing IntegrityStatus = "MISSING"
	// IntegrityCorrupt indicates the log file has corruption (e.g., truncated last line).
	IntegrityCorrupt IntegrityStatus = "CORRUPT"
	// IntegrityEmpty indicates the log file exists but is empty.
	IntegrityEmpty IntegrityStatus = "EMPTY"
)

// LogIntegrityResult contains the result of a log integrity check.
type LogIntegrityResult struct {
	Status       IntegrityStatus
	FilePath     string
	TotalLines   int
	ErrorMessage string
	ErrorLine    int // 0 if N/A
}

// EventFilter defines criteria for filtering audit events.
type EventFilter struct {
	EventTypes []EventType     // Empty = all types
	Status     OperationStatus // Empty = all statuses
	Path       string          // Matches source or destination; empty = all
	StartTime  *time.Time
	EndTime    *time.Time
}

const maxScanTokenSize = 1024 * 1024

// AuditReader reads audit events across the active log and rotated segments.
type AuditReader struct {
	logDir string
}

// NewAuditReader creates a new AuditReader for the given log directory.
func NewAuditReader(logDir string) *AuditReader {
	return &AuditReader{
		logDir: logDir,
	}
}

// ListRuns returns all runs with summary information, oldest first.
func (r *AuditReader) ListRuns() ([]RunInfo, error) {
	events, err := r.readAllEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return r.extractRunInfos(events), nil
}

// GetRun returns all events for a specific run.
func (r *AuditReader) GetRun(runID RunID) ([]AuditEvent, error) {
	events, err := r.readAllEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	var runEvents []AuditEvent
	for _, event := range events {
		if event.RunID == runID {
			runEvents = append(runEvents, event)
		}
	}

	if len(runEvents) == 0 {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	return runEvents, nil
}

// GetLatestFixRun returns the most recent run that patched tables.
func (r *AuditReader) GetLatestFixRun() (*RunInfo, error) {
	runs, err := r.ListRuns()
	if err != nil {
		return nil, err
	}

	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].RunType == RunTypeFix {
			return &runs[i], nil
		}
	}
	return nil, fmt.Errorf("no fix runs found")
}

// GetRunByID returns the RunInfo for a specific run ID.
func (r *AuditReader) GetRunByID(runID RunID) (*RunInfo, error) {
	runs, err := r.ListRuns()
	if err != nil {
		return nil, err
	}

	for _, run := range runs {
		if run.RunID == runID {
			return &run, nil
		}
	}

	return nil, fmt.Errorf("run not found: %s", runID)
}

// FilterEvents returns events of one run matching the filter.
func (r *AuditReader) FilterEvents(runID RunID, filter EventFilter) ([]AuditEvent, error) {
	events, err := r.GetRun(runID)
	if err != nil {
		return nil, err
	}

	return applyFilter(events, filter), nil
}

// FilterAllEvents returns events of every run matching the filter.
func (r *AuditReader) FilterAllEvents(filter EventFilter) ([]AuditEvent, error) {
	events, err := r.readAllEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return applyFilter(events, filter), nil
}

func applyFilter(events []AuditEvent, filter EventFilter) []AuditEvent {
	var filtered []AuditEvent
	for _, event := range events {
		if matchesFilter(event, filter) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

func matchesFilter(event AuditEvent, filter EventFilter) bool {
	if len(filter.EventTypes) > 0 {
		found := false
		for _, et := range filter.EventTypes {
			if event.EventType == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Status != "" && event.Status != filter.Status {
		return false
	}

	if filter.Path != "" && event.SourcePath != filter.Path && event.DestinationPath != filter.Path {
		return false
	}

	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}

	return true
}

func (r *AuditReader) readAllEvents() ([]AuditEvent, error) {
	logFiles, err := GetAllLogFiles(r.logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get log files: %w", err)
	}

	var allEvents []AuditEvent
	for _, logFile := range logFiles {
		events, err := r.readEventsFromFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read events from %s: %w", logFile, err)
		}
		allEvents = append(allEvents, events...)
	}

	return allEvents, nil
}

func (r *AuditReader) readEventsFromFile(filePath string) ([]AuditEvent, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		event, err := UnmarshalJSONLine(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", lineNum, err)
		}
		events = append(events, *event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	return events, nil
}

func (r *AuditReader) extractRunInfos(events []AuditEvent) []RunInfo {
	runEvents := make(map[RunID][]AuditEvent)
	for _, event := range events {
		// System events carry no run ID.
		if event.RunID == "" {
			continue
		}
		runEvents[event.RunID] = append(runEvents[event.RunID], event)
	}

	var runs []RunInfo
	for runID, events := range runEvents {
		runs = append(runs, buildRunInfo(runID, events))
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.Before(runs[j].StartTime)
	})

	return runs
}

func buildRunInfo(runID RunID, events []AuditEvent) RunInfo {
	info := RunInfo{
		RunID:   runID,
		Status:  RunStatusInProgress,
		RunType: RunTypeFix,
	}

	var counted RunSummary
	ended := false
	for _, event := range events {
		switch event.EventType {
		case EventRunStart:
			info.StartTime = event.Timestamp
			if event.Metadata != nil {
				info.AppVersion = event.Metadata["appVersion"]
				info.MachineID = event.Metadata["machineId"]
				if runType, ok := event.Metadata["runType"]; ok {
					info.RunType = RunType(runType)
				}
				if undoTarget, ok := event.Metadata["undoTargetId"]; ok {
					targetID := RunID(undoTarget)
					info.UndoTargetID = &targetID
					info.RunType = RunTypeUndo
				}
			}

		case EventRunEnd:
			endTime := event.Timestamp
			info.EndTime = &endTime
			if event.Metadata != nil {
				if status, ok := event.Metadata["status"]; ok {
					info.Status = RunStatus(status)
				}
				summary, err := parseSummaryFromMetadata(event.Metadata)
				if err != nil {
					info.SummaryWarning = err.Error()
					break
				}
				info.Summary = summary
				ended = true
			}

		case EventPatchTable, EventUndoTable:
			counted.Tables++
			counted.Patched++

		case EventNoChanges, EventUndoSkip:
			counted.Tables++
			counted.Unchanged++

		case EventFieldUpdate:
			counted.Fields++

		case EventError:
			counted.Tables++
			counted.Errors++
		}
	}

	// Runs that never ended are summarised from their events.
	if !ended {
		info.Summary = counted
	}
	return info
}

// parseSummaryFromMetadata reads the RUN_END counters. Missing keys count
// as zero; a value that is not a number is an error.
func parseSummaryFromMetadata(metadata map[string]string) (RunSummary, error) {
	summary := RunSummary{}
	counters := []struct {
		key string
		dst *int
	}{
		{"tables", &summary.Tables},
		{"patched", &summary.Patched},
		{"unchanged", &summary.Unchanged},
		{"fields", &summary.Fields},
		{"errors", &summary.Errors},
	}
	for _, c := range counters {
		value, ok := metadata[c.key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return RunSummary{}, fmt.Errorf("run summary %s=%q is not a number", c.key, value)
		}
		*c.dst = n
	}
	return summary, nil
}

// CheckLogIntegrity validates the integrity of the active log file.
func (r *AuditReader) CheckLogIntegrity() (*LogIntegrityResult, error) {
	return r.CheckFileIntegrity(filepath.Join(r.logDir, ActiveLogName))
}

// CheckFileIntegrity checks that a log file exists, that every line is a
// complete event and that the file ends with a newline.
func (r *AuditReader) CheckFileIntegrity(filePath string) (*LogIntegrityResult, error) {
	result := &LogIntegrityResult{
		FilePath: filePath,
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		result.Status = IntegrityMissing
		result.ErrorMessage = "log file does not exist"
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	if fileInfo.Size() == 0 {
		result.Status = IntegrityEmpty
		result.ErrorMessage = "log file is empty"
		return result, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	validLines, corruptLine, corruptErr := validateJSONLines(file)
	result.TotalLines = validLines

	if corruptErr != nil {
		result.Status = IntegrityCorrupt
		result.ErrorLine = corruptLine
		result.ErrorMessage = corruptErr.Error()
		return result, nil
	}

	result.Status = IntegrityOK
	return result, nil
}

func validateJSONLines(file *os.File) (validLines int, corruptLine int, err error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		if len(line) == 0 {
			continue
		}

		if !json.Valid(line) {
			return validLines, lineNum, fmt.Errorf("invalid JSON at line %d", lineNum)
		}

		event, err := UnmarshalJSONLine(line)
		if err != nil {
			return validLines, lineNum, fmt.Errorf("failed to parse event at line %d: %w", lineNum, err)
		}
		if err := event.Check(); err != nil {
			return validLines, lineNum, fmt.Errorf("line %d: %w", lineNum, err)
		}

		validLines++
	}

	if err := scanner.Err(); err != nil {
		return validLines, lineNum, fmt.Errorf("error reading file: %w", err)
	}

	if err := checkLastLineComplete(file); err != nil {
		return validLines, lineNum, err
	}

	return validLines, 0, nil
}

// checkLastLineComplete reports a truncated last line.
func checkLastLineComplete(file *os.File) error {
	if _, err := file.Seek(-1, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	lastByte := make([]byte, 1)
	if _, err := file.Read(lastByte); err != nil {
		return fmt.Errorf("failed to read last byte: %w", err)
	}

	if lastByte[0] != '\n' {
		return fmt.Errorf("truncated last line: file does not end with newline")
	}

	return nil
}

// GetCorruptSegments returns the integrity results of every corrupt log file.
func (r *AuditReader) GetCorruptSegments() ([]LogIntegrityResult, error) {
	logFiles, err := GetAllLogFiles(r.logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get log files: %w", err)
	}

	var corrupt []LogIntegrityResult
	for _, logFile := range logFiles {
		result, err := r.CheckFileIntegrity(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to check integrity of %s: %w", logFile, err)
		}
		if result.Status == IntegrityCorrupt {
			corrupt = append(corrupt, *result)
		}
	}

	return corrupt, nil
}
