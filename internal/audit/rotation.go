package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	segmentPrefix = "ilcefix-audit-"
	segmentSuffix = ".jsonl"
	// IndexName is the file listing rotated segments.
	IndexName = "ilcefix-audit-index.json"
)

// RotationIndex tracks all log segments for discovery.
type RotationIndex struct {
	Segments    []SegmentInfo `json:"segments"`
	ActiveLog   string        `json:"activeLog"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// SegmentInfo contains metadata about a rotated log segment.
type SegmentInfo struct {
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// RotationManager handles log rotation logic.
type RotationManager struct {
	config       AuditConfig
	lastRotation time.Time
}

// NewRotationManager creates a new RotationManager with the given configuration.
func NewRotationManager(config AuditConfig) *RotationManager {
	return &RotationManager{
		config:       config,
		lastRotation: time.Now(),
	}
}

// NeedsRotation checks if the current log file needs rotation based on size or time.
func (rm *RotationManager) NeedsRotation(logPath string) (bool, error) {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat log file: %w", err)
	}

	if rm.config.RotationSize > 0 && info.Size() >= rm.config.RotationSize {
		return true, nil
	}

	if rm.config.RotationPeriod != "" {
		return rm.needsTimeBasedRotation(info.ModTime(), time.Now())
	}

	return false, nil
}

func (rm *RotationManager) needsTimeBasedRotation(lastModTime, now time.Time) (bool, error) {
	switch rm.config.RotationPeriod {
	case "daily":
		ly, lm, ld := lastModTime.Date()
		ny, nm, nd := now.Date()
		return ly != ny || lm != nm || ld != nd, nil

	case "weekly":
		lastYear, lastWeek := lastModTime.ISOWeek()
		currentYear, currentWeek := now.ISOWeek()
		return lastYear != currentYear || lastWeek != currentWeek, nil

	case "":
		return false, nil

	default:
		return false, fmt.Errorf("unknown rotation period: %s", rm.config.RotationPeriod)
	}
}

// GenerateRotatedFilename creates a filename for a rotated log segment,
// ilcefix-audit-YYYYMMDD-HHMMSS.NNNNNNNNN.jsonl, that is not yet taken in
// the log directory. Names sort chronologically.
func (rm *RotationManager) GenerateRotatedFilename() string {
	now := time.Now().UTC()
	for {
		name := segmentPrefix + now.Format("20060102-150405.000000000") + segmentSuffix
		if _, err := os.Stat(filepath.Join(rm.config.LogDirectory, name)); os.IsNotExist(err) {
			return name
		}
		now = now.Add(time.Nanosecond)
	}
}

// RotateWithFilename renames the active log to rotatedFilename and records
// it in the index.
func (rm *RotationManager) RotateWithFilename(logPath, rotatedFilename string) (string, error) {
	dir := filepath.Dir(logPath)
	rotatedPath := filepath.Join(dir, rotatedFilename)

	info, err := os.Stat(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat log file for rotation: %w", err)
	}

	if err := os.Rename(logPath, rotatedPath); err != nil {
		return "", fmt.Errorf("failed to rename log file during rotation: %w", err)
	}

	// The index can be rebuilt from the directory listing.
	if err := rm.updateIndex(dir, rotatedFilename, info.Size()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to update rotation index: %v\n", err)
	}

	rm.lastRotation = time.Now()
	return rotatedPath, nil
}

func (rm *RotationManager) updateIndex(logDir, rotatedFilename string, size int64) error {
	index, err := LoadIndex(logDir)
	if err != nil {
		index = &RotationIndex{
			Segments:  []SegmentInfo{},
			ActiveLog: ActiveLogName,
		}
	}

	index.Segments = append(index.Segments, SegmentInfo{
		Filename:  rotatedFilename,
		CreatedAt: time.Now(),
		Size:      size,
	})
	return writeIndex(logDir, index)
}

func writeIndex(logDir string, index *RotationIndex) error {
	index.LastUpdated = time.Now()
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	if err := os.WriteFile(filepath.Join(logDir, IndexName), data, 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	return nil
}

// LoadIndex loads the rotation index from the log directory.
func LoadIndex(logDir string) (*RotationIndex, error) {
	data, err := os.ReadFile(filepath.Join(logDir, IndexName))
	if err != nil {
		return nil, err
	}

	var index RotationIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, err
	}

	return &index, nil
}

// DiscoverSegments finds all rotated segments in the directory, oldest first.
func DiscoverSegments(logDir string) ([]string, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			segments = append(segments, name)
		}
	}

	sort.Strings(segments)
	return segments, nil
}

// GetAllLogFiles returns the rotated segments followed by the active log.
func GetAllLogFiles(logDir string) ([]string, error) {
	segments, err := DiscoverSegments(logDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, seg := range segments {
		files = append(files, filepath.Join(logDir, seg))
	}

	activeLog := filepath.Join(logDir, ActiveLogName)
	if _, err := os.Stat(activeLog); err == nil {
		files = append(files, activeLog)
	}

	return files, nil
}

// CreateRotationEvent creates a ROTATION event to be written before switching files.
func CreateRotationEvent(runID RunID, oldFile, newFile string) AuditEvent {
	return AuditEvent{
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		EventType: EventRotation,
		Status:    StatusSuccess,
		Metadata: map[string]string{
			"previousFile": oldFile,
			"newFile":      newFile,
			"reason":       "rotation",
		},
	}
}
