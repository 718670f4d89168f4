package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RetentionManager removes rotated segments past the retention limits.
// The active log is never pruned.
type RetentionManager struct {
	config AuditConfig
	reader *AuditReader
	now    func() time.Time
}

// NewRetentionManager creates a new RetentionManager with the given configuration.
func NewRetentionManager(config AuditConfig) *RetentionManager {
	return &RetentionManager{
		config: config,
		reader: NewAuditReader(config.LogDirectory),
		now:    time.Now,
	}
}

// SegmentRunInfo contains information about runs in a segment.
type SegmentRunInfo struct {
	Filename     string
	FilePath     string
	Size         int64
	ModTime      time.Time
	RunIDs       []RunID
	NewestRunAge time.Duration
}

// PruneResult contains the result of a pruning operation.
type PruneResult struct {
	PrunedSegments  []string
	PrunedRuns      []RunID
	TotalBytesFreed int64
}

// CheckRetention returns the rotated segments that exceed the retention
// limits. Segments holding a run younger than MinRetentionDays are kept.
func (rm *RetentionManager) CheckRetention() ([]SegmentRunInfo, error) {
	if rm.config.RetentionDays == 0 && rm.config.RetentionRuns == 0 {
		return nil, nil
	}

	segments, err := rm.getSegmentRunInfos()
	if err != nil {
		return nil, fmt.Errorf("failed to get segment info: %w", err)
	}
	if len(segments) == 0 {
		return nil, nil
	}

	now := rm.now()
	minRetentionDays := rm.config.MinRetentionDays
	if minRetentionDays == 0 {
		minRetentionDays = 7
	}
	minRetention := time.Duration(minRetentionDays) * 24 * time.Hour

	selected := make(map[string]bool)
	var toPrune []SegmentRunInfo
	add := func(seg SegmentRunInfo) {
		if seg.NewestRunAge < minRetention || selected[seg.Filename] {
			return
		}
		selected[seg.Filename] = true
		toPrune = append(toPrune, seg)
	}

	if rm.config.RetentionDays > 0 {
		retention := time.Duration(rm.config.RetentionDays) * 24 * time.Hour
		for _, seg := range segments {
			if now.Sub(seg.ModTime) > retention {
				add(seg)
			}
		}
	}

	if rm.config.RetentionRuns > 0 {
		runs, err := rm.reader.ListRuns()
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) > rm.config.RetentionRuns {
			expired := make(map[RunID]bool)
			for _, run := range runs[:len(runs)-rm.config.RetentionRuns] {
				expired[run.RunID] = true
			}

			for _, seg := range segments {
				if len(seg.RunIDs) == 0 {
					continue
				}
				all := true
				for _, id := range seg.RunIDs {
					if !expired[id] {
						all = false
						break
					}
				}
				if all {
					add(seg)
				}
			}
		}
	}

	sort.Slice(toPrune, func(i, j int) bool { return toPrune[i].Filename < toPrune[j].Filename })
	return toPrune, nil
}

// Prune removes segments that exceed retention limits, recording a
// RETENTION_PRUNE event for each.
func (rm *RetentionManager) Prune(writer *AuditWriter) (*PruneResult, error) {
	toPrune, err := rm.CheckRetention()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{
		PrunedSegments: []string{},
		PrunedRuns:     []RunID{},
	}

	for _, seg := range toPrune {
		if writer != nil {
			if err := writer.WriteEvent(CreateRetentionPruneEvent(seg.Filename, seg.RunIDs)); err != nil {
				return result, fmt.Errorf("failed to write RETENTION_PRUNE event: %w", err)
			}
		}

		if err := os.Remove(seg.FilePath); err != nil {
			return result, fmt.Errorf("failed to remove segment %s: %w", seg.Filename, err)
		}

		result.PrunedSegments = append(result.PrunedSegments, seg.Filename)
		result.PrunedRuns = append(result.PrunedRuns, seg.RunIDs...)
		result.TotalBytesFreed += seg.Size
	}

	if len(result.PrunedSegments) > 0 {
		if err := rm.updateIndexAfterPrune(result.PrunedSegments); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to update index after prune: %v\n", err)
		}
	}

	return result, nil
}

// getSegmentRunInfos describes every rotated segment.
func (rm *RetentionManager) getSegmentRunInfos() ([]SegmentRunInfo, error) {
	names, err := DiscoverSegments(rm.config.LogDirectory)
	if err != nil {
		return nil, err
	}

	now := rm.now()
	var infos []SegmentRunInfo
	for _, name := range names {
		path := filepath.Join(rm.config.LogDirectory, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		seg := SegmentRunInfo{
			Filename: name,
			FilePath: path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		}

		events, err := rm.reader.readEventsFromFile(path)
		if err != nil {
			infos = append(infos, seg)
			continue
		}

		seen := make(map[RunID]bool)
		var newest time.Time
		for _, event := range events {
			if event.RunID == "" {
				continue
			}
			if !seen[event.RunID] {
				seen[event.RunID] = true
				seg.RunIDs = append(seg.RunIDs, event.RunID)
			}
			if event.Timestamp.After(newest) {
				newest = event.Timestamp
			}
		}
		if !newest.IsZero() {
			seg.NewestRunAge = now.Sub(newest)
		} else {
			seg.NewestRunAge = now.Sub(seg.ModTime)
		}

		infos = append(infos, seg)
	}

	return infos, nil
}

func (rm *RetentionManager) updateIndexAfterPrune(prunedSegments []string) error {
	index, err := LoadIndex(rm.config.LogDirectory)
	if err != nil {
		return nil
	}

	pruned := make(map[string]bool)
	for _, seg := range prunedSegments {
		pruned[seg] = true
	}

	var remaining []SegmentInfo
	for _, seg := range index.Segments {
		if !pruned[seg.Filename] {
			remaining = append(remaining, seg)
		}
	}
	index.Segments = remaining

	return writeIndex(rm.config.LogDirectory, index)
}

// CreateRetentionPruneEvent creates a RETENTION_PRUNE event.
func CreateRetentionPruneEvent(filename string, prunedRunIDs []RunID) AuditEvent {
	return AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventRetentionPrune,
		Status:    StatusSuccess,
		Metadata: map[string]string{
			"prunedSegment":  filename,
			"prunedRunCount": fmt.Sprintf("%d", len(prunedRunIDs)),
		},
	}
}
