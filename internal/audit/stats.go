package audit

import (
	"fmt"
	"sort"
	"time"
)

// AuditStats contains aggregate metrics across all audit runs.
type AuditStats struct {
	TotalRuns     int            // Number of fix runs
	TotalUndos    int            // Number of undo runs
	TablesPatched int            // Tables written by fix runs
	FieldsFixed   int            // Fields rewritten by fix runs
	ByRegion      map[string]int // Rewritten fields per region (top N)
	ByReason      map[string]int // Rewritten fields per decision reason
	FirstRun      time.Time
	LastRun       time.Time
}

// StatsOptions configures stats aggregation.
type StatsOptions struct {
	Since *time.Time // Only runs started after this time
	TopN  int        // Number of regions to keep (0 = all)
}

// AggregateStats computes metrics across all audit logs in logDir.
func AggregateStats(logDir string, opts StatsOptions) (*AuditStats, error) {
	reader := NewAuditReader(logDir)

	events, err := reader.readAllEvents()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	stats := &AuditStats{
		ByReason: make(map[string]int),
	}
	regions := make(map[string]int)

	included := make(map[RunID]bool)
	for _, run := range reader.extractRunInfos(events) {
		if opts.Since != nil && run.StartTime.Before(*opts.Since) {
			continue
		}
		included[run.RunID] = true

		if run.RunType == RunTypeUndo {
			stats.TotalUndos++
			continue
		}
		stats.TotalRuns++

		if stats.FirstRun.IsZero() || run.StartTime.Before(stats.FirstRun) {
			stats.FirstRun = run.StartTime
		}
		if run.StartTime.After(stats.LastRun) {
			stats.LastRun = run.StartTime
		}
	}

	for _, event := range events {
		if !included[event.RunID] {
			continue
		}
		switch event.EventType {
		case EventPatchTable:
			stats.TablesPatched++
		case EventFieldUpdate:
			stats.FieldsFixed++
			if event.Field != nil {
				if event.Field.Region != "" {
					regions[event.Field.Region]++
				}
				if event.Field.Reason != "" {
					stats.ByReason[event.Field.Reason]++
				}
			}
		}
	}

	stats.ByRegion = filterTopN(regions, opts.TopN)
	return stats, nil
}

// filterTopN returns the top n entries by value, ties broken by key.
// If n <= 0, returns all entries.
func filterTopN(counts map[string]int, n int) map[string]int {
	if n <= 0 || len(counts) <= n {
		result := make(map[string]int, len(counts))
		for k, v := range counts {
			result[k] = v
		}
		return result
	}

	type kv struct {
		key   string
		value int
	}
	sorted := make([]kv, 0, len(counts))
	for k, v := range counts {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].value != sorted[j].value {
			return sorted[i].value > sorted[j].value
		}
		return sorted[i].key < sorted[j].key
	})

	result := make(map[string]int, n)
	for _, e := range sorted[:n] {
		result[e.key] = e.value
	}
	return result
}
