package orchestrator

import (
	"fmt"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/scanner"
)

// StatusResult lists the pending corrections of a set of tables.
type StatusResult struct {
	Tables     []*TableStatus
	GrandTotal int // Pending changes across all tables
}

// TableStatus is the pending work for one table.
type TableStatus struct {
	Path     string
	Records  int
	Pending  int
	ByRegion map[string]int // province -> pending changes
	Regions  []string       // Provinces with pending changes, sorted
	Err      error
}

// Status inspects every table under dir, or the single table named by
// path, and reports what a run would change. Nothing is written and
// nothing is audited.
func (o *Orchestrator) Status(path, referencePath string) (*StatusResult, error) {
	if err := o.LoadReference(referencePath); err != nil {
		return nil, err
	}

	paths := []string{path}
	if !scanner.IsTable(path) {
		tables, err := scanner.ScanTables(path, scanner.DefaultScanOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		paths = paths[:0]
		for _, t := range tables {
			paths = append(paths, t.FullPath)
		}
	}

	result := &StatusResult{Tables: make([]*TableStatus, 0, len(paths))}
	for _, p := range paths {
		status := &TableStatus{Path: p, ByRegion: make(map[string]int)}
		tr, err := o.Decide(p)
		if err != nil {
			status.Err = err
			result.Tables = append(result.Tables, status)
			continue
		}
		status.Records = tr.Records
		status.Pending = len(tr.Changes)
		for _, c := range tr.Changes {
			status.ByRegion[c.Decision.Region]++
		}
		status.Regions = tr.RegionsChanged()
		result.GrandTotal += status.Pending
		result.Tables = append(result.Tables, status)
	}
	return result, nil
}
