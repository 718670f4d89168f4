package orchestrator

import (
	"sort"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/audit"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/classifier"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/output"
)

// Change is a record whose district field is rewritten.
type Change struct {
	Record   int // Physical record index
	Decision *classifier.Decision
}

// TableResult is the outcome for one table.
type TableResult struct {
	Source       string
	Destination  string
	Field        dbf.Field
	Records      int // Live records examined
	Decisions    []*classifier.Decision
	Changes      []Change
	Patched      bool
	BytesWritten int64
	Err          error
}

// Summary collects the outcome of a run.
type Summary struct {
	RunID        audit.RunID // Empty when the run was not audited
	Tables       int
	Patched      int
	Unchanged    int
	Failed       int
	Fields       int
	BytesWritten int64
	Results      []*TableResult
}

func newSummary() *Summary {
	return &Summary{Results: make([]*TableResult, 0)}
}

func (s *Summary) add(r *TableResult) {
	s.Tables++
	s.Results = append(s.Results, r)
	switch {
	case r.Err != nil:
		s.Failed++
	case r.Patched:
		s.Patched++
		s.Fields += len(r.Changes)
	default:
		s.Unchanged++
	}
	s.BytesWritten += r.BytesWritten
}

// HasErrors returns true if any table failed.
func (s *Summary) HasErrors() bool {
	return s.Failed > 0
}

// Totals converts the summary for the console report.
func (s *Summary) Totals() output.BatchTotals {
	return output.BatchTotals{
		Tables:    s.Tables,
		Patched:   s.Patched,
		Unchanged: s.Unchanged,
		Failed:    s.Failed,
		Fields:    s.Fields,
		Bytes:     s.BytesWritten,
		Reasons:   s.ReasonCounts(),
	}
}

func (s *Summary) auditSummary() audit.RunSummary {
	return audit.RunSummary{
		Tables:    s.Tables,
		Patched:   s.Patched,
		Unchanged: s.Unchanged,
		Fields:    s.Fields,
		Errors:    s.Failed,
	}
}

// ReasonCounts counts the rewritten fields of every patched table by how the
// replacement was chosen. It agrees with Fields.
func (s *Summary) ReasonCounts() map[classifier.Reason]int {
	counts := make(map[classifier.Reason]int)
	for _, r := range s.Results {
		if !r.Patched || r.Err != nil {
			continue
		}
		for _, c := range r.Changes {
			counts[c.Decision.Reason]++
		}
	}
	return counts
}

// Errors returns the failures in table order.
func (s *Summary) Errors() []error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// RegionsChanged returns the provinces with at least one change, sorted.
func (r *TableResult) RegionsChanged() []string {
	seen := make(map[string]bool)
	for _, c := range r.Changes {
		seen[c.Decision.Region] = true
	}
	regions := make([]string, 0, len(seen))
	for region := range seen {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}
