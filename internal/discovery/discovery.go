package discovery

import (
	"sort"
	"strings"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/config"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/lookup"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

const (
	// MinShare is the share of non-empty values that must name a known
	// province for a field to be proposed.
	MinShare = 0.8
	// MinShareNamed applies instead to fields whose name looks like a
	// province field.
	MinShareNamed = 0.5
)

// DiscoveredField is a field proposed as the region field.
type DiscoveredField struct {
	Name    string
	Table   string // First table the field was found in
	Matched int    // Values naming a known province
	Values  int    // Non-empty values examined
}

// Share returns the fraction of values that name a known province.
func (f DiscoveredField) Share() float64 {
	if f.Values == 0 {
		return 0
	}
	return float64(f.Matched) / float64(f.Values)
}

// DiscoveryResult contains the results of a discovery scan.
type DiscoveryResult struct {
	NewFields      []DiscoveredField // Fields to be added
	SkippedFields  []DiscoveredField // Fields already configured
	TablesAnalyzed int
	Errors         []error // Tables that could not be read
}

// analyzeTable counts, per character field, how many live values name a
// province of the lookup table. The district field is never a candidate.
func analyzeTable(table *dbf.Table, regions *lookup.Table) map[string]*DiscoveredField {
	fields := make(map[string]*DiscoveredField)
	for _, f := range table.Fields {
		if f.Type != 'C' || strings.EqualFold(f.Name, config.TargetField) {
			continue
		}
		fields[strings.ToUpper(f.Name)] = &DiscoveredField{Name: f.Name, Table: table.Path}
	}

	for _, rec := range table.Records() {
		if rec.Deleted {
			continue
		}
		for _, f := range table.Fields {
			candidate, ok := fields[strings.ToUpper(f.Name)]
			if !ok {
				continue
			}
			value := strings.TrimSpace(rec.Values[f.Name])
			if value == "" {
				continue
			}
			candidate.Values++
			if _, known := regions.Region(lookup.RegionKey(value)); known {
				candidate.Matched++
			}
		}
	}
	return fields
}

func qualifies(f *DiscoveredField) bool {
	if f.Values == 0 || f.Matched == 0 {
		return false
	}
	if LooksLikeRegionField(f.Name) {
		return f.Share() >= MinShareNamed
	}
	return f.Share() >= MinShare
}

// Discover reads each table and proposes the fields whose values are mostly
// province names. Counts of a field found in several tables are summed.
// Fields already listed in the configuration are reported as skipped.
// Unreadable tables are collected in Errors and the scan carries on.
func Discover(paths []string, regions *lookup.Table, existing *config.Configuration) *DiscoveryResult {
	result := &DiscoveryResult{
		NewFields:     []DiscoveredField{},
		SkippedFields: []DiscoveredField{},
	}

	totals := make(map[string]*DiscoveredField)
	var order []string
	for _, path := range paths {
		enc, _, err := textenc.ReadCompanion(path)
		if err != nil {
			enc = textenc.CP1254
		}
		table, err := dbf.Open(path, enc)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.TablesAnalyzed++

		for key, f := range analyzeTable(table, regions) {
			total, ok := totals[key]
			if !ok {
				totals[key] = f
				order = append(order, key)
				continue
			}
			total.Matched += f.Matched
			total.Values += f.Values
		}
	}

	configured := make(map[string]bool)
	if existing != nil {
		for _, name := range existing.RegionFields {
			configured[strings.ToUpper(name)] = true
		}
	}

	// Best candidates first.
	sort.SliceStable(order, func(i, j int) bool {
		a, b := totals[order[i]], totals[order[j]]
		if a.Share() != b.Share() {
			return a.Share() > b.Share()
		}
		return order[i] < order[j]
	})

	for _, key := range order {
		f := totals[key]
		if !qualifies(f) {
			continue
		}
		if configured[key] {
			result.SkippedFields = append(result.SkippedFields, *f)
		} else {
			result.NewFields = append(result.NewFields, *f)
		}
	}
	return result
}
