// Package lookup builds the per-province index of canonical district names.
package lookup

import (
	"sort"
	"strings"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/normalizer"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/reference"
)

// Region holds the candidates of one province: normalized key to canonical
// display name, iterated in first-insertion order.
type Region struct {
	keys      []string
	canonical map[string]string
}

func newRegion() *Region {
	return &Region{canonical: make(map[string]string)}
}

// put stores key -> display. A repeated key overwrites the display value but
// keeps its original position.
func (r *Region) put(key, display string) {
	if _, exists := r.canonical[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.canonical[key] = display
}

// Len returns the number of distinct candidate keys.
func (r *Region) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Lookup returns the canonical name stored under an exact normalized key.
func (r *Region) Lookup(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	display, ok := r.canonical[key]
	return display, ok
}

// Each calls fn for every candidate in insertion order until fn returns false.
func (r *Region) Each(fn func(key, display string) bool) {
	if r == nil {
		return
	}
	for _, key := range r.keys {
		if !fn(key, r.canonical[key]) {
			return
		}
	}
}

// Table maps an upper-cased province name to its Region. It is read-only
// once Build returns.
type Table struct {
	regions map[string]*Region
}

// RegionKey is the form under which province names are stored and looked up.
// Province names are trusted to be clean, so they are trimmed and upper-cased
// but not normalized.
func RegionKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Build indexes reference entries by province. Every entry is kept; a later
// entry whose district normalizes to an existing key replaces the earlier
// display value silently.
func Build(entries []reference.Entry) *Table {
	t := &Table{regions: make(map[string]*Region)}
	for _, entry := range entries {
		regionKey := RegionKey(entry.Region)
		region, ok := t.regions[regionKey]
		if !ok {
			region = newRegion()
			t.regions[regionKey] = region
		}
		display := strings.TrimSpace(entry.Subregion)
		region.put(normalizer.Normalize(display), display)
	}
	return t
}

// Region returns the candidates of a province. The name is upper-cased
// before lookup.
func (t *Table) Region(name string) (*Region, bool) {
	if t == nil {
		return nil, false
	}
	region, ok := t.regions[strings.ToUpper(name)]
	return region, ok
}

// Regions returns the province keys in sorted order.
func (t *Table) Regions() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.regions))
	for name := range t.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the total number of candidates across all provinces.
func (t *Table) Size() int {
	if t == nil {
		return 0
	}
	total := 0
	for _, region := range t.regions {
		total += region.Len()
	}
	return total
}
