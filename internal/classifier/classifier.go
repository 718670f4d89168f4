// Package classifier decides, record by record, what the district field
// should contain and whether it must be rewritten.
package classifier

import (
	"strings"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/lookup"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/matcher"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/normalizer"
)

// Status is the outcome reported for a record.
type Status string

const (
	// Fix marks a record whose field will be rewritten.
	Fix Status = "FIX"
	// OK marks a record left as it is.
	OK Status = "OK"
)

// Reason records how the replacement was chosen.
type Reason string

const (
	ExactMatch Reason = "EXACT_MATCH"
	FuzzyMatch Reason = "FUZZY_MATCH"
	// NoMatch means no candidate was close enough; the current text is kept,
	// upper-cased.
	NoMatch Reason = "NO_MATCH"
)

// Policy holds the output switches that affect the decision.
type Policy struct {
	ASCII bool // Transliterate the result to plain upper-case ASCII
	Force bool // Rewrite every record, even unchanged ones
}

// Decision is the verdict for one record.
type Decision struct {
	Status      Status
	Reason      Reason
	Region      string
	Current     string
	Replacement string
	Score       float64
}

// Classify resolves current within region and applies policy.
//
// A found suggestion is upper-cased with Unicode rules, so Turkish letters
// survive (Kağızman becomes KAĞIZMAN). Without a suggestion the current text
// is upper-cased instead. ASCII mode transliterates the result. The record
// is fixed when the result differs from current, or always under Force.
//
// Upper-casing maps rune to rune, so ß and ligatures such as ﬁ are kept
// rather than expanded to SS or FI.
func Classify(table *lookup.Table, region, current string, policy Policy) *Decision {
	s := matcher.Best(table, region, current)

	d := &Decision{
		Region:  region,
		Current: current,
		Score:   s.Score,
	}

	switch {
	case s.Found && s.Exact:
		d.Reason = ExactMatch
		d.Replacement = strings.ToUpper(s.Text)
	case s.Found:
		d.Reason = FuzzyMatch
		d.Replacement = strings.ToUpper(s.Text)
	default:
		d.Reason = NoMatch
		d.Replacement = strings.ToUpper(current)
	}

	if policy.ASCII {
		d.Replacement = normalizer.ToASCIIDisplay(d.Replacement)
	}

	if policy.Force || d.Replacement != current {
		d.Status = Fix
	} else {
		d.Status = OK
	}
	return d
}

// NeedsUpdate reports whether the record must be rewritten.
func (d *Decision) NeedsUpdate() bool {
	return d.Status == Fix
}
