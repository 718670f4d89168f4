package matcher

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/lookup"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/reference"
)

func karsTable() *lookup.Table {
	return lookup.Build([]reference.Entry{
		{Region: "KARS", Subregion: "Kağızman"},
		{Region: "KARS", Subregion: "Sarıkamış"},
	})
}

func TestRatioKnownValues(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "", 0.0},
		{"abc", "abc", 1.0},
		{"abcd", "bcde", 0.75},
		{"abxcd", "abcd", 8.0 / 9.0},
		{"kagizmn", "kagizman", 14.0 / 15.0},
		{"abcde", "abcxy", 0.6},
		{"abcdefg", "abcdxyz", 8.0 / 14.0},
		{"xyz", "abc", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"~"+tt.b, func(t *testing.T) {
			got := Ratio(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSuggestEndToEndTypo(t *testing.T) {
	got, ok := Suggest(karsTable(), "KARS", "KAGIZMN")
	if !ok {
		t.Fatal("expected a suggestion for KAGIZMN")
	}
	if got != "Kağızman" {
		t.Errorf("expected Kağızman, got %q", got)
	}
}

func TestSuggestRegionIsCaseInsensitive(t *testing.T) {
	if _, ok := Suggest(karsTable(), "kars", "sarikamis"); !ok {
		t.Error("expected region lookup to upper-case the identifier")
	}
}

func TestExactKeyWinsOverFuzzy(t *testing.T) {
	table := lookup.Build([]reference.Entry{
		{Region: "KARS", Subregion: "Kagizmanx"},
		{Region: "KARS", Subregion: "KAĞIZMAN"},
	})

	s := Best(table, "KARS", "Kağızman")
	if !s.Found || !s.Exact {
		t.Fatalf("expected an exact match, got %+v", s)
	}
	if s.Text != "KAĞIZMAN" {
		t.Errorf("expected the exact candidate, got %q", s.Text)
	}
	if s.Score != 1.0 {
		t.Errorf("expected score 1.0 for exact match, got %v", s.Score)
	}
}

func TestThresholdBoundary(t *testing.T) {
	table := lookup.Build([]reference.Entry{
		{Region: "R", Subregion: "abcxy"},
		{Region: "S", Subregion: "abcdxyz"},
	})

	// 2*3/(5+5) == 0.6 is accepted.
	s := Best(table, "R", "abcde")
	if !s.Found || s.Text != "abcxy" {
		t.Errorf("expected ratio 0.6 to be accepted, got %+v", s)
	}

	// 2*4/(7+7) ~ 0.571 is rejected.
	s = Best(table, "S", "abcdefg")
	if s.Found {
		t.Errorf("expected ratio below 0.6 to be rejected, got %+v", s)
	}
	if s.Score >= Threshold {
		t.Errorf("expected reported score below threshold, got %v", s.Score)
	}
}

func TestTieGoesToFirstInserted(t *testing.T) {
	table := lookup.Build([]reference.Entry{
		{Region: "R", Subregion: "abcx"},
		{Region: "R", Subregion: "abcy"},
	})

	got, ok := Suggest(table, "R", "abcz")
	if !ok || got != "abcx" {
		t.Errorf("expected first inserted candidate on tie, got %q (found=%v)", got, ok)
	}
}

func TestRegionIsolation(t *testing.T) {
	table := lookup.Build([]reference.Entry{
		{Region: "KARS", Subregion: "Kağızman"},
		{Region: "ARDAHAN", Subregion: "Göle"},
	})

	if _, ok := Suggest(table, "ARDAHAN", "Kağızman"); ok {
		t.Error("a KARS district must not be suggested for ARDAHAN")
	}
	if _, ok := Suggest(table, "IGDIR", "Kağızman"); ok {
		t.Error("an unknown province must yield no suggestion")
	}
	if _, ok := Suggest(table, "", "Kağızman"); ok {
		t.Error("an empty province must yield no suggestion")
	}
}

func TestSuggestNilTable(t *testing.T) {
	if _, ok := Suggest(nil, "KARS", "Kağızman"); ok {
		t.Error("expected no suggestion from a nil table")
	}
}

// Feature: suggestion-engine, Property 1: Ratio Bounds
// For any strings a and b, 0 <= Ratio(a, b) <= 1 and Ratio(a, a) == 1.
func TestRatioBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("ratio stays within [0, 1]", prop.ForAll(
		func(a, b string) bool {
			r := Ratio(a, b)
			return r >= 0.0 && r <= 1.0
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.Property("a string is identical to itself", prop.ForAll(
		func(a string) bool {
			return Ratio(a, a) == 1.0
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Feature: suggestion-engine, Property 2: Canonical Names Resolve To Themselves
// Every reference district, given verbatim, resolves exactly to itself.
func TestCanonicalNamesResolveExactly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("reference names resolve to themselves", prop.ForAll(
		func(names []string) bool {
			entries := make([]reference.Entry, 0, len(names))
			for _, n := range names {
				entries = append(entries, reference.Entry{Region: "KARS", Subregion: n})
			}
			table := lookup.Build(entries)
			region, _ := table.Region("KARS")
			for _, n := range names {
				s := Best(table, "KARS", n)
				if !s.Found || !s.Exact {
					return false
				}
				want, _ := region.Lookup(s.Key)
				if s.Text != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 })),
	))

	properties.TestingRun(t)
}
