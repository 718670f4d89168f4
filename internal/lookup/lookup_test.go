package lookup

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/normalizer"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/reference"
)

func TestBuildGroupsByRegion(t *testing.T) {
	table := Build([]reference.Entry{
		{Region: " kars ", Subregion: " Kağızman "},
		{Region: "KARS", Subregion: "Sarıkamış"},
		{Region: "Ardahan", Subregion: "Göle"},
	})

	kars, ok := table.Region("kars")
	if !ok {
		t.Fatal("expected KARS region to exist")
	}
	if kars.Len() != 2 {
		t.Errorf("expected 2 KARS candidates, got %d", kars.Len())
	}
	display, ok := kars.Lookup("kagizman")
	if !ok || display != "Kağızman" {
		t.Errorf("expected trimmed canonical Kağızman, got %q (found=%v)", display, ok)
	}

	if _, ok := table.Region("ARDAHAN"); !ok {
		t.Error("expected ARDAHAN region to exist")
	}
	if got := table.Regions(); !reflect.DeepEqual(got, []string{"ARDAHAN", "KARS"}) {
		t.Errorf("unexpected regions: %v", got)
	}
	if table.Size() != 3 {
		t.Errorf("expected 3 candidates in total, got %d", table.Size())
	}
}

func TestBuildLastDuplicateWinsKeepsPosition(t *testing.T) {
	table := Build([]reference.Entry{
		{Region: "KARS", Subregion: "Kagizman"},
		{Region: "KARS", Subregion: "Arpaçay"},
		{Region: "KARS", Subregion: "KAĞIZMAN"},
	})

	kars, _ := table.Region("KARS")
	var got []string
	kars.Each(func(key, _ string) bool {
		got = append(got, key)
		return true
	})
	if !reflect.DeepEqual(got, []string{"kagizman", "arpacay"}) {
		t.Errorf("unexpected key order: %v", got)
	}
	if display, _ := kars.Lookup("kagizman"); display != "KAĞIZMAN" {
		t.Errorf("expected last duplicate to win, got %q", display)
	}
}

func TestRegionIsolation(t *testing.T) {
	table := Build([]reference.Entry{{Region: "KARS", Subregion: "Kağızman"}})

	if _, ok := table.Region("ARDAHAN"); ok {
		t.Error("expected unknown region to be absent")
	}
	var missing *Region
	if missing.Len() != 0 {
		t.Error("nil region must report zero candidates")
	}
	if _, ok := missing.Lookup("kagizman"); ok {
		t.Error("nil region must not find keys")
	}
}

func TestEachStopsEarly(t *testing.T) {
	table := Build([]reference.Entry{
		{Region: "KARS", Subregion: "Digor"},
		{Region: "KARS", Subregion: "Akyaka"},
		{Region: "KARS", Subregion: "Selim"},
	})
	kars, _ := table.Region("KARS")

	var seen []string
	kars.Each(func(key, display string) bool {
		seen = append(seen, display)
		return len(seen) < 2
	})
	if !reflect.DeepEqual(seen, []string{"Digor", "Akyaka"}) {
		t.Errorf("unexpected iteration: %v", seen)
	}
}

// Feature: lookup-table, Property 1: Every Entry Is Reachable
// For any list of entries, each entry's district is reachable under its
// province by its normalized key.
func TestEveryEntryReachable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	genEntry := gopter.CombineGens(
		gen.OneConstOf("KARS", "ARDAHAN", "IGDIR"),
		gen.AlphaString(),
	).Map(func(vals []interface{}) reference.Entry {
		return reference.Entry{Region: vals[0].(string), Subregion: vals[1].(string)}
	})

	properties.Property("normalized keys of all entries are present", prop.ForAll(
		func(entries []reference.Entry) bool {
			table := Build(entries)
			for _, e := range entries {
				region, ok := table.Region(e.Region)
				if !ok {
					return false
				}
				if _, ok := region.Lookup(normalizer.Normalize(e.Subregion)); !ok {
					return false
				}
			}
			return true
		},
		gen.SliceOf(genEntry),
	))

	properties.TestingRun(t)
}
