package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/config"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf/dbftest"
)

func TestStatusDirectory(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, t.TempDir())
	karsTable(t, dir, "a.dbf")
	dbftest.Write(t, dir, "b.dbf", dbftest.Districts(
		dbftest.R("IĞDIR", "tuzluca"),
		dbftest.R("KARS", "SARIKAMIS"),
		dbftest.R("KARS", "KAĞIZMAN"),
	))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.dbf"), []byte("short"), 0644))
	before, _ := os.ReadFile(filepath.Join(dir, "a.dbf"))

	out, _, _ := testOutput()
	result, err := New(nil, config.Options{}, out).Status(dir, ref)
	require.NoError(t, err)
	require.Len(t, result.Tables, 3)
	require.Equal(t, 3, result.GrandTotal)

	a, b, c := result.Tables[0], result.Tables[1], result.Tables[2]
	require.Equal(t, 2, a.Records)
	require.Equal(t, 1, a.Pending)
	require.Equal(t, []string{"KARS"}, a.Regions)

	require.Equal(t, 2, b.Pending)
	require.Equal(t, map[string]int{"IĞDIR": 1, "KARS": 1}, b.ByRegion)
	require.Equal(t, []string{"IĞDIR", "KARS"}, b.Regions)

	require.Error(t, c.Err)

	after, _ := os.ReadFile(filepath.Join(dir, "a.dbf"))
	require.Equal(t, before, after)
}

func TestStatusSingleTable(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)
	path := karsTable(t, dir, "kars.dbf")

	out, _, _ := testOutput()
	result, err := New(nil, config.Options{}, out).Status(path, ref)
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	require.Equal(t, path, result.Tables[0].Path)
	require.Equal(t, 1, result.GrandTotal)
}

func TestStatusMissingDirectory(t *testing.T) {
	ref := writeReference(t, t.TempDir())
	out, _, _ := testOutput()
	_, err := New(nil, config.Options{}, out).Status(filepath.Join(t.TempDir(), "nope"), ref)
	require.Error(t, err)
}
