package audit

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/dbf/dbftest"
)

func TestCaptureIdentityRecordsTableShape(t *testing.T) {
	dir := t.TempDir()
	path := dbftest.Write(t, dir, "kars.dbf", dbftest.Districts(dbftest.R("KARS", "KAGIZMN"), dbftest.R("KARS", "SELIM")))

	identity, err := NewIdentityResolver().CaptureIdentity(path)
	require.NoError(t, err)
	require.Len(t, identity.ContentHash, 64)
	require.Equal(t, int64(97+2*23+1), identity.Size)
	require.Equal(t, &TableShape{Records: 2, HeaderLength: 97, RecordLength: 23}, identity.Shape)

	short := filepath.Join(dir, "short.dbf")
	require.NoError(t, os.WriteFile(short, []byte("dbf"), 0644))
	identity, err = NewIdentityResolver().CaptureIdentity(short)
	require.NoError(t, err)
	require.Nil(t, identity.Shape)

	_, err = NewIdentityResolver().CaptureIdentity(dir)
	require.Error(t, err)
}

func TestVerifyIdentity(t *testing.T) {
	resolver := NewIdentityResolver()

	tests := []struct {
		name   string
		change func(t *testing.T, path string)
		want   IdentityMatch
	}{
		{"untouched", func(*testing.T, string) {}, IdentityMatches},
		{"record count changed", func(t *testing.T, path string) {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			binary.LittleEndian.PutUint32(data[4:8], 1)
			require.NoError(t, os.WriteFile(path, data, 0644))
		}, IdentityShapeMismatch},
		{"trailer dropped", func(t *testing.T, path string) {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0644))
		}, IdentitySizeMismatch},
		{"field rewritten", func(t *testing.T, path string) {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			copy(data[97+11:], "KA\xD0IZMAN")
			require.NoError(t, os.WriteFile(path, data, 0644))
		}, IdentityHashMismatch},
		{"removed", func(t *testing.T, path string) {
			require.NoError(t, os.Remove(path))
		}, IdentityNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := dbftest.Write(t, t.TempDir(), "kars.dbf", dbftest.Districts(dbftest.R("KARS", "KAGIZMN"), dbftest.R("KARS", "SELIM")))
			identity, err := resolver.CaptureIdentity(path)
			require.NoError(t, err)

			tt.change(t, path)

			match, err := resolver.VerifyIdentity(path, *identity)
			require.NoError(t, err)
			require.Equal(t, tt.want, match, match.Describe())
		})
	}
}

func TestVerifyIdentityWithoutShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kars.dbf")
	require.NoError(t, os.WriteFile(path, []byte("dbf"), 0644))

	identity, err := NewIdentityResolver().CaptureIdentity(path)
	require.NoError(t, err)
	match, err := NewIdentityResolver().VerifyIdentity(path, *identity)
	require.NoError(t, err)
	require.Equal(t, IdentityMatches, match)
}

func TestIdentityMatchDescribe(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range []IdentityMatch{IdentityMatches, IdentityShapeMismatch, IdentitySizeMismatch, IdentityHashMismatch, IdentityNotFound} {
		require.NotEmpty(t, m.Describe())
		require.False(t, seen[m.Describe()], "duplicate description %q", m.Describe())
		seen[m.Describe()] = true
	}
}
